package shader

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

const spirvMagic = 0x07230203

// SPIR-V opcodes the reflector reads.
const (
	opName             = 5
	opEntryPoint       = 15
	opExecutionMode    = 16
	opTypeInt          = 21
	opTypeFloat        = 22
	opTypeVector       = 23
	opTypeMatrix       = 24
	opTypeImage        = 25
	opTypeSampler      = 26
	opTypeSampledImage = 27
	opTypeArray        = 28
	opTypeRuntimeArray = 29
	opTypeStruct       = 30
	opTypePointer      = 32
	opConstant         = 43
	opVariable         = 59
	opDecorate         = 71
	opMemberDecorate   = 72
)

const (
	decorationBlock         = 2
	decorationBufferBlock   = 3
	decorationArrayStride   = 6
	decorationMatrixStride  = 7
	decorationBinding       = 33
	decorationDescriptorSet = 34
	decorationOffset        = 35
)

const (
	storageClassUniformConstant = 0
	storageClassUniform         = 2
	storageClassPushConstant    = 9
	storageClassStorageBuffer   = 12
)

const (
	executionModelVertex    = 0
	executionModelFragment  = 4
	executionModelGLCompute = 5
	executionModelTaskNV    = 5267
	executionModelMeshNV    = 5268
	executionModelTaskEXT   = 5364
	executionModelMeshEXT   = 5365

	executionModeLocalSize = 17
)

// spirvType is one type declaration. Only the fields relevant to its opcode are set.
type spirvType struct {
	op      uint32
	width   uint32   // int, float
	elem    uint32   // vector component, matrix column, array element, pointer pointee, sampled image's image
	count   uint32   // vector size, matrix columns
	length  uint32   // array length constant id
	members []uint32 // struct members
	storage uint32   // pointer storage class
	sampled uint32   // image: 1 sampled, 2 storage
}

type spirvVariable struct {
	id      uint32
	typeID  uint32
	storage uint32
}

type spirvEntryPoint struct {
	model uint32
	id    uint32
	name  string
}

// module is the reflected content of one SPIR-V binary.
type module struct {
	entryPoints []spirvEntryPoint
	localSize   map[uint32][3]uint32

	names     map[uint32]string
	types     map[uint32]*spirvType
	constants map[uint32]uint32
	variables []spirvVariable

	binding       map[uint32]uint32
	set           map[uint32]uint32
	block         map[uint32]bool
	bufferBlock   map[uint32]bool
	arrayStride   map[uint32]uint32
	memberOffset  map[uint32]map[uint32]uint32
	matrixStrides map[uint32]map[uint32]uint32
}

// decodeWords reinterprets little-endian SPIR-V bytes as words.
func decodeWords(code []byte) ([]uint32, error) {
	if len(code)%4 != 0 {
		return nil, errors.Newf("spirv: byte length %d is not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

// literalString decodes a nul-terminated UTF-8 literal packed into words and returns the number of words used.
func literalString(words []uint32) (string, int) {
	var b []byte
	for i, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return string(b), i + 1
			}
			b = append(b, c)
		}
	}
	return string(b), len(words)
}

// parseModule walks the instruction stream once and records everything reflection needs.
func parseModule(words []uint32) (*module, error) {
	if len(words) < 5 {
		return nil, errors.Newf("spirv: %d words is shorter than the header", len(words))
	}
	if words[0] != spirvMagic {
		return nil, errors.Newf("spirv: bad magic %#08x", words[0])
	}

	m := &module{
		localSize:     make(map[uint32][3]uint32),
		names:         make(map[uint32]string),
		types:         make(map[uint32]*spirvType),
		constants:     make(map[uint32]uint32),
		binding:       make(map[uint32]uint32),
		set:           make(map[uint32]uint32),
		block:         make(map[uint32]bool),
		bufferBlock:   make(map[uint32]bool),
		arrayStride:   make(map[uint32]uint32),
		memberOffset:  make(map[uint32]map[uint32]uint32),
		matrixStrides: make(map[uint32]map[uint32]uint32),
	}

	for pos := 5; pos < len(words); {
		wordCount := int(words[pos] >> 16)
		opcode := words[pos] & 0xffff
		if wordCount == 0 || pos+wordCount > len(words) {
			return nil, errors.Newf("spirv: malformed instruction at word %d", pos)
		}
		ins := words[pos+1 : pos+wordCount]
		pos += wordCount

		switch opcode {
		case opName:
			if len(ins) >= 2 {
				m.names[ins[0]], _ = literalString(ins[1:])
			}
		case opEntryPoint:
			if len(ins) >= 3 {
				name, _ := literalString(ins[2:])
				m.entryPoints = append(m.entryPoints, spirvEntryPoint{model: ins[0], id: ins[1], name: name})
			}
		case opExecutionMode:
			if len(ins) >= 5 && ins[1] == executionModeLocalSize {
				m.localSize[ins[0]] = [3]uint32{ins[2], ins[3], ins[4]}
			}
		case opTypeInt, opTypeFloat:
			if len(ins) >= 2 {
				m.types[ins[0]] = &spirvType{op: opcode, width: ins[1]}
			}
		case opTypeVector, opTypeMatrix:
			if len(ins) >= 3 {
				m.types[ins[0]] = &spirvType{op: opcode, elem: ins[1], count: ins[2]}
			}
		case opTypeImage:
			if len(ins) >= 7 {
				m.types[ins[0]] = &spirvType{op: opcode, elem: ins[1], sampled: ins[6]}
			}
		case opTypeSampler:
			if len(ins) >= 1 {
				m.types[ins[0]] = &spirvType{op: opcode}
			}
		case opTypeSampledImage, opTypeRuntimeArray:
			if len(ins) >= 2 {
				m.types[ins[0]] = &spirvType{op: opcode, elem: ins[1]}
			}
		case opTypeArray:
			if len(ins) >= 3 {
				m.types[ins[0]] = &spirvType{op: opcode, elem: ins[1], length: ins[2]}
			}
		case opTypeStruct:
			if len(ins) >= 1 {
				m.types[ins[0]] = &spirvType{op: opcode, members: append([]uint32(nil), ins[1:]...)}
			}
		case opTypePointer:
			if len(ins) >= 3 {
				m.types[ins[0]] = &spirvType{op: opcode, storage: ins[1], elem: ins[2]}
			}
		case opConstant:
			if len(ins) >= 3 {
				m.constants[ins[1]] = ins[2]
			}
		case opVariable:
			if len(ins) >= 3 {
				m.variables = append(m.variables, spirvVariable{typeID: ins[0], id: ins[1], storage: ins[2]})
			}
		case opDecorate:
			if len(ins) < 2 {
				break
			}
			target, decoration := ins[0], ins[1]
			switch decoration {
			case decorationBlock:
				m.block[target] = true
			case decorationBufferBlock:
				m.bufferBlock[target] = true
			case decorationBinding:
				if len(ins) >= 3 {
					m.binding[target] = ins[2]
				}
			case decorationDescriptorSet:
				if len(ins) >= 3 {
					m.set[target] = ins[2]
				}
			case decorationArrayStride:
				if len(ins) >= 3 {
					m.arrayStride[target] = ins[2]
				}
			}
		case opMemberDecorate:
			if len(ins) < 4 {
				break
			}
			target, member, decoration := ins[0], ins[1], ins[2]
			switch decoration {
			case decorationOffset:
				if m.memberOffset[target] == nil {
					m.memberOffset[target] = make(map[uint32]uint32)
				}
				m.memberOffset[target][member] = ins[3]
			case decorationMatrixStride:
				if m.matrixStrides[target] == nil {
					m.matrixStrides[target] = make(map[uint32]uint32)
				}
				m.matrixStrides[target][member] = ins[3]
			}
		}
	}
	return m, nil
}

// stageFor maps a SPIR-V execution model to a shader stage bit.
func stageFor(model uint32) (vk.ShaderStageFlagBits, error) {
	switch model {
	case executionModelVertex:
		return vk.ShaderStageVertexBit, nil
	case executionModelFragment:
		return vk.ShaderStageFragmentBit, nil
	case executionModelGLCompute:
		return vk.ShaderStageComputeBit, nil
	case executionModelTaskEXT, executionModelTaskNV:
		return StageTask, nil
	case executionModelMeshEXT, executionModelMeshNV:
		return StageMesh, nil
	}
	return 0, errors.Newf("spirv: unsupported execution model %d", model)
}

// descriptorType classifies a resource variable by its storage class and pointee type.
func (m *module) descriptorType(v spirvVariable) (vk.DescriptorType, error) {
	ptr := m.types[v.typeID]
	if ptr == nil || ptr.op != opTypePointer {
		return 0, errors.Newf("spirv: variable %%%d is not a pointer", v.id)
	}
	pointee := m.types[ptr.elem]
	if pointee == nil {
		return 0, errors.Newf("spirv: variable %%%d has undeclared type %%%d", v.id, ptr.elem)
	}

	switch v.storage {
	case storageClassStorageBuffer:
		return vk.DescriptorTypeStorageBuffer, nil
	case storageClassUniform:
		if m.bufferBlock[ptr.elem] {
			return vk.DescriptorTypeStorageBuffer, nil
		}
		return vk.DescriptorTypeUniformBuffer, nil
	case storageClassUniformConstant:
		switch pointee.op {
		case opTypeSampledImage:
			return vk.DescriptorTypeCombinedImageSampler, nil
		case opTypeImage:
			if pointee.sampled == 2 {
				return vk.DescriptorTypeStorageImage, nil
			}
			return vk.DescriptorTypeSampledImage, nil
		case opTypeSampler:
			return vk.DescriptorTypeSampler, nil
		case opTypeArray, opTypeRuntimeArray:
			return 0, errors.Newf("spirv: descriptor arrays are not supported (%s)", m.names[v.id])
		}
	}
	return 0, errors.Newf("spirv: unsupported resource %q in storage class %d", m.names[v.id], v.storage)
}

// sizeOf returns the byte size of a type laid out with its explicit offsets and strides. matrixStride is the
// stride a containing struct member declared, or zero.
func (m *module) sizeOf(id, matrixStride uint32) (uint32, error) {
	t := m.types[id]
	if t == nil {
		return 0, errors.Newf("spirv: undeclared type %%%d", id)
	}
	switch t.op {
	case opTypeInt, opTypeFloat:
		return t.width / 8, nil
	case opTypeVector:
		c, err := m.sizeOf(t.elem, 0)
		return c * t.count, err
	case opTypeMatrix:
		if matrixStride != 0 {
			return matrixStride * t.count, nil
		}
		col, err := m.sizeOf(t.elem, 0)
		return col * t.count, err
	case opTypeArray:
		n, ok := m.constants[t.length]
		if !ok {
			return 0, errors.Newf("spirv: array %%%d has a non-constant length", id)
		}
		if stride, ok := m.arrayStride[id]; ok {
			return stride * n, nil
		}
		e, err := m.sizeOf(t.elem, matrixStride)
		return e * n, err
	case opTypeRuntimeArray:
		return 0, nil
	case opTypeStruct:
		var size uint32
		for i, member := range t.members {
			offset := m.memberOffset[id][uint32(i)]
			s, err := m.sizeOf(member, m.matrixStrides[id][uint32(i)])
			if err != nil {
				return 0, err
			}
			size = max(size, offset+s)
		}
		return size, nil
	}
	return 0, errors.Newf("spirv: type %%%d (op %d) has no size", id, t.op)
}

// reflect extracts the interface of the single entry point named entryPoint.
func (m *module) reflect(entryPoint string) (*reflection, error) {
	if len(m.entryPoints) != 1 {
		return nil, errors.Newf("spirv: expected exactly one entry point, found %d", len(m.entryPoints))
	}
	ep := m.entryPoints[0]
	if ep.name != entryPoint {
		return nil, errors.Newf("spirv: entry point is %q, want %q", ep.name, entryPoint)
	}
	stage, err := stageFor(ep.model)
	if err != nil {
		return nil, err
	}

	r := &reflection{stage: stage, localSize: m.localSize[ep.id]}
	seen := make(map[uint32]bool)
	for _, v := range m.variables {
		switch v.storage {
		case storageClassPushConstant:
			if r.pushConstants != nil {
				return nil, errors.New("spirv: more than one push constant block")
			}
			ptr := m.types[v.typeID]
			if ptr == nil {
				return nil, errors.Newf("spirv: push constant %%%d has undeclared type", v.id)
			}
			size, err := m.sizeOf(ptr.elem, 0)
			if err != nil {
				return nil, errors.Wrap(err, "push constant size")
			}
			r.pushConstants = &PushConstantRange{Stages: stage, Offset: 0, Size: size}

		case storageClassUniformConstant, storageClassUniform, storageClassStorageBuffer:
			binding, ok := m.binding[v.id]
			if !ok {
				continue
			}
			if set := m.set[v.id]; set != 0 {
				return nil, errors.Newf("spirv: %q uses descriptor set %d, only set 0 is supported", m.names[v.id], set)
			}
			if seen[binding] {
				return nil, errors.Newf("spirv: binding %d declared twice", binding)
			}
			seen[binding] = true

			typ, err := m.descriptorType(v)
			if err != nil {
				return nil, err
			}
			r.bindings = append(r.bindings, Binding{Binding: binding, Type: typ, Stages: stage, Name: m.names[v.id]})
		}
	}
	return r, nil
}

type reflection struct {
	stage         vk.ShaderStageFlagBits
	localSize     [3]uint32
	bindings      []Binding
	pushConstants *PushConstantRange
}
