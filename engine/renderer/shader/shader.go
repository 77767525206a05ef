package shader

import (
	"os"
	"slices"

	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// Stage bits for task and mesh shaders.
const (
	StageTask = vk.ShaderStageFlagBits(device.ShaderStageTaskBit)
	StageMesh = vk.ShaderStageFlagBits(device.ShaderStageMeshBit)
)

// Binding is one descriptor binding of set 0.
type Binding struct {
	// Binding is the binding index.
	Binding uint32
	// Type is the descriptor type the shader declares.
	Type vk.DescriptorType
	// Stages is the set of stages that access the binding.
	Stages vk.ShaderStageFlagBits
	// Name is the debug name of the variable, if the module kept names.
	Name string
}

// PushConstantRange is the push-constant block a shader declares.
type PushConstantRange struct {
	Stages vk.ShaderStageFlagBits
	Offset uint32
	Size   uint32
}

// shader is the implementation of the Shader interface.
// It holds the SPIR-V code and the reflected interface needed for pipeline creation.
type shader struct {
	key        string
	entryPoint string
	code       []uint32
	stage      vk.ShaderStageFlagBits
	bindings   []Binding
	push       *PushConstantRange
	localSize  [3]uint32
	module     vk.ShaderModule
	dev        vk.Device
}

// Shader defines the interface for a loaded and reflected SPIR-V shader. It exposes the shader's key, stage,
// entry point, descriptor bindings, push-constant range, and workgroup size needed for pipeline creation.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for caching and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Stage returns the pipeline stage of the shader's entry point.
	//
	// Returns:
	//   - vk.ShaderStageFlagBits: vertex, fragment, compute, task, or mesh
	Stage() vk.ShaderStageFlagBits

	// EntryPoint returns the entry point name for this shader.
	//
	// Returns:
	//   - string: the entry point name (e.g. "main")
	EntryPoint() string

	// Code returns the SPIR-V words.
	//
	// Returns:
	//   - []uint32: the shader binary
	Code() []uint32

	// Bindings returns the descriptor bindings of set 0, sorted by binding index.
	//
	// Returns:
	//   - []Binding: the reflected bindings
	Bindings() []Binding

	// PushConstants returns the push-constant range, or nil when the shader declares none.
	//
	// Returns:
	//   - *PushConstantRange: the reflected range
	PushConstants() *PushConstantRange

	// LocalSize returns the workgroup size of compute, task and mesh shaders, and [0, 0, 0] for other stages.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	LocalSize() [3]uint32

	// Module returns the native shader module, or nil before CreateModule.
	//
	// Returns:
	//   - vk.ShaderModule: the module handle
	Module() vk.ShaderModule

	// CreateModule creates the native shader module on dev. Calling it again is a no-op.
	//
	// Parameters:
	//   - dev: the logical device
	//
	// Returns:
	//   - error: when the driver rejects the module
	CreateModule(dev vk.Device) error

	// Destroy releases the native module.
	Destroy()
}

var _ Shader = &shader{}

// NewShader loads and reflects a SPIR-V binary and creates its module. It panics when the file cannot be read,
// reflection fails, or the driver rejects the module: a shader that cannot load leaves nothing to render.
//
// Parameters:
//   - dev: the logical device to create the module on
//   - key: a unique identifier for the shader, used for caching and lookups
//   - path: the file path of the SPIR-V binary
//   - entryPoint: the expected entry point name
//
// Returns:
//   - Shader: the loaded shader
func NewShader(dev vk.Device, key, path, entryPoint string) Shader {
	if path == "" {
		panic(errors.AssertionFailedf("shader %s: empty source path", key))
	}
	code, err := os.ReadFile(path)
	if err != nil {
		panic(errors.Wrapf(err, "shader %s: read %q", key, path))
	}
	s, err := Parse(key, code, entryPoint)
	if err != nil {
		panic(errors.Wrapf(err, "shader %s: reflect %q", key, path))
	}
	if err := s.CreateModule(dev); err != nil {
		panic(errors.Wrapf(err, "shader %s", key))
	}
	return s
}

// Parse reflects a SPIR-V binary without touching the GPU.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - code: the SPIR-V bytes, little-endian
//   - entryPoint: the expected entry point name
//
// Returns:
//   - Shader: the reflected shader, without a module
//   - error: when the binary is malformed or violates a reflection precondition
func Parse(key string, code []byte, entryPoint string) (Shader, error) {
	words, err := decodeWords(code)
	if err != nil {
		return nil, err
	}
	m, err := parseModule(words)
	if err != nil {
		return nil, err
	}
	r, err := m.reflect(entryPoint)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(r.bindings, func(a, b Binding) int {
		return int(a.Binding) - int(b.Binding)
	})

	s := &shader{
		key:        key,
		entryPoint: entryPoint,
		code:       words,
		stage:      r.stage,
		bindings:   r.bindings,
		push:       r.pushConstants,
	}
	switch r.stage {
	case vk.ShaderStageComputeBit, StageTask, StageMesh:
		s.localSize = r.localSize
		if s.localSize == ([3]uint32{}) {
			s.localSize = [3]uint32{1, 1, 1}
		}
	}
	return s, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Stage() vk.ShaderStageFlagBits {
	return s.stage
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) Code() []uint32 {
	return s.code
}

func (s *shader) Bindings() []Binding {
	return s.bindings
}

func (s *shader) PushConstants() *PushConstantRange {
	return s.push
}

func (s *shader) LocalSize() [3]uint32 {
	return s.localSize
}

func (s *shader) Module() vk.ShaderModule {
	return s.module
}

func (s *shader) CreateModule(dev vk.Device) error {
	if s.module != nil {
		return nil
	}
	var module vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(dev, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(s.code) * 4),
		PCode:    s.code,
	}, nil, &module)); err != nil {
		return errors.Wrap(err, "create shader module")
	}
	s.module = module
	s.dev = dev
	return nil
}

func (s *shader) Destroy() {
	if s.module != nil {
		vk.DestroyShaderModule(s.dev, s.module, nil)
		s.module = nil
	}
}
