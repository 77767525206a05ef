package shader

import (
	"encoding/binary"
	"strings"
	"testing"

	vk "github.com/goki/vulkan"
)

// asm assembles a SPIR-V word stream for reflection tests.
type asm struct {
	words []uint32
}

func newAsm() *asm {
	return &asm{words: []uint32{spirvMagic, 0x00010600, 0, 100, 0}}
}

func (a *asm) op(opcode uint32, operands ...uint32) *asm {
	a.words = append(a.words, uint32(len(operands)+1)<<16|opcode)
	a.words = append(a.words, operands...)
	return a
}

func str(s string) []uint32 {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}

func (a *asm) bytes() []byte {
	out := make([]byte, len(a.words)*4)
	for i, w := range a.words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// cullModule is a compute module with a storage buffer, a combined image sampler, a storage image, a uniform
// buffer, and a push constant block of 112 bytes.
func cullModule(entry string) *asm {
	a := newAsm()
	a.op(opEntryPoint, append([]uint32{executionModelGLCompute, 1}, str(entry)...)...)
	a.op(opExecutionMode, 1, executionModeLocalSize, 32, 1, 1)
	a.op(opName, append([]uint32{9}, str("draws")...)...)
	a.op(opDecorate, 7, decorationBlock)
	a.op(opMemberDecorate, 7, 0, decorationOffset, 0)
	a.op(opDecorate, 9, decorationDescriptorSet, 0)
	a.op(opDecorate, 9, decorationBinding, 0)
	a.op(opDecorate, 13, decorationDescriptorSet, 0)
	a.op(opDecorate, 13, decorationBinding, 1)
	a.op(opDecorate, 19, decorationBinding, 3)
	a.op(opDecorate, 22, decorationBinding, 2)
	a.op(opDecorate, 20, decorationBlock)
	a.op(opDecorate, 14, decorationBlock)
	a.op(opMemberDecorate, 14, 0, decorationOffset, 0)
	a.op(opMemberDecorate, 14, 1, decorationOffset, 16)
	a.op(opMemberDecorate, 14, 2, decorationOffset, 32)
	a.op(opMemberDecorate, 14, 2, decorationMatrixStride, 16)
	a.op(opMemberDecorate, 14, 3, decorationOffset, 96)
	a.op(opDecorate, 23, decorationArrayStride, 4)

	a.op(opTypeFloat, 2, 32)
	a.op(opTypeVector, 3, 2, 4)
	a.op(opTypeMatrix, 4, 3, 4)
	a.op(opTypeInt, 5, 32, 0)
	a.op(opConstant, 5, 24, 4)
	a.op(opTypeRuntimeArray, 6, 5)
	a.op(opTypeStruct, 7, 6)
	a.op(opTypePointer, 8, storageClassStorageBuffer, 7)
	a.op(opVariable, 8, 9, storageClassStorageBuffer)
	a.op(opTypeImage, 10, 2, 1, 0, 0, 0, 1, 0)
	a.op(opTypeSampledImage, 11, 10)
	a.op(opTypePointer, 12, storageClassUniformConstant, 11)
	a.op(opVariable, 12, 13, storageClassUniformConstant)
	a.op(opTypeArray, 23, 5, 24)
	a.op(opTypeStruct, 14, 2, 3, 4, 23)
	a.op(opTypePointer, 15, storageClassPushConstant, 14)
	a.op(opVariable, 15, 16, storageClassPushConstant)
	a.op(opTypeImage, 17, 2, 1, 0, 0, 0, 2, 1)
	a.op(opTypePointer, 18, storageClassUniformConstant, 17)
	a.op(opVariable, 18, 19, storageClassUniformConstant)
	a.op(opTypeStruct, 20, 3)
	a.op(opTypePointer, 21, storageClassUniform, 20)
	a.op(opVariable, 21, 22, storageClassUniform)
	return a
}

func TestParseReflectsComputeInterface(t *testing.T) {
	s, err := Parse("cull", cullModule("main").bytes(), "main")
	if err != nil {
		t.Fatal(err)
	}
	if s.Stage() != vk.ShaderStageComputeBit {
		t.Fatalf("stage = %v, want compute", s.Stage())
	}
	if s.LocalSize() != [3]uint32{32, 1, 1} {
		t.Fatalf("local size = %v", s.LocalSize())
	}

	want := []struct {
		binding uint32
		typ     vk.DescriptorType
	}{
		{0, vk.DescriptorTypeStorageBuffer},
		{1, vk.DescriptorTypeCombinedImageSampler},
		{2, vk.DescriptorTypeUniformBuffer},
		{3, vk.DescriptorTypeStorageImage},
	}
	got := s.Bindings()
	if len(got) != len(want) {
		t.Fatalf("got %d bindings, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Binding != w.binding || got[i].Type != w.typ {
			t.Errorf("binding %d = {%d %v}, want {%d %v}", i, got[i].Binding, got[i].Type, w.binding, w.typ)
		}
		if got[i].Stages != vk.ShaderStageComputeBit {
			t.Errorf("binding %d stages = %v", i, got[i].Stages)
		}
	}
	if got[0].Name != "draws" {
		t.Errorf("binding 0 name = %q", got[0].Name)
	}

	pc := s.PushConstants()
	if pc == nil {
		t.Fatal("missing push constants")
	}
	if pc.Size != 112 || pc.Offset != 0 {
		t.Fatalf("push constants = %+v, want size 112", *pc)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name  string
		code  func() []byte
		entry string
		want  string
	}{
		{"short", func() []byte { return []byte{3, 2, 35, 7} }, "main", "header"},
		{"unaligned", func() []byte { return make([]byte, 21) }, "main", "multiple of 4"},
		{"magic", func() []byte { b := newAsm().bytes(); b[0] = 0; return b }, "main", "magic"},
		{"entry name", func() []byte { return cullModule("cull").bytes() }, "main", "entry point"},
		{"no entry", func() []byte { return newAsm().bytes() }, "main", "exactly one"},
		{"two entries", func() []byte {
			a := cullModule("main")
			a.op(opEntryPoint, append([]uint32{executionModelVertex, 30}, str("main")...)...)
			return a.bytes()
		}, "main", "exactly one"},
		{"second set", func() []byte {
			a := cullModule("main")
			a.op(opDecorate, 19, decorationDescriptorSet, 1)
			return a.bytes()
		}, "main", "descriptor set 1"},
		{"second push block", func() []byte {
			a := cullModule("main")
			a.op(opVariable, 15, 40, storageClassPushConstant)
			return a.bytes()
		}, "main", "push constant"},
		{"truncated instruction", func() []byte {
			a := newAsm()
			a.words = append(a.words, 9<<16|opName, 1)
			return a.bytes()
		}, "main", "malformed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad", tt.code(), tt.entry)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseMeshStage(t *testing.T) {
	a := newAsm()
	a.op(opEntryPoint, append([]uint32{executionModelMeshEXT, 1}, str("main")...)...)
	a.op(opExecutionMode, 1, executionModeLocalSize, 64, 1, 1)
	s, err := Parse("meshlet", a.bytes(), "main")
	if err != nil {
		t.Fatal(err)
	}
	if s.Stage() != StageMesh || s.LocalSize() != [3]uint32{64, 1, 1} {
		t.Fatalf("stage %v local size %v", s.Stage(), s.LocalSize())
	}
	if s.PushConstants() != nil || len(s.Bindings()) != 0 {
		t.Fatal("mesh module without resources reflected resources")
	}
}

func TestParseFragmentHasNoLocalSize(t *testing.T) {
	a := newAsm()
	a.op(opEntryPoint, append([]uint32{executionModelFragment, 1}, str("main")...)...)
	s, err := Parse("frag", a.bytes(), "main")
	if err != nil {
		t.Fatal(err)
	}
	if s.Stage() != vk.ShaderStageFragmentBit || s.LocalSize() != ([3]uint32{}) {
		t.Fatalf("stage %v local size %v", s.Stage(), s.LocalSize())
	}
}

func TestLiteralString(t *testing.T) {
	for _, s := range []string{"", "abc", "main", "longer_name"} {
		words := str(s)
		got, n := literalString(words)
		if got != s || n != len(words) {
			t.Errorf("literalString(%q) = %q, %d words; want %d", s, got, n, len(words))
		}
	}
}
