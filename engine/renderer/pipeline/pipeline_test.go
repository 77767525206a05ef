package pipeline

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/shader"
	vk "github.com/goki/vulkan"
)

// stubShader is a reflected shader without SPIR-V.
type stubShader struct {
	shader.Shader
	key      string
	stage    vk.ShaderStageFlagBits
	bindings []shader.Binding
	push     *shader.PushConstantRange
}

func (s *stubShader) Key() string                              { return s.key }
func (s *stubShader) Stage() vk.ShaderStageFlagBits            { return s.stage }
func (s *stubShader) Bindings() []shader.Binding               { return s.bindings }
func (s *stubShader) PushConstants() *shader.PushConstantRange { return s.push }

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestMergeBindingsUnionsStages(t *testing.T) {
	vs := &stubShader{key: "vs", stage: vk.ShaderStageVertexBit, bindings: []shader.Binding{
		{Binding: 2, Type: vk.DescriptorTypeStorageBuffer, Stages: vk.ShaderStageVertexBit},
		{Binding: 0, Type: vk.DescriptorTypeStorageBuffer, Stages: vk.ShaderStageVertexBit},
	}}
	fs := &stubShader{key: "fs", stage: vk.ShaderStageFragmentBit, bindings: []shader.Binding{
		{Binding: 1, Type: vk.DescriptorTypeCombinedImageSampler, Stages: vk.ShaderStageFragmentBit},
		{Binding: 0, Type: vk.DescriptorTypeStorageBuffer, Stages: vk.ShaderStageFragmentBit},
	}}

	got := MergeBindings(vs, nil, fs)
	if len(got) != 3 {
		t.Fatalf("merged %d bindings, want 3", len(got))
	}
	for i, b := range got {
		if b.Binding != uint32(i) {
			t.Fatalf("binding %d out of order: %+v", i, got)
		}
	}
	if got[0].Stages != vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit {
		t.Errorf("binding 0 stages = %v, want vertex|fragment", got[0].Stages)
	}
	if got[1].Stages != vk.ShaderStageFragmentBit || got[2].Stages != vk.ShaderStageVertexBit {
		t.Errorf("single-stage bindings changed stages: %+v", got)
	}
}

func TestMergeBindingsTypeConflictPanics(t *testing.T) {
	a := &stubShader{key: "a", bindings: []shader.Binding{{Binding: 0, Type: vk.DescriptorTypeStorageBuffer}}}
	b := &stubShader{key: "b", bindings: []shader.Binding{{Binding: 0, Type: vk.DescriptorTypeStorageImage}}}
	expectPanic(t, "type conflict", func() { MergeBindings(a, b) })
}

func TestMergePushConstants(t *testing.T) {
	ms := &stubShader{key: "ms", push: &shader.PushConstantRange{Stages: shader.StageMesh, Size: 64}}
	ts := &stubShader{key: "ts", push: &shader.PushConstantRange{Stages: shader.StageTask, Size: 64}}
	fs := &stubShader{key: "fs"}

	got := MergePushConstants(ms, fs, ts)
	if got == nil || got.Size != 64 || got.Offset != 0 {
		t.Fatalf("merged = %+v", got)
	}
	if got.Stages != shader.StageMesh|shader.StageTask {
		t.Fatalf("stages = %v", got.Stages)
	}
	if ms.push.Stages != shader.StageMesh {
		t.Fatal("merge mutated a shader's range")
	}
	if MergePushConstants(fs) != nil {
		t.Fatal("no declaring stage should merge to nil")
	}

	bad := &stubShader{key: "bad", push: &shader.PushConstantRange{Stages: vk.ShaderStageFragmentBit, Size: 32}}
	expectPanic(t, "size mismatch", func() { MergePushConstants(ms, bad) })
}

func TestEncodeBindingsLayout(t *testing.T) {
	if unsafe.Sizeof(uintptr(0)) != 8 {
		t.Skip("descriptor info layout targets 64-bit")
	}
	buf := vk.Buffer(unsafe.Pointer(uintptr(0x1000)))
	view := vk.ImageView(unsafe.Pointer(uintptr(0x2000)))
	sampler := vk.Sampler(unsafe.Pointer(uintptr(0x3000)))

	data := EncodeBindings([]ResourceBinding{
		BufferBinding(buf, 64, 0),
		ImageBinding(view, sampler, vk.ImageLayoutShaderReadOnlyOptimal),
		BufferBinding(buf, 0, 128),
	})
	if len(data) != 3*DescriptorStride {
		t.Fatalf("len = %d, want %d", len(data), 3*DescriptorStride)
	}
	u64 := func(off int) uint64 { return binary.NativeEndian.Uint64(data[off:]) }

	if u64(0) != 0x1000 || u64(8) != 64 || u64(16) != vk.WholeSize {
		t.Errorf("slot 0 = %#x %d %#x", u64(0), u64(8), u64(16))
	}
	if u64(24) != 0x3000 || u64(32) != 0x2000 || binary.NativeEndian.Uint32(data[40:]) != uint32(vk.ImageLayoutShaderReadOnlyOptimal) {
		t.Errorf("slot 1 = %#x %#x", u64(24), u64(32))
	}
	if u64(48) != 0x1000 || u64(56) != 0 || u64(64) != 128 {
		t.Errorf("slot 2 = %#x %d %d", u64(48), u64(56), u64(64))
	}
}

func TestEncodeBindingsEmptySlotPanics(t *testing.T) {
	expectPanic(t, "empty slot", func() { EncodeBindings([]ResourceBinding{{}}) })
}

func TestTemplateEntriesArePositional(t *testing.T) {
	entries := templateEntries([]shader.Binding{
		{Binding: 0, Type: vk.DescriptorTypeStorageBuffer},
		{Binding: 3, Type: vk.DescriptorTypeCombinedImageSampler},
	})
	if entries[1].Binding != 3 || entries[1].Offset != DescriptorStride || entries[1].Stride != DescriptorStride {
		t.Fatalf("entry 1 = %+v", entries[1])
	}
	if entries[1].Type != vk.DescriptorTypeCombinedImageSampler {
		t.Fatalf("entry 1 type = %v", entries[1].Type)
	}
}

func TestValidateStages(t *testing.T) {
	vs := &stubShader{key: "vs", stage: vk.ShaderStageVertexBit}
	fs := &stubShader{key: "fs", stage: vk.ShaderStageFragmentBit}
	ms := &stubShader{key: "ms", stage: shader.StageMesh}
	ts := &stubShader{key: "ts", stage: shader.StageTask}
	cs := &stubShader{key: "cs", stage: vk.ShaderStageComputeBit}

	tests := []struct {
		name string
		typ  PipelineType
		opts []PipelineBuilderOption
		ok   bool
	}{
		{"vertex+fragment", PipelineTypeGraphics, []PipelineBuilderOption{WithVertexShader(vs), WithFragmentShader(fs)}, true},
		{"task+mesh+fragment", PipelineTypeGraphics, []PipelineBuilderOption{WithTaskShader(ts), WithMeshShader(ms), WithFragmentShader(fs)}, true},
		{"mesh+fragment", PipelineTypeGraphics, []PipelineBuilderOption{WithMeshShader(ms), WithFragmentShader(fs)}, true},
		{"no fragment", PipelineTypeGraphics, []PipelineBuilderOption{WithVertexShader(vs)}, false},
		{"vertex and mesh", PipelineTypeGraphics, []PipelineBuilderOption{WithVertexShader(vs), WithMeshShader(ms), WithFragmentShader(fs)}, false},
		{"task without mesh", PipelineTypeGraphics, []PipelineBuilderOption{WithVertexShader(vs), WithTaskShader(ts), WithFragmentShader(fs)}, false},
		{"wrong slot", PipelineTypeGraphics, []PipelineBuilderOption{WithVertexShader(fs), WithFragmentShader(vs)}, false},
		{"compute", PipelineTypeCompute, []PipelineBuilderOption{WithComputeShader(cs)}, true},
		{"compute missing", PipelineTypeCompute, nil, false},
		{"compute with fragment", PipelineTypeCompute, []PipelineBuilderOption{WithComputeShader(cs), WithFragmentShader(fs)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(tt.name, tt.typ, tt.opts...).(*pipeline)
			err := p.validateStages()
			if (err == nil) != tt.ok {
				t.Fatalf("validateStages() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestNewPipelineDefaults(t *testing.T) {
	p := NewPipeline("mesh", PipelineTypeGraphics)
	if p.DepthCompare() != vk.CompareOpGreaterOrEqual {
		t.Errorf("depth compare = %v, want greater-or-equal for reverse-Z", p.DepthCompare())
	}
	if p.BindPoint() != vk.PipelineBindPointGraphics {
		t.Errorf("bind point = %v", p.BindPoint())
	}
	if NewPipeline("cull", PipelineTypeCompute).BindPoint() != vk.PipelineBindPointCompute {
		t.Error("compute pipeline bind point")
	}
	o := NewPipeline("overlay", PipelineTypeGraphics, WithDepthFormat(vk.FormatUndefined), WithBlendEnabled(true), WithCullMode(vk.CullModeNone))
	if o.DepthFormat() != vk.FormatUndefined || !o.BlendEnabled() || o.CullMode() != vk.CullModeNone {
		t.Error("options not applied")
	}
}

func TestBuilderOptions(t *testing.T) {
	blend := vk.PipelineColorBlendAttachmentState{
		SrcColorBlendFactor: vk.BlendFactorOne,
		DstColorBlendFactor: vk.BlendFactorOne,
		ColorBlendOp:        vk.BlendOpAdd,
	}
	p := NewPipeline("lines", PipelineTypeGraphics,
		WithDepthCompare(vk.CompareOpLess),
		WithDepthBias(1.5, 2),
		WithTopology(vk.PrimitiveTopologyLineList),
		WithFrontFace(vk.FrontFaceClockwise),
		WithWriteMask(vk.ColorComponentRBit),
		WithBlendState(blend),
	).(*pipeline)

	if p.DepthCompare() != vk.CompareOpLess {
		t.Errorf("depth compare = %v", p.DepthCompare())
	}
	if p.depthBias != 1.5 || p.depthBiasSlopeScale != 2 {
		t.Errorf("depth bias = %v, %v", p.depthBias, p.depthBiasSlopeScale)
	}
	if p.topology != vk.PrimitiveTopologyLineList || p.frontFace != vk.FrontFaceClockwise {
		t.Errorf("topology %v front face %v", p.topology, p.frontFace)
	}
	if p.writeMask != vk.ColorComponentRBit {
		t.Errorf("write mask = %v", p.writeMask)
	}
	if p.blendState.SrcColorBlendFactor != vk.BlendFactorOne || p.blendState.DstColorBlendFactor != vk.BlendFactorOne {
		t.Errorf("blend state = %+v", p.blendState)
	}
}
