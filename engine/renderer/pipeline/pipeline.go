package pipeline

import (
	"log"
	"runtime"

	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/shader"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a graphics pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeGraphics indicates a graphics pipeline with vertex or task/mesh stages plus a fragment stage.
	PipelineTypeGraphics
)

// pipeline is the implementation of the Pipeline interface.
// It holds the native pipeline objects and the fixed-function configuration used to create them.
type pipeline struct {
	// pipelineType indicates the type of pipeline this is; compute or graphics
	pipelineType PipelineType
	// pipelineKey is the unique identifier for this pipeline, used for caching and lookups
	pipelineKey string

	// shaders are required to be set before building a pipeline.

	vertexShader, fragmentShader, computeShader, taskShader, meshShader shader.Shader

	bindings      []shader.Binding
	pushConstants *shader.PushConstantRange

	dev       device.Device
	setLayout vk.DescriptorSetLayout
	layout    vk.PipelineLayout
	template  device.DescriptorUpdateTemplate
	handle    vk.Pipeline

	// The following properties configure graphics pipelines during creation and can be set with the builder
	// options. Compute pipelines keep the defaults but do not use them.

	depthTestEnabled    bool
	depthWriteEnabled   bool
	depthCompare        vk.CompareOp
	depthBias           float32
	depthBiasSlopeScale float32
	blendEnabled        bool
	cullMode            vk.CullModeFlagBits
	topology            vk.PrimitiveTopology
	frontFace           vk.FrontFace
	writeMask           vk.ColorComponentFlagBits
	blendState          vk.PipelineColorBlendAttachmentState
	colorFormats        []vk.Format
	depthFormat         vk.Format
}

// Pipeline defines the interface for a GPU pipeline, encapsulating either a graphics pipeline (vertex or
// task/mesh stages plus fragment) or a compute pipeline. It holds the configuration required for pipeline
// creation and, once built, the push-descriptor set layout, pipeline layout, and descriptor update template.
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (graphics or compute)
	Type() PipelineType

	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader retrieves the shader attached at the given stage, or nil.
	//
	// Parameters:
	//   - stage: vertex, fragment, compute, task, or mesh
	//
	// Returns:
	//   - shader.Shader: the shader at that stage, or nil if not set
	Shader(stage vk.ShaderStageFlagBits) shader.Shader

	// Shaders returns every attached shader in stage order.
	//
	// Returns:
	//   - []shader.Shader: the attached shaders
	Shaders() []shader.Shader

	// Bindings returns the merged descriptor bindings. Valid after Build.
	//
	// Returns:
	//   - []shader.Binding: merged bindings sorted by index; slot i of EncodeBindings data is Bindings()[i]
	Bindings() []shader.Binding

	// PushConstants returns the merged push-constant range, or nil. Valid after Build.
	//
	// Returns:
	//   - *shader.PushConstantRange: the range shared by every declaring stage
	PushConstants() *shader.PushConstantRange

	// BindPoint returns the bind point for this pipeline type.
	//
	// Returns:
	//   - vk.PipelineBindPoint: graphics or compute
	BindPoint() vk.PipelineBindPoint

	// Handle returns the native pipeline, nil before Build.
	//
	// Returns:
	//   - vk.Pipeline: the pipeline handle
	Handle() vk.Pipeline

	// Layout returns the pipeline layout, nil before Build.
	//
	// Returns:
	//   - vk.PipelineLayout: the layout handle
	Layout() vk.PipelineLayout

	// Template returns the push-descriptor update template, or 0 when the pipeline has no bindings.
	//
	// Returns:
	//   - device.DescriptorUpdateTemplate: the template handle
	Template() device.DescriptorUpdateTemplate

	// DepthTestEnabled returns whether depth testing is enabled for this pipeline.
	//
	// Returns:
	//   - bool: true if depth testing is enabled, false otherwise
	DepthTestEnabled() bool

	// DepthWriteEnabled returns whether depth writing is enabled for this pipeline.
	//
	// Returns:
	//   - bool: true if depth writing is enabled, false otherwise
	DepthWriteEnabled() bool

	// DepthCompare returns the depth comparison used when depth testing is enabled.
	//
	// Returns:
	//   - vk.CompareOp: the compare op (reverse-Z pipelines use greater-or-equal)
	DepthCompare() vk.CompareOp

	// BlendEnabled returns whether blending is enabled for this pipeline.
	//
	// Returns:
	//   - bool: true if blending is enabled, false otherwise
	BlendEnabled() bool

	// CullMode returns the cull mode configured for this pipeline.
	//
	// Returns:
	//   - vk.CullModeFlagBits: the cull mode (vk.CullModeNone, vk.CullModeFrontBit, vk.CullModeBackBit)
	CullMode() vk.CullModeFlagBits

	// Topology returns the primitive topology configured for this pipeline.
	//
	// Returns:
	//   - vk.PrimitiveTopology: the primitive topology (e.g. vk.PrimitiveTopologyTriangleList)
	Topology() vk.PrimitiveTopology

	// FrontFace returns the front face winding order configured for this pipeline.
	//
	// Returns:
	//   - vk.FrontFace: the winding order (vk.FrontFaceCounterClockwise or vk.FrontFaceClockwise)
	FrontFace() vk.FrontFace

	// ColorFormats returns the color attachment formats the pipeline renders to.
	//
	// Returns:
	//   - []vk.Format: formats in attachment order
	ColorFormats() []vk.Format

	// DepthFormat returns the depth attachment format, or vk.FormatUndefined.
	//
	// Returns:
	//   - vk.Format: the depth format
	DepthFormat() vk.Format

	// Build creates the push-descriptor set layout, pipeline layout, update template, and native pipeline.
	//
	// Parameters:
	//   - dev: the device context
	//   - cache: a native pipeline cache, or nil
	//
	// Returns:
	//   - error: when the shader set is incomplete or the driver rejects an object
	Build(dev device.Device, cache vk.PipelineCache) error

	// Destroy releases every native object created by Build. Shaders are not destroyed.
	Destroy()
}

var _ Pipeline = &pipeline{}

// NewPipeline is the entry point to create a new Pipeline interface. A PipelineType must be specified and
// provided upon creation. Nothing is created on the GPU until Build.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - pipelineType: the type of pipeline to create (graphics or compute)
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:       pipelineKey,
		pipelineType:      pipelineType,
		depthTestEnabled:  true,
		depthWriteEnabled: true,
		depthCompare:      vk.CompareOpGreaterOrEqual,
		blendEnabled:      false,
		cullMode:          vk.CullModeBackBit,
		topology:          vk.PrimitiveTopologyTriangleList,
		frontFace:         vk.FrontFaceCounterClockwise,
		writeMask:         vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit,
		blendState: vk.PipelineColorBlendAttachmentState{
			SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
			DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			ColorBlendOp:        vk.BlendOpAdd,
			SrcAlphaBlendFactor: vk.BlendFactorOne,
			DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			AlphaBlendOp:        vk.BlendOpAdd,
		},
		colorFormats: []vk.Format{vk.FormatB8g8r8a8Srgb},
		depthFormat:  vk.FormatD32Sfloat,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Shader(stage vk.ShaderStageFlagBits) shader.Shader {
	switch stage {
	case vk.ShaderStageVertexBit:
		return p.vertexShader
	case vk.ShaderStageFragmentBit:
		return p.fragmentShader
	case vk.ShaderStageComputeBit:
		return p.computeShader
	case shader.StageTask:
		return p.taskShader
	case shader.StageMesh:
		return p.meshShader
	default:
		return nil
	}
}

func (p *pipeline) Shaders() []shader.Shader {
	var out []shader.Shader
	for _, s := range []shader.Shader{p.taskShader, p.meshShader, p.vertexShader, p.fragmentShader, p.computeShader} {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (p *pipeline) Bindings() []shader.Binding {
	return p.bindings
}

func (p *pipeline) PushConstants() *shader.PushConstantRange {
	return p.pushConstants
}

func (p *pipeline) BindPoint() vk.PipelineBindPoint {
	if p.pipelineType == PipelineTypeCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

func (p *pipeline) Handle() vk.Pipeline {
	return p.handle
}

func (p *pipeline) Layout() vk.PipelineLayout {
	return p.layout
}

func (p *pipeline) Template() device.DescriptorUpdateTemplate {
	return p.template
}

func (p *pipeline) DepthTestEnabled() bool {
	return p.depthTestEnabled
}

func (p *pipeline) DepthWriteEnabled() bool {
	return p.depthWriteEnabled
}

func (p *pipeline) DepthCompare() vk.CompareOp {
	return p.depthCompare
}

func (p *pipeline) BlendEnabled() bool {
	return p.blendEnabled
}

func (p *pipeline) CullMode() vk.CullModeFlagBits {
	return p.cullMode
}

func (p *pipeline) Topology() vk.PrimitiveTopology {
	return p.topology
}

func (p *pipeline) FrontFace() vk.FrontFace {
	return p.frontFace
}

func (p *pipeline) ColorFormats() []vk.Format {
	return p.colorFormats
}

func (p *pipeline) DepthFormat() vk.Format {
	return p.depthFormat
}

// validateStages checks that the attached shaders form a complete pipeline of this type.
func (p *pipeline) validateStages() error {
	switch p.pipelineType {
	case PipelineTypeCompute:
		if p.computeShader == nil {
			return errors.Newf("pipeline %s: compute pipeline without a compute shader", p.pipelineKey)
		}
		if p.vertexShader != nil || p.fragmentShader != nil || p.taskShader != nil || p.meshShader != nil {
			return errors.Newf("pipeline %s: compute pipeline with graphics stages", p.pipelineKey)
		}
	case PipelineTypeGraphics:
		if p.fragmentShader == nil {
			return errors.Newf("pipeline %s: graphics pipeline without a fragment shader", p.pipelineKey)
		}
		if (p.vertexShader == nil) == (p.meshShader == nil) {
			return errors.Newf("pipeline %s: graphics pipeline needs exactly one of a vertex or mesh shader", p.pipelineKey)
		}
		if p.taskShader != nil && p.meshShader == nil {
			return errors.Newf("pipeline %s: task shader without a mesh shader", p.pipelineKey)
		}
		if p.computeShader != nil {
			return errors.Newf("pipeline %s: graphics pipeline with a compute shader", p.pipelineKey)
		}
	}
	for _, s := range p.Shaders() {
		if want := p.Shader(s.Stage()); want != s {
			return errors.Newf("pipeline %s: shader %s is a %v shader in the wrong slot", p.pipelineKey, s.Key(), s.Stage())
		}
	}
	return nil
}

func (p *pipeline) Build(dev device.Device, cache vk.PipelineCache) error {
	if p.handle != nil {
		return nil
	}
	if err := p.validateStages(); err != nil {
		return err
	}
	p.dev = dev
	shaders := p.Shaders()
	p.bindings = MergeBindings(shaders...)
	p.pushConstants = MergePushConstants(shaders...)

	if err := p.createLayouts(); err != nil {
		p.Destroy()
		return err
	}

	var err error
	if p.pipelineType == PipelineTypeCompute {
		err = p.createCompute(cache)
	} else {
		err = p.createGraphics(cache)
	}
	if err != nil {
		p.Destroy()
		return err
	}
	log.Printf("[Pipeline] built %s (%d bindings, %d push constant bytes)", p.pipelineKey, len(p.bindings), p.pushConstantSize())
	return nil
}

func (p *pipeline) pushConstantSize() uint32 {
	if p.pushConstants == nil {
		return 0
	}
	return p.pushConstants.Size
}

func (p *pipeline) createLayouts() error {
	handle := p.dev.Handle()

	layoutBindings := make([]vk.DescriptorSetLayoutBinding, len(p.bindings))
	for i, b := range p.bindings {
		layoutBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  b.Type,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	var setLayout vk.DescriptorSetLayout
	if err := vk.Error(vk.CreateDescriptorSetLayout(handle, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		Flags:        vk.DescriptorSetLayoutCreateFlags(device.DescriptorSetLayoutCreatePushDescriptorBit),
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}, nil, &setLayout)); err != nil {
		return errors.Wrapf(err, "pipeline %s: create descriptor set layout", p.pipelineKey)
	}
	p.setLayout = setLayout

	info := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{setLayout},
	}
	if p.pushConstants != nil {
		info.PushConstantRangeCount = 1
		info.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(p.pushConstants.Stages),
			Offset:     p.pushConstants.Offset,
			Size:       p.pushConstants.Size,
		}}
	}
	var layout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(handle, &info, nil, &layout)); err != nil {
		return errors.Wrapf(err, "pipeline %s: create pipeline layout", p.pipelineKey)
	}
	p.layout = layout

	if len(p.bindings) > 0 {
		template, err := p.dev.Extensions().CreatePushDescriptorTemplate(templateEntries(p.bindings), setLayout, p.BindPoint(), layout)
		if err != nil {
			return errors.Wrapf(err, "pipeline %s", p.pipelineKey)
		}
		p.template = template
	}
	return nil
}

func stageInfo(s shader.Shader) vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  s.Stage(),
		Module: s.Module(),
		PName:  s.EntryPoint() + "\x00",
	}
}

func (p *pipeline) createCompute(cache vk.PipelineCache) error {
	pipelines := make([]vk.Pipeline, 1)
	if err := vk.Error(vk.CreateComputePipelines(p.dev.Handle(), cache, 1, []vk.ComputePipelineCreateInfo{{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  stageInfo(p.computeShader),
		Layout: p.layout,
	}}, nil, pipelines)); err != nil {
		return errors.Wrapf(err, "pipeline %s: create compute pipeline", p.pipelineKey)
	}
	p.handle = pipelines[0]
	return nil
}

func (p *pipeline) createGraphics(cache vk.PipelineCache) error {
	var pin runtime.Pinner
	defer pin.Unpin()

	var stages []vk.PipelineShaderStageCreateInfo
	for _, s := range p.Shaders() {
		stages = append(stages, stageInfo(s))
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: p.topology,
	}
	viewport := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	raster := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(p.cullMode),
		FrontFace:   p.frontFace,
		LineWidth:   1,
	}
	if p.depthBias != 0 || p.depthBiasSlopeScale != 0 {
		raster.DepthBiasEnable = vk.True
		raster.DepthBiasConstantFactor = p.depthBias
		raster.DepthBiasSlopeFactor = p.depthBiasSlopeScale
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1,
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: p.depthCompare,
	}
	if p.depthFormat != vk.FormatUndefined && p.depthTestEnabled {
		depthStencil.DepthTestEnable = vk.True
		if p.depthWriteEnabled {
			depthStencil.DepthWriteEnable = vk.True
		}
	}

	attachments := make([]vk.PipelineColorBlendAttachmentState, len(p.colorFormats))
	for i := range attachments {
		a := p.blendState
		a.ColorWriteMask = vk.ColorComponentFlags(p.writeMask)
		a.BlendEnable = vk.False
		if p.blendEnabled {
			a.BlendEnable = vk.True
		}
		attachments[i] = a
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamic := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		PNext:               device.PipelineRenderingChain(&pin, p.colorFormats, p.depthFormat),
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewport,
		PRasterizationState: &raster,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamic,
		Layout:              p.layout,
	}
	if p.meshShader == nil {
		info.PVertexInputState = &vertexInput
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := vk.Error(vk.CreateGraphicsPipelines(p.dev.Handle(), cache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)); err != nil {
		return errors.Wrapf(err, "pipeline %s: create graphics pipeline", p.pipelineKey)
	}
	p.handle = pipelines[0]
	return nil
}

func (p *pipeline) Destroy() {
	if p.dev == nil {
		return
	}
	handle := p.dev.Handle()
	if p.handle != nil {
		vk.DestroyPipeline(handle, p.handle, nil)
		p.handle = nil
	}
	if p.template != 0 {
		p.dev.Extensions().DestroyDescriptorUpdateTemplate(p.template)
		p.template = 0
	}
	if p.layout != nil {
		vk.DestroyPipelineLayout(handle, p.layout, nil)
		p.layout = nil
	}
	if p.setLayout != nil {
		vk.DestroyDescriptorSetLayout(handle, p.setLayout, nil)
		p.setLayout = nil
	}
}
