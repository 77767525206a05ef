package device

import "unsafe"

// The structs in this file mirror Vulkan 1.1+ and extension structures byte for byte on 64-bit targets. They are
// only ever handed to the driver through pinned pointers, either as pNext chain links or as arguments to entry
// points resolved by name.

const (
	structureTypeVulkan11Features                   = 49
	structureTypeVulkan12Features                   = 51
	structureTypeVulkan13Features                   = 53
	structureTypeRenderingInfo                      = 1000044000
	structureTypeRenderingAttachmentInfo            = 1000044001
	structureTypePipelineRenderingCreateInfo        = 1000044002
	structureTypePhysicalDeviceFeatures2            = 1000059000
	structureTypeDescriptorUpdateTemplateCreateInfo = 1000085000
	structureTypeSamplerReductionModeCreateInfo     = 1000130001
	structureTypeMeshShaderFeaturesEXT              = 1000328000
)

// Descriptor set layout and shader stage bits that predate or postdate the binding's enums.
const (
	DescriptorSetLayoutCreatePushDescriptorBit  = 0x00000001
	ShaderStageTaskBit                          = 0x00000040
	ShaderStageMeshBit                          = 0x00000080
	PipelineStageTaskShaderBit                  = 0x00080000
	PipelineStageMeshShaderBit                  = 0x00100000
	descriptorUpdateTemplateTypePushDescriptors = 1
)

type renderingAttachmentInfo struct {
	sType              uint32
	pNext              unsafe.Pointer
	imageView          uint64
	imageLayout        uint32
	resolveMode        uint32
	resolveImageView   uint64
	resolveImageLayout uint32
	loadOp             uint32
	storeOp            uint32
	clearValue         [4]uint32
}

type renderingInfo struct {
	sType                uint32
	pNext                unsafe.Pointer
	flags                uint32
	renderAreaX          int32
	renderAreaY          int32
	renderAreaWidth      uint32
	renderAreaHeight     uint32
	layerCount           uint32
	viewMask             uint32
	colorAttachmentCount uint32
	pColorAttachments    *renderingAttachmentInfo
	pDepthAttachment     *renderingAttachmentInfo
	pStencilAttachment   *renderingAttachmentInfo
}

type pipelineRenderingCreateInfo struct {
	sType                   uint32
	pNext                   unsafe.Pointer
	viewMask                uint32
	colorAttachmentCount    uint32
	pColorAttachmentFormats unsafe.Pointer
	depthAttachmentFormat   uint32
	stencilAttachmentFormat uint32
}

type descriptorUpdateTemplateEntry struct {
	dstBinding      uint32
	dstArrayElement uint32
	descriptorCount uint32
	descriptorType  uint32
	offset          uintptr
	stride          uintptr
}

type descriptorUpdateTemplateCreateInfo struct {
	sType                      uint32
	pNext                      unsafe.Pointer
	flags                      uint32
	descriptorUpdateEntryCount uint32
	pDescriptorUpdateEntries   *descriptorUpdateTemplateEntry
	templateType               uint32
	descriptorSetLayout        uint64
	pipelineBindPoint          uint32
	pipelineLayout             uint64
	set                        uint32
}

type samplerReductionModeCreateInfo struct {
	sType         uint32
	pNext         unsafe.Pointer
	reductionMode uint32
}

type physicalDeviceFeatures2 struct {
	sType    uint32
	pNext    unsafe.Pointer
	features [55]uint32
}

type vulkan11Features struct {
	sType    uint32
	pNext    unsafe.Pointer
	features [12]uint32
}

type vulkan12Features struct {
	sType    uint32
	pNext    unsafe.Pointer
	features [47]uint32
}

type vulkan13Features struct {
	sType    uint32
	pNext    unsafe.Pointer
	features [15]uint32
}

type meshShaderFeatures struct {
	sType    uint32
	pNext    unsafe.Pointer
	features [5]uint32
}

// Feature indices into the boolean arrays above, in declaration order of the C structs.
const (
	feature10MultiDrawIndirect       = 9
	feature10SamplerAnisotropy       = 19
	feature10PipelineStatisticsQuery = 24
	feature10ShaderInt16             = 41

	feature11StorageBuffer16BitAccess = 0
	feature11ShaderDrawParameters     = 11

	feature12DrawIndirectCount       = 1
	feature12StorageBuffer8BitAccess = 2
	feature12ShaderFloat16           = 7
	feature12ShaderInt8              = 8
	feature12SamplerFilterMinmax     = 30

	feature13Synchronization2 = 9
	feature13DynamicRendering = 12
	feature13Maintenance4     = 14

	featureMeshTaskShader = 0
	featureMeshMeshShader = 1
)

// handleBits converts a non-dispatchable handle pointer to its 64-bit wire value.
func handleBits(h unsafe.Pointer) uint64 {
	return uint64(uintptr(h))
}
