package device

import (
	"runtime"
	"unsafe"
)

// featureChain is the pinned pNext chain enabling every feature the renderer relies on.
type featureChain struct {
	features2 *physicalDeviceFeatures2
	v11       *vulkan11Features
	v12       *vulkan12Features
	v13       *vulkan13Features
	mesh      *meshShaderFeatures
}

// newFeatureChain links features2 -> 1.1 -> 1.2 -> 1.3 [-> mesh shader] and pins every link.
func newFeatureChain(pin *runtime.Pinner, meshShading bool) *featureChain {
	c := &featureChain{
		features2: &physicalDeviceFeatures2{sType: structureTypePhysicalDeviceFeatures2},
		v11:       &vulkan11Features{sType: structureTypeVulkan11Features},
		v12:       &vulkan12Features{sType: structureTypeVulkan12Features},
		v13:       &vulkan13Features{sType: structureTypeVulkan13Features},
	}

	c.features2.features[feature10MultiDrawIndirect] = 1
	c.features2.features[feature10SamplerAnisotropy] = 1
	c.features2.features[feature10PipelineStatisticsQuery] = 1
	c.features2.features[feature10ShaderInt16] = 1

	c.v11.features[feature11StorageBuffer16BitAccess] = 1
	c.v11.features[feature11ShaderDrawParameters] = 1

	c.v12.features[feature12DrawIndirectCount] = 1
	c.v12.features[feature12StorageBuffer8BitAccess] = 1
	c.v12.features[feature12ShaderFloat16] = 1
	c.v12.features[feature12ShaderInt8] = 1
	c.v12.features[feature12SamplerFilterMinmax] = 1

	c.v13.features[feature13Synchronization2] = 1
	c.v13.features[feature13DynamicRendering] = 1
	c.v13.features[feature13Maintenance4] = 1

	c.features2.pNext = unsafe.Pointer(c.v11)
	c.v11.pNext = unsafe.Pointer(c.v12)
	c.v12.pNext = unsafe.Pointer(c.v13)

	if meshShading {
		c.mesh = &meshShaderFeatures{sType: structureTypeMeshShaderFeaturesEXT}
		c.mesh.features[featureMeshTaskShader] = 1
		c.mesh.features[featureMeshMeshShader] = 1
		c.v13.pNext = unsafe.Pointer(c.mesh)
		pin.Pin(c.mesh)
	}

	pin.Pin(c.features2)
	pin.Pin(c.v11)
	pin.Pin(c.v12)
	pin.Pin(c.v13)
	return c
}

// head returns the first link, for DeviceCreateInfo.PNext.
func (c *featureChain) head() unsafe.Pointer {
	return unsafe.Pointer(c.features2)
}
