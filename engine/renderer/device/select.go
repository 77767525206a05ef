package device

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// Device extensions every adapter must expose.
var requiredDeviceExtensions = []string{
	"VK_KHR_swapchain",
	"VK_KHR_push_descriptor",
}

const meshShaderExtension = "VK_EXT_mesh_shader"

// adapterInfo is what adapter selection needs to know about one physical device.
type adapterInfo struct {
	name        string
	apiVersion  uint32
	extensions  map[string]bool
	queueFamily int // graphics+present capable family, -1 if none
	discrete    bool
}

func makeVersion(major, minor, patch uint32) uint32 {
	return major<<22 | minor<<12 | patch
}

// suitable reports whether the adapter meets the renderer's requirements, with a reason when it does not.
func (a adapterInfo) suitable(minAPI uint32) (bool, string) {
	if a.apiVersion < minAPI {
		return false, fmt.Sprintf("api version %d.%d is below 1.3", a.apiVersion>>22, (a.apiVersion>>12)&0x3ff)
	}
	if a.queueFamily < 0 {
		return false, "no queue family supports both graphics and present"
	}
	for _, ext := range requiredDeviceExtensions {
		if !a.extensions[ext] {
			return false, "missing extension " + ext
		}
	}
	return true, ""
}

// selectAdapter returns the index of the first suitable adapter in enumeration order, preferring a discrete GPU
// when more than one qualifies. It returns -1 and the rejection reasons when none qualify.
func selectAdapter(adapters []adapterInfo) (int, []string) {
	minAPI := makeVersion(1, 3, 0)
	chosen := -1
	var reasons []string
	for i, a := range adapters {
		ok, why := a.suitable(minAPI)
		if !ok {
			reasons = append(reasons, a.name+": "+why)
			continue
		}
		if chosen < 0 || (a.discrete && !adapters[chosen].discrete) {
			chosen = i
		}
	}
	return chosen, reasons
}

// describeAdapter gathers adapterInfo for a physical device. A nil surface means headless: any graphics family
// qualifies.
func describeAdapter(gpu vk.PhysicalDevice, surface vk.Surface, headless bool) adapterInfo {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(gpu, &props)
	props.Deref()

	info := adapterInfo{
		name:        vk.ToString(props.DeviceName[:]),
		apiVersion:  props.ApiVersion,
		extensions:  deviceExtensions(gpu),
		queueFamily: -1,
		discrete:    props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu,
	}

	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, families)
	for i := range families {
		families[i].Deref()
		if vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit == 0 {
			continue
		}
		if !headless {
			var present vk.Bool32
			vk.GetPhysicalDeviceSurfaceSupport(gpu, uint32(i), surface, &present)
			if !present.B() {
				continue
			}
		}
		info.queueFamily = i
		break
	}
	return info
}

func deviceExtensions(gpu vk.PhysicalDevice) map[string]bool {
	var count uint32
	vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil)
	props := make([]vk.ExtensionProperties, count)
	vk.EnumerateDeviceExtensionProperties(gpu, "", &count, props)

	out := make(map[string]bool, count)
	for i := range props {
		props[i].Deref()
		out[vk.ToString(props[i].ExtensionName[:])] = true
	}
	return out
}
