package device

import (
	"math"
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/ebitengine/purego"
	vk "github.com/goki/vulkan"
)

// DescriptorUpdateTemplate is a VkDescriptorUpdateTemplate handle.
type DescriptorUpdateTemplate uint64

// DescriptorUpdateTemplateEntry describes where one binding's descriptor lives in push-descriptor data.
type DescriptorUpdateTemplateEntry struct {
	Binding uint32
	Type    vk.DescriptorType
	Offset  uintptr
	Stride  uintptr
}

// RenderingAttachment is one attachment of a dynamic rendering scope.
type RenderingAttachment struct {
	View    vk.ImageView
	Layout  vk.ImageLayout
	LoadOp  vk.AttachmentLoadOp
	StoreOp vk.AttachmentStoreOp
	// Clear holds RGBA for color attachments; depth attachments use Clear[0] as depth.
	Clear [4]float32
}

// RenderArea is the pixel rectangle a rendering scope covers.
type RenderArea struct {
	X, Y          int32
	Width, Height uint32
}

// Extensions calls device entry points that the binding does not wrap: dynamic rendering, push-descriptor update
// templates, indirect-count draws and mesh-task draws. Entry points are resolved once with vkGetDeviceProcAddr.
type Extensions struct {
	device vk.Device

	cmdBeginRendering            uintptr
	cmdEndRendering              uintptr
	createUpdateTemplate         uintptr
	destroyUpdateTemplate        uintptr
	cmdPushDescriptorSetTemplate uintptr
	cmdDrawIndexedIndirectCount  uintptr
	cmdDrawMeshTasks             uintptr
	cmdDrawMeshTasksIndirectCnt  uintptr
}

func loadExtensions(dev vk.Device, meshShading bool) (*Extensions, error) {
	lib, err := openLoader()
	if err != nil {
		return nil, err
	}
	getDeviceProcAddr, err := loaderSymbol(lib, "vkGetDeviceProcAddr")
	if err != nil {
		return nil, errors.Wrap(err, "resolve vkGetDeviceProcAddr")
	}

	resolve := func(name string) uintptr {
		cname := append([]byte(name), 0)
		fn, _, _ := purego.SyscallN(getDeviceProcAddr, uintptr(unsafe.Pointer(dev)), uintptr(unsafe.Pointer(&cname[0])))
		runtime.KeepAlive(cname)
		return fn
	}

	e := &Extensions{
		device:                       dev,
		cmdBeginRendering:            resolve("vkCmdBeginRendering"),
		cmdEndRendering:              resolve("vkCmdEndRendering"),
		createUpdateTemplate:         resolve("vkCreateDescriptorUpdateTemplate"),
		destroyUpdateTemplate:        resolve("vkDestroyDescriptorUpdateTemplate"),
		cmdPushDescriptorSetTemplate: resolve("vkCmdPushDescriptorSetWithTemplateKHR"),
		cmdDrawIndexedIndirectCount:  resolve("vkCmdDrawIndexedIndirectCount"),
	}
	if meshShading {
		e.cmdDrawMeshTasks = resolve("vkCmdDrawMeshTasksEXT")
		e.cmdDrawMeshTasksIndirectCnt = resolve("vkCmdDrawMeshTasksIndirectCountEXT")
	}

	required := map[string]uintptr{
		"vkCmdBeginRendering":                   e.cmdBeginRendering,
		"vkCmdEndRendering":                     e.cmdEndRendering,
		"vkCreateDescriptorUpdateTemplate":      e.createUpdateTemplate,
		"vkDestroyDescriptorUpdateTemplate":     e.destroyUpdateTemplate,
		"vkCmdPushDescriptorSetWithTemplateKHR": e.cmdPushDescriptorSetTemplate,
		"vkCmdDrawIndexedIndirectCount":         e.cmdDrawIndexedIndirectCount,
	}
	for name, fn := range required {
		if fn == 0 {
			return nil, errors.Newf("device entry point %s is unavailable", name)
		}
	}
	return e, nil
}

func (e *Extensions) call(fn uintptr, name string, args ...uintptr) uintptr {
	if fn == 0 {
		panic(errors.AssertionFailedf("%s was not resolved on this device", name))
	}
	r, _, _ := purego.SyscallN(fn, args...)
	return r
}

func attachmentInfo(a RenderingAttachment) renderingAttachmentInfo {
	info := renderingAttachmentInfo{
		sType:       structureTypeRenderingAttachmentInfo,
		imageView:   handleBits(unsafe.Pointer(a.View)),
		imageLayout: uint32(a.Layout),
		loadOp:      uint32(a.LoadOp),
		storeOp:     uint32(a.StoreOp),
	}
	for i, c := range a.Clear {
		info.clearValue[i] = math.Float32bits(c)
	}
	return info
}

// CmdBeginRendering opens a dynamic rendering scope over the given attachments.
//
// Parameters:
//   - cb: the command buffer being recorded
//   - area: the render area in pixels
//   - colors: color attachments in location order
//   - depth: optional depth attachment
func (e *Extensions) CmdBeginRendering(cb vk.CommandBuffer, area RenderArea, colors []RenderingAttachment, depth *RenderingAttachment) {
	var pin runtime.Pinner
	defer pin.Unpin()

	info := &renderingInfo{
		sType:            structureTypeRenderingInfo,
		renderAreaX:      area.X,
		renderAreaY:      area.Y,
		renderAreaWidth:  area.Width,
		renderAreaHeight: area.Height,
		layerCount:       1,
	}
	if len(colors) > 0 {
		infos := make([]renderingAttachmentInfo, len(colors))
		for i, c := range colors {
			infos[i] = attachmentInfo(c)
		}
		pin.Pin(&infos[0])
		info.colorAttachmentCount = uint32(len(infos))
		info.pColorAttachments = &infos[0]
	}
	if depth != nil {
		d := attachmentInfo(*depth)
		pin.Pin(&d)
		info.pDepthAttachment = &d
	}
	pin.Pin(info)

	e.call(e.cmdBeginRendering, "vkCmdBeginRendering", uintptr(unsafe.Pointer(cb)), uintptr(unsafe.Pointer(info)))
}

// CmdEndRendering closes the current dynamic rendering scope.
func (e *Extensions) CmdEndRendering(cb vk.CommandBuffer) {
	e.call(e.cmdEndRendering, "vkCmdEndRendering", uintptr(unsafe.Pointer(cb)))
}

// CreatePushDescriptorTemplate creates an update template that pushes descriptors for set 0 of layout.
//
// Parameters:
//   - entries: one entry per binding, describing where its descriptor sits in the pushed data
//   - setLayout: the push-descriptor set layout
//   - bindPoint: graphics or compute
//   - layout: the pipeline layout the template pushes into
//
// Returns:
//   - DescriptorUpdateTemplate: the new template
//   - error: when the driver rejects the template
func (e *Extensions) CreatePushDescriptorTemplate(entries []DescriptorUpdateTemplateEntry, setLayout vk.DescriptorSetLayout, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout) (DescriptorUpdateTemplate, error) {
	if len(entries) == 0 {
		return 0, errors.AssertionFailedf("update template needs at least one entry")
	}
	var pin runtime.Pinner
	defer pin.Unpin()

	raw := make([]descriptorUpdateTemplateEntry, len(entries))
	for i, en := range entries {
		raw[i] = descriptorUpdateTemplateEntry{
			dstBinding:      en.Binding,
			descriptorCount: 1,
			descriptorType:  uint32(en.Type),
			offset:          en.Offset,
			stride:          en.Stride,
		}
	}
	pin.Pin(&raw[0])

	info := &descriptorUpdateTemplateCreateInfo{
		sType:                      structureTypeDescriptorUpdateTemplateCreateInfo,
		descriptorUpdateEntryCount: uint32(len(raw)),
		pDescriptorUpdateEntries:   &raw[0],
		templateType:               descriptorUpdateTemplateTypePushDescriptors,
		descriptorSetLayout:        handleBits(unsafe.Pointer(setLayout)),
		pipelineBindPoint:          uint32(bindPoint),
		pipelineLayout:             handleBits(unsafe.Pointer(layout)),
	}
	pin.Pin(info)

	var template DescriptorUpdateTemplate
	res := e.call(e.createUpdateTemplate, "vkCreateDescriptorUpdateTemplate",
		uintptr(unsafe.Pointer(e.device)), uintptr(unsafe.Pointer(info)), 0, uintptr(unsafe.Pointer(&template)))
	if err := vk.Error(vk.Result(int32(res))); err != nil {
		return 0, errors.Wrap(err, "create descriptor update template")
	}
	return template, nil
}

// DestroyDescriptorUpdateTemplate destroys a template created by CreatePushDescriptorTemplate.
func (e *Extensions) DestroyDescriptorUpdateTemplate(t DescriptorUpdateTemplate) {
	if t == 0 {
		return
	}
	e.call(e.destroyUpdateTemplate, "vkDestroyDescriptorUpdateTemplate", uintptr(unsafe.Pointer(e.device)), uintptr(t), 0)
}

// CmdPushDescriptorSetWithTemplate pushes every descriptor of set 0 in one call.
//
// Parameters:
//   - cb: the command buffer being recorded
//   - t: the pipeline's update template
//   - layout: the pipeline layout
//   - data: descriptor data laid out as the template entries describe
func (e *Extensions) CmdPushDescriptorSetWithTemplate(cb vk.CommandBuffer, t DescriptorUpdateTemplate, layout vk.PipelineLayout, data []byte) {
	if len(data) == 0 {
		return
	}
	var pin runtime.Pinner
	defer pin.Unpin()
	pin.Pin(&data[0])

	e.call(e.cmdPushDescriptorSetTemplate, "vkCmdPushDescriptorSetWithTemplateKHR",
		uintptr(unsafe.Pointer(cb)), uintptr(t), uintptr(unsafe.Pointer(layout)), 0, uintptr(unsafe.Pointer(&data[0])))
}

// CmdDrawIndexedIndirectCount issues up to maxDraws indexed draws, reading the actual count from countBuffer.
func (e *Extensions) CmdDrawIndexedIndirectCount(cb vk.CommandBuffer, buffer vk.Buffer, offset vk.DeviceSize, countBuffer vk.Buffer, countOffset vk.DeviceSize, maxDraws, stride uint32) {
	e.call(e.cmdDrawIndexedIndirectCount, "vkCmdDrawIndexedIndirectCount",
		uintptr(unsafe.Pointer(cb)), uintptr(unsafe.Pointer(buffer)), uintptr(offset),
		uintptr(unsafe.Pointer(countBuffer)), uintptr(countOffset), uintptr(maxDraws), uintptr(stride))
}

// CmdDrawMeshTasksIndirectCount issues up to maxDraws task/mesh dispatches, reading the actual count from countBuffer.
func (e *Extensions) CmdDrawMeshTasksIndirectCount(cb vk.CommandBuffer, buffer vk.Buffer, offset vk.DeviceSize, countBuffer vk.Buffer, countOffset vk.DeviceSize, maxDraws, stride uint32) {
	e.call(e.cmdDrawMeshTasksIndirectCnt, "vkCmdDrawMeshTasksIndirectCountEXT",
		uintptr(unsafe.Pointer(cb)), uintptr(unsafe.Pointer(buffer)), uintptr(offset),
		uintptr(unsafe.Pointer(countBuffer)), uintptr(countOffset), uintptr(maxDraws), uintptr(stride))
}

// CmdDrawMeshTasks dispatches task or mesh workgroups directly.
func (e *Extensions) CmdDrawMeshTasks(cb vk.CommandBuffer, x, y, z uint32) {
	e.call(e.cmdDrawMeshTasks, "vkCmdDrawMeshTasksEXT", uintptr(unsafe.Pointer(cb)), uintptr(x), uintptr(y), uintptr(z))
}

// PipelineRenderingChain builds the pNext link that declares attachment formats for a dynamic-rendering pipeline.
// The returned pointer stays valid until pin is unpinned.
//
// Parameters:
//   - pin: pinner that owns the chain memory for the duration of pipeline creation
//   - colorFormats: color attachment formats in location order
//   - depthFormat: the depth attachment format, or vk.FormatUndefined
//
// Returns:
//   - unsafe.Pointer: value for GraphicsPipelineCreateInfo.PNext
func PipelineRenderingChain(pin *runtime.Pinner, colorFormats []vk.Format, depthFormat vk.Format) unsafe.Pointer {
	info := &pipelineRenderingCreateInfo{
		sType:                 structureTypePipelineRenderingCreateInfo,
		colorAttachmentCount:  uint32(len(colorFormats)),
		depthAttachmentFormat: uint32(depthFormat),
	}
	if len(colorFormats) > 0 {
		formats := make([]uint32, len(colorFormats))
		for i, f := range colorFormats {
			formats[i] = uint32(f)
		}
		pin.Pin(&formats[0])
		info.pColorAttachmentFormats = unsafe.Pointer(&formats[0])
	}
	pin.Pin(info)
	return unsafe.Pointer(info)
}
