package device

import (
	"log"
	"runtime"
	"sync"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// SurfaceSource supplies the presentation surface. It is implemented by the window.
type SurfaceSource interface {
	// VulkanProcAddr returns the platform's vkGetInstanceProcAddr.
	VulkanProcAddr() unsafe.Pointer

	// RequiredInstanceExtensions lists the instance extensions the surface needs.
	RequiredInstanceExtensions() []string

	// CreateSurface creates the presentation surface for instance.
	CreateSurface(instance vk.Instance) (vk.Surface, error)

	// FramebufferExtent reports the current drawable size in pixels.
	FramebufferExtent() common.Extent2D
}

// device is the implementation of the Device interface.
type device struct {
	mu *sync.Mutex

	instance    vk.Instance
	debug       vk.DebugReportCallback
	surface     vk.Surface
	source      SurfaceSource
	gpu         vk.PhysicalDevice
	handle      vk.Device
	queue       vk.Queue
	queueFamily uint32
	commandPool vk.CommandPool

	allocator *allocator
	samplers  *SamplerCache
	ext       *Extensions

	name            string
	timestampPeriod float32
	meshShading     bool

	// configuration collected from builder options
	validation           bool
	meshShadingRequested bool
	appName              string
	blockSize            uint64
}

// Device is the GPU device context: instance, surface, adapter, logical device, one graphics+present queue, a
// command pool, the memory allocator and the sampler cache. It is created once and destroyed once.
type Device interface {
	// Instance returns the API instance.
	Instance() vk.Instance

	// Surface returns the presentation surface, or a null surface for headless devices.
	Surface() vk.Surface

	// SurfaceSource returns the window the surface was created from, nil for headless devices.
	SurfaceSource() SurfaceSource

	// PhysicalDevice returns the selected adapter.
	PhysicalDevice() vk.PhysicalDevice

	// Handle returns the logical device.
	Handle() vk.Device

	// Queue returns the graphics+present queue.
	Queue() vk.Queue

	// QueueFamily returns the family index of Queue.
	QueueFamily() uint32

	// CommandPool returns the pool primary command buffers are allocated from. Buffers may be reset individually.
	CommandPool() vk.CommandPool

	// Allocator returns the GPU memory sub-allocator.
	Allocator() Allocator

	// Samplers returns the sampler cache owned by this device.
	Samplers() *SamplerCache

	// Extensions returns the table of entry points resolved by name.
	Extensions() *Extensions

	// Name returns the adapter name.
	Name() string

	// TimestampPeriod returns the number of nanoseconds per timestamp tick.
	TimestampPeriod() float32

	// MeshShadingEnabled reports whether task/mesh shaders were both requested and supported.
	MeshShadingEnabled() bool

	// ImmediateSubmit records commands into a fresh primary command buffer, submits it and blocks until the queue
	// is idle. It is meant for startup uploads only.
	//
	// Parameters:
	//   - record: called exactly once, synchronously, with the command buffer in the recording state
	//
	// Returns:
	//   - error: when command buffer allocation or submission fails
	ImmediateSubmit(record func(cb vk.CommandBuffer)) error

	// WaitIdle blocks until the device has finished all submitted work.
	WaitIdle()

	// Destroy releases everything the device owns, in reverse order of creation.
	Destroy()
}

var _ Device = &device{}

// New creates the device context. A nil source creates a headless device with no surface, which is what GPU
// tests use.
//
// Parameters:
//   - source: the window supplying the surface, or nil
//   - options: functional options to configure the device
//
// Returns:
//   - Device: the created device
//   - error: when no loader, instance, or suitable adapter is available
func New(source SurfaceSource, options ...DeviceBuilderOption) (Device, error) {
	d := &device{
		mu:         &sync.Mutex{},
		source:     source,
		validation: DefaultValidation,
		appName:    "oxy-vk",
		blockSize:  DefaultMemoryBlockSize,
	}
	for _, opt := range options {
		opt(d)
	}

	if source != nil {
		vk.SetGetInstanceProcAddr(source.VulkanProcAddr())
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, errors.Wrap(err, "load vulkan")
	}
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "init vulkan")
	}

	if err := d.createInstance(); err != nil {
		return nil, err
	}
	if source != nil {
		surface, err := source.CreateSurface(d.instance)
		if err != nil {
			d.Destroy()
			return nil, errors.Wrap(err, "create surface")
		}
		d.surface = surface
	}
	if err := d.pickAdapter(); err != nil {
		d.Destroy()
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		d.Destroy()
		return nil, err
	}

	log.Printf("[Device] selected %s (mesh shading: %v, validation: %v)", d.name, d.meshShading, d.validation)
	return d, nil
}

func (d *device) createInstance() error {
	var extensions []string
	if d.source != nil {
		extensions = append(extensions, d.source.RequiredInstanceExtensions()...)
	}
	var layers []string
	if d.validation {
		extensions = append(extensions, "VK_EXT_debug_report")
		layers = append(layers, validationLayer)
	}

	info := vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			PApplicationName:   cString(d.appName),
			ApplicationVersion: makeVersion(0, 1, 0),
			PEngineName:        cString("oxy-vk"),
			EngineVersion:      makeVersion(0, 1, 0),
			ApiVersion:         makeVersion(1, 3, 0),
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: cStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     cStrings(layers),
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&info, nil, &instance)); err != nil {
		return errors.Wrap(err, "create instance")
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return errors.Wrap(err, "init instance")
	}
	d.instance = instance

	if d.validation {
		d.installDebugCallback()
	}
	return nil
}

func (d *device) installDebugCallback() {
	info := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: debugReport,
	}
	var cb vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(d.instance, &info, nil, &cb)); err != nil {
		log.Printf("[Device] debug report callback unavailable: %v", err)
		return
	}
	d.debug = cb
}

func debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, layerPrefix string, message string, userData unsafe.Pointer) vk.Bool32 {
	log.Printf("[Vulkan][%s] %s", layerPrefix, message)
	return vk.False
}

func (d *device) pickAdapter() error {
	var count uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(d.instance, &count, nil)); err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}
	gpus := make([]vk.PhysicalDevice, count)
	if err := vk.Error(vk.EnumeratePhysicalDevices(d.instance, &count, gpus)); err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}

	infos := make([]adapterInfo, len(gpus))
	for i, gpu := range gpus {
		infos[i] = describeAdapter(gpu, d.surface, d.source == nil)
	}
	chosen, reasons := selectAdapter(infos)
	if chosen < 0 {
		return errors.Newf("no suitable GPU found among %d adapters: %v", len(gpus), reasons)
	}

	d.gpu = gpus[chosen]
	d.name = infos[chosen].name
	d.queueFamily = uint32(infos[chosen].queueFamily)
	d.meshShading = d.meshShadingRequested && infos[chosen].extensions[meshShaderExtension]
	return nil
}

func (d *device) createLogicalDevice() error {
	var pin runtime.Pinner
	defer pin.Unpin()

	extensions := append([]string{}, requiredDeviceExtensions...)
	if d.meshShading {
		extensions = append(extensions, meshShaderExtension)
	}
	chain := newFeatureChain(&pin, d.meshShading)

	info := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		PNext:                chain.head(),
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.queueFamily,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: cStrings(extensions),
	}

	var handle vk.Device
	if err := vk.Error(vk.CreateDevice(d.gpu, &info, nil, &handle)); err != nil {
		return errors.Wrap(err, "create device")
	}
	d.handle = handle

	var queue vk.Queue
	vk.GetDeviceQueue(handle, d.queueFamily, 0, &queue)
	d.queue = queue

	var pool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(handle, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.queueFamily,
	}, nil, &pool)); err != nil {
		return errors.Wrap(err, "create command pool")
	}
	d.commandPool = pool

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(d.gpu, &props)
	props.Deref()
	props.Limits.Deref()
	d.timestampPeriod = props.Limits.TimestampPeriod

	d.allocator = newAllocator(d.gpu, handle, d.blockSize)
	d.samplers = newSamplerCache(handle, props.Limits.MaxSamplerAnisotropy)

	ext, err := loadExtensions(handle, d.meshShading)
	if err != nil {
		return err
	}
	d.ext = ext
	return nil
}

func (d *device) Instance() vk.Instance             { return d.instance }
func (d *device) Surface() vk.Surface               { return d.surface }
func (d *device) SurfaceSource() SurfaceSource      { return d.source }
func (d *device) PhysicalDevice() vk.PhysicalDevice { return d.gpu }
func (d *device) Handle() vk.Device                 { return d.handle }
func (d *device) Queue() vk.Queue                   { return d.queue }
func (d *device) QueueFamily() uint32               { return d.queueFamily }
func (d *device) CommandPool() vk.CommandPool       { return d.commandPool }
func (d *device) Allocator() Allocator              { return d.allocator }
func (d *device) Samplers() *SamplerCache           { return d.samplers }
func (d *device) Extensions() *Extensions           { return d.ext }
func (d *device) Name() string                      { return d.name }
func (d *device) TimestampPeriod() float32          { return d.timestampPeriod }
func (d *device) MeshShadingEnabled() bool          { return d.meshShading }

func (d *device) ImmediateSubmit(record func(cb vk.CommandBuffer)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cbs := make([]vk.CommandBuffer, 1)
	if err := vk.Error(vk.AllocateCommandBuffers(d.handle, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cbs)); err != nil {
		return errors.Wrap(err, "allocate immediate command buffer")
	}
	cb := cbs[0]
	defer vk.FreeCommandBuffers(d.handle, d.commandPool, 1, cbs)

	if err := vk.Error(vk.BeginCommandBuffer(cb, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})); err != nil {
		return errors.Wrap(err, "begin immediate command buffer")
	}

	record(cb)

	if err := vk.Error(vk.EndCommandBuffer(cb)); err != nil {
		return errors.Wrap(err, "end immediate command buffer")
	}
	if err := vk.Error(vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cbs,
	}}, vk.NullFence)); err != nil {
		return errors.Wrap(err, "submit immediate command buffer")
	}
	if err := vk.Error(vk.QueueWaitIdle(d.queue)); err != nil {
		return errors.Wrap(err, "wait for immediate submit")
	}
	return nil
}

func (d *device) WaitIdle() {
	if d.handle != nil {
		vk.DeviceWaitIdle(d.handle)
	}
}

func (d *device) Destroy() {
	if d.handle != nil {
		vk.DeviceWaitIdle(d.handle)
		if d.samplers != nil {
			d.samplers.destroy()
		}
		vk.DestroyCommandPool(d.handle, d.commandPool, nil)
		if d.allocator != nil {
			d.allocator.Destroy()
		}
		vk.DestroyDevice(d.handle, nil)
		d.handle = nil
	}
	if d.debug != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.instance, d.debug, nil)
		d.debug = vk.NullDebugReportCallback
	}
	if d.surface != vk.NullSurface {
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = vk.NullSurface
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
}

// cString appends the terminator the binding expects on strings it hands to the driver.
func cString(s string) string {
	return s + "\x00"
}

func cStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = cString(s)
	}
	return out
}
