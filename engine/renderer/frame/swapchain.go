package frame

import (
	"log"
	"math"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/resource"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// DepthFormat is the format of the swapchain's depth attachment.
const DepthFormat = vk.FormatD32Sfloat

// ErrZeroExtent is returned when the surface has no area, as when the window is minimized.
var ErrZeroExtent = errors.New("surface extent is zero")

// PresentMode selects how presentation is paced.
type PresentMode int

const (
	// PresentModeVSync waits for vertical blank (FIFO).
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents as fast as possible: mailbox if available, else immediate, else FIFO.
	PresentModeUncapped
)

// swapchain is the implementation of the Swapchain interface.
type swapchain struct {
	dev    device.Device
	mode   PresentMode
	handle vk.Swapchain
	format vk.SurfaceFormat
	extent common.Extent2D
	images []resource.Texture
	depth  resource.Texture
}

// Swapchain is the presentable image chain of the device's surface plus a matching depth texture.
type Swapchain interface {
	// Handle returns the native swapchain.
	Handle() vk.Swapchain

	// Format returns the color format of the images.
	Format() vk.Format

	// Extent returns the image size in pixels.
	Extent() common.Extent2D

	// Image returns the non-owned texture wrapping image i.
	Image(i uint32) resource.Texture

	// ImageCount returns the number of images in the chain.
	ImageCount() int

	// Depth returns the depth texture sized to the chain.
	Depth() resource.Texture

	// NeedsRecreate reports whether the surface size differs from the chain's.
	//
	// Parameters:
	//   - width, height: the current framebuffer size
	//
	// Returns:
	//   - bool: true when the chain must be recreated before rendering
	NeedsRecreate(width, height uint32) bool

	// Recreate waits for the device to go idle and rebuilds the chain, its views and the depth texture for the
	// current surface size. The old chain is handed to the driver for reuse and destroyed.
	//
	// Returns:
	//   - error: ErrZeroExtent when the surface has no area, or a creation failure
	Recreate() error

	// Acquire gets the next image, signaling signal when it is ready.
	//
	// Returns:
	//   - uint32: the image index
	//   - bool: true when the chain is out of date and must be recreated before retrying
	//   - error: any other failure
	Acquire(signal vk.Semaphore) (uint32, bool, error)

	// Present queues image for presentation after wait is signaled.
	//
	// Returns:
	//   - bool: true when the chain is out of date or suboptimal and should be recreated
	//   - error: any other failure
	Present(image uint32, wait vk.Semaphore) (bool, error)

	// Destroy releases the chain, its views and the depth texture.
	Destroy()
}

var _ Swapchain = &swapchain{}

// NewSwapchain creates the swapchain for the device's surface.
//
// Parameters:
//   - dev: a device created with a surface source
//   - mode: vsync or uncapped presentation
//
// Returns:
//   - Swapchain: the created chain
//   - error: ErrZeroExtent when the surface has no area, or a creation failure
func NewSwapchain(dev device.Device, mode PresentMode) (Swapchain, error) {
	if dev.SurfaceSource() == nil {
		panic(errors.AssertionFailedf("swapchain on a headless device"))
	}
	s := &swapchain{dev: dev, mode: mode}
	if err := s.create(); err != nil {
		return nil, err
	}
	return s, nil
}

// chooseSurfaceFormat prefers B8G8R8A8 sRGB and otherwise takes the first format offered.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Srgb && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

// choosePresentMode maps a pacing preference onto the modes the surface supports. FIFO is always supported.
func choosePresentMode(available []vk.PresentMode, mode PresentMode) vk.PresentMode {
	if mode == PresentModeVSync {
		return vk.PresentModeFifo
	}
	for _, want := range []vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeImmediate} {
		for _, m := range available {
			if m == want {
				return m
			}
		}
	}
	return vk.PresentModeFifo
}

// chooseExtent uses the surface's current extent unless the platform leaves it to the application, in which case
// the framebuffer size is clamped to the supported range.
func chooseExtent(caps vk.SurfaceCapabilities, framebuffer common.Extent2D) common.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return common.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height}
	}
	return common.Extent2D{
		Width:  common.Clamp(framebuffer.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: common.Clamp(framebuffer.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func (s *swapchain) surfaceCapabilities() (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(s.dev.PhysicalDevice(), s.dev.Surface(), &caps)); err != nil {
		return caps, errors.Wrap(err, "query surface capabilities")
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

func (s *swapchain) surfaceFormats() ([]vk.SurfaceFormat, []vk.PresentMode, error) {
	gpu, surface := s.dev.PhysicalDevice(), s.dev.Surface()

	var count uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &count, nil)); err != nil {
		return nil, nil, errors.Wrap(err, "query surface formats")
	}
	formats := make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &count, formats)
	for i := range formats {
		formats[i].Deref()
	}
	if len(formats) == 0 {
		return nil, nil, errors.New("surface offers no formats")
	}

	if err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &count, nil)); err != nil {
		return nil, nil, errors.Wrap(err, "query present modes")
	}
	modes := make([]vk.PresentMode, count)
	vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &count, modes)
	return formats, modes, nil
}

// create builds the chain, handing any current chain to the driver as the old swapchain.
func (s *swapchain) create() error {
	caps, err := s.surfaceCapabilities()
	if err != nil {
		return err
	}
	extent := chooseExtent(caps, s.dev.SurfaceSource().FramebufferExtent())
	if extent.IsZero() {
		return ErrZeroExtent
	}
	formats, modes, err := s.surfaceFormats()
	if err != nil {
		return err
	}
	format := chooseSurfaceFormat(formats)
	presentMode := choosePresentMode(modes, s.mode)

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	old := s.handle
	var handle vk.Swapchain
	if err := vk.Error(vk.CreateSwapchain(s.dev.Handle(), &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.dev.Surface(),
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      vk.Extent2D{Width: extent.Width, Height: extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}, nil, &handle)); err != nil {
		return errors.Wrap(err, "create swapchain")
	}

	s.releaseImages()
	if old != nil {
		vk.DestroySwapchain(s.dev.Handle(), old, nil)
	}
	s.handle = handle
	s.format = format
	s.extent = extent

	var count uint32
	vk.GetSwapchainImages(s.dev.Handle(), handle, &count, nil)
	images := make([]vk.Image, count)
	vk.GetSwapchainImages(s.dev.Handle(), handle, &count, images)

	s.images = make([]resource.Texture, 0, count)
	for i, img := range images {
		tex, err := resource.NewTexture(s.dev, resource.TextureDescriptor{
			Label:  "swapchain",
			Width:  extent.Width,
			Height: extent.Height,
			Format: format.Format,
			Image:  img,
		})
		if err != nil {
			return errors.Wrapf(err, "swapchain image %d", i)
		}
		s.images = append(s.images, tex)
	}

	depth, err := resource.NewTexture(s.dev, resource.TextureDescriptor{
		Label:  "depth",
		Width:  extent.Width,
		Height: extent.Height,
		Format: DepthFormat,
		Usage:  vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		Aspect: vk.ImageAspectFlags(vk.ImageAspectDepthBit),
	})
	if err != nil {
		return errors.Wrap(err, "swapchain depth")
	}
	s.depth = depth

	log.Printf("[Swapchain] %dx%d, %d images, present mode %d", extent.Width, extent.Height, count, presentMode)
	return nil
}

func (s *swapchain) releaseImages() {
	for _, img := range s.images {
		img.Destroy()
	}
	s.images = nil
	if s.depth != nil {
		s.depth.Destroy()
		s.depth = nil
	}
}

func (s *swapchain) Handle() vk.Swapchain {
	return s.handle
}

func (s *swapchain) Format() vk.Format {
	return s.format.Format
}

func (s *swapchain) Extent() common.Extent2D {
	return s.extent
}

func (s *swapchain) Image(i uint32) resource.Texture {
	return s.images[i]
}

func (s *swapchain) ImageCount() int {
	return len(s.images)
}

func (s *swapchain) Depth() resource.Texture {
	return s.depth
}

func (s *swapchain) NeedsRecreate(width, height uint32) bool {
	return width != s.extent.Width || height != s.extent.Height
}

func (s *swapchain) Recreate() error {
	if s.dev.SurfaceSource().FramebufferExtent().IsZero() {
		return ErrZeroExtent
	}
	s.dev.WaitIdle()
	return s.create()
}

func (s *swapchain) Acquire(signal vk.Semaphore) (uint32, bool, error) {
	var index uint32
	res := vk.AcquireNextImage(s.dev.Handle(), s.handle, math.MaxUint64, signal, vk.NullFence, &index)
	switch res {
	case vk.Success, vk.Suboptimal:
		return index, false, nil
	case vk.ErrorOutOfDate:
		return 0, true, nil
	}
	return 0, false, errors.Wrap(vk.Error(res), "acquire swapchain image")
}

func (s *swapchain) Present(image uint32, wait vk.Semaphore) (bool, error) {
	res := vk.QueuePresent(s.dev.Queue(), &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.handle},
		PImageIndices:      []uint32{image},
	})
	switch res {
	case vk.Success:
		return false, nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		return true, nil
	}
	return false, errors.Wrap(vk.Error(res), "present")
}

func (s *swapchain) Destroy() {
	s.releaseImages()
	if s.handle != nil {
		vk.DestroySwapchain(s.dev.Handle(), s.handle, nil)
		s.handle = nil
	}
}
