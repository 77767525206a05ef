package resource

import (
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// TextureDescriptor describes a texture to create or wrap.
type TextureDescriptor struct {
	// Label names the texture in errors and logs.
	Label string
	// Width and Height are the base mip dimensions in pixels.
	Width, Height uint32
	// MipCount is the number of mip levels. Zero means one.
	MipCount uint32
	// Format is the texel format.
	Format vk.Format
	// Usage is the image usage. Ignored when Image is supplied.
	Usage vk.ImageUsageFlags
	// Aspect selects color or depth. Zero means color.
	Aspect vk.ImageAspectFlags
	// Sampler, when set, acquires a shared sampler from the device cache.
	Sampler *device.SamplerDescriptor
	// Image wraps an existing image, such as a swapchain image. The texture then does not own the image.
	Image vk.Image
	// Pixels, when set, is uploaded to mip 0 through a staging buffer and the texture ends in the shader
	// read-only layout.
	Pixels []byte
}

// texture is the implementation of the Texture interface.
type texture struct {
	dev   device.Device
	label string

	image vk.Image
	view  vk.ImageView
	alloc device.Allocation
	owned bool

	width, height uint32
	format        vk.Format
	aspect        vk.ImageAspectFlags
	mipLevel      uint32
	mipCount      uint32

	sampler     vk.Sampler
	samplerDesc *device.SamplerDescriptor
}

// Texture is an image with one view and an optional shared sampler. Views made with CreateView and textures
// wrapping swapchain images do not own their image.
type Texture interface {
	// Image returns the native image.
	Image() vk.Image

	// View returns the image view over this texture's mip range.
	View() vk.ImageView

	// Sampler returns the shared sampler, or nil when the texture has none.
	Sampler() vk.Sampler

	// Label returns the debug name the texture was created with.
	Label() string

	// Width returns the width in pixels of the first mip in this texture's range.
	Width() uint32

	// Height returns the height in pixels of the first mip in this texture's range.
	Height() uint32

	// Format returns the texel format.
	Format() vk.Format

	// Aspect returns the image aspect the view covers.
	Aspect() vk.ImageAspectFlags

	// MipLevel returns the first mip level of the view.
	MipLevel() uint32

	// MipCount returns the number of mip levels in the view.
	MipCount() uint32

	// Owned reports whether destroying the texture destroys the image.
	Owned() bool

	// CreateView creates a view over a mip subrange of this texture. The view holds its own sampler reference and
	// never owns the image.
	//
	// Parameters:
	//   - mip: the first mip level, relative to the parent image
	//   - count: the number of mip levels
	//
	// Returns:
	//   - Texture: the view
	//   - error: when the view cannot be created
	CreateView(mip, count uint32) (Texture, error)

	// Destroy releases the view and the sampler reference, and the image and memory when owned.
	Destroy()
}

var _ Texture = &texture{}

// NewTexture creates a texture, or wraps an existing image when desc.Image is set.
//
// Parameters:
//   - dev: the device context
//   - desc: the texture description
//
// Returns:
//   - Texture: the created texture
//   - error: when image, memory, view or sampler creation fails
func NewTexture(dev device.Device, desc TextureDescriptor) (Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		panic(errors.AssertionFailedf("texture %q: extent %dx%d must be non-zero", desc.Label, desc.Width, desc.Height))
	}

	t := &texture{
		dev:      dev,
		label:    desc.Label,
		width:    desc.Width,
		height:   desc.Height,
		format:   desc.Format,
		aspect:   desc.Aspect,
		mipCount: max(desc.MipCount, 1),
	}
	if t.aspect == 0 {
		t.aspect = vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}

	if desc.Image != nil {
		t.image = desc.Image
	} else {
		usage := desc.Usage
		if len(desc.Pixels) > 0 {
			usage |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
		}
		if err := t.createImage(usage); err != nil {
			return nil, err
		}
		t.owned = true
	}

	if err := t.createView(); err != nil {
		t.Destroy()
		return nil, err
	}
	if desc.Sampler != nil {
		if err := t.acquireSampler(*desc.Sampler); err != nil {
			t.Destroy()
			return nil, err
		}
	}
	if len(desc.Pixels) > 0 {
		if err := t.upload(desc.Pixels); err != nil {
			t.Destroy()
			return nil, err
		}
	}
	return t, nil
}

func (t *texture) createImage(usage vk.ImageUsageFlags) error {
	var image vk.Image
	if err := vk.Error(vk.CreateImage(t.dev.Handle(), &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        t.format,
		Extent:        vk.Extent3D{Width: t.width, Height: t.height, Depth: 1},
		MipLevels:     t.mipCount,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &image)); err != nil {
		return errors.Wrapf(err, "create image %q", t.label)
	}
	t.image = image

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(t.dev.Handle(), image, &req)
	req.Deref()

	alloc, err := t.dev.Allocator().Allocate(req, device.AccessDevice, device.TilingOptimal)
	if err != nil {
		vk.DestroyImage(t.dev.Handle(), image, nil)
		return errors.Wrapf(err, "allocate image %q", t.label)
	}
	t.alloc = alloc

	if err := vk.Error(vk.BindImageMemory(t.dev.Handle(), image, alloc.Memory, alloc.Offset)); err != nil {
		t.dev.Allocator().Free(alloc)
		vk.DestroyImage(t.dev.Handle(), image, nil)
		return errors.Wrapf(err, "bind image %q", t.label)
	}
	return nil
}

func (t *texture) createView() error {
	var view vk.ImageView
	if err := vk.Error(vk.CreateImageView(t.dev.Handle(), &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    t.image,
		ViewType: vk.ImageViewType2d,
		Format:   t.format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     t.aspect,
			BaseMipLevel:   t.mipLevel,
			LevelCount:     t.mipCount,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}, nil, &view)); err != nil {
		return errors.Wrapf(err, "create view of %q", t.label)
	}
	t.view = view
	return nil
}

func (t *texture) acquireSampler(desc device.SamplerDescriptor) error {
	s, err := t.dev.Samplers().Acquire(desc)
	if err != nil {
		return errors.Wrapf(err, "sampler for %q", t.label)
	}
	t.sampler = s
	t.samplerDesc = &desc
	return nil
}

func (t *texture) upload(pixels []byte) error {
	staging, err := NewBuffer(t.dev, BufferDescriptor{
		Label:    t.label + " staging",
		Size:     uint64(len(pixels)),
		Access:   device.AccessHost,
		Usage:    vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		Contents: pixels,
	})
	if err != nil {
		return err
	}
	defer staging.Destroy()

	return t.dev.ImmediateSubmit(func(cb vk.CommandBuffer) {
		TextureBarrier(cb, t, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
			0, vk.AccessFlags(vk.AccessTransferWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit))

		vk.CmdCopyBufferToImage(cb, staging.Handle(), t.image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     t.aspect,
				MipLevel:       t.mipLevel,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageExtent: vk.Extent3D{Width: t.width, Height: t.height, Depth: 1},
		}})

		TextureBarrier(cb, t, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessShaderReadBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageAllGraphicsBit|vk.PipelineStageComputeShaderBit))
	})
}

func (t *texture) CreateView(mip, count uint32) (Texture, error) {
	if mip < t.mipLevel || mip+count > t.mipLevel+t.mipCount || count == 0 {
		panic(errors.AssertionFailedf("texture %q: view mips [%d, %d) outside [%d, %d)", t.label, mip, mip+count, t.mipLevel, t.mipLevel+t.mipCount))
	}
	shift := mip - t.mipLevel
	v := &texture{
		dev:      t.dev,
		label:    t.label,
		image:    t.image,
		width:    max(t.width>>shift, 1),
		height:   max(t.height>>shift, 1),
		format:   t.format,
		aspect:   t.aspect,
		mipLevel: mip,
		mipCount: count,
	}
	if err := v.createView(); err != nil {
		return nil, err
	}
	if t.samplerDesc != nil {
		if err := v.acquireSampler(*t.samplerDesc); err != nil {
			v.Destroy()
			return nil, err
		}
	}
	return v, nil
}

func (t *texture) Image() vk.Image {
	return t.image
}

func (t *texture) View() vk.ImageView {
	return t.view
}

func (t *texture) Sampler() vk.Sampler {
	return t.sampler
}

func (t *texture) Label() string {
	return t.label
}

func (t *texture) Width() uint32 {
	return t.width
}

func (t *texture) Height() uint32 {
	return t.height
}

func (t *texture) Format() vk.Format {
	return t.format
}

func (t *texture) Aspect() vk.ImageAspectFlags {
	return t.aspect
}

func (t *texture) MipLevel() uint32 {
	return t.mipLevel
}

func (t *texture) MipCount() uint32 {
	return t.mipCount
}

func (t *texture) Owned() bool {
	return t.owned
}

func (t *texture) Destroy() {
	dev := t.dev.Handle()
	if t.samplerDesc != nil {
		t.dev.Samplers().Release(*t.samplerDesc)
		t.samplerDesc = nil
		t.sampler = nil
	}
	if t.view != nil {
		vk.DestroyImageView(dev, t.view, nil)
		t.view = nil
	}
	if t.owned && t.image != nil {
		vk.DestroyImage(dev, t.image, nil)
		t.dev.Allocator().Free(t.alloc)
		t.alloc = device.Allocation{}
	}
	t.image = nil
}
