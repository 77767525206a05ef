package resource

import (
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	// Label names the buffer in errors and logs.
	Label string
	// Size is the buffer size in bytes. Must be greater than zero.
	Size uint64
	// Access selects persistently mapped host memory or device-local memory.
	Access device.MemoryAccess
	// Usage is the set of usages the buffer is created with. Must not be zero.
	Usage vk.BufferUsageFlags
	// Contents, when set, is copied into the start of the buffer. Device-local buffers are filled through a
	// staging copy.
	Contents []byte
}

// buffer is the implementation of the Buffer interface.
type buffer struct {
	dev    device.Device
	label  string
	handle vk.Buffer
	size   uint64
	access device.MemoryAccess
	alloc  device.Allocation
}

// Buffer is a GPU buffer together with the memory it is bound to. Host buffers stay mapped for their lifetime.
type Buffer interface {
	// Handle returns the native buffer.
	Handle() vk.Buffer

	// Label returns the debug name the buffer was created with.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64

	// Access returns where the buffer memory lives.
	Access() device.MemoryAccess

	// Mapped returns the persistent mapping of a host buffer, nil for device-local buffers.
	Mapped() unsafe.Pointer

	// Write copies data into a host buffer at offset. Writes should be sequential; the mapping is write-combined
	// on many devices.
	//
	// Parameters:
	//   - offset: byte offset to start writing at
	//   - data: bytes to copy
	Write(offset uint64, data []byte)

	// Bytes returns a view of a host buffer's mapped memory, nil for device-local buffers.
	//
	// Returns:
	//   - []byte: Size() bytes aliasing the mapping
	Bytes() []byte

	// Destroy releases the buffer and its memory.
	Destroy()
}

var _ Buffer = &buffer{}

// NewBuffer creates a buffer. A zero size or zero usage is a programming error and panics.
//
// Device-local buffers are always created with transfer source and destination usage so they can be filled,
// uploaded to and read back.
//
// Parameters:
//   - dev: the device context
//   - desc: the buffer description
//
// Returns:
//   - Buffer: the created buffer
//   - error: when the driver rejects the buffer or memory cannot be allocated
func NewBuffer(dev device.Device, desc BufferDescriptor) (Buffer, error) {
	if desc.Size == 0 {
		panic(errors.AssertionFailedf("buffer %q: size must be greater than zero", desc.Label))
	}
	if desc.Usage == 0 {
		panic(errors.AssertionFailedf("buffer %q: usage must not be zero", desc.Label))
	}
	if uint64(len(desc.Contents)) > desc.Size {
		panic(errors.AssertionFailedf("buffer %q: %d bytes of contents exceed size %d", desc.Label, len(desc.Contents), desc.Size))
	}

	usage := desc.Usage
	if desc.Access == device.AccessDevice {
		usage |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit)
	}

	b := &buffer{dev: dev, label: desc.Label, size: desc.Size, access: desc.Access}

	var handle vk.Buffer
	if err := vk.Error(vk.CreateBuffer(dev.Handle(), &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}, nil, &handle)); err != nil {
		return nil, errors.Wrapf(err, "create buffer %q", desc.Label)
	}
	b.handle = handle

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev.Handle(), handle, &req)
	req.Deref()

	alloc, err := dev.Allocator().Allocate(req, desc.Access, device.TilingLinear)
	if err != nil {
		vk.DestroyBuffer(dev.Handle(), handle, nil)
		return nil, errors.Wrapf(err, "allocate buffer %q", desc.Label)
	}
	b.alloc = alloc

	if err := vk.Error(vk.BindBufferMemory(dev.Handle(), handle, alloc.Memory, alloc.Offset)); err != nil {
		b.Destroy()
		return nil, errors.Wrapf(err, "bind buffer %q", desc.Label)
	}

	if len(desc.Contents) > 0 {
		if err := b.upload(desc.Contents); err != nil {
			b.Destroy()
			return nil, err
		}
	}
	return b, nil
}

func (b *buffer) upload(contents []byte) error {
	if b.access == device.AccessHost {
		b.Write(0, contents)
		return nil
	}

	staging, err := NewBuffer(b.dev, BufferDescriptor{
		Label:    b.label + " staging",
		Size:     uint64(len(contents)),
		Access:   device.AccessHost,
		Usage:    vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		Contents: contents,
	})
	if err != nil {
		return err
	}
	defer staging.Destroy()

	return b.dev.ImmediateSubmit(func(cb vk.CommandBuffer) {
		vk.CmdCopyBuffer(cb, staging.Handle(), b.handle, 1, []vk.BufferCopy{{Size: vk.DeviceSize(len(contents))}})
	})
}

func (b *buffer) Handle() vk.Buffer {
	return b.handle
}

func (b *buffer) Label() string {
	return b.label
}

func (b *buffer) Size() uint64 {
	return b.size
}

func (b *buffer) Access() device.MemoryAccess {
	return b.access
}

func (b *buffer) Mapped() unsafe.Pointer {
	return b.alloc.Mapped
}

func (b *buffer) Write(offset uint64, data []byte) {
	if b.alloc.Mapped == nil {
		panic(errors.AssertionFailedf("buffer %q: write to a buffer that is not host mapped", b.label))
	}
	if offset+uint64(len(data)) > b.size {
		panic(errors.AssertionFailedf("buffer %q: write of %d bytes at %d overruns size %d", b.label, len(data), offset, b.size))
	}
	copy(unsafe.Slice((*byte)(unsafe.Add(b.alloc.Mapped, offset)), len(data)), data)
}

func (b *buffer) Bytes() []byte {
	if b.alloc.Mapped == nil {
		return nil
	}
	return unsafe.Slice((*byte)(b.alloc.Mapped), b.size)
}

func (b *buffer) Destroy() {
	if b.handle != nil {
		vk.DestroyBuffer(b.dev.Handle(), b.handle, nil)
		b.handle = nil
	}
	b.dev.Allocator().Free(b.alloc)
	b.alloc = device.Allocation{}
}

// Download copies a buffer's contents back to the host through a staging buffer. It blocks until the copy is done
// and is meant for tests and diagnostics.
//
// Parameters:
//   - dev: the device context
//   - src: the buffer to read; device-local buffers always carry transfer source usage
//
// Returns:
//   - []byte: a copy of the buffer contents
//   - error: when the staging buffer or the copy fails
func Download(dev device.Device, src Buffer) ([]byte, error) {
	if src.Access() == device.AccessHost {
		return append([]byte(nil), src.Bytes()...), nil
	}

	staging, err := NewBuffer(dev, BufferDescriptor{
		Label:  src.Label() + " readback",
		Size:   src.Size(),
		Access: device.AccessHost,
		Usage:  vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
	})
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	err = dev.ImmediateSubmit(func(cb vk.CommandBuffer) {
		vk.CmdCopyBuffer(cb, src.Handle(), staging.Handle(), 1, []vk.BufferCopy{{Size: vk.DeviceSize(src.Size())}})
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), staging.Bytes()...), nil
}
