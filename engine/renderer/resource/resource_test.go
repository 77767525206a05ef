package resource

import (
	"bytes"
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	vk "github.com/goki/vulkan"
)

func newTestDevice(t *testing.T) device.Device {
	t.Helper()
	dev, err := device.New(nil, device.WithValidationLayers(false))
	if err != nil {
		t.Skipf("vulkan unavailable: %v", err)
	}
	t.Cleanup(dev.Destroy)
	return dev
}

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestNewBufferRejectsInvalidDescriptors(t *testing.T) {
	usage := vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	expectPanic(t, "zero size", func() {
		_, _ = NewBuffer(nil, BufferDescriptor{Label: "zero", Usage: usage})
	})
	expectPanic(t, "zero usage", func() {
		_, _ = NewBuffer(nil, BufferDescriptor{Label: "nousage", Size: 16})
	})
	expectPanic(t, "contents overflow", func() {
		_, _ = NewBuffer(nil, BufferDescriptor{Label: "overflow", Size: 4, Usage: usage, Contents: make([]byte, 8)})
	})
}

func TestNewTextureRejectsZeroExtent(t *testing.T) {
	expectPanic(t, "zero extent", func() {
		_, _ = NewTexture(nil, TextureDescriptor{Label: "empty", Format: vk.FormatR8g8b8a8Unorm})
	})
}

func TestHostBufferReadsBackWrites(t *testing.T) {
	dev := newTestDevice(t)

	buf, err := NewBuffer(dev, BufferDescriptor{
		Label:  "host",
		Size:   64,
		Access: device.AccessHost,
		Usage:  vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Destroy()

	buf.Write(8, []byte{1, 2, 3, 4})
	if got := buf.Bytes()[8:12]; !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("mapped bytes = %v", got)
	}
}

func TestDeviceBufferRoundTrip(t *testing.T) {
	dev := newTestDevice(t)

	want := make([]byte, 256)
	for i := range want {
		want[i] = byte(i)
	}
	buf, err := NewBuffer(dev, BufferDescriptor{
		Label:    "device",
		Size:     uint64(len(want)),
		Access:   device.AccessDevice,
		Usage:    vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit),
		Contents: want,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Destroy()

	if buf.Mapped() != nil {
		t.Fatal("device buffer must not be mapped")
	}
	got, err := Download(dev, buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("downloaded contents differ from upload")
	}
}

func TestFillBufferZeroes(t *testing.T) {
	dev := newTestDevice(t)

	buf, err := NewBuffer(dev, BufferDescriptor{
		Label:    "counters",
		Size:     16,
		Access:   device.AccessDevice,
		Usage:    vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit),
		Contents: bytes.Repeat([]byte{0xff}, 16),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Destroy()

	err = dev.ImmediateSubmit(func(cb vk.CommandBuffer) {
		FillBuffer(cb, buf, 0, vk.AccessFlags(vk.AccessTransferReadBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit))
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := Download(dev, buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, make([]byte, 16)) {
		t.Fatalf("filled buffer = %v", got)
	}
}

func TestTextureViewsShareSampler(t *testing.T) {
	dev := newTestDevice(t)

	desc := device.DefaultSamplerDescriptor
	tex, err := NewTexture(dev, TextureDescriptor{
		Label:    "pyramid",
		Width:    64,
		Height:   32,
		MipCount: 4,
		Format:   vk.FormatR32Sfloat,
		Usage:    vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageStorageBit),
		Sampler:  &desc,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Destroy()

	view, err := tex.CreateView(2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if view.Owned() {
		t.Fatal("views must not own the image")
	}
	if view.Width() != 16 || view.Height() != 8 {
		t.Fatalf("mip 2 extent = %dx%d, want 16x8", view.Width(), view.Height())
	}
	if view.Sampler() != tex.Sampler() {
		t.Fatal("views with the same descriptor must share a sampler")
	}
	if n := dev.Samplers().ShareCount(desc); n != 2 {
		t.Fatalf("share count = %d, want 2", n)
	}
	view.Destroy()
	if n := dev.Samplers().ShareCount(desc); n != 1 {
		t.Fatalf("share count after release = %d, want 1", n)
	}
}

func TestTextureUploadPixels(t *testing.T) {
	dev := newTestDevice(t)

	pixels := bytes.Repeat([]byte{255, 0, 255, 255}, 4*4)
	tex, err := NewTexture(dev, TextureDescriptor{
		Label:  "checker",
		Width:  4,
		Height: 4,
		Format: vk.FormatR8g8b8a8Unorm,
		Usage:  vk.ImageUsageFlags(vk.ImageUsageSampledBit),
		Pixels: pixels,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Destroy()
	if !tex.Owned() || tex.MipCount() != 1 {
		t.Fatalf("owned=%v mips=%d", tex.Owned(), tex.MipCount())
	}
}
