package device

import (
	"testing"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// newTestDevice creates a headless device or skips the test when no Vulkan 1.3 implementation is present.
func newTestDevice(t *testing.T) Device {
	t.Helper()
	dev, err := New(nil, WithValidationLayers(false), WithMeshShading(true))
	if err != nil {
		t.Skipf("vulkan unavailable: %v", err)
	}
	t.Cleanup(dev.Destroy)
	return dev
}

func TestMirrorStructLayouts(t *testing.T) {
	if unsafe.Sizeof(uintptr(0)) != 8 {
		t.Skip("mirror structs target 64-bit layouts")
	}
	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"renderingAttachmentInfo", unsafe.Sizeof(renderingAttachmentInfo{}), 72},
		{"renderingAttachmentInfo.clearValue", unsafe.Offsetof(renderingAttachmentInfo{}.clearValue), 52},
		{"renderingInfo", unsafe.Sizeof(renderingInfo{}), 72},
		{"renderingInfo.pColorAttachments", unsafe.Offsetof(renderingInfo{}.pColorAttachments), 48},
		{"pipelineRenderingCreateInfo", unsafe.Sizeof(pipelineRenderingCreateInfo{}), 40},
		{"descriptorUpdateTemplateEntry", unsafe.Sizeof(descriptorUpdateTemplateEntry{}), 32},
		{"descriptorUpdateTemplateCreateInfo", unsafe.Sizeof(descriptorUpdateTemplateCreateInfo{}), 72},
		{"descriptorUpdateTemplateCreateInfo.pipelineLayout", unsafe.Offsetof(descriptorUpdateTemplateCreateInfo{}.pipelineLayout), 56},
		{"physicalDeviceFeatures2", unsafe.Sizeof(physicalDeviceFeatures2{}), 240},
		{"vulkan12Features", unsafe.Sizeof(vulkan12Features{}), 208},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestImmediateSubmitRunsRecordOnce(t *testing.T) {
	dev := newTestDevice(t)

	calls := 0
	err := dev.ImmediateSubmit(func(cb vk.CommandBuffer) {
		calls++
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("record called %d times, want 1", calls)
	}
}

func TestAllocatorOnDevice(t *testing.T) {
	dev := newTestDevice(t)
	alloc := dev.Allocator()

	req := vk.MemoryRequirements{Size: 4096, Alignment: 256, MemoryTypeBits: ^uint32(0)}
	a, err := alloc.Allocate(req, AccessHost, TilingLinear)
	if err != nil {
		t.Fatal(err)
	}
	if a.Mapped == nil {
		t.Fatal("host allocation must be mapped")
	}
	b, err := alloc.Allocate(req, AccessHost, TilingLinear)
	if err != nil {
		t.Fatal(err)
	}
	if a.Memory == b.Memory && a.Offset == b.Offset {
		t.Fatal("two live allocations overlap")
	}
	if s := alloc.Stats(); s.Allocations != 2 || s.Blocks != 1 {
		t.Fatalf("stats = %+v, want 2 allocations in 1 block", s)
	}
	alloc.Free(a)
	alloc.Free(b)
	if s := alloc.Stats(); s.Allocations != 0 || s.Used != 0 {
		t.Fatalf("stats after free = %+v", s)
	}
}
