package device

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func adapter(name string, discrete bool, family int, exts ...string) adapterInfo {
	m := make(map[string]bool)
	for _, e := range exts {
		m[e] = true
	}
	return adapterInfo{name: name, apiVersion: makeVersion(1, 3, 0), extensions: m, queueFamily: family, discrete: discrete}
}

func TestSelectAdapter(t *testing.T) {
	full := []string{"VK_KHR_swapchain", "VK_KHR_push_descriptor"}
	old := adapter("old", true, 0, full...)
	old.apiVersion = makeVersion(1, 2, 0)

	tests := []struct {
		name     string
		adapters []adapterInfo
		want     int
	}{
		{"none", nil, -1},
		{"missing push descriptor", []adapterInfo{adapter("a", false, 0, "VK_KHR_swapchain")}, -1},
		{"no present queue", []adapterInfo{adapter("a", false, -1, full...)}, -1},
		{"api too old", []adapterInfo{old}, -1},
		{"first suitable", []adapterInfo{adapter("a", false, 0, full...), adapter("b", false, 1, full...)}, 0},
		{"discrete preferred", []adapterInfo{adapter("a", false, 0, full...), adapter("b", true, 0, full...)}, 1},
		{"skips unsuitable", []adapterInfo{old, adapter("b", false, 2, full...)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reasons := selectAdapter(tt.adapters)
			if got != tt.want {
				t.Fatalf("selectAdapter = %d, want %d (reasons %v)", got, tt.want, reasons)
			}
			if got < 0 && len(tt.adapters) > 0 && len(reasons) != len(tt.adapters) {
				t.Fatalf("expected a reason per rejected adapter, got %v", reasons)
			}
		})
	}
}

func TestSelectMemoryType(t *testing.T) {
	deviceLocal := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	hostVisible := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	types := []memoryType{
		{flags: deviceLocal},
		{flags: hostVisible},
		{flags: deviceLocal | hostVisible},
	}

	required, preferred := accessFlags(AccessHost)
	if idx, ok := selectMemoryType(types, 0b111, required, preferred); !ok || idx != 1 {
		t.Fatalf("host access picked %d, %v", idx, ok)
	}
	required, preferred = accessFlags(AccessDevice)
	if idx, ok := selectMemoryType(types, 0b110, required, preferred); !ok || idx != 2 {
		t.Fatalf("device access with type 0 masked picked %d, %v", idx, ok)
	}
	if _, ok := selectMemoryType(types, 0b001, hostVisible, 0); ok {
		t.Fatal("no allowed type is host visible, selection must fail")
	}
	if idx, ok := selectMemoryType(types, 0b111, 0, deviceLocal|hostVisible); !ok || idx != 2 {
		t.Fatalf("preferred flags should pick the type with all of them, got %d", idx)
	}
}
