package device

import (
	"sync"
	"testing"

	vk "github.com/goki/vulkan"
)

// newFakeAllocator returns an allocator over one device-local memory type whose blocks are never backed by
// device memory.
func newFakeAllocator(blockSize uint64) (*allocator, *int) {
	created := 0
	a := &allocator{
		types:     []memoryType{{flags: vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)}},
		blockSize: blockSize,
		blocks:    make(map[blockKey][]*memoryBlock),
		mu:        &sync.Mutex{},
	}
	a.createBlock = func(typeIndex uint32, size uint64, mapped bool) (*memoryBlock, error) {
		created++
		return &memoryBlock{typeIndex: typeIndex, size: size, free: newFreeList(size)}, nil
	}
	return a, &created
}

func TestAllocatorSeparatesTilings(t *testing.T) {
	a, created := newFakeAllocator(1 << 20)
	req := vk.MemoryRequirements{Size: 1000, Alignment: 256, MemoryTypeBits: 1}

	buf, err := a.Allocate(req, AccessDevice, TilingLinear)
	if err != nil {
		t.Fatal(err)
	}
	img, err := a.Allocate(req, AccessDevice, TilingOptimal)
	if err != nil {
		t.Fatal(err)
	}
	if buf.block == img.block {
		t.Fatal("buffer and optimal image share a block")
	}
	if *created != 2 {
		t.Fatalf("created %d blocks, want 2", *created)
	}

	// Same tiling reuses the existing block.
	buf2, err := a.Allocate(req, AccessDevice, TilingLinear)
	if err != nil {
		t.Fatal(err)
	}
	if buf2.block != buf.block || buf2.Offset != 1024 {
		t.Fatalf("second buffer at block %p offset %d, want block %p offset 1024", buf2.block, buf2.Offset, buf.block)
	}
	if s := a.Stats(); s.Blocks != 2 || s.Allocations != 3 {
		t.Fatalf("stats = %+v", s)
	}

	a.Free(buf)
	a.Free(buf2)
	a.Free(img)
	if s := a.Stats(); s.Allocations != 0 || s.Used != 0 {
		t.Fatalf("stats after free = %+v", s)
	}
}

func TestAllocatorOversizeGetsOwnBlock(t *testing.T) {
	a, _ := newFakeAllocator(4096)
	big, err := a.Allocate(vk.MemoryRequirements{Size: 10000, Alignment: 16, MemoryTypeBits: 1}, AccessDevice, TilingLinear)
	if err != nil {
		t.Fatal(err)
	}
	if big.block.size != 10000 {
		t.Fatalf("block size = %d, want 10000", big.block.size)
	}
	if _, err := a.Allocate(vk.MemoryRequirements{Size: 16, Alignment: 16, MemoryTypeBits: 2}, AccessDevice, TilingLinear); err == nil {
		t.Fatal("allocation with no matching memory type must fail")
	}
}

func TestBuilderOptions(t *testing.T) {
	d := &device{blockSize: DefaultMemoryBlockSize}
	for _, opt := range []DeviceBuilderOption{
		WithValidationLayers(true),
		WithMeshShading(true),
		WithApplicationName("demo"),
		WithMemoryBlockSize(8 << 20),
	} {
		opt(d)
	}
	if !d.validation || !d.meshShadingRequested || d.appName != "demo" || d.blockSize != 8<<20 {
		t.Fatalf("options not applied: validation %v mesh %v name %q block %d",
			d.validation, d.meshShadingRequested, d.appName, d.blockSize)
	}
}
