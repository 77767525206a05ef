package device

import (
	"math/bits"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// DefaultMemoryBlockSize is the size of each device memory block the allocator carves sub-allocations from.
const DefaultMemoryBlockSize = 64 << 20

// MemoryAccess selects where an allocation lives.
type MemoryAccess int

const (
	// AccessDevice places the allocation in device-local memory. It is not mapped.
	AccessDevice MemoryAccess = iota

	// AccessHost places the allocation in host-visible, host-coherent memory that stays mapped for its lifetime.
	AccessHost
)

// ResourceTiling separates linear resources (buffers, linear images) from optimal-tiling images. The two kinds
// never share a memory block, so bufferImageGranularity cannot be violated between neighbours.
type ResourceTiling int

const (
	// TilingLinear is used for buffers and linear-tiling images.
	TilingLinear ResourceTiling = iota

	// TilingOptimal is used for optimal-tiling images.
	TilingOptimal
)

// Allocation is a sub-range of a device memory block.
type Allocation struct {
	// Memory is the device memory object backing the allocation; bind buffers and images to it at Offset.
	Memory vk.DeviceMemory
	// Offset is the byte offset of the allocation inside Memory.
	Offset vk.DeviceSize
	// Size is the number of bytes reserved.
	Size vk.DeviceSize
	// Mapped points at the first byte of the allocation for AccessHost allocations, nil otherwise.
	Mapped unsafe.Pointer

	block *memoryBlock
}

// AllocatorStats is a snapshot of allocator usage.
type AllocatorStats struct {
	Blocks      int
	Allocations int
	Reserved    uint64
	Used        uint64
}

// Allocator sub-allocates GPU memory out of large per-memory-type blocks.
type Allocator interface {
	// Allocate reserves memory satisfying the requirements.
	//
	// Parameters:
	//   - req: size, alignment and acceptable memory types, as reported by vkGet*MemoryRequirements
	//   - access: AccessHost for persistently mapped memory, AccessDevice otherwise
	//   - tiling: TilingLinear for buffers, TilingOptimal for optimal-tiling images
	//
	// Returns:
	//   - Allocation: the reserved range
	//   - error: when no memory type fits or the driver is out of memory
	Allocate(req vk.MemoryRequirements, access MemoryAccess, tiling ResourceTiling) (Allocation, error)

	// Free returns an allocation to its block. Freeing the zero Allocation is a no-op.
	//
	// Parameters:
	//   - a: the allocation to release
	Free(a Allocation)

	// Stats reports block and allocation counts.
	//
	// Returns:
	//   - AllocatorStats: current usage
	Stats() AllocatorStats

	// Destroy frees every block. Outstanding allocations become invalid.
	Destroy()
}

// memoryBlock is one vkAllocateMemory result with its free list.
type memoryBlock struct {
	memory    vk.DeviceMemory
	typeIndex uint32
	size      uint64
	mapped    unsafe.Pointer
	free      *freeList
	live      int
}

// memoryType mirrors the parts of VkMemoryType the selection logic needs.
type memoryType struct {
	flags vk.MemoryPropertyFlags
	heap  uint32
}

// blockKey selects a block list: one per memory type and tiling kind.
type blockKey struct {
	typeIndex uint32
	tiling    ResourceTiling
}

// allocator is the implementation of the Allocator interface.
type allocator struct {
	device    vk.Device
	types     []memoryType
	blockSize uint64
	blocks    map[blockKey][]*memoryBlock

	// createBlock allocates a new block; newBlock outside of tests.
	createBlock func(typeIndex uint32, size uint64, mapped bool) (*memoryBlock, error)

	mu *sync.Mutex
}

var _ Allocator = &allocator{}

func newAllocator(gpu vk.PhysicalDevice, dev vk.Device, blockSize uint64) *allocator {
	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(gpu, &props)
	props.Deref()

	types := make([]memoryType, props.MemoryTypeCount)
	for i := range types {
		t := props.MemoryTypes[i]
		t.Deref()
		types[i] = memoryType{flags: t.PropertyFlags, heap: t.HeapIndex}
	}

	a := &allocator{
		device:    dev,
		types:     types,
		blockSize: blockSize,
		blocks:    make(map[blockKey][]*memoryBlock),
		mu:        &sync.Mutex{},
	}
	a.createBlock = a.newBlock
	return a
}

// accessFlags returns the required and preferred property flags for an access mode.
func accessFlags(access MemoryAccess) (required, preferred vk.MemoryPropertyFlags) {
	switch access {
	case AccessHost:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit), 0
	default:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit), 0
	}
}

// selectMemoryType picks the memory type with every required flag and the fewest missing preferred flags.
func selectMemoryType(types []memoryType, typeBits uint32, required, preferred vk.MemoryPropertyFlags) (uint32, bool) {
	best := -1
	bestCost := 33
	for i, t := range types {
		if typeBits&(1<<uint(i)) == 0 {
			continue
		}
		if t.flags&required != required {
			continue
		}
		cost := bits.OnesCount32(uint32(preferred &^ t.flags))
		if cost == 0 {
			return uint32(i), true
		}
		if cost < bestCost {
			best, bestCost = i, cost
		}
	}
	if best < 0 {
		return 0, false
	}
	return uint32(best), true
}

func (a *allocator) Allocate(req vk.MemoryRequirements, access MemoryAccess, tiling ResourceTiling) (Allocation, error) {
	req.Deref()
	required, preferred := accessFlags(access)
	typeIndex, ok := selectMemoryType(a.types, req.MemoryTypeBits, required, preferred)
	if !ok {
		return Allocation{}, errors.Newf("no memory type for access %d (type bits %#x)", access, req.MemoryTypeBits)
	}

	size := uint64(req.Size)
	align := uint64(req.Alignment)

	a.mu.Lock()
	defer a.mu.Unlock()

	key := blockKey{typeIndex: typeIndex, tiling: tiling}
	for _, b := range a.blocks[key] {
		if off, ok := b.free.alloc(size, align); ok {
			return b.allocation(off, size), nil
		}
	}

	blockSize := max(a.blockSize, size)
	b, err := a.createBlock(typeIndex, blockSize, access == AccessHost)
	if err != nil {
		return Allocation{}, err
	}
	a.blocks[key] = append(a.blocks[key], b)

	off, ok := b.free.alloc(size, align)
	if !ok {
		return Allocation{}, errors.AssertionFailedf("fresh block of %d bytes cannot hold %d bytes", blockSize, size)
	}
	return b.allocation(off, size), nil
}

func (a *allocator) newBlock(typeIndex uint32, size uint64, mapped bool) (*memoryBlock, error) {
	var memory vk.DeviceMemory
	res := vk.AllocateMemory(a.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}, nil, &memory)
	if err := vk.Error(res); err != nil {
		return nil, errors.Wrapf(err, "allocate %d bytes of memory type %d", size, typeIndex)
	}

	b := &memoryBlock{memory: memory, typeIndex: typeIndex, size: size, free: newFreeList(size)}
	if mapped {
		var ptr unsafe.Pointer
		if err := vk.Error(vk.MapMemory(a.device, memory, 0, vk.DeviceSize(vk.WholeSize), 0, &ptr)); err != nil {
			vk.FreeMemory(a.device, memory, nil)
			return nil, errors.Wrap(err, "map memory block")
		}
		b.mapped = ptr
	}
	return b, nil
}

func (b *memoryBlock) allocation(offset, size uint64) Allocation {
	b.live++
	a := Allocation{
		Memory: b.memory,
		Offset: vk.DeviceSize(offset),
		Size:   vk.DeviceSize(size),
		block:  b,
	}
	if b.mapped != nil {
		a.Mapped = unsafe.Add(b.mapped, offset)
	}
	return a
}

func (a *allocator) Free(alloc Allocation) {
	if alloc.block == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	alloc.block.free.free(uint64(alloc.Offset), uint64(alloc.Size))
	alloc.block.live--
}

func (a *allocator) Stats() AllocatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	var s AllocatorStats
	for _, blocks := range a.blocks {
		for _, b := range blocks {
			s.Blocks++
			s.Allocations += b.live
			s.Reserved += b.size
			s.Used += b.size - b.free.available()
		}
	}
	return s
}

func (a *allocator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, blocks := range a.blocks {
		for _, b := range blocks {
			if b.mapped != nil {
				vk.UnmapMemory(a.device, b.memory)
			}
			vk.FreeMemory(a.device, b.memory, nil)
		}
		delete(a.blocks, key)
	}
}
