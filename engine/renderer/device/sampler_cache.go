package device

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// SamplerReduction selects the filter reduction mode of a sampler.
type SamplerReduction uint32

const (
	// ReductionWeightedAverage is regular filtering.
	ReductionWeightedAverage SamplerReduction = 0
	// ReductionMin returns the minimum of the filter footprint (depth pyramid builds).
	ReductionMin SamplerReduction = 1
	// ReductionMax returns the maximum of the filter footprint.
	ReductionMax SamplerReduction = 2
)

// SamplerDescriptor fully describes a sampler. Equal descriptors share one native sampler.
type SamplerDescriptor struct {
	MagFilter     vk.Filter
	MinFilter     vk.Filter
	MipmapMode    vk.SamplerMipmapMode
	AddressMode   vk.SamplerAddressMode
	Reduction     SamplerReduction
	MaxAnisotropy float32
	MaxLod        float32
}

// DefaultSamplerDescriptor is linear filtering with repeat addressing over the full mip chain.
var DefaultSamplerDescriptor = SamplerDescriptor{
	MagFilter:   vk.FilterLinear,
	MinFilter:   vk.FilterLinear,
	MipmapMode:  vk.SamplerMipmapModeLinear,
	AddressMode: vk.SamplerAddressModeRepeat,
	MaxLod:      16,
}

// refEntry is a shared value with the number of holders.
type refEntry[V any] struct {
	value V
	count int
}

// refCache shares values by key and destroys each one exactly once, when its last holder releases it.
type refCache[K comparable, V any] struct {
	entries map[K]*refEntry[V]
	create  func(K) (V, error)
	destroy func(V)

	mu *sync.Mutex
}

func newRefCache[K comparable, V any](create func(K) (V, error), destroy func(V)) *refCache[K, V] {
	return &refCache[K, V]{
		entries: make(map[K]*refEntry[V]),
		create:  create,
		destroy: destroy,
		mu:      &sync.Mutex{},
	}
}

func (c *refCache[K, V]) acquire(key K) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.count++
		return e.value, nil
	}
	v, err := c.create(key)
	if err != nil {
		var zero V
		return zero, err
	}
	c.entries[key] = &refEntry[V]{value: v, count: 1}
	return v, nil
}

func (c *refCache[K, V]) release(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		panic(errors.AssertionFailedf("release of a key that is not held: %+v", key))
	}
	e.count--
	if e.count == 0 {
		c.destroy(e.value)
		delete(c.entries, key)
	}
}

func (c *refCache[K, V]) shareCount(key K) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e.count
	}
	return 0
}

// destroyAll releases every remaining value regardless of its share count.
func (c *refCache[K, V]) destroyAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		c.destroy(e.value)
		delete(c.entries, k)
	}
}

// SamplerCache deduplicates samplers by descriptor. It is owned by the Device and destroyed with it.
type SamplerCache struct {
	cache *refCache[SamplerDescriptor, vk.Sampler]
}

func newSamplerCache(dev vk.Device, maxAnisotropy float32) *SamplerCache {
	create := func(d SamplerDescriptor) (vk.Sampler, error) {
		return createSampler(dev, d, maxAnisotropy)
	}
	destroy := func(s vk.Sampler) {
		vk.DestroySampler(dev, s, nil)
	}
	return &SamplerCache{cache: newRefCache(create, destroy)}
}

// Acquire returns the sampler for desc, creating it on first use. Every Acquire must be paired with a Release.
//
// Parameters:
//   - desc: the sampler configuration
//
// Returns:
//   - vk.Sampler: the shared native sampler
//   - error: when sampler creation fails
func (c *SamplerCache) Acquire(desc SamplerDescriptor) (vk.Sampler, error) {
	return c.cache.acquire(desc)
}

// Release drops one reference to the sampler for desc and destroys it when no references remain.
//
// Parameters:
//   - desc: the sampler configuration previously passed to Acquire
func (c *SamplerCache) Release(desc SamplerDescriptor) {
	c.cache.release(desc)
}

// ShareCount reports how many holders the sampler for desc currently has.
//
// Parameters:
//   - desc: the sampler configuration
//
// Returns:
//   - int: number of outstanding references, zero if none
func (c *SamplerCache) ShareCount(desc SamplerDescriptor) int {
	return c.cache.shareCount(desc)
}

func (c *SamplerCache) destroy() {
	c.cache.destroyAll()
}

func createSampler(dev vk.Device, d SamplerDescriptor, deviceMaxAnisotropy float32) (vk.Sampler, error) {
	anisotropy := min(d.MaxAnisotropy, deviceMaxAnisotropy)
	info := vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        d.MagFilter,
		MinFilter:        d.MinFilter,
		MipmapMode:       d.MipmapMode,
		AddressModeU:     d.AddressMode,
		AddressModeV:     d.AddressMode,
		AddressModeW:     d.AddressMode,
		AnisotropyEnable: vk.False,
		MaxAnisotropy:    1,
		CompareOp:        vk.CompareOpAlways,
		MinLod:           0,
		MaxLod:           d.MaxLod,
		BorderColor:      vk.BorderColorFloatTransparentBlack,
	}
	if anisotropy > 1 {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = anisotropy
	}

	var pin runtime.Pinner
	defer pin.Unpin()
	if d.Reduction != ReductionWeightedAverage {
		reduction := &samplerReductionModeCreateInfo{
			sType:         structureTypeSamplerReductionModeCreateInfo,
			reductionMode: uint32(d.Reduction),
		}
		pin.Pin(reduction)
		info.PNext = unsafe.Pointer(reduction)
	}

	var sampler vk.Sampler
	if err := vk.Error(vk.CreateSampler(dev, &info, nil, &sampler)); err != nil {
		return sampler, errors.Wrapf(err, "create sampler %+v", d)
	}
	return sampler, nil
}
