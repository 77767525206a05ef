package device

import "sort"

// span is a free region inside a memory block.
type span struct {
	offset, size uint64
}

// freeList tracks free regions of a single memory block. Regions are kept sorted by offset and
// adjacent regions are always merged, so the list never holds two touching spans.
type freeList struct {
	capacity uint64
	spans    []span
}

func newFreeList(capacity uint64) *freeList {
	return &freeList{capacity: capacity, spans: []span{{0, capacity}}}
}

// alloc finds the first span that can hold size bytes at the given alignment.
func (f *freeList) alloc(size, alignment uint64) (uint64, bool) {
	if size == 0 {
		return 0, false
	}
	if alignment == 0 {
		alignment = 1
	}
	for i, s := range f.spans {
		start := (s.offset + alignment - 1) / alignment * alignment
		pad := start - s.offset
		if pad+size > s.size {
			continue
		}

		end := start + size
		tail := span{end, s.offset + s.size - end}

		var replace []span
		if pad > 0 {
			replace = append(replace, span{s.offset, pad})
		}
		if tail.size > 0 {
			replace = append(replace, tail)
		}
		f.spans = append(f.spans[:i], append(replace, f.spans[i+1:]...)...)
		return start, true
	}
	return 0, false
}

// free returns [offset, offset+size) to the list, merging with neighbours.
func (f *freeList) free(offset, size uint64) {
	i := sort.Search(len(f.spans), func(i int) bool { return f.spans[i].offset >= offset })
	f.spans = append(f.spans, span{})
	copy(f.spans[i+1:], f.spans[i:])
	f.spans[i] = span{offset, size}

	if i+1 < len(f.spans) && f.spans[i].offset+f.spans[i].size == f.spans[i+1].offset {
		f.spans[i].size += f.spans[i+1].size
		f.spans = append(f.spans[:i+1], f.spans[i+2:]...)
	}
	if i > 0 && f.spans[i-1].offset+f.spans[i-1].size == f.spans[i].offset {
		f.spans[i-1].size += f.spans[i].size
		f.spans = append(f.spans[:i], f.spans[i+1:]...)
	}
}

// empty reports whether every byte of the block is free.
func (f *freeList) empty() bool {
	return len(f.spans) == 1 && f.spans[0].offset == 0 && f.spans[0].size == f.capacity
}

// available returns the total number of free bytes.
func (f *freeList) available() uint64 {
	var n uint64
	for _, s := range f.spans {
		n += s.size
	}
	return n
}
