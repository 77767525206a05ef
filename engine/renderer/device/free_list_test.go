package device

import "testing"

func TestFreeListAlignment(t *testing.T) {
	f := newFreeList(1024)

	a, ok := f.alloc(10, 1)
	if !ok || a != 0 {
		t.Fatalf("first alloc = %d, %v", a, ok)
	}
	b, ok := f.alloc(16, 256)
	if !ok || b != 256 {
		t.Fatalf("aligned alloc = %d, %v, want 256", b, ok)
	}
	// The gap between 10 and 256 stays usable.
	c, ok := f.alloc(100, 4)
	if !ok || c != 12 {
		t.Fatalf("gap alloc = %d, %v, want 12", c, ok)
	}
}

func TestFreeListCoalesces(t *testing.T) {
	f := newFreeList(300)
	offsets := make([]uint64, 3)
	for i := range offsets {
		off, ok := f.alloc(100, 1)
		if !ok {
			t.Fatalf("alloc %d failed", i)
		}
		offsets[i] = off
	}
	if _, ok := f.alloc(1, 1); ok {
		t.Fatal("block should be full")
	}

	f.free(offsets[0], 100)
	f.free(offsets[2], 100)
	if len(f.spans) != 2 {
		t.Fatalf("expected 2 disjoint spans, got %v", f.spans)
	}
	f.free(offsets[1], 100)
	if !f.empty() {
		t.Fatalf("expected a single full span after freeing everything, got %v", f.spans)
	}
	if f.available() != 300 {
		t.Fatalf("available = %d, want 300", f.available())
	}
}

func TestFreeListRejectsOversize(t *testing.T) {
	f := newFreeList(64)
	if _, ok := f.alloc(65, 1); ok {
		t.Fatal("oversize allocation must fail")
	}
	if _, ok := f.alloc(0, 1); ok {
		t.Fatal("zero-size allocation must fail")
	}
}
