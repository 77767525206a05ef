package common

import (
	"math"
	"testing"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		value, alignment, want uint64
	}{
		{0, 256, 0},
		{1, 256, 256},
		{256, 256, 256},
		{257, 256, 512},
		{17, 0, 17},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.value, tt.alignment); got != tt.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", tt.value, tt.alignment, got, tt.want)
		}
	}
}

func TestQuantizeHalfExactValues(t *testing.T) {
	for _, v := range []float32{0, 1, -1, 0.5, 2, 1024, -0.25} {
		if got := DequantizeHalf(QuantizeHalf(v)); got != v {
			t.Errorf("half(%v) decoded to %v", v, got)
		}
	}
	if QuantizeHalf(1) != 0x3c00 {
		t.Errorf("QuantizeHalf(1) = %#x, want 0x3c00", QuantizeHalf(1))
	}
}

func TestQuantizeUnorm8Clamps(t *testing.T) {
	if QuantizeUnorm8(-3) != 0 || QuantizeUnorm8(7) != 255 || QuantizeUnorm8(0.5) != 128 {
		t.Errorf("unexpected unorm8 values %d %d %d", QuantizeUnorm8(-3), QuantizeUnorm8(7), QuantizeUnorm8(0.5))
	}
	if QuantizeSnorm8(-1) != -127 || QuantizeSnorm8(1) != 127 {
		t.Errorf("unexpected snorm8 range")
	}
}

func TestPerspectiveReverseZDepth(t *testing.T) {
	var p [16]float32
	near := float32(0.5)
	PerspectiveReverseZ(p[:], float32(math.Pi/2), 1, near)

	depth := func(z float32) float32 {
		clipZ := p[10]*z + p[14]
		clipW := p[11]*z + p[15]
		return clipZ / clipW
	}
	if d := depth(-near); math.Abs(float64(d-1)) > 1e-6 {
		t.Errorf("depth at near plane = %v, want 1", d)
	}
	if d := depth(-1e6); d <= 0 || d > 1e-5 {
		t.Errorf("depth far away = %v, want approaching 0", d)
	}
}

func TestSidePlanesNormalized(t *testing.T) {
	var proj [16]float32
	PerspectiveReverseZ(proj[:], float32(math.Pi/2), 1, 0.1)
	p := SidePlanes(proj[:])
	for i := 0; i < 4; i += 2 {
		l := math.Hypot(float64(p[i]), float64(p[i+1]))
		if math.Abs(l-1) > 1e-5 {
			t.Errorf("plane %d has length %v", i/2, l)
		}
	}
}

func TestSidePlanesCullSpheres(t *testing.T) {
	var proj [16]float32
	PerspectiveReverseZ(proj[:], float32(math.Pi/2), 1, 0.1)
	p := SidePlanes(proj[:])

	visible := func(c [3]float32, r float32) bool {
		x := c[2]*p[1]-float32(math.Abs(float64(c[0])))*p[0] > -r
		y := c[2]*p[3]-float32(math.Abs(float64(c[1])))*p[2] > -r
		return x && y
	}
	tests := []struct {
		center [3]float32
		want   bool
	}{
		{[3]float32{0, 0, -10}, true},
		{[3]float32{100, 0, -10}, false},
		{[3]float32{0, -100, -10}, false},
		{[3]float32{10.5, 0, -10}, true},
	}
	for _, tt := range tests {
		if got := visible(tt.center, 1); got != tt.want {
			t.Errorf("visible(%v) = %v, want %v", tt.center, got, tt.want)
		}
	}
}

func TestLookAtDownNegativeZIsIdentity(t *testing.T) {
	var proj, view, vp [16]float32
	PerspectiveReverseZ(proj[:], float32(math.Pi/2), 1, 0.1)
	LookAt(view[:], 0, 0, 0, 0, 0, -1, 0, 1, 0)
	Mul4(vp[:], proj[:], view[:])
	for i := range vp {
		if math.Abs(float64(vp[i]-proj[i])) > 1e-6 {
			t.Fatalf("vp[%d] = %v, want %v", i, vp[i], proj[i])
		}
	}
}
