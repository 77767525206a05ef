package camera

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/common"
)

type heldKeys map[uint32]bool

func (h heldKeys) IsKeyDown(key uint32) bool { return h[key] }

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func TestControllerDefaults(t *testing.T) {
	cc := NewCameraController()
	x, y, z := cc.Target()
	if !near(x, 0) || !near(y, 0) || !near(z, -1) {
		t.Fatalf("target = (%v, %v, %v), want (0, 0, -1)", x, y, z)
	}
}

func TestControllerLookAt(t *testing.T) {
	cc := NewCameraController(WithPosition(1, 2, 3))
	cc.LookAt(11, 2, 3)
	if !near(cc.Yaw(), math.Pi/2) || !near(cc.Pitch(), 0) {
		t.Fatalf("yaw %v pitch %v", cc.Yaw(), cc.Pitch())
	}
	cc.MoveForward(2)
	x, y, z := cc.Position()
	if !near(x, 3) || !near(y, 2) || !near(z, 3) {
		t.Errorf("position = (%v, %v, %v)", x, y, z)
	}

	cc.LookAt(3, 100, 3)
	if cc.Pitch() != MaxPitch {
		t.Errorf("pitch %v not clamped", cc.Pitch())
	}
}

func TestControllerUpdate(t *testing.T) {
	tests := []struct {
		name string
		keys heldKeys
		want [3]float32
	}{
		{"forward", heldKeys{common.KeyW: true}, [3]float32{0, 0, -10}},
		{"back", heldKeys{common.KeyS: true}, [3]float32{0, 0, 10}},
		{"strafe", heldKeys{common.KeyD: true}, [3]float32{10, 0, 0}},
		{"up", heldKeys{common.KeyE: true}, [3]float32{0, 10, 0}},
		{"cancel", heldKeys{common.KeyW: true, common.KeyS: true}, [3]float32{}},
		{"boost", heldKeys{common.KeyA: true, common.KeyLeftShift: true}, [3]float32{-40, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := NewCameraController(WithMoveSpeed(10))
			cc.Update(1, tt.keys)
			x, y, z := cc.Position()
			if !near(x, tt.want[0]) || !near(y, tt.want[1]) || !near(z, tt.want[2]) {
				t.Errorf("position = (%v, %v, %v), want %v", x, y, z, tt.want)
			}
		})
	}
}

func TestControllerTurnKeys(t *testing.T) {
	cc := NewCameraController(WithTurnSpeed(1))
	cc.Update(0.5, heldKeys{common.KeyRight: true, common.KeyUp: true})
	if !near(cc.Yaw(), 0.5) || !near(cc.Pitch(), 0.5) {
		t.Errorf("yaw %v pitch %v", cc.Yaw(), cc.Pitch())
	}
	cc.Update(10, heldKeys{common.KeyDown: true})
	if cc.Pitch() != -MaxPitch {
		t.Errorf("pitch %v not clamped", cc.Pitch())
	}
}

func TestReverseZDepth(t *testing.T) {
	c := NewCamera(WithNear(0.5), WithController(NewCameraController()))
	vp := c.ViewProjectionMatrix()

	depth := func(d float32) float32 {
		// Rows 2 and 3 of a column-major multiply with (0, 0, -d, 1).
		z := vp[10]*-d + vp[14]
		w := vp[11]*-d + vp[15]
		return z / w
	}
	if !near(depth(0.5), 1) {
		t.Errorf("near plane depth = %v, want 1", depth(0.5))
	}
	if d := depth(1000); d <= 0 || d >= 0.001 {
		t.Errorf("far depth = %v, want just above 0", d)
	}
	if depth(10) <= depth(20) {
		t.Error("depth does not decrease with distance")
	}
}

func TestCameraUniform(t *testing.T) {
	c := NewCamera(WithController(NewCameraController(WithPosition(4, 5, 6))))
	u := c.Uniform()
	if u.CameraPosition != [3]float32{4, 5, 6} {
		t.Errorf("camera position = %v", u.CameraPosition)
	}
	if u.ViewProj != c.ViewProjectionMatrix() {
		t.Error("uniform view-projection differs from the camera's")
	}
	if n := len(u.Marshal()); n != 80 {
		t.Errorf("marshaled size = %d, want 80", n)
	}
}

func TestFrustumPlanes(t *testing.T) {
	c := NewCamera(WithFov(math.Pi/2), WithAspect(1))
	p := c.FrustumPlanes()
	// A 90 degree frustum has side planes at 45 degrees.
	want := float32(math.Sqrt2 / 2)
	if !near(p[0], want) || !near(p[2], want) || !near(p[1], -want) || !near(p[3], -want) {
		t.Errorf("planes = %v", p)
	}
}
