package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-vk/common"
)

// MaxPitch keeps the look direction off the world up axis, where LookAt degenerates.
const MaxPitch = float32(math.Pi/2 - 0.01)

// cameraControllerImpl is the single implementation of CameraController.
type cameraControllerImpl struct {
	mu *sync.Mutex

	position [3]float32

	yaw   float32
	pitch float32

	moveSpeed  float32
	turnSpeed  float32
	boostScale float32
}

// Compile-time interface compliance check
var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates a new fly controller with sensible defaults.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu:         &sync.Mutex{},
		position:   [3]float32{0, 0, 0},
		moveSpeed:  10.0,
		turnSpeed:  1.5,
		boostScale: 4.0,
	}

	for _, option := range options {
		option(cc)
	}
	cc.pitch = common.Clamp(cc.pitch, -MaxPitch, MaxPitch)
	return cc
}

// --- internal helpers ---

// localAxes computes the camera's forward and right vectors from yaw and pitch. Right stays horizontal.
// Caller must hold the mutex.
func (cc *cameraControllerImpl) localAxes() (forward, right [3]float32) {
	sy, cy := math.Sincos(float64(cc.yaw))
	sp, cp := math.Sincos(float64(cc.pitch))

	forward = [3]float32{float32(sy * cp), float32(sp), float32(-cy * cp)}
	right = [3]float32{float32(cy), 0, float32(sy)}
	return forward, right
}

// translate moves the position along axis. Caller must hold the mutex.
func (cc *cameraControllerImpl) translate(axis [3]float32, delta float32) {
	cc.position[0] += axis[0] * delta
	cc.position[1] += axis[1] * delta
	cc.position[2] += axis[2] * delta
}

// --- CameraController methods ---

func (cc *cameraControllerImpl) Position() (x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position[0], cc.position[1], cc.position[2]
}

func (cc *cameraControllerImpl) SetPosition(x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.position = [3]float32{x, y, z}
}

func (cc *cameraControllerImpl) Target() (x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	f, _ := cc.localAxes()
	return cc.position[0] + f[0], cc.position[1] + f[1], cc.position[2] + f[2]
}

func (cc *cameraControllerImpl) LookAt(x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	d := common.Normalize3([3]float32{x - cc.position[0], y - cc.position[1], z - cc.position[2]})
	if d == ([3]float32{}) {
		return
	}
	cc.yaw = float32(math.Atan2(float64(d[0]), float64(-d[2])))
	cc.pitch = common.Clamp(float32(math.Asin(float64(d[1]))), -MaxPitch, MaxPitch)
}

func (cc *cameraControllerImpl) Yaw() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.yaw
}

func (cc *cameraControllerImpl) Pitch() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.pitch
}

func (cc *cameraControllerImpl) Turn(yaw, pitch float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.yaw = float32(math.Remainder(float64(cc.yaw+yaw), 2*math.Pi))
	cc.pitch = common.Clamp(cc.pitch+pitch, -MaxPitch, MaxPitch)
}

func (cc *cameraControllerImpl) MoveRight(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	_, r := cc.localAxes()
	cc.translate(r, delta)
}

func (cc *cameraControllerImpl) MoveUp(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.position[1] += delta
}

func (cc *cameraControllerImpl) MoveForward(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	f, _ := cc.localAxes()
	cc.translate(f, delta)
}

func (cc *cameraControllerImpl) Update(deltaTime float32, keys KeyState) {
	if keys == nil || deltaTime <= 0 {
		return
	}
	axis := func(positive, negative uint32) float32 {
		var v float32
		if keys.IsKeyDown(positive) {
			v++
		}
		if keys.IsKeyDown(negative) {
			v--
		}
		return v
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	step := cc.moveSpeed * deltaTime
	if keys.IsKeyDown(common.KeyLeftShift) || keys.IsKeyDown(common.KeyRightShift) {
		step *= cc.boostScale
	}
	turn := cc.turnSpeed * deltaTime

	cc.yaw = float32(math.Remainder(float64(cc.yaw+axis(common.KeyRight, common.KeyLeft)*turn), 2*math.Pi))
	cc.pitch = common.Clamp(cc.pitch+axis(common.KeyUp, common.KeyDown)*turn, -MaxPitch, MaxPitch)

	f, r := cc.localAxes()
	cc.translate(f, axis(common.KeyW, common.KeyS)*step)
	cc.translate(r, axis(common.KeyD, common.KeyA)*step)
	cc.position[1] += axis(common.KeyE, common.KeyQ) * step
}

func (cc *cameraControllerImpl) MoveSpeed() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.moveSpeed
}

func (cc *cameraControllerImpl) TurnSpeed() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.turnSpeed
}
