package camera

// CameraControllerOption is a functional option for configuring a CameraController.
type CameraControllerOption func(*cameraControllerImpl)

// WithPosition sets the initial world-space position.
//
// Parameters:
//   - x, y, z: world-space coordinates
//
// Returns:
//   - CameraControllerOption: functional option to set the position
func WithPosition(x, y, z float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.position = [3]float32{x, y, z}
	}
}

// WithYaw sets the initial horizontal look angle.
//
// Parameters:
//   - yaw: radians around the Y axis (0 looks down -Z)
//
// Returns:
//   - CameraControllerOption: functional option to set the yaw
func WithYaw(yaw float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.yaw = yaw
	}
}

// WithPitch sets the initial vertical look angle. It is clamped to MaxPitch.
//
// Parameters:
//   - pitch: radians above the horizon
//
// Returns:
//   - CameraControllerOption: functional option to set the pitch
func WithPitch(pitch float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.pitch = pitch
	}
}

// WithMoveSpeed sets the movement speed.
//
// Parameters:
//   - speed: world units per second
//
// Returns:
//   - CameraControllerOption: functional option to set the movement speed
func WithMoveSpeed(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.moveSpeed = speed
	}
}

// WithTurnSpeed sets the keyboard turn speed.
//
// Parameters:
//   - speed: radians per second
//
// Returns:
//   - CameraControllerOption: functional option to set the turn speed
func WithTurnSpeed(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.turnSpeed = speed
	}
}

// WithBoostScale sets the movement multiplier applied while shift is held.
//
// Parameters:
//   - scale: the multiplier
//
// Returns:
//   - CameraControllerOption: functional option to set the boost
func WithBoostScale(scale float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.boostScale = scale
	}
}
