package camera

// KeyState reports whether a key is currently held. The window implements it.
type KeyState interface {
	// IsKeyDown reports whether the key with the given virtual key code is held.
	//
	// Parameters:
	//   - key: the virtual key code (see the common.Key* constants)
	//
	// Returns:
	//   - bool: true while the key is held
	IsKeyDown(key uint32) bool
}

// CameraController defines the interface for camera control systems.
// Controllers own positional state (position and look direction). Camera reads from
// the controller and computes view/projection matrices. The controller is a free-flying
// first-person controller: yaw and pitch aim it, and movement follows its local axes.
type CameraController interface {
	// Position returns the camera's world-space position.
	//
	// Returns:
	//   - x, y, z: world-space camera position
	Position() (x, y, z float32)

	// Target returns a point one unit in front of the camera.
	//
	// Returns:
	//   - x, y, z: world-space look-at point
	Target() (x, y, z float32)

	// SetPosition sets the camera's world-space position directly.
	//
	// Parameters:
	//   - x, y, z: world-space coordinates
	SetPosition(x, y, z float32)

	// LookAt aims the camera at a world-space point, updating yaw and pitch.
	//
	// Parameters:
	//   - x, y, z: world-space coordinates
	LookAt(x, y, z float32)

	// Yaw returns the horizontal look angle around the Y axis. Zero looks down -Z.
	//
	// Returns:
	//   - float32: yaw in radians
	Yaw() float32

	// Pitch returns the vertical look angle, clamped short of straight up and down.
	//
	// Returns:
	//   - float32: pitch in radians
	Pitch() float32

	// Turn adds to yaw and pitch. Pitch is clamped to MaxPitch.
	//
	// Parameters:
	//   - yaw: radians to add to the yaw
	//   - pitch: radians to add to the pitch
	Turn(yaw, pitch float32)

	// MoveRight translates the camera along its local right axis.
	// Positive delta moves right, negative moves left.
	//
	// Parameters:
	//   - delta: distance in world units
	MoveRight(delta float32)

	// MoveUp translates the camera along the world up axis.
	//
	// Parameters:
	//   - delta: distance in world units
	MoveUp(delta float32)

	// MoveForward translates the camera along its look direction.
	// Positive delta moves forward, negative moves back.
	//
	// Parameters:
	//   - delta: distance in world units
	MoveForward(delta float32)

	// Update applies one step of keyboard control: W/S move forward and back, A/D strafe, Q/E move down
	// and up, the arrow keys turn, and shift multiplies the movement speed.
	//
	// Parameters:
	//   - deltaTime: elapsed time in seconds
	//   - keys: the current key state
	Update(deltaTime float32, keys KeyState)

	// MoveSpeed returns the movement speed in world units per second.
	//
	// Returns:
	//   - float32: units per second
	MoveSpeed() float32

	// TurnSpeed returns the keyboard turn speed in radians per second.
	//
	// Returns:
	//   - float32: radians per second
	TurnSpeed() float32
}
