package frame

import (
	"github.com/cockroachdb/errors"
)

// MaxFramesInFlight is the number of frames the CPU may record ahead of the GPU.
const MaxFramesInFlight = 2

// SlotState is the lifecycle position of one frame slot.
type SlotState int

const (
	// SlotIdle means the slot's previous submission, if any, has completed.
	SlotIdle SlotState = iota

	// SlotAcquiring means the slot is waiting for a swapchain image.
	SlotAcquiring

	// SlotRecording means the slot's command buffer is open.
	SlotRecording

	// SlotSubmitted means the slot's work is queued and its fence is pending.
	SlotSubmitted
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotAcquiring:
		return "acquiring"
	case SlotRecording:
		return "recording"
	case SlotSubmitted:
		return "submitted"
	}
	return "unknown"
}

// validTransition reports whether a slot may move from one state to another. A failed acquire returns the slot
// to idle; every other step moves forward around the cycle.
func validTransition(from, to SlotState) bool {
	switch from {
	case SlotIdle:
		return to == SlotAcquiring
	case SlotAcquiring:
		return to == SlotRecording || to == SlotIdle
	case SlotRecording:
		return to == SlotSubmitted
	case SlotSubmitted:
		return to == SlotIdle
	}
	return false
}

// slotMachine tracks one slot's state and panics on illegal transitions.
type slotMachine struct {
	index int
	state SlotState
}

func (m *slotMachine) transition(to SlotState) {
	if !validTransition(m.state, to) {
		panic(errors.AssertionFailedf("frame slot %d: illegal transition %s -> %s", m.index, m.state, to))
	}
	m.state = to
}
