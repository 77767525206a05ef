package window

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	vk "github.com/goki/vulkan"
)

// Window provides platform windowing, key state, and Vulkan surface creation.
// Wraps platform-specific window implementations with a common interface.
type Window interface {
	device.SurfaceSource

	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetKeyDownCallback sets the callback for key press events. Repeats are not reported.
	//
	// Parameters:
	//   - callback: function receiving the virtual key code
	SetKeyDownCallback(callback func(keyCode uint32))

	// SetKeyUpCallback sets the callback for key release events.
	//
	// Parameters:
	//   - callback: function receiving the virtual key code
	SetKeyUpCallback(callback func(keyCode uint32))

	// IsKeyDown reports whether a key is currently held. Safe to call from any goroutine.
	//
	// Parameters:
	//   - key: the virtual key code
	//
	// Returns:
	//   - bool: true while the key is held
	IsKeyDown(key uint32) bool

	// IsRunning returns true if the window is still active.
	//
	// Returns:
	//   - bool: true if window is running, false if closed
	IsRunning() bool

	// RequestClose makes ProcessMessages return after its current iteration without destroying the window.
	// Safe to call from any goroutine.
	RequestClose()

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: error if close operation fails
	Close() error

	// ProcessMessages runs the window message loop on the calling goroutine, which must be the main one.
	// Blocks until the window is closed. Calls OnUpdate callback each iteration.
	ProcessMessages()

	// Width returns the current framebuffer width in pixels.
	//
	// Returns:
	//   - int: width in pixels
	Width() int

	// Height returns the current framebuffer height in pixels.
	//
	// Returns:
	//   - int: height in pixels
	Height() int
}

// keyState tracks held keys. The message loop writes it and the tick and render goroutines read it.
type keyState struct {
	mu   sync.Mutex
	down map[uint32]bool
}

// press records a key press and reports whether the key was up before.
func (k *keyState) press(key uint32) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.down == nil {
		k.down = make(map[uint32]bool)
	}
	was := k.down[key]
	k.down[key] = true
	return !was
}

func (k *keyState) release(key uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.down, key)
}

func (k *keyState) isDown(key uint32) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.down[key]
}

// engineWindow is the implementation of the Window interface.
// Holds window configuration, GLFW state, and event callbacks.
type engineWindow struct {
	// title is the window title displayed in the title bar.
	title string

	// maxWidth is the maximum allowed window width during resize.
	maxWidth int

	// maxHeight is the maximum allowed window height during resize.
	maxHeight int

	// minWidth is the minimum allowed window width during resize.
	minWidth int

	// minHeight is the minimum allowed window height during resize.
	minHeight int

	// sizeMu guards width and height, which the render goroutine reads.
	sizeMu sync.Mutex

	// width is the current framebuffer width in pixels.
	width int

	// height is the current framebuffer height in pixels.
	height int

	keys keyState

	// closeRequested ends ProcessMessages; RequestClose may set it from another goroutine.
	closeRequested atomic.Bool

	// internalWindow holds the platform-specific window data (glfwWindow).
	internalWindow any

	// onUpdate is called each iteration of the message loop (if set).
	onUpdate func()

	// onResize is called when the framebuffer is resized.
	onResize func(width, height int)

	// onKeyDown is called when a key is pressed.
	onKeyDown func(keyCode uint32)

	// onKeyUp is called when a key is released.
	onKeyUp func(keyCode uint32)
}

var _ Window = &engineWindow{}

// NewWindow creates a new Window with the specified options.
// Applies default values first, then each option in order. Must be called on the main goroutine.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the configured, visible window
func NewWindow(options ...WindowBuilderOption) Window {
	w := newEngineWindow(options...)
	if err := newPlatformWindow(w); err != nil {
		panic(fmt.Sprintf("failed to create platform window: %v", err))
	}
	return w
}

func newEngineWindow(options ...WindowBuilderOption) *engineWindow {
	w := &engineWindow{
		title:     "oxy-vk",
		maxWidth:  3840,
		maxHeight: 2160,
		minWidth:  320,
		minHeight: 200,
		width:     1280,
		height:    720,
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetKeyDownCallback(callback func(keyCode uint32)) {
	w.onKeyDown = callback
}

func (w *engineWindow) SetKeyUpCallback(callback func(keyCode uint32)) {
	w.onKeyUp = callback
}

func (w *engineWindow) IsKeyDown(key uint32) bool {
	return w.keys.isDown(key)
}

// keyEvent updates the key state and fires the callbacks.
func (w *engineWindow) keyEvent(key uint32, pressed bool) {
	if !pressed {
		w.keys.release(key)
		if w.onKeyUp != nil {
			w.onKeyUp(key)
		}
		return
	}
	if w.keys.press(key) && w.onKeyDown != nil {
		w.onKeyDown(key)
	}
}

// resized stores the framebuffer size and fires the resize callback.
func (w *engineWindow) resized(width, height int) {
	w.sizeMu.Lock()
	w.width, w.height = width, height
	w.sizeMu.Unlock()
	if w.onResize != nil {
		w.onResize(width, height)
	}
}

func (w *engineWindow) VulkanProcAddr() unsafe.Pointer {
	return platformVulkanProcAddr()
}

func (w *engineWindow) RequiredInstanceExtensions() []string {
	return platformRequiredInstanceExtensions(w)
}

func (w *engineWindow) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	return platformCreateSurface(w, instance)
}

func (w *engineWindow) FramebufferExtent() common.Extent2D {
	w.sizeMu.Lock()
	defer w.sizeMu.Unlock()
	return common.Extent2D{Width: uint32(max(w.width, 0)), Height: uint32(max(w.height, 0))}
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) RequestClose() {
	w.closeRequested.Store(true)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() && !w.closeRequested.Load() {
		if succ := platformProcessMessages(w); !succ {
			break
		}

		if w.onUpdate != nil {
			w.onUpdate()
		}

		runtime.Gosched()
	}
}

func (w *engineWindow) Width() int {
	w.sizeMu.Lock()
	defer w.sizeMu.Unlock()
	return w.width
}

func (w *engineWindow) Height() int {
	w.sizeMu.Lock()
	defer w.sizeMu.Unlock()
	return w.height
}
