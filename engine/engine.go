package engine

import (
	"log"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/gui"
	"github.com/Carmen-Shannon/oxy-vk/engine/profiler"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/frame"
	"github.com/Carmen-Shannon/oxy-vk/engine/scene"
	"github.com/Carmen-Shannon/oxy-vk/engine/window"
	"github.com/cockroachdb/errors"
)

// minimizedPollInterval is how long the render loop sleeps while the window has no area.
const minimizedPollInterval = 50 * time.Millisecond

// engine implements the Engine interface.
// Coordinates engine, render, and window threads.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	// running is cleared by signalQuit, which may run on the render goroutine.
	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window   window.Window
	renderer renderer.Renderer
	overlay  *gui.Overlay

	profiler         *profiler.Profiler
	profilingEnabled bool

	settingsMu sync.Mutex
	settings   gui.Settings

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	scenesMu sync.Mutex
	scenes   map[int]scene.Scene

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point for the engine.
// It orchestrates the engine loop, render loop, and window management.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Renderer returns the renderer frames are recorded through.
	//
	// Returns:
	//   - renderer.Renderer: the renderer instance
	Renderer() renderer.Renderer

	// Settings returns a copy of the current runtime toggles.
	//
	// Returns:
	//   - gui.Settings: the toggles
	Settings() gui.Settings

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick, after the scene cameras have moved.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each submitted frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// AddScene registers a scene at the given z-index key.
	// Scenes are recorded in ascending key order during the render loop.
	//
	// Parameters:
	//   - key: the z-index determining record order (lower records first)
	//   - s: the Scene to register
	AddScene(key int, s scene.Scene)

	// RemoveScene removes the scene at the given z-index key.
	//
	// Parameters:
	//   - key: the z-index of the scene to remove
	RemoveScene(key int)

	// Scene retrieves the scene registered at the given z-index key.
	// Returns nil if no scene exists at that key.
	//
	// Parameters:
	//   - key: the z-index of the scene to retrieve
	//
	// Returns:
	//   - scene.Scene: the scene at the key, or nil if not found
	Scene(key int) scene.Scene

	// Scenes returns a copy of all registered scenes keyed by z-index.
	//
	// Returns:
	//   - map[int]scene.Scene: a copy of the scenes map
	Scenes() map[int]scene.Scene

	// Run starts the engine and render goroutines and runs the window message loop on the calling goroutine,
	// which must be the main one. Blocks until the window closes or Quit is called, then waits for the GPU and
	// releases the scenes, the overlay, the renderer and the window.
	Run()

	// Quit signals all engine goroutines to stop and shuts down the engine.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// Options are applied directly to the engine struct via the option-builder pattern. A window and a renderer
// are required.
//
// Parameters:
//   - options: functional options for engine configuration (window, renderer, overlay, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := newEngine(options...)
	if e.window == nil || e.renderer == nil {
		panic("engine: NewEngine requires WithWindow and WithRenderer")
	}
	e.settings = gui.DefaultSettings(e.renderer.Device().MeshShadingEnabled())
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithGPUSource(e.renderer))
	}

	e.window.SetResizeCallback(e.resized)
	e.window.SetKeyDownCallback(e.keyDown)
	e.window.SetUpdateCallback(func() {
		select {
		case <-e.quitChannel:
			e.window.RequestClose()
		default:
		}
	})
	e.resized(e.window.Width(), e.window.Height())
	return e
}

func newEngine(options ...EngineBuilderOption) *engine {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		scenes:          make(map[int]scene.Scene),
		engineTickRate:  time.Second / 60,
		settings:        gui.DefaultSettings(false),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Settings() gui.Settings {
	e.settingsMu.Lock()
	defer e.settingsMu.Unlock()
	return e.settings
}

func (e *engine) Run() {
	e.running.Store(true)
	e.handle()
	e.window.ProcessMessages()

	e.signalQuit()
	e.wg.Wait()
	e.shutdown()
}

// shutdown releases GPU objects after the render goroutine has stopped, then the window. The surface is
// destroyed with the device, before the window it belongs to.
func (e *engine) shutdown() {
	e.renderer.WaitIdle()
	for _, s := range e.Scenes() {
		s.Destroy()
	}
	if e.overlay != nil {
		e.overlay.Destroy()
	}
	e.renderer.Destroy()
	if err := e.window.Close(); err != nil {
		log.Printf("[Engine] close window: %v", err)
	}
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running.Store(false)
		close(e.quitChannel)
	})
}

// handle launches the engine, render, and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleRender()
	go e.handleQuit()
}

// resized keeps every scene camera's aspect ratio in step with the framebuffer. The swapchain itself is
// recreated by the renderer at the next BeginFrame.
func (e *engine) resized(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	for _, s := range e.Scenes() {
		if c := s.Camera(); c != nil {
			c.SetAspect(float32(width) / float32(height))
		}
	}
}

// keyDown applies the function-key toggles. F5 shows or hides the overlay.
func (e *engine) keyDown(key uint32) {
	if key == common.KeyF5 && e.overlay != nil {
		e.overlay.SetVisible(!e.overlay.Visible())
		return
	}
	e.settingsMu.Lock()
	changed := e.settings.HandleKey(key)
	s := e.settings
	e.settingsMu.Unlock()
	if changed {
		log.Printf("[Engine] culling=%t lod=%t level=%d mesh=%t", s.Culling, s.Lod, s.ForcedLod, s.MeshShading)
	}
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Moves every scene camera from the held keys, then fires the tick callback at the configured tick rate, and
// listens for dynamic rate changes via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			e.updateCameras(dt)
			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

func (e *engine) updateCameras(dt float32) {
	for _, s := range e.activeScenes() {
		c := s.Camera()
		if c == nil || c.Controller() == nil {
			continue
		}
		c.Controller().Update(dt, e.window)
		c.Update()
	}
}

// activeScenes returns the active scenes in ascending z-index order.
func (e *engine) activeScenes() []scene.Scene {
	e.scenesMu.Lock()
	defer e.scenesMu.Unlock()
	keys := make([]int, 0, len(e.scenes))
	for k := range e.scenes {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	active := make([]scene.Scene, 0, len(keys))
	for _, k := range keys {
		if s := e.scenes[k]; s.Active() {
			active = append(active, s)
		}
	}
	return active
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Each iteration begins a frame, records the active scenes in ascending z-index order and then the overlay, and
// submits. A minimized window skips frames until it has an area again.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	// Every Vulkan submission comes from this goroutine, so it keeps one OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	// Recover from panics inside the render goroutine to avoid crashing the whole process.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("render goroutine recovered from panic: %v", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		err := e.renderFrame()
		if errors.Is(err, frame.ErrZeroExtent) {
			time.Sleep(minimizedPollInterval)
			continue
		}
		if err != nil {
			log.Printf("[Engine] render: %+v", err)
			e.signalQuit()
			return
		}

		if e.renderCallback != nil {
			e.renderCallback(dt)
		}

		if e.profilingEnabled && e.profiler != nil {
			e.profiler.Tick()
		}

		// Frame rate limiting
		if e.renderFrameLimit > 0 {
			elapsed := time.Since(lastRender)
			if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// renderFrame records and submits one frame.
func (e *engine) renderFrame() error {
	f, err := e.renderer.BeginFrame()
	if err != nil {
		return err
	}

	settings := e.Settings()
	draws := 0
	for _, s := range e.activeScenes() {
		s.Record(f, settings)
		draws += s.DrawCount()
	}

	if e.overlay != nil {
		fps := 0.0
		if e.profiler != nil {
			fps = e.profiler.FPS()
		}
		e.overlay.SetFrameStats(fps, draws)
		data := e.overlay.Build(settings, f.Color.Width(), f.Color.Height())
		if err := e.overlay.Draw(f, data); err != nil {
			log.Printf("[Engine] overlay: %v", err)
		}
	}

	return e.renderer.EndFrame(f)
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running.Load() {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.scenesMu.Lock()
	defer e.scenesMu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.scenesMu.Lock()
	defer e.scenesMu.Unlock()
	delete(e.scenes, key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.scenesMu.Lock()
	defer e.scenesMu.Unlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.scenesMu.Lock()
	defer e.scenesMu.Unlock()
	cp := make(map[int]scene.Scene, len(e.scenes))
	for k, v := range e.scenes {
		cp[k] = v
	}
	return cp
}
