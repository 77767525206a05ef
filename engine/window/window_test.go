package window

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/common"
)

func TestBuilderOptions(t *testing.T) {
	w := newEngineWindow(WithTitle("demo"), WithSize(800, 600), WithMinSize(100, 50), WithMaxSize(1000, 900))
	if w.title != "demo" || w.Width() != 800 || w.Height() != 600 {
		t.Errorf("title %q size %dx%d", w.title, w.Width(), w.Height())
	}
	if w.minWidth != 100 || w.minHeight != 50 || w.maxWidth != 1000 || w.maxHeight != 900 {
		t.Errorf("limits %d %d %d %d", w.minWidth, w.minHeight, w.maxWidth, w.maxHeight)
	}
	if got := w.FramebufferExtent(); got != (common.Extent2D{Width: 800, Height: 600}) {
		t.Errorf("extent = %+v", got)
	}
}

func TestKeyState(t *testing.T) {
	w := newEngineWindow()
	var downs, ups []uint32
	w.SetKeyDownCallback(func(k uint32) { downs = append(downs, k) })
	w.SetKeyUpCallback(func(k uint32) { ups = append(ups, k) })

	w.keyEvent(common.KeyW, true)
	w.keyEvent(common.KeyW, true) // repeat
	if !w.IsKeyDown(common.KeyW) || w.IsKeyDown(common.KeyS) {
		t.Fatal("key state after press")
	}
	w.keyEvent(common.KeyW, false)
	if w.IsKeyDown(common.KeyW) {
		t.Fatal("key still down after release")
	}
	if len(downs) != 1 || len(ups) != 1 {
		t.Errorf("downs %v ups %v; repeats must not fire key down", downs, ups)
	}
}

func TestResizeUpdatesExtent(t *testing.T) {
	w := newEngineWindow()
	var got [2]int
	w.SetResizeCallback(func(width, height int) { got = [2]int{width, height} })
	w.resized(0, 0)
	if !w.FramebufferExtent().IsZero() || got != [2]int{0, 0} {
		t.Errorf("minimized extent = %+v", w.FramebufferExtent())
	}
	w.resized(640, 480)
	if w.FramebufferExtent() != (common.Extent2D{Width: 640, Height: 480}) || got != [2]int{640, 480} {
		t.Errorf("extent = %+v, callback %v", w.FramebufferExtent(), got)
	}
}

func TestUninitializedWindow(t *testing.T) {
	w := newEngineWindow()
	if w.IsRunning() {
		t.Error("window without a platform window reports running")
	}
	if w.RequiredInstanceExtensions() != nil {
		t.Error("extensions without a platform window")
	}
	if _, err := w.CreateSurface(nil); err == nil {
		t.Error("surface created without a platform window")
	}
	if err := w.Close(); err == nil {
		t.Error("closed a window that was never opened")
	}
}
