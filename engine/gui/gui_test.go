package gui

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/geometry"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer"
)

func TestHandleKey(t *testing.T) {
	s := DefaultSettings(false)
	if !s.Culling || !s.Lod || s.ForcedLod != AutoLod || s.MeshShading {
		t.Fatalf("defaults = %+v", s)
	}

	if !s.HandleKey(common.KeyF1) || s.Culling {
		t.Error("F1 should turn culling off")
	}
	if !s.HandleKey(common.KeyF2) || s.Lod {
		t.Error("F2 should turn LOD off")
	}
	if s.HandleKey(common.KeyF4) || s.MeshShading {
		t.Error("F4 must not enable mesh shading without support")
	}
	if s.HandleKey(common.KeyW) {
		t.Error("unrelated keys should not change settings")
	}

	for want := 0; want < geometry.MaxMeshLods; want++ {
		s.HandleKey(common.KeyF3)
		if s.ForcedLod != want {
			t.Fatalf("F3 press %d: level %d", want+1, s.ForcedLod)
		}
	}
	s.HandleKey(common.KeyF3)
	if s.ForcedLod != AutoLod {
		t.Errorf("F3 past the last level should return to auto, got %d", s.ForcedLod)
	}

	m := DefaultSettings(true)
	if !m.MeshShading || !m.HandleKey(common.KeyF4) || m.MeshShading {
		t.Error("F4 should toggle mesh shading when available")
	}
}

func TestLines(t *testing.T) {
	info := Info{
		DeviceName: "Test GPU",
		FPS:        59.94,
		Draws:      1000,
		Timings:    []renderer.Timing{{Name: "cull", Milliseconds: 0.125}, {Name: "frame", Milliseconds: 2.5}},
	}
	info.Statistics[0] = 36

	lines := Lines(DefaultSettings(false), info)
	if want := 2 + 2 + 7 + 4; len(lines) != want {
		t.Fatalf("got %d lines, want %d", len(lines), want)
	}
	if lines[0].Text != "Test GPU" || !strings.Contains(lines[1].Text, "59.9 fps") || !strings.Contains(lines[1].Text, "1000 draws") {
		t.Errorf("header lines = %q, %q", lines[0].Text, lines[1].Text)
	}
	if !strings.Contains(lines[2].Text, "cull") || !strings.Contains(lines[2].Text, "0.125 ms") {
		t.Errorf("timing line = %q", lines[2].Text)
	}
	if !strings.Contains(lines[4].Text, "IA vertices") || !strings.HasSuffix(lines[4].Text, " 36") {
		t.Errorf("statistics line = %q", lines[4].Text)
	}

	toggles := lines[len(lines)-4:]
	if toggles[0].Color != ColorOn || !strings.HasSuffix(toggles[0].Text, "on") {
		t.Errorf("culling line = %+v", toggles[0])
	}
	if !strings.HasSuffix(toggles[2].Text, "auto") {
		t.Errorf("level line = %q", toggles[2].Text)
	}
	if toggles[3].Color != ColorOff || !strings.HasSuffix(toggles[3].Text, "n/a") {
		t.Errorf("mesh line = %+v", toggles[3])
	}

	pinned := Lines(Settings{Lod: true, ForcedLod: 3}, info)
	if !strings.HasSuffix(pinned[len(pinned)-2].Text, "3") {
		t.Errorf("forced level line = %q", pinned[len(pinned)-2].Text)
	}
}

func TestLayout(t *testing.T) {
	lines := []Line{{Text: "ab c", Color: ColorText}, {Text: "d", Color: ColorOn}}
	data := Layout(lines, 720, 1)

	// One panel plus four glyphs; the space has no quad.
	if len(data.Vertices) != 5*4 || len(data.Indices) != 5*6 {
		t.Fatalf("got %d vertices, %d indices", len(data.Vertices), len(data.Indices))
	}
	for _, idx := range data.Indices {
		if int(idx) >= len(data.Vertices) {
			t.Fatalf("index %d out of range", idx)
		}
	}
	panel := data.Vertices[:4]
	if panel[0].UV[0] >= 0 || panel[0].Color != ColorPanel {
		t.Errorf("first quad is not the solid panel: %+v", panel[0])
	}
	// Panel covers "ab c" (4 advances of 7) plus margins, and two 13-pixel rows.
	if panel[2].Position != [2]float32{28 + 8, 26 + 8} {
		t.Errorf("panel corner = %v", panel[2].Position)
	}
	for _, v := range data.Vertices[4:] {
		if v.UV[0] < 0 || v.UV[0] > 1 || v.UV[1] < 0 || v.UV[1] > 1 {
			t.Fatalf("glyph UV out of range: %v", v.UV)
		}
	}
	if last := data.Vertices[len(data.Vertices)-1]; last.Color != ColorOn {
		t.Errorf("second line color = %#x", last.Color)
	}

	scaled := Layout(lines, 720, 2)
	if scaled.Vertices[2].Position != [2]float32{72, 68} {
		t.Errorf("scaled panel corner = %v", scaled.Vertices[2].Position)
	}

	// Only the first row fits in 20 pixels: 4 margin + 13.
	clipped := Layout(lines, 20, 1)
	if len(clipped.Vertices) != 4*4 {
		t.Errorf("clipped layout has %d vertices", len(clipped.Vertices))
	}
	if empty := Layout(lines, 10, 1); len(empty.Vertices) != 0 {
		t.Error("nothing should fit in 10 pixels")
	}
}

func TestGrowCapacity(t *testing.T) {
	tests := []struct {
		name            string
		current, needed uint64
		want            uint64
	}{
		{"fits", 32768, 100, 32768},
		{"first allocation", 0, 100, minBufferBytes},
		{"doubles", minBufferBytes, minBufferBytes + 1, 2 * minBufferBytes},
		{"large request", minBufferBytes, 100001, 100096},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := growCapacity(tt.current, tt.needed); got != tt.want {
				t.Errorf("growCapacity(%d, %d) = %d, want %d", tt.current, tt.needed, got, tt.want)
			}
		})
	}
}
