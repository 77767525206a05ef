package gui

import (
	"fmt"
	"image"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/engine/renderer"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/frame"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Vertex is one overlay vertex, laid out for std430 (24 bytes). Position is in pixels from the top-left corner.
// A negative UV marks a solid-color vertex that skips the glyph atlas.
type Vertex struct {
	Position [2]float32
	UV       [2]float32
	// Color is RGBA8, red in the low byte.
	Color uint32
	_     uint32
}

// vertexSize is the byte size of one Vertex.
const vertexSize = uint64(unsafe.Sizeof(Vertex{}))

// DrawData is one frame's overlay geometry.
type DrawData struct {
	Vertices []Vertex
	Indices  []uint32
}

// Line is one row of overlay text.
type Line struct {
	Text  string
	Color uint32
}

// Overlay colors.
const (
	ColorText  uint32 = 0xffe6e6e6
	ColorOn    uint32 = 0xff66e666
	ColorOff   uint32 = 0xff6666e6
	ColorPanel uint32 = 0xb0141414
)

// Info is the frame data the overlay reports besides the toggles.
type Info struct {
	DeviceName string
	FPS        float64
	Draws      int
	Timings    []renderer.Timing
	Statistics renderer.Statistics
}

// Lines formats the overlay text: device, frame rate, GPU block timings, pipeline statistics, then the toggles.
//
// Parameters:
//   - settings: the current toggles
//   - info: the frame data
//
// Returns:
//   - []Line: the rows top to bottom
func Lines(settings Settings, info Info) []Line {
	lines := []Line{
		{Text: info.DeviceName, Color: ColorText},
		{Text: fmt.Sprintf("%.1f fps  %d draws", info.FPS, info.Draws), Color: ColorText},
	}
	for _, t := range info.Timings {
		lines = append(lines, Line{Text: fmt.Sprintf("gpu %-8s %7.3f ms", t.Name, t.Milliseconds), Color: ColorText})
	}
	for i, name := range frame.StatisticNames {
		lines = append(lines, Line{Text: fmt.Sprintf("%-16s %12d", name, info.Statistics[i]), Color: ColorText})
	}

	lines = append(lines,
		toggleLine("F1 culling", settings.Culling),
		toggleLine("F2 lod", settings.Lod),
	)
	level := "auto"
	if !settings.Lod {
		level = "0"
	} else if settings.ForcedLod != AutoLod {
		level = fmt.Sprintf("%d", settings.ForcedLod)
	}
	lines = append(lines, Line{Text: "F3 level      " + level, Color: ColorText})
	if settings.MeshShadingAvailable {
		lines = append(lines, toggleLine("F4 mesh", settings.MeshShading))
	} else {
		lines = append(lines, Line{Text: "F4 mesh       n/a", Color: ColorOff})
	}
	return lines
}

func toggleLine(label string, on bool) Line {
	if on {
		return Line{Text: fmt.Sprintf("%-13s on", label), Color: ColorOn}
	}
	return Line{Text: fmt.Sprintf("%-13s off", label), Color: ColorOff}
}

// Layout turns lines into textured quads over a translucent panel in the top-left corner, using the 7x13 bitmap
// face. Lines that would fall below height are dropped.
//
// Parameters:
//   - lines: the rows to draw
//   - height: the target height in pixels
//   - scale: the integer pixel scale, at least 1
//
// Returns:
//   - DrawData: the quads and their indices; empty when nothing fits
func Layout(lines []Line, height uint32, scale int) DrawData {
	face := basicfont.Face7x13
	scale = max(scale, 1)
	atlas := face.Mask.Bounds()
	lineHeight := face.Ascent + face.Descent
	const margin = 4

	var data DrawData
	panelWidth := 0
	rows := 0
	for _, l := range lines {
		if (margin+(rows+1)*lineHeight)*scale > int(height) {
			break
		}
		panelWidth = max(panelWidth, font.MeasureString(face, l.Text).Ceil())
		rows++
	}
	if rows == 0 {
		return data
	}
	panel := image.Rect(0, 0, panelWidth+2*margin, rows*lineHeight+2*margin)
	data.quad(scaleRect(panel, scale), [4]float32{-1, -1, -1, -1}, ColorPanel)

	for row, l := range lines[:rows] {
		dot := fixed.P(margin, margin+row*lineHeight+face.Ascent)
		for _, r := range l.Text {
			dr, _, maskp, advance, ok := face.Glyph(dot, r)
			dot.X += advance
			if !ok || r == ' ' {
				continue
			}
			uv := [4]float32{
				float32(maskp.X) / float32(atlas.Dx()),
				float32(maskp.Y) / float32(atlas.Dy()),
				float32(maskp.X+dr.Dx()) / float32(atlas.Dx()),
				float32(maskp.Y+dr.Dy()) / float32(atlas.Dy()),
			}
			data.quad(scaleRect(dr, scale), uv, l.Color)
		}
	}
	return data
}

func scaleRect(r image.Rectangle, scale int) image.Rectangle {
	return image.Rectangle{Min: r.Min.Mul(scale), Max: r.Max.Mul(scale)}
}

// quad appends two counter-clockwise triangles covering r. uv is (u0, v0, u1, v1).
func (d *DrawData) quad(r image.Rectangle, uv [4]float32, color uint32) {
	base := uint32(len(d.Vertices))
	x0, y0, x1, y1 := float32(r.Min.X), float32(r.Min.Y), float32(r.Max.X), float32(r.Max.Y)
	d.Vertices = append(d.Vertices,
		Vertex{Position: [2]float32{x0, y0}, UV: [2]float32{uv[0], uv[1]}, Color: color},
		Vertex{Position: [2]float32{x0, y1}, UV: [2]float32{uv[0], uv[3]}, Color: color},
		Vertex{Position: [2]float32{x1, y1}, UV: [2]float32{uv[2], uv[3]}, Color: color},
		Vertex{Position: [2]float32{x1, y0}, UV: [2]float32{uv[2], uv[1]}, Color: color},
	)
	d.Indices = append(d.Indices, base, base+1, base+2, base, base+2, base+3)
}
