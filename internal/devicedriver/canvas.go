package devicedriver

import (
	"fmt"
	"strconv"

	"github.com/pixoo/daemon/internal/capability"
)

// Color is an RGBA pixel value.
type Color struct {
	R, G, B, A uint8
}

// Point is a canvas coordinate in device pixel space.
type Point struct {
	X, Y int
}

// Align controls how DrawText/DrawNumber anchor their output relative
// to the supplied position.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Canvas is the shared framebuffer and drawing-primitive implementation
// embedded by every driver variant, so capability-bound geometry and
// pixel math is written once.
type Canvas struct {
	caps   capability.Display
	pixels []Color
}

// NewCanvas allocates a framebuffer sized to caps.
func NewCanvas(caps capability.Display) *Canvas {
	return &Canvas{
		caps:   caps,
		pixels: make([]Color, caps.Width*caps.Height),
	}
}

// Capabilities returns the canvas's capability descriptor.
func (c *Canvas) Capabilities() capability.Display { return c.caps }

// Clear fills the framebuffer with transparent black.
func (c *Canvas) Clear() {
	for i := range c.pixels {
		c.pixels[i] = Color{}
	}
}

func (c *Canvas) inBounds(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < c.caps.Width && p.Y < c.caps.Height
}

// DrawPixel sets a single pixel; out-of-bounds writes are silently
// clipped, matching a device's physical inability to draw off-canvas.
func (c *Canvas) DrawPixel(p Point, col Color) {
	if !c.inBounds(p) {
		return
	}
	c.pixels[p.Y*c.caps.Width+p.X] = col
}

// PixelAt returns the current color at p, used by tests and Mock
// assertions.
func (c *Canvas) PixelAt(p Point) Color {
	if !c.inBounds(p) {
		return Color{}
	}
	return c.pixels[p.Y*c.caps.Width+p.X]
}

// DrawLine draws a Bresenham line between a and b.
func (c *Canvas) DrawLine(a, b Point, col Color) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := sign(b.X-a.X), sign(b.Y-a.Y)
	err := dx + dy
	x, y := a.X, a.Y
	for {
		c.DrawPixel(Point{x, y}, col)
		if x == b.X && y == b.Y {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

// DrawRect draws the outline of the rectangle spanned by a and b.
func (c *Canvas) DrawRect(a, b Point, col Color) {
	c.DrawLine(Point{a.X, a.Y}, Point{b.X, a.Y}, col)
	c.DrawLine(Point{a.X, b.Y}, Point{b.X, b.Y}, col)
	c.DrawLine(Point{a.X, a.Y}, Point{a.X, b.Y}, col)
	c.DrawLine(Point{b.X, a.Y}, Point{b.X, b.Y}, col)
}

// FillRect fills the rectangle spanned by a and b inclusive.
func (c *Canvas) FillRect(a, b Point, col Color) {
	x0, x1 := minInt(a.X, b.X), maxInt(a.X, b.X)
	y0, y1 := minInt(a.Y, b.Y), maxInt(a.Y, b.Y)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			c.DrawPixel(Point{x, y}, col)
		}
	}
}

// glyphWidth/glyphHeight describe the built-in fallback bitmap font
// used when the capability set has no native text rendering.
const (
	glyphWidth  = 3
	glyphHeight = 5
	glyphGap    = 1
)

// DrawText renders str using the software fallback font. Real hardware
// with HasNativeText would instead forward the string to its own
// firmware renderer; Canvas only ever implements the fallback path so
// Mock and MessageBusPanel still produce visually inspectable frames.
func (c *Canvas) DrawText(str string, pos Point, col Color, align Align) {
	width := len(str) * (glyphWidth + glyphGap)
	origin := anchor(pos, width, align)
	cursor := origin
	for _, r := range str {
		c.drawGlyph(r, cursor, col)
		cursor.X += glyphWidth + glyphGap
	}
}

// DrawNumber formats value with the given decimal precision and
// renders it with DrawText.
func (c *Canvas) DrawNumber(value float64, pos Point, col Color, align Align, decimals int) {
	str := strconv.FormatFloat(value, 'f', decimals, 64)
	c.DrawText(str, pos, col, align)
}

func anchor(pos Point, width int, align Align) Point {
	switch align {
	case AlignCenter:
		return Point{pos.X - width/2, pos.Y}
	case AlignRight:
		return Point{pos.X - width, pos.Y}
	default:
		return pos
	}
}

// drawGlyph renders a single rune as a filled dot pattern; digits and
// the '.', '-' and ':' marks get a recognizable 3x5 pattern, everything
// else is a single center dot so unsupported glyphs remain visible
// rather than vanishing silently.
func (c *Canvas) drawGlyph(r rune, origin Point, col Color) {
	pattern, ok := glyphs[r]
	if !ok {
		c.DrawPixel(Point{origin.X + 1, origin.Y + 2}, col)
		return
	}
	for row := 0; row < glyphHeight; row++ {
		bits := pattern[row]
		for bit := 0; bit < glyphWidth; bit++ {
			if bits&(1<<(glyphWidth-1-bit)) != 0 {
				c.DrawPixel(Point{origin.X + bit, origin.Y + row}, col)
			}
		}
	}
}

// glyphs is a minimal 3x5 bitmap font covering digits and '.', '-',
// ':' — enough for clocks, weather and chart overlays.
var glyphs = map[rune][glyphHeight]byte{
	'0': {0b111, 0b101, 0b101, 0b101, 0b111},
	'1': {0b010, 0b110, 0b010, 0b010, 0b111},
	'2': {0b111, 0b001, 0b111, 0b100, 0b111},
	'3': {0b111, 0b001, 0b111, 0b001, 0b111},
	'4': {0b101, 0b101, 0b111, 0b001, 0b001},
	'5': {0b111, 0b100, 0b111, 0b001, 0b111},
	'6': {0b111, 0b100, 0b111, 0b101, 0b111},
	'7': {0b111, 0b001, 0b010, 0b010, 0b010},
	'8': {0b111, 0b101, 0b111, 0b101, 0b111},
	'9': {0b111, 0b101, 0b111, 0b001, 0b111},
	'.': {0b000, 0b000, 0b000, 0b000, 0b010},
	'-': {0b000, 0b000, 0b111, 0b000, 0b000},
	':': {0b000, 0b010, 0b000, 0b010, 0b000},
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// String renders a compact textual dump, useful in tests and logs.
func (c *Canvas) String() string {
	return fmt.Sprintf("Canvas(%dx%d)", c.caps.Width, c.caps.Height)
}
