package rendering

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is an RGB color with alpha in [0,1]. The zero value is transparent.
type Color struct {
	R, G, B uint8
	A       float64
}

var (
	Black = Color{0, 0, 0, 1}
	White = Color{255, 255, 255, 1}
)

func (c Color) Visible() bool { return c.A > 0 }

func (c Color) WithAlpha(a float64) Color {
	c.A = a
	return c
}

// CSS renders the color for the HTML executor.
func (c Color) CSS() string {
	if c.A >= 1 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("rgba(%d,%d,%d,%s)", c.R, c.G, c.B, strconv.FormatFloat(c.A, 'f', -1, 64))
}

var namedColors = map[string]Color{
	"black":  Black,
	"white":  White,
	"red":    {255, 0, 0, 1},
	"green":  {0, 128, 0, 1},
	"blue":   {0, 0, 255, 1},
	"gray":   {128, 128, 128, 1},
	"grey":   {128, 128, 128, 1},
	"orange": {255, 165, 0, 1},
	"yellow": {255, 255, 0, 1},
	"purple": {128, 0, 128, 1},
}

// ParseColor accepts #rgb, #rrggbb, #rrggbbaa, rgb(), rgba() and a few names.
func ParseColor(s string) (Color, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "" || s == "transparent" || s == "none":
		return Color{}, s != ""
	case strings.HasPrefix(s, "#"):
		return parseHex(s[1:])
	case strings.HasPrefix(s, "rgb"):
		return parseRGBFunc(s)
	}
	c, ok := namedColors[s]
	return c, ok
}

// ColorOr parses s, returning def when s is empty or invalid.
func ColorOr(s string, def Color) Color {
	if c, ok := ParseColor(s); ok {
		return c
	}
	return def
}

func parseHex(h string) (Color, bool) {
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 && len(h) != 8 {
		return Color{}, false
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, false
	}
	if len(h) == 8 {
		return Color{uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), float64(uint8(v)) / 255}, true
	}
	return Color{uint8(v >> 16), uint8(v >> 8), uint8(v), 1}, true
}

func parseRGBFunc(s string) (Color, bool) {
	open, end := strings.Index(s, "("), strings.LastIndex(s, ")")
	if open < 0 || end <= open {
		return Color{}, false
	}
	parts := strings.Split(s[open+1:end], ",")
	if len(parts) != 3 && len(parts) != 4 {
		return Color{}, false
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || n < 0 || n > 255 {
			return Color{}, false
		}
		rgb[i] = uint8(n)
	}
	alpha := 1.0
	if len(parts) == 4 {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || a < 0 || a > 1 {
			return Color{}, false
		}
		alpha = a
	}
	return Color{rgb[0], rgb[1], rgb[2], alpha}, true
}

// Command is one drawing primitive in output units.
type Command interface {
	command()
}

type Point struct{ X, Y float64 }

// Text draws a string in the box at (X, Y). W == 0 means no wrapping.
type Text struct {
	X, Y, W, H float64
	Text       string
	FontSize   float64
	Color      Color
	Bold       bool
	Italic     bool
	Align      string
	LineHeight float64
}

type Rect struct {
	X, Y, W, H float64
	Fill       Color
	Stroke     Color
	LineWidth  float64
	Radius     float64
}

type Circle struct {
	CX, CY, R float64
	Fill      Color
	Stroke    Color
	LineWidth float64
}

type Line struct {
	X1, Y1, X2, Y2 float64
	Color          Color
	Width          float64
	Dashed         bool
}

type Polygon struct {
	Points []Point
	Fill   Color
}

// Image draws Source (a data: URI, http(s) URL, server path or gs:// object)
// in the box. QRPayload marks generated QR codes so executors can encode
// them locally. Alternates are tried in order when Source cannot be drawn,
// and Fallback is drawn when none can.
type Image struct {
	X, Y, W, H float64
	Source     string
	Alternates []string
	QRPayload  string
	Circular   bool
	Opacity    float64
	Fallback   *Text
}

// Sources lists Source followed by the alternates.
func (img Image) Sources() []string {
	return append([]string{img.Source}, img.Alternates...)
}

func (Text) command()    {}
func (Rect) command()    {}
func (Circle) command()  {}
func (Line) command()    {}
func (Polygon) command() {}
func (Image) command()   {}

// PageCommands is the drawing list of one output page.
type PageCommands struct {
	Index      int
	Background Color
	Commands   []Command
}

// Document is the interpreted form of a template for one assignment.
type Document struct {
	Title  string
	Width  float64
	Height float64
	Pages  []PageCommands
}
