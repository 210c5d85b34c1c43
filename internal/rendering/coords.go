package rendering

import "github.com/gilkh/livret/internal/layout"

// Mapper converts 800x1120 design units to output units.
type Mapper struct {
	W, H float64
}

func NewMapper(w, h float64) Mapper {
	return Mapper{W: w, H: h}
}

func (m Mapper) ScaleX(v float64) float64 { return v * m.W / layout.DesignWidth }
func (m Mapper) ScaleY(v float64) float64 { return v * m.H / layout.DesignHeight }

// ScaleRadial scales quantities without a single axis (radii, strokes, font sizes).
func (m Mapper) ScaleRadial(v float64) float64 {
	return v * ((m.W/layout.DesignWidth + m.H/layout.DesignHeight) / 2)
}

// Rect scales a design-space rectangle.
func (m Mapper) Rect(x, y, w, h float64) (float64, float64, float64, float64) {
	return m.ScaleX(x), m.ScaleY(y), m.ScaleX(w), m.ScaleY(h)
}
