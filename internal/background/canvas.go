package background

// Canvas is the drawing surface a Field paints into. Implementations are a
// browser 2D context (cmd/bgwasm), an SVG document (SVGCanvas) and test
// recorders. Drawing calls cannot fail.
type Canvas interface {
	// Clear wipes the whole surface to transparent.
	Clear(w, h float64)
	// FillGradient paints the whole surface with a vertical gradient.
	FillGradient(w, h float64, top, bottom Paint)
	FillCircle(x, y, r float64, fill Paint, glow Glow)
	StrokeLine(x1, y1, x2, y2, width float64, stroke Paint)
}

// nopCanvas swallows every call; used to advance a Field without output.
type nopCanvas struct{}

func (nopCanvas) Clear(float64, float64) {}
func (nopCanvas) FillGradient(float64, float64, Paint, Paint) {}
func (nopCanvas) FillCircle(float64, float64, float64, Paint, Glow) {}
func (nopCanvas) StrokeLine(float64, float64, float64, float64, float64, Paint) {}
