package background

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// SVGCanvas records drawing calls as an SVG document.
type SVGCanvas struct {
	width, height float64
	defs          strings.Builder
	body          strings.Builder
	filters       map[Glow]string
	gradients     int
}

func NewSVGCanvas(w, h float64) *SVGCanvas {
	return &SVGCanvas{width: w, height: h, filters: make(map[Glow]string)}
}

// Clear drops everything drawn so far.
func (c *SVGCanvas) Clear(w, h float64) {
	c.body.Reset()
}

func (c *SVGCanvas) FillGradient(w, h float64, top, bottom Paint) {
	c.body.Reset()
	c.gradients++
	id := fmt.Sprintf("bg%d", c.gradients)
	fmt.Fprintf(&c.defs,
		`<linearGradient id="%s" x1="0" y1="0" x2="0" y2="1"><stop offset="0" stop-color="%s"%s/><stop offset="1" stop-color="%s"%s/></linearGradient>`+"\n",
		id, top.Hex(), opacityAttr("stop-opacity", top.Alpha), bottom.Hex(), opacityAttr("stop-opacity", bottom.Alpha))
	fmt.Fprintf(&c.body, `<rect x="0" y="0" width="%s" height="%s" fill="url(#%s)"/>`+"\n", num(w), num(h), id)
}

func (c *SVGCanvas) FillCircle(x, y, r float64, fill Paint, glow Glow) {
	filter := ""
	if glow.Blur > 0 {
		filter = fmt.Sprintf(` filter="url(#%s)"`, c.filterFor(glow))
	}
	fmt.Fprintf(&c.body, `<circle cx="%s" cy="%s" r="%s" fill="%s"%s%s/>`+"\n",
		num(x), num(y), num(r), fill.Hex(), opacityAttr("fill-opacity", fill.Alpha), filter)
}

func (c *SVGCanvas) StrokeLine(x1, y1, x2, y2, width float64, stroke Paint) {
	fmt.Fprintf(&c.body, `<line x1="%s" y1="%s" x2="%s" y2="%s" stroke="%s"%s stroke-width="%s"/>`+"\n",
		num(x1), num(y1), num(x2), num(y2), stroke.Hex(), opacityAttr("stroke-opacity", stroke.Alpha), num(width))
}

func (c *SVGCanvas) filterFor(g Glow) string {
	if id, ok := c.filters[g]; ok {
		return id
	}
	id := fmt.Sprintf("glow%d", len(c.filters)+1)
	c.filters[g] = id
	// Canvas shadowBlur is roughly twice a Gaussian standard deviation.
	fmt.Fprintf(&c.defs,
		`<filter id="%s" x="-100%%" y="-100%%" width="300%%" height="300%%"><feDropShadow dx="0" dy="0" stdDeviation="%s" flood-color="%s" flood-opacity="%s"/></filter>`+"\n",
		id, num(g.Blur/2), g.Color.Hex(), formatAlpha(g.Color.Alpha))
	return id
}

// WriteTo emits the complete SVG document.
func (c *SVGCanvas) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">
`, num(c.width), num(c.height), num(c.width), num(c.height))
	if c.defs.Len() > 0 {
		sb.WriteString("<defs>\n")
		sb.WriteString(c.defs.String())
		sb.WriteString("</defs>\n")
	}
	sb.WriteString(c.body.String())
	sb.WriteString("</svg>\n")
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func opacityAttr(name string, alpha float64) string {
	if alpha >= 1 {
		return ""
	}
	return fmt.Sprintf(` %s="%s"`, name, formatAlpha(alpha))
}

func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
