package background

import (
	"fmt"
	"strconv"

	"github.com/lucasb-eyer/go-colorful"
)

// Paint is a colour with an alpha channel, the unit every Canvas call takes.
type Paint struct {
	colorful.Color
	Alpha float64
}

// RGBA builds a Paint from 8-bit channels.
func RGBA(r, g, b uint8, alpha float64) Paint {
	return Paint{
		Color: colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255},
		Alpha: alpha,
	}
}

// Hex builds an opaque Paint from a "#rrggbb" string. It panics on bad input,
// so it is only used for the palette constants below.
func Hex(s string) Paint {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return Paint{Color: c, Alpha: 1}
}

// WithAlpha returns p with its alpha replaced.
func (p Paint) WithAlpha(alpha float64) Paint {
	p.Alpha = alpha
	return p
}

// CSS renders p the way a 2D canvas context expects fillStyle/strokeStyle.
func (p Paint) CSS() string {
	if p.Alpha >= 1 {
		return p.Hex()
	}
	r, g, b := p.RGB255()
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", r, g, b, formatAlpha(p.Alpha))
}

func formatAlpha(a float64) string {
	if a < 0 {
		a = 0
	}
	return strconv.FormatFloat(a, 'f', -1, 64)
}

// Glow is a blurred shadow drawn behind a filled shape. The zero value means
// no glow.
type Glow struct {
	Blur  float64
	Color Paint
}

// Palette.
var (
	white      = RGBA(255, 255, 255, 1)
	gold       = RGBA(212, 175, 55, 1)
	nightTop   = Hex("#020617")
	nightBase  = Hex("#0f172a")
	moonFill   = Hex("#F6F1D5")
	moonGlow   = RGBA(255, 255, 255, 0.5)
	craterFill = RGBA(200, 200, 200, 0.3)
	sunFill    = Hex("#fbbf24")
	sunGlow    = RGBA(255, 165, 0, 0.6)
	sunGlare   = RGBA(255, 255, 255, 0.2)
)
