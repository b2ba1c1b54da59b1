package background

import "math"

// Body is the sun (light theme) or moon (dark theme). It flees the pointer
// and springs back to its base position.
type Body struct {
	X, Y         float64
	BaseX, BaseY float64
	VX, VY       float64
	Radius       float64
	Moon         bool
}

// newBody places the moon in the right-hand third for dark themes and the sun
// in the left-hand third for light ones.
func newBody(s *Settings) *Body {
	x := s.Width * 0.15
	if s.Dark {
		x = s.Width * 0.85
	}
	y := s.Height * 0.2
	return &Body{X: x, Y: y, BaseX: x, BaseY: y, Radius: bodyRadius, Moon: s.Dark}
}

// Update advances the body one frame against the given pointer.
func (b *Body) Update(ptr Pointer) {
	dx := ptr.X - b.X
	dy := ptr.Y - b.Y
	if math.Hypot(dx, dy) < RepulsionRadius {
		// Fixed-magnitude push directly away from the pointer.
		angle := math.Atan2(dy, dx)
		b.VX -= math.Cos(angle) * repulsionForce
		b.VY -= math.Sin(angle) * repulsionForce
	}

	b.VX += (b.BaseX - b.X) * bodyEase * bodySpring
	b.VY += (b.BaseY - b.Y) * bodyEase * bodySpring

	b.VX *= bodyFriction
	b.VY *= bodyFriction

	b.X += b.VX
	b.Y += b.VY
}

// Draw paints the body; the craters and glare ride along with its position.
func (b *Body) Draw(c Canvas) {
	if b.Moon {
		c.FillCircle(b.X, b.Y, b.Radius, moonFill, Glow{Blur: 60, Color: moonGlow})
		c.FillCircle(b.X-12, b.Y+6, 10, craterFill, Glow{})
		c.FillCircle(b.X+18, b.Y-12, 6, craterFill, Glow{})
		c.FillCircle(b.X+6, b.Y+18, 5, craterFill, Glow{})
		return
	}
	c.FillCircle(b.X, b.Y, b.Radius, sunFill, Glow{Blur: 60, Color: sunGlow})
	c.FillCircle(b.X-10, b.Y-10, 15, sunGlare, Glow{})
}
