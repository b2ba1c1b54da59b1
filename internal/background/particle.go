package background

import (
	"math"
	"math/rand/v2"
)

// Particle is one drifting point of light.
type Particle struct {
	X, Y    float64
	VX, VY  float64
	Size    float64
	Opacity float64
}

func newParticle(rng *rand.Rand, s *Settings) Particle {
	return Particle{
		X:       rng.Float64() * s.Width,
		Y:       rng.Float64() * s.Height,
		VX:      (rng.Float64() - 0.5) * s.SpeedRange * s.SpeedScale,
		VY:      (rng.Float64() - 0.5) * s.SpeedRange * s.SpeedScale,
		Size:    (rng.Float64()*2 + s.SizeBase) * s.SizeScale,
		Opacity: rng.Float64()*0.5 + 0.3,
	}
}

// update moves p one frame: integrate, reflect off the container edges, then
// nudge the position toward the pointer. The nudge is applied to position,
// not velocity.
func (p *Particle) update(s *Settings, ptr Pointer) {
	p.X += p.VX
	p.Y += p.VY

	if p.X < 0 || p.X > s.Width {
		p.VX = -p.VX
	}
	if p.Y < 0 || p.Y > s.Height {
		p.VY = -p.VY
	}

	dx := ptr.X - p.X
	dy := ptr.Y - p.Y
	d := math.Hypot(dx, dy)
	if d < s.PointerDistance && d > 0 {
		force := (s.PointerDistance - d) / s.PointerDistance
		p.X += dx / d * force * pointerPull
		p.Y += dy / d * force * pointerPull
	}
}

func (p *Particle) draw(c Canvas, s *Settings) {
	alpha := s.FixedAlpha
	if s.PerParticleAlpha {
		alpha = p.Opacity
	}
	c.FillCircle(p.X, p.Y, p.Size, s.ParticleColor.WithAlpha(alpha), Glow{})
}
