package background

import (
	"math"
	"math/rand/v2"
)

// Pointer is the cursor position relative to the container.
type Pointer struct {
	X, Y float64
}

// OffCanvas is where the pointer parks when it leaves the container, far
// enough away that no proximity effect fires.
var OffCanvas = Pointer{X: -1000, Y: -1000}

// Field holds the whole simulation for one animator: particles, the optional
// celestial body and the pointer. Nothing in it is shared between instances.
type Field struct {
	rng       *rand.Rand
	settings  Settings
	particles []Particle
	body      *Body
	pointer   Pointer
}

// NewField returns an empty field drawing randomness from rng. The pointer
// starts at the origin until the first move or leave event.
func NewField(rng *rand.Rand) *Field {
	return &Field{rng: rng}
}

// Reset replaces every particle and the body for a w×h container.
func (f *Field) Reset(w, h float64, dark bool) {
	f.settings = NewSettings(w, h, dark)
	s := &f.settings

	n := s.ParticleCount()
	f.particles = make([]Particle, n)
	for i := range f.particles {
		f.particles[i] = newParticle(f.rng, s)
	}

	f.body = nil
	if s.HasBody {
		f.body = newBody(s)
	}
}

// SetPointer records the latest pointer position.
func (f *Field) SetPointer(p Pointer) { f.pointer = p }

func (f *Field) Pointer() Pointer { return f.pointer }

func (f *Field) Settings() Settings { return f.settings }

// Particles returns a copy of the current particles.
func (f *Field) Particles() []Particle {
	out := make([]Particle, len(f.particles))
	copy(out, f.particles)
	return out
}

// Body returns a copy of the celestial body, if there is one.
func (f *Field) Body() (Body, bool) {
	if f.body == nil {
		return Body{}, false
	}
	return *f.body, true
}

// Frame runs one update/draw pass. Updates and draws are interleaved per
// particle, so particle i's lines are drawn against particles j > i that have
// not moved yet this frame.
func (f *Field) Frame(c Canvas) {
	s := &f.settings
	ptr := f.pointer

	if s.Dark {
		c.FillGradient(s.Width, s.Height, nightTop, nightBase)
	} else {
		c.Clear(s.Width, s.Height)
	}

	if f.body != nil {
		f.body.Update(ptr)
		f.body.Draw(c)
	}

	for i := range f.particles {
		p := &f.particles[i]
		p.update(s, ptr)
		p.draw(c, s)

		for j := i; j < len(f.particles); j++ {
			q := &f.particles[j]
			d := math.Hypot(p.X-q.X, p.Y-q.Y)
			if d < s.ConnectDistance {
				c.StrokeLine(p.X, p.Y, q.X, q.Y, s.LineWidth,
					s.LineColor.WithAlpha(fade(s.LineAlpha, d, s.ConnectDistance)))
			}
		}

		d := math.Hypot(ptr.X-p.X, ptr.Y-p.Y)
		if d < s.PointerDistance {
			c.StrokeLine(p.X, p.Y, ptr.X, ptr.Y, s.LineWidth,
				s.LineColor.WithAlpha(fade(s.PointerLineAlpha, d, s.PointerDistance)))
		}
	}
}

// Step advances the simulation n frames without drawing.
func (f *Field) Step(n int) {
	for range n {
		f.Frame(nopCanvas{})
	}
}
