package background

import "math"

// Theme is the colour theme the site is showing.
type Theme string

const (
	ThemeDark   Theme = "dark"
	ThemeLight  Theme = "light"
	ThemeSystem Theme = "system"
)

// ParseTheme maps arbitrary input onto a Theme, defaulting to system.
func ParseTheme(s string) Theme {
	switch Theme(s) {
	case ThemeDark, ThemeLight:
		return Theme(s)
	default:
		return ThemeSystem
	}
}

// ResolveDark reports whether theme renders dark given the platform's
// colour-scheme preference.
func ResolveDark(theme Theme, systemDark bool) bool {
	return theme == ThemeDark || (theme == ThemeSystem && systemDark)
}

const (
	// MobileBreakpoint is the container width below which the field runs in
	// its reduced mobile configuration.
	MobileBreakpoint = 768

	mobileDivisor  = 15000
	mobileCap      = 40
	desktopDivisor = 10000
	desktopCap     = 80

	// RepulsionRadius is how close the pointer may get before the celestial
	// body flees.
	RepulsionRadius = 300
	repulsionForce  = 2
	bodyFriction    = 0.92
	bodyEase        = 0.05
	bodySpring      = 0.1
	bodyRadius      = 50

	pointerPull = 2
)

// Settings is everything that depends on theme and device class, resolved
// once per initialisation and threaded through update and draw.
type Settings struct {
	Width, Height float64
	Dark, Mobile  bool

	Divisor float64
	Cap     int

	// Particle spawn ranges.
	SpeedRange    float64
	SpeedScale    float64
	SizeBase      float64
	SizeScale     float64
	ParticleColor Paint
	// FixedAlpha is used for every particle when PerParticleAlpha is false.
	FixedAlpha       float64
	PerParticleAlpha bool

	ConnectDistance  float64
	PointerDistance  float64
	LineColor        Paint
	LineAlpha        float64
	PointerLineAlpha float64
	LineWidth        float64

	HasBody bool
}

// NewSettings resolves the configuration record for a w×h container.
func NewSettings(w, h float64, dark bool) Settings {
	mobile := w < MobileBreakpoint
	s := Settings{
		Width:            w,
		Height:           h,
		Dark:             dark,
		Mobile:           mobile,
		Divisor:          desktopDivisor,
		Cap:              desktopCap,
		SpeedRange:       0.5,
		SpeedScale:       1,
		SizeBase:         1,
		SizeScale:        1,
		ParticleColor:    white,
		FixedAlpha:       0.4,
		PerParticleAlpha: dark,
		ConnectDistance:  150,
		PointerDistance:  250,
		LineColor:        gold,
		LineAlpha:        0.15,
		PointerLineAlpha: 0.2,
		LineWidth:        1,
		HasBody:          !mobile,
	}
	if dark {
		// Stars: smaller and slower than the light theme's sparkles.
		s.SpeedRange = 0.3
		s.SizeBase = 0.5
		s.LineColor = white
		s.LineAlpha = 0.2
	}
	if mobile {
		s.Divisor = mobileDivisor
		s.Cap = mobileCap
		s.SpeedScale = 0.3
		s.SizeScale = 0.5
		s.ConnectDistance = 80
		s.PointerDistance = 120
		s.LineWidth = 0.5
	}
	return s
}

// ParticleCount is min(floor(w*h/D), CAP) for the device class of w.
func ParticleCount(w, h float64) int {
	s := NewSettings(w, h, false)
	return s.ParticleCount()
}

func (s Settings) ParticleCount() int {
	if s.Width <= 0 || s.Height <= 0 {
		return 0
	}
	n := int(math.Floor(s.Width * s.Height / s.Divisor))
	return min(n, s.Cap)
}

// fade is the linear alpha falloff shared by particle and pointer lines:
// k at distance zero, zero at the threshold.
func fade(k, d, threshold float64) float64 {
	return k * (1 - d/threshold)
}
