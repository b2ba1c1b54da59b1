package background

import (
	"fmt"
	"io"
	"math/rand/v2"
)

// Limits on snapshot requests.
const (
	MaxSnapshotSide   = 4096
	MaxSnapshotFrames = 600
)

// SnapshotOptions describes a headless render of the field.
type SnapshotOptions struct {
	Width, Height int
	Theme         Theme
	SystemDark    bool
	// Frames to simulate before the captured one; 0 captures the first.
	Frames  int
	Seed    uint64
	Pointer *Pointer
}

func (o SnapshotOptions) validate() error {
	if o.Width <= 0 || o.Height <= 0 || o.Width > MaxSnapshotSide || o.Height > MaxSnapshotSide {
		return fmt.Errorf("snapshot size %dx%d out of range (1..%d)", o.Width, o.Height, MaxSnapshotSide)
	}
	if o.Frames < 0 || o.Frames > MaxSnapshotFrames {
		return fmt.Errorf("snapshot frames %d out of range (0..%d)", o.Frames, MaxSnapshotFrames)
	}
	return nil
}

// Snapshot simulates the field and writes its last frame as SVG. The same
// options and seed always produce the same document.
func Snapshot(w io.Writer, opts SnapshotOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	f := NewField(rng)
	width, height := float64(opts.Width), float64(opts.Height)
	f.Reset(width, height, ResolveDark(opts.Theme, opts.SystemDark))
	// A server-side render has no cursor.
	f.SetPointer(OffCanvas)
	if opts.Pointer != nil {
		f.SetPointer(*opts.Pointer)
	}

	f.Step(opts.Frames)

	c := NewSVGCanvas(width, height)
	f.Frame(c)
	_, err := c.WriteTo(w)
	return err
}
