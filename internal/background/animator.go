package background

import (
	"math/rand/v2"
	"sync"
)

// Listener receives the container events an Animator reacts to.
type Listener interface {
	Resize()
	PointerMove(x, y float64)
	PointerLeave()
}

// Host is the element the animator is mounted into.
type Host interface {
	// Canvas acquires the drawing context. ok is false when none is
	// available, in which case the animator draws nothing.
	Canvas() (c Canvas, ok bool)
	// Size is the container's current pixel size.
	Size() (w, h float64)
	Theme() Theme
	// SystemDark is the platform colour-scheme preference.
	SystemDark() bool
	// Subscribe registers l for resize and pointer events and returns the
	// function that removes every listener it added. It must not call l
	// before returning.
	Subscribe(l Listener) (unsubscribe func())
}

type lifecycle int

const (
	created lifecycle = iota
	mounted
	unmounted
)

// Animator binds a Field to a Host and a Scheduler. Events may arrive on a
// different goroutine than frames, so all state sits behind mu.
type Animator struct {
	host  Host
	sched Scheduler

	mu          sync.Mutex
	state       lifecycle
	theme       Theme
	field       *Field
	canvas      Canvas
	handle      Handle
	unsubscribe func()
}

// New returns an unmounted animator. rng seeds particle placement.
func New(host Host, sched Scheduler, rng *rand.Rand) *Animator {
	return &Animator{
		host:  host,
		sched: sched,
		field: NewField(rng),
	}
}

// Mount subscribes to host events and starts the frame loop. Mounting twice,
// or after Unmount, does nothing.
func (a *Animator) Mount() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != created {
		return
	}
	a.state = mounted
	a.theme = a.host.Theme()
	a.unsubscribe = a.host.Subscribe(a)
	a.setupLocked()
}

// setupLocked (re)acquires the canvas and reinitialises the field. Without a
// canvas nothing is set up and the loop is stopped; the next resize or theme
// change tries again. The returned handle, if any, belongs to the stopped
// loop and must be cancelled once mu is released.
func (a *Animator) setupLocked() (stale Handle) {
	c, ok := a.host.Canvas()
	if !ok {
		a.canvas = nil
		stale, a.handle = a.handle, nil
		return stale
	}
	a.canvas = c

	w, h := a.host.Size()
	a.field.Reset(w, h, ResolveDark(a.theme, a.host.SystemDark()))

	if a.handle == nil {
		a.handle = a.sched.Start(a.frame)
	}
	return nil
}

func (a *Animator) frame() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != mounted || a.canvas == nil {
		return
	}
	a.field.Frame(a.canvas)
}

// Resize reinitialises particles and body for the host's new size.
func (a *Animator) Resize() {
	a.mu.Lock()
	if a.state != mounted {
		a.mu.Unlock()
		return
	}
	stale := a.setupLocked()
	a.mu.Unlock()
	if stale != nil {
		stale.Cancel()
	}
}

// SetTheme switches theme, which reinitialises the whole field.
func (a *Animator) SetTheme(t Theme) {
	a.mu.Lock()
	if a.state != mounted {
		a.mu.Unlock()
		return
	}
	a.theme = t
	stale := a.setupLocked()
	a.mu.Unlock()
	if stale != nil {
		stale.Cancel()
	}
}

func (a *Animator) PointerMove(x, y float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != mounted {
		return
	}
	a.field.SetPointer(Pointer{X: x, Y: y})
}

func (a *Animator) PointerLeave() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != mounted {
		return
	}
	a.field.SetPointer(OffCanvas)
}

// Unmount cancels the frame loop and removes every listener. After it
// returns no frame runs and no event has any effect. Safe to call repeatedly.
func (a *Animator) Unmount() {
	a.mu.Lock()
	if a.state == unmounted {
		a.mu.Unlock()
		return
	}
	a.state = unmounted
	h, unsub := a.handle, a.unsubscribe
	a.handle, a.unsubscribe, a.canvas = nil, nil, nil
	a.mu.Unlock()

	// Cancel waits for an in-flight frame, which needs mu.
	if h != nil {
		h.Cancel()
	}
	if unsub != nil {
		unsub()
	}
}

// Mounted reports whether the animator is between Mount and Unmount.
func (a *Animator) Mounted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == mounted
}

// Running reports whether a frame loop is active.
func (a *Animator) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle != nil
}

// Field exposes the simulation for inspection. Callers must not use it
// concurrently with a running loop.
func (a *Animator) Field() *Field { return a.field }
