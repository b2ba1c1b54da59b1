package background

import "sync"

type circle struct {
	X, Y, R float64
	Fill    Paint
	Glow    Glow
}

type line struct {
	X1, Y1, X2, Y2 float64
	Width          float64
	Stroke         Paint
}

// recordingCanvas keeps every call of the most recent frame plus a total
// call count across frames.
type recordingCanvas struct {
	mu        sync.Mutex
	calls     int
	cleared   int
	gradients int
	circles   []circle
	lines     []line
}

func (c *recordingCanvas) Clear(w, h float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.cleared++
	c.circles, c.lines = nil, nil
}

func (c *recordingCanvas) FillGradient(w, h float64, top, bottom Paint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.gradients++
	c.circles, c.lines = nil, nil
}

func (c *recordingCanvas) FillCircle(x, y, r float64, fill Paint, glow Glow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.circles = append(c.circles, circle{x, y, r, fill, glow})
}

func (c *recordingCanvas) StrokeLine(x1, y1, x2, y2, width float64, stroke Paint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.lines = append(c.lines, line{x1, y1, x2, y2, width, stroke})
}

func (c *recordingCanvas) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// manualScheduler hands the frame callback to the test instead of running it.
type manualScheduler struct {
	starts  int
	frame   func()
	handles []*manualHandle
}

type manualHandle struct {
	cancels   int
	cancelled bool
}

func (h *manualHandle) Cancel() {
	h.cancels++
	h.cancelled = true
}

func (s *manualScheduler) Start(frame func()) Handle {
	s.starts++
	s.frame = frame
	h := &manualHandle{}
	s.handles = append(s.handles, h)
	return h
}

// tick runs one frame unless the latest handle was cancelled, mirroring a
// scheduler that honours cancellation.
func (s *manualScheduler) tick() {
	if s.frame == nil || s.handles[len(s.handles)-1].cancelled {
		return
	}
	s.frame()
}

type fakeHost struct {
	canvas     *recordingCanvas
	hasCanvas  bool
	w, h       float64
	theme      Theme
	systemDark bool

	listeners   []Listener
	subscribes  int
	unsubscribe int
}

func newFakeHost(w, h float64, theme Theme) *fakeHost {
	return &fakeHost{canvas: &recordingCanvas{}, hasCanvas: true, w: w, h: h, theme: theme}
}

func (f *fakeHost) Canvas() (Canvas, bool) {
	if !f.hasCanvas {
		return nil, false
	}
	return f.canvas, true
}

func (f *fakeHost) Size() (float64, float64) { return f.w, f.h }
func (f *fakeHost) Theme() Theme             { return f.theme }
func (f *fakeHost) SystemDark() bool         { return f.systemDark }

func (f *fakeHost) Subscribe(l Listener) func() {
	f.subscribes++
	f.listeners = append(f.listeners, l)
	return func() {
		f.unsubscribe++
		f.listeners = nil
	}
}

// fire delivers an event to whatever is still subscribed.
func (f *fakeHost) fire(event func(Listener)) {
	for _, l := range f.listeners {
		event(l)
	}
}
