package background

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs a frame callback repeatedly until the returned Handle is
// cancelled.
type Scheduler interface {
	Start(frame func()) Handle
}

// Handle stops a running frame loop. Cancel is idempotent and, once it
// returns, no further frame runs.
type Handle interface {
	Cancel()
}

// DefaultFrameInterval approximates a 60 Hz display refresh.
const DefaultFrameInterval = time.Second / 60

// TickerScheduler drives frames from a time.Ticker on its own goroutine.
type TickerScheduler struct {
	Interval time.Duration
}

func (s TickerScheduler) Start(frame func()) Handle {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &tickerHandle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// A tick and a cancel can be ready together; cancel wins.
				if ctx.Err() != nil {
					return
				}
				frame()
			}
		}
	}()
	return h
}

type tickerHandle struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the loop and waits for an in-flight frame to finish. It must
// not be called from inside the frame callback.
func (h *tickerHandle) Cancel() {
	h.once.Do(h.cancel)
	<-h.done
}
