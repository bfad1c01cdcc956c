// Package progress samples a device write counter on a separate goroutine and
// turns the readings into progress events.
package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// runningCap is the highest percentage reported before Complete.
const runningCap = 99.9

// Event is one progress sample.
type Event struct {
	Written uint64
	Total   uint64
	Percent float64
	// Speed is in bytes per second since Start.
	Speed   float64
	Elapsed time.Duration
	Done    bool
}

// Handler receives events on the monitor goroutine. It must not block for
// long or it delays the next sample.
type Handler func(Event)

type Monitor struct {
	clock clockwork.Clock
}

func NewMonitor(clock clockwork.Clock) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Monitor{clock: clock}
}

// Handle controls a running monitor.
type Handle struct {
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
	complete atomic.Bool
}

// Stop cancels the monitor and waits for it to exit. No handler call happens
// after Stop returns.
func (h *Handle) Stop() {
	h.once.Do(h.cancel)
	<-h.done
}

// Complete emits a final 100% event, then stops the monitor. It has no effect
// after Stop.
func (h *Handle) Complete() {
	h.once.Do(func() {
		h.complete.Store(true)
		h.cancel()
	})
	<-h.done
}

// Start samples counter every interval until the handle is stopped or ctx is
// cancelled. Written is measured from the counter's value at Start.
func (m *Monitor) Start(ctx context.Context, counter Counter, total uint64, interval time.Duration, handler Handler) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	if handler == nil {
		handler = func(Event) {}
	}
	if interval <= 0 {
		interval = time.Second
	}

	baseline, err := counter.BytesWritten(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("progress baseline unavailable")
	}

	go func() {
		defer close(h.done)
		s := sampler{total: total, baseline: baseline, start: m.clock.Now()}

		ticker := m.clock.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				if h.complete.Load() {
					handler(s.final(m.clock.Since(s.start)))
				}
				return
			case <-ticker.Chan():
				cur, err := counter.BytesWritten(ctx)
				if err != nil {
					log.Debug().Err(err).Msg("progress sample failed")
					continue
				}
				handler(s.sample(cur, m.clock.Since(s.start)))
			}
		}
	}()
	return h
}

// sampler keeps Written and Percent non-decreasing across samples.
type sampler struct {
	start    time.Time
	total    uint64
	baseline uint64
	written  uint64
	percent  float64
}

func (s *sampler) sample(cur uint64, elapsed time.Duration) Event {
	if cur > s.baseline {
		s.written = max(s.written, cur-s.baseline)
	}

	var percent float64
	if s.total > 0 {
		percent = min(runningCap, float64(s.written)*100/float64(s.total))
	}
	s.percent = max(s.percent, percent)

	return Event{
		Written: s.written,
		Total:   s.total,
		Percent: s.percent,
		Speed:   speed(s.written, elapsed),
		Elapsed: elapsed,
	}
}

func (s *sampler) final(elapsed time.Duration) Event {
	written := max(s.written, s.total)
	return Event{
		Written: written,
		Total:   s.total,
		Percent: 100,
		Speed:   speed(written, elapsed),
		Elapsed: elapsed,
		Done:    true,
	}
}

func speed(written uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(written) / elapsed.Seconds()
}
