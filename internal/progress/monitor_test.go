package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const interval = time.Second

// scripted returns its values in order, repeating the last one.
type scripted struct {
	mu     sync.Mutex
	values []uint64
	errAt  map[int]bool
	calls  int
}

func (s *scripted) BytesWritten(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if s.errAt[i] {
		return 0, errors.New("counter unavailable")
	}
	return s.values[min(i, len(s.values)-1)], nil
}

func (s *scripted) reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recorder struct {
	events chan Event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan Event, 64)}
}

func (r *recorder) handle(e Event) { r.events <- e }

func (r *recorder) next(t require.TestingT) Event {
	select {
	case e := <-r.events:
		return e
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no progress event")
		return Event{}
	}
}

// tick advances the fake clock once the monitor's ticker is registered.
func tick(t require.TestingT, clock *clockwork.FakeClock) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(interval)
}

func TestMonitorReportsRelativeProgress(t *testing.T) {
	clock := clockwork.NewFakeClock()
	counter := &scripted{values: []uint64{5000, 5000 + 250, 5000 + 500, 5000 + 1000}}
	rec := newRecorder()

	h := NewMonitor(clock).Start(context.Background(), counter, 1000, interval, rec.handle)
	defer h.Stop()

	tick(t, clock)
	e := rec.next(t)
	assert.Equal(t, uint64(250), e.Written)
	assert.InDelta(t, 25.0, e.Percent, 0.001)
	assert.Equal(t, time.Second, e.Elapsed)
	assert.InDelta(t, 250.0, e.Speed, 0.001)

	tick(t, clock)
	assert.InDelta(t, 50.0, rec.next(t).Percent, 0.001)

	tick(t, clock)
	e = rec.next(t)
	assert.Equal(t, uint64(1000), e.Written)
	assert.Less(t, e.Percent, 100.0, "100% is reserved for Complete")
	assert.False(t, e.Done)
}

func TestMonitorPercentNeverDecreases(t *testing.T) {
	clock := clockwork.NewFakeClock()
	// The kernel counter can lag or be reset; readings below the previous
	// one must not move progress backwards.
	counter := &scripted{values: []uint64{0, 600, 300, 0, 700}}
	rec := newRecorder()

	h := NewMonitor(clock).Start(context.Background(), counter, 1000, interval, rec.handle)
	defer h.Stop()

	var percents []float64
	for range 4 {
		tick(t, clock)
		percents = append(percents, rec.next(t).Percent)
	}
	assert.Equal(t, []float64{60, 60, 60, 70}, percents)
}

func TestMonitorSkipsFailedSamples(t *testing.T) {
	clock := clockwork.NewFakeClock()
	counter := &scripted{values: []uint64{0, 100, 200}, errAt: map[int]bool{1: true}}
	rec := newRecorder()

	h := NewMonitor(clock).Start(context.Background(), counter, 1000, interval, rec.handle)
	defer h.Stop()

	tick(t, clock)
	require.Eventually(t, func() bool { return counter.reads() == 2 }, 5*time.Second, time.Millisecond)
	tick(t, clock)
	e := rec.next(t)
	assert.Equal(t, uint64(200), e.Written)
	assert.Equal(t, 2*time.Second, e.Elapsed)
}

func TestMonitorComplete(t *testing.T) {
	clock := clockwork.NewFakeClock()
	counter := &scripted{values: []uint64{0, 400}}
	rec := newRecorder()

	h := NewMonitor(clock).Start(context.Background(), counter, 1000, interval, rec.handle)

	tick(t, clock)
	assert.InDelta(t, 40.0, rec.next(t).Percent, 0.001)

	h.Complete()
	final := rec.next(t)
	assert.True(t, final.Done)
	assert.Equal(t, 100.0, final.Percent)
	assert.Equal(t, uint64(1000), final.Written)

	h.Complete()
	h.Stop()
	assert.Empty(t, rec.events, "no events after Complete returned")
}

func TestMonitorStopEmitsNothing(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := newRecorder()

	h := NewMonitor(clock).Start(context.Background(), &scripted{values: []uint64{0, 10}}, 1000, interval, rec.handle)
	tick(t, clock)
	rec.next(t)

	h.Stop()
	clock.Advance(10 * interval)
	h.Complete()

	assert.Empty(t, rec.events)
}

func TestMonitorParentCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())

	h := NewMonitor(clock).Start(ctx, &scripted{values: []uint64{0}}, 1000, interval, rec.handle)
	cancel()
	h.Stop()

	assert.Empty(t, rec.events)
}

func TestMonitorZeroTotal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := newRecorder()

	h := NewMonitor(clock).Start(context.Background(), &scripted{values: []uint64{0, 4096}}, 0, interval, rec.handle)

	tick(t, clock)
	assert.Zero(t, rec.next(t).Percent)

	h.Complete()
	assert.Equal(t, 100.0, rec.next(t).Percent)
}

func TestAtomicCounter(t *testing.T) {
	var c AtomicCounter
	c.Add(4096)
	c.Add(512)

	n, err := c.BytesWritten(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4608), n)
}

func TestPropertyMonotonicAndCapped(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		total := rapid.Uint64Range(1, 1<<40).Draw(rt, "total")
		values := rapid.SliceOfN(rapid.Uint64Range(0, 2<<40), 2, 20).Draw(rt, "values")

		clock := clockwork.NewFakeClock()
		rec := newRecorder()
		h := NewMonitor(clock).Start(context.Background(), &scripted{values: values}, total, interval, rec.handle)

		last := -1.0
		for range len(values) - 1 {
			tick(rt, clock)
			e := rec.next(rt)
			if e.Percent < last {
				h.Stop()
				rt.Fatalf("percent decreased: %v after %v", e.Percent, last)
			}
			if e.Percent >= 100 {
				h.Stop()
				rt.Fatalf("running percent reached %v", e.Percent)
			}
			last = e.Percent
		}

		h.Complete()
		if final := rec.next(rt); final.Percent != 100 || !final.Done {
			rt.Fatalf("final event %+v", final)
		}
	})
}
