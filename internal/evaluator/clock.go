package evaluator

import "time"

// Clock abstracts time so tests can advance virtual time instead of
// waiting on real timers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the evaluator needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock uses the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.t.C }
func (rt *realTicker) Stop()               { rt.t.Stop() }

// FakeClock is a manually advanced clock for tests.
type FakeClock struct {
	now  time.Time
	tick chan time.Time
}

// NewFakeClock creates a FakeClock starting at now.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now, tick: make(chan time.Time, 1)}
}

func (c *FakeClock) Now() time.Time { return c.now }

// Advance moves the clock forward and fires one tick.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
	select {
	case c.tick <- c.now:
	default:
	}
}

func (c *FakeClock) NewTicker(d time.Duration) Ticker { return fakeTicker{ch: c.tick} }

type fakeTicker struct {
	ch chan time.Time
}

func (ft fakeTicker) C() <-chan time.Time { return ft.ch }
func (ft fakeTicker) Stop()               {}
