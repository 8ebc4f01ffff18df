package stream

import (
	"sync"
	"time"
)

type testTicker struct {
	ch chan time.Time
}

var _ ticker = (*testTicker)(nil)

func (t *testTicker) C() <-chan time.Time {
	return t.ch
}

func (t *testTicker) Stop() {
}

func (t *testTicker) Tick() {
	t.ch <- time.Now()
}

func newTestTicker() *testTicker {
	return &testTicker{ch: make(chan time.Time)}
}

// fakeTimer is a timer that only fires when the test says so
type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

var _ timer = (*fakeTimer)(nil)

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (fc *fakeClock) afterFunc(d time.Duration, f func()) timer {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	t := &fakeTimer{clock: fc, delay: d, f: f}
	fc.timers = append(fc.timers, t)
	return t
}

// pending returns the timers that have neither fired nor been stopped
func (fc *fakeClock) pending() []*fakeTimer {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	var res []*fakeTimer
	for _, t := range fc.timers {
		if !t.stopped && !t.fired {
			res = append(res, t)
		}
	}
	return res
}

// fire runs the oldest pending timer. It returns false if there is none.
func (fc *fakeClock) fire() bool {
	fc.mu.Lock()
	var next *fakeTimer
	for _, t := range fc.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	fc.mu.Unlock()
	if next == nil {
		return false
	}
	next.f()
	return true
}
