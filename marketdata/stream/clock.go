package stream

import "time"

// ticker drives the keep-alive pings. Tests replace newPingTicker to tick by
// hand.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (p realTicker) C() <-chan time.Time { return p.t.C }
func (p realTicker) Stop()               { p.t.Stop() }

var newPingTicker = func() ticker {
	return realTicker{t: time.NewTicker(pingPeriod)}
}

// timer is the part of *time.Timer the reconnect scheduling needs
type timer interface {
	Stop() bool
}

// scheduleFunc runs f after d like time.AfterFunc. Tests swap in a fake clock.
type scheduleFunc func(d time.Duration, f func()) timer

func realAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}
