package alerts

import (
	"context"

	"github.com/foliowatch/foliowatch/marketdata/stream"
)

// Feed is the part of the streaming client the Monitor consumes.
type Feed interface {
	stream.Subscriber
	Listen(fn func(stream.Trade)) (stop func())
	Prices() map[string]float64
}

var _ Feed = (*stream.Client)(nil)

// Monitor keeps the symbols of the untriggered alerts subscribed and
// evaluates the alerts on every price update.
type Monitor struct {
	manager *Manager
	feed    Feed
	// OnTrigger, if set, is called with every alert that triggered
	OnTrigger func(PriceAlert)
}

func NewMonitor(manager *Manager, feed Feed) *Monitor {
	return &Monitor{manager: manager, feed: feed}
}

// Run blocks until ctx is done. The binding follows the active symbol set,
// so a triggered alert stops holding its symbol once nothing else needs it.
func (mon *Monitor) Run(ctx context.Context) error {
	binding := stream.NewBinding(mon.feed, mon.manager.ActiveSymbols()...)
	defer binding.Release()

	updates := make(chan struct{}, 1)
	stop := mon.feed.Listen(func(stream.Trade) {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	defer stop()

	mon.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-updates:
			mon.check(ctx)
		case <-mon.manager.Changed():
			mon.check(ctx)
		}
		binding.Update(mon.manager.ActiveSymbols()...)
	}
}

func (mon *Monitor) check(ctx context.Context) {
	for _, a := range mon.manager.CheckWithPrices(ctx, mon.feed.Prices()) {
		if mon.OnTrigger != nil {
			mon.OnTrigger(a)
		}
	}
}
