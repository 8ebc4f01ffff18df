package stream

import (
	"sort"
	"sync"
)

// priceCache holds the latest trade per symbol and fans every update out to
// the registered listeners. It is written only by the message processor.
type priceCache struct {
	mu     sync.RWMutex
	trades map[string]Trade

	listenersMu sync.RWMutex
	listeners   map[uint64]func(Trade)
	nextID      uint64
}

func newPriceCache() *priceCache {
	return &priceCache{
		trades:    make(map[string]Trade),
		listeners: make(map[uint64]func(Trade)),
	}
}

// update overwrites the cached trade of t.Symbol and then notifies the
// listeners, so a listener always observes a cache that contains t.
func (pc *priceCache) update(t Trade) {
	pc.mu.Lock()
	pc.trades[t.Symbol] = t
	pc.mu.Unlock()

	pc.listenersMu.RLock()
	ids := make([]uint64, 0, len(pc.listeners))
	for id := range pc.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Trade), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, pc.listeners[id])
	}
	pc.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(t)
	}
}

func (pc *priceCache) listen(fn func(Trade)) (stop func()) {
	pc.listenersMu.Lock()
	id := pc.nextID
	pc.nextID++
	pc.listeners[id] = fn
	pc.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			pc.listenersMu.Lock()
			delete(pc.listeners, id)
			pc.listenersMu.Unlock()
		})
	}
}

func (pc *priceCache) get(symbol string) (Trade, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	t, ok := pc.trades[symbol]
	return t, ok
}

func (pc *priceCache) prices() map[string]float64 {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	prices := make(map[string]float64, len(pc.trades))
	for symbol, t := range pc.trades {
		prices[symbol] = t.Price
	}
	return prices
}

func (pc *priceCache) lastTrades() map[string]Trade {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	trades := make(map[string]Trade, len(pc.trades))
	for symbol, t := range pc.trades {
		trades[symbol] = t
	}
	return trades
}

// Listen registers fn to be called with every trade received from now on.
// fn runs on the message processing goroutine, after the cache has been
// updated, so it must not block for long. The returned function unregisters
// fn and may be called more than once.
func (c *Client) Listen(fn func(Trade)) (stop func()) {
	return c.cache.listen(fn)
}

// Prices returns a snapshot of the latest known price per symbol.
func (c *Client) Prices() map[string]float64 {
	return c.cache.prices()
}

// LastTrades returns a snapshot of the latest trade per symbol.
func (c *Client) LastTrades() map[string]Trade {
	return c.cache.lastTrades()
}

// Price returns the latest known price of symbol. ok is false if no live
// trade has been received for it yet.
func (c *Client) Price(symbol string) (price float64, ok bool) {
	t, ok := c.cache.get(CanonicalSymbol(symbol))
	return t.Price, ok
}

// LastTrade returns the latest trade of symbol.
func (c *Client) LastTrade(symbol string) (Trade, bool) {
	return c.cache.get(CanonicalSymbol(symbol))
}
