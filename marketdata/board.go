package marketdata

import (
	"context"
	"strings"
	"time"
)

// LivePrices is the read side of the streaming price cache
type LivePrices interface {
	Price(symbol string) (float64, bool)
}

// QuoteFetcher fetches snapshot quotes for a batch of symbols
type QuoteFetcher interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// Board merges live prices with snapshot quotes: symbols that have a live
// trade are served from the stream, the rest are fetched.
type Board struct {
	Live   LivePrices
	Quotes QuoteFetcher
}

// Prices returns the best known price of each of symbols. Symbols with
// neither a live trade nor a snapshot quote are missing from the result.
// The error reports failed snapshot fetches; the result is still usable.
func (b *Board) Prices(ctx context.Context, symbols []string) (map[string]Price, error) {
	prices := make(map[string]Price, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	var missing []string
	for _, s := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(s))
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		if b.Live != nil {
			if p, ok := b.Live.Price(symbol); ok {
				prices[symbol] = Price{Symbol: symbol, Price: p, Live: true}
				continue
			}
		}
		missing = append(missing, symbol)
	}
	if len(missing) == 0 || b.Quotes == nil {
		return prices, nil
	}

	quotes, err := b.Quotes.GetQuotes(ctx, missing)
	for symbol, q := range quotes {
		prices[symbol] = Price{
			Symbol:        symbol,
			Price:         q.CurrentPrice,
			Change:        q.Change,
			ChangePercent: q.ChangePercent,
		}
	}
	return prices, err
}

// Poll calls fn with Prices(symbols()) right away and then every interval
// until ctx is done. While the stream delivers live prices for every symbol
// no snapshot request is made, so polling is cheap when connected.
func (b *Board) Poll(
	ctx context.Context, interval time.Duration, symbols func() []string, fn func(map[string]Price, error),
) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		prices, err := b.Prices(ctx, symbols())
		if ctx.Err() != nil {
			return
		}
		fn(prices, err)

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
