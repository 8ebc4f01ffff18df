package stream

import (
	"context"
	"sort"
	"sync"
)

// Subscriber is the part of the Client a Binding needs
type Subscriber interface {
	Subscribe(symbols ...string)
	Unsubscribe(symbols ...string)
}

// Binding is one consumer's lease on a set of symbols. It holds exactly one
// reference per symbol of its current set, whatever the caller passes in.
//
// Release the binding when the consumer goes away, typically with defer, or
// use BindContext to tie it to a context.
type Binding struct {
	sub Subscriber

	mu       sync.Mutex
	symbols  []string
	released bool
}

// Bind acquires a Binding on symbols. An empty set is valid and holds nothing.
func (c *Client) Bind(symbols ...string) *Binding {
	return NewBinding(c, symbols...)
}

// NewBinding acquires a Binding on symbols through sub.
func NewBinding(sub Subscriber, symbols ...string) *Binding {
	b := &Binding{sub: sub}
	b.Update(symbols...)
	return b
}

// BindContext is like Bind, but the binding is released as soon as ctx is done.
func (c *Client) BindContext(ctx context.Context, symbols ...string) *Binding {
	b := c.Bind(symbols...)
	context.AfterFunc(ctx, b.Release)
	return b
}

// Update replaces the bound set with symbols. The new set is acquired before
// the old one is released, so symbols present in both never drop to zero
// references. Update on a released binding does nothing.
func (b *Binding) Update(symbols ...string) {
	next := normalizeSymbols(symbols)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	prev := b.symbols
	if equalSymbols(prev, next) {
		return
	}
	if len(next) > 0 {
		b.sub.Subscribe(next...)
	}
	if len(prev) > 0 {
		b.sub.Unsubscribe(prev...)
	}
	b.symbols = next
}

// Release gives back every symbol held by the binding. It is safe to call
// more than once.
func (b *Binding) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	if len(b.symbols) > 0 {
		b.sub.Unsubscribe(b.symbols...)
	}
	b.symbols = nil
}

// Symbols returns the currently bound set, sorted.
func (b *Binding) Symbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.symbols...)
}

// normalizeSymbols canonicalises, de-duplicates and sorts symbols.
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		symbol := CanonicalSymbol(s)
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func equalSymbols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
