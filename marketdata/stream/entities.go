package stream

import (
	"strings"
	"time"
)

// Trade is a single price observation for a symbol received from the feed.
// A Trade fully replaces the previously known trade of its symbol.
type Trade struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
	Volume    float64
}

// State is the lifecycle state of the upstream connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Status is what consumers see of the connection: they never observe
// transport errors directly.
type Status struct {
	State     State
	Connected bool
	// Error is a user-facing description of the last failure, empty if none.
	Error string
}

// CanonicalSymbol returns the canonical (trimmed, upper-case) form of symbol.
func CanonicalSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
