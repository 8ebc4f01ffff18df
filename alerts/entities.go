package alerts

import (
	"fmt"
	"time"
)

// Condition is the direction a price has to cross for an alert to trigger.
type Condition string

const (
	Above Condition = "above"
	Below Condition = "below"
)

// ParseCondition parses "above" or "below".
func ParseCondition(s string) (Condition, error) {
	switch c := Condition(s); c {
	case Above, Below:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCondition, s)
}

// Met reports whether price satisfies the condition for target.
func (c Condition) Met(price, target float64) bool {
	switch c {
	case Above:
		return price >= target
	case Below:
		return price <= target
	}
	return false
}

// PriceAlert is a user-defined price threshold on one symbol. Once
// triggered it stays triggered until reset.
type PriceAlert struct {
	ID          string     `json:"id"`
	Symbol      string     `json:"symbol"`
	TargetPrice float64    `json:"targetPrice"`
	Condition   Condition  `json:"condition"`
	Triggered   bool       `json:"triggered"`
	TriggeredAt *time.Time `json:"triggeredAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (a PriceAlert) validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidAlert)
	}
	if a.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidAlert)
	}
	if !(a.TargetPrice > 0) {
		return fmt.Errorf("%w: target price %v", ErrInvalidAlert, a.TargetPrice)
	}
	if _, err := ParseCondition(string(a.Condition)); err != nil {
		return err
	}
	return nil
}

func (a PriceAlert) clone() PriceAlert {
	if a.TriggeredAt != nil {
		t := *a.TriggeredAt
		a.TriggeredAt = &t
	}
	return a
}
