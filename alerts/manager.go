package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/foliowatch/foliowatch/marketdata/stream"
)

// Manager owns the alert set: it persists every change to Storage and
// evaluates the untriggered alerts against price snapshots.
//
// Two pieces of state are kept apart. Triggered is persisted and survives
// restarts. The notified set lives only as long as the Manager and makes
// sure side effects fire once per transition.
type Manager struct {
	storage  Storage
	logger   stream.Logger
	notifier Notifier
	chime    Chime
	key      string
	now      func() time.Time
	newID    func() string

	mu       sync.Mutex
	alerts   []PriceAlert
	notified map[string]struct{}
	changed  chan struct{}
}

// NewManager loads the alert set from storage. Entries that cannot be
// decoded or fail validation are skipped. A storage error is logged and the
// manager starts empty.
func NewManager(ctx context.Context, storage Storage, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(o)
	}
	m := &Manager{
		storage:  storage,
		logger:   o.logger,
		notifier: o.notifier,
		chime:    o.chime,
		key:      o.key,
		now:      o.now,
		newID:    o.newID,
		notified: make(map[string]struct{}),
		changed:  make(chan struct{}, 1),
	}
	m.alerts = m.load(ctx)
	return m
}

func (m *Manager) load(ctx context.Context) []PriceAlert {
	data, err := m.storage.Load(ctx, m.key)
	if err != nil {
		m.logger.Errorf("alerts: failed to load %s: %v", m.key, err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		m.logger.Errorf("alerts: stored alert set is not a JSON array: %v", err)
		return nil
	}
	alerts := make([]PriceAlert, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, r := range raw {
		var a PriceAlert
		if err := json.Unmarshal(r, &a); err != nil {
			m.logger.Warnf("alerts: skipping entry %d: %v", i, err)
			continue
		}
		a.Symbol = stream.CanonicalSymbol(a.Symbol)
		if err := a.validate(); err != nil {
			m.logger.Warnf("alerts: skipping entry %d: %v", i, err)
			continue
		}
		if _, dup := seen[a.ID]; dup {
			m.logger.Warnf("alerts: skipping entry %d: duplicate id %s", i, a.ID)
			continue
		}
		seen[a.ID] = struct{}{}
		alerts = append(alerts, a)
	}
	return alerts
}

// persistLocked writes the full alert set. Failures are logged: the
// in-memory set stays authoritative.
func (m *Manager) persistLocked(ctx context.Context) {
	alerts := m.alerts
	if alerts == nil {
		alerts = []PriceAlert{}
	}
	data, err := json.Marshal(alerts)
	if err != nil {
		m.logger.Errorf("alerts: failed to encode alert set: %v", err)
		return
	}
	if err := m.storage.Save(ctx, m.key, data); err != nil {
		m.logger.Errorf("alerts: failed to save alert set: %v", err)
	}
}

func (m *Manager) notifyChangedLocked() {
	select {
	case m.changed <- struct{}{}:
	default:
	}
}

// Changed is signalled after every change of the alert set. Signals are
// coalesced: a receiver that falls behind sees one signal for many changes.
func (m *Manager) Changed() <-chan struct{} {
	return m.changed
}

// Alerts returns a copy of the alert set in creation order.
func (m *Manager) Alerts() []PriceAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PriceAlert, len(m.alerts))
	for i, a := range m.alerts {
		out[i] = a.clone()
	}
	return out
}

// Add creates an untriggered alert on symbol.
func (m *Manager) Add(ctx context.Context, symbol string, target float64, condition Condition) (PriceAlert, error) {
	if _, err := ParseCondition(string(condition)); err != nil {
		return PriceAlert{}, err
	}
	a := PriceAlert{
		ID:          m.newID(),
		Symbol:      stream.CanonicalSymbol(symbol),
		TargetPrice: target,
		Condition:   condition,
		CreatedAt:   m.now().UTC(),
	}
	if err := a.validate(); err != nil {
		return PriceAlert{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	m.persistLocked(ctx)
	m.notifyChangedLocked()
	return a.clone(), nil
}

func (m *Manager) indexLocked(id string) int {
	for i, a := range m.alerts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// Remove deletes the alert with id.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	m.alerts = append(m.alerts[:i:i], m.alerts[i+1:]...)
	delete(m.notified, id)
	m.persistLocked(ctx)
	m.notifyChangedLocked()
	return nil
}

// Reset puts a triggered alert back into the untriggered state. Its side
// effects fire again on the next transition.
func (m *Manager) Reset(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	m.alerts[i].Triggered = false
	m.alerts[i].TriggeredAt = nil
	delete(m.notified, id)
	m.persistLocked(ctx)
	m.notifyChangedLocked()
	return nil
}

// ClearTriggered deletes every triggered alert and returns how many were
// removed.
func (m *Manager) ClearTriggered(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.alerts[:0:0]
	for _, a := range m.alerts {
		if a.Triggered {
			delete(m.notified, a.ID)
			continue
		}
		kept = append(kept, a)
	}
	n := len(m.alerts) - len(kept)
	m.alerts = kept
	m.persistLocked(ctx)
	m.notifyChangedLocked()
	return n
}

// ActiveSymbols returns the sorted symbols of all untriggered alerts.
func (m *Manager) ActiveSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	for _, a := range m.alerts {
		if !a.Triggered {
			seen[a.Symbol] = struct{}{}
		}
	}
	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// CheckWithPrices evaluates every untriggered alert against prices and
// returns the alerts that triggered. Alerts whose symbol has no price are
// left alone. Already triggered alerts are not evaluated.
func (m *Manager) CheckWithPrices(ctx context.Context, prices map[string]float64) []PriceAlert {
	m.mu.Lock()
	var triggered []PriceAlert
	var fire []announcement
	for i := range m.alerts {
		a := &m.alerts[i]
		if a.Triggered {
			continue
		}
		price, ok := prices[a.Symbol]
		if !ok || !a.Condition.Met(price, a.TargetPrice) {
			continue
		}
		at := m.now().UTC()
		a.Triggered = true
		a.TriggeredAt = &at
		triggered = append(triggered, a.clone())
		if _, done := m.notified[a.ID]; !done {
			m.notified[a.ID] = struct{}{}
			fire = append(fire, announcement{alert: a.clone(), price: price})
		}
	}
	if len(triggered) > 0 {
		m.persistLocked(ctx)
		m.notifyChangedLocked()
	}
	m.mu.Unlock()

	for _, n := range fire {
		m.announce(n)
	}
	return triggered
}

type announcement struct {
	alert PriceAlert
	price float64
}

// announce fires the side effects of a triggered alert. Failures are logged
// and never reach the caller.
func (m *Manager) announce(n announcement) {
	a := n.alert
	m.logger.Infof("alerts: %s %s %.2f triggered at %.2f", a.Symbol, a.Condition, a.TargetPrice, n.price)

	if m.notifier.Granted() {
		title := fmt.Sprintf("Price alert: %s", a.Symbol)
		body := fmt.Sprintf("%s is %s $%.2f (now $%.2f)", a.Symbol, a.Condition, a.TargetPrice, n.price)
		if err := m.notifier.Notify(title, body); err != nil {
			m.logger.Warnf("alerts: notification failed: %v", err)
		}
	}
	if err := m.chime.Play(); err != nil {
		m.logger.Warnf("alerts: chime failed: %v", err)
	}
}
