package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu      sync.Mutex
	granted bool
	err     error
	titles  []string
	bodies  []string
}

func (n *recordingNotifier) Granted() bool { return n.granted }

func (n *recordingNotifier) Notify(title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	n.bodies = append(n.bodies, body)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.titles)
}

type countingChime struct {
	mu    sync.Mutex
	err   error
	plays int
}

func (c *countingChime) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plays++
	return c.err
}

func (c *countingChime) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plays
}

type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) log(level, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprintf(format, v...))
}

func (l *testLogger) Infof(format string, v ...interface{})  { l.log("INFO", format, v...) }
func (l *testLogger) Warnf(format string, v ...interface{})  { l.log("WARN", format, v...) }
func (l *testLogger) Errorf(format string, v ...interface{}) { l.log("ERROR", format, v...) }

func (l *testLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

type failingStorage struct {
	loadErr, saveErr error
}

func (s failingStorage) Load(context.Context, string) ([]byte, error) { return nil, s.loadErr }
func (s failingStorage) Save(context.Context, string, []byte) error   { return s.saveErr }

type managerEnv struct {
	m        *Manager
	storage  *MemoryStorage
	notifier *recordingNotifier
	chime    *countingChime
	logger   *testLogger
	now      time.Time
}

func newManagerEnv(t *testing.T, stored string) *managerEnv {
	t.Helper()
	env := &managerEnv{
		storage:  NewMemoryStorage(),
		notifier: &recordingNotifier{granted: true},
		chime:    &countingChime{},
		logger:   &testLogger{},
		now:      time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC),
	}
	if stored != "" {
		require.NoError(t, env.storage.Save(context.Background(), StorageKey, []byte(stored)))
	}
	ids := 0
	env.m = NewManager(context.Background(), env.storage,
		WithLogger(env.logger),
		WithNotifier(env.notifier),
		WithChime(env.chime),
		withClock(func() time.Time { return env.now }),
		withIDGenerator(func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		}),
	)
	return env
}

func (env *managerEnv) stored(t *testing.T) []PriceAlert {
	t.Helper()
	data, err := env.storage.Load(context.Background(), StorageKey)
	require.NoError(t, err)
	var alerts []PriceAlert
	require.NoError(t, json.Unmarshal(data, &alerts))
	return alerts
}

func TestAlertTriggerAbove(t *testing.T) {
	env := newManagerEnv(t, "")
	ctx := context.Background()
	a, err := env.m.Add(ctx, "aapl", 150, Above)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", a.Symbol)

	assert.Empty(t, env.m.CheckWithPrices(ctx, map[string]float64{"AAPL": 149}))
	assert.False(t, env.m.Alerts()[0].Triggered)
	assert.Equal(t, 0, env.notifier.count())

	triggered := env.m.CheckWithPrices(ctx, map[string]float64{"AAPL": 150})
	require.Len(t, triggered, 1)
	assert.Equal(t, a.ID, triggered[0].ID)
	assert.True(t, triggered[0].Triggered)
	require.NotNil(t, triggered[0].TriggeredAt)
	assert.Equal(t, env.now, *triggered[0].TriggeredAt)
	assert.Equal(t, 1, env.notifier.count())
	assert.Equal(t, 1, env.chime.count())
	assert.Equal(t, "Price alert: AAPL", env.notifier.titles[0])
	assert.Equal(t, "AAPL is above $150.00 (now $150.00)", env.notifier.bodies[0])

	stored := env.stored(t)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Triggered)
}

func TestAlertTriggerBelow(t *testing.T) {
	env := newManagerEnv(t, "")
	ctx := context.Background()
	_, err := env.m.Add(ctx, "TSLA", 200, Below)
	require.NoError(t, err)

	assert.Empty(t, env.m.CheckWithPrices(ctx, map[string]float64{"TSLA": 200.01}))
	assert.Len(t, env.m.CheckWithPrices(ctx, map[string]float64{"TSLA": 200}), 1)
}

func TestAlertNoDoubleFire(t *testing.T) {
	env := newManagerEnv(t, "")
	ctx := context.Background()
	_, err := env.m.Add(ctx, "AAPL", 150, Above)
	require.NoError(t, err)

	require.Len(t, env.m.CheckWithPrices(ctx, map[string]float64{"AAPL": 150}), 1)
	first := *env.m.Alerts()[0].TriggeredAt

	env.now = env.now.Add(time.Minute)
	assert.Empty(t, env.m.CheckWithPrices(ctx, map[string]float64{"AAPL": 151}))
	assert.Equal(t, first, *env.m.Alerts()[0].TriggeredAt)
	assert.Equal(t, 1, env.notifier.count())
	assert.Equal(t, 1, env.chime.count())
}

func TestAlertResetRoundTrip(t *testing.T) {
	env := newManagerEnv(t, "")
	ctx := context.Background()
	a, err := env.m.Add(ctx, "AAPL", 150, Above)
	require.NoError(t, err)
	require.Len(t, env.m.CheckWithPrices(ctx, map[string]float64{"AAPL": 150}), 1)

	require.NoError(t, env.m.Reset(ctx, a.ID))
	alert := env.m.Alerts()[0]
	assert.False(t, alert.Triggered)
	assert.Nil(t, alert.TriggeredAt)
	assert.False(t, env.stored(t)[0].Triggered)
	assert.Equal(t, []string{"AAPL"}, env.m.ActiveSymbols())

	require.Len(t, env.m.CheckWithPrices(ctx, map[string]float64{"AAPL": 155}), 1)
	assert.Equal(t, 2, env.notifier.count())
	assert.Equal(t, 2, env.chime.count())

	assert.ErrorIs(t, env.m.Reset(ctx, "nope"), ErrAlertNotFound)
}

func TestMissingPriceLeavesAlertAlone(t *testing.T) {
	env := newManagerEnv(t, "")
	ctx := context.Background()
	_, err := env.m.Add(ctx, "AAPL", 150, Above)
	require.NoError(t, err)

	assert.Empty(t, env.m.CheckWithPrices(ctx, map[string]float64{"MSFT": 1000}))
	assert.Empty(t, env.m.CheckWithPrices(ctx, nil))
	require.Len(t, env.m.Alerts(), 1)
	assert.False(t, env.m.Alerts()[0].Triggered)
}

func TestPermissionDeniedStillTriggers(t *testing.T) {
	env := newManagerEnv(t, "")
	env.notifier.granted = false
	env.chime.err = errors.New("audio blocked")
	ctx := context.Background()
	_, err := env.m.Add(ctx, "AAPL", 150, Above)
	require.NoError(t, err)

	assert.Len(t, env.m.CheckWithPrices(ctx, map[string]float64{"AAPL": 160}), 1)
	assert.Equal(t, 0, env.notifier.count())
	assert.Equal(t, 1, env.chime.count())
	assert.True(t, env.logger.contains("chime failed: audio blocked"))
	assert.True(t, env.m.Alerts()[0].Triggered)
}

func TestNotificationFailureIsSwallowed(t *testing.T) {
	env := newManagerEnv(t, "")
	env.notifier.err = errors.New("dbus unavailable")
	ctx := context.Background()
	_, err := env.m.Add(ctx, "AAPL", 150, Above)
	require.NoError(t, err)

	assert.Len(t, env.m.CheckWithPrices(ctx, map[string]float64{"AAPL": 160}), 1)
	assert.True(t, env.logger.contains("notification failed: dbus unavailable"))
	assert.Equal(t, 1, env.chime.count())
}

func TestAddValidation(t *testing.T) {
	env := newManagerEnv(t, "")
	ctx := context.Background()

	_, err := env.m.Add(ctx, "AAPL", 150, Condition("sideways"))
	assert.ErrorIs(t, err, ErrInvalidCondition)
	_, err = env.m.Add(ctx, "  ", 150, Above)
	assert.ErrorIs(t, err, ErrInvalidAlert)
	_, err = env.m.Add(ctx, "AAPL", 0, Above)
	assert.ErrorIs(t, err, ErrInvalidAlert)
	_, err = env.m.Add(ctx, "AAPL", -3, Below)
	assert.ErrorIs(t, err, ErrInvalidAlert)
	assert.Empty(t, env.m.Alerts())
}

func TestRemoveAndClearTriggered(t *testing.T) {
	env := newManagerEnv(t, "")
	ctx := context.Background()
	a1, err := env.m.Add(ctx, "AAPL", 150, Above)
	require.NoError(t, err)
	a2, err := env.m.Add(ctx, "MSFT", 300, Below)
	require.NoError(t, err)
	a3, err := env.m.Add(ctx, "TSLA", 100, Above)
	require.NoError(t, err)

	require.NoError(t, env.m.Remove(ctx, a2.ID))
	assert.ErrorIs(t, env.m.Remove(ctx, a2.ID), ErrAlertNotFound)
	assert.Equal(t, []string{"AAPL", "TSLA"}, env.m.ActiveSymbols())

	env.m.CheckWithPrices(ctx, map[string]float64{"AAPL": 151})
	assert.Equal(t, []string{"TSLA"}, env.m.ActiveSymbols())

	assert.Equal(t, 1, env.m.ClearTriggered(ctx))
	alerts := env.m.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, a3.ID, alerts[0].ID)
	stored := env.stored(t)
	require.Len(t, stored, 1)
	assert.Equal(t, a3.ID, stored[0].ID)
	assert.NotEqual(t, a1.ID, stored[0].ID)

	assert.Equal(t, 0, env.m.ClearTriggered(ctx))
}

func TestActiveSymbolsDeduplicated(t *testing.T) {
	env := newManagerEnv(t, "")
	ctx := context.Background()
	for _, s := range []string{"msft", "AAPL", "MSFT"} {
		_, err := env.m.Add(ctx, s, 100, Above)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"AAPL", "MSFT"}, env.m.ActiveSymbols())
}

func TestLoadSkipsInvalidEntries(t *testing.T) {
	stored := `[
		{"id":"a","symbol":"AAPL","targetPrice":150,"condition":"above","triggered":false,"createdAt":"2024-01-01T00:00:00Z"},
		{"id":"b","symbol":"MSFT","targetPrice":300,"condition":"sideways","triggered":false,"createdAt":"2024-01-01T00:00:00Z"},
		{"id":"c","symbol":"","targetPrice":1,"condition":"below","createdAt":"2024-01-01T00:00:00Z"},
		"garbage",
		{"id":"d","symbol":"tsla","targetPrice":90,"condition":"below","triggered":true,"triggeredAt":"2024-02-01T00:00:00Z","createdAt":"2024-01-01T00:00:00Z"},
		{"id":"a","symbol":"NVDA","targetPrice":1,"condition":"above","createdAt":"2024-01-01T00:00:00Z"}
	]`
	env := newManagerEnv(t, stored)

	alerts := env.m.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, "a", alerts[0].ID)
	assert.Equal(t, "d", alerts[1].ID)
	assert.Equal(t, "TSLA", alerts[1].Symbol)
	assert.True(t, alerts[1].Triggered)
	assert.True(t, env.logger.contains("skipping entry 1"))
	assert.True(t, env.logger.contains("duplicate id a"))
}

func TestReloadDoesNotRefireTriggeredAlerts(t *testing.T) {
	env := newManagerEnv(t, "")
	ctx := context.Background()
	_, err := env.m.Add(ctx, "AAPL", 150, Above)
	require.NoError(t, err)
	env.m.CheckWithPrices(ctx, map[string]float64{"AAPL": 150})
	require.Equal(t, 1, env.notifier.count())

	notifier := &recordingNotifier{granted: true}
	reloaded := NewManager(ctx, env.storage, WithNotifier(notifier))
	assert.Empty(t, reloaded.CheckWithPrices(ctx, map[string]float64{"AAPL": 200}))
	assert.Equal(t, 0, notifier.count())
	assert.True(t, reloaded.Alerts()[0].Triggered)
}

func TestStorageFailuresKeepMemoryAuthoritative(t *testing.T) {
	logger := &testLogger{}
	ctx := context.Background()
	m := NewManager(ctx, failingStorage{
		loadErr: errors.New("disk gone"),
		saveErr: errors.New("quota exceeded"),
	}, WithLogger(logger))
	assert.True(t, logger.contains("disk gone"))

	a, err := m.Add(ctx, "AAPL", 150, Above)
	require.NoError(t, err)
	assert.True(t, logger.contains("quota exceeded"))
	require.Len(t, m.Alerts(), 1)
	assert.Len(t, m.CheckWithPrices(ctx, map[string]float64{"AAPL": 151}), 1)
	require.NoError(t, m.Remove(ctx, a.ID))
	assert.Empty(t, m.Alerts())
}

func TestCorruptStorageStartsEmpty(t *testing.T) {
	env := newManagerEnv(t, `{"not":"an array"}`)
	assert.Empty(t, env.m.Alerts())
	assert.True(t, env.logger.contains("not a JSON array"))
}

func TestChangedIsSignalled(t *testing.T) {
	env := newManagerEnv(t, "")
	ctx := context.Background()
	_, err := env.m.Add(ctx, "AAPL", 150, Above)
	require.NoError(t, err)
	_, err = env.m.Add(ctx, "MSFT", 150, Above)
	require.NoError(t, err)

	select {
	case <-env.m.Changed():
	default:
		require.FailNow(t, "expected a change signal")
	}
	select {
	case <-env.m.Changed():
		require.FailNow(t, "signals should be coalesced")
	default:
	}
}

func TestAlertJSONKeys(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	data, err := json.Marshal(PriceAlert{
		ID:          "x",
		Symbol:      "AAPL",
		TargetPrice: 150.5,
		Condition:   Above,
		Triggered:   true,
		TriggeredAt: &at,
		CreatedAt:   at,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id":"x","symbol":"AAPL","targetPrice":150.5,"condition":"above",
		"triggered":true,"triggeredAt":"2024-03-01T00:00:00Z","createdAt":"2024-03-01T00:00:00Z"
	}`, string(data))
}
