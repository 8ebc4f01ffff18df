package alerts

import (
	"time"

	"github.com/google/uuid"

	"github.com/foliowatch/foliowatch/marketdata/stream"
)

// Option configures a Manager.
type Option interface {
	apply(*options)
}

type options struct {
	logger   stream.Logger
	notifier Notifier
	chime    Chime
	key      string
	now      func() time.Time
	newID    func() string
}

type funcOption struct {
	f func(*options)
}

func (fo *funcOption) apply(o *options) {
	fo.f(o)
}

func newFuncOption(f func(*options)) *funcOption {
	return &funcOption{f: f}
}

// WithLogger configures the logger
func WithLogger(logger stream.Logger) Option {
	return newFuncOption(func(o *options) {
		o.logger = logger
	})
}

// WithNotifier configures how triggered alerts are announced. By default
// nothing is shown.
func WithNotifier(n Notifier) Option {
	return newFuncOption(func(o *options) {
		o.notifier = n
	})
}

// WithChime configures the sound played when an alert triggers. By default
// nothing is played.
func WithChime(c Chime) Option {
	return newFuncOption(func(o *options) {
		o.chime = c
	})
}

// WithStorageKey overrides the key the alert set is stored under.
func WithStorageKey(key string) Option {
	return newFuncOption(func(o *options) {
		if key != "" {
			o.key = key
		}
	})
}

func withClock(now func() time.Time) Option {
	return newFuncOption(func(o *options) {
		o.now = now
	})
}

func withIDGenerator(newID func() string) Option {
	return newFuncOption(func(o *options) {
		o.newID = newID
	})
}

func defaultOptions() *options {
	return &options{
		logger:   stream.DefaultLogger(),
		notifier: nopNotifier{},
		chime:    nopChime{},
		key:      StorageKey,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}
