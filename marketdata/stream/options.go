package stream

import (
	"context"
	"net/url"
	"os"
	"time"
)

// Option is a configuration option for the Client
type Option interface {
	apply(*options)
}

type options struct {
	logger             Logger
	baseURL            string
	token              string
	reconnectLimit     int
	reconnectDelay     time.Duration
	maxReconnectDelay  time.Duration
	connectCallback    func()
	disconnectCallback func()
	bufferFillCallback func([]byte)
	bufferSize         int
	outboundSize       int

	// for testing only
	connCreator func(ctx context.Context, u url.URL) (conn, error)
	afterFunc   scheduleFunc
}

type funcOption struct {
	f func(*options)
}

func (fo *funcOption) apply(o *options) {
	fo.f(o)
}

func newFuncOption(f func(*options)) *funcOption {
	return &funcOption{
		f: f,
	}
}

// WithLogger configures the logger
func WithLogger(logger Logger) Option {
	return newFuncOption(func(o *options) {
		o.logger = logger
	})
}

// WithBaseURL configures the base URL of the streaming endpoint
func WithBaseURL(url string) Option {
	return newFuncOption(func(o *options) {
		o.baseURL = url
	})
}

// WithToken configures the API token embedded in the connection URL
func WithToken(token string) Option {
	return newFuncOption(func(o *options) {
		if token != "" {
			o.token = token
		}
	})
}

// WithReconnectSettings configures how many consecutive connection
// failures should be accepted and the delay (that is multiplied by the number
// of consecutive failures) before the next attempt. limit = 0 means the client
// keeps reconnecting indefinitely.
func WithReconnectSettings(limit int, delay time.Duration) Option {
	return newFuncOption(func(o *options) {
		o.reconnectLimit = limit
		o.reconnectDelay = delay
	})
}

// WithMaxReconnectDelay caps the back-off between reconnect attempts
func WithMaxReconnectDelay(d time.Duration) Option {
	return newFuncOption(func(o *options) {
		o.maxReconnectDelay = d
	})
}

// WithConnectCallback runs the callback function after the streaming
// connection is set up and pending subscriptions have been replayed.
// It runs on a connection goroutine and must not call Close.
func WithConnectCallback(callback func()) Option {
	return newFuncOption(func(o *options) {
		o.connectCallback = callback
	})
}

// WithDisconnectCallback runs the callback function after the streaming
// connection is lost or closed. It must not call Close.
func WithDisconnectCallback(callback func()) Option {
	return newFuncOption(func(o *options) {
		o.disconnectCallback = callback
	})
}

// WithBufferFillCallback runs the callback function whenever the buffer is full
// and msg cannot be delivered. This usually happens when listeners
// process the trades slowly and they cannot keep up with the pace messages
// are received. This callback should run fast, so avoid any blocking
// instructions in the callback.
func WithBufferFillCallback(callback func(msg []byte)) Option {
	return newFuncOption(func(o *options) {
		o.bufferFillCallback = callback
	})
}

// WithBufferSize sets the size for the buffer that is used for messages received
// from the server
func WithBufferSize(size int) Option {
	return newFuncOption(func(o *options) {
		o.bufferSize = size
	})
}

func withConnCreator(connCreator func(ctx context.Context, u url.URL) (conn, error)) Option {
	return newFuncOption(func(o *options) {
		o.connCreator = connCreator
	})
}

func withAfterFunc(fn scheduleFunc) Option {
	return newFuncOption(func(o *options) {
		o.afterFunc = fn
	})
}

// defaultOptions are the default options for a client.
func defaultOptions() *options {
	baseURL := "wss://ws.finnhub.io"
	if s := os.Getenv("FINNHUB_WS_URL"); s != "" {
		baseURL = s
	}

	return &options{
		logger:            DefaultLogger(),
		baseURL:           baseURL,
		token:             os.Getenv("FINNHUB_API_KEY"),
		reconnectLimit:    0,
		reconnectDelay:    5 * time.Second,
		maxReconnectDelay: time.Minute,
		bufferSize:        10000,
		outboundSize:      256,
		connCreator:       dialFeed,
		afterFunc:         realAfterFunc,
	}
}

func (o *options) applyAll(opts ...Option) {
	for _, opt := range opts {
		opt.apply(o)
	}
}
