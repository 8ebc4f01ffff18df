package stream

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// Client owns the single upstream streaming connection of the process and
// multiplexes it across all consumers.
//
// Construct one Client at startup and share it by reference. Consumers
// declare interest with Subscribe/Unsubscribe (or, preferably, a Binding) and
// read prices with Prices, LastTrades or Listen. The first subscription
// triggers Connect; lost connections are re-established after a delay and
// every wanted symbol is subscribed again.
//
// Transport failures are never returned to consumers: they surface through
// Connected and Err.
type Client struct {
	logger Logger

	baseURL string
	token   string

	reconnectLimit     int
	reconnectDelay     time.Duration
	maxReconnectDelay  time.Duration
	connectCallback    func()
	disconnectCallback func()
	bufferFillCallback func([]byte)
	bufferSize         int
	outboundSize       int

	connCreator func(ctx context.Context, u url.URL) (conn, error)
	afterFunc   scheduleFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cache *priceCache

	mu             sync.Mutex
	state          State
	errMsg         string
	closed         bool
	gen            uint64
	sess           *session
	reg            *registry
	reconnectTimer timer
	failedAttempts int
}

// session is one physical connection and the goroutines serving it
type session struct {
	gen     uint64
	conn    conn
	in      chan []byte
	out     chan []byte
	closeCh chan struct{}
}

// NewClient returns a new Client whose default configuration is modified by
// opts. It does not connect until Connect or the first Subscribe.
func NewClient(opts ...Option) *Client {
	o := defaultOptions()
	o.applyAll(opts...)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		ctx:    ctx,
		cancel: cancel,
		cache:  newPriceCache(),
		reg:    newRegistry(),
	}
	c.configure(*o)
	return c
}

func (c *Client) configure(o options) {
	c.logger = o.logger
	c.baseURL = o.baseURL
	c.token = o.token
	c.reconnectLimit = o.reconnectLimit
	c.reconnectDelay = o.reconnectDelay
	c.maxReconnectDelay = o.maxReconnectDelay
	c.connectCallback = o.connectCallback
	c.disconnectCallback = o.disconnectCallback
	c.bufferFillCallback = o.bufferFillCallback
	c.bufferSize = o.bufferSize
	c.outboundSize = o.outboundSize
	c.connCreator = o.connCreator
	c.afterFunc = o.afterFunc
}

func (c *Client) constructURL() (url.URL, error) {
	scheme := "wss"
	ub, err := url.Parse(c.baseURL)
	if err != nil {
		return url.URL{}, err
	}
	switch ub.Scheme {
	case "http", "ws":
		scheme = "ws"
	}

	q := ub.Query()
	q.Set("token", c.token)
	return url.URL{Scheme: scheme, Host: ub.Host, Path: ub.Path, RawQuery: q.Encode()}, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the upstream connection is open.
func (c *Client) Connected() bool {
	return c.State() == StateOpen
}

// Err returns a user-facing description of the last streaming failure, or
// the empty string.
func (c *Client) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Status returns the connection state and error in one consistent read.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:     c.state,
		Connected: c.state == StateOpen,
		Error:     c.errMsg,
	}
}

func (c *Client) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil && c.sess.gen == gen
}

func (c *Client) setError(gen uint64, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen {
		c.errMsg = msg
	}
}
