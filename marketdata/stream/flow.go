package stream

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/foliowatch/foliowatch/internal/ctxtime"
)

// Connect starts connecting to the streaming endpoint. It is a no-op while
// the client is connecting or connected and never blocks on the network.
// Otherwise the failed attempt counter starts over, so a client that hit the
// reconnect limit is re-armed. Without a configured token it only records
// ErrMissingToken.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rearmLocked()
}

func (c *Client) rearmLocked() {
	if c.closed || c.state == StateConnecting || c.state == StateOpen {
		return
	}
	c.failedAttempts = 0
	c.connectLocked()
}

func (c *Client) connectLocked() {
	if c.closed || c.state == StateConnecting || c.state == StateOpen {
		return
	}
	c.stopReconnectTimerLocked()

	if c.token == "" {
		c.errMsg = ErrMissingToken.Error()
		c.logger.Errorf("livestream: %v", ErrMissingToken)
		return
	}
	u, err := c.constructURL()
	if err != nil {
		c.errMsg = fmt.Sprintf("invalid streaming URL: %v", err)
		c.logger.Errorf("livestream: invalid base URL %q: %v", c.baseURL, err)
		return
	}

	c.gen++
	c.state = StateConnecting
	c.wg.Add(1)
	go c.run(c.gen, u)
}

// run dials, serves the connection until it ends and then hands the outcome
// to handleClose.
func (c *Client) run(gen uint64, u url.URL) {
	defer c.wg.Done()

	c.logger.Infof("livestream: connecting to %s://%s%s ...", u.Scheme, u.Host, u.Path)
	conn, err := c.connCreator(c.ctx, u)
	if err != nil {
		c.logger.Warnf("livestream: failed to connect, error: %v", err)
		c.handleClose(gen, false, fmt.Errorf("failed to connect: %w", err))
		return
	}

	s, replayed := c.handleOpen(gen, conn)
	if s == nil {
		conn.close()
		return
	}
	c.logger.Infof("livestream: established connection, resubscribed %d symbols", replayed)
	if c.connectCallback != nil {
		c.connectCallback()
	}

	wg := sync.WaitGroup{}
	wg.Add(3)
	go c.messageProcessor(s, &wg)
	go c.connPinger(s, &wg)
	go c.connWriter(s, &wg)
	err = c.connReader(s)

	close(s.closeCh)
	s.conn.close()
	close(s.in)
	wg.Wait()

	c.handleClose(gen, errors.Is(err, errNormalClosure), err)
}

// handleOpen makes s the current connection and replays pending
// subscriptions on it. It returns nil if gen is no longer current.
func (c *Client) handleOpen(gen uint64, cn conn) (*session, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.gen || c.state != StateConnecting {
		return nil, 0
	}

	s := &session{
		gen:     gen,
		conn:    cn,
		in:      make(chan []byte, c.bufferSize),
		out:     make(chan []byte, c.outboundSize+len(c.reg.pending)),
		closeCh: make(chan struct{}),
	}
	c.sess = s
	c.state = StateOpen
	c.errMsg = ""
	c.failedAttempts = 0

	symbols := c.reg.replay()
	for _, symbol := range symbols {
		c.sendLocked(true, symbol)
	}
	return s, len(symbols)
}

// handleClose moves the client to Disconnected and, unless the close was
// clean or the client is shutting down, schedules a reconnect. Events of
// stale generations are ignored.
func (c *Client) handleClose(gen uint64, clean bool, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	wasOpen := c.sess != nil
	c.sess = nil
	c.state = StateDisconnected
	c.reg.disconnect()
	clean = clean || c.closed

	switch {
	case clean:
		c.logger.Infof("livestream: disconnected")
	default:
		if cause != nil {
			c.errMsg = cause.Error()
		}
		c.failedAttempts++
		if c.reconnectLimit != 0 && c.failedAttempts > c.reconnectLimit {
			c.errMsg = fmt.Sprintf("%v, last error: %v", ErrReconnectLimit, cause)
			c.logger.Errorf("livestream: %s", c.errMsg)
			break
		}
		delay := c.backoff()
		c.logger.Warnf("livestream: connection lost (%v), reconnecting in %s, attempt %d", cause, delay, c.failedAttempts)
		c.scheduleReconnectLocked(delay)
	}
	c.mu.Unlock()

	if wasOpen && c.disconnectCallback != nil {
		c.disconnectCallback()
	}
}

func (c *Client) backoff() time.Duration {
	return ctxtime.Linear(c.failedAttempts, c.reconnectDelay, c.maxReconnectDelay)
}

// scheduleReconnectLocked arms the reconnect timer unless one is already
// outstanding.
func (c *Client) scheduleReconnectLocked(delay time.Duration) {
	if c.reconnectTimer != nil {
		return
	}
	var t timer
	t = c.afterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.reconnectTimer != t {
			return
		}
		c.reconnectTimer = nil
		c.connectLocked()
	})
	c.reconnectTimer = t
}

func (c *Client) stopReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// Close tears the client down: it cancels a pending reconnect, closes the
// connection cleanly and waits for the connection goroutines to exit.
// Subscriptions made afterwards are ignored. Close must not be called from
// a listener or callback.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopReconnectTimerLocked()
	s := c.sess
	if s != nil {
		c.state = StateClosing
	}
	c.mu.Unlock()

	c.cancel()
	if s != nil {
		s.conn.close()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
}

// connPinger periodically pings the server to ensure the connection is still alive
func (c *Client) connPinger(s *session, wg *sync.WaitGroup) {
	pingTicker := newPingTicker()
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()

	for {
		select {
		case <-s.closeCh:
			return
		case <-c.ctx.Done():
			return
		case <-pingTicker.C():
			if err := s.conn.ping(c.ctx); err != nil {
				if c.ctx.Err() == nil {
					c.logger.Errorf("livestream: ping failed, error: %v", err)
					c.setError(s.gen, fmt.Sprintf("connection lost: %v", err))
				}
				s.conn.close()
				return
			}
		}
	}
}

// connReader reads from the connection until it fails and hands the frames
// to the processor without ever blocking on it: when the buffer is full the
// frame is dropped.
func (c *Client) connReader(s *session) error {
	for {
		msg, err := s.conn.readMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil && !errors.Is(err, errNormalClosure) {
				c.logger.Errorf("livestream: reading from conn failed, error: %v", err)
				err = fmt.Errorf("connection lost: %w", err)
			}
			return err
		}

		select {
		case s.in <- msg:
		default:
			c.logger.Warnf("livestream: message buffer is full, dropping message")
			if c.bufferFillCallback != nil {
				c.bufferFillCallback(msg)
			}
		}
	}
}

// connWriter writes queued subscription changes to the connection in order
func (c *Client) connWriter(s *session, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-s.closeCh:
			return
		case <-c.ctx.Done():
			return
		case msg := <-s.out:
			if err := s.conn.writeMessage(c.ctx, msg); err != nil {
				if c.ctx.Err() == nil {
					c.logger.Errorf("livestream: writing to conn failed, error: %v", err)
					c.setError(s.gen, fmt.Sprintf("connection lost: %v", err))
				}
				s.conn.close()
				return
			}
		}
	}
}

// messageProcessor processes frames from s.in (while it's open)
func (c *Client) messageProcessor(s *session, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-s.in:
			if !ok {
				return
			}
			if err := c.handleMessage(s.gen, msg); err != nil {
				c.logger.Errorf("livestream: could not handle message, error: %v", err)
			}
		}
	}
}
