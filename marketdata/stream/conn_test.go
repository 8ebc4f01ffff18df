package stream

import (
	"context"
	"errors"
	"sync"
)

var (
	errClose        = errors.New("closed")
	errPingDisabled = errors.New("ping disabled")
)

type mockConn struct {
	pingCh       chan struct{}
	closeCh      chan struct{}
	closeOnce    sync.Once
	readCh       chan []byte
	writeCh      chan []byte
	pingDisabled bool

	mu      sync.Mutex
	readErr error
}

var _ conn = (*mockConn)(nil)

func newMockConn() *mockConn {
	return &mockConn{
		pingCh:  make(chan struct{}, 10),
		closeCh: make(chan struct{}),
		readCh:  make(chan []byte, 10),
		writeCh: make(chan []byte, 100),
	}
}

func (c *mockConn) close() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)
	})
	return nil
}

// closeWith closes the connection making the pending read fail with err
func (c *mockConn) closeWith(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	c.close()
}

func (c *mockConn) ping(_ context.Context) error {
	if c.pingDisabled {
		return errPingDisabled
	}
	select {
	case <-c.closeCh:
		return errClose
	default:
	}
	c.pingCh <- struct{}{}
	return nil
}

func (c *mockConn) readMessage(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data := <-c.readCh:
		return data, nil
	case <-c.closeCh:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, errClose
	}
}

func (c *mockConn) writeMessage(_ context.Context, data []byte) error {
	select {
	case <-c.closeCh:
		return errClose
	default:
	}
	c.writeCh <- data
	return nil
}

func (c *mockConn) isClosed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}
