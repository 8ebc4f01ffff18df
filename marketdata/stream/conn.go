package stream

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"nhooyr.io/websocket"
)

// conn is one websocket connection to the feed. The client only ever holds
// one live conn; mockConn stands in for it in tests.
type conn interface {
	close() error
	ping(ctx context.Context) error
	// readMessage blocks until it reads a single message. A normal closure
	// initiated by the server is reported as an error wrapping errNormalClosure.
	readMessage(ctx context.Context) (data []byte, err error)
	writeMessage(ctx context.Context, data []byte) error
}

var (
	dialTimeout = 5 * time.Second  // Time allowed to establish the connection
	writeWait   = 5 * time.Second  // Time allowed to write a message to the peer
	pongWait    = 5 * time.Second  // Time allowed to read the next pong message from the peer
	pingPeriod  = 20 * time.Second // Send pings to peer with this period

	// Trade batches for many symbols can get large.
	readLimit int64 = 1 << 20
)

// wsConn is the conn of a real connection. Finnhub speaks JSON text frames.
type wsConn struct {
	ws *websocket.Conn
}

func dialFeed(ctx context.Context, u url.URL) (conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	//nolint:bodyclose // According to its docs: you never need to close resp.Body yourself
	ws, _, err := websocket.Dial(dialCtx, u.String(), &websocket.DialOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	ws.SetReadLimit(readLimit)
	return &wsConn{ws: ws}, nil
}

func (c *wsConn) close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

func (c *wsConn) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pongWait)
	defer cancel()
	return c.ws.Ping(pingCtx)
}

func (c *wsConn) readMessage(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil, fmt.Errorf("%w: %v", errNormalClosure, err)
	}
	return data, err
}

func (c *wsConn) writeMessage(ctx context.Context, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return c.ws.Write(writeCtx, websocket.MessageText, data)
}
