package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/foliowatch/foliowatch/marketdata/stream"
)

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.logger.Warnf("relay: websocket accept: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "")
	c.SetReadLimit(64 << 10)

	sess := newSession(s, c)
	err = sess.run(r.Context())
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return
	}
	if errors.Is(err, context.Canceled) {
		c.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	s.logger.Infof("relay: websocket %s closed: %v", r.RemoteAddr, err)
}

// session is one browser socket. It holds one Binding for the symbols the
// page shows and forwards the matching trades.
type session struct {
	srv     *Server
	conn    *websocket.Conn
	binding *stream.Binding
	out     chan interface{}

	mu      sync.RWMutex
	symbols map[string]struct{}
	dropped int
}

func newSession(s *Server, c *websocket.Conn) *session {
	return &session{
		srv:     s,
		conn:    c,
		binding: stream.NewBinding(s.feed),
		out:     make(chan interface{}, s.sendBuffer),
		symbols: make(map[string]struct{}),
	}
}

func (ss *session) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer ss.binding.Release()

	stop := ss.srv.feed.Listen(ss.onTrade)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	writeErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		writeErr <- ss.writer(ctx)
		cancel()
	}()
	go func() {
		defer wg.Done()
		ss.statusWatcher(ctx)
	}()

	err := ss.reader(ctx)
	cancel()
	wg.Wait()
	ss.mu.RLock()
	if ss.dropped > 0 {
		ss.srv.logger.Warnf("relay: dropped %d frames for a slow socket", ss.dropped)
	}
	ss.mu.RUnlock()
	if werr := <-writeErr; werr != nil && !errors.Is(werr, context.Canceled) {
		return werr
	}
	return err
}

func (ss *session) wants(symbol string) bool {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	_, ok := ss.symbols[symbol]
	return ok
}

// onTrade runs on the stream's processor goroutine and must not block: a
// socket that cannot keep up loses trades.
func (ss *session) onTrade(t stream.Trade) {
	if !ss.wants(t.Symbol) {
		return
	}
	ss.send(newTradeFrame(t))
}

func (ss *session) send(frame interface{}) {
	select {
	case ss.out <- frame:
	default:
		ss.mu.Lock()
		ss.dropped++
		ss.mu.Unlock()
	}
}

func (ss *session) setSymbols(symbols []string) {
	set := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		set[symbol] = struct{}{}
	}
	ss.mu.Lock()
	ss.symbols = set
	ss.mu.Unlock()
	ss.binding.Update(symbols...)
}

// reader handles requests until the socket fails. A bad request is
// answered with an error frame and does not end the socket.
func (ss *session) reader(ctx context.Context) error {
	for {
		typ, b, err := ss.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			ss.send(errorFrame{Type: frameError, Message: "expected a text message"})
			continue
		}
		var req request
		if err := json.Unmarshal(b, &req); err != nil {
			ss.send(errorFrame{Type: frameError, Message: "invalid JSON"})
			continue
		}
		ss.handle(req)
	}
}

func (ss *session) handle(req request) {
	switch req.Type {
	case frameSubscribe:
		symbols := make([]string, 0, len(req.Symbols))
		seen := make(map[string]struct{}, len(req.Symbols))
		for _, s := range req.Symbols {
			symbol := stream.CanonicalSymbol(s)
			if _, ok := seen[symbol]; ok || symbol == "" {
				continue
			}
			seen[symbol] = struct{}{}
			symbols = append(symbols, symbol)
		}
		if len(symbols) > ss.srv.maxSymbols {
			ss.send(errorFrame{Type: frameError, Message: errTooManySymbols.Error()})
			return
		}
		ss.setSymbols(symbols)
		for _, symbol := range symbols {
			if t, ok := ss.srv.feed.LastTrade(symbol); ok {
				ss.send(newTradeFrame(t))
			}
		}
	case frameUnsubscribe:
		ss.setSymbols(nil)
	default:
		ss.send(errorFrame{Type: frameError, Message: fmt.Sprintf("unknown message type %q", req.Type)})
	}
}

func (ss *session) writer(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-ss.out:
			wctx, cancel := context.WithTimeout(ctx, ss.srv.writeTimeout)
			err := wsjson.Write(wctx, ss.conn, frame)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

// statusWatcher sends the upstream status on connect and whenever it
// changes.
func (ss *session) statusWatcher(ctx context.Context) {
	t := time.NewTicker(ss.srv.statusInterval)
	defer t.Stop()

	last := ss.srv.feed.Status()
	ss.send(newStatusFrame(last))
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if cur := ss.srv.feed.Status(); cur != last {
			last = cur
			ss.send(newStatusFrame(cur))
		}
	}
}
