package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/foliowatch/foliowatch/marketdata"
	"github.com/foliowatch/foliowatch/marketdata/stream"
)

// Feed is the part of the streaming client the relay consumes.
type Feed interface {
	stream.Subscriber
	Listen(fn func(stream.Trade)) (stop func())
	LastTrade(symbol string) (stream.Trade, bool)
	Status() stream.Status
}

// Pricer returns the best known prices, live or snapshot.
type Pricer interface {
	Prices(ctx context.Context, symbols []string) (map[string]marketdata.Price, error)
}

var (
	_ Feed   = (*stream.Client)(nil)
	_ Pricer = (*marketdata.Board)(nil)
)

// Server relays the shared price stream to browsers. Every websocket owns
// one Binding, so the upstream subscriptions follow what the open pages
// show.
type Server struct {
	feed   Feed
	prices Pricer
	logger stream.Logger

	origins        []string
	maxSymbols     int
	sendBuffer     int
	statusInterval time.Duration
	writeTimeout   time.Duration

	mux *http.ServeMux
}

// Option configures a Server.
type Option interface {
	apply(*Server)
}

type funcOption struct {
	f func(*Server)
}

func (fo *funcOption) apply(s *Server) {
	fo.f(s)
}

func newFuncOption(f func(*Server)) *funcOption {
	return &funcOption{f: f}
}

// WithLogger configures the logger
func WithLogger(logger stream.Logger) Option {
	return newFuncOption(func(s *Server) {
		s.logger = logger
	})
}

// WithOriginPatterns lists the hosts allowed to open websockets besides the
// server's own.
func WithOriginPatterns(patterns ...string) Option {
	return newFuncOption(func(s *Server) {
		s.origins = patterns
	})
}

// WithMaxSymbols bounds the number of symbols a single request may ask for.
func WithMaxSymbols(n int) Option {
	return newFuncOption(func(s *Server) {
		if n > 0 {
			s.maxSymbols = n
		}
	})
}

// WithStatusInterval configures how often sockets are checked for a change
// of the upstream connection status.
func WithStatusInterval(d time.Duration) Option {
	return newFuncOption(func(s *Server) {
		if d > 0 {
			s.statusInterval = d
		}
	})
}

// New creates a relay over feed. prices answers /api/prices.
func New(feed Feed, prices Pricer, opts ...Option) *Server {
	s := &Server{
		feed:           feed,
		prices:         prices,
		logger:         stream.DefaultLogger(),
		maxSymbols:     50,
		sendBuffer:     256,
		statusInterval: time.Second,
		writeTimeout:   5 * time.Second,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	s.mux.HandleFunc("GET /api/prices", s.handlePrices)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /ws", s.handleWebsocket)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Infof("relay: listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) parseSymbols(raw string) ([]string, error) {
	var symbols []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		symbol := stream.CanonicalSymbol(part)
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		symbols = append(symbols, symbol)
	}
	if len(symbols) > s.maxSymbols {
		return nil, errTooManySymbols
	}
	return symbols, nil
}

var errTooManySymbols = errors.New("too many symbols")

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.parseSymbols(r.URL.Query().Get("symbols"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorFrame{Type: frameError, Message: err.Error()})
		return
	}
	if len(symbols) == 0 {
		writeJSON(w, http.StatusBadRequest, errorFrame{Type: frameError, Message: "symbols is required"})
		return
	}
	prices, err := s.prices.Prices(r.Context(), symbols)
	if err != nil {
		s.logger.Warnf("relay: price lookup: %v", err)
	}
	writeJSON(w, http.StatusOK, newPricesResponse(prices, err))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newStatusFrame(s.feed.Status()))
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
