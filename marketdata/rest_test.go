package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quoteServer(t *testing.T, quotes map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("X-Finnhub-Token"))
		body, ok := quotes[r.URL.Query().Get("symbol")]
		if !ok {
			fmt.Fprint(w, `{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGetQuote(t *testing.T) {
	server := quoteServer(t, map[string]string{
		"AAPL": `{"c":189.5,"d":1.25,"dp":0.664,"h":190,"l":187.1,"o":188,"pc":188.25,"t":1700000000}`,
	})
	client := NewClient(ClientOpts{BaseURL: server.URL, Token: "tok"})

	quote, err := client.GetQuote(context.Background(), " aapl")
	require.NoError(t, err)
	assert.Equal(t, Quote{
		CurrentPrice:  189.5,
		Change:        1.25,
		ChangePercent: 0.664,
		High:          190,
		Low:           187.1,
		Open:          188,
		PreviousClose: 188.25,
		Timestamp:     1700000000,
	}, *quote)

	_, err = client.GetQuote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestGetQuotes(t *testing.T) {
	server := quoteServer(t, map[string]string{
		"AAPL": `{"c":189.5,"t":1}`,
		"MSFT": `{"c":330,"t":1}`,
		"TSLA": `{"c":250,"t":1}`,
	})
	client := NewClient(ClientOpts{BaseURL: server.URL, Token: "tok", Workers: 2})

	quotes, err := client.GetQuotes(context.Background(), []string{"AAPL", "msft", "AAPL", "TSLA", "NOPE"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoQuote)
	assert.Contains(t, err.Error(), "NOPE")
	assert.Len(t, quotes, 3)
	assert.Equal(t, 330.0, quotes["MSFT"].CurrentPrice)

	quotes, err = client.GetQuotes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestDefaultDo_InternalServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}))
	defer server.Close()
	t.Setenv("FINNHUB_API_URL", server.URL)
	client := NewClient(ClientOpts{Token: "tok"})

	_, err := client.GetQuote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestDefaultDo_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"Invalid API key."}`)
	}))
	defer server.Close()
	client := NewClient(ClientOpts{BaseURL: server.URL, Token: "bad"})

	_, err := client.GetQuote(context.Background(), "AAPL")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid API key.", apiErr.Message)
}

func TestDefaultDo_Retry(t *testing.T) {
	var tryCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&tryCount, 1) == 1 {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"c":1.5,"t":1}`)
	}))
	defer server.Close()
	client := NewClient(ClientOpts{
		BaseURL:    server.URL,
		RetryDelay: time.Millisecond,
		RetryLimit: 1,
	})

	quote, err := client.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1.5, quote.CurrentPrice)
}

func TestDefaultDo_TooMany429s(t *testing.T) {
	var called int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&called, 1)
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer server.Close()
	client := NewClient(ClientOpts{
		BaseURL:    server.URL,
		RetryDelay: time.Millisecond,
		RetryLimit: 3,
	})

	_, err := client.GetQuote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.EqualValues(t, 4, atomic.LoadInt32(&called))
}

func TestDefaultDo_RetryCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer server.Close()
	client := NewClient(ClientOpts{BaseURL: server.URL, RetryDelay: time.Hour, RetryLimit: 5})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.GetQuote(ctx, "AAPL")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeLive map[string]float64

func (f fakeLive) Price(symbol string) (float64, bool) {
	p, ok := f[symbol]
	return p, ok
}

type fakeFetcher struct {
	mu    sync.Mutex
	asked [][]string
}

func (f *fakeFetcher) GetQuotes(_ context.Context, symbols []string) (map[string]Quote, error) {
	f.mu.Lock()
	f.asked = append(f.asked, symbols)
	f.mu.Unlock()
	res := map[string]Quote{}
	for _, s := range symbols {
		if strings.HasPrefix(s, "X") {
			continue
		}
		res[s] = Quote{CurrentPrice: 10, Change: 1, ChangePercent: 11.1}
	}
	return res, nil
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.asked)
}

func TestBoardPrefersLivePrices(t *testing.T) {
	fetcher := &fakeFetcher{}
	b := &Board{Live: fakeLive{"AAPL": 190}, Quotes: fetcher}

	prices, err := b.Prices(context.Background(), []string{"aapl", "MSFT", "XYZ", "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, map[string]Price{
		"AAPL": {Symbol: "AAPL", Price: 190, Live: true},
		"MSFT": {Symbol: "MSFT", Price: 10, Change: 1, ChangePercent: 11.1},
	}, prices)
	assert.Equal(t, [][]string{{"MSFT", "XYZ"}}, fetcher.asked)

	_, err = b.Prices(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls())
}

func TestBoardPoll(t *testing.T) {
	fetcher := &fakeFetcher{}
	b := &Board{Quotes: fetcher}
	ctx, cancel := context.WithCancel(context.Background())

	rounds := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Poll(ctx, time.Millisecond, func() []string { return []string{"AAPL"} },
			func(prices map[string]Price, err error) {
				assert.NoError(t, err)
				assert.Equal(t, 10.0, prices["AAPL"].Price)
				rounds++
				if rounds == 3 {
					cancel()
				}
			})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "poll did not stop")
	}
	assert.Equal(t, 3, rounds)
}

func TestGetQuoteRateLimited(t *testing.T) {
	server := quoteServer(t, map[string]string{"AAPL": `{"c":1,"t":1}`})
	client := NewClient(ClientOpts{BaseURL: server.URL, Token: "tok", RateLimit: 0.001, RateBurst: 1})

	_, err := client.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.GetQuote(ctx, "AAPL")
	assert.Error(t, err)
}
