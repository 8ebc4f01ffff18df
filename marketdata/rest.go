package marketdata

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/foliowatch/foliowatch/internal/ctxtime"
)

// ClientOpts contains options for the snapshot quote client.
type ClientOpts struct {
	Token   string
	BaseURL string
	Timeout time.Duration

	// RetryLimit is the number of retries of a rate limited (429) request.
	// The n-th retry waits n*RetryDelay, at most 4*RetryDelay.
	RetryLimit int
	RetryDelay time.Duration

	// Workers bounds the number of concurrent requests of GetQuotes
	Workers int

	// RateLimit is the sustained number of requests per second, RateBurst the
	// number that may be sent at once. The free tier allows 60 calls a minute.
	RateLimit rate.Limit
	RateBurst int
}

// Client fetches snapshot quotes. It is the non-streaming fallback used when
// the streaming connection is unavailable or a symbol has no live trade yet.
type Client struct {
	opts    ClientOpts
	limiter *rate.Limiter

	do func(c *Client, req *http.Request) (*http.Response, error)
}

// NewClient creates a new snapshot quote client using the given opts.
func NewClient(opts ClientOpts) *Client {
	if opts.Token == "" {
		opts.Token = os.Getenv("FINNHUB_API_KEY")
	}
	if opts.BaseURL == "" {
		if s := os.Getenv("FINNHUB_API_URL"); s != "" {
			opts.BaseURL = s
		} else {
			opts.BaseURL = "https://finnhub.io/api/v1"
		}
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryLimit == 0 {
		opts.RetryLimit = 3
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = 1
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}
	return &Client{
		opts:    opts,
		limiter: rate.NewLimiter(opts.RateLimit, opts.RateBurst),

		do: defaultDo,
	}
}

func defaultDo(c *Client, req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Finnhub-Token", c.opts.Token)

	client := &http.Client{
		Timeout: c.opts.Timeout,
	}
	var resp *http.Response
	var err error
	for i := 0; ; i++ {
		resp, err = client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		if i >= c.opts.RetryLimit {
			break
		}
		resp.Body.Close()
		if err := ctxtime.Sleep(req.Context(), ctxtime.Linear(i+1, c.opts.RetryDelay, c.opts.RetryDelay*4)); err != nil {
			return nil, err
		}
	}

	if err = verify(resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// GetQuote returns the snapshot quote of symbol. ErrNoQuote is returned for
// symbols the endpoint knows nothing about.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	u, err := url.Parse(fmt.Sprintf("%s/quote", c.opts.BaseURL))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("symbol", symbol)
	u.RawQuery = q.Encode()

	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var quote Quote
	if err = unmarshal(resp, &quote); err != nil {
		return nil, err
	}
	if quote.CurrentPrice == 0 && quote.Timestamp == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}

	return &quote, nil
}

// GetQuotes returns the snapshot quotes of symbols, fetched with at most
// Workers concurrent requests. Symbols that fail are missing from the result
// and reported in the returned error; the result holds everything that
// succeeded even when err is not nil.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	jobs := make(chan string)
	var (
		mu     sync.Mutex
		quotes = make(map[string]Quote, len(symbols))
		errs   []error
		wg     sync.WaitGroup
	)

	workers := c.opts.Workers
	if workers > len(symbols) {
		workers = len(symbols)
	}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				quote, err := c.GetQuote(ctx, symbol)
				mu.Lock()
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
				} else {
					quotes[symbol] = *quote
				}
				mu.Unlock()
			}
		}()
	}

	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(s))
		if _, ok := seen[symbol]; ok || symbol == "" {
			continue
		}
		seen[symbol] = struct{}{}
		jobs <- symbol
	}
	close(jobs)
	wg.Wait()

	return quotes, errors.Join(errs...)
}

func (c *Client) get(ctx context.Context, u *url.URL) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Encoding", "gzip")

	return c.do(c, req)
}

// ErrNoQuote is returned when the quote endpoint has no data for a symbol
var ErrNoQuote = errors.New("no quote available")

// APIError wraps the error message supplied by the quote API
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func verify(resp *http.Response) error {
	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		var apiErr APIError
		err = json.Unmarshal(body, &apiErr)
		if err != nil || apiErr.Message == "" {
			// If the error is not in our JSON format, we simply return the HTTP response
			return fmt.Errorf("HTTP %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}
	return nil
}

func unmarshal(resp *http.Response, data interface{}) error {
	defer resp.Body.Close()
	var (
		reader io.ReadCloser
		err    error
	)
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		reader, err = gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer reader.Close()
	default:
		reader = resp.Body
	}
	return json.NewDecoder(reader).Decode(data)
}
