package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
	"github.com/google/subcommands"

	"github.com/foliowatch/foliowatch/marketdata"
	"github.com/foliowatch/foliowatch/marketdata/stream"
)

type watchCmd struct {
	window int
	poll   time.Duration
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "print live trades for symbols" }
func (*watchCmd) Usage() string {
	return `foliowatch watch [-window <n>] [-poll <interval>] SYMBOL...

  Prints every trade of the symbols with a moving average of the last n
  prices. Symbols without live trades are shown with delayed quotes.
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.window, "window", 20, "Number of trades in the moving average")
	f.DurationVar(&c.poll, "poll", 0, "Interval of delayed quote refreshes. Defaults to stream.poll_interval")
}

func (c *watchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "watch needs at least one symbol")
		return subcommands.ExitUsageError
	}
	if c.window < 1 {
		fmt.Fprintln(os.Stderr, "-window must be at least 1")
		return subcommands.ExitUsageError
	}
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()
	poll := c.poll
	if poll <= 0 {
		poll = a.cfg.Stream.PollInterval
	}

	t := newTicker(os.Stdout, c.window)
	client := a.streamClient(
		stream.WithConnectCallback(func() { t.printStatus(stream.Status{State: stream.StateOpen, Connected: true}) }),
	)
	defer client.Close()

	stop := client.Listen(t.onTrade)
	defer stop()
	binding := client.BindContext(ctx, f.Args()...)

	board := &marketdata.Board{Live: client, Quotes: a.quoteClient()}
	board.Poll(ctx, poll, binding.Symbols, func(prices map[string]marketdata.Price, err error) {
		if err != nil {
			a.logger.Warnf("delayed quotes: %v", err)
		}
		t.onSnapshot(prices, client.Status())
	})
	return subcommands.ExitSuccess
}

// ticker prints trades with their moving average.
type ticker struct {
	mu         sync.Mutex
	out        io.Writer
	window     int
	averages   map[string]*movingaverage.MovingAverage
	lastStatus stream.Status
}

func newTicker(out io.Writer, window int) *ticker {
	return &ticker{
		out:      out,
		window:   window,
		averages: make(map[string]*movingaverage.MovingAverage),
	}
}

func (t *ticker) onTrade(tr stream.Trade) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ma, ok := t.averages[tr.Symbol]
	if !ok {
		ma = movingaverage.New(t.window)
		t.averages[tr.Symbol] = ma
	}
	ma.Add(tr.Price)
	fmt.Fprintf(t.out, "%s %-6s %10.2f  avg(%d) %10.2f  vol %g\n",
		tr.Timestamp.Format("15:04:05"), tr.Symbol, tr.Price, ma.Count(), ma.Avg(), tr.Volume)
}

// onSnapshot prints the delayed quotes of symbols without live trades and
// the connection status when it changed.
func (t *ticker) onSnapshot(prices map[string]marketdata.Price, status stream.Status) {
	t.printStatus(status)

	t.mu.Lock()
	defer t.mu.Unlock()
	symbols := make([]string, 0, len(prices))
	for s, p := range prices {
		if !p.Live {
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		p := prices[s]
		fmt.Fprintf(t.out, "delayed  %-6s %10.2f  %+.2f (%+.2f%%)\n", s, p.Price, p.Change, p.ChangePercent)
	}
}

func (t *ticker) printStatus(status stream.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if status == t.lastStatus {
		return
	}
	t.lastStatus = status
	switch {
	case status.Connected:
		fmt.Fprintln(t.out, "-- live")
	case status.Error != "":
		fmt.Fprintf(t.out, "-- %s, showing delayed quotes: %s\n", status.State, status.Error)
	default:
		fmt.Fprintf(t.out, "-- %s, showing delayed quotes\n", status.State)
	}
}
