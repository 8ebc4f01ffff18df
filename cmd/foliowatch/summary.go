package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/foliowatch/foliowatch/internal/ctxtime"
	"github.com/foliowatch/foliowatch/marketdata"
	"github.com/foliowatch/foliowatch/portfolio"
)

type summaryCmd struct {
	file string
	wait time.Duration
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "display the value of the holdings" }
func (*summaryCmd) Usage() string {
	return `foliowatch summary [-f <holdings.yaml>] [-wait <duration>]

  Values every holding at the latest price. Live trades are collected for
  the wait duration; the other symbols use delayed quotes.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "f", "", "Holdings file. Defaults to portfolio.file")
	f.DurationVar(&c.wait, "wait", 3*time.Second, "How long to collect live trades, 0 to only use delayed quotes")
}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	file := c.file
	if file == "" {
		file = a.cfg.Portfolio.File
	}
	book, err := portfolio.LoadBook(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading holdings: %v\n", err)
		return subcommands.ExitFailure
	}

	board := &marketdata.Board{Quotes: a.quoteClient()}
	if c.wait > 0 {
		client := a.streamClient()
		defer client.Close()
		binding := client.Bind(book.Symbols()...)
		defer binding.Release()
		board.Live = client

		if err := ctxtime.Sleep(ctx, c.wait); err != nil {
			return subcommands.ExitFailure
		}
	}

	prices, err := board.Prices(ctx, book.Symbols())
	if err != nil {
		a.logger.Warnf("delayed quotes: %v", err)
	}
	printMarkdown(portfolio.Summarize(book, prices).Markdown())
	return subcommands.ExitSuccess
}
