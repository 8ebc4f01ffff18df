package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/foliowatch/foliowatch/alerts"
	"github.com/foliowatch/foliowatch/marketdata"
	"github.com/foliowatch/foliowatch/marketdata/stream"
	"github.com/foliowatch/foliowatch/server"
)

type serveCmd struct {
	addr    string
	origins stringList
	alerts  bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "relay live prices to browsers" }
func (*serveCmd) Usage() string {
	return `foliowatch serve [-addr <addr>] [-origin <pattern>]... [-alerts]

  Serves /api/prices, /api/status and the /ws websocket. All sockets share a
  single upstream connection.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "Listen address. Defaults to server.addr")
	f.Var(&c.origins, "origin", "Additional allowed websocket origin pattern, may be repeated")
	f.BoolVar(&c.alerts, "alerts", false, "Also monitor the price alerts")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()
	addr := c.addr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	client := a.streamClient(
		stream.WithConnectCallback(func() { a.logger.Infof("livestream: connected") }),
		stream.WithDisconnectCallback(func() { a.logger.Warnf("livestream: disconnected") }),
	)
	defer client.Close()

	if c.alerts {
		storage, closeStorage, err := a.alertStorage()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening alert store: %v\n", err)
			return subcommands.ExitFailure
		}
		defer closeStorage()
		mon := alerts.NewMonitor(a.alertManager(ctx, storage), client)
		monCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		defer func() {
			cancel()
			<-done
		}()
		go func() {
			defer close(done)
			if err := mon.Run(monCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Errorf("alerts: monitor stopped: %v", err)
			}
		}()
	}

	board := &marketdata.Board{Live: client, Quotes: a.quoteClient()}
	srv := server.New(client, board,
		server.WithLogger(a.logger),
		server.WithOriginPatterns(c.origins...),
	)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type stringList []string

func (l *stringList) String() string {
	return fmt.Sprint([]string(*l))
}

func (l *stringList) Set(s string) error {
	*l = append(*l, s)
	return nil
}
