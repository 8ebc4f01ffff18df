// Command foliowatch streams live prices for a stock portfolio, evaluates
// price alerts and relays the stream to browsers.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
)

var configFile = flag.String("config", "", "Path to the config file. Defaults to foliowatch.yaml in the working or user config directory")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&watchCmd{}, "")
	commander.Register(&alertsCmd{}, "")
	commander.Register(&summaryCmd{}, "")
	commander.Register(&serveCmd{}, "")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
