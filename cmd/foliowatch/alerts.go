package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/subcommands"

	"github.com/foliowatch/foliowatch/alerts"
)

type alertsCmd struct{}

func (*alertsCmd) Name() string     { return "alerts" }
func (*alertsCmd) Synopsis() string { return "manage and monitor price alerts" }
func (*alertsCmd) Usage() string {
	return `foliowatch alerts <action> [args]

  list                              list every alert
  add SYMBOL above|below PRICE      create an alert
  rm ID                             delete an alert
  reset ID                          re-arm a triggered alert
  clear                             delete every triggered alert
  monitor                           evaluate alerts against live prices until interrupted
`
}

func (*alertsCmd) SetFlags(*flag.FlagSet) {}

var errUsage = errors.New("usage")

func (c *alertsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	storage, closeStorage, err := a.alertStorage()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening alert store: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeStorage()
	m := a.alertManager(ctx, storage)

	if f.Arg(0) == "monitor" {
		return runMonitor(ctx, a, m)
	}
	err = runAlertAction(ctx, os.Stdout, m, f.Args())
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "%v\n\n%s", err, c.Usage())
		return subcommands.ExitUsageError
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func runAlertAction(ctx context.Context, out io.Writer, m *alerts.Manager, args []string) error {
	switch action, rest := args[0], args[1:]; action {
	case "list":
		printAlerts(out, m.Alerts())
	case "add":
		if len(rest) != 3 {
			return fmt.Errorf("%w: add SYMBOL above|below PRICE", errUsage)
		}
		cond, err := alerts.ParseCondition(strings.ToLower(rest[1]))
		if err != nil {
			return err
		}
		price, err := strconv.ParseFloat(rest[2], 64)
		if err != nil {
			return fmt.Errorf("%w: price %q", errUsage, rest[2])
		}
		alert, err := m.Add(ctx, rest[0], price, cond)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "added %s\n", alert.ID)
	case "rm", "reset":
		if len(rest) != 1 {
			return fmt.Errorf("%w: %s ID", errUsage, action)
		}
		id, err := resolveID(m.Alerts(), rest[0])
		if err != nil {
			return err
		}
		if action == "rm" {
			return m.Remove(ctx, id)
		}
		return m.Reset(ctx, id)
	case "clear":
		fmt.Fprintf(out, "removed %d triggered alerts\n", m.ClearTriggered(ctx))
	default:
		return fmt.Errorf("%w: unknown action %q", errUsage, action)
	}
	return nil
}

// resolveID accepts any unambiguous prefix of an alert id.
func resolveID(list []alerts.PriceAlert, prefix string) (string, error) {
	var found []string
	for _, a := range list {
		if a.ID == prefix {
			return a.ID, nil
		}
		if strings.HasPrefix(a.ID, prefix) {
			found = append(found, a.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: %s", alerts.ErrAlertNotFound, prefix)
	case 1:
		return found[0], nil
	}
	return "", fmt.Errorf("id prefix %q is ambiguous", prefix)
}

func printAlerts(out io.Writer, list []alerts.PriceAlert) {
	if len(list) == 0 {
		fmt.Fprintln(out, "no alerts")
		return
	}
	for _, a := range list {
		state := "active"
		if a.Triggered {
			state = "triggered"
			if a.TriggeredAt != nil {
				state += " " + a.TriggeredAt.Local().Format("2006-01-02 15:04")
			}
		}
		fmt.Fprintf(out, "%.8s  %-6s %-5s %10.2f  %s\n", a.ID, a.Symbol, a.Condition, a.TargetPrice, state)
	}
}

func runMonitor(ctx context.Context, a *app, m *alerts.Manager) subcommands.ExitStatus {
	client := a.streamClient()
	defer client.Close()

	mon := alerts.NewMonitor(m, client)
	mon.OnTrigger = func(alert alerts.PriceAlert) {
		fmt.Printf("triggered: %s %s %.2f\n", alert.Symbol, alert.Condition, alert.TargetPrice)
	}
	a.logger.Infof("alerts: monitoring %d symbols", len(m.ActiveSymbols()))
	if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
