package alerts

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"runtime"
	"time"
)

// Notifier shows a desktop notification. Granted reports whether
// notifications can be shown at all; Notify is not called when it is false.
type Notifier interface {
	Granted() bool
	Notify(title, body string) error
}

// Chime plays a short sound.
type Chime interface {
	Play() error
}

var errNoNotifier = errors.New("no notification command available")

// DesktopNotifier shows notifications through notify-send on Linux and
// osascript on macOS.
type DesktopNotifier struct {
	// Timeout bounds a single notification command
	Timeout time.Duration

	command  string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

// NewDesktopNotifier returns a notifier for the current platform.
func NewDesktopNotifier() *DesktopNotifier {
	n := &DesktopNotifier{
		Timeout:  5 * time.Second,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
	switch runtime.GOOS {
	case "darwin":
		n.command = "osascript"
	case "linux", "freebsd", "openbsd", "netbsd":
		n.command = "notify-send"
	}
	return n
}

// Granted reports whether the notification command is installed.
func (n *DesktopNotifier) Granted() bool {
	if n.command == "" {
		return false
	}
	_, err := n.lookPath(n.command)
	return err == nil
}

func (n *DesktopNotifier) Notify(title, body string) error {
	if n.command == "" {
		return errNoNotifier
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.Timeout)
	defer cancel()

	if n.command == "osascript" {
		script := "display notification " + appleScriptString(body) + " with title " + appleScriptString(title)
		return n.run(ctx, n.command, "-e", script)
	}
	return n.run(ctx, n.command, "--app-name=foliowatch", title, body)
}

func appleScriptString(s string) string {
	out := make([]rune, 0, len(s)+2)
	out = append(out, '"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(append(out, '"'))
}

// Bell rings the terminal bell by writing BEL to W.
type Bell struct {
	W io.Writer
}

func (b Bell) Play() error {
	if b.W == nil {
		return nil
	}
	_, err := b.W.Write([]byte{'\a'})
	return err
}

type nopNotifier struct{}

func (nopNotifier) Granted() bool               { return false }
func (nopNotifier) Notify(string, string) error { return nil }

type nopChime struct{}

func (nopChime) Play() error { return nil }
