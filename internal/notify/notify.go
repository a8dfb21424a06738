// Package notify is the user-facing notification sink. Components fire
// notifications at user-meaningful transitions (login started, login failed,
// logout) and never depend on delivery succeeding.
package notify

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/text"
)

// Style classifies a notification for presentation.
type Style int

const (
	StyleSuccess Style = iota
	StyleFailure
	StyleProgress
)

// Notifier delivers fire-and-forget notifications to the user.
type Notifier interface {
	Notify(style Style, title, message string)
}

// Console writes notifications to a terminal with colored markers.
type Console struct {
	out io.Writer
}

// NewConsole creates a console notifier. A nil writer defaults to stderr so
// notifications never interleave with command output on stdout.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stderr
	}
	return &Console{out: out}
}

// Notify implements Notifier.
func (c *Console) Notify(style Style, title, message string) {
	var marker string
	switch style {
	case StyleSuccess:
		marker = text.FgGreen.Sprint("✓")
	case StyleFailure:
		marker = text.FgRed.Sprint("✗")
	case StyleProgress:
		marker = text.FgCyan.Sprint("…")
	}

	if message == "" {
		fmt.Fprintf(c.out, "%s %s\n", marker, title)
		return
	}
	fmt.Fprintf(c.out, "%s %s: %s\n", marker, title, message)
}

// Noop discards all notifications. Used in tests and non-interactive runs.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(Style, string, string) {}
