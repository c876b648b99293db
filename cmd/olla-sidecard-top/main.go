// Command olla-sidecard-top is a small top-like dashboard for a running
// sidecar: point it at the control listener's admin address and it
// polls /internal/status to show router and telemetry counters.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/thushan/olla-sidecard/internal/tui"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:4190", "admin (control listener) base URL")
	interval := flag.Duration("interval", time.Second, "poll interval")
	flag.Parse()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "olla-sidecard-top: stdout is not a terminal, refusing to start the dashboard")
		os.Exit(1)
	}

	model := tui.NewModel(*addr, *interval)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "olla-sidecard-top: %v\n", err)
		os.Exit(1)
	}
}
