// Command jobwatch follows a processing job in the terminal until it finishes.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"interview-insights-go/internal/config"
	"interview-insights-go/internal/logger"
	"interview-insights-go/internal/statuspoll"
	"interview-insights-go/internal/types"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	server := flag.String("server", envOr("JOBWATCH_SERVER", "http://localhost:8080"), "service base URL")
	jobID := flag.String("job", "", "job id to follow (prompted when empty)")
	flag.Parse()

	// the TUI owns the terminal; keep poller logs out of it
	log := logger.NewWithOptions(logger.Options{Environment: "cli", Level: cfg.LogLevel, Output: io.Discard})
	poller := statuspoll.New(
		statuspoll.NewHTTPSource(*server, 10*time.Second),
		cfg.Poller.Interval,
		cfg.Poller.StallTimeout,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newModel(strings.TrimSpace(*jobID), func(id string, events chan<- tea.Msg) {
		job, err := poller.Watch(ctx, id, func(j types.Job) { events <- jobMsg(j) })
		events <- finishedMsg{job: job, err: err}
	})
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "jobwatch:", err)
		os.Exit(1)
	}
	if fm, ok := final.(model); ok && fm.failed() {
		os.Exit(2)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
