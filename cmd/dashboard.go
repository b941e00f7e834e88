package cmd

import (
	"context"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/lit-response/triageboard/session"
	"github.com/lit-response/triageboard/tui"
)

func newDashboardCmd() *cobra.Command {
	var logFile string
	c := &cobra.Command{
		Use:   "dashboard",
		Short: "Open the terminal dashboard on the live call stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The dashboard owns the terminal, so logs go to a file or nowhere.
			var out io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			log.SetOutput(out)

			e, err := newEngine(conf, log)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			m := tui.New(e.session, e.session.Updates(), e.session.Snapshot())
			done := make(chan error, 1)
			go func() { done <- e.run(ctx) }()

			_, runErr := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			cancel()
			if err := <-done; err != nil {
				return err
			}
			if runErr != nil && ctx.Err() == nil {
				return runErr
			}
			return nil
		},
	}
	c.Flags().StringVar(&logFile, "log-file", "triageboard.log", "append logs here while the dashboard runs (empty discards)")
	return c
}

func newWatchCmd() *cobra.Command {
	var indent bool
	c := &cobra.Command{
		Use:   "watch",
		Short: "Print every dashboard view as JSON lines without a UI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEngine(conf, log)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return watch(ctx, e, session.NewJSONLines(cmd.OutOrStdout(), indent))
		},
	}
	c.Flags().BoolVar(&indent, "indent", false, "pretty-print each view")
	return c
}

func watch(ctx context.Context, e *engine, out *session.JSONLines) error {
	updates := e.session.Updates()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-updates:
				if err := out.Write(v); err != nil {
					e.log.WithError(err).Warn("write view")
				}
			}
		}
	}()
	return e.run(ctx)
}
