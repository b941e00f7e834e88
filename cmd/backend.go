package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lit-response/triageboard/clients"
	"github.com/lit-response/triageboard/event"
	"github.com/lit-response/triageboard/mocksource"
)

func backend() *clients.HTTP { return clients.NewHTTP(conf.Backend.URL, conf.Backend.Timeout) }

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print the backend /health report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := backend().Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("health: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return err
			}
			if !rep.OK() {
				return fmt.Errorf("backend status %q", rep.Status)
			}
			return nil
		},
	}
}

// testEvent is the call the backend smoke test has always posted.
func testEvent(now time.Time) event.Event {
	return event.Event{
		CallID:      "test-call-123",
		Timestamp:   now.UTC(),
		Transcript:  "Hello, this is an emergency. There's been a car accident at MG Road and 5th Cross. Two people are injured and need immediate medical attention.",
		Location:    "MG Road and 5th Cross, Bangalore",
		Coordinates: event.Coordinates{Latitude: 12.9716, Longitude: 77.5946},
		Category:    "Traffic Accident",
		Severity:    event.SeverityHigh,
		Action:      "Dispatch ambulance and police to the location immediately. Notify nearest hospital for emergency admission.",
		Emotion:     &event.Emotion{Joy: 0.05, Fear: 0.65, Sadness: 0.15, Anger: 0.10, Surprise: 0.05},
	}
}

func newSendTestCmd() *cobra.Command {
	var callID string
	c := &cobra.Command{
		Use:   "send-test",
		Short: "Post a sample call to /twilio/response so it appears on connected dashboards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := testEvent(time.Now())
			if callID != "" {
				e.CallID = callID
			}
			out, err := backend().PublishTest(cmd.Context(), e)
			if err != nil {
				return fmt.Errorf("send-test: %w", err)
			}
			log.WithField("call_id", e.CallID).Info("test call sent")
			return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
		},
	}
	c.Flags().StringVar(&callID, "call-id", "", "call id to send (default test-call-123)")
	return c
}

func newMockServerCmd() *cobra.Command {
	var scriptPath string
	c := &cobra.Command{
		Use:   "mock-server",
		Short: "Serve a demo event stream and backend endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			calls, err := loadScript(scriptPath)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			srv := mocksource.NewServer(mocksource.Config{
				Listen: conf.Mock.Listen,
				Path:   conf.Mock.Path,
				Script: mocksource.ScriptConfig{
					Spacing:  conf.Mock.Spacing,
					Interval: conf.Mock.Interval,
				},
			}, calls, log.WithField("component", "mock"))
			return srv.ListenAndServe(ctx)
		},
	}
	c.Flags().StringVar(&scriptPath, "script", "", "YAML list of calls to replay instead of the built-in demo")
	return c
}

func loadScript(path string) ([]map[string]any, error) {
	if path == "" {
		return mocksource.DefaultScript()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return mocksource.ParseScript(b)
}
