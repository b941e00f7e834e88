package clients

import (
	"context"
	"net/http"

	"github.com/lit-response/triageboard/event"
)

// --- Health (/health) ---
type HealthReport struct {
	Status          string            `json:"status"`
	Services        map[string]string `json:"services"`
	Environment     map[string]string `json:"environment"`
	MissingPackages []string          `json:"missing_packages"`
}

func (r *HealthReport) OK() bool { return r.Status == "ok" }

func (h *HTTP) Health(ctx context.Context) (*HealthReport, error) {
	var out HealthReport
	if err := h.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Test event (/twilio/response) ---

// PublishTest posts e to the backend, which rebroadcasts it on the event
// stream. The backend's reply is returned undecoded beyond a JSON object.
func (h *HTTP) PublishTest(ctx context.Context, e event.Event) (map[string]any, error) {
	out := map[string]any{}
	if err := h.do(ctx, http.MethodPost, "/twilio/response", e, &out); err != nil {
		return nil, err
	}
	return out, nil
}
