package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lit-response/triageboard/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok","services":{"asr":"mock","api":"ready"},"environment":{"twilio":"missing"},"missing_packages":["hume"]}`))
	}))
	defer srv.Close()

	rep, err := NewHTTP(srv.URL+"/", time.Second).Health(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Equal(t, "ready", rep.Services["api"])
	assert.Equal(t, []string{"hume"}, rep.MissingPackages)
}

func TestHealthErrorIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "warming up", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, time.Second).Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "warming up")
}

func TestPublishTest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/twilio/response", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"call_sid":"test-call-123","priority":"High"}`))
	}))
	defer srv.Close()

	e := event.Event{
		CallID:      "test-call-123",
		Timestamp:   time.Date(2025, 2, 14, 9, 0, 0, 0, time.UTC),
		Location:    "MG Road and 5th Cross, Bangalore",
		Coordinates: event.Coordinates{Latitude: 12.9716, Longitude: 77.5946},
		Category:    "Traffic Accident",
		Severity:    event.SeverityHigh,
		Action:      "Dispatch ambulance.",
	}
	out, err := NewHTTP(srv.URL, time.Second).PublishTest(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, "test-call-123", out["call_sid"])
	assert.Equal(t, "test-call-123", got["callId"])
	assert.Equal(t, "high", got["severity"])
	assert.Equal(t, "Traffic Accident", got["category"])
}
