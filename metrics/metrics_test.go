package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lit-response/triageboard/event"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorsAreNoops(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.FrameReceived()
		c.FrameMalformed()
		c.EventNormalized(event.SeverityHigh)
		c.SetConnected(true)
		c.Reconnect()
		c.SetRegistrySize(map[event.Severity]int{event.SeverityLow: 1})
		c.DispatchRequested()
		c.DispatchSendFailed("not_connected")
	})
	assert.Nil(t, c.Registry())
}

func TestCollectorsRecord(t *testing.T) {
	c := New()
	c.FrameReceived()
	c.FrameReceived()
	c.FrameMalformed()
	c.EventNormalized(event.SeverityCritical)
	c.SetConnected(true)
	c.SetRegistrySize(map[event.Severity]int{event.SeverityHigh: 3})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.framesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.framesMalformed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsNormalized.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connected))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.registrySize.WithLabelValues("high")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.registrySize.WithLabelValues("low")))

	c.SetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.connected))
}

func TestHandlerServesMetrics(t *testing.T) {
	c := New()
	c.DispatchRequested()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "triageboard_dispatch_requests_total 1"))
}
