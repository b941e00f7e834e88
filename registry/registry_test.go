package registry

import (
	"testing"

	"github.com/lit-response/triageboard/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(id string, s event.Severity) event.Event {
	return event.Event{CallID: id, Severity: s, Location: "loc-" + id, Category: "Medical"}
}

func ids(list []event.Event) []string {
	out := make([]string, 0, len(list))
	for _, e := range list {
		out = append(out, e.CallID)
	}
	return out
}

func TestUpsertPreservesFirstSeenOrder(t *testing.T) {
	r := New()
	assert.Equal(t, Inserted, r.Upsert(ev("A", event.SeverityLow)).Kind)
	assert.Equal(t, Inserted, r.Upsert(ev("B", event.SeverityHigh)).Kind)

	replacement := ev("A", event.SeverityCritical)
	replacement.Location = "updated"
	assert.Equal(t, Replaced, r.Upsert(replacement).Kind)

	require.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"A", "B"}, ids(r.List()))

	got, ok := r.Get("A")
	require.True(t, ok)
	assert.Equal(t, "updated", got.Location)
	assert.Equal(t, event.SeverityCritical, got.Severity)
}

func TestUpsertReplacesWholesale(t *testing.T) {
	r := New()
	first := ev("A", event.SeverityHigh)
	first.Emotion = &event.Emotion{Fear: 0.8}
	first.Transcript = "Caller: help"
	r.Upsert(first)

	r.Upsert(event.Event{CallID: "A", Severity: event.SeverityLow})

	got, _ := r.Get("A")
	assert.Nil(t, got.Emotion, "fields are not merged from the earlier snapshot")
	assert.Empty(t, got.Transcript)
}

func TestApproveDispatchIdempotent(t *testing.T) {
	r := New()
	r.Upsert(ev("A", event.SeverityHigh))

	changed, err := r.ApproveDispatch("A")
	require.NoError(t, err)
	assert.True(t, changed)
	once := r.List()

	changed, err = r.ApproveDispatch("A")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, once, r.List())
	assert.Equal(t, 1, r.CountApproved())
}

func TestApproveDispatchUnknown(t *testing.T) {
	r := New()
	_, err := r.ApproveDispatch("missing")
	assert.ErrorIs(t, err, ErrUnknownCallID)
	assert.Zero(t, r.Len())
}

func TestCounts(t *testing.T) {
	r := New()
	r.Upsert(ev("A", event.SeverityLow))
	r.Upsert(ev("B", event.SeverityCritical))
	fire := ev("C", event.SeverityCritical)
	fire.Category = "Fire"
	r.Upsert(fire)

	bySev := r.CountBySeverity()
	assert.Equal(t, 1, bySev[event.SeverityLow])
	assert.Equal(t, 0, bySev[event.SeverityMedium])
	assert.Equal(t, 2, bySev[event.SeverityCritical])
	assert.Len(t, bySev, 4)

	assert.Equal(t, map[string]int{"Medical": 2, "Fire": 1}, r.CountByCategory())
}

func TestFilterKeepsOrder(t *testing.T) {
	r := New()
	for _, e := range []event.Event{
		ev("1", event.SeverityLow), ev("2", event.SeverityCritical),
		ev("3", event.SeverityHigh), ev("4", event.SeverityMedium),
	} {
		r.Upsert(e)
	}
	got := r.Filter(func(e event.Event) bool { return e.Severity.AtLeastHigh() })
	assert.Equal(t, []string{"2", "3"}, ids(got))
}

func TestSubscribeNotifiesUntilCancelled(t *testing.T) {
	r := New()
	var seen []ChangeKind
	cancel := r.Subscribe(func(c Change) { seen = append(seen, c.Kind) })

	r.Upsert(ev("A", event.SeverityLow))
	r.Upsert(ev("A", event.SeverityLow))
	_, _ = r.ApproveDispatch("A")
	_, _ = r.ApproveDispatch("A")
	cancel()
	r.Upsert(ev("B", event.SeverityLow))

	assert.Equal(t, []ChangeKind{Inserted, Replaced, Approved}, seen)
}

func TestReadsReturnCopies(t *testing.T) {
	r := New()
	e := ev("A", event.SeverityLow)
	e.Emotion = &event.Emotion{Joy: 0.1}
	r.Upsert(e)

	e.Emotion.Joy = 0.9
	got, _ := r.Get("A")
	assert.InDelta(t, 0.1, got.Emotion.Joy, 1e-9)

	got.Emotion.Joy = 0.5
	again, _ := r.Get("A")
	assert.InDelta(t, 0.1, again.Emotion.Joy, 1e-9)
}
