package view

import (
	"encoding/json"
	"testing"

	"github.com/lit-response/triageboard/dispatch"
	"github.com/lit-response/triageboard/event"
	"github.com/lit-response/triageboard/selection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calls() []event.Event {
	return []event.Event{
		{CallID: "a", Severity: event.SeverityCritical, Category: "Fire", Emotion: &event.Emotion{Fear: 0.8}},
		{CallID: "b", Severity: event.SeverityLow, Category: "Medical", DispatchApproved: true},
		{CallID: "c", Severity: event.SeverityHigh, Category: "Fire", Emotion: &event.Emotion{Fear: 0.2, Anger: 0.6},
			Transcript: "Caller: There's smoke!\nAI: Is there visible fire?\n\nstatic noise"},
	}
}

func TestComposeEntriesAndActive(t *testing.T) {
	all := calls()
	active := all[2]
	v := Compose(Input{
		Section:   selection.Critical,
		Visible:   []event.Event{all[0], all[2]},
		Active:    &active,
		All:       all,
		Dispatch:  map[string]dispatch.Record{"c": {State: dispatch.Dispatching}},
		Connected: true,
	})

	assert.Equal(t, selection.Critical, v.Section)
	require.Len(t, v.Entries, 2)
	assert.Equal(t, "a", v.Entries[0].Event.CallID)
	assert.Equal(t, dispatch.Pending, v.Entries[0].Dispatch)
	assert.Equal(t, dispatch.Dispatching, v.Entries[1].Dispatch)

	require.NotNil(t, v.Active)
	assert.Equal(t, "c", v.Active.Event.CallID)
	assert.Equal(t, []Line{
		{Speaker: "Caller", Text: "There's smoke!"},
		{Speaker: "AI", Text: "Is there visible fire?"},
		{Text: "static noise"},
	}, v.Transcript)
	assert.True(t, v.Connected)
}

func TestComposeWithoutActive(t *testing.T) {
	v := Compose(Input{Section: selection.Resolved, LastError: "dial: refused"})
	assert.Nil(t, v.Active)
	assert.Empty(t, v.Entries)
	assert.Empty(t, v.Transcript)
	assert.False(t, v.Connected)
	assert.Equal(t, "dial: refused", v.LastError)
}

func TestComposeApprovedFromSource(t *testing.T) {
	all := calls()
	v := Compose(Input{Visible: all, All: all})
	assert.Equal(t, dispatch.Approved, v.Entries[1].Dispatch)
}

func TestComposeIsPure(t *testing.T) {
	all := calls()
	in := Input{Section: selection.All, Visible: all, All: all, Active: &all[0]}
	assert.Equal(t, Compose(in), Compose(in))
}

func TestSummarize(t *testing.T) {
	s := Summarize(calls())

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Critical)
	assert.Equal(t, 1, s.Approved)
	assert.Equal(t, 2, s.Pending)
	assert.Equal(t, 1, s.BySeverity[event.SeverityCritical])
	assert.Equal(t, 0, s.BySeverity[event.SeverityMedium])
	assert.Equal(t, []CategoryCount{{"Fire", 2}, {"Medical", 1}}, s.Categories)

	assert.Equal(t, 2, s.Analyzed)
	require.NotNil(t, s.MeanEmotion)
	assert.InDelta(t, 0.5, s.MeanEmotion.Fear, 1e-9)
	assert.InDelta(t, 0.3, s.MeanEmotion.Anger, 1e-9)
	assert.Equal(t, "fear", s.DominantEmotion)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Total)
	assert.Nil(t, s.MeanEmotion)
	assert.Len(t, s.BySeverity, 4)
}

func TestViewJSONUsesStateNames(t *testing.T) {
	all := calls()
	b, err := json.Marshal(Compose(Input{Visible: all[:1], All: all[:1]}))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"dispatch":"pending"`)
}
