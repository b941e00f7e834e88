package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	cases := map[string]Severity{
		"High":      SeverityHigh,
		" critical": SeverityCritical,
		"LOW":       SeverityLow,
		"medium":    SeverityMedium,
		"urgent":    SeverityMedium,
		"":          SeverityMedium,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseSeverity(in), "input %q", in)
	}
}

func TestSeverityAtLeastHigh(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeastHigh())
	assert.True(t, SeverityHigh.AtLeastHigh())
	assert.False(t, SeverityMedium.AtLeastHigh())
	assert.False(t, SeverityLow.AtLeastHigh())
}

func TestEmotionDominant(t *testing.T) {
	label, score := Emotion{Fear: 0.65, Sadness: 0.15}.Dominant()
	assert.Equal(t, "fear", label)
	assert.InDelta(t, 0.65, score, 1e-9)

	label, _ = Emotion{}.Dominant()
	assert.Equal(t, "joy", label, "ties resolve in label order")
}

func TestEmotionSet(t *testing.T) {
	var e Emotion
	assert.True(t, e.Set("anger", 0.3))
	assert.False(t, e.Set("distress", 0.8))
	assert.InDelta(t, 0.3, e.Score("anger"), 1e-9)
}

func TestCloneCopiesEmotion(t *testing.T) {
	orig := Event{CallID: "c1", Emotion: &Emotion{Fear: 0.5}}
	cp := orig.Clone()
	require.NotNil(t, cp.Emotion)
	cp.Emotion.Fear = 0.9
	assert.InDelta(t, 0.5, orig.Emotion.Fear, 1e-9)
}

func TestNewDispatchApproved(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.FixedZone("IST", 19800))
	out := NewDispatchApproved("c1", at)
	assert.Equal(t, TypeDispatchApproved, out.Type)
	assert.Equal(t, "c1", out.CallID)
	assert.Equal(t, time.UTC, out.Timestamp.Location())
}
