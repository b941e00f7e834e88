// Package event holds the canonical record every other package reads and writes.
package event

import (
	"strings"
	"time"
)

const (
	DefaultLocation = "Unknown location"
	DefaultCategory = "Unknown"
	DefaultAction   = "Awaiting instructions"

	TypeDispatchApproved = "dispatch_approved"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists the enum in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// ParseSeverity is case and whitespace insensitive. Anything outside the
// enum maps to medium.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow
	case SeverityHigh:
		return SeverityHigh
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

func (s Severity) AtLeastHigh() bool { return s == SeverityHigh || s == SeverityCritical }

type Coordinates struct {
	Latitude  float64 `json:"latitude" yaml:"latitude" mapstructure:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude" mapstructure:"longitude"`
}

func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Emotion scores are in [0,1]. A nil *Emotion means the call has not been
// analyzed yet, which is not the same as all zeros.
type Emotion struct {
	Joy      float64 `json:"joy"`
	Fear     float64 `json:"fear"`
	Sadness  float64 `json:"sadness"`
	Anger    float64 `json:"anger"`
	Surprise float64 `json:"surprise"`
}

// EmotionLabels is the fixed label order used for ties and rendering.
var EmotionLabels = []string{"joy", "fear", "sadness", "anger", "surprise"}

func (e Emotion) Score(label string) float64 {
	switch label {
	case "joy":
		return e.Joy
	case "fear":
		return e.Fear
	case "sadness":
		return e.Sadness
	case "anger":
		return e.Anger
	case "surprise":
		return e.Surprise
	}
	return 0
}

// Set ignores unknown labels and reports whether the label was one of ours.
func (e *Emotion) Set(label string, v float64) bool {
	switch label {
	case "joy":
		e.Joy = v
	case "fear":
		e.Fear = v
	case "sadness":
		e.Sadness = v
	case "anger":
		e.Anger = v
	case "surprise":
		e.Surprise = v
	default:
		return false
	}
	return true
}

// Dominant returns the strongest label; first in EmotionLabels wins a tie.
func (e Emotion) Dominant() (string, float64) {
	best, score := "", -1.0
	for _, l := range EmotionLabels {
		if v := e.Score(l); v > score {
			best, score = l, v
		}
	}
	return best, score
}

// Event is the normalized, fully defaulted state of one emergency call.
type Event struct {
	CallID           string      `json:"callId"`
	Timestamp        time.Time   `json:"timestamp"`
	Transcript       string      `json:"transcript"`
	Location         string      `json:"location"`
	Coordinates      Coordinates `json:"coordinates"`
	Category         string      `json:"category"`
	Severity         Severity    `json:"severity"`
	Action           string      `json:"action"`
	Emotion          *Emotion    `json:"emotion,omitempty"`
	DispatchApproved bool        `json:"dispatchApproved"`
}

// Clone copies the event including its emotion record.
func (e Event) Clone() Event {
	if e.Emotion != nil {
		em := *e.Emotion
		e.Emotion = &em
	}
	return e
}

// Outbound is the operator action sent back to the event source.
type Outbound struct {
	Type      string    `json:"type"`
	CallID    string    `json:"callId"`
	Timestamp time.Time `json:"timestamp"`
}

func NewDispatchApproved(callID string, at time.Time) Outbound {
	return Outbound{Type: TypeDispatchApproved, CallID: callID, Timestamp: at.UTC()}
}
