package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lit-response/triageboard/event"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrNotConnected     = errors.New("not connected")
)

// Decode checks the envelope: a frame must be a JSON object. Everything
// inside it is optional and left to Normalize.
func Decode(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: null frame", ErrMalformedMessage)
	}
	return raw, nil
}

// Kind returns the envelope discriminator, "type" or the backend's "event".
func Kind(raw map[string]any) string {
	return strings.ToLower(firstString(raw, "type", "event"))
}

// Normalize converts a loosely typed payload into a fully defaulted event.
// It never fails: missing or unusable fields fall back to defaults.
func Normalize(raw map[string]any, now time.Time, fallback event.Coordinates) event.Event {
	ev := event.Event{
		CallID:           callID(raw),
		Timestamp:        timestamp(raw, now),
		Transcript:       firstString(raw, "transcript", "summary"),
		Location:         orDefault(strings.TrimSpace(firstString(raw, "location", "address")), event.DefaultLocation),
		Coordinates:      coordinates(raw, fallback),
		Category:         orDefault(strings.TrimSpace(firstString(raw, "emergency_type", "category")), event.DefaultCategory),
		Severity:         event.ParseSeverity(firstString(raw, "priority", "severity")),
		Action:           orDefault(action(raw), event.DefaultAction),
		Emotion:          emotion(raw),
		DispatchApproved: approved(raw),
	}
	return ev
}

var idKeys = []string{"call_sid", "callId", "call_id", "CallSid"}

// CallID extracts the identifier without synthesizing one.
func CallID(raw map[string]any) (string, bool) {
	for _, k := range idKeys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		switch x := v.(type) {
		case string:
			if s := strings.TrimSpace(x); s != "" {
				return s, true
			}
		case json.Number:
			return x.String(), true
		case int:
			return strconv.Itoa(x), true
		case int64:
			return strconv.FormatInt(x, 10), true
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), true
		}
	}
	return "", false
}

func callID(raw map[string]any) string {
	if id, ok := CallID(raw); ok {
		return id
	}
	return "call-" + uuid.NewString()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func timestamp(raw map[string]any, now time.Time) time.Time {
	switch v := raw["timestamp"].(type) {
	case time.Time:
		if encodable(v) {
			return v
		}
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if t, ok := epoch(f); ok {
				return t
			}
		}
	default:
		if f, ok := number(v); ok {
			if t, ok := epoch(f); ok {
				return t
			}
		}
	}
	return now
}

// Seconds bounds of years 0001 through 9999, the range RFC 3339 can encode.
const (
	minEpoch = -62135596800
	maxEpoch = 253402300799
)

// epoch treats values past 1e12 as milliseconds. Non-positive values and
// instants outside years 1-9999 are rejected.
func epoch(f float64) (time.Time, bool) {
	if f <= 0 {
		return time.Time{}, false
	}
	if f > 1e12 {
		f /= 1000
	}
	if f < minEpoch || f > maxEpoch {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

func encodable(t time.Time) bool {
	y := t.Year()
	return y >= 1 && y <= 9999
}

func number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func coordinates(raw map[string]any, fallback event.Coordinates) event.Coordinates {
	c, ok := parseCoordinates(raw["coordinates"])
	if !ok {
		c, ok = parsePair(raw)
	}
	if !ok || !c.Valid() {
		return fallback
	}
	return c
}

func parseCoordinates(v any) (event.Coordinates, bool) {
	switch x := v.(type) {
	case []any:
		if len(x) != 2 {
			return event.Coordinates{}, false
		}
		lat, ok1 := number(x[0])
		lng, ok2 := number(x[1])
		return event.Coordinates{Latitude: lat, Longitude: lng}, ok1 && ok2
	case map[string]any:
		return parsePair(x)
	case string:
		parts := strings.Split(x, ",")
		if len(parts) != 2 {
			return event.Coordinates{}, false
		}
		lat, ok1 := number(parts[0])
		lng, ok2 := number(parts[1])
		return event.Coordinates{Latitude: lat, Longitude: lng}, ok1 && ok2
	}
	return event.Coordinates{}, false
}

func parsePair(m map[string]any) (event.Coordinates, bool) {
	lat, ok1 := firstNumber(m, "latitude", "lat")
	lng, ok2 := firstNumber(m, "longitude", "lng", "lon")
	return event.Coordinates{Latitude: lat, Longitude: lng}, ok1 && ok2
}

func firstNumber(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := number(m[k]); ok {
			return f, true
		}
	}
	return 0, false
}

func action(raw map[string]any) string {
	for _, k := range []string{"recommended_actions", "action", "actions"} {
		switch v := raw[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case []any:
			if s := joinSentences(v); s != "" {
				return s
			}
		case []string:
			items := make([]any, len(v))
			for i := range v {
				items[i] = v[i]
			}
			if s := joinSentences(items); s != "" {
				return s
			}
		}
	}
	return ""
}

func joinSentences(items []any) string {
	var parts []string
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.ContainsAny(s[len(s)-1:], ".!?") {
			s += "."
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func emotion(raw map[string]any) *event.Emotion {
	candidates := []any{raw["emotion"], raw["emotions"]}
	if a, ok := raw["analysis"].(map[string]any); ok {
		candidates = append(candidates, a["emotions"])
	}
	for _, c := range candidates {
		if e := parseEmotion(c, 0); e != nil {
			return e
		}
	}
	return nil
}

// parseEmotion accepts a label->score map, a [{label, score}] list, and the
// backend's {"emotions": {...}} wrapper.
func parseEmotion(v any, depth int) *event.Emotion {
	if depth > 2 {
		return nil
	}
	var e event.Emotion
	found := false
	switch x := v.(type) {
	case map[string]any:
		if inner, ok := x["emotions"]; ok {
			if nested := parseEmotion(inner, depth+1); nested != nil {
				return nested
			}
		}
		for label, score := range x {
			if f, ok := number(score); ok && e.Set(strings.ToLower(label), clamp(f)) {
				found = true
			}
		}
	case []any:
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			label, _ := m["label"].(string)
			if f, ok := number(m["score"]); ok && e.Set(strings.ToLower(label), clamp(f)) {
				found = true
			}
		}
	}
	if !found {
		return nil
	}
	return &e
}

func clamp(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

func approved(raw map[string]any) bool {
	for _, k := range []string{"dispatch_approved", "dispatchApproved"} {
		switch v := raw[k].(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b
			}
		default:
			if f, ok := number(v); ok {
				return f != 0
			}
		}
	}
	return false
}
