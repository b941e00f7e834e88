// Package view derives what the operator sees from the registry, the
// selection policy, dispatch records and connection health. Compose is pure:
// the same Input always renders the same View.
package view

import (
	"strings"

	"github.com/lit-response/triageboard/dispatch"
	"github.com/lit-response/triageboard/event"
	"github.com/lit-response/triageboard/selection"
)

type Input struct {
	Section   selection.Section
	Visible   []event.Event
	Active    *event.Event
	All       []event.Event
	Dispatch  map[string]dispatch.Record
	Connected bool
	LastError string
	Notice    string
}

type Entry struct {
	Event     event.Event    `json:"event"`
	Dispatch  dispatch.State `json:"dispatch"`
	Synced    bool           `json:"synced"`
	SendError string         `json:"sendError,omitempty"`
}

type Line struct {
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

type View struct {
	Section    selection.Section `json:"section"`
	Entries    []Entry           `json:"entries"`
	Active     *Entry            `json:"active,omitempty"`
	Transcript []Line            `json:"transcript,omitempty"`
	Connected  bool              `json:"connected"`
	LastError  string            `json:"lastError,omitempty"`
	Notice     string            `json:"notice,omitempty"`
	Summary    Summary           `json:"summary"`
}

func Compose(in Input) View {
	v := View{
		Section:   in.Section,
		Entries:   make([]Entry, 0, len(in.Visible)),
		Connected: in.Connected,
		LastError: in.LastError,
		Notice:    in.Notice,
		Summary:   Summarize(in.All),
	}
	for _, e := range in.Visible {
		v.Entries = append(v.Entries, entry(e, in.Dispatch))
	}
	if in.Active != nil {
		a := entry(*in.Active, in.Dispatch)
		v.Active = &a
		v.Transcript = SplitTranscript(in.Active.Transcript)
	}
	return v
}

func entry(e event.Event, records map[string]dispatch.Record) Entry {
	r := records[e.CallID]
	state := r.State
	// Approvals can arrive from the source before any local request.
	if e.DispatchApproved {
		state = dispatch.Approved
	}
	return Entry{Event: e, Dispatch: state, Synced: r.Synced, SendError: r.LastError}
}

var speakers = []string{"caller", "ai", "operator", "dispatcher"}

// SplitTranscript breaks "Caller: ...\nAI: ..." text into lines. Lines
// without a known speaker prefix keep an empty Speaker.
func SplitTranscript(text string) []Line {
	var out []Line
	for _, raw := range strings.Split(text, "\n") {
		l := strings.TrimSpace(raw)
		if l == "" {
			continue
		}
		line := Line{Text: l}
		if i := strings.Index(l, ":"); i > 0 {
			head := strings.TrimSpace(l[:i])
			for _, s := range speakers {
				if strings.EqualFold(head, s) {
					line = Line{Speaker: head, Text: strings.TrimSpace(l[i+1:])}
					break
				}
			}
		}
		out = append(out, line)
	}
	return out
}
