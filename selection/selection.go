// Package selection decides which calls are visible for a section and which
// one call is focused for detail display.
package selection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lit-response/triageboard/event"
)

var ErrUnknownSection = errors.New("unknown section")

type Section string

const (
	All      Section = "all"
	Critical Section = "critical"
	Resolved Section = "resolved"
	Pending  Section = "pending"

	// Pass-through sections render every call.
	Map        Section = "map"
	Responders Section = "responders"
	Analytics  Section = "analytics"
)

// Sections is the navigation order.
var Sections = []Section{All, Critical, Resolved, Pending, Map, Responders, Analytics}

func ParseSection(name string) (Section, error) {
	s := Section(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Sections {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSection, name)
}

// Matches is the section's predicate over a call.
func (s Section) Matches(e event.Event) bool {
	switch s {
	case Critical:
		return e.Severity.AtLeastHigh()
	case Resolved:
		return e.DispatchApproved
	case Pending:
		return !e.DispatchApproved
	default:
		return true
	}
}

// Source is the registry read surface the policy needs.
type Source interface {
	Filter(keep func(event.Event) bool) []event.Event
	Get(callID string) (event.Event, bool)
	Has(callID string) bool
}

type Policy struct {
	src     Source
	section Section
	active  string
	visible []event.Event
}

func New(src Source) *Policy {
	p := &Policy{src: src, section: All}
	p.Refresh()
	return p
}

// SelectSection switches the filter. An active call hidden by the new filter
// is replaced by the first visible call, or cleared when nothing is visible.
func (p *Policy) SelectSection(s Section) {
	p.section = s
	p.Refresh()
	if p.active != "" && p.isVisible(p.active) {
		return
	}
	p.active = ""
	if len(p.visible) > 0 {
		p.active = p.visible[0].CallID
	}
}

// SelectEntry focuses callID. Unknown ids change nothing.
func (p *Policy) SelectEntry(callID string) bool {
	if !p.src.Has(callID) {
		return false
	}
	p.active = callID
	return true
}

// Arrived focuses a newly inserted call whatever the current section.
func (p *Policy) Arrived(callID string) {
	p.active = callID
	p.Refresh()
}

// Refresh recomputes the visible list. The active call is left alone.
func (p *Policy) Refresh() {
	p.visible = p.src.Filter(p.section.Matches)
}

func (p *Policy) Section() Section { return p.section }

func (p *Policy) Visible() []event.Event {
	out := make([]event.Event, len(p.visible))
	copy(out, p.visible)
	return out
}

func (p *Policy) ActiveID() string { return p.active }

func (p *Policy) Active() (event.Event, bool) {
	if p.active == "" {
		return event.Event{}, false
	}
	return p.src.Get(p.active)
}

func (p *Policy) isVisible(callID string) bool {
	for _, e := range p.visible {
		if e.CallID == callID {
			return true
		}
	}
	return false
}
