// Package dispatch tracks operator approvals per call.
//
// A call moves Pending -> Dispatching -> Approved and never leaves Approved.
// The local transition to Approved is optimistic: it does not wait for the
// event source to acknowledge the outbound message. Transmission outcome is
// recorded separately as Synced / LastError and never rolls the state back.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lit-response/triageboard/event"
	"github.com/lit-response/triageboard/registry"
	"github.com/sirupsen/logrus"
)

type State int

const (
	Pending State = iota
	Dispatching
	Approved
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Dispatching:
		return "dispatching"
	case Approved:
		return "approved"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pending":
		*s = Pending
	case "dispatching":
		*s = Dispatching
	case "approved":
		*s = Approved
	default:
		return fmt.Errorf("unknown dispatch state %q", b)
	}
	return nil
}

type Sender interface {
	Send(ctx context.Context, msg event.Outbound) error
}

type Approver interface {
	ApproveDispatch(callID string) (bool, error)
}

type Record struct {
	State       State
	Synced      bool // the event source has the approval
	LastError   string
	RequestedAt time.Time
}

type Workflow struct {
	sender   Sender
	approver Approver
	log      *logrus.Entry
	now      func() time.Time
	records  map[string]*Record
}

func New(sender Sender, approver Approver, log *logrus.Entry) *Workflow {
	return &Workflow{
		sender:   sender,
		approver: approver,
		log:      log.WithField("component", "dispatch"),
		now:      time.Now,
		records:  map[string]*Record{},
	}
}

func (w *Workflow) State(callID string) State {
	if r, ok := w.records[callID]; ok {
		return r.State
	}
	return Pending
}

func (w *Workflow) Record(callID string) Record {
	if r, ok := w.records[callID]; ok {
		return *r
	}
	return Record{}
}

// Records copies every tracked record. Calls never requested are absent.
func (w *Workflow) Records() map[string]Record {
	out := make(map[string]Record, len(w.records))
	for id, r := range w.records {
		out[id] = *r
	}
	return out
}

// Begin moves callID to Dispatching and returns the message to transmit. It
// reports false when the call is already Dispatching or Approved.
func (w *Workflow) Begin(callID string) (event.Outbound, bool) {
	r := w.record(callID)
	if r.State != Pending {
		return event.Outbound{}, false
	}
	r.State = Dispatching
	r.RequestedAt = w.now()
	w.log.WithField("call_id", callID).Info("dispatch requested")
	return event.NewDispatchApproved(callID, r.RequestedAt), true
}

// Complete is the optimistic local transition.
func (w *Workflow) Complete(callID string) {
	r, ok := w.records[callID]
	if !ok || r.State != Dispatching {
		return
	}
	r.State = Approved
	w.apply(callID)
}

// Acknowledge records the transmission result for callID.
func (w *Workflow) Acknowledge(callID string, err error) {
	r, ok := w.records[callID]
	if !ok {
		return
	}
	if err != nil {
		r.LastError = err.Error()
		w.log.WithError(err).WithField("call_id", callID).Warn("approval not transmitted")
		return
	}
	r.Synced = true
	r.LastError = ""
}

// Confirm handles the event source's own notion of approval. Calls the
// registry does not hold are ignored and leave no record behind, so a later
// snapshot for them is taken as sent.
func (w *Workflow) Confirm(callID string) bool {
	if _, err := w.approver.ApproveDispatch(callID); errors.Is(err, registry.ErrUnknownCallID) {
		w.log.WithField("call_id", callID).Debug("confirmation for unknown call ignored")
		return false
	}
	r := w.record(callID)
	r.State = Approved
	r.Synced = true
	r.LastError = ""
	return true
}

// Reconcile runs after a snapshot for e.CallID replaced the registry entry.
// A snapshot that already says approved confirms the call; one that lost a
// local approval gets it re-applied. It reports whether the registry changed.
func (w *Workflow) Reconcile(e event.Event) bool {
	if e.DispatchApproved {
		if w.State(e.CallID) != Approved || !w.Record(e.CallID).Synced {
			w.Confirm(e.CallID)
		}
		return false
	}
	if w.State(e.CallID) == Approved {
		return w.apply(e.CallID)
	}
	return false
}

// Transmit sends msg and wraps the failure. It touches no workflow state, so
// it may run off the loop; the caller reports the result with Acknowledge.
func (w *Workflow) Transmit(ctx context.Context, msg event.Outbound) error {
	if err := w.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("transmit approval for %s: %w", msg.CallID, err)
	}
	return nil
}

func (w *Workflow) record(callID string) *Record {
	r, ok := w.records[callID]
	if !ok {
		r = &Record{}
		w.records[callID] = r
	}
	return r
}

func (w *Workflow) apply(callID string) bool {
	changed, err := w.approver.ApproveDispatch(callID)
	if errors.Is(err, registry.ErrUnknownCallID) {
		w.log.WithField("call_id", callID).Debug("approval for unknown call ignored")
		return false
	}
	return changed
}
