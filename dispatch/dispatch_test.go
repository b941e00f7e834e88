package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/lit-response/triageboard/event"
	"github.com/lit-response/triageboard/registry"
	"github.com/lit-response/triageboard/stream"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []event.Outbound
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg event.Outbound) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func setup(t *testing.T, sendErr error) (*Workflow, *registry.Registry, *fakeSender) {
	t.Helper()
	reg := registry.New()
	reg.Upsert(event.Event{CallID: "c1", Severity: event.SeverityHigh})
	sender := &fakeSender{err: sendErr}
	log, _ := test.NewNullLogger()
	return New(sender, reg, logrus.NewEntry(log)), reg, sender
}

func approvedInRegistry(t *testing.T, reg *registry.Registry, id string) bool {
	t.Helper()
	e, ok := reg.Get(id)
	require.True(t, ok)
	return e.DispatchApproved
}

// approve walks one call through the same steps the session loop takes.
func approve(t *testing.T, w *Workflow, id string) error {
	t.Helper()
	msg, ok := w.Begin(id)
	require.True(t, ok)
	w.Complete(id)
	err := w.Transmit(context.Background(), msg)
	w.Acknowledge(id, err)
	return err
}

func TestApprovalHappyPath(t *testing.T) {
	w, reg, sender := setup(t, nil)

	require.NoError(t, approve(t, w, "c1"))

	assert.Equal(t, Approved, w.State("c1"))
	assert.True(t, w.Record("c1").Synced)
	assert.True(t, approvedInRegistry(t, reg, "c1"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, event.TypeDispatchApproved, sender.sent[0].Type)
	assert.Equal(t, "c1", sender.sent[0].CallID)
	assert.False(t, sender.sent[0].Timestamp.IsZero())
}

func TestApprovalNotConnectedStillApproves(t *testing.T) {
	w, reg, _ := setup(t, stream.ErrNotConnected)

	err := approve(t, w, "c1")
	require.Error(t, err)
	assert.ErrorIs(t, err, stream.ErrNotConnected)
	assert.Contains(t, err.Error(), "c1")

	assert.Equal(t, Approved, w.State("c1"))
	rec := w.Record("c1")
	assert.False(t, rec.Synced)
	assert.Contains(t, rec.LastError, "not connected")
	assert.True(t, approvedInRegistry(t, reg, "c1"))
}

func TestBeginGuardsDuplicates(t *testing.T) {
	w, _, sender := setup(t, nil)

	_, ok := w.Begin("c1")
	require.True(t, ok)
	_, ok = w.Begin("c1")
	assert.False(t, ok, "already dispatching")
	assert.Equal(t, Dispatching, w.State("c1"))

	w.Complete("c1")
	_, ok = w.Begin("c1")
	assert.False(t, ok, "already approved")
	assert.Empty(t, sender.sent, "Begin never sends")
}

func TestCompleteRequiresDispatching(t *testing.T) {
	w, reg, _ := setup(t, nil)
	w.Complete("c1")
	assert.Equal(t, Pending, w.State("c1"))
	assert.False(t, approvedInRegistry(t, reg, "c1"))
}

func TestStateNeverLeavesApproved(t *testing.T) {
	w, _, _ := setup(t, nil)
	require.NoError(t, approve(t, w, "c1"))

	w.Acknowledge("c1", errors.New("late failure"))
	w.Complete("c1")
	_, ok := w.Begin("c1")

	assert.False(t, ok)
	assert.Equal(t, Approved, w.State("c1"))
}

func TestReconcileReappliesStickyApproval(t *testing.T) {
	w, reg, _ := setup(t, nil)
	require.NoError(t, approve(t, w, "c1"))

	snapshot := event.Event{CallID: "c1", Severity: event.SeverityHigh}
	reg.Upsert(snapshot)
	require.False(t, approvedInRegistry(t, reg, "c1"))

	assert.True(t, w.Reconcile(snapshot))
	assert.True(t, approvedInRegistry(t, reg, "c1"))
}

func TestReconcileConfirmsServerApproval(t *testing.T) {
	w, reg, _ := setup(t, nil)
	snapshot := event.Event{CallID: "c1", DispatchApproved: true}
	reg.Upsert(snapshot)

	assert.False(t, w.Reconcile(snapshot))
	assert.Equal(t, Approved, w.State("c1"))
	assert.True(t, w.Record("c1").Synced)
}

func TestConfirmUnknownCallLeavesNoRecord(t *testing.T) {
	w, reg, _ := setup(t, nil)
	assert.False(t, w.Confirm("ghost"))
	assert.Equal(t, Pending, w.State("ghost"))
	assert.Empty(t, w.Records())
	assert.False(t, reg.Has("ghost"))

	// A later snapshot that says not approved is taken as sent.
	snapshot := event.Event{CallID: "ghost"}
	reg.Upsert(snapshot)
	assert.False(t, w.Reconcile(snapshot))
	assert.False(t, approvedInRegistry(t, reg, "ghost"))
}

func TestConfirmKnownCall(t *testing.T) {
	w, reg, _ := setup(t, nil)
	assert.True(t, w.Confirm("c1"))
	assert.Equal(t, Approved, w.State("c1"))
	assert.True(t, w.Record("c1").Synced)
	assert.True(t, approvedInRegistry(t, reg, "c1"))
}

func TestPendingByDefault(t *testing.T) {
	w, _, _ := setup(t, nil)
	assert.Equal(t, Pending, w.State("c1"))
	assert.Equal(t, Record{}, w.Record("c1"))
	assert.Empty(t, w.Records())
}
