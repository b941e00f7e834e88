// Package session runs the single event loop that serializes every registry
// mutation, selection change and dispatch transition for one dashboard.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lit-response/triageboard/dispatch"
	"github.com/lit-response/triageboard/event"
	"github.com/lit-response/triageboard/metrics"
	"github.com/lit-response/triageboard/registry"
	"github.com/lit-response/triageboard/selection"
	"github.com/lit-response/triageboard/stream"
	"github.com/lit-response/triageboard/view"
	"github.com/sirupsen/logrus"
)

// Source is the stream adapter as seen by the loop.
type Source interface {
	Events() <-chan stream.Inbound
	Health() stream.Health
	Send(ctx context.Context, msg event.Outbound) error
}

type Options struct {
	Fallback event.Coordinates
	// ApproveDelay is how long a call shows Dispatching before the local
	// optimistic transition to Approved.
	ApproveDelay   time.Duration
	HealthInterval time.Duration
}

type command func(ctx context.Context)

type Session struct {
	src     Source
	reg     *registry.Registry
	policy  *selection.Policy
	flow    *dispatch.Workflow
	log     *logrus.Entry
	metrics *metrics.Collectors
	opts    Options
	now     func() time.Time

	commands chan command
	done     chan struct{}
	notice   string
	health   stream.Health

	subMu sync.Mutex
	subs  []func(view.View)
	last  view.View
}

func New(src Source, opts Options, log *logrus.Entry, m *metrics.Collectors) *Session {
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 500 * time.Millisecond
	}
	reg := registry.New()
	reg.Subscribe(func(registry.Change) { m.SetRegistrySize(reg.CountBySeverity()) })
	log = log.WithField("component", "session")
	return &Session{
		src:      src,
		reg:      reg,
		policy:   selection.New(reg),
		flow:     dispatch.New(src, reg, log),
		log:      log,
		metrics:  m,
		opts:     opts,
		now:      time.Now,
		commands: make(chan command, 64),
		done:     make(chan struct{}),
	}
}

// Registry exposes the store for read-only consumers.
func (s *Session) Registry() *registry.Registry { return s.reg }

// Run executes queued work one item at a time until ctx ends. Inbound events
// are forwarded onto the same queue as operator commands and send results,
// so everything is applied in arrival order. In-flight sends are abandoned
// on return.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	go s.forward(ctx, s.src.Events())
	tick := time.NewTicker(s.opts.HealthInterval)
	defer tick.Stop()

	s.health = s.src.Health()
	s.publish()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-s.commands:
			cmd(ctx)
		case <-tick.C:
			h := s.src.Health()
			if h.Connected == s.health.Connected && h.LastError == s.health.LastError {
				continue
			}
			s.health = h
		}
		s.publish()
	}
}

func (s *Session) forward(ctx context.Context, events <-chan stream.Inbound) {
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-events:
			if !ok {
				s.enqueue(func(context.Context) {
					s.log.Info("event stream closed, view is read-only")
					s.health = s.src.Health()
				})
				return
			}
			s.enqueue(func(context.Context) { s.ingest(in) })
		}
	}
}

// SelectSection switches the operator's section. Unknown names are rejected
// before anything is queued.
func (s *Session) SelectSection(name string) error {
	sec, err := selection.ParseSection(name)
	if err != nil {
		return err
	}
	s.enqueue(func(context.Context) { s.policy.SelectSection(sec) })
	return nil
}

// SelectEntry focuses a call. Ids not in the registry are ignored.
func (s *Session) SelectEntry(callID string) {
	s.enqueue(func(context.Context) {
		if !s.policy.SelectEntry(callID) {
			s.log.WithField("call_id", callID).Debug("select for unknown call ignored")
		}
	})
}

// RequestApproval starts the dispatch workflow for callID.
func (s *Session) RequestApproval(callID string) {
	s.enqueue(func(ctx context.Context) { s.requestApproval(ctx, callID) })
}

// Seed ingests synthetic raw messages through the normal normalization path.
func (s *Session) Seed(raws []map[string]any) {
	s.enqueue(func(context.Context) {
		for _, raw := range raws {
			s.ingest(stream.Inbound{Event: stream.Normalize(raw, s.now(), s.opts.Fallback), Kind: "seed"})
		}
	})
}

func (s *Session) enqueue(cmd command) {
	select {
	case s.commands <- cmd:
	case <-s.done:
	}
}

func (s *Session) ingest(in stream.Inbound) {
	id := in.Event.CallID
	if in.Confirmation {
		if s.flow.Confirm(id) {
			s.policy.Refresh()
		}
		return
	}
	change := s.reg.Upsert(in.Event)
	s.flow.Reconcile(change.Event)
	if change.Kind == registry.Inserted {
		s.policy.Arrived(id)
		s.log.WithFields(logrus.Fields{"call_id": id, "severity": in.Event.Severity}).Info("new emergency")
		return
	}
	s.policy.Refresh()
}

func (s *Session) requestApproval(ctx context.Context, callID string) {
	if !s.reg.Has(callID) {
		s.log.WithField("call_id", callID).Debug("approval for unknown call ignored")
		return
	}
	msg, ok := s.flow.Begin(callID)
	if !ok {
		return
	}
	s.metrics.DispatchRequested()
	s.policy.Refresh()

	time.AfterFunc(s.opts.ApproveDelay, func() {
		s.enqueue(func(context.Context) {
			s.flow.Complete(callID)
			s.policy.Refresh()
		})
	})
	go func() {
		err := s.flow.Transmit(ctx, msg)
		s.enqueue(func(context.Context) { s.acknowledge(callID, err) })
	}()
}

func (s *Session) acknowledge(callID string, err error) {
	s.flow.Acknowledge(callID, err)
	if err == nil {
		s.notice = ""
		return
	}
	reason := "write"
	if errors.Is(err, stream.ErrNotConnected) {
		reason = "not_connected"
	}
	s.metrics.DispatchSendFailed(reason)
	s.notice = fmt.Sprintf("dispatch for %s approved locally, not transmitted: %v", callID, err)
}

func (s *Session) compose() view.View {
	var active *event.Event
	if e, ok := s.policy.Active(); ok {
		active = &e
	}
	return view.Compose(view.Input{
		Section:   s.policy.Section(),
		Visible:   s.policy.Visible(),
		Active:    active,
		All:       s.reg.List(),
		Dispatch:  s.flow.Records(),
		Connected: s.health.Connected,
		LastError: s.health.LastError,
		Notice:    s.notice,
	})
}

func (s *Session) publish() {
	v := s.compose()
	s.subMu.Lock()
	s.last = v
	subs := append([]func(view.View){}, s.subs...)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

// Subscribe registers fn for every recomposed view. fn runs on the loop and
// must not block.
func (s *Session) Subscribe(fn func(view.View)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

// Updates returns a channel that always holds the most recent view; slow
// readers skip intermediate ones.
func (s *Session) Updates() <-chan view.View {
	ch := make(chan view.View, 1)
	s.Subscribe(func(v view.View) {
		select {
		case <-ch:
		default:
		}
		ch <- v
	})
	return ch
}

// Snapshot returns the last published view.
func (s *Session) Snapshot() view.View {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.last
}
