// Package stream owns the websocket connection to the event source and turns
// its frames into canonical events.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/lit-response/triageboard/event"
	"github.com/lit-response/triageboard/metrics"
	"github.com/sirupsen/logrus"
)

type ReconnectConfig struct {
	Enabled         bool
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration // 0 retries until the context ends
}

type Config struct {
	URL              string
	Fallback         event.Coordinates
	HandshakeTimeout time.Duration
	Reconnect        ReconnectConfig
}

// Health is the observable connection state. Errors end up here instead of
// being raised to the renderer.
type Health struct {
	Connected bool
	LastError string
	Since     time.Time
	Received  uint64
	Malformed uint64
}

// Inbound is one published frame. Confirmation frames echo an approval for
// CallID and carry no other event data.
type Inbound struct {
	Event        event.Event
	Kind         string
	Confirmation bool
}

type Adapter struct {
	cfg     Config
	log     *logrus.Entry
	metrics *metrics.Collectors
	dialer  *websocket.Dialer
	now     func() time.Time
	out     chan Inbound

	mu     sync.Mutex
	conn   *websocket.Conn
	health Health

	writeMu sync.Mutex
}

func New(cfg Config, log *logrus.Entry, m *metrics.Collectors) *Adapter {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Adapter{
		cfg:     cfg,
		log:     log.WithField("component", "stream"),
		metrics: m,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		now:     time.Now,
		out:     make(chan Inbound, 64),
	}
}

// Events delivers normalized frames in arrival order. It is closed when Run
// returns.
func (a *Adapter) Events() <-chan Inbound { return a.out }

func (a *Adapter) Health() Health {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.health
}

// Connect dials the endpoint once.
func (a *Adapter) Connect(ctx context.Context) error {
	conn, _, err := a.dialer.DialContext(ctx, a.cfg.URL, nil)
	if err != nil {
		err = fmt.Errorf("dial %s: %w", a.cfg.URL, err)
		a.setDisconnected(nil, err)
		return err
	}
	a.mu.Lock()
	a.conn = conn
	a.health.Connected = true
	a.health.LastError = ""
	a.health.Since = a.now()
	a.mu.Unlock()
	a.metrics.SetConnected(true)
	a.log.WithField("url", a.cfg.URL).Info("connected to event source")
	return nil
}

// Run connects, reads until the connection drops and, when reconnect is
// enabled, dials again with exponential backoff. It returns when ctx ends,
// when reconnect is disabled and the connection is gone, or when the retry
// budget is spent.
func (a *Adapter) Run(ctx context.Context) error {
	defer close(a.out)
	for {
		conn, err := a.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		readErr := a.readLoop(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		if !a.cfg.Reconnect.Enabled {
			return readErr
		}
	}
}

func (a *Adapter) dial(ctx context.Context) (*websocket.Conn, error) {
	op := func() (*websocket.Conn, error) {
		if err := a.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.conn, nil
	}
	if !a.cfg.Reconnect.Enabled {
		return op()
	}

	b := backoff.NewExponentialBackOff()
	if a.cfg.Reconnect.InitialInterval > 0 {
		b.InitialInterval = a.cfg.Reconnect.InitialInterval
	}
	if a.cfg.Reconnect.MaxInterval > 0 {
		b.MaxInterval = a.cfg.Reconnect.MaxInterval
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(a.cfg.Reconnect.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			a.metrics.Reconnect()
			a.log.WithError(err).WithField("retry_in", next).Warn("event source unavailable")
		}),
	)
}

func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				err = errors.New("session closed")
			} else {
				err = fmt.Errorf("read: %w", err)
				a.log.WithError(err).Warn("event source connection lost")
			}
			a.setDisconnected(conn, err)
			return err
		}
		a.metrics.FrameReceived()
		a.mu.Lock()
		a.health.Received++
		a.mu.Unlock()

		raw, err := Decode(data)
		if err != nil {
			a.metrics.FrameMalformed()
			a.mu.Lock()
			a.health.Malformed++
			a.mu.Unlock()
			a.log.WithError(err).WithField("bytes", len(data)).Warn("dropping frame")
			continue
		}
		in, ok := a.inbound(raw)
		if !ok {
			continue
		}
		select {
		case a.out <- in:
		case <-ctx.Done():
			a.setDisconnected(conn, errors.New("session closed"))
			return ctx.Err()
		}
	}
}

func (a *Adapter) inbound(raw map[string]any) (Inbound, bool) {
	kind := Kind(raw)
	if kind == event.TypeDispatchApproved {
		id, ok := CallID(raw)
		if !ok {
			a.log.Warn("approval echo without call id")
			return Inbound{}, false
		}
		return Inbound{Event: event.Event{CallID: id, DispatchApproved: true}, Kind: kind, Confirmation: true}, true
	}
	ev := Normalize(raw, a.now(), a.cfg.Fallback)
	a.metrics.EventNormalized(ev.Severity)
	a.log.WithFields(logrus.Fields{"call_id": ev.CallID, "kind": kind, "severity": ev.Severity}).Debug("event normalized")
	return Inbound{Event: ev, Kind: kind}, true
}

func (a *Adapter) setDisconnected(conn *websocket.Conn, err error) {
	a.mu.Lock()
	if conn != nil && a.conn == conn {
		a.conn = nil
	}
	if conn != nil {
		_ = conn.Close()
	}
	wasUp := a.health.Connected
	a.health.Connected = false
	if err != nil {
		a.health.LastError = err.Error()
	}
	if wasUp {
		a.health.Since = a.now()
	}
	a.mu.Unlock()
	a.metrics.SetConnected(false)
}

// Send writes one operator action. It fails with ErrNotConnected when there
// is no live connection and never queues for later.
func (a *Adapter) Send(ctx context.Context, msg event.Outbound) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
		defer conn.SetWriteDeadline(time.Time{})
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s for %s: %w", msg.Type, msg.CallID, err)
	}
	return nil
}
