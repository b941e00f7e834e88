// Package mocksource is a stand-in for the triage backend: a websocket
// broadcast hub fed by a scripted replay of demo calls, plus the REST
// endpoints the CLI talks to.
package mocksource

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lit-response/triageboard/event"
	"github.com/lit-response/triageboard/stream"
)

const (
	clientBuffer = 32
	writeTimeout = 5 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans every published frame out to all connected dashboards. Slow
// clients lose frames rather than stall the others.
type Hub struct {
	log      *logrus.Entry
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	welcome func() []any
}

func NewHub(log *logrus.Entry) *Hub {
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }},
		clients:  map[*client]struct{}{},
	}
}

// SetWelcome installs fn to produce the frames a newly connected client
// receives before any broadcast.
func (h *Hub) SetWelcome(fn func() []any) {
	h.mu.Lock()
	h.welcome = fn
	h.mu.Unlock()
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish marshals v once and queues it for every client.
func (h *Hub) Publish(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.log.Warn("client buffer full, frame dropped")
		}
	}
	return nil
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	if h.welcome != nil {
		for _, v := range h.welcome() {
			if b, err := json.Marshal(v); err == nil && len(c.send) < cap(c.send) {
				c.send <- b
			}
		}
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.WithField("remote", r.RemoteAddr).Info("dashboard connected")

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) writeLoop(c *client) {
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			h.log.WithError(err).Debug("write failed")
			_ = c.conn.Close()
			return
		}
	}
}

// readLoop echoes dispatch approvals back to everyone, which is how the
// real backend confirms them.
func (h *Hub) readLoop(c *client) {
	defer h.drop(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		raw, err := stream.Decode(data)
		if err != nil {
			h.log.WithError(err).Warn("unreadable frame from dashboard")
			continue
		}
		if stream.Kind(raw) != event.TypeDispatchApproved {
			continue
		}
		id, _ := stream.CallID(raw)
		h.log.WithField("call_id", id).Info("dispatch approved")
		if err := h.Publish(raw); err != nil {
			h.log.WithError(err).Warn("echo failed")
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
	h.log.Info("dashboard disconnected")
}
