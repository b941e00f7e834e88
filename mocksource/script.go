package mocksource

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

//go:embed script.yaml
var defaultScript []byte

var followUps = []string{
	"It seems to be getting worse.",
	"Help is arriving now.",
	"The situation is stable.",
}

// Publisher is satisfied by *Hub.
type Publisher interface {
	Publish(v any) error
}

type ScriptConfig struct {
	Spacing  time.Duration // delay before each scripted call
	Interval time.Duration // delay between random updates
	Seed     int64         // zero picks a time-based seed
}

// Script replays calls and then mutates one at random on every tick. Each
// frame is a full snapshot of the call.
type Script struct {
	cfg ScriptConfig
	pub Publisher
	log *logrus.Entry
	now func() time.Time

	mu   sync.Mutex
	rnd  *rand.Rand
	all  []map[string]any
	sent int
}

// ParseScript decodes a YAML list of calls and gives each a call_sid when it
// has none.
func ParseScript(data []byte) ([]map[string]any, error) {
	var calls []map[string]any
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&calls); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	for _, c := range calls {
		if _, ok := c["call_sid"]; !ok {
			c["call_sid"] = "call-" + uuid.NewString()[:8]
		}
	}
	return calls, nil
}

func DefaultScript() ([]map[string]any, error) { return ParseScript(defaultScript) }

func NewScript(cfg ScriptConfig, calls []map[string]any, pub Publisher, log *logrus.Entry) *Script {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Script{
		cfg: cfg,
		pub: pub,
		log: log,
		now: time.Now,
		rnd: rand.New(rand.NewSource(seed)),
		all: calls,
	}
}

// Sent returns copies of every call replayed so far.
func (s *Script) Sent() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, 0, s.sent)
	for _, c := range s.all[:s.sent] {
		out = append(out, copyCall(c))
	}
	return out
}

// Run blocks until ctx is done.
func (s *Script) Run(ctx context.Context) error {
	for i := range s.all {
		if !sleep(ctx, s.cfg.Spacing) {
			return nil
		}
		frame := s.release(i)
		s.log.WithFields(logrus.Fields{
			"call_id":  frame["call_sid"],
			"type":     frame["emergency_type"],
			"priority": frame["priority"],
		}).Info("sent scripted call")
		if err := s.pub.Publish(frame); err != nil {
			return err
		}
	}
	if len(s.all) == 0 || s.cfg.Interval <= 0 {
		<-ctx.Done()
		return nil
	}

	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			kind, frame := s.Update()
			s.log.WithFields(logrus.Fields{"call_id": frame["call_sid"], "update": kind}).Info("sent update")
			if err := s.pub.Publish(frame); err != nil {
				return err
			}
		}
	}
}

func (s *Script) release(i int) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all[i]["timestamp"] = s.now().UTC().Format(time.RFC3339Nano)
	s.sent = i + 1
	return copyCall(s.all[i])
}

// Update mutates the transcript, emotions or coordinates of a random sent
// call and returns which one changed with the resulting snapshot.
func (s *Script) Update() (string, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == 0 {
		s.sent = len(s.all)
	}
	c := s.all[s.rnd.Intn(s.sent)]
	c["timestamp"] = s.now().UTC().Format(time.RFC3339Nano)

	kind := []string{"transcript", "emotion", "location"}[s.rnd.Intn(3)]
	switch kind {
	case "transcript":
		t, _ := c["transcript"].(string)
		c["transcript"] = t + "\nAI: How is the situation now?\nCaller: " + followUps[s.rnd.Intn(len(followUps))]
	case "emotion":
		c["emotions"] = map[string]any{"emotions": map[string]any{
			"joy":      s.rnd.Float64() * 0.3,
			"fear":     s.rnd.Float64() * 0.7,
			"sadness":  s.rnd.Float64() * 0.8,
			"anger":    s.rnd.Float64() * 0.6,
			"surprise": s.rnd.Float64() * 0.5,
		}}
	case "location":
		lat, lng := pair(c["coordinates"])
		c["coordinates"] = []any{
			lat + (s.rnd.Float64()-0.5)*0.01,
			lng + (s.rnd.Float64()-0.5)*0.01,
		}
	}
	return kind, copyCall(c)
}

func pair(v any) (float64, float64) {
	xs, ok := v.([]any)
	if !ok || len(xs) != 2 {
		return 0, 0
	}
	lat, _ := xs[0].(float64)
	lng, _ := xs[1].(float64)
	return lat, lng
}

// copyCall copies the top level and the slices and maps one level below it,
// which is as deep as the script shapes go.
func copyCall(c map[string]any) map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		switch x := v.(type) {
		case []any:
			out[k] = append([]any(nil), x...)
		case map[string]any:
			m := make(map[string]any, len(x))
			for kk, vv := range x {
				m[kk] = vv
			}
			out[k] = m
		default:
			out[k] = v
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
