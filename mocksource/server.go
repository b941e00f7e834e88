package mocksource

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type Config struct {
	Listen string
	Path   string // websocket path, "/ws" when empty
	Script ScriptConfig
}

// Server exposes the hub at Path along with /health and /twilio/response.
type Server struct {
	cfg    Config
	log    *logrus.Entry
	hub    *Hub
	script *Script
	mux    *http.ServeMux
}

func NewServer(cfg Config, calls []map[string]any, log *logrus.Entry) *Server {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	hub := NewHub(log.WithField("component", "hub"))
	s := &Server{
		cfg:    cfg,
		log:    log,
		hub:    hub,
		script: NewScript(cfg.Script, calls, hub, log.WithField("component", "script")),
		mux:    http.NewServeMux(),
	}
	hub.SetWelcome(s.script.Sent)
	s.mux.Handle(cfg.Path, hub)
	s.mux.HandleFunc("/health", s.health)
	s.mux.HandleFunc("/twilio/response", s.response)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }
func (s *Server) Hub() *Hub { return s.hub }

// ListenAndServe runs the HTTP server and the script until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Listen, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	go func() { _ = s.script.Run(ctx) }()
	s.log.WithFields(logrus.Fields{"listen": s.cfg.Listen, "path": s.cfg.Path}).Info("mock source listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{
		"status": "ok",
		"services": map[string]string{
			"asr":     "mock",
			"llm":     "mock",
			"emotion": "mock",
			"api":     "ready",
		},
		"environment": map[string]string{
			"twilio":     "missing",
			"model_path": "not set",
		},
		"missing_packages": []string{},
		"clients":          s.hub.Clients(),
	})
}

// response rebroadcasts a posted call as a new_response frame.
func (s *Server) response(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "body must be a JSON object", http.StatusBadRequest)
		return
	}
	body["event"] = "new_response"
	if err := s.hub.Publish(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.WithField("call_id", body["callId"]).Info("published test response")
	writeJSON(w, body)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
