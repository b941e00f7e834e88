package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lit-response/triageboard/config"
	"github.com/lit-response/triageboard/metrics"
	"github.com/lit-response/triageboard/session"
	"github.com/lit-response/triageboard/stream"
)

type engine struct {
	cfg     *config.Root
	log     *logrus.Entry
	metrics *metrics.Collectors
	adapter *stream.Adapter
	session *session.Session
}

func newEngine(cfg *config.Root, log *logrus.Logger) (*engine, error) {
	m := metrics.New()
	a := stream.New(stream.Config{
		URL:              cfg.Stream.URL,
		Fallback:         cfg.Map.Fallback,
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
		Reconnect: stream.ReconnectConfig{
			Enabled:         cfg.Stream.Reconnect.Enabled,
			InitialInterval: cfg.Stream.Reconnect.InitialInterval,
			MaxInterval:     cfg.Stream.Reconnect.MaxInterval,
			MaxElapsed:      cfg.Stream.Reconnect.MaxElapsed,
		},
	}, log.WithField("component", "stream"), m)
	s := session.New(a, session.Options{
		Fallback:     cfg.Map.Fallback,
		ApproveDelay: cfg.Dispatch.ApproveDelay,
	}, logrus.NewEntry(log), m)

	if cfg.Seed != "" {
		raws, err := config.LoadSeed(cfg.Seed)
		if err != nil {
			return nil, err
		}
		s.Seed(raws)
	}
	return &engine{cfg: cfg, log: log.WithField("component", "engine"), metrics: m, adapter: a, session: s}, nil
}

// run drives the adapter, the session loop and the optional metrics server
// until ctx ends. A dead stream is not fatal: the session keeps serving the
// last known calls and reports the disconnect.
func (e *engine) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.adapter.Run(gctx); err != nil {
			e.log.WithError(err).Error("event stream stopped")
		}
		return nil
	})
	g.Go(func() error { return e.session.Run(gctx) })
	if addr := e.cfg.Metrics.Listen; addr != "" {
		g.Go(func() error { return e.serveMetrics(gctx, addr) })
	}
	return g.Wait()
}

func (e *engine) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	e.log.WithField("listen", addr).Info("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
