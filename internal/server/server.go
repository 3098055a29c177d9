// Package server exposes the HTTP serving surface: health probes,
// prometheus metrics, the latest snapshot as JSON, and a websocket
// snapshot stream. The server is just another snapshot consumer wired to
// the same feed callback as the NATS bridge.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"PortView/internal/observability"
	"PortView/internal/projection"
)

// Server serves the read-only HTTP surface for one projection feed.
type Server struct {
	addr    string
	health  *observability.HealthChecker
	hub     *Hub
	log     zerolog.Logger
	metrics *observability.Metrics

	latest  atomic.Pointer[snapshotFrame]
	httpSrv *http.Server
}

type snapshotFrame struct {
	snap *projection.PortfolioSnapshot
	json []byte
}

// New creates the server. health may be shared with other components so
// readiness flips exactly once.
func New(addr string, health *observability.HealthChecker, metrics *observability.Metrics) *Server {
	s := &Server{
		addr:    addr,
		health:  health,
		hub:     NewHub(metrics),
		log:     observability.NewLogger("server"),
		metrics: metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.LivenessHandler)
	mux.HandleFunc("/readyz", health.ReadinessHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// OnSnapshot is the feed callback: it caches the latest snapshot, flips
// readiness once the initial load completes, and pushes the frame to all
// websocket clients.
func (s *Server) OnSnapshot(snap *projection.PortfolioSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal snapshot failed")
		return
	}

	s.latest.Store(&snapshotFrame{snap: snap, json: data})

	if snap.InitialLoadComplete && !s.health.IsReady() {
		s.health.SetReady(true)
		s.log.Info().Msg("initial load complete, ready")
	}

	s.hub.Broadcast(data)
}

// Latest returns the most recent snapshot, nil before the first event.
func (s *Server) Latest() *projection.PortfolioSnapshot {
	if f := s.latest.Load(); f != nil {
		return f.snap
	}
	return nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	f := s.latest.Load()
	if f == nil {
		s.count("snapshot", "404")
		http.Error(w, `{"error":"no snapshot yet"}`, http.StatusNotFound)
		return
	}
	s.count("snapshot", "200")
	w.Header().Set("Content-Type", "application/json")
	w.Write(f.json)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.count("ws", "200")
	var initial []byte
	if f := s.latest.Load(); f != nil {
		initial = f.json
	}
	s.hub.HandleWS(w, r, initial)
}

func (s *Server) count(endpoint, status string) {
	if s.metrics != nil {
		s.metrics.HTTPRequests.WithLabelValues(endpoint, status).Inc()
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.CloseAll()
		s.httpSrv.Shutdown(shutCtx)
	}()

	s.log.Info().Str("addr", s.addr).Msg("http server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
