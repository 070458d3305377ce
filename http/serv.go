package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pg-bridge/pgbridge/pkg/bridgelog"
	"github.com/pg-bridge/pgbridge/pkg/statistics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthReply is the GET /health response body.
type healthReply struct {
	Status      string              `json:"status"`
	Timestamp   string              `json:"timestamp"`
	Server      string              `json:"server"`
	Connections statistics.Snapshot `json:"connections"`
}

// Checker reports whether the gateway considers itself healthy.
type Checker func() bool

// AdminServer exposes health and metrics over plain HTTP, away from
// the protocol port.
type AdminServer struct {
	stats   *statistics.BridgeStatistics
	check   Checker
	server  *http.Server
	address string
}

func NewAdminServer(port int, stats *statistics.BridgeStatistics, check Checker) *AdminServer {
	s := &AdminServer{
		stats:   stats,
		check:   check,
		address: fmt.Sprintf(":%d", port),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(stats.Registry(), promhttp.HandlerOpts{}))
	s.server = &http.Server{
		Addr:         s.address,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *AdminServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	healthy := s.check == nil || s.check()
	reply := healthReply{
		Status:      "ok",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Server:      "pgbridge",
		Connections: s.stats.Snapshot(),
	}
	code := http.StatusOK
	if !healthy {
		reply.Status = "unavailable"
		code = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		bridgelog.Zero.Warn().Err(err).Msg("health reply write failed")
	}
}

// Handler exposes the route table.
func (s *AdminServer) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe blocks until Shutdown or a listener failure.
func (s *AdminServer) ListenAndServe() error {
	bridgelog.Zero.Info().Str("addr", s.address).Msg("admin server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
