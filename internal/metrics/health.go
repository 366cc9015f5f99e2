package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecks are the probes the health endpoint runs per request.
type HealthChecks struct {
	Gateway   func(ctx context.Context) error
	Store     func(ctx context.Context) error
	CacheSize func() int
}

type healthResponse struct {
	Status        string `json:"status"`
	Gateway       string `json:"gateway"`
	Store         string `json:"store"`
	CachedQueries int    `json:"cachedQueries"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

// Server exposes /metrics and /healthz on a dedicated listener.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func NewServer(addr string, checks HealthChecks, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", Collector.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:        "ok",
			Gateway:       "ok",
			Store:         "ok",
			UptimeSeconds: int64(Collector.Uptime().Seconds()),
		}
		if checks.CacheSize != nil {
			resp.CachedQueries = checks.CacheSize()
		}
		if checks.Gateway != nil {
			if err := checks.Gateway(ctx); err != nil {
				resp.Gateway = err.Error()
				resp.Status = "degraded"
			}
		}
		if checks.Store != nil {
			if err := checks.Store(ctx); err != nil {
				resp.Store = err.Error()
				resp.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	})

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in a background goroutine until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("metrics server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
