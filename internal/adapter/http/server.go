package http

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/turbulent-flux-etl/internal/pipeline"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunReporter exposes the most recent finished run.
type RunReporter interface {
	LastRun() (pipeline.RunReport, bool)
}

// Server exposes health, readiness, run status and metrics HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /status and
// /metrics routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, runs RunReporter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.HandleFunc("GET /status", handleStatus(runs))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type outcomeCount struct {
	Outcome string `json:"outcome"`
	Days    int    `json:"days"`
}

type statusResponse struct {
	RunID           string         `json:"run_id,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	Started         string         `json:"started"`
	DurationSeconds float64        `json:"duration_seconds"`
	Jobs            int            `json:"jobs"`
	Failed          int            `json:"failed"`
	Records         int            `json:"records"`
	WindowsSkipped  int            `json:"windows_skipped"`
	Outcomes        []outcomeCount `json:"outcomes"`
}

func handleStatus(runs RunReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		rep, ok := runs.LastRun()
		if !ok {
			sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"status": "no run finished yet"})
			return
		}
		s := rep.Summary
		body := statusResponse{
			RunID:           rep.ID,
			StartedAt:       rep.Started.UTC(),
			Started:         humanize.Time(rep.Started),
			DurationSeconds: s.Duration.Seconds(),
			Jobs:            s.Jobs,
			Failed:          s.Failed(),
			Records:         s.Records,
			WindowsSkipped:  s.Skipped,
		}
		for st, n := range s.Counts {
			body.Outcomes = append(body.Outcomes, outcomeCount{Outcome: string(st), Days: n})
		}
		sort.Slice(body.Outcomes, func(i, j int) bool { return body.Outcomes[i].Outcome < body.Outcomes[j].Outcome })
		sharedobs.WriteJSON(w, http.StatusOK, body)
	}
}
