// Package http serves the status API of taskchecker in watch mode: health
// probes, the scheduled jobs, the summary of the last run and a trigger for
// an immediate run.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/taskchecker/internal/application/checker"
	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/infrastructure/scheduler"
	"github.com/alem-hub/taskchecker/internal/interface/http/handlers"
	"github.com/alem-hub/taskchecker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr to listen on, e.g. ":8080".
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// JobController lists scheduled jobs and starts them on demand.
type JobController interface {
	ListJobs() []scheduler.JobInfo
	RunNow(ctx context.Context, name string) (scheduler.JobResult, error)
}

// RunSource returns the statistics of the last completed run, or nil.
type RunSource interface {
	LastRun() *checker.RunStats
}

// Dependencies contains everything the handlers read from.
type Dependencies struct {
	Jobs   JobController
	Runs   RunSource
	Health *handlers.CompositeHealthChecker
	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the status HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
	// baseCtx parents runs triggered over HTTP, so they stop with the server.
	baseCtx context.Context
}

// NewServer creates a server. Jobs and Runs are required.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config:  config,
		deps:    deps,
		router:  http.NewServeMux(),
		logger:  deps.Logger,
		baseCtx: context.Background(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))
	if s.deps.Health == nil {
		s.deps.Health = handlers.NewCompositeHealthChecker("")
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the router wrapped in middleware.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	h = s.loggingMiddleware(h)
	h = s.recoveryMiddleware(h)
	h = s.requestIDMiddleware(h)
	return h
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /live", s.handleLive)

	s.router.HandleFunc("GET /api/v1/jobs", s.handleListJobs)
	s.router.HandleFunc("POST /api/v1/jobs/{name}/run", s.handleRunJob)
	s.router.HandleFunc("GET /api/v1/runs/last", s.handleLastRun)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// jobView is the JSON form of scheduler.JobInfo.
type jobView struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	Running     bool       `json:"running"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     time.Time  `json:"next_run"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	Skipped     int64      `json:"skipped"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	infos := s.deps.Jobs.ListJobs()
	out := make([]jobView, 0, len(infos))
	for _, j := range infos {
		v := jobView{
			Name:        j.Name,
			Description: j.Description,
			Schedule:    j.Schedule,
			Running:     j.Running,
			NextRun:     j.NextRun,
			RunCount:    j.RunCount,
			FailCount:   j.FailCount,
			Skipped:     j.Skipped,
		}
		if !j.LastRun.IsZero() {
			last := j.LastRun
			v.LastRun = &last
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleRunJob starts a job in the background and answers 202 at once. A
// grading run takes far longer than any sensible write timeout.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var found *scheduler.JobInfo
	for _, j := range s.deps.Jobs.ListJobs() {
		if j.Name == name {
			found = &j
			break
		}
	}
	switch {
	case found == nil:
		writeJSONError(w, http.StatusNotFound, "job_not_found", fmt.Sprintf("no job %q", name))
		return
	case found.Running:
		writeJSONError(w, http.StatusConflict, "job_running", fmt.Sprintf("job %q is already running", name))
		return
	}

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	ctx = logger.WithContext(ctx, s.logger)

	go func() {
		if _, err := s.deps.Jobs.RunNow(ctx, name); err != nil {
			if errors.Is(err, scheduler.ErrJobRunning) {
				s.logger.Warn("triggered job already running", "job", name)
				return
			}
			s.logger.Error("triggered job failed", "job", name, logger.Err(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"job": name, "status": "started"})
}

// runView summarizes a completed run.
type runView struct {
	RunID        string                   `json:"run_id"`
	StartedAt    time.Time                `json:"started_at"`
	FinishedAt   time.Time                `json:"finished_at"`
	Students     int                      `json:"students"`
	Degraded     int                      `json:"degraded"`
	Workers      int                      `json:"workers"`
	WorkerErrors []string                 `json:"worker_errors,omitempty"`
	Warnings     []string                 `json:"warnings,omitempty"`
	Plagiarism   string                   `json:"plagiarism_report,omitempty"`
	Summaries    []grading.StudentSummary `json:"summaries"`
}

func (s *Server) handleLastRun(w http.ResponseWriter, _ *http.Request) {
	stats := s.deps.Runs.LastRun()
	if stats == nil || stats.Report == nil {
		writeJSONError(w, http.StatusNotFound, "no_runs", "no run has completed yet")
		return
	}
	r := stats.Report
	writeJSON(w, http.StatusOK, runView{
		RunID:        stats.RunID,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Students:     stats.Students,
		Degraded:     stats.Degraded,
		Workers:      stats.Workers,
		WorkerErrors: r.WorkerErrors,
		Warnings:     r.Warnings,
		Plagiarism:   r.PlagiarismReport,
		Summaries:    r.Summaries,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			logger.Latency(time.Since(start)),
			"request_id", requestID(r.Context()),
		)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
					"path", r.URL.Path,
					"request_id", requestID(r.Context()),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens on the configured address and serves in the background.
// Runs triggered over HTTP are canceled when ctx is.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server already running")
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	s.running = true
	s.baseCtx = ctx

	s.logger.Info("starting HTTP server", "address", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", logger.Err(err))
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight requests. Runs
// triggered over HTTP are not waited for; they stop with the context given
// to Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Error: &APIError{Code: code, Message: message},
	})
}
