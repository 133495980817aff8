package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/repository"
	"freelance-apply-pipeline/internal/infra/metrics"
	"freelance-apply-pipeline/internal/usecase"
)

// TaskReader is the registry's read side used by task-polling endpoints.
type TaskReader interface {
	Get(jobID string, cat model.TaskCategory) *model.TaskStatus
	Snapshot() []*model.TaskStatus
}

// HealthProbe pings one dependency. Used by the admin health endpoint.
type HealthProbe func(ctx context.Context) error

type Server struct {
	ingest    usecase.IngestUseCase
	pipeline  usecase.PipelineUseCase
	jobs      usecase.JobUseCase
	approvals usecase.ApprovalUseCase
	submitter usecase.SubmissionUseCase
	stats     usecase.StatsUseCase
	modes     repository.ModeStore
	tasks     TaskReader

	auth     *AuthManager
	password string
	logBuf   *LogBuffer
	probes   map[string]HealthProbe

	batchSize int
	log       *zerolog.Logger
}

type ServerDeps struct {
	Ingest    usecase.IngestUseCase
	Pipeline  usecase.PipelineUseCase
	Jobs      usecase.JobUseCase
	Approvals usecase.ApprovalUseCase
	Submitter usecase.SubmissionUseCase
	Stats     usecase.StatsUseCase
	Modes     repository.ModeStore
	Tasks     TaskReader

	Auth          *AuthManager
	AdminPassword string
	LogBuffer     *LogBuffer
	Probes        map[string]HealthProbe

	BatchSize int
	Log       *zerolog.Logger
}

func NewServer(d ServerDeps) *Server {
	if d.BatchSize <= 0 {
		d.BatchSize = 20
	}
	return &Server{
		ingest:    d.Ingest,
		pipeline:  d.Pipeline,
		jobs:      d.Jobs,
		approvals: d.Approvals,
		submitter: d.Submitter,
		stats:     d.Stats,
		modes:     d.Modes,
		tasks:     d.Tasks,
		auth:      d.Auth,
		password:  d.AdminPassword,
		logBuf:    d.LogBuffer,
		probes:    d.Probes,
		batchSize: d.BatchSize,
		log:       d.Log,
	}
}

// Router builds the control-plane routes. Everything under /api/v1 except
// login requires a valid operator token.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.measure)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Post("/api/v1/login", s.handleLogin)
	r.Post("/api/v1/logout", s.handleLogout)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Route("/pipeline", func(r chi.Router) {
			r.Post("/trigger", s.handleTrigger)
			r.Post("/process", s.handleProcess)
			r.Post("/auto-process", s.handleAutoProcess)
			r.Get("/runs", s.handleRunList)
			r.Get("/runs/{id}", s.handleRunGet)
		})

		r.Get("/mode", s.handleModeGet)
		r.Put("/mode", s.handleModeSet)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleJobList)
			r.Delete("/", s.handleJobBulkDelete)
			r.Get("/{id}", s.handleJobGet)
			r.Delete("/{id}", s.handleJobDelete)
			r.Post("/{id}/reset", s.handleJobReset)
			r.Post("/{id}/status", s.handleJobForceStatus)
			r.Post("/{id}/approve", s.handleApprove)
			r.Post("/{id}/reject", s.handleReject)
			r.Put("/{id}/proposal", s.handleEditProposal)
			r.Post("/{id}/submit", s.handleSubmit)
		})

		r.Get("/approvals/pending", s.handlePendingApprovals)

		r.Get("/tasks", s.handleTaskList)
		r.Get("/tasks/{id}/{category}", s.handleTaskGet)

		r.Get("/stats", s.handleStats)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/logs", s.handleLogs)
			r.Get("/health", s.handleHealth)
		})
	})

	return r
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.IncHTTPRequest(route, r.Method, ww.Status())
	})
}

// Serve runs the control plane until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
