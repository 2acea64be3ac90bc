package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"agencyledger/internal/auth"
	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
	"agencyledger/internal/log"
	"agencyledger/internal/metrics"
	"agencyledger/internal/middleware/ratelimit"
	"agencyledger/internal/middleware/security"
	"agencyledger/internal/middleware/trace"
	"agencyledger/internal/services"
)

var (
	errNoOwner      = core.Unauthorized(core.CodeUnauthorized, "Authentication required")
	errRateLimited  = core.RateLimited("Rate limit exceeded. Please try again later.")
	errRouteMissing = core.NotFound(core.CodeNotFound, "Route not found")
)

// Services is the set of domain services the API serves.
type Services struct {
	Coordinator *services.Coordinator
	Projects    *services.ProjectService
	Milestones  *services.MilestoneService
	Directory   *services.DirectoryService
	Reminders   *services.ReminderService
	Activity    *services.ActivityService
}

// NewServices builds every service over one store with shared options.
func NewServices(store ledger.Store, opts ...services.Option) Services {
	return Services{
		Coordinator: services.NewCoordinator(store, opts...),
		Projects:    services.NewProjectService(store, opts...),
		Milestones:  services.NewMilestoneService(store, opts...),
		Directory:   services.NewDirectoryService(store, opts...),
		Reminders:   services.NewReminderService(store, opts...),
		Activity:    services.NewActivityService(store),
	}
}

type Config struct {
	Addr               string
	RateLimitPerMinute int
	Backend            string
	Logger             *log.Logger
	Metrics            *metrics.Metrics
	Auth               *auth.Authenticator
}

type Server struct {
	http.Server
	svc      Services
	auth     *auth.Authenticator
	logger   *log.Logger
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	detector *security.Detector
	backend  string
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer wires middleware and routes; call ListenAndServe to run it.
func NewServer(cfg Config, svc Services) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}

	s := &Server{
		svc:      svc,
		auth:     cfg.Auth,
		logger:   logger.WithComponent(log.ComponentHTTP),
		metrics:  cfg.Metrics,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		detector: security.NewDetector(logger),
		backend:  cfg.Backend,
		started:  time.Now(),
	}
	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(logger *log.Logger) http.Handler {
	tracer := trace.NewMiddleware(s.detector.ExtractClientIP, logger, s.metrics)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	r := chi.NewRouter()
	r.Use(tracer.Middleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(headers.Middleware)
	r.Use(s.detector.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errRouteMissing)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponse().Fail(http.StatusMethodNotAllowed, core.CodeBadRequest, "Method not allowed", nil).Write(w)
	})

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
				writeError(w, r, errRateLimited)
			}))
			r.Use(s.auth.Middleware(writeError))

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/activity", s.handleActivity)

			r.Route("/payments", func(r chi.Router) {
				r.Post("/", s.handleCreatePayment)
				r.Get("/", s.handleListPayments)
				r.Get("/{id}", s.handleGetPayment)
				r.Put("/{id}", s.handleUpdatePayment)
				r.Patch("/{id}", s.handleUpdatePayment)
				r.Delete("/{id}", s.handleDeletePayment)
			})

			r.Route("/expenses", func(r chi.Router) {
				r.Post("/", s.handleCreateExpense)
				r.Get("/", s.handleListExpenses)
				r.Get("/{id}", s.handleGetExpense)
				r.Put("/{id}", s.handleUpdateExpense)
				r.Patch("/{id}", s.handleUpdateExpense)
				r.Delete("/{id}", s.handleDeleteExpense)
			})

			r.Route("/projects", func(r chi.Router) {
				r.Post("/", s.handleCreateProject)
				r.Get("/", s.handleListProjects)
				r.Get("/{id}", s.handleGetProject)
				r.Put("/{id}", s.handleUpdateProject)
				r.Patch("/{id}", s.handleUpdateProject)
				r.Delete("/{id}", s.handleDeleteProject)
				r.Get("/{id}/stats", s.handleProjectStats)
				r.Get("/{id}/timeline", s.handleProjectTimeline)
				r.Get("/{id}/milestones", s.handleListProjectMilestones)
				r.Post("/{id}/milestones", s.handleCreateProjectMilestone)
			})

			r.Route("/milestones", func(r chi.Router) {
				r.Post("/", s.handleCreateMilestone)
				r.Get("/", s.handleListMilestones)
				r.Get("/{id}", s.handleGetMilestone)
				r.Put("/{id}", s.handleUpdateMilestone)
				r.Patch("/{id}", s.handleUpdateMilestone)
				r.Patch("/{id}/status", s.handleMilestoneStatus)
				r.Delete("/{id}", s.handleDeleteMilestone)
			})

			r.Route("/clients", func(r chi.Router) {
				r.Post("/", s.handleCreateClient)
				r.Get("/", s.handleListClients)
				r.Get("/{id}", s.handleGetClient)
				r.Put("/{id}", s.handleUpdateClient)
				r.Patch("/{id}", s.handleUpdateClient)
				r.Delete("/{id}", s.handleDeleteClient)
				r.Get("/{id}/projects", s.handleClientProjects)
				r.Get("/{id}/stats", s.handleClientStats)
			})

			r.Route("/categories", func(r chi.Router) {
				r.Post("/", s.handleCreateCategory)
				r.Get("/", s.handleListCategories)
				r.Get("/{id}", s.handleGetCategory)
				r.Put("/{id}", s.handleUpdateCategory)
				r.Patch("/{id}", s.handleUpdateCategory)
				r.Delete("/{id}", s.handleDeleteCategory)
			})

			r.Route("/reminders", func(r chi.Router) {
				r.Post("/", s.handleCreateReminder)
				r.Get("/", s.handleListReminders)
				r.Get("/{id}", s.handleGetReminder)
				r.Put("/{id}", s.handleUpdateReminder)
				r.Patch("/{id}", s.handleUpdateReminder)
				r.Delete("/{id}", s.handleDeleteReminder)
			})
		})
	})

	return r
}

// Shutdown stops accepting requests and ends the limiter's cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func owner(r *http.Request) (uuid.UUID, error) {
	id, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		return uuid.Nil, errNoOwner
	}
	return id, nil
}

// ownerAndID resolves the caller and the {id} path parameter.
func ownerAndID(r *http.Request, param string) (uuid.UUID, uuid.UUID, error) {
	o, err := owner(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := pathID(r, param)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return o, id, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]any{
		"status":    "ok",
		"backend":   s.backend,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, map[string]string{"message": "Logged out"})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := s.svc.Activity.Recent(r.Context(), o, queryInt(r, "limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, nonNil(events))
}
