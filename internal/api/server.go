package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/trustrail/grc/internal/config"
	"github.com/trustrail/grc/internal/docstore"
	"github.com/trustrail/grc/internal/drift"
	"github.com/trustrail/grc/internal/scheduler"
	"github.com/trustrail/grc/internal/store"
	"github.com/trustrail/grc/internal/validation"
)

type Server struct {
	cfg    *config.Config
	router *chi.Mux
	store  *store.Store
	docs   *docstore.Client
	http   *http.Server
	logger *slog.Logger

	validator *validation.Calculator
	drift     *drift.Service

	scheduler      *scheduler.Scheduler
	schedulerStore scheduler.Store
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(cfg *config.Config, opts ...ServerOption) (*Server, error) {
	st, err := store.New(store.Config{
		DSN:          cfg.Database.DSN(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	docs, err := docstore.New(docstore.Config{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing document store: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		store:  st,
		docs:   docs,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.validator = validation.NewCalculator(st)
	s.drift = drift.NewService(st, docs, s.validator, s.logger)

	s.schedulerStore = scheduler.NewPostgresStore(st.DB())
	s.scheduler = scheduler.New(s.schedulerStore, s.logger)
	s.registerJobHandlers()

	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

func (s *Server) registerJobHandlers() {
	handlers := &scheduler.DriftHandlers{
		AnalyzeFunc: func(ctx context.Context, orgID uuid.UUID) error {
			_, err := s.drift.CalculateDrift(ctx, orgID)
			return err
		},
		AnalyzeAllFunc: func(ctx context.Context) error {
			return s.forEachActiveOrganization(ctx, func(ctx context.Context, orgID uuid.UUID) error {
				_, err := s.drift.CalculateDrift(ctx, orgID)
				return err
			})
		},
		BaselineFunc: func(ctx context.Context, orgID uuid.UUID) error {
			_, err := s.drift.CreateBaseline(ctx, orgID)
			return err
		},
		BaselineAllFunc: func(ctx context.Context) error {
			return s.forEachActiveOrganization(ctx, func(ctx context.Context, orgID uuid.UUID) error {
				_, err := s.drift.CreateBaseline(ctx, orgID)
				return err
			})
		},
	}
	handlers.Register(s.scheduler)
}

// forEachActiveOrganization fans a job out across tenants. Per-organization
// failures are logged and the sweep continues; only the count is reported.
func (s *Server) forEachActiveOrganization(ctx context.Context, fn func(context.Context, uuid.UUID) error) error {
	status := "active"
	orgs, err := s.store.ListOrganizations(ctx, &status)
	if err != nil {
		return fmt.Errorf("listing organizations: %w", err)
	}

	var failed int
	for _, org := range orgs {
		if err := fn(ctx, org.ID); err != nil {
			failed++
			s.logger.Error("scheduled run failed for organization",
				"organization_id", org.ID,
				"error", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d organizations failed", failed, len(orgs))
	}
	return nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(s.corsMiddleware())
}

func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	allowOrigin := s.cfg.Server.CORSAllowOrigin
	if allowOrigin == "" {
		allowOrigin = "*"
		s.logger.Warn("CORS Allow-Origin set to '*' - configure server.cors_allow_origin in production")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/organizations", func(r chi.Router) {
			r.Get("/", s.listOrganizations)
			r.Post("/", s.createOrganization)

			r.Route("/{orgID}", func(r chi.Router) {
				r.Get("/", s.getOrganization)
				r.Delete("/", s.deleteOrganization)

				r.Get("/validation", s.getValidationSnapshot)

				r.Route("/assessments", func(r chi.Router) {
					r.Get("/", s.listAssessments)
					r.Post("/", s.createAssessment)
				})

				r.Route("/findings", func(r chi.Router) {
					r.Get("/", s.listFindings)
					r.Post("/", s.createFinding)
				})

				r.Route("/tech-stack", func(r chi.Router) {
					r.Get("/", s.listTechStack)
					r.Post("/", s.createTechStackItem)
				})

				r.Route("/audit-calendar", func(r chi.Router) {
					r.Get("/", s.listAuditCalendar)
					r.Post("/", s.createAuditCalendarEntry)
				})

				r.Route("/drift", func(r chi.Router) {
					r.Get("/", s.calculateDrift)
					r.Post("/baseline", s.createBaseline)
					r.Get("/timeline", s.getDriftTimeline)
					r.Get("/history", s.getDriftHistory)
					r.Get("/sustainability", s.getSustainabilityIndex)
					r.Get("/failure-probability", s.getFailureProbability)
					r.Get("/forecast", s.getRegulatoryForecast)
					r.Get("/shadow-ai", s.getShadowAIRisk)
				})
			})
		})

		r.Route("/assessments", func(r chi.Router) {
			r.Get("/{assessmentID}", s.getAssessment)
			r.Post("/{assessmentID}/complete", s.completeAssessment)
		})

		r.Route("/findings", func(r chi.Router) {
			r.Get("/{findingID}", s.getFinding)
			r.Patch("/{findingID}/status", s.updateFindingStatus)
		})

		r.Delete("/tech-stack/{itemID}", s.deleteTechStackItem)
		r.Delete("/audit-calendar/{entryID}", s.deleteAuditCalendarEntry)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listScheduledJobs)
			r.Post("/", s.createScheduledJob)
			r.Get("/{jobID}", s.getScheduledJob)
			r.Put("/{jobID}", s.updateScheduledJob)
			r.Delete("/{jobID}", s.deleteScheduledJob)
			r.Post("/{jobID}/run", s.runScheduledJobNow)
			r.Post("/{jobID}/enable", s.enableScheduledJob)
			r.Post("/{jobID}/disable", s.disableScheduledJob)
			r.Get("/{jobID}/executions", s.getJobExecutions)
		})
	})
}

func (s *Server) Run(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		s.logger.Error("failed to start scheduler", "error", err)
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.scheduler.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) Close() error {
	if err := s.docs.Close(); err != nil {
		s.logger.Warn("closing document store", "error", err)
	}
	return s.store.Close()
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
	Meta    *apiMeta    `json:"meta,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiMeta struct {
	Total  int `json:"total,omitempty"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func respondJSONWithMeta(w http.ResponseWriter, status int, data interface{}, meta *apiMeta) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta,
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "db_unavailable", "Database not available")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
