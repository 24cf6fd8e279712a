package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/backuprelay/internal/api/handler"
	mw "github.com/edvin/backuprelay/internal/api/middleware"
	"github.com/edvin/backuprelay/internal/config"
	"github.com/edvin/backuprelay/internal/core"
	"github.com/edvin/backuprelay/internal/dbhttp"
	"github.com/edvin/backuprelay/internal/storage"
)

const readyzTimeout = 5 * time.Second

type Server struct {
	router      chi.Router
	logger      zerolog.Logger
	services    *core.Services
	db          *dbhttp.Client
	store       *storage.Store
	cfg         *config.Config
	auditLogger *core.AuditLogger
}

func NewServer(logger zerolog.Logger, db *dbhttp.Client, store *storage.Store, cfg *config.Config) *Server {
	services := core.NewServices(db, store, logger)
	auditLogger := core.NewAuditLogger(services.WebhookLog, logger)

	s := &Server{
		router:      chi.NewRouter(),
		logger:      logger,
		services:    services,
		db:          db,
		store:       store,
		cfg:         cfg,
		auditLogger: auditLogger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	// Agent-facing webhook surface, authenticated per project token.
	webhook := handler.NewWebhook(s.services.Project, s.services.Backup, s.services.Ingest, s.auditLogger, s.cfg.TrustedIPHeader)
	s.router.Head("/webhook/{projectID}", webhook.Head)
	s.router.Get("/webhook/{projectID}", webhook.Status)
	s.router.Post("/webhook/{projectID}", webhook.Push)

	// Internal UI surface.
	backup := handler.NewBackup(s.services, s.auditLogger, s.cfg.TrustedIPHeader)
	s.router.Post("/backups/upload", backup.Upload)
	s.router.Get("/backups/{id}", backup.Get)
	s.router.Get("/backups/{id}/preview", backup.Preview)
	s.router.Post("/backups/{id}/extract", backup.Extract)
	s.router.Get("/backups/{id}/download", backup.Download)
	s.router.Delete("/backups/{id}", backup.Delete)
	s.router.Delete("/backups", backup.BatchDelete)

	// Publicly reachable restore links, authenticated by project token.
	restore := handler.NewRestore(s.services.Retrieval, s.auditLogger, s.cfg.TrustedIPHeader)
	s.router.Get("/restore/{id}", restore.Get)

	// Project administration.
	project := handler.NewProject(s.services.Project)
	s.router.Post("/projects", project.Create)
	s.router.Post("/projects/{id}/rotate-token", project.RotateToken)

	// Webhook audit log.
	logs := handler.NewLogs(s.services.WebhookLog)
	s.router.Get("/logs", logs.List)
	s.router.Delete("/logs", logs.Purge)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReadyz pings the query backend and the object store in parallel so a
// hung dependency cannot stall the probe past the timeout.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyzTimeout)
	defer cancel()

	checks := map[string]string{"database": "ok", "storage": "ok"}
	healthy := true

	g, gctx := errgroup.WithContext(ctx)
	var dbErr, storeErr error
	g.Go(func() error {
		dbErr = s.db.Ping(gctx)
		return nil
	})
	g.Go(func() error {
		storeErr = s.store.Ping(gctx)
		return nil
	})
	g.Wait()

	if dbErr != nil {
		checks["database"] = dbErr.Error()
		healthy = false
	}
	if storeErr != nil {
		checks["storage"] = storeErr.Error()
		healthy = false
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

// Close stops the async audit writer, draining queued entries.
func (s *Server) Close() {
	s.auditLogger.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
