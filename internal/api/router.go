package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/CaioWing/apkharbor/internal/api/management"
	"github.com/CaioWing/apkharbor/internal/api/middleware"
	"github.com/CaioWing/apkharbor/internal/api/response"
	"github.com/CaioWing/apkharbor/internal/auth"
	"github.com/CaioWing/apkharbor/internal/service"
	"github.com/CaioWing/apkharbor/internal/storage"
)

type RouterDeps struct {
	PublishSvc        *service.PublishService
	AuditSvc          *service.AuditService
	Store             storage.WorkspaceStore
	JWTManager        *auth.JWTManager
	CITokens          *auth.TokenSet
	AdminEmail        string
	AdminPasswordHash string
	// Metrics is shared with the publish service, which reports finished
	// runs to it. A fresh collector is created when nil.
	Metrics     *middleware.Metrics
	CORSOrigins string
	Logger      *slog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	metrics := deps.Metrics
	if metrics == nil {
		metrics = middleware.NewMetrics()
	}

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(metrics.Middleware())

	// CORS
	origins := strings.Split(deps.CORSOrigins, ",")
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Prometheus metrics
	r.Get("/metrics", metrics.Handler())

	publishHandler := management.NewPublishHandler(deps.PublishSvc, deps.Store, deps.Logger)
	runHandler := management.NewRunHandler(deps.PublishSvc)

	// CI API, used by build pipelines holding a CI token
	r.Route("/api/v1/ci", func(r chi.Router) {
		// Rate limit CI API: 10 req/s with burst of 20
		r.Use(middleware.RateLimit(10, 20))
		r.Use(middleware.CIAuth(deps.CITokens))
		r.Use(middleware.AuditLog(deps.AuditSvc))

		r.Post("/publish", publishHandler.Publish)
		r.Post("/tracks/{track}/assign", publishHandler.Assign)
		r.Get("/runs/{id}", runHandler.Get)
	})

	// Management API
	mgmtAuthHandler := management.NewAuthHandler(deps.JWTManager, deps.AuditSvc, deps.AdminEmail, deps.AdminPasswordHash)
	mgmtAuditHandler := management.NewAuditHandler(deps.AuditSvc)

	r.Route("/api/v1/management", func(r chi.Router) {
		// Rate limit management API: 30 req/s with burst of 60
		r.Use(middleware.RateLimit(30, 60))

		// Login (no auth required)
		r.Post("/auth/login", mgmtAuthHandler.Login)

		// Authenticated management endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.ManagementAuth(deps.JWTManager))
			r.Use(middleware.AuditLog(deps.AuditSvc))

			r.Post("/auth/refresh", mgmtAuthHandler.Refresh)

			// Publishing
			r.Post("/publish", publishHandler.Publish)
			r.Post("/tracks/{track}/assign", publishHandler.Assign)

			// Runs
			r.Get("/runs", runHandler.List)
			r.Get("/runs/statistics", runHandler.Stats)
			r.Get("/runs/{id}", runHandler.Get)
			r.Get("/runs/{id}/audit", mgmtAuditHandler.ListForRun)

			// Audit Log
			r.Get("/audit", mgmtAuditHandler.List)
		})
	})

	return r
}
