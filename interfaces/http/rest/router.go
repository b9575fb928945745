package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"catalog-staging/application/session"
	"catalog-staging/infrastructure/config"
	"catalog-staging/interfaces/http/rest/handlers"
	"catalog-staging/interfaces/http/rest/middleware"
	"catalog-staging/pkg/auth"
)

// devJWTSecret is used when no secret is configured. Config.Validate
// rejects an empty secret in production, so this only ever applies to
// local development.
const devJWTSecret = "local-development-secret"

// Router creates and configures the HTTP router
type Router struct {
	manager *session.Manager
	config  *config.Config
	logger  *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(manager *session.Manager, cfg *config.Config, logger *zap.Logger) *Router {
	return &Router{
		manager: manager,
		config:  cfg,
		logger:  logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() (http.Handler, error) {
	secret := rt.config.JWTSecret
	if secret == "" {
		secret = devJWTSecret
	}
	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SecretKey: secret,
		Issuer:    rt.config.JWTIssuer,
	})
	if err != nil {
		return nil, err
	}

	ipLimiter := auth.NewIPRateLimiter(rt.config.RequestsPerMinute)
	commitLimiter := auth.NewUserRateLimiter(rt.config.CommitRequestsPerMinute)

	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	if rt.config.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "https://*.my.salesforce.com"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	// API v1 routes
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(validator, ipLimiter, rt.logger))

		hierarchyHandler := handlers.NewHierarchyHandler(rt.manager, rt.logger)
		r.Route("/hierarchy", func(r chi.Router) {
			r.Get("/", hierarchyHandler.GetHierarchy)
			r.Post("/refresh", hierarchyHandler.Refresh)
		})

		changesHandler := handlers.NewChangesHandler(rt.manager, rt.logger)
		r.Route("/changes", func(r chi.Router) {
			r.Get("/", changesHandler.GetChanges)
			r.Delete("/", changesHandler.DiscardAll)

			r.Post("/field", changesHandler.RecordFieldChange)
			r.Post("/addition", changesHandler.RecordAddition)
			r.Post("/deletion", changesHandler.RecordDeletion)

			r.Delete("/{nodeID}", changesHandler.DiscardNode)
			r.Delete("/{nodeID}/field/{fieldName}", changesHandler.DiscardField)
			r.Post("/{nodeID}/undo-addition", changesHandler.UndoAddition)
			r.Post("/{nodeID}/undo-deletion", changesHandler.UndoDeletion)

			r.Post("/undo", changesHandler.Undo)
			r.Post("/redo", changesHandler.Redo)

			r.Post("/validate", changesHandler.Validate)
			r.With(middleware.LimitPerUser(commitLimiter)).
				Post("/commit", changesHandler.Commit)

			r.Get("/history", changesHandler.History)
		})
	})

	return router, nil
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
