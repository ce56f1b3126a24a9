package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/reelcache/reelcache/internal/logger"
	"github.com/reelcache/reelcache/pkg/api/auth"
	"github.com/reelcache/reelcache/pkg/api/handlers"
	apimiddleware "github.com/reelcache/reelcache/pkg/api/middleware"
	"github.com/reelcache/reelcache/pkg/content"
	"github.com/reelcache/reelcache/pkg/download"
	"github.com/reelcache/reelcache/pkg/metrics"
	"github.com/reelcache/reelcache/pkg/quota"
	"github.com/reelcache/reelcache/pkg/store"
)

// RouterDeps carries everything the router needs to build the handlers.
type RouterDeps struct {
	Store     *store.GORMStore
	Objects   content.ObjectStore
	Downloads *download.Service
	Quotas    *quota.Service
	JWT       *auth.JWTService
	Metrics   *metrics.Registry
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /metrics - Prometheus metrics
//   - POST /api/v1/auth/login - User authentication
//   - POST /api/v1/auth/refresh - Token refresh
//   - GET /api/v1/auth/me - Current user info
//   - /api/v1/contents/* - Catalog (writes require creator role)
//   - /api/v1/downloads/* - Offline copy lifecycle
//   - /api/v1/favorites, /api/v1/notifications, /api/v1/tickets - Engagement
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.HTTP.Middleware)
	}

	healthHandler := handlers.NewHealthHandler(deps.Store, deps.Objects)
	authHandler := handlers.NewAuthHandler(deps.Store, deps.JWT)
	contentHandler := handlers.NewContentHandler(deps.Store)
	downloadHandler := handlers.NewDownloadHandler(deps.Downloads, deps.Quotas)
	engagementHandler := handlers.NewEngagementHandler(deps.Store)
	adminHandler := handlers.NewAdminHandler(deps.Store, deps.Quotas)

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics.Handler().ServeHTTP)
	}

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes - mostly unauthenticated
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(apimiddleware.JWTAuth(deps.JWT))
				r.Get("/me", authHandler.Me)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.JWTAuth(deps.JWT))

			// Catalog
			r.Route("/contents", func(r chi.Router) {
				r.Get("/", contentHandler.List)
				r.Get("/{id}", contentHandler.Get)
				r.Get("/{id}/ratings", engagementHandler.ListRatings)
				r.Put("/{id}/rating", engagementHandler.Rate)
				r.Put("/{id}/favorite", engagementHandler.AddFavorite)
				r.Delete("/{id}/favorite", engagementHandler.RemoveFavorite)

				r.Group(func(r chi.Router) {
					r.Use(apimiddleware.RequireCreator())

					r.Post("/", contentHandler.Create)
					r.Put("/{id}", contentHandler.Update)
					r.Delete("/{id}", contentHandler.Delete)
				})
			})

			// Offline copies
			r.Route("/downloads", func(r chi.Router) {
				r.Post("/", downloadHandler.Create)
				r.Get("/", downloadHandler.List)
				r.Get("/quota", downloadHandler.Quota)
				r.Delete("/cleanup", downloadHandler.Cleanup)
				r.Get("/{id}/progress", downloadHandler.Progress)
				r.Patch("/{id}/pause", downloadHandler.Pause)
				r.Patch("/{id}/resume", downloadHandler.Resume)
				r.Delete("/{id}", downloadHandler.Cancel)
				r.Delete("/{id}/file", downloadHandler.DeleteFile)
				r.Get("/{id}/stream", downloadHandler.Stream)
			})

			// Engagement
			r.Get("/favorites", engagementHandler.ListFavorites)
			r.Get("/notifications", engagementHandler.ListNotifications)
			r.Patch("/notifications/{id}/read", engagementHandler.MarkNotificationRead)

			r.Route("/tickets", func(r chi.Router) {
				r.Post("/", engagementHandler.CreateTicket)
				r.Get("/", engagementHandler.ListTickets)
				r.Get("/{id}", engagementHandler.GetTicket)
			})

			// Account administration
			r.Group(func(r chi.Router) {
				r.Use(apimiddleware.RequireAdmin())
				r.Put("/admin/users/{user_id}/quota", adminHandler.GrantQuota)
				r.Patch("/admin/tickets/{user_id}/{id}", engagementHandler.AnswerTicket)
			})
		})
	})

	return r
}

// requestLogger logs HTTP requests using the structured logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimiddleware.GetReqID(r.Context())

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}

		// Probe and scrape traffic stays at DEBUG to avoid polluting logs
		if isQuietPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}

func isQuietPath(path string) bool {
	return path == "/metrics" || path == "/health" || strings.HasPrefix(path, "/health/")
}
