package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/reelcache/reelcache/pkg/content"
	"github.com/reelcache/reelcache/pkg/store"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store     *store.GORMStore
	objects   content.ObjectStore
	startTime time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(st *store.GORMStore, objects content.ObjectStore) *HealthHandler {
	return &HealthHandler{store: st, objects: objects, startTime: time.Now()}
}

// Liveness handles GET /health - liveness probe. Always 200 while the
// process is serving.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	OK(w, map[string]any{
		"service":    "reelcache",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	})
}

// Readiness handles GET /health/ready - readiness probe. Checks the
// database and the remote object store.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{
		"database":       "ok",
		"object_storage": "ok",
	}
	healthy := true

	if err := h.store.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if err := h.objects.HealthCheck(ctx); err != nil {
		checks["object_storage"] = err.Error()
		healthy = false
	}

	if !healthy {
		Error(w, http.StatusServiceUnavailable, "not_ready", "dependency check failed", checks)
		return
	}
	OK(w, checks)
}
