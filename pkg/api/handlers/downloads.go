package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/reelcache/reelcache/pkg/api/middleware"
	"github.com/reelcache/reelcache/pkg/download"
	"github.com/reelcache/reelcache/pkg/models"
	"github.com/reelcache/reelcache/pkg/quota"
)

// DownloadHandler serves the offline-copy lifecycle endpoints.
type DownloadHandler struct {
	downloads *download.Service
	quotas    *quota.Service
}

// NewDownloadHandler creates a download handler.
func NewDownloadHandler(downloads *download.Service, quotas *quota.Service) *DownloadHandler {
	return &DownloadHandler{downloads: downloads, quotas: quotas}
}

type createDownloadRequest struct {
	ContentID string `json:"content_id"`
	Quality   string `json:"quality"`
}

// Create handles POST /api/v1/downloads.
func (h *DownloadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid_body", "invalid JSON body")
		return
	}
	if req.ContentID == "" {
		BadRequest(w, "missing_field", "content_id is required")
		return
	}

	rec, err := h.downloads.Request(r.Context(), middleware.UserID(r.Context()), req.ContentID, req.Quality)
	if err != nil {
		WriteError(w, err)
		return
	}

	Created(w, rec)
}

// List handles GET /api/v1/downloads.
func (h *DownloadHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	take := queryInt(r, "take", 20)
	status := models.DownloadStatus(r.URL.Query().Get("status"))

	recs, total, err := h.downloads.List(r.Context(), middleware.UserID(r.Context()), status, page, take)
	if err != nil {
		WriteError(w, err)
		return
	}

	OK(w, &Page{Items: recs, Total: total, Page: page, Take: take})
}

// Progress handles GET /api/v1/downloads/{id}/progress.
func (h *DownloadHandler) Progress(w http.ResponseWriter, r *http.Request) {
	snap, err := h.downloads.Progress(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, snap)
}

// Pause handles PATCH /api/v1/downloads/{id}/pause.
func (h *DownloadHandler) Pause(w http.ResponseWriter, r *http.Request) {
	rec, err := h.downloads.Pause(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, rec)
}

// Resume handles PATCH /api/v1/downloads/{id}/resume.
func (h *DownloadHandler) Resume(w http.ResponseWriter, r *http.Request) {
	rec, err := h.downloads.Resume(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, rec)
}

// Cancel handles DELETE /api/v1/downloads/{id}.
func (h *DownloadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	rec, err := h.downloads.Cancel(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, rec)
}

// DeleteFile handles DELETE /api/v1/downloads/{id}/file: removes a completed
// copy and frees its quota.
func (h *DownloadHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	freed, err := h.downloads.Delete(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, map[string]any{"freed_storage_bytes": freed})
}

// Cleanup handles DELETE /api/v1/downloads/cleanup: removes every download
// the user has.
func (h *DownloadHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	result, err := h.downloads.DeleteAll(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, map[string]any{
		"deleted_count":       result.Deleted,
		"freed_storage_bytes": result.FreedBytes,
		"freed_storage":       result.Freed,
	})
}

// Quota handles GET /api/v1/downloads/quota: the storage snapshot plus the
// alert banner state.
func (h *DownloadHandler) Quota(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	snap, err := h.quotas.Snapshot(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}
	alert, err := h.quotas.AlertStatus(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	OK(w, map[string]any{"quota": snap, "alert": alert})
}

// Stream handles GET /api/v1/downloads/{id}/stream: HTTP Range playback of a
// completed local copy. http.ServeContent provides 206 partial content and
// If-Range handling.
func (h *DownloadHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rec, err := h.downloads.Get(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	if rec.Status != models.StatusCompleted || rec.LocalPath == "" {
		WriteError(w, &models.StateError{Current: rec.Status, Attempted: "stream"})
		return
	}

	f, err := os.Open(rec.LocalPath)
	if err != nil {
		if os.IsNotExist(err) {
			Error(w, http.StatusNotFound, models.ReasonNotFound, "local copy missing", nil)
			return
		}
		WriteError(w, err)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, rec.ContentID+".mp4", fi.ModTime(), f)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
