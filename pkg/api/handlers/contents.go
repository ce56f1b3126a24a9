package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reelcache/reelcache/pkg/api/middleware"
	"github.com/reelcache/reelcache/pkg/models"
	"github.com/reelcache/reelcache/pkg/store"
)

// ContentHandler serves the catalog endpoints. Reads are open to any
// authenticated user; writes require the creator role.
type ContentHandler struct {
	store store.Store
}

// NewContentHandler creates a content handler.
func NewContentHandler(st store.Store) *ContentHandler {
	return &ContentHandler{store: st}
}

type contentRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	RemoteKey       string `json:"remote_key"`
	SizeBytes       int64  `json:"size_bytes"`
	DurationSeconds int    `json:"duration_seconds"`
	Published       bool   `json:"published"`
}

// List handles GET /api/v1/contents.
func (h *ContentHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	take := queryInt(r, "take", 20)

	items, total, err := h.store.ListContents(r.Context(), page, take)
	if err != nil {
		WriteError(w, err)
		return
	}

	// Viewers only see published entries; creators and admins see their
	// drafts too.
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil || !claims.IsCreator() {
		visible := items[:0]
		for _, c := range items {
			if c.Published {
				visible = append(visible, c)
			} else {
				total--
			}
		}
		items = visible
	}

	OK(w, &Page{Items: items, Total: total, Page: page, Take: take})
}

// Get handles GET /api/v1/contents/{id}.
func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	content, err := h.store.GetContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	if !content.Published && (claims == nil || !claims.IsCreator()) {
		WriteError(w, models.ErrContentNotFound)
		return
	}

	OK(w, content)
}

// Create handles POST /api/v1/contents.
func (h *ContentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid_body", "invalid JSON body")
		return
	}

	content := &models.Content{
		ID:              uuid.New().String(),
		Title:           req.Title,
		Description:     req.Description,
		CreatorID:       middleware.UserID(r.Context()),
		RemoteKey:       req.RemoteKey,
		SizeBytes:       req.SizeBytes,
		DurationSeconds: req.DurationSeconds,
		Published:       req.Published,
	}
	if err := content.Validate(); err != nil {
		BadRequest(w, "invalid_content", err.Error())
		return
	}

	if _, err := h.store.CreateContent(r.Context(), content); err != nil {
		WriteError(w, err)
		return
	}

	Created(w, content)
}

// Update handles PUT /api/v1/contents/{id}.
func (h *ContentHandler) Update(w http.ResponseWriter, r *http.Request) {
	content, err := h.store.GetContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil || (!claims.IsAdmin() && content.CreatorID != claims.UserID) {
		Error(w, http.StatusForbidden, "forbidden", "not the owner of this content", nil)
		return
	}

	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid_body", "invalid JSON body")
		return
	}

	content.Title = req.Title
	content.Description = req.Description
	content.RemoteKey = req.RemoteKey
	content.SizeBytes = req.SizeBytes
	content.DurationSeconds = req.DurationSeconds
	content.Published = req.Published
	if err := content.Validate(); err != nil {
		BadRequest(w, "invalid_content", err.Error())
		return
	}

	if err := h.store.UpdateContent(r.Context(), content); err != nil {
		WriteError(w, err)
		return
	}

	OK(w, content)
}

// Delete handles DELETE /api/v1/contents/{id}.
func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	content, err := h.store.GetContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil || (!claims.IsAdmin() && content.CreatorID != claims.UserID) {
		Error(w, http.StatusForbidden, "forbidden", "not the owner of this content", nil)
		return
	}

	if err := h.store.DeleteContent(r.Context(), content.ID); err != nil {
		WriteError(w, err)
		return
	}

	NoContent(w)
}
