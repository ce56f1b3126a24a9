package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reelcache/reelcache/pkg/quota"
	"github.com/reelcache/reelcache/pkg/store"
)

// AdminHandler serves account administration endpoints.
type AdminHandler struct {
	store  store.Store
	quotas *quota.Service
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(st store.Store, quotas *quota.Service) *AdminHandler {
	return &AdminHandler{store: st, quotas: quotas}
}

type grantQuotaRequest struct {
	Tier string `json:"tier"`
}

// GrantQuota handles PUT /api/v1/admin/users/{user_id}/quota. It provisions
// (or re-tiers) a user's storage entitlement from the configured tier map.
func (h *AdminHandler) GrantQuota(w http.ResponseWriter, r *http.Request) {
	var req grantQuotaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid_body", "invalid JSON body")
		return
	}
	if req.Tier == "" {
		BadRequest(w, "missing_field", "tier is required")
		return
	}

	userID := chi.URLParam(r, "user_id")
	if _, err := h.store.GetUserByID(r.Context(), userID); err != nil {
		WriteError(w, err)
		return
	}

	q, err := h.quotas.Grant(r.Context(), userID, req.Tier)
	if err != nil {
		WriteError(w, err)
		return
	}

	OK(w, q)
}
