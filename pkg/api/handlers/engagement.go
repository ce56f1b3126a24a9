package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelcache/reelcache/pkg/api/middleware"
	"github.com/reelcache/reelcache/pkg/models"
	"github.com/reelcache/reelcache/pkg/store"
)

// EngagementHandler serves ratings, favorites, notifications and support
// tickets.
type EngagementHandler struct {
	store store.Store
}

// NewEngagementHandler creates an engagement handler.
func NewEngagementHandler(st store.Store) *EngagementHandler {
	return &EngagementHandler{store: st}
}

type rateRequest struct {
	Stars   int    `json:"stars"`
	Comment string `json:"comment"`
}

// Rate handles PUT /api/v1/contents/{id}/rating: creates or replaces the
// caller's rating for the content.
func (h *EngagementHandler) Rate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid_body", "invalid JSON body")
		return
	}
	if req.Stars < 1 || req.Stars > 5 {
		BadRequest(w, "invalid_rating", "stars must be between 1 and 5")
		return
	}

	contentID := chi.URLParam(r, "id")
	if _, err := h.store.GetContent(r.Context(), contentID); err != nil {
		WriteError(w, err)
		return
	}

	rating := &models.Rating{
		UserID:    middleware.UserID(r.Context()),
		ContentID: contentID,
		Stars:     req.Stars,
		Comment:   req.Comment,
	}
	if err := h.store.UpsertRating(r.Context(), rating); err != nil {
		WriteError(w, err)
		return
	}

	OK(w, rating)
}

// ListRatings handles GET /api/v1/contents/{id}/ratings.
func (h *EngagementHandler) ListRatings(w http.ResponseWriter, r *http.Request) {
	ratings, err := h.store.ListRatings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, ratings)
}

// AddFavorite handles PUT /api/v1/contents/{id}/favorite. Adding an
// existing favorite is a no-op.
func (h *EngagementHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "id")
	if _, err := h.store.GetContent(r.Context(), contentID); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.store.AddFavorite(r.Context(), middleware.UserID(r.Context()), contentID); err != nil {
		WriteError(w, err)
		return
	}
	NoContent(w)
}

// RemoveFavorite handles DELETE /api/v1/contents/{id}/favorite.
func (h *EngagementHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	err := h.store.RemoveFavorite(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	NoContent(w)
}

// ListFavorites handles GET /api/v1/favorites.
func (h *EngagementHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	favs, err := h.store.ListFavorites(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, favs)
}

// ListNotifications handles GET /api/v1/notifications.
func (h *EngagementHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ns, err := h.store.ListNotifications(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, ns)
}

// MarkNotificationRead handles PATCH /api/v1/notifications/{id}/read.
func (h *EngagementHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	err := h.store.MarkNotificationRead(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "id"), time.Now())
	if err != nil {
		WriteError(w, err)
		return
	}
	NoContent(w)
}

type ticketRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// CreateTicket handles POST /api/v1/tickets.
func (h *EngagementHandler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid_body", "invalid JSON body")
		return
	}
	if req.Subject == "" {
		BadRequest(w, "missing_field", "subject is required")
		return
	}

	ticket := &models.SupportTicket{
		UserID:  middleware.UserID(r.Context()),
		Subject: req.Subject,
		Body:    req.Body,
	}
	if _, err := h.store.CreateTicket(r.Context(), ticket); err != nil {
		WriteError(w, err)
		return
	}

	Created(w, ticket)
}

// GetTicket handles GET /api/v1/tickets/{id}.
func (h *EngagementHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.store.GetTicket(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, ticket)
}

// ListTickets handles GET /api/v1/tickets.
func (h *EngagementHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.store.ListTickets(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, tickets)
}

type ticketAnswerRequest struct {
	Answer string              `json:"answer"`
	Status models.TicketStatus `json:"status"`
}

// AnswerTicket handles PATCH /api/v1/tickets/{id}: admin-only answer and
// status change.
func (h *EngagementHandler) AnswerTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid_body", "invalid JSON body")
		return
	}
	switch req.Status {
	case "", models.TicketOpen, models.TicketAnswered, models.TicketClosed:
	default:
		BadRequest(w, "invalid_status", "unknown ticket status")
		return
	}

	// Admins can answer any user's ticket, so load it unscoped.
	ticket, err := h.store.GetTicket(r.Context(), chi.URLParam(r, "user_id"), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}

	if req.Answer != "" {
		ticket.Answer = req.Answer
		if req.Status == "" {
			req.Status = models.TicketAnswered
		}
	}
	if req.Status != "" {
		ticket.Status = req.Status
	}

	if err := h.store.UpdateTicket(r.Context(), ticket); err != nil {
		WriteError(w, err)
		return
	}

	OK(w, ticket)
}
