package handlers

import (
	"errors"
	"net/http"

	"github.com/reelcache/reelcache/internal/logger"
	"github.com/reelcache/reelcache/pkg/models"
)

// WriteError maps a domain error onto the wire: status code, stable reason
// code and, where the error carries one, a structured data payload. Unknown
// errors become opaque 500s; their details go to the log, not the client.
func WriteError(w http.ResponseWriter, err error) {
	var (
		stateErr    *models.StateError
		conflictErr *models.ConflictError
		quotaErr    *models.QuotaExceededError
	)

	switch {
	case errors.As(err, &conflictErr):
		Error(w, http.StatusConflict, conflictErr.Reason(), conflictErr.Error(),
			map[string]any{"existing": conflictErr.Existing})

	case errors.As(err, &quotaErr):
		Error(w, http.StatusRequestEntityTooLarge, quotaErr.Reason(), quotaErr.Error(),
			map[string]any{
				"required_bytes":  quotaErr.Required,
				"available_bytes": quotaErr.Available,
				"required":        quotaErr.RequiredHuman,
				"available":       quotaErr.AvailableHuman,
			})

	case errors.As(err, &stateErr):
		Error(w, http.StatusBadRequest, stateErr.Reason(), stateErr.Error(),
			map[string]any{"current_status": stateErr.Current})

	case errors.Is(err, models.ErrQuotaNotFound):
		// No quota row means no download entitlement at all.
		Error(w, http.StatusForbidden, models.ReasonNoQuota, err.Error(), nil)

	case errors.Is(err, models.ErrContentUnpublished):
		Error(w, http.StatusNotFound, models.ReasonUnpublished, err.Error(), nil)

	case errors.Is(err, models.ErrUnknownQuality):
		BadRequest(w, models.ReasonUnknownQuality, err.Error())

	case errors.Is(err, models.ErrUnknownTier):
		BadRequest(w, models.ReasonUnknownTier, err.Error())

	case errors.Is(err, models.ErrInvalidStatusFilter):
		BadRequest(w, "invalid_status_filter", err.Error())

	case errors.Is(err, models.ErrContentNotFound),
		errors.Is(err, models.ErrDownloadNotFound),
		errors.Is(err, models.ErrUserNotFound),
		errors.Is(err, models.ErrRatingNotFound),
		errors.Is(err, models.ErrNotificationNotFound),
		errors.Is(err, models.ErrTicketNotFound):
		Error(w, http.StatusNotFound, models.ReasonNotFound, err.Error(), nil)

	case errors.Is(err, models.ErrDuplicateUser),
		errors.Is(err, models.ErrDuplicateContent):
		Error(w, http.StatusConflict, "duplicate", err.Error(), nil)

	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrUserDisabled):
		Error(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)

	default:
		logger.Error("Request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal", "internal server error", nil)
	}
}
