package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/splitopus/splitopus/internal/auth"
	"github.com/splitopus/splitopus/internal/notify"
	"github.com/splitopus/splitopus/internal/service"
	"github.com/splitopus/splitopus/internal/settlement"
	"github.com/splitopus/splitopus/internal/storage"
	"github.com/splitopus/splitopus/internal/telegram"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

// errorStatus maps service, storage and engine errors to an HTTP status
// and a message safe to show to the client.
func errorStatus(err error) (int, string) {
	var (
		unknownMember *settlement.UnknownMemberError
		invalidSplit  *settlement.InvalidSplitError
		invalidLink   *settlement.InvalidLinkError
		unbalanced    *settlement.UnbalancedInputError
		mismatch      *settlement.SettlementMismatchError
		duplicate     *settlement.DuplicateMemberError
	)

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, notify.ErrCooldown):
		return http.StatusTooManyRequests, "debts were sent recently, try again later"
	case errors.Is(err, service.ErrNotificationsDisabled),
		errors.Is(err, telegram.ErrNotConfigured):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidInitData),
		errors.Is(err, auth.ErrExpiredInitData):
		return http.StatusUnauthorized, err.Error()
	case errors.As(err, &unbalanced), errors.As(err, &mismatch):
		return http.StatusInternalServerError, "internal server error"
	case errors.As(err, &unknownMember),
		errors.As(err, &invalidSplit),
		errors.As(err, &invalidLink),
		errors.As(err, &duplicate):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// fail writes the error response for err. Server errors are logged with the
// full error, which is never sent to the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		var unbalanced *settlement.UnbalancedInputError
		if errors.As(err, &unbalanced) {
			h.logger.Error("Settlement invariant violated",
				"path", r.URL.Path,
				"sum", unbalanced.Sum.String(),
				"balances", unbalanced.Balances,
			)
		} else {
			h.logger.Error("Request failed", "path", r.URL.Path, "error", err)
		}
	}
	writeError(w, status, message)
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	h.fail(w, r, err)
}
