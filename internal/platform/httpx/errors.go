package httpx

import (
	"errors"
	"net/http"

	"github.com/aluga-erp/aluga/internal/shared"
)

// ErrValidation marks malformed request input detected by handlers.
var ErrValidation = errors.New("validation failed")

var problemTitles = map[int]string{
	http.StatusNotFound:            "Not Found",
	http.StatusBadRequest:          "Validation Failed",
	http.StatusConflict:            "Conflict",
	http.StatusServiceUnavailable:  "Busy",
	http.StatusInternalServerError: "Internal Error",
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrShareIntegrity),
		errors.Is(err, shared.ErrPrimaryDesignation),
		errors.Is(err, shared.ErrNoParticipants):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrSettlementLocked), errors.Is(err, shared.ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrLockNotObtained):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Integrity failures keep the full message so operators see the contract and
// offending figures. Internal errors carry no detail.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusInternalServerError:
		Problem(w, status, problemTitles[status], "")
	case http.StatusUnprocessableEntity:
		Problem(w, status, integrityTitle(err), err.Error())
	default:
		Problem(w, status, problemTitles[status], err.Error())
	}
}

func integrityTitle(err error) string {
	switch {
	case errors.Is(err, shared.ErrShareIntegrity):
		return "Share Integrity Violated"
	case errors.Is(err, shared.ErrPrimaryDesignation):
		return "Primary Designation Invalid"
	default:
		return "No Participants"
	}
}
