package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/shohag/webhookd/internal/delivery"
	"github.com/shohag/webhookd/internal/ratelimit"
)

const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeInternal          = "INTERNAL_ERROR"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
	})
}

// writeDispatchError maps dispatcher errors onto HTTP responses.
func writeDispatchError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var exceeded *ratelimit.ExceededError
	switch {
	case errors.As(err, &exceeded):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(exceeded)))
		writeError(w, http.StatusTooManyRequests, CodeRateLimitExceeded, "rate limit exceeded, try again later")
	case errors.Is(err, delivery.ErrWorkspaceRequired),
		errors.Is(err, delivery.ErrEventTypeRequired),
		errors.Is(err, delivery.ErrWebhookIDRequired),
		errors.Is(err, delivery.ErrInvalidData):
		writeError(w, http.StatusBadRequest, CodeInvalidInput, err.Error())
	case errors.Is(err, delivery.ErrWebhookNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	default:
		log.Error().Err(err).Msg("dispatch failed")
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

func retryAfterSeconds(e *ratelimit.ExceededError) int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
