package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/username/divtracker/src/apperrors"
	"github.com/username/divtracker/src/logger"
	"github.com/username/divtracker/src/security/validation"
	"github.com/username/divtracker/src/utils"
)

// errorResponse maps a service error to an HTTP status and a client-safe message.
func errorResponse(err error) (int, string) {
	var netErr net.Error
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, validation.SanitizeMessage(err.Error())
	case errors.Is(err, apperrors.ErrAuth):
		return http.StatusUnauthorized, "brokerage rejected the configured credentials"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "symbol not found"
	case errors.Is(err, apperrors.ErrRateLimited),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr) && netErr.Timeout():
		return http.StatusServiceUnavailable, "upstream temporarily unavailable, try again later"
	case errors.Is(err, apperrors.ErrUpstream):
		return http.StatusBadGateway, "upstream service error"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// sendServiceError logs err and writes the mapped JSON error response with the request ID.
func sendServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status, message := errorResponse(err)

	ev := logger.FromContext(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		ev = logger.FromContext(r.Context()).Error()
	}
	if sub, ok := GetSubjectFromContext(r.Context()); ok {
		ev = ev.Str("subject", sub)
	}
	ev.Err(err).Str("kind", apperrors.Kind(err)).Int("status", status).Msg(action + " failed")

	body := map[string]string{"error": message}
	if id, ok := GetRequestIDFromContext(r.Context()); ok {
		body["request_id"] = id
	}
	utils.SendJSON(w, status, body)
}
