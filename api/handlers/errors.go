package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/Agents-Autonomous/billiondollarcontract/api/handlers/dberror"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
)

const (
	codeInvalidRequest   = "InvalidRequest"
	codeInvalidSignature = "InvalidSignature"
	codeUnavailable      = "Unavailable"
	codeInternal         = "Internal"
)

// StatusFor maps an operation error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, griderror.ErrBlockAlreadyClaimed),
		errors.Is(err, griderror.ErrNotInitialized),
		errors.Is(err, griderror.ErrAlreadyInitialized):
		return http.StatusConflict
	}
	switch griderror.Classify(err) {
	case griderror.ClassValidation:
		return http.StatusBadRequest
	case griderror.ClassAuthorization:
		return http.StatusForbidden
	case griderror.ClassArithmetic, griderror.ClassEconomic, griderror.ClassExternal:
		return http.StatusUnprocessableEntity
	case griderror.ClassNotFound:
		return http.StatusNotFound
	}
	if dberror.IsTransient(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err as an ErrorResponse. Untagged errors are logged and reported
// to Sentry; their details are not returned to the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	status := StatusFor(err)
	code := griderror.Code(err)
	message := err.Error()

	if code == codeInternal {
		h.log.Error("api: operation failed", "operation", op, "error", err)
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}
		message = dberror.UserMessage(err)
		if status == http.StatusServiceUnavailable {
			code = codeUnavailable
		}
	} else {
		h.log.Debug("api: operation rejected", "operation", op, "code", code, "error", err)
	}
	writeErrorCode(w, status, code, message)
}
