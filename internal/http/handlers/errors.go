package handlers

import (
	"errors"
	"net/http"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/middleware"
)

// classify maps the domain taxonomy onto a status and an error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway, "upstream"
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, errCode := classify(err)
	body := errorBody{Code: errCode, Message: err.Error()}
	var stateErr *domain.StateConflictError
	if errors.As(err, &stateErr) {
		body.State = string(stateErr.State)
	}
	evt := a.Logger.Warn()
	if code >= http.StatusInternalServerError {
		evt = a.Logger.Error()
		// Store and driver details stay in the log.
		body.Message = http.StatusText(code)
	}
	evt.Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("path", r.URL.Path).
		Int("status", code).
		Msg("http: request failed")
	a.json(w, code, errorEnvelope{Error: body})
}
