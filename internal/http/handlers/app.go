package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"boongle/internal/domain"
	"boongle/internal/identity"
	"boongle/internal/ids"
	"boongle/internal/session"
)

const maxBodyBytes = 1 << 20

// App holds the dependencies of the local API handlers.
type App struct {
	Coordinator *session.Coordinator
	Identity    *identity.Provider
	Logger      zerolog.Logger
}

func NewApp(coord *session.Coordinator, idp *identity.Provider, logger zerolog.Logger) *App {
	return &App{Coordinator: coord, Identity: idp, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error domain.Problem `json:"error"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Error: domain.Problem{Code: errCode, Message: message}})
}

// fail renders err with its problem code and the matching status.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	p := domain.Describe(err)
	code := statusFor(p.Code)
	event := a.Logger.Warn()
	if code >= http.StatusInternalServerError {
		event = a.Logger.Error()
	}
	event.Err(err).
		Str("request_id", ids.RequestIDFrom(r.Context())).
		Str("code", p.Code).
		Msg("request failed")
	a.json(w, code, errorResponse{Error: p})
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

func statusFor(code string) int {
	switch code {
	case "not_authenticated", "backend_credential", "auth_error":
		return http.StatusUnauthorized
	case "missing_credential":
		return http.StatusPreconditionRequired
	case "empty_prompt", "invalid_plan", "invalid_claim_code":
		return http.StatusBadRequest
	case "quota_exceeded":
		return http.StatusForbidden
	case "quota_race", "version_conflict":
		return http.StatusConflict
	case "no_results", "backend_error":
		return http.StatusBadGateway
	case "store_error", "profile_not_found":
		return http.StatusServiceUnavailable
	case "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
