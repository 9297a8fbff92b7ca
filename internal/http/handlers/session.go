package handlers

import (
	"net/http"
	"strings"

	"boongle/internal/domain"
	"boongle/internal/entitlement"
	"boongle/internal/session"
)

type signInRequest struct {
	AccessToken string `json:"access_token"`
}

type meResponse struct {
	Status             session.Status      `json:"status"`
	Session            *domain.Session     `json:"session,omitempty"`
	Profile            *domain.Profile     `json:"profile,omitempty"`
	Display            entitlement.Display `json:"display"`
	GenerationDisabled bool                `json:"generation_disabled"`
	Fallback           bool                `json:"fallback"`
	Warning            string              `json:"warning,omitempty"`
	HasCredential      bool                `json:"has_credential"`
	RequestID          string              `json:"request_id,omitempty"`
	Artifacts          int                 `json:"artifacts"`
}

// SignIn verifies the access token and makes it the held session. The
// coordinator picks the change up through its identity subscription.
func (a *App) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "access_token required")
		return
	}
	if _, err := a.Identity.SignIn(r.Context(), strings.TrimSpace(req.AccessToken)); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.me(a.Coordinator.State()))
}

func (a *App) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := a.Coordinator.SignOut(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.me(a.Coordinator.State()))
}

func (a *App) Refresh(w http.ResponseWriter, r *http.Request) {
	st, err := a.Coordinator.Refresh(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.me(st))
}

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

func (a *App) SetCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.Coordinator.SetCredential(r.Context(), req.APIKey); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) me(st session.State) meResponse {
	return meResponse{
		Status:             st.Status,
		Session:            st.Session,
		Profile:            st.Profile,
		Display:            entitlement.Describe(st.Profile, st.Status == session.StatusSignedIn),
		GenerationDisabled: a.Coordinator.GenerationDisabled(),
		Fallback:           st.Fallback,
		Warning:            st.Warning,
		HasCredential:      st.HasCredential,
		RequestID:          st.RequestID,
		Artifacts:          len(st.Artifacts),
	}
}
