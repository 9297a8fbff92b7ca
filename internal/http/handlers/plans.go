package handlers

import (
	"net/http"
	"strings"

	"boongle/internal/domain"
	"boongle/internal/entitlement"
)

func (a *App) Plans(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": entitlement.Catalog()})
}

type claimRequest struct {
	Plan string `json:"plan"`
	Code string `json:"code"`
}

// ClaimPlan switches plans by name or by claim code. A code wins when both
// are sent.
func (a *App) ClaimPlan(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !a.decode(w, r, &req) {
		return
	}
	var (
		profile *domain.Profile
		err     error
	)
	switch {
	case strings.TrimSpace(req.Code) != "":
		profile, err = a.Coordinator.ClaimCode(r.Context(), req.Code)
	case strings.TrimSpace(req.Plan) != "":
		var plan domain.Plan
		plan, err = domain.ParsePlan(req.Plan)
		if err == nil {
			profile, err = a.Coordinator.ClaimPlan(r.Context(), plan)
		}
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "plan or code required")
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"profile": profile,
		"display": entitlement.Describe(profile, true),
	})
}
