package domain

import (
	"fmt"
	"strings"
	"time"
)

// Plan enumerates entitlement tiers.
type Plan string

const (
	PlanFree    Plan = "FREE"
	PlanPro     Plan = "PRO"
	PlanPremium Plan = "PREMIUM"
)

// Plans lists every supported plan in catalog order.
var Plans = []Plan{PlanFree, PlanPro, PlanPremium}

// ParsePlan normalizes free-form input into a supported plan.
func ParsePlan(s string) (Plan, error) {
	switch Plan(strings.ToUpper(strings.TrimSpace(s))) {
	case PlanFree:
		return PlanFree, nil
	case PlanPro:
		return PlanPro, nil
	case PlanPremium:
		return PlanPremium, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPlan, s)
}

// Valid reports whether p is one of the supported plans.
func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanPro || p == PlanPremium
}

// Profile is the per-user usage record kept by the profile store.
type Profile struct {
	ID                  string    `json:"id"`
	Email               string    `json:"email,omitempty"`
	ActivePlan          Plan      `json:"active_plan"`
	FreeGenerationsLeft int       `json:"free_generations_left"`
	LastFreeResetDate   string    `json:"last_free_reset_date"`
	ProGenerationsLeft  int       `json:"pro_generations_left"`
	LastProResetMonth   string    `json:"last_pro_reset_month_year"`
	Version             int64     `json:"version"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ProfilePatch is a field-level update. Nil fields are left untouched.
type ProfilePatch struct {
	Email               *string
	ActivePlan          *Plan
	FreeGenerationsLeft *int
	LastFreeResetDate   *string
	ProGenerationsLeft  *int
	LastProResetMonth   *string

	// IfVersion turns the update into a compare-and-swap on Profile.Version.
	IfVersion *int64
}

// Empty reports whether the patch changes no field.
func (p ProfilePatch) Empty() bool {
	return p.Email == nil && p.ActivePlan == nil &&
		p.FreeGenerationsLeft == nil && p.LastFreeResetDate == nil &&
		p.ProGenerationsLeft == nil && p.LastProResetMonth == nil
}

// Apply returns a copy of profile with the patch fields applied.
func (p ProfilePatch) Apply(profile Profile) Profile {
	if p.Email != nil {
		profile.Email = *p.Email
	}
	if p.ActivePlan != nil {
		profile.ActivePlan = *p.ActivePlan
	}
	if p.FreeGenerationsLeft != nil {
		profile.FreeGenerationsLeft = *p.FreeGenerationsLeft
	}
	if p.LastFreeResetDate != nil {
		profile.LastFreeResetDate = *p.LastFreeResetDate
	}
	if p.ProGenerationsLeft != nil {
		profile.ProGenerationsLeft = *p.ProGenerationsLeft
	}
	if p.LastProResetMonth != nil {
		profile.LastProResetMonth = *p.LastProResetMonth
	}
	return profile
}

// Session is the identity currently signed in.
type Session struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}
