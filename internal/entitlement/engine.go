// Package entitlement owns plan quotas: reset cycles, generations left,
// debits and plan claims. The functions in this file are pure; Ledger wraps
// them in store-backed read-compute-write sections.
package entitlement

import (
	"time"

	"boongle/internal/domain"
)

// Policy constants. These are fixed per plan and not configurable.
const (
	FreeAllotment    = 5
	ProAllotment     = 175
	PremiumVariants  = 2
	StandardVariants = 1

	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// DayOf returns the UTC calendar day stamp for t.
func DayOf(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// MonthOf returns the UTC calendar month stamp for t.
func MonthOf(t time.Time) string {
	return t.UTC().Format(monthLayout)
}

// Allowance is the number of generations a profile may still run.
type Allowance struct {
	Unlimited bool `json:"unlimited"`
	Remaining int  `json:"remaining"`
}

// Available reports whether at least one generation may run.
func (a Allowance) Available() bool {
	return a.Unlimited || a.Remaining > 0
}

// Reconcile applies the reset cycle of the active plan. It reports whether
// any field changed; a second call with the same now is a no-op.
func Reconcile(p domain.Profile, now time.Time) (domain.Profile, bool) {
	today := DayOf(now)
	month := MonthOf(now)
	changed := false

	switch p.ActivePlan {
	case domain.PlanFree:
		if p.LastFreeResetDate != today {
			p.FreeGenerationsLeft = FreeAllotment
			p.LastFreeResetDate = today
			changed = true
		}
	case domain.PlanPro:
		if p.LastProResetMonth != month {
			p.ProGenerationsLeft = ProAllotment
			p.LastProResetMonth = month
			changed = true
		}
	}
	return p, changed
}

// GenerationsLeft returns the allowance of the active plan. A nil profile has none.
func GenerationsLeft(p *domain.Profile) Allowance {
	if p == nil {
		return Allowance{}
	}
	switch p.ActivePlan {
	case domain.PlanPremium:
		return Allowance{Unlimited: true}
	case domain.PlanPro:
		return Allowance{Remaining: p.ProGenerationsLeft}
	default:
		return Allowance{Remaining: p.FreeGenerationsLeft}
	}
}

// CanGenerate reports whether the profile has quota for one more generation.
func CanGenerate(p *domain.Profile) bool {
	return GenerationsLeft(p).Available()
}

// Decrement debits one generation from the active plan's counter. PREMIUM is
// untouched. An empty counter is refused with ErrQuotaExceeded and the profile
// is returned unchanged.
func Decrement(p domain.Profile) (domain.Profile, error) {
	switch p.ActivePlan {
	case domain.PlanPremium:
		return p, nil
	case domain.PlanPro:
		if p.ProGenerationsLeft <= 0 {
			return p, domain.ErrQuotaExceeded
		}
		p.ProGenerationsLeft--
	default:
		if p.FreeGenerationsLeft <= 0 {
			return p, domain.ErrQuotaExceeded
		}
		p.FreeGenerationsLeft--
	}
	return p, nil
}

// ApplyPlanClaim switches the active plan and refills the counter that
// becomes active. Claiming PREMIUM keeps both counters as they are so a later
// downgrade finds them intact.
func ApplyPlanClaim(p domain.Profile, plan domain.Plan, now time.Time) (domain.Profile, error) {
	if !plan.Valid() {
		return p, domain.ErrInvalidPlan
	}
	p.ActivePlan = plan
	switch plan {
	case domain.PlanFree:
		p.FreeGenerationsLeft = FreeAllotment
		p.LastFreeResetDate = DayOf(now)
	case domain.PlanPro:
		p.ProGenerationsLeft = ProAllotment
		p.LastProResetMonth = MonthOf(now)
	}
	return p, nil
}

// Variants returns how many images one request produces under plan.
func Variants(plan domain.Plan) int {
	if plan == domain.PlanPremium {
		return PremiumVariants
	}
	return StandardVariants
}

// Fallback builds the local profile used while the stored record is missing.
func Fallback(userID, email string, now time.Time) domain.Profile {
	return domain.Profile{
		ID:                  userID,
		Email:               email,
		ActivePlan:          domain.PlanFree,
		FreeGenerationsLeft: FreeAllotment,
		LastFreeResetDate:   DayOf(now),
		ProGenerationsLeft:  ProAllotment,
		LastProResetMonth:   MonthOf(now),
	}
}

// Diff returns the minimal patch turning before into after.
func Diff(before, after domain.Profile) domain.ProfilePatch {
	var patch domain.ProfilePatch
	if before.Email != after.Email {
		patch.Email = &after.Email
	}
	if before.ActivePlan != after.ActivePlan {
		patch.ActivePlan = &after.ActivePlan
	}
	if before.FreeGenerationsLeft != after.FreeGenerationsLeft {
		patch.FreeGenerationsLeft = &after.FreeGenerationsLeft
	}
	if before.LastFreeResetDate != after.LastFreeResetDate {
		patch.LastFreeResetDate = &after.LastFreeResetDate
	}
	if before.ProGenerationsLeft != after.ProGenerationsLeft {
		patch.ProGenerationsLeft = &after.ProGenerationsLeft
	}
	if before.LastProResetMonth != after.LastProResetMonth {
		patch.LastProResetMonth = &after.LastProResetMonth
	}
	return patch
}
