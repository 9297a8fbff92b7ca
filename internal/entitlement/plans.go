package entitlement

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"boongle/internal/domain"
)

// Cycle names the reset period of a counter.
type Cycle string

const (
	CycleNone    Cycle = ""
	CycleDaily   Cycle = "daily"
	CycleMonthly Cycle = "monthly"
)

// PlanDetails is one entry of the pricing catalog.
type PlanDetails struct {
	Plan        domain.Plan `json:"plan"`
	Name        string      `json:"name"`
	Price       string      `json:"price,omitempty"`
	Features    []string    `json:"features"`
	Generations Allowance   `json:"generations"`
	ResetCycle  Cycle       `json:"reset_cycle,omitempty"`
	Variants    int         `json:"variants"`
	claimCode   string
}

var catalog = []PlanDetails{
	{
		Plan:        domain.PlanFree,
		Features:    []string{"5 Generations Daily", "Simple & Fast Generating"},
		Generations: Allowance{Remaining: FreeAllotment},
		ResetCycle:  CycleDaily,
		Variants:    StandardVariants,
	},
	{
		Plan:        domain.PlanPro,
		Price:       "$7.99 / month",
		Features:    []string{"175 Generations Monthly", "Advanced & Fast Gen"},
		Generations: Allowance{Remaining: ProAllotment},
		ResetCycle:  CycleMonthly,
		Variants:    StandardVariants,
		claimCode:   "6464",
	},
	{
		Plan:        domain.PlanPremium,
		Price:       "$14.99 / month",
		Features:    []string{"Always 2 generation results", "Unlimited Generations"},
		Generations: Allowance{Unlimited: true},
		Variants:    PremiumVariants,
		claimCode:   "3636",
	},
}

// Catalog returns the plan catalog in display order.
func Catalog() []PlanDetails {
	title := cases.Title(language.English)
	out := make([]PlanDetails, len(catalog))
	for i, p := range catalog {
		p.Name = title.String(strings.ToLower(string(p.Plan)))
		p.Features = append([]string(nil), p.Features...)
		out[i] = p
	}
	return out
}

// Details returns the catalog entry for plan.
func Details(plan domain.Plan) (PlanDetails, bool) {
	for _, p := range Catalog() {
		if p.Plan == plan {
			return p, true
		}
	}
	return PlanDetails{}, false
}

// PlanForClaimCode resolves a claim code to the plan it unlocks.
func PlanForClaimCode(code string) (domain.Plan, error) {
	code = strings.TrimSpace(code)
	if code != "" {
		for _, p := range catalog {
			if p.claimCode != "" && p.claimCode == code {
				return p.Plan, nil
			}
		}
	}
	return "", domain.ErrInvalidClaimCode
}

// CycleOf returns the reset cycle governing plan's counter.
func CycleOf(plan domain.Plan) Cycle {
	switch plan {
	case domain.PlanFree:
		return CycleDaily
	case domain.PlanPro:
		return CycleMonthly
	}
	return CycleNone
}

// Display is the derived entitlement value shown next to the prompt form.
type Display struct {
	SignedIn  bool        `json:"signed_in"`
	Plan      domain.Plan `json:"plan,omitempty"`
	PlanName  string      `json:"plan_name,omitempty"`
	Allowance Allowance   `json:"allowance"`
	Cycle     Cycle       `json:"cycle,omitempty"`
	Text      string      `json:"text"`
}

// Describe renders the entitlement display for the held profile.
func Describe(p *domain.Profile, signedIn bool) Display {
	if !signedIn || p == nil {
		return Display{SignedIn: signedIn, Text: "Log in to see your generations."}
	}
	d := Display{
		SignedIn:  true,
		Plan:      p.ActivePlan,
		Allowance: GenerationsLeft(p),
		Cycle:     CycleOf(p.ActivePlan),
	}
	if details, ok := Details(p.ActivePlan); ok {
		d.PlanName = details.Name
	}
	if d.Allowance.Unlimited {
		d.Text = "Unlimited Generations"
		return d
	}
	noun := "generations"
	if d.Allowance.Remaining == 1 {
		noun = "generation"
	}
	period := "today"
	if d.Cycle == CycleMonthly {
		period = "this month"
	}
	d.Text = fmt.Sprintf("%d %s left %s", d.Allowance.Remaining, noun, period)
	return d
}
