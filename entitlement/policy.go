/*
policy.go - Pluggable seniority policies

PURPOSE:
  The seniority bonuses (extra vacation days and extra economic days for
  long tenure) are contract clauses owned by the institution, not by this
  engine. They are exposed as a strategy interface so a deployment can
  swap the formula without touching the calculator.

AVAILABLE POLICIES:
  ClauseSeniorityPolicy: The clause 57/62 rules as administered today.
  FlatSeniorityPolicy:   No tenure bonuses at all (useful in tests and
                         for hourly-only rosters).
*/
package entitlement

import (
	"github.com/permitdesk/permitdesk/domain"
	"github.com/shopspring/decimal"
)

// SeniorityPolicy computes tenure-dependent bonus days. Years of service
// is fractional (computed over 365.25-day years); policies decide how to
// round it.
type SeniorityPolicy interface {
	// VacationBonus returns the additional vacation days on top of the
	// two fixed periods.
	VacationBonus(contract domain.ContractType, years decimal.Decimal) int

	// EconomicBonus returns the additional economic days on top of the
	// base allotment.
	EconomicBonus(years decimal.Decimal) int
}

// =============================================================================
// CLAUSE POLICY - The rules as administered today
// =============================================================================

// ClauseSeniorityPolicy implements the current contract rules:
//   - Vacation bonus starts once service exceeds the fifth year: 5 days
//     flat, growing by one per full year beyond the fifth from the sixth
//     year on, capped at MaxVacationBonus. Hourly contracts earn no
//     bonus.
//   - Economic bonus is one day per complete ten-year tenure interval.
type ClauseSeniorityPolicy struct {
	BonusAfterYears    int64 // years of service that must be exceeded for any vacation bonus
	MaxVacationBonus   int64
	EconomicBonusEvery int64 // years per extra economic day
}

// NewClauseSeniorityPolicy returns the policy with the published
// constants (bonus after 5 years, cap 8 days, one economic day per
// decade).
func NewClauseSeniorityPolicy() *ClauseSeniorityPolicy {
	return &ClauseSeniorityPolicy{
		BonusAfterYears:    5,
		MaxVacationBonus:   8,
		EconomicBonusEvery: 10,
	}
}

func (p *ClauseSeniorityPolicy) VacationBonus(contract domain.ContractType, years decimal.Decimal) int {
	if contract == domain.ContractHourly {
		return 0
	}
	threshold := decimal.NewFromInt(p.BonusAfterYears)
	if !years.GreaterThan(threshold) {
		return 0
	}
	// 5 days plus one per full year beyond the fifth; between five and
	// six years the second term is zero, leaving the flat 5.
	bonus := p.BonusAfterYears + years.Sub(threshold).IntPart()
	if bonus > p.MaxVacationBonus {
		bonus = p.MaxVacationBonus
	}
	return int(bonus)
}

func (p *ClauseSeniorityPolicy) EconomicBonus(years decimal.Decimal) int {
	if p.EconomicBonusEvery <= 0 {
		return 0
	}
	return int(years.Div(decimal.NewFromInt(p.EconomicBonusEvery)).IntPart())
}

var _ SeniorityPolicy = (*ClauseSeniorityPolicy)(nil)

// =============================================================================
// FLAT POLICY - No tenure bonuses
// =============================================================================

// FlatSeniorityPolicy grants no bonus days regardless of tenure.
type FlatSeniorityPolicy struct{}

func (FlatSeniorityPolicy) VacationBonus(domain.ContractType, decimal.Decimal) int { return 0 }
func (FlatSeniorityPolicy) EconomicBonus(decimal.Decimal) int                      { return 0 }

var _ SeniorityPolicy = FlatSeniorityPolicy{}
