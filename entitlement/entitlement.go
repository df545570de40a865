/*
Package entitlement derives a teacher's available leave days.

PURPOSE:
  Computes how many vacation and economic days a teacher can still take,
  from hire date, contract type, and the approved-permit history. The
  calculator is a pure function of its inputs: no hidden state, so every
  balance is recomputable and auditable after the fact.

MODEL:
  Vacation (clause 57):
    period 1      fixed allotment (10 days)
    period 2      fixed allotment (10 days)
    additional    seniority bonus from the pluggable SeniorityPolicy
  Consumption by approved vacation permits cascades through period 1,
  then period 2, then the additional days.

  Economic (clause 62):
    base allotment (8 days) + seniority bonus, minus days consumed by
    approved economic permits in the current accounting period
    (the calendar year of asOf).

PRECISION:
  Tenure is computed as elapsed days over 365.25-day years using
  decimal arithmetic, so "6 full years" does not wobble around leap
  years the way float division would.

SEE ALSO:
  - policy.go: SeniorityPolicy strategies
  - permit: The review engine is the only caller that commits deductions
*/
package entitlement

import (
	"time"

	"github.com/permitdesk/permitdesk/domain"
	"github.com/shopspring/decimal"
)

// daysPerYear converts elapsed calendar days into years of service.
var daysPerYear = decimal.NewFromFloat(365.25)

// Calculator computes entitlements. The zero value is not usable; use
// NewCalculator.
type Calculator struct {
	// VacationPerPeriod is the fixed allotment of each of the two
	// vacation periods.
	VacationPerPeriod int

	// EconomicBase is the economic-day allotment before tenure bonuses.
	EconomicBase int

	// Seniority computes tenure-dependent bonus days.
	Seniority SeniorityPolicy
}

// NewCalculator returns a calculator with the published constants
// (10 days per vacation period, 8 base economic days) and the current
// clause seniority policy.
func NewCalculator() *Calculator {
	return &Calculator{
		VacationPerPeriod: 10,
		EconomicBase:      8,
		Seniority:         NewClauseSeniorityPolicy(),
	}
}

// Calculate derives the teacher's remaining balances as of asOf.
//
// approved must be the teacher's approved permits; entries with any
// other status or belonging to another teacher are ignored, so callers
// may pass a full history. Returns InvalidTeacherState when the roster
// data makes tenure meaningless (missing or future hire date, missing
// contract type).
func (c *Calculator) Calculate(teacher domain.User, approved []domain.Permit, asOf time.Time) (domain.Entitlement, error) {
	if teacher.HireDate.IsZero() {
		return domain.Entitlement{}, &domain.InvalidTeacherStateError{TeacherID: teacher.ID, Detail: "missing hire date"}
	}
	if teacher.HireDate.After(asOf) {
		return domain.Entitlement{}, &domain.InvalidTeacherStateError{TeacherID: teacher.ID, Detail: "hire date is in the future"}
	}
	if !teacher.ContractType.Valid() {
		return domain.Entitlement{}, &domain.InvalidTeacherStateError{TeacherID: teacher.ID, Detail: "missing contract type"}
	}

	years := yearsOfService(teacher.HireDate, asOf)

	period1 := c.VacationPerPeriod
	period2 := c.VacationPerPeriod
	additional := c.Seniority.VacationBonus(teacher.ContractType, years)
	economic := c.EconomicBase + c.Seniority.EconomicBonus(years)

	vacationUsed, economicUsed := consumedDays(teacher.ID, approved, periodStart(asOf))

	// Vacation consumption cascades: period 1 first, then period 2,
	// then the seniority days.
	remaining1 := clampFloor(period1 - vacationUsed)
	remaining2 := clampFloor(period2 - clampFloor(vacationUsed-period1))
	remainingAdd := clampFloor(additional - clampFloor(vacationUsed-period1-period2))

	return domain.Entitlement{
		VacationPeriod1:    remaining1,
		VacationPeriod2:    remaining2,
		VacationAdditional: remainingAdd,
		EconomicDays:       clampFloor(economic - economicUsed),
		TotalVacation:      clampFloor(period1 + period2 + additional - vacationUsed),
		TotalEconomic:      clampFloor(economic - economicUsed),
	}, nil
}

// yearsOfService returns fractional years between hire and asOf.
func yearsOfService(hire, asOf time.Time) decimal.Decimal {
	elapsed := asOf.Sub(hire)
	days := decimal.NewFromFloat(elapsed.Hours() / 24)
	return days.Div(daysPerYear)
}

// periodStart returns the start of the accounting period containing
// asOf. Economic-day consumption resets here; vacation consumption does
// not (vacation permits count against the allotment for their whole
// lifetime, matching how the clause is administered).
func periodStart(asOf time.Time) time.Time {
	return time.Date(asOf.UTC().Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

// consumedDays sums approved day counts per category for one teacher.
// Economic days only count when the permit starts inside the current
// accounting period.
func consumedDays(teacherID string, permits []domain.Permit, economicSince time.Time) (vacation, economic int) {
	for _, p := range permits {
		if p.TeacherID != teacherID || p.Status != domain.StatusApproved {
			continue
		}
		switch p.Type {
		case domain.PermitVacation57:
			vacation += p.DaysRequested
		case domain.PermitEconomic62:
			if !domain.DateOf(p.StartDate).Before(economicSince) {
				economic += p.DaysRequested
			}
		}
	}
	return vacation, economic
}

func clampFloor(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
