/*
Package domain defines the shared types for the teacher permit service.

PURPOSE:
  This package contains the entities every other package speaks in:
  users (administrators and teachers), permits (leave requests under the
  two contract clauses), notifications, and computed entitlements.
  It has no dependencies on storage or transport.

KEY CONCEPTS:
  - Permit: an append-only leave request with a pending/approved/rejected
    lifecycle. Terminal states never transition again.
  - Entitlement: a teacher's available leave days by category, always
    derived from hire date + the approved-permit history, never stored.
  - Permit categories are named after the contract clauses that govern
    them: vacation (clause 57) and economic days (clause 62).

SEE ALSO:
  - domain/errors.go: Error taxonomy shared by all components
  - entitlement: Balance computation
  - permit: Ledger and review engine
*/
package domain

import "time"

// =============================================================================
// USERS
// =============================================================================

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
)

type ContractType string

const (
	ContractFullTime ContractType = "full_time"
	ContractPartTime ContractType = "part_time"
	ContractHourly   ContractType = "hourly"
)

func (c ContractType) Valid() bool {
	switch c {
	case ContractFullTime, ContractPartTime, ContractHourly:
		return true
	}
	return false
}

// User is a principal known to the roster: an administrator or a teacher.
// ContractType and HireDate are only meaningful for teachers.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	ContractType ContractType
	HireDate     time.Time
	CreatedAt    time.Time
}

// IsReviewer reports whether the user may approve or reject permits.
func (u User) IsReviewer() bool { return u.Role == RoleAdmin }

func (u User) IsTeacher() bool { return u.Role == RoleTeacher }

// =============================================================================
// PERMITS
// =============================================================================

// PermitType identifies the contract clause a request draws days from.
type PermitType string

const (
	PermitVacation57 PermitType = "vacation_57"
	PermitEconomic62 PermitType = "economic_62"
)

func (t PermitType) Valid() bool {
	return t == PermitVacation57 || t == PermitEconomic62
}

type PermitStatus string

const (
	StatusPending  PermitStatus = "pending"
	StatusApproved PermitStatus = "approved"
	StatusRejected PermitStatus = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s PermitStatus) Terminal() bool { return s == StatusApproved || s == StatusRejected }

// Permit is a leave request. Permits are append-only: they are created
// pending by a teacher and mutated exactly once, by review. They are
// never deleted; the table is the audit trail.
type Permit struct {
	ID            string
	TeacherID     string
	TeacherName   string
	Type          PermitType
	StartDate     time.Time // date, midnight UTC; inclusive
	EndDate       time.Time // date, midnight UTC; inclusive
	DaysRequested int
	Reason        string
	Status        PermitStatus
	CreatedAt     time.Time

	// Set iff Status != pending.
	ReviewedBy string
	ReviewedAt *time.Time

	// Set iff Status == rejected. Empty string when no reason was given.
	RejectionReason string
}

// ActiveOn reports whether the permit's date range contains day.
// Both endpoints are inclusive.
func (p Permit) ActiveOn(day time.Time) bool {
	d := DateOf(day)
	return !d.Before(DateOf(p.StartDate)) && !d.After(DateOf(p.EndDate))
}

// DateOf truncates t to its calendar date at midnight UTC.
// All permit date arithmetic goes through this so that ranges compare
// by day regardless of the wall-clock component.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Notification is an inbox entry for a single recipient. The only
// mutation ever applied is flipping Read to true.
type Notification struct {
	ID          string
	RecipientID string
	Title       string
	Message     string
	Read        bool
	CreatedAt   time.Time
}

// =============================================================================
// ENTITLEMENT
// =============================================================================

// Entitlement holds a teacher's remaining leave days by category as of
// some instant. It is a pure projection of (teacher, approved permits,
// asOf) and is recomputed on every query; persisting it would let it
// drift from the ledger.
type Entitlement struct {
	VacationPeriod1    int
	VacationPeriod2    int
	VacationAdditional int
	EconomicDays       int
	TotalVacation      int
	TotalEconomic      int
}

// BalanceFor returns the available balance in the category the permit
// type draws from.
func (e Entitlement) BalanceFor(t PermitType) int {
	if t == PermitEconomic62 {
		return e.TotalEconomic
	}
	return e.TotalVacation
}
