/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model
  from the wire contract. Dates cross the wire as YYYY-MM-DD strings,
  timestamps as RFC 3339; permits and users are flattened into DTOs.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request structs carry validator/v10 tags; handlers run the shared
  validator before touching domain logic. Cross-field rules (date
  ordering, balances) stay in the domain packages.
*/
package api

import (
	"time"

	"github.com/permitdesk/permitdesk/domain"
	"github.com/permitdesk/permitdesk/report"
)

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

type RegisterRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8"`
	Name         string `json:"name" validate:"required"`
	Role         string `json:"role" validate:"required,oneof=admin teacher"`
	ContractType string `json:"contract_type" validate:"omitempty,oneof=full_time part_time hourly"`
	HireDate     string `json:"hire_date" validate:"omitempty,datetime=2006-01-02"`
}

// UserDTO represents a roster entry in API responses.
type UserDTO struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	ContractType string `json:"contract_type,omitempty"`
	HireDate     string `json:"hire_date,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

func toUserDTO(u domain.User) UserDTO {
	dto := UserDTO{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Role:         string(u.Role),
		ContractType: string(u.ContractType),
		CreatedAt:    u.CreatedAt.Format(time.RFC3339),
	}
	if !u.HireDate.IsZero() {
		dto.HireDate = u.HireDate.Format("2006-01-02")
	}
	return dto
}

// =============================================================================
// PERMITS
// =============================================================================

type SubmitPermitRequest struct {
	PermitType    string `json:"permit_type" validate:"required,oneof=vacation_57 economic_62"`
	StartDate     string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string `json:"end_date" validate:"required,datetime=2006-01-02"`
	DaysRequested int    `json:"days_requested" validate:"required,gt=0"`
	Reason        string `json:"reason" validate:"required"`
}

type ReviewPermitRequest struct {
	Status          string `json:"status" validate:"required,oneof=approved rejected"`
	RejectionReason string `json:"rejection_reason"`
}

// PermitDTO represents a permit in API responses.
type PermitDTO struct {
	ID              string `json:"id"`
	TeacherID       string `json:"teacher_id"`
	TeacherName     string `json:"teacher_name"`
	PermitType      string `json:"permit_type"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	DaysRequested   int    `json:"days_requested"`
	Reason          string `json:"reason"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
	ReviewedBy      string `json:"reviewed_by,omitempty"`
	ReviewedAt      string `json:"reviewed_at,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

func toPermitDTO(p domain.Permit) PermitDTO {
	dto := PermitDTO{
		ID:              p.ID,
		TeacherID:       p.TeacherID,
		TeacherName:     p.TeacherName,
		PermitType:      string(p.Type),
		StartDate:       p.StartDate.Format("2006-01-02"),
		EndDate:         p.EndDate.Format("2006-01-02"),
		DaysRequested:   p.DaysRequested,
		Reason:          p.Reason,
		Status:          string(p.Status),
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
		ReviewedBy:      p.ReviewedBy,
		RejectionReason: p.RejectionReason,
	}
	if p.ReviewedAt != nil {
		dto.ReviewedAt = p.ReviewedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// ENTITLEMENT / NOTIFICATIONS / REPORTS
// =============================================================================

// EntitlementDTO is the days-available view for one teacher.
type EntitlementDTO struct {
	VacationPeriod1    int `json:"vacation_period_1"`
	VacationPeriod2    int `json:"vacation_period_2"`
	VacationAdditional int `json:"vacation_additional"`
	EconomicDays       int `json:"economic_days"`
	TotalVacation      int `json:"total_vacation"`
	TotalEconomic      int `json:"total_economic"`
}

func toEntitlementDTO(e domain.Entitlement) EntitlementDTO {
	return EntitlementDTO(e)
}

// NotificationDTO represents an inbox entry.
type NotificationDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

func toNotificationDTO(n domain.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
}

// CalendarDayDTO is one occupied calendar day.
type CalendarDayDTO struct {
	Date     string            `json:"date"`
	Teachers []report.Occupant `json:"teachers"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
