/*
handlers.go - HTTP handlers for the permit service

PURPOSE:
  Exposes the permit core over REST. Handlers own HTTP parsing, body
  validation, capability checks against the request principal, and the
  domain-error-to-status mapping; all business rules live in the domain
  packages.

ENDPOINTS:
  Auth:
    POST /api/auth/login          Authenticate, mint bearer token
    POST /api/auth/register       Create user (admin)
    GET  /api/auth/me             Resolve the caller

  Teachers:
    GET  /api/teachers            Roster (admin)
    GET  /api/teachers/{id}/days  Entitlement balances (admin or self)

  Permits:
    GET  /api/permits             All permits (admin) / own (teacher)
    POST /api/permits             Submit (teacher, self only)
    GET  /api/permits/{id}        Fetch (admin or owner)
    PUT  /api/permits/{id}/review Approve/reject (admin)

  Notifications:
    GET  /api/notifications              Own inbox, newest first
    GET  /api/notifications/unread_count Badge counter
    PUT  /api/notifications/{id}/read    Mark read (owner only)

  Reports:
    GET  /api/stats               Dashboard counters (admin)
    GET  /api/calendar            Occupancy for a date range (admin)

ERROR HANDLING:
  Domain errors map to statuses in writeDomainError:
  - 400 validation, 401 credentials, 403 forbidden, 404 not found,
    409 invalid transition / insufficient balance,
    422 invalid teacher state, 500 everything else.

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/permitdesk/permitdesk/auth"
	"github.com/permitdesk/permitdesk/domain"
	"github.com/permitdesk/permitdesk/entitlement"
	"github.com/permitdesk/permitdesk/notify"
	"github.com/permitdesk/permitdesk/permit"
	"github.com/permitdesk/permitdesk/report"
	"github.com/permitdesk/permitdesk/store/sqlite"
)

const dateLayout = "2006-01-02"

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Auth     *auth.Service
	Ledger   *permit.Ledger
	Reviews  *permit.Engine
	Balances *entitlement.Calculator
	Notices  *notify.Dispatcher
	Reports  *report.Facade
	Store    *sqlite.Store

	validate *validator.Validate
}

// NewHandler wires the full service around one store.
func NewHandler(store *sqlite.Store, authSvc *auth.Service) *Handler {
	balances := entitlement.NewCalculator()
	return &Handler{
		Auth:     authSvc,
		Ledger:   permit.NewLedger(store, store),
		Reviews:  permit.NewEngine(store, store, balances),
		Balances: balances,
		Notices:  notify.NewDispatcher(store),
		Reports:  report.NewFacade(store),
		Store:    store,
		validate: validator.New(),
	}
}

// decodeAndValidate parses the JSON body into dst and runs the
// validator. Writes the 400 itself and returns false on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Login authenticates an email/password pair.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	token, user, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: toUserDTO(user)})
}

// Register creates a roster entry on behalf of an administrator.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())

	var req RegisterRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	var hireDate time.Time
	if req.HireDate != "" {
		hireDate, _ = time.ParseInLocation(dateLayout, req.HireDate, time.UTC)
	}

	user, err := h.Auth.Register(r.Context(), principal, auth.NewUser{
		Email:        req.Email,
		Password:     req.Password,
		Name:         req.Name,
		Role:         domain.Role(req.Role),
		ContractType: domain.ContractType(req.ContractType),
		HireDate:     hireDate,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

// Me resolves the caller back into their roster record.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())

	user, err := h.Auth.Me(r.Context(), principal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// =============================================================================
// TEACHER HANDLERS
// =============================================================================

// ListTeachers returns the roster. Admin only.
func (h *Handler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	if !principal.IsReviewer() {
		writeDomainError(w, domain.ErrForbidden)
		return
	}

	teachers, err := h.Store.ListTeachers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list teachers", err)
		return
	}
	dtos := make([]UserDTO, len(teachers))
	for i, t := range teachers {
		dtos[i] = toUserDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTeacherDays returns a teacher's entitlement balances. Admins may
// query anyone; teachers only themselves.
func (h *Handler) GetTeacherDays(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	teacherID := chi.URLParam(r, "id")
	if !principal.IsReviewer() && principal.UserID != teacherID {
		writeDomainError(w, domain.ErrForbidden)
		return
	}

	teacher, err := h.Store.GetUser(r.Context(), teacherID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get teacher", err)
		return
	}
	if teacher == nil || !teacher.IsTeacher() {
		writeError(w, http.StatusNotFound, "Teacher not found", nil)
		return
	}

	approved, err := h.Store.ApprovedPermits(r.Context(), teacher.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load permits", err)
		return
	}
	balance, err := h.Balances.Calculate(*teacher, approved, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntitlementDTO(balance))
}

// =============================================================================
// PERMIT HANDLERS
// =============================================================================

// SubmitPermit files a new permit for the calling teacher.
func (h *Handler) SubmitPermit(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	if principal.Role != domain.RoleTeacher {
		writeDomainError(w, domain.ErrForbidden)
		return
	}

	var req SubmitPermitRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	start, _ := time.ParseInLocation(dateLayout, req.StartDate, time.UTC)
	end, _ := time.ParseInLocation(dateLayout, req.EndDate, time.UTC)

	p, err := h.Ledger.Submit(r.Context(), principal.UserID,
		domain.PermitType(req.PermitType), start, end, req.DaysRequested, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPermitDTO(p))
}

// ListPermits returns every permit for admins and the caller's own
// permits for teachers, newest first.
func (h *Handler) ListPermits(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())

	seq := h.Ledger.ListForTeacher(r.Context(), principal.UserID)
	if principal.IsReviewer() {
		seq = h.Ledger.ListAll(r.Context())
	}
	permits, err := permit.Collect(seq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list permits", err)
		return
	}

	dtos := make([]PermitDTO, len(permits))
	for i, p := range permits {
		dtos[i] = toPermitDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPermit returns one permit to its owner or an admin.
func (h *Handler) GetPermit(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())

	p, err := h.Ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !principal.IsReviewer() && p.TeacherID != principal.UserID {
		writeDomainError(w, domain.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, toPermitDTO(p))
}

// ReviewPermit applies an admin decision to a pending permit.
func (h *Handler) ReviewPermit(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())

	var req ReviewPermitRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	decision := permit.DecisionReject
	if req.Status == string(domain.StatusApproved) {
		decision = permit.DecisionApprove
	}

	p, err := h.Reviews.Review(r.Context(), chi.URLParam(r, "id"),
		principal.UserID, decision, req.RejectionReason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPermitDTO(p))
}

// =============================================================================
// NOTIFICATION HANDLERS
// =============================================================================

// ListNotifications returns the caller's inbox, newest first.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())

	notices, err := h.Notices.ListForRecipient(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list notifications", err)
		return
	}
	dtos := make([]NotificationDTO, len(notices))
	for i, n := range notices {
		dtos[i] = toNotificationDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UnreadCount returns the caller's unread badge counter.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())

	n, err := h.Notices.UnreadCount(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

// MarkNotificationRead flips the read flag on one of the caller's
// notifications.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())

	err := h.Notices.MarkRead(r.Context(), chi.URLParam(r, "id"), principal.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetStats returns the dashboard counters. Admin only.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	if !principal.IsReviewer() {
		writeDomainError(w, domain.ErrForbidden)
		return
	}

	stats, err := h.Reports.Stats(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetCalendar returns occupancy for ?from=YYYY-MM-DD&to=YYYY-MM-DD.
// Admin only.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	if !principal.IsReviewer() {
		writeDomainError(w, domain.ErrForbidden)
		return
	}

	from, err := time.ParseInLocation(dateLayout, r.URL.Query().Get("from"), time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := time.ParseInLocation(dateLayout, r.URL.Query().Get("to"), time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}

	occupancy, err := h.Reports.CalendarOccupancy(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	days := make([]CalendarDayDTO, 0, len(occupancy))
	for day, occupants := range occupancy {
		days = append(days, CalendarDayDTO{
			Date:     day.Format(dateLayout),
			Teachers: occupants,
		})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	writeJSON(w, http.StatusOK, days)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", nil)
	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", nil)
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Permit already reviewed", err)
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, "Insufficient balance", err)
	case errors.Is(err, domain.ErrInvalidTeacherState):
		writeError(w, http.StatusUnprocessableEntity, "Invalid teacher state", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
