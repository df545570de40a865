package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/permitdesk/permitdesk/api"
	"github.com/permitdesk/permitdesk/auth"
	"github.com/permitdesk/permitdesk/domain"
	"github.com/permitdesk/permitdesk/notify"
	"github.com/permitdesk/permitdesk/report"
	"github.com/permitdesk/permitdesk/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	adminEmail    = "ana@example.edu"
	adminPassword = "super-secreta"
)

type testServer struct {
	*httptest.Server
	store *sqlite.Store
}

// newTestServer boots the full HTTP stack on an in-memory store and
// seeds the bootstrap admin account.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	authSvc := auth.NewService(store, "test-secret", time.Hour, notify.Build)
	h := api.NewHandler(store, authSvc)
	srv := httptest.NewServer(api.NewRouter(h, []string{"*"}))
	t.Cleanup(srv.Close)

	hash, err := auth.HashPassword(adminPassword)
	require.NoError(t, err)
	admin := domain.User{
		ID:        "admin-1",
		Email:     adminEmail,
		Name:      "Ana Admin",
		Role:      domain.RoleAdmin,
		CreatedAt: time.Now().UTC(),
	}
	welcome := notify.Build(admin.ID, "Cuenta creada", "Bienvenida Ana")
	require.NoError(t, store.InsertUser(context.Background(), admin, hash, welcome))

	return &testServer{Server: srv, store: store}
}

// do performs a JSON request and decodes the response into out when
// out is non-nil. An empty token sends no Authorization header.
func (ts *testServer) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) login(t *testing.T, email, password string) (string, api.UserDTO) {
	t.Helper()
	var resp api.LoginResponse
	code := ts.do(t, http.MethodPost, "/api/auth/login", "",
		api.LoginRequest{Email: email, Password: password}, &resp)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.User
}

// registerTeacher creates a teacher via the API and returns their DTO
// plus a logged-in token.
func (ts *testServer) registerTeacher(t *testing.T, adminToken, email string, yearsAgo int) (api.UserDTO, string) {
	t.Helper()
	hireDate := time.Now().UTC().AddDate(-yearsAgo, -1, 0).Format("2006-01-02")
	var dto api.UserDTO
	code := ts.do(t, http.MethodPost, "/api/auth/register", adminToken, api.RegisterRequest{
		Email:        email,
		Password:     "contrasena",
		Name:         "Carlos Docente",
		Role:         "teacher",
		ContractType: "full_time",
		HireDate:     hireDate,
	}, &dto)
	require.Equal(t, http.StatusCreated, code)

	token, _ := ts.login(t, email, "contrasena")
	return dto, token
}

// =============================================================================
// END TO END
// =============================================================================

func TestAPI_FullPermitLifecycle(t *testing.T) {
	// GIVEN: A freshly booted service with one admin
	// WHEN: The admin registers a teacher, the teacher submits a request,
	//       the admin approves it
	// THEN: Balances, notifications, stats, and calendar all reflect it

	ts := newTestServer(t)
	adminToken, adminUser := ts.login(t, adminEmail, adminPassword)
	teacher, teacherToken := ts.registerTeacher(t, adminToken, "carlos@example.edu", 11)

	// The teacher starts with the full 11-year entitlement.
	var days api.EntitlementDTO
	code := ts.do(t, http.MethodGet, "/api/teachers/"+teacher.ID+"/days", teacherToken, nil, &days)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, api.EntitlementDTO{
		VacationPeriod1:    10,
		VacationPeriod2:    10,
		VacationAdditional: 8,
		EconomicDays:       9,
		TotalVacation:      28,
		TotalEconomic:      9,
	}, days)

	// Submit a 5-day vacation request.
	today := time.Now().UTC()
	start := today.AddDate(0, 0, 14).Format("2006-01-02")
	end := today.AddDate(0, 0, 18).Format("2006-01-02")
	var submitted api.PermitDTO
	code = ts.do(t, http.MethodPost, "/api/permits", teacherToken, api.SubmitPermitRequest{
		PermitType:    "vacation_57",
		StartDate:     start,
		EndDate:       end,
		DaysRequested: 5,
		Reason:        "asuntos familiares",
	}, &submitted)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "pending", submitted.Status)
	assert.Equal(t, teacher.ID, submitted.TeacherID)

	// The admin sees the pending request in the global list and in stats.
	var allPermits []api.PermitDTO
	code = ts.do(t, http.MethodGet, "/api/permits", adminToken, nil, &allPermits)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, allPermits, 1)

	var stats report.Stats
	code = ts.do(t, http.MethodGet, "/api/stats", adminToken, nil, &stats)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, stats.TotalTeachers)
	assert.Equal(t, 1, stats.PendingRequests)

	// The admin was notified of the submission.
	var adminInbox []api.NotificationDTO
	code = ts.do(t, http.MethodGet, "/api/notifications", adminToken, nil, &adminInbox)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, adminInbox)
	assert.Equal(t, "Nueva solicitud de permiso", adminInbox[0].Title)

	// Approve.
	var reviewed api.PermitDTO
	code = ts.do(t, http.MethodPut, "/api/permits/"+submitted.ID+"/review", adminToken,
		api.ReviewPermitRequest{Status: "approved"}, &reviewed)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "approved", reviewed.Status)
	assert.Equal(t, adminUser.ID, reviewed.ReviewedBy)
	assert.NotEmpty(t, reviewed.ReviewedAt)

	// Balance dropped by five days, first period first.
	code = ts.do(t, http.MethodGet, "/api/teachers/"+teacher.ID+"/days", teacherToken, nil, &days)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 5, days.VacationPeriod1)
	assert.Equal(t, 23, days.TotalVacation)

	// The teacher was notified and can badge and clear the inbox.
	var teacherInbox []api.NotificationDTO
	code = ts.do(t, http.MethodGet, "/api/notifications", teacherToken, nil, &teacherInbox)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, teacherInbox)
	assert.Equal(t, "Solicitud aprobada", teacherInbox[0].Title)

	var badge map[string]int
	code = ts.do(t, http.MethodGet, "/api/notifications/unread_count", teacherToken, nil, &badge)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, badge["unread"]) // welcome + approval

	var marked map[string]bool
	code = ts.do(t, http.MethodPut, "/api/notifications/"+teacherInbox[0].ID+"/read", teacherToken, nil, &marked)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, marked["success"])

	code = ts.do(t, http.MethodGet, "/api/notifications/unread_count", teacherToken, nil, &badge)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, badge["unread"])

	// The calendar shows the absence on every covered day.
	var calendar []api.CalendarDayDTO
	code = ts.do(t, http.MethodGet, "/api/calendar?from="+start+"&to="+end, adminToken, nil, &calendar)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, calendar, 5)
	assert.Equal(t, start, calendar[0].Date)
	require.Len(t, calendar[0].Teachers, 1)
	assert.Equal(t, teacher.ID, calendar[0].Teachers[0].TeacherID)
}

func TestAPI_RejectionFlow(t *testing.T) {
	ts := newTestServer(t)
	adminToken, _ := ts.login(t, adminEmail, adminPassword)
	_, teacherToken := ts.registerTeacher(t, adminToken, "carlos@example.edu", 3)

	start := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
	var submitted api.PermitDTO
	code := ts.do(t, http.MethodPost, "/api/permits", teacherToken, api.SubmitPermitRequest{
		PermitType:    "economic_62",
		StartDate:     start,
		EndDate:       start,
		DaysRequested: 1,
		Reason:        "trámite personal",
	}, &submitted)
	require.Equal(t, http.StatusCreated, code)

	var reviewed api.PermitDTO
	code = ts.do(t, http.MethodPut, "/api/permits/"+submitted.ID+"/review", adminToken,
		api.ReviewPermitRequest{Status: "rejected", RejectionReason: "no hay cobertura"}, &reviewed)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "rejected", reviewed.Status)
	assert.Equal(t, "no hay cobertura", reviewed.RejectionReason)

	// A second review of the same permit conflicts.
	code = ts.do(t, http.MethodPut, "/api/permits/"+submitted.ID+"/review", adminToken,
		api.ReviewPermitRequest{Status: "approved"}, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestRouter_RequestIDRunsBeforeLogger(t *testing.T) {
	// Log lines only carry the request id if RequestID is installed
	// ahead of Logger in the stack.

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	authSvc := auth.NewService(store, "test-secret", time.Hour, notify.Build)
	r := api.NewRouter(api.NewHandler(store, authSvc), []string{"*"})

	mws := r.Middlewares()
	require.NotEmpty(t, mws)
	assert.Equal(t,
		reflect.ValueOf(middleware.RequestID).Pointer(),
		reflect.ValueOf(mws[0]).Pointer(),
		"RequestID must be the outermost middleware")
}

// =============================================================================
// AUTHENTICATION AND CAPABILITY CHECKS
// =============================================================================

func TestAPI_RequiresToken(t *testing.T) {
	ts := newTestServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodGet, "/api/permits"},
		{http.MethodGet, "/api/teachers"},
		{http.MethodGet, "/api/notifications"},
		{http.MethodGet, "/api/stats"},
	}
	for _, p := range paths {
		t.Run(fmt.Sprintf("%s %s", p.method, p.path), func(t *testing.T) {
			code := ts.do(t, p.method, p.path, "", nil, nil)
			assert.Equal(t, http.StatusUnauthorized, code)
		})
	}

	code := ts.do(t, http.MethodGet, "/api/permits", "not-a-valid-token", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAPI_Login_BadCredentials(t *testing.T) {
	ts := newTestServer(t)

	code := ts.do(t, http.MethodPost, "/api/auth/login", "",
		api.LoginRequest{Email: adminEmail, Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAPI_TeacherCapabilities(t *testing.T) {
	ts := newTestServer(t)
	adminToken, _ := ts.login(t, adminEmail, adminPassword)
	_, teacherToken := ts.registerTeacher(t, adminToken, "carlos@example.edu", 3)
	other, otherToken := ts.registerTeacher(t, adminToken, "diana@example.edu", 5)

	t.Run("cannot register users", func(t *testing.T) {
		code := ts.do(t, http.MethodPost, "/api/auth/register", teacherToken, api.RegisterRequest{
			Email:    "eva@example.edu",
			Password: "contrasena",
			Name:     "Eva",
			Role:     "admin",
		}, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("cannot list the roster", func(t *testing.T) {
		code := ts.do(t, http.MethodGet, "/api/teachers", teacherToken, nil, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("cannot read another teacher's days", func(t *testing.T) {
		code := ts.do(t, http.MethodGet, "/api/teachers/"+other.ID+"/days", teacherToken, nil, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("cannot review permits", func(t *testing.T) {
		start := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
		var submitted api.PermitDTO
		code := ts.do(t, http.MethodPost, "/api/permits", teacherToken, api.SubmitPermitRequest{
			PermitType:    "vacation_57",
			StartDate:     start,
			EndDate:       start,
			DaysRequested: 1,
			Reason:        "x",
		}, &submitted)
		require.Equal(t, http.StatusCreated, code)

		code = ts.do(t, http.MethodPut, "/api/permits/"+submitted.ID+"/review", teacherToken,
			api.ReviewPermitRequest{Status: "approved"}, nil)
		assert.Equal(t, http.StatusForbidden, code)

		t.Run("nor read a foreign permit", func(t *testing.T) {
			code := ts.do(t, http.MethodGet, "/api/permits/"+submitted.ID, otherToken, nil, nil)
			assert.Equal(t, http.StatusForbidden, code)
		})

		t.Run("list shows only their own", func(t *testing.T) {
			var own []api.PermitDTO
			code := ts.do(t, http.MethodGet, "/api/permits", otherToken, nil, &own)
			require.Equal(t, http.StatusOK, code)
			assert.Empty(t, own)
		})
	})

	t.Run("cannot read stats or calendar", func(t *testing.T) {
		code := ts.do(t, http.MethodGet, "/api/stats", teacherToken, nil, nil)
		assert.Equal(t, http.StatusForbidden, code)

		code = ts.do(t, http.MethodGet, "/api/calendar?from=2026-01-01&to=2026-01-31", teacherToken, nil, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("admin cannot submit permits", func(t *testing.T) {
		start := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
		code := ts.do(t, http.MethodPost, "/api/permits", adminToken, api.SubmitPermitRequest{
			PermitType:    "vacation_57",
			StartDate:     start,
			EndDate:       start,
			DaysRequested: 1,
			Reason:        "x",
		}, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})
}

// =============================================================================
// VALIDATION AND ERROR MAPPING
// =============================================================================

func TestAPI_SubmitValidation(t *testing.T) {
	ts := newTestServer(t)
	adminToken, _ := ts.login(t, adminEmail, adminPassword)
	_, teacherToken := ts.registerTeacher(t, adminToken, "carlos@example.edu", 3)

	cases := []struct {
		name string
		req  api.SubmitPermitRequest
	}{
		{"unknown type", api.SubmitPermitRequest{PermitType: "sabbatical", StartDate: "2026-07-01", EndDate: "2026-07-02", DaysRequested: 2, Reason: "x"}},
		{"bad date format", api.SubmitPermitRequest{PermitType: "vacation_57", StartDate: "01/07/2026", EndDate: "2026-07-02", DaysRequested: 2, Reason: "x"}},
		{"zero days", api.SubmitPermitRequest{PermitType: "vacation_57", StartDate: "2026-07-01", EndDate: "2026-07-02", DaysRequested: 0, Reason: "x"}},
		{"missing reason", api.SubmitPermitRequest{PermitType: "vacation_57", StartDate: "2026-07-01", EndDate: "2026-07-02", DaysRequested: 2}},
		{"inverted range", api.SubmitPermitRequest{PermitType: "vacation_57", StartDate: "2026-07-05", EndDate: "2026-07-01", DaysRequested: 2, Reason: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code := ts.do(t, http.MethodPost, "/api/permits", teacherToken, tc.req, nil)
			assert.Equal(t, http.StatusBadRequest, code)
		})
	}
}

func TestAPI_NotFound(t *testing.T) {
	ts := newTestServer(t)
	adminToken, _ := ts.login(t, adminEmail, adminPassword)

	code := ts.do(t, http.MethodGet, "/api/permits/no-such-id", adminToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code = ts.do(t, http.MethodGet, "/api/teachers/no-such-id/days", adminToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	// An admin id is not a teacher id for entitlement purposes.
	code = ts.do(t, http.MethodGet, "/api/teachers/admin-1/days", adminToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAPI_InsufficientBalanceConflict(t *testing.T) {
	ts := newTestServer(t)
	adminToken, _ := ts.login(t, adminEmail, adminPassword)
	_, teacherToken := ts.registerTeacher(t, adminToken, "carlos@example.edu", 3)

	submit := func(days int) api.PermitDTO {
		s := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
		e := time.Now().UTC().AddDate(0, 0, 7+days-1).Format("2006-01-02")
		var p api.PermitDTO
		code := ts.do(t, http.MethodPost, "/api/permits", teacherToken, api.SubmitPermitRequest{
			PermitType:    "economic_62",
			StartDate:     s,
			EndDate:       e,
			DaysRequested: days,
			Reason:        "trámite",
		}, &p)
		require.Equal(t, http.StatusCreated, code)
		return p
	}

	// Burn the whole 8-day economic allotment, then ask for one more.
	full := submit(8)
	code := ts.do(t, http.MethodPut, "/api/permits/"+full.ID+"/review", adminToken,
		api.ReviewPermitRequest{Status: "approved"}, nil)
	require.Equal(t, http.StatusOK, code)

	extra := submit(1)
	code = ts.do(t, http.MethodPut, "/api/permits/"+extra.ID+"/review", adminToken,
		api.ReviewPermitRequest{Status: "approved"}, nil)
	assert.Equal(t, http.StatusConflict, code)

	// The refused permit is still pending.
	var p api.PermitDTO
	code = ts.do(t, http.MethodGet, "/api/permits/"+extra.ID, adminToken, nil, &p)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pending", p.Status)
}

func TestAPI_Me(t *testing.T) {
	ts := newTestServer(t)
	adminToken, adminUser := ts.login(t, adminEmail, adminPassword)

	var me api.UserDTO
	code := ts.do(t, http.MethodGet, "/api/auth/me", adminToken, nil, &me)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, adminUser.ID, me.ID)
	assert.Equal(t, adminEmail, me.Email)
	assert.Equal(t, "admin", me.Role)
}
