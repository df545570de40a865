package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/permitdesk/permitdesk/domain"
	"github.com/permitdesk/permitdesk/notify"
	"github.com/permitdesk/permitdesk/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func insertTeacher(t *testing.T, store *sqlite.Store, name string) domain.User {
	t.Helper()
	u := domain.User{
		ID:           uuid.NewString(),
		Email:        uuid.NewString()[:8] + "@example.edu",
		Name:         name,
		Role:         domain.RoleTeacher,
		ContractType: domain.ContractFullTime,
		HireDate:     domain.DateOf(time.Now().UTC().AddDate(-4, 0, 0)),
		CreatedAt:    time.Now().UTC(),
	}
	welcome := notify.Build(u.ID, "Cuenta creada", "Bienvenido")
	require.NoError(t, store.InsertUser(context.Background(), u, "hash", welcome))
	return u
}

func pendingPermit(teacherID, teacherName string, start, end time.Time, days int) domain.Permit {
	return domain.Permit{
		ID:            uuid.NewString(),
		TeacherID:     teacherID,
		TeacherName:   teacherName,
		Type:          domain.PermitVacation57,
		StartDate:     domain.DateOf(start),
		EndDate:       domain.DateOf(end),
		DaysRequested: days,
		Reason:        "motivo",
		Status:        domain.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

// =============================================================================
// USERS
// =============================================================================

func TestInsertUser_RoundtripWithWelcome(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	u := insertTeacher(t, store, "Carlos Docente")

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, domain.ContractFullTime, got.ContractType)
	assert.True(t, u.HireDate.Equal(got.HireDate))

	byEmail, hash, err := store.GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, "hash", hash)

	inbox, err := store.NotificationsByRecipient(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "Cuenta creada", inbox[0].Title)
}

func TestInsertUser_DuplicateEmailLeavesNoNotification(t *testing.T) {
	// The welcome write shares the transaction with the user insert, so
	// a duplicate email must leave nothing behind.

	store := newStore(t)
	ctx := context.Background()
	u := insertTeacher(t, store, "Carlos Docente")

	dup := u
	dup.ID = uuid.NewString()
	welcome := notify.Build(dup.ID, "Cuenta creada", "Bienvenido")
	err := store.InsertUser(ctx, dup, "hash", welcome)
	require.Error(t, err)

	inbox, err := store.NotificationsByRecipient(ctx, dup.ID)
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestGetUser_UnknownIsNilNotError(t *testing.T) {
	store := newStore(t)

	got, err := store.GetUser(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	byEmail, _, err := store.GetUserByEmail(context.Background(), "missing@example.edu")
	require.NoError(t, err)
	assert.Nil(t, byEmail)
}

// =============================================================================
// PERMITS
// =============================================================================

func TestCreatePermit_RoundtripWithNotices(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	u := insertTeacher(t, store, "Carlos Docente")

	p := pendingPermit(u.ID, u.Name, time.Now(), time.Now().AddDate(0, 0, 2), 3)
	notice := notify.Build("admin-1", "Nueva solicitud de permiso", "...")
	require.NoError(t, store.CreatePermit(ctx, p, []domain.Notification{notice}))

	got, err := store.GetPermit(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.True(t, p.StartDate.Equal(got.StartDate))
	assert.Empty(t, got.ReviewedBy)
	assert.Nil(t, got.ReviewedAt)

	adminInbox, err := store.NotificationsByRecipient(ctx, "admin-1")
	require.NoError(t, err)
	require.Len(t, adminInbox, 1)
}

func TestFinishReview_ConditionalOnPending(t *testing.T) {
	// The commit refuses a permit that is no longer pending; the loser's
	// notification must not be written.

	store := newStore(t)
	ctx := context.Background()
	u := insertTeacher(t, store, "Carlos Docente")

	p := pendingPermit(u.ID, u.Name, time.Now(), time.Now(), 1)
	require.NoError(t, store.CreatePermit(ctx, p, nil))

	now := time.Now().UTC()
	p.Status = domain.StatusApproved
	p.ReviewedBy = "admin-1"
	p.ReviewedAt = &now

	ok, err := store.FinishReview(ctx, p, notify.Build(u.ID, "Solicitud aprobada", "ok"))
	require.NoError(t, err)
	assert.True(t, ok)

	// Second commit loses.
	p.Status = domain.StatusRejected
	ok, err = store.FinishReview(ctx, p, notify.Build(u.ID, "Solicitud rechazada", "no"))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetPermit(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, got.Status)
	assert.Equal(t, "admin-1", got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)

	inbox, err := store.NotificationsByRecipient(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, inbox, 2) // welcome + approval, no rejection
	assert.Equal(t, "Solicitud aprobada", inbox[0].Title)
}

func TestForEachPermit_EarlyStop(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	u := insertTeacher(t, store, "Carlos Docente")

	for i := 0; i < 3; i++ {
		p := pendingPermit(u.ID, u.Name, time.Now().AddDate(0, 0, i), time.Now().AddDate(0, 0, i), 1)
		require.NoError(t, store.CreatePermit(ctx, p, nil))
	}

	stop := errors.New("stop")
	var seen int
	err := store.ForEachPermit(ctx, u.ID, func(domain.Permit) error {
		seen++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, seen)
}

func TestApprovedPermits_FiltersStatusAndTeacher(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	u := insertTeacher(t, store, "Carlos Docente")
	other := insertTeacher(t, store, "Diana Docente")

	approved := pendingPermit(u.ID, u.Name, time.Now(), time.Now(), 1)
	require.NoError(t, store.CreatePermit(ctx, approved, nil))
	now := time.Now().UTC()
	approved.Status = domain.StatusApproved
	approved.ReviewedBy = "admin-1"
	approved.ReviewedAt = &now
	ok, err := store.FinishReview(ctx, approved, notify.Build(u.ID, "Solicitud aprobada", "ok"))
	require.NoError(t, err)
	require.True(t, ok)

	pending := pendingPermit(u.ID, u.Name, time.Now(), time.Now(), 1)
	require.NoError(t, store.CreatePermit(ctx, pending, nil))
	foreign := pendingPermit(other.ID, other.Name, time.Now(), time.Now(), 1)
	require.NoError(t, store.CreatePermit(ctx, foreign, nil))

	got, err := store.ApprovedPermits(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, approved.ID, got[0].ID)
}

// =============================================================================
// REPORT QUERIES
// =============================================================================

func TestActiveAndOverlapQueries(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	u := insertTeacher(t, store, "Carlos Docente")

	day := func(offset int) time.Time {
		return domain.DateOf(time.Now().UTC()).AddDate(0, 0, offset)
	}

	p := pendingPermit(u.ID, u.Name, day(-1), day(1), 3)
	require.NoError(t, store.CreatePermit(ctx, p, nil))
	now := time.Now().UTC()
	p.Status = domain.StatusApproved
	p.ReviewedBy = "admin-1"
	p.ReviewedAt = &now
	ok, err := store.FinishReview(ctx, p, notify.Build(u.ID, "Solicitud aprobada", "ok"))
	require.NoError(t, err)
	require.True(t, ok)

	active, err := store.CountActivePermits(ctx, day(0))
	require.NoError(t, err)
	assert.Equal(t, 1, active)

	absent, err := store.CountAbsentTeachers(ctx, day(0))
	require.NoError(t, err)
	assert.Equal(t, 1, absent)

	// Inclusive endpoints on both sides of the overlap query.
	for _, window := range [][2]time.Time{
		{day(-5), day(-1)}, // touches the start
		{day(1), day(5)},   // touches the end
		{day(0), day(0)},   // inside
	} {
		overlapping, err := store.ApprovedOverlapping(ctx, window[0], window[1])
		require.NoError(t, err)
		assert.Len(t, overlapping, 1)
	}

	outside, err := store.ApprovedOverlapping(ctx, day(2), day(5))
	require.NoError(t, err)
	assert.Empty(t, outside)
}
