/*
Package permit implements the permit ledger and the review engine.

PURPOSE:
  The ledger owns permit submission and querying; the review engine
  (review.go) owns the only mutation a permit ever sees. Together they
  enforce the lifecycle: a permit is created pending and transitions
  exactly once, to approved or rejected.

SUBMISSION VS. REVIEW:
  Submission validates shape only (date ordering, positive day count,
  non-empty reason). It deliberately does NOT check the entitlement
  balance: entitlement can change between submission and review, so the
  balance check belongs to the moment days are actually committed -
  approval. See review.go.

ORDERING CONTRACT:
  ListForTeacher and ListAll yield permits newest first (created_at
  descending). Dashboards rely on this ordering.

SEE ALSO:
  - review.go: approve/reject with atomic balance check
  - entitlement: balance computation
  - store/sqlite: persistence
*/
package permit

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/permitdesk/permitdesk/domain"
	"github.com/permitdesk/permitdesk/notify"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

// Store is the permit persistence the ledger and review engine need.
// Implementations must make each method a single atomic unit of work.
type Store interface {
	// CreatePermit persists the permit and its submission notifications
	// in one transaction.
	CreatePermit(ctx context.Context, p domain.Permit, notices []domain.Notification) error

	// GetPermit returns nil without error when the id is unknown.
	GetPermit(ctx context.Context, id string) (*domain.Permit, error)

	// ForEachPermit streams permits ordered created_at descending.
	// An empty teacherID streams every permit. Returning an error from
	// fn stops the iteration and surfaces that error.
	ForEachPermit(ctx context.Context, teacherID string, fn func(domain.Permit) error) error

	// ApprovedPermits returns all approved permits for one teacher.
	ApprovedPermits(ctx context.Context, teacherID string) ([]domain.Permit, error)

	// FinishReview commits the reviewed permit and its outcome
	// notification in one transaction, but only while the stored status
	// is still pending. Returns false (and writes nothing) when the
	// permit was already reviewed.
	FinishReview(ctx context.Context, p domain.Permit, notice domain.Notification) (bool, error)
}

// Directory is the slice of the roster the permit components need.
type Directory interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListAdmins(ctx context.Context) ([]domain.User, error)
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger validates and records permit submissions.
type Ledger struct {
	store Store
	users Directory
}

func NewLedger(store Store, users Directory) *Ledger {
	return &Ledger{store: store, users: users}
}

// Submit records a new pending permit for the teacher and notifies every
// administrator. Fails with ValidationError on malformed input and
// NotFound when the teacher is not on the roster.
func (l *Ledger) Submit(ctx context.Context, teacherID string, typ domain.PermitType, start, end time.Time, days int, reason string) (domain.Permit, error) {
	if !typ.Valid() {
		return domain.Permit{}, &domain.ValidationError{Field: "permit_type", Message: fmt.Sprintf("unknown type %q", typ)}
	}
	if days <= 0 {
		return domain.Permit{}, &domain.ValidationError{Field: "days_requested", Message: "must be positive"}
	}
	if domain.DateOf(end).Before(domain.DateOf(start)) {
		return domain.Permit{}, &domain.ValidationError{Field: "end_date", Message: "must not precede start_date"}
	}
	if reason == "" {
		return domain.Permit{}, &domain.ValidationError{Field: "reason", Message: "must not be empty"}
	}

	teacher, err := l.users.GetUser(ctx, teacherID)
	if err != nil {
		return domain.Permit{}, err
	}
	if teacher == nil {
		return domain.Permit{}, domain.ErrNotFound
	}
	if !teacher.IsTeacher() {
		return domain.Permit{}, domain.ErrForbidden
	}

	p := domain.Permit{
		ID:            uuid.NewString(),
		TeacherID:     teacher.ID,
		TeacherName:   teacher.Name,
		Type:          typ,
		StartDate:     domain.DateOf(start),
		EndDate:       domain.DateOf(end),
		DaysRequested: days,
		Reason:        reason,
		Status:        domain.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	admins, err := l.users.ListAdmins(ctx)
	if err != nil {
		return domain.Permit{}, err
	}
	notices := make([]domain.Notification, 0, len(admins))
	for _, admin := range admins {
		notices = append(notices, notify.Build(
			admin.ID,
			"Nueva solicitud de permiso",
			fmt.Sprintf("%s ha solicitado un permiso de %d días.", teacher.Name, days),
		))
	}

	if err := l.store.CreatePermit(ctx, p, notices); err != nil {
		return domain.Permit{}, err
	}
	return p, nil
}

// Get returns a permit by id; NotFound when absent.
func (l *Ledger) Get(ctx context.Context, id string) (domain.Permit, error) {
	p, err := l.store.GetPermit(ctx, id)
	if err != nil {
		return domain.Permit{}, err
	}
	if p == nil {
		return domain.Permit{}, domain.ErrNotFound
	}
	return *p, nil
}

// ListForTeacher returns one teacher's permits newest first. The
// sequence is lazy (rows stream from the store) and restartable: every
// range over it re-runs the underlying query.
//
// The store's read lock and its single pooled connection are held for
// the duration of each range, so the loop body must not call back into
// the store; collect first (see Collect) when follow-up queries per
// permit are needed.
func (l *Ledger) ListForTeacher(ctx context.Context, teacherID string) iter.Seq2[domain.Permit, error] {
	return l.stream(ctx, teacherID)
}

// ListAll returns every permit newest first, with the same laziness,
// restartability, and no-reentrancy rule as ListForTeacher.
func (l *Ledger) ListAll(ctx context.Context) iter.Seq2[domain.Permit, error] {
	return l.stream(ctx, "")
}

// errStopIteration aborts the store cursor when the consumer breaks out
// of the range early. Never surfaced to callers.
var errStopIteration = errors.New("permit: stop iteration")

func (l *Ledger) stream(ctx context.Context, teacherID string) iter.Seq2[domain.Permit, error] {
	return func(yield func(domain.Permit, error) bool) {
		err := l.store.ForEachPermit(ctx, teacherID, func(p domain.Permit) error {
			if !yield(p, nil) {
				return errStopIteration
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopIteration) {
			yield(domain.Permit{}, err)
		}
	}
}

// Collect drains a permit sequence into a slice, stopping at the first
// error. Convenience for callers that need the whole page.
func Collect(seq iter.Seq2[domain.Permit, error]) ([]domain.Permit, error) {
	var out []domain.Permit
	for p, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
