/*
review.go - The review engine: approve/reject with atomic balance check

PURPOSE:
  Applies an administrator's decision to a pending permit. Approval is
  the only operation that commits a balance deduction, so the
  check-then-commit sequence must be atomic with respect to concurrent
  reviews of the same teacher's other permits - otherwise two approvals
  could both read a sufficient balance and double-spend days.

CONCURRENCY:
  Two layers guard the approve path:
  1. A per-teacher mutex held across read-balance-then-commit, so
     concurrent approvals for one teacher serialize.
  2. The store's conditional commit (UPDATE ... WHERE status='pending'),
     which refuses the write if another reviewer got there first. This
     also covers reject racing approve, which takes no lock.

RETRIES:
  Review must not be retried blindly after a timeout of unknown outcome:
  the transition is terminal, so the caller re-fetches the permit status
  first. A repeated review always fails with InvalidTransition rather
  than silently succeeding, which would duplicate notifications.
*/
package permit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/permitdesk/permitdesk/domain"
	"github.com/permitdesk/permitdesk/entitlement"
	"github.com/permitdesk/permitdesk/notify"
)

// Decision is an administrator's verdict on a pending permit.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool { return d == DecisionApprove || d == DecisionReject }

// Engine applies review decisions against the ledger and entitlement.
type Engine struct {
	store    Store
	users    Directory
	balances *entitlement.Calculator

	// Per-teacher locks serializing the approve path.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(store Store, users Directory, balances *entitlement.Calculator) *Engine {
	return &Engine{
		store:    store,
		users:    users,
		balances: balances,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Review applies the decision to a pending permit on behalf of
// reviewerID and notifies the owning teacher of the outcome.
//
// Fails with Forbidden when the reviewer lacks the capability, NotFound
// for unknown permits, InvalidTransition when the permit is no longer
// pending, ValidationError for unknown decisions, and
// InsufficientBalance when approval would overdraw the category.
func (e *Engine) Review(ctx context.Context, permitID, reviewerID string, decision Decision, rejectionReason string) (domain.Permit, error) {
	if !decision.Valid() {
		return domain.Permit{}, &domain.ValidationError{Field: "decision", Message: fmt.Sprintf("unknown decision %q", decision)}
	}

	reviewer, err := e.users.GetUser(ctx, reviewerID)
	if err != nil {
		return domain.Permit{}, err
	}
	if reviewer == nil || !reviewer.IsReviewer() {
		return domain.Permit{}, domain.ErrForbidden
	}

	p, err := e.store.GetPermit(ctx, permitID)
	if err != nil {
		return domain.Permit{}, err
	}
	if p == nil {
		return domain.Permit{}, domain.ErrNotFound
	}
	if p.Status.Terminal() {
		return domain.Permit{}, &domain.InvalidTransitionError{PermitID: p.ID, Status: p.Status}
	}

	if decision == DecisionApprove {
		return e.approve(ctx, *p, *reviewer)
	}
	return e.reject(ctx, *p, *reviewer, rejectionReason)
}

// approve holds the teacher's lock across the balance read and the
// commit so concurrent approvals cannot both observe the old balance.
func (e *Engine) approve(ctx context.Context, p domain.Permit, reviewer domain.User) (domain.Permit, error) {
	lock := e.teacherLock(p.TeacherID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock; the permit may have been reviewed while
	// we waited.
	cur, err := e.store.GetPermit(ctx, p.ID)
	if err != nil {
		return domain.Permit{}, err
	}
	if cur == nil {
		return domain.Permit{}, domain.ErrNotFound
	}
	if cur.Status.Terminal() {
		return domain.Permit{}, &domain.InvalidTransitionError{PermitID: cur.ID, Status: cur.Status}
	}

	teacher, err := e.users.GetUser(ctx, cur.TeacherID)
	if err != nil {
		return domain.Permit{}, err
	}
	if teacher == nil {
		return domain.Permit{}, domain.ErrNotFound
	}

	now := time.Now().UTC()
	approved, err := e.store.ApprovedPermits(ctx, teacher.ID)
	if err != nil {
		return domain.Permit{}, err
	}
	balance, err := e.balances.Calculate(*teacher, approved, now)
	if err != nil {
		return domain.Permit{}, err
	}
	if available := balance.BalanceFor(cur.Type); cur.DaysRequested > available {
		return domain.Permit{}, &domain.InsufficientBalanceError{
			TeacherID: teacher.ID,
			Type:      cur.Type,
			Available: available,
			Requested: cur.DaysRequested,
		}
	}

	cur.Status = domain.StatusApproved
	cur.ReviewedBy = reviewer.ID
	cur.ReviewedAt = &now

	notice := notify.Build(
		teacher.ID,
		"Solicitud aprobada",
		fmt.Sprintf("Tu solicitud de permiso ha sido aprobada por %s.", reviewer.Name),
	)
	return e.commit(ctx, *cur, notice)
}

func (e *Engine) reject(ctx context.Context, p domain.Permit, reviewer domain.User, reason string) (domain.Permit, error) {
	now := time.Now().UTC()
	p.Status = domain.StatusRejected
	p.ReviewedBy = reviewer.ID
	p.ReviewedAt = &now
	p.RejectionReason = reason

	notice := notify.Build(
		p.TeacherID,
		"Solicitud rechazada",
		fmt.Sprintf("Tu solicitud de permiso ha sido rechazada por %s.", reviewer.Name),
	)
	return e.commit(ctx, p, notice)
}

// commit writes the terminal state through the store's conditional
// update. A false return means another reviewer won the race.
func (e *Engine) commit(ctx context.Context, p domain.Permit, notice domain.Notification) (domain.Permit, error) {
	ok, err := e.store.FinishReview(ctx, p, notice)
	if err != nil {
		return domain.Permit{}, err
	}
	if !ok {
		cur, err := e.store.GetPermit(ctx, p.ID)
		if err == nil && cur != nil {
			return domain.Permit{}, &domain.InvalidTransitionError{PermitID: cur.ID, Status: cur.Status}
		}
		return domain.Permit{}, &domain.InvalidTransitionError{PermitID: p.ID, Status: p.Status}
	}
	return p, nil
}

func (e *Engine) teacherLock(teacherID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[teacherID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[teacherID] = lock
	}
	return lock
}
