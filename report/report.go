/*
Package report provides the read-only dashboard views.

PURPOSE:
  Aggregate stats and calendar occupancy, derived entirely from the
  permit ledger and the roster. The facade holds no state of its own, so
  every response reflects the ledger as of the query.

VIEWS:
  Stats:             headline counters for the admin dashboard
  CalendarOccupancy: date -> absent teachers, for rendering day cells

All date ranges are inclusive of both endpoints.
*/
package report

import (
	"context"
	"time"

	"github.com/permitdesk/permitdesk/domain"
)

// Store is the read access the facade needs.
type Store interface {
	CountTeachers(ctx context.Context) (int, error)
	CountPermitsByStatus(ctx context.Context, status domain.PermitStatus) (int, error)

	// CountActivePermits counts approved permits whose inclusive date
	// range contains day.
	CountActivePermits(ctx context.Context, day time.Time) (int, error)

	// CountAbsentTeachers counts distinct teachers with an approved
	// permit active on day.
	CountAbsentTeachers(ctx context.Context, day time.Time) (int, error)

	// ApprovedOverlapping returns approved permits whose range
	// intersects [from, to], both endpoints inclusive.
	ApprovedOverlapping(ctx context.Context, from, to time.Time) ([]domain.Permit, error)
}

// Stats are the headline counters for the admin dashboard.
type Stats struct {
	TotalTeachers   int `json:"total_teachers"`
	PendingRequests int `json:"pending_requests"`
	ActivePermits   int `json:"active_permits"`
	TodaysAbsences  int `json:"todays_absences"`
}

// Occupant is one absent teacher on one calendar day.
type Occupant struct {
	TeacherID   string            `json:"teacher_id"`
	TeacherName string            `json:"teacher_name"`
	PermitType  domain.PermitType `json:"permit_type"`
}

// Facade serves dashboard queries.
type Facade struct {
	store Store
}

func NewFacade(store Store) *Facade {
	return &Facade{store: store}
}

// Stats returns the dashboard counters as of today.
func (f *Facade) Stats(ctx context.Context, today time.Time) (Stats, error) {
	day := domain.DateOf(today)

	teachers, err := f.store.CountTeachers(ctx)
	if err != nil {
		return Stats{}, err
	}
	pending, err := f.store.CountPermitsByStatus(ctx, domain.StatusPending)
	if err != nil {
		return Stats{}, err
	}
	active, err := f.store.CountActivePermits(ctx, day)
	if err != nil {
		return Stats{}, err
	}
	absent, err := f.store.CountAbsentTeachers(ctx, day)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		TotalTeachers:   teachers,
		PendingRequests: pending,
		ActivePermits:   active,
		TodaysAbsences:  absent,
	}, nil
}

// CalendarOccupancy maps each date in [from, to] that has at least one
// approved absence to the teachers absent that day. A teacher appears
// on a date iff they hold an approved permit with
// start_date <= date <= end_date.
func (f *Facade) CalendarOccupancy(ctx context.Context, from, to time.Time) (map[time.Time][]Occupant, error) {
	from, to = domain.DateOf(from), domain.DateOf(to)
	if to.Before(from) {
		return nil, &domain.ValidationError{Field: "to", Message: "must not precede from"}
	}

	permits, err := f.store.ApprovedOverlapping(ctx, from, to)
	if err != nil {
		return nil, err
	}

	occupancy := make(map[time.Time][]Occupant)
	for _, p := range permits {
		start, end := domain.DateOf(p.StartDate), domain.DateOf(p.EndDate)
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			occupancy[day] = append(occupancy[day], Occupant{
				TeacherID:   p.TeacherID,
				TeacherName: p.TeacherName,
				PermitType:  p.Type,
			})
		}
	}
	return occupancy, nil
}
