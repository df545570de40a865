/*
Package sqlite provides the SQLite-backed implementation of every
storage interface in the permit service.

PURPOSE:
  One store implements permit.Store, permit.Directory, notify.Store,
  report.Store, and auth.Store. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  permits:       INSERT plus exactly one conditional UPDATE (the review
                 commit, guarded by status='pending'). Never deleted.
  notifications: INSERT plus the read-flag UPDATE. Never deleted.

ATOMICITY:
  Every mutating method is one transaction. A permit and its submission
  notifications commit together; a review commit and its outcome
  notification commit together; a user and their welcome notification
  commit together. On failure the operation appears not to have
  happened.

KEY TABLES:
  users:          roster (admins and teachers) with password hashes
  permits:        the append-only permit ledger
  notifications:  per-user inboxes

CONCURRENCY:
  WAL mode plus a sync.RWMutex. The pool is pinned to one connection:
  SQLite allows a single writer anyway, and it keeps ":memory:"
  databases from silently splitting per connection.

USAGE:
  store, err := sqlite.New("./data/permitdesk.db")
  if err != nil { ... }
  defer store.Close()

SEE ALSO:
  - permit/ledger.go, permit/review.go: interface definitions and callers
  - notify, report, auth: remaining consumers
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/permitdesk/permitdesk/domain"
)

const (
	dateLayout = "2006-01-02"
	tsLayout   = time.RFC3339Nano
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Roster (admins and teachers)
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		contract_type TEXT,
		hire_date TEXT,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

	-- Permits (append-only ledger; status flips exactly once)
	CREATE TABLE IF NOT EXISTS permits (
		id TEXT PRIMARY KEY,
		teacher_id TEXT NOT NULL REFERENCES users(id),
		teacher_name TEXT NOT NULL,
		permit_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days_requested INTEGER NOT NULL CHECK (days_requested > 0),
		reason TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		reviewed_by TEXT,
		reviewed_at TEXT,
		rejection_reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_permits_teacher
		ON permits(teacher_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_permits_status
		ON permits(status);

	-- Calendar/stats hot path: approved permits by date range
	CREATE INDEX IF NOT EXISTS idx_permits_active
		ON permits(status, start_date, end_date);

	-- Notifications (per-user inboxes; only the read flag ever changes)
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_recipient
		ON notifications(recipient_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_notifications_unread
		ON notifications(recipient_id) WHERE read = 0;
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// USERS
// =============================================================================

// InsertUser persists a user, their password hash, and the welcome
// notification in one transaction.
func (s *Store) InsertUser(ctx context.Context, u domain.User, passwordHash string, welcome domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	hireDate := sql.NullString{}
	if !u.HireDate.IsZero() {
		hireDate = sql.NullString{String: u.HireDate.UTC().Format(dateLayout), Valid: true}
	}
	contract := sql.NullString{}
	if u.ContractType != "" {
		contract = sql.NullString{String: string(u.ContractType), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email, name, role, contract_type, hire_date, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, string(u.Role), contract, hireDate, passwordHash,
		u.CreatedAt.UTC().Format(tsLayout),
	)
	if err != nil {
		return err
	}
	if err := insertNotificationTx(ctx, tx, welcome); err != nil {
		return err
	}
	return tx.Commit()
}

// GetUser returns nil without error when the id is unknown.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, contract_type, hire_date, created_at
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail returns the user and password hash, or nil user when
// the email is unknown.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, contract_type, hire_date, created_at, password_hash
		FROM users WHERE email = ?`, email)

	var (
		u        domain.User
		role     string
		contract sql.NullString
		hireDate sql.NullString
		created  string
		hash     string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &contract, &hireDate, &created, &hash)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	if err := hydrateUser(&u, role, contract, hireDate, created); err != nil {
		return nil, "", err
	}
	return &u, hash, nil
}

// ListTeachers returns every roster entry with the teacher role.
func (s *Store) ListTeachers(ctx context.Context) ([]domain.User, error) {
	return s.listByRole(ctx, domain.RoleTeacher)
}

// ListAdmins returns every roster entry with the admin role.
func (s *Store) ListAdmins(ctx context.Context) ([]domain.User, error) {
	return s.listByRole(ctx, domain.RoleAdmin)
}

func (s *Store) listByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, name, role, contract_type, hire_date, created_at
		FROM users WHERE role = ? ORDER BY name`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUserRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CountTeachers returns the roster size for the stats view.
func (s *Store) CountTeachers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = ?`, string(domain.RoleTeacher)).Scan(&n)
	return n, err
}

// =============================================================================
// PERMITS
// =============================================================================

// CreatePermit persists the permit and its submission notifications in
// one transaction.
func (s *Store) CreatePermit(ctx context.Context, p domain.Permit, notices []domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO permits (id, teacher_id, teacher_name, permit_type, start_date, end_date,
			days_requested, reason, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TeacherID, p.TeacherName, string(p.Type),
		p.StartDate.UTC().Format(dateLayout), p.EndDate.UTC().Format(dateLayout),
		p.DaysRequested, p.Reason, string(p.Status), p.CreatedAt.UTC().Format(tsLayout),
	)
	if err != nil {
		return err
	}
	for _, n := range notices {
		if err := insertNotificationTx(ctx, tx, n); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetPermit returns nil without error when the id is unknown.
func (s *Store) GetPermit(ctx context.Context, id string) (*domain.Permit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, permitColumns+` WHERE id = ?`, id)
	p, err := scanPermit(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ForEachPermit streams permits newest first. An empty teacherID
// streams the whole ledger. rowid breaks created_at ties so the order
// stays stable under bursts of submissions. The read lock and the
// single pooled connection are held while fn runs, so fn must not call
// back into the store.
func (s *Store) ForEachPermit(ctx context.Context, teacherID string, fn func(domain.Permit) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := permitColumns
	var args []any
	if teacherID != "" {
		query += ` WHERE teacher_id = ?`
		args = append(args, teacherID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPermit(rows.Scan)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ApprovedPermits returns all approved permits for one teacher, for
// entitlement computation.
func (s *Store) ApprovedPermits(ctx context.Context, teacherID string) ([]domain.Permit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		permitColumns+` WHERE teacher_id = ? AND status = ?`,
		teacherID, string(domain.StatusApproved))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Permit
	for rows.Next() {
		p, err := scanPermit(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FinishReview commits a terminal status and the outcome notification
// in one transaction, guarded by the stored status still being pending.
// Returns false (writing nothing) when another reviewer already won.
func (s *Store) FinishReview(ctx context.Context, p domain.Permit, notice domain.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	reviewedAt := sql.NullString{}
	if p.ReviewedAt != nil {
		reviewedAt = sql.NullString{String: p.ReviewedAt.UTC().Format(tsLayout), Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE permits
		SET status = ?, reviewed_by = ?, reviewed_at = ?, rejection_reason = ?
		WHERE id = ? AND status = 'pending'`,
		string(p.Status), p.ReviewedBy, reviewedAt, p.RejectionReason, p.ID,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	if err := insertNotificationTx(ctx, tx, notice); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// CountPermitsByStatus counts permits in one lifecycle state.
func (s *Store) CountPermitsByStatus(ctx context.Context, status domain.PermitStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM permits WHERE status = ?`, string(status)).Scan(&n)
	return n, err
}

// CountActivePermits counts approved permits whose inclusive range
// contains day. ISO date strings compare correctly as text.
func (s *Store) CountActivePermits(ctx context.Context, day time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := day.UTC().Format(dateLayout)
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM permits
		WHERE status = 'approved' AND start_date <= ? AND end_date >= ?`, d, d).Scan(&n)
	return n, err
}

// CountAbsentTeachers counts distinct teachers with an approved permit
// active on day.
func (s *Store) CountAbsentTeachers(ctx context.Context, day time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := day.UTC().Format(dateLayout)
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT teacher_id) FROM permits
		WHERE status = 'approved' AND start_date <= ? AND end_date >= ?`, d, d).Scan(&n)
	return n, err
}

// ApprovedOverlapping returns approved permits intersecting [from, to].
func (s *Store) ApprovedOverlapping(ctx context.Context, from, to time.Time) ([]domain.Permit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		permitColumns+` WHERE status = 'approved' AND start_date <= ? AND end_date >= ?`,
		to.UTC().Format(dateLayout), from.UTC().Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Permit
	for rows.Next() {
		p, err := scanPermit(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func insertNotificationTx(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, title, message, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, n.Title, n.Message, boolToInt(n.Read),
		n.CreatedAt.UTC().Format(tsLayout),
	)
	return err
}

// InsertNotification persists a single notification.
func (s *Store) InsertNotification(ctx context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, title, message, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, n.Title, n.Message, boolToInt(n.Read),
		n.CreatedAt.UTC().Format(tsLayout),
	)
	return err
}

// GetNotification returns nil without error when the id is unknown.
func (s *Store) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, recipient_id, title, message, read, created_at
		FROM notifications WHERE id = ?`, id)

	n, err := scanNotification(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// SetNotificationRead flips the read flag to true.
func (s *Store) SetNotificationRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE id = ?`, id)
	return err
}

// CountUnread counts a recipient's unread notifications.
func (s *Store) CountUnread(ctx context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND read = 0`,
		recipientID).Scan(&n)
	return n, err
}

// NotificationsByRecipient returns a recipient's inbox newest first.
func (s *Store) NotificationsByRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, title, message, read, created_at
		FROM notifications WHERE recipient_id = ?
		ORDER BY created_at DESC, rowid DESC`, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// =============================================================================
// ROW SCANNING
// =============================================================================

const permitColumns = `
	SELECT id, teacher_id, teacher_name, permit_type, start_date, end_date,
		days_requested, reason, status, created_at, reviewed_by, reviewed_at, rejection_reason
	FROM permits`

func scanPermit(scan func(dest ...any) error) (domain.Permit, error) {
	var (
		p          domain.Permit
		typ        string
		start, end string
		status     string
		created    string
		reviewedBy sql.NullString
		reviewedAt sql.NullString
		rejection  sql.NullString
	)
	err := scan(&p.ID, &p.TeacherID, &p.TeacherName, &typ, &start, &end,
		&p.DaysRequested, &p.Reason, &status, &created, &reviewedBy, &reviewedAt, &rejection)
	if err != nil {
		return domain.Permit{}, err
	}

	p.Type = domain.PermitType(typ)
	p.Status = domain.PermitStatus(status)
	if p.StartDate, err = time.ParseInLocation(dateLayout, start, time.UTC); err != nil {
		return domain.Permit{}, fmt.Errorf("parse start_date: %w", err)
	}
	if p.EndDate, err = time.ParseInLocation(dateLayout, end, time.UTC); err != nil {
		return domain.Permit{}, fmt.Errorf("parse end_date: %w", err)
	}
	if p.CreatedAt, err = time.Parse(tsLayout, created); err != nil {
		return domain.Permit{}, fmt.Errorf("parse created_at: %w", err)
	}
	p.ReviewedBy = reviewedBy.String
	p.RejectionReason = rejection.String
	if reviewedAt.Valid {
		t, err := time.Parse(tsLayout, reviewedAt.String)
		if err != nil {
			return domain.Permit{}, fmt.Errorf("parse reviewed_at: %w", err)
		}
		p.ReviewedAt = &t
	}
	return p, nil
}

func scanNotification(scan func(dest ...any) error) (domain.Notification, error) {
	var (
		n       domain.Notification
		read    int
		created string
	)
	err := scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &read, &created)
	if err != nil {
		return domain.Notification{}, err
	}
	n.Read = read != 0
	if n.CreatedAt, err = time.Parse(tsLayout, created); err != nil {
		return domain.Notification{}, fmt.Errorf("parse created_at: %w", err)
	}
	return n, nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u        domain.User
		role     string
		contract sql.NullString
		hireDate sql.NullString
		created  string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &contract, &hireDate, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := hydrateUser(&u, role, contract, hireDate, created); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanUserRows(rows *sql.Rows) (domain.User, error) {
	var (
		u        domain.User
		role     string
		contract sql.NullString
		hireDate sql.NullString
		created  string
	)
	err := rows.Scan(&u.ID, &u.Email, &u.Name, &role, &contract, &hireDate, &created)
	if err != nil {
		return domain.User{}, err
	}
	if err := hydrateUser(&u, role, contract, hireDate, created); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func hydrateUser(u *domain.User, role string, contract, hireDate sql.NullString, created string) error {
	u.Role = domain.Role(role)
	if contract.Valid {
		u.ContractType = domain.ContractType(contract.String)
	}
	if hireDate.Valid {
		t, err := time.ParseInLocation(dateLayout, hireDate.String, time.UTC)
		if err != nil {
			return fmt.Errorf("parse hire_date: %w", err)
		}
		u.HireDate = t
	}
	t, err := time.Parse(tsLayout, created)
	if err != nil {
		return fmt.Errorf("parse created_at: %w", err)
	}
	u.CreatedAt = t
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
