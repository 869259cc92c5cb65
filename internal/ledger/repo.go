package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists the ledger in Postgres.
type Repository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// WithTx runs fn against a transaction-bound copy of the repository. Nested
// calls reuse the transaction already in flight.
func (r *Repository) WithTx(ctx context.Context, fn func(Store) error) error {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&Repository{db: r.db, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const memberColumns = `id, name, debt_seconds, reconciled_through, created_at`

func scanMember(row interface{ Scan(...any) error }) (Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.Name, &m.DebtSeconds, &m.ReconciledThrough, &m.CreatedAt)
	return m, err
}

// GetOrCreateMember returns the member by name, creating the ledger row with
// reconciled_through set to today on first contact.
func (r *Repository) GetOrCreateMember(ctx context.Context, name string, today time.Time) (Member, error) {
	if name == "" {
		return Member{}, errors.New("member name required")
	}
	_, err := r.q().ExecContext(ctx, `
		INSERT INTO members (id, name, reconciled_through)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
	`, uuid.NewString(), name, today)
	if err != nil {
		return Member{}, err
	}
	return scanMember(r.q().QueryRowContext(ctx, `
		SELECT `+memberColumns+` FROM members WHERE name = $1
	`, name))
}

// MemberByName returns a member or nil when the name is unknown.
func (r *Repository) MemberByName(ctx context.Context, name string) (*Member, error) {
	m, err := scanMember(r.q().QueryRowContext(ctx, `
		SELECT `+memberColumns+` FROM members WHERE name = $1
	`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// MemberByID returns a member or nil.
func (r *Repository) MemberByID(ctx context.Context, id string) (*Member, error) {
	m, err := scanMember(r.q().QueryRowContext(ctx, `
		SELECT `+memberColumns+` FROM members WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// ListMembers returns every ledger row ordered by name.
func (r *Repository) ListMembers(ctx context.Context) ([]Member, error) {
	rows, err := r.q().QueryContext(ctx, `
		SELECT `+memberColumns+` FROM members ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpdateMember writes debt and the reconciled-through date.
func (r *Repository) UpdateMember(ctx context.Context, m Member) error {
	_, err := r.q().ExecContext(ctx, `
		UPDATE members
		SET debt_seconds = $2, reconciled_through = $3
		WHERE id = $1
	`, m.ID, m.DebtSeconds, m.ReconciledThrough)
	return err
}

const sessionColumns = `id, member_id, status, session_date, check_in_at, last_event_at,
	total_study_seconds, check_out_at, penalty_seconds, created_at`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.MemberID, &s.Status, &s.SessionDate, &s.CheckInAt,
		&s.LastEventAt, &s.TotalStudySeconds, &s.CheckOutAt, &s.PenaltySeconds, &s.CreatedAt)
	return s, err
}

// CreateSession inserts a new session row.
func (r *Repository) CreateSession(ctx context.Context, sess Session) (Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	row := r.q().QueryRowContext(ctx, `
		INSERT INTO sessions (id, member_id, status, session_date, check_in_at,
			last_event_at, total_study_seconds, check_out_at, penalty_seconds)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at
	`, sess.ID, sess.MemberID, sess.Status, sess.SessionDate, sess.CheckInAt,
		sess.LastEventAt, sess.TotalStudySeconds, sess.CheckOutAt, sess.PenaltySeconds)
	if err := row.Scan(&sess.CreatedAt); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// OpenSessionByMember returns the member's not-yet-checked-out session, or
// nil. The state machine keeps at most one open per member.
func (r *Repository) OpenSessionByMember(ctx context.Context, memberID string) (*Session, error) {
	s, err := scanSession(r.q().QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE member_id = $1 AND check_out_at IS NULL
		ORDER BY check_in_at DESC
		LIMIT 1
	`, memberID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// SessionByMemberAndDate returns the member's session for a business date, or nil.
func (r *Repository) SessionByMemberAndDate(ctx context.Context, memberID string, date time.Time) (*Session, error) {
	s, err := scanSession(r.q().QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE member_id = $1 AND session_date = $2
		ORDER BY check_in_at
		LIMIT 1
	`, memberID, date))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// SessionByID returns a session or nil.
func (r *Repository) SessionByID(ctx context.Context, id string) (*Session, error) {
	s, err := scanSession(r.q().QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// SessionsByDate returns every session for a business date.
func (r *Repository) SessionsByDate(ctx context.Context, date time.Time) ([]Session, error) {
	return r.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE session_date = $1
	`, date)
}

// ListSessions returns the full history, newest check-in first.
func (r *Repository) ListSessions(ctx context.Context) ([]Session, error) {
	return r.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions ORDER BY check_in_at DESC
	`)
}

func (r *Repository) querySessions(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpdateSession writes the mutable session fields.
func (r *Repository) UpdateSession(ctx context.Context, sess Session) error {
	_, err := r.q().ExecContext(ctx, `
		UPDATE sessions
		SET status = $2, last_event_at = $3, total_study_seconds = $4,
			check_out_at = $5, penalty_seconds = $6
		WHERE id = $1
	`, sess.ID, sess.Status, sess.LastEventAt, sess.TotalStudySeconds,
		sess.CheckOutAt, sess.PenaltySeconds)
	return err
}

// SaveRefreshToken stores an admin refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, subject, token string, expiresAt time.Time) error {
	_, err := r.q().ExecContext(ctx, `
		INSERT INTO refresh_tokens (subject, token, expires_at)
		VALUES ($1, $2, $3)
	`, subject, token, expiresAt)
	return err
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.q().ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}
