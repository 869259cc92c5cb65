package ledger

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a session. completed is terminal.
type Status string

const (
	StatusStudying  Status = "studying"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// ErrSessionNotFound is returned by force-close for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// Member is one row of the ledger: accumulated study-time debt in seconds
// (positive = owed, negative = credit) and the last business date for which
// debt has been fully applied.
type Member struct {
	ID                string
	Name              string
	DebtSeconds       int64
	ReconciledThrough time.Time
	CreatedAt         time.Time
}

// Session is one attendance record. SessionDate is the business date it
// belongs to, fixed at check-in. CheckOutAt is set exactly when the session
// is completed.
type Session struct {
	ID                string
	MemberID          string
	Status            Status
	SessionDate       time.Time
	CheckInAt         time.Time
	LastEventAt       time.Time
	TotalStudySeconds int64
	CheckOutAt        *time.Time
	PenaltySeconds    int64
	CreatedAt         time.Time
}

// Open reports whether the session has not been checked out yet.
func (s Session) Open() bool {
	return s.CheckOutAt == nil
}
