package ledger

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store is the persistence boundary for the engine. WithTx runs fn against a
// transaction-bound store; every state-machine operation and every per-member
// reconciliation pass commits or fails as one unit.
type Store interface {
	GetOrCreateMember(ctx context.Context, name string, today time.Time) (Member, error)
	MemberByName(ctx context.Context, name string) (*Member, error)
	MemberByID(ctx context.Context, id string) (*Member, error)
	ListMembers(ctx context.Context) ([]Member, error)
	UpdateMember(ctx context.Context, m Member) error

	CreateSession(ctx context.Context, sess Session) (Session, error)
	OpenSessionByMember(ctx context.Context, memberID string) (*Session, error)
	SessionByMemberAndDate(ctx context.Context, memberID string, date time.Time) (*Session, error)
	SessionByID(ctx context.Context, id string) (*Session, error)
	SessionsByDate(ctx context.Context, date time.Time) ([]Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	UpdateSession(ctx context.Context, sess Session) error

	WithTx(ctx context.Context, fn func(Store) error) error
}

// Service runs the session state machine and the catch-up reconciliation.
type Service struct {
	store  Store
	clock  Clock
	zone   *time.Location
	target time.Duration
}

// NewService creates the engine. A nil clock uses the system clock, a nil
// zone defaults to UTC+9, a non-positive target defaults to 4 hours.
func NewService(store Store, clock Clock, zone *time.Location, dailyTarget time.Duration) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	if zone == nil {
		zone = time.FixedZone("UTC+9", 9*60*60)
	}
	if dailyTarget <= 0 {
		dailyTarget = 4 * time.Hour
	}
	return &Service{store: store, clock: clock, zone: zone, target: dailyTarget}
}

// targetFor returns the required study seconds for a date: the daily target
// on weekdays, zero on weekends.
func (s *Service) targetFor(d time.Time) int64 {
	if IsWeekend(d) {
		return 0
	}
	return int64(s.target / time.Second)
}

// foldElapsed adds the time since the last event to the session total and
// advances the event marker. A stored timestamp ahead of the caller's clock
// folds nothing and leaves the marker alone, so skew can neither accrue
// negative time nor rewind lastEventAt.
func foldElapsed(sess *Session, now time.Time) {
	if now.Before(sess.LastEventAt) {
		return
	}
	sess.TotalStudySeconds += int64(now.Sub(sess.LastEventAt) / time.Second)
	sess.LastEventAt = now
}

// CheckIn opens a session for today. If the member already has a session for
// today's business date the existing one is returned unchanged, so repeated
// clicks are harmless. The member record is created on first contact.
func (s *Service) CheckIn(ctx context.Context, name string) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, errors.New("member name required")
	}
	now := s.clock.Now()
	today := DateOf(now, s.zone)

	var out Session
	err := s.store.WithTx(ctx, func(tx Store) error {
		member, err := tx.GetOrCreateMember(ctx, name, today)
		if err != nil {
			return err
		}
		// Catch the member up first so a session forgotten open on an earlier
		// date is settled before a new one opens; a member never has two open
		// sessions.
		if err := s.reconcileMember(ctx, tx, member.ID, today); err != nil {
			return err
		}
		// Weekend dates never enter the catch-up loop, so a session forgotten
		// open on one is still here; close it at its last event. The weekend
		// target is zero, so no debt moves.
		stale, err := tx.OpenSessionByMember(ctx, member.ID)
		if err != nil {
			return err
		}
		if stale != nil && stale.SessionDate.Before(today) {
			checkOut := stale.LastEventAt
			stale.CheckOutAt = &checkOut
			stale.Status = StatusCompleted
			if err := tx.UpdateSession(ctx, *stale); err != nil {
				return err
			}
		}
		existing, err := tx.SessionByMemberAndDate(ctx, member.ID, today)
		if err != nil {
			return err
		}
		if existing != nil {
			out = *existing
			return nil
		}
		// TODO: compute the late-arrival penalty once the fine policy is decided.
		sess := Session{
			MemberID:    member.ID,
			Status:      StatusStudying,
			SessionDate: today,
			CheckInAt:   now,
			LastEventAt: now,
		}
		out, err = tx.CreateSession(ctx, sess)
		if err == nil {
			checkInsTotal.Inc()
		}
		return err
	})
	if err != nil {
		return Session{}, err
	}
	return out, nil
}

// Pause folds elapsed study time and suspends the open session. No-op when
// the member has no session in the studying state.
func (s *Service) Pause(ctx context.Context, name string) (*Session, error) {
	now := s.clock.Now()
	return s.mutateOpenSession(ctx, name, func(sess *Session) bool {
		if sess.Status != StatusStudying {
			return false
		}
		foldElapsed(sess, now)
		sess.Status = StatusPaused
		return true
	})
}

// Resume restarts a paused session. No-op when there is none.
func (s *Service) Resume(ctx context.Context, name string) (*Session, error) {
	now := s.clock.Now()
	return s.mutateOpenSession(ctx, name, func(sess *Session) bool {
		if sess.Status != StatusPaused {
			return false
		}
		sess.Status = StatusStudying
		sess.LastEventAt = now
		return true
	})
}

func (s *Service) mutateOpenSession(ctx context.Context, name string, mutate func(*Session) bool) (*Session, error) {
	var out *Session
	err := s.store.WithTx(ctx, func(tx Store) error {
		member, err := tx.MemberByName(ctx, strings.TrimSpace(name))
		if err != nil || member == nil {
			return err
		}
		sess, err := tx.OpenSessionByMember(ctx, member.ID)
		if err != nil || sess == nil {
			return err
		}
		if !mutate(sess) {
			return nil
		}
		if err := tx.UpdateSession(ctx, *sess); err != nil {
			return err
		}
		out = sess
		return nil
	})
	return out, err
}

// CheckOut closes the member's open session and settles the day's debt
// against the ledger: target for the session date minus seconds studied.
// Session write and ledger write commit together. No-op when nothing is open.
func (s *Service) CheckOut(ctx context.Context, name string) (*Session, error) {
	now := s.clock.Now()
	var out *Session
	err := s.store.WithTx(ctx, func(tx Store) error {
		member, err := tx.MemberByName(ctx, strings.TrimSpace(name))
		if err != nil || member == nil {
			return err
		}
		sess, err := tx.OpenSessionByMember(ctx, member.ID)
		if err != nil || sess == nil {
			return err
		}
		if err := s.settle(ctx, tx, member, sess, now); err != nil {
			return err
		}
		out = sess
		return nil
	})
	return out, err
}

// ForceClose settles a session that was never checked out, by id. Returns
// ErrSessionNotFound for an unknown id; an already-closed session is returned
// untouched so the settlement can never be applied twice.
func (s *Service) ForceClose(ctx context.Context, sessionID string) (Session, error) {
	now := s.clock.Now()
	var out Session
	err := s.store.WithTx(ctx, func(tx Store) error {
		sess, err := tx.SessionByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return ErrSessionNotFound
		}
		if !sess.Open() {
			out = *sess
			return nil
		}
		member, err := tx.MemberByID(ctx, sess.MemberID)
		if err != nil {
			return err
		}
		if member == nil {
			return errors.New("session has no owning member")
		}
		if err := s.settle(ctx, tx, member, sess, now); err != nil {
			return err
		}
		forcedClosesTotal.Inc()
		out = *sess
		return nil
	})
	return out, err
}

// settle closes an open session at now and applies the day's debt to the
// owning member within the caller's transaction.
func (s *Service) settle(ctx context.Context, tx Store, member *Member, sess *Session, now time.Time) error {
	if sess.Status == StatusStudying {
		foldElapsed(sess, now)
	}
	sess.CheckOutAt = &now
	sess.Status = StatusCompleted
	if err := tx.UpdateSession(ctx, *sess); err != nil {
		return err
	}
	member.DebtSeconds += s.targetFor(sess.SessionDate) - sess.TotalStudySeconds
	if err := tx.UpdateMember(ctx, *member); err != nil {
		return err
	}
	settlementsTotal.Inc()
	return nil
}

// Reconcile advances every member's ledger through yesterday. Each elapsed
// weekday since the member's last reconciled date is settled once: full
// absence and forgotten check-outs accrue the daily target, normally closed
// sessions were already settled at check-out and accrue nothing. The current
// day is left to its own check-out. Safe to run on every read; a second run
// with no intervening actions changes nothing.
func (s *Service) Reconcile(ctx context.Context) error {
	today := DateOf(s.clock.Now(), s.zone)
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return err
	}
	for _, m := range members {
		if !m.ReconciledThrough.Before(today) {
			continue
		}
		err := s.store.WithTx(ctx, func(tx Store) error {
			return s.reconcileMember(ctx, tx, m.ID, today)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) reconcileMember(ctx context.Context, tx Store, memberID string, today time.Time) error {
	member, err := tx.MemberByID(ctx, memberID)
	if err != nil {
		return err
	}
	if member == nil || !member.ReconciledThrough.Before(today) {
		return nil
	}

	// Debt from earlier weeks is forgiven the first time a pass runs on a
	// Monday of a later ISO week. A ledger already reconciled through Sunday
	// can only mean an earlier pass ran this same Monday (a Sunday pass stops
	// at Saturday), so the reset must not re-fire and wipe the day's
	// settlements.
	if today.Weekday() == time.Monday && isoWeekBefore(member.ReconciledThrough, today) &&
		!member.ReconciledThrough.Equal(today.AddDate(0, 0, -1)) {
		member.DebtSeconds = 0
	}

	for d := member.ReconciledThrough.AddDate(0, 0, 1); d.Before(today); d = d.AddDate(0, 0, 1) {
		if !IsWeekend(d) {
			sess, err := tx.SessionByMemberAndDate(ctx, member.ID, d)
			if err != nil {
				return err
			}
			switch {
			case sess == nil:
				// Full-day absence.
				member.DebtSeconds += s.targetFor(d)
			case sess.Open():
				// Forgotten check-out: the member is assumed to have stopped
				// at their last recorded event, and the day counts as an
				// absence regardless of the seconds already accumulated.
				checkOut := sess.LastEventAt
				sess.CheckOutAt = &checkOut
				sess.Status = StatusCompleted
				if err := tx.UpdateSession(ctx, *sess); err != nil {
					return err
				}
				member.DebtSeconds += s.targetFor(d)
			default:
				// Settled at check-out; trusting the stored total here keeps
				// the day from being counted twice.
			}
			reconciledDaysTotal.Inc()
		}
		member.ReconciledThrough = d
	}
	return tx.UpdateMember(ctx, *member)
}

// isoWeekBefore reports whether a's ISO week falls strictly before b's. The
// year is part of the comparison so week 52 of one year sorts before week 1
// of the next.
func isoWeekBefore(a, b time.Time) bool {
	ay, aw := a.ISOWeek()
	by, bw := b.ISOWeek()
	return ay < by || (ay == by && aw < bw)
}
