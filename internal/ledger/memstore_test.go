package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store for engine tests, in the same spirit as the
// queue package's in-memory backend.
type memStore struct {
	members  []*Member
	sessions []*Session
}

func (s *memStore) WithTx(_ context.Context, fn func(Store) error) error {
	return fn(s)
}

func (s *memStore) GetOrCreateMember(_ context.Context, name string, today time.Time) (Member, error) {
	for _, m := range s.members {
		if m.Name == name {
			return *m, nil
		}
	}
	m := &Member{ID: uuid.NewString(), Name: name, ReconciledThrough: today, CreatedAt: today}
	s.members = append(s.members, m)
	return *m, nil
}

func (s *memStore) MemberByName(_ context.Context, name string) (*Member, error) {
	for _, m := range s.members {
		if m.Name == name {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) MemberByID(_ context.Context, id string) (*Member, error) {
	for _, m := range s.members {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListMembers(_ context.Context) ([]Member, error) {
	out := make([]Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, *m)
	}
	return out, nil
}

func (s *memStore) UpdateMember(_ context.Context, m Member) error {
	for _, stored := range s.members {
		if stored.ID == m.ID {
			*stored = m
			return nil
		}
	}
	return nil
}

func (s *memStore) CreateSession(_ context.Context, sess Session) (Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.CreatedAt = sess.CheckInAt
	cp := sess
	s.sessions = append(s.sessions, &cp)
	return sess, nil
}

func (s *memStore) OpenSessionByMember(_ context.Context, memberID string) (*Session, error) {
	for _, sess := range s.sessions {
		if sess.MemberID == memberID && sess.CheckOutAt == nil {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) SessionByMemberAndDate(_ context.Context, memberID string, date time.Time) (*Session, error) {
	for _, sess := range s.sessions {
		if sess.MemberID == memberID && sess.SessionDate.Equal(date) {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) SessionByID(_ context.Context, id string) (*Session, error) {
	for _, sess := range s.sessions {
		if sess.ID == id {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) SessionsByDate(_ context.Context, date time.Time) ([]Session, error) {
	var out []Session
	for _, sess := range s.sessions {
		if sess.SessionDate.Equal(date) {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (s *memStore) ListSessions(_ context.Context) ([]Session, error) {
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckInAt.After(out[j].CheckInAt) })
	return out, nil
}

func (s *memStore) UpdateSession(_ context.Context, sess Session) error {
	for _, stored := range s.sessions {
		if stored.ID == sess.ID {
			*stored = sess
			return nil
		}
	}
	return nil
}

// manualClock is advanced by hand in tests.
type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) advance(d time.Duration) { c.now = c.now.Add(d) }
