package ledger

import "context"

// TodayStatus describes a member's session for the current business date.
type TodayStatus struct {
	SessionID         string `json:"session_id"`
	Status            Status `json:"status"`
	TotalStudySeconds int64  `json:"total_study_seconds"`
	LastEventUnix     int64  `json:"last_event_unix,omitempty"`
	Unclosed          bool   `json:"unclosed"`
}

// MemberReport is one ledger row plus the member's live state for today.
type MemberReport struct {
	Name        string       `json:"name"`
	DebtSeconds int64        `json:"debt_seconds"`
	Today       *TodayStatus `json:"today,omitempty"`
}

// Report is the full read-facing view: every member with current debt and
// the session history, newest check-in first.
type Report struct {
	Date    string         `json:"date"`
	Members []MemberReport `json:"members"`
	History []Session      `json:"history"`
}

// ReconcileAndReport runs the catch-up pass and returns the resulting view.
// LastEventUnix is populated only for sessions still counting (studying), so
// a client can render a live-ticking total.
func (s *Service) ReconcileAndReport(ctx context.Context) (Report, error) {
	if err := s.Reconcile(ctx); err != nil {
		return Report{}, err
	}

	today := DateOf(s.clock.Now(), s.zone)
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return Report{}, err
	}
	todays, err := s.store.SessionsByDate(ctx, today)
	if err != nil {
		return Report{}, err
	}
	history, err := s.store.ListSessions(ctx)
	if err != nil {
		return Report{}, err
	}

	byMember := make(map[string]Session, len(todays))
	for _, sess := range todays {
		byMember[sess.MemberID] = sess
	}

	report := Report{Date: today.Format("2006-01-02"), History: history}
	for _, m := range members {
		row := MemberReport{Name: m.Name, DebtSeconds: m.DebtSeconds}
		if sess, ok := byMember[m.ID]; ok {
			status := sess.Status
			if !sess.Open() {
				status = StatusCompleted
			}
			ts := TodayStatus{
				SessionID:         sess.ID,
				Status:            status,
				TotalStudySeconds: sess.TotalStudySeconds,
				Unclosed:          sess.Open(),
			}
			if status == StatusStudying {
				ts.LastEventUnix = sess.LastEventAt.Unix()
			}
			row.Today = &ts
		}
		report.Members = append(report.Members, row)
	}
	return report, nil
}
