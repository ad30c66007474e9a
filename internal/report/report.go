// Package report derives read-only aggregates from the cache. Nothing
// here mutates state.
package report

import (
	"math"

	"biomark/internal/datasync"
	"biomark/internal/model"
)

// Projection computes attendance aggregates over cache snapshots.
type Projection struct {
	store *datasync.Store
}

// New creates a projection over a cache store.
func New(store *datasync.Store) *Projection {
	return &Projection{store: store}
}

// CourseAttendancePct is the course-wide attendance percentage: records
// with status present or late, scoped to closed sessions of the course,
// over the count of closed sessions. Rounded to the nearest integer,
// capped at 100, and 0 when the course has no closed sessions.
func (p *Projection) CourseAttendancePct(courseID string) int {
	closed := make(map[string]bool)
	for _, sess := range p.store.Sessions() {
		if sess.CourseID == courseID && sess.Status == model.SessionClosed {
			closed[sess.ID] = true
		}
	}
	if len(closed) == 0 {
		return 0
	}

	var attended int
	for _, rec := range p.store.Records() {
		if closed[rec.SessionID] && (rec.Status == model.StatusPresent || rec.Status == model.StatusLate) {
			attended++
		}
	}
	pct := int(math.Round(float64(attended) / float64(len(closed)) * 100))
	if pct > 100 {
		pct = 100
	}
	return pct
}

// SessionBreakdown holds per-session counts. Absent is derived: students
// enrolled in the session's course with no record in the session.
type SessionBreakdown struct {
	SessionID string `json:"sessionId"`
	Present   int    `json:"present"`
	Late      int    `json:"late"`
	Absent    int    `json:"absent"`
}

// SessionCounts computes the present/late/absent breakdown for one
// session.
func (p *Projection) SessionCounts(sessionID string) SessionBreakdown {
	out := SessionBreakdown{SessionID: sessionID}
	sess, ok := p.store.SessionByID(sessionID)
	if !ok {
		return out
	}

	recorded := make(map[string]bool)
	for _, rec := range p.store.Records() {
		if rec.SessionID != sessionID {
			continue
		}
		recorded[rec.StudentID] = true
		switch rec.Status {
		case model.StatusPresent:
			out.Present++
		case model.StatusLate:
			out.Late++
		}
	}
	for _, studentID := range p.store.EnrolledStudentIDs(sess.CourseID) {
		if !recorded[studentID] {
			out.Absent++
		}
	}
	return out
}

// StudentSummary holds one student's attendance totals across the closed
// sessions of their enrolled courses.
type StudentSummary struct {
	StudentID  string `json:"studentId"`
	Present    int    `json:"present"`
	Late       int    `json:"late"`
	OverallPct int    `json:"overallPct"`
}

// StudentTotals computes a student's present/late totals and overall
// percentage over closed sessions of courses they are enrolled in.
func (p *Projection) StudentTotals(studentID string) StudentSummary {
	out := StudentSummary{StudentID: studentID}
	enrolled := make(map[string]bool)
	for _, courseID := range p.store.EnrolledCourseIDs(studentID) {
		enrolled[courseID] = true
	}

	var closedSessions int
	for _, sess := range p.store.Sessions() {
		if enrolled[sess.CourseID] && sess.Status == model.SessionClosed {
			closedSessions++
		}
	}
	for _, rec := range p.store.Records() {
		if rec.StudentID != studentID {
			continue
		}
		switch rec.Status {
		case model.StatusPresent:
			out.Present++
		case model.StatusLate:
			out.Late++
		}
	}
	if closedSessions > 0 {
		pct := int(math.Round(float64(out.Present+out.Late) / float64(closedSessions) * 100))
		if pct > 100 {
			pct = 100
		}
		out.OverallPct = pct
	}
	return out
}
