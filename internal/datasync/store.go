// Package datasync keeps a local view of the remote collections consistent:
// a cache store mutated only by the Syncer and the record engine's
// post-success merges, a cross-context broadcast for change signals, and
// the Syncer that reconciles on a timer and on those signals.
package datasync

import (
	"sync"

	"biomark/internal/model"
)

// Store is the local cache of the five remote collections plus the
// per-user biometric enrollment rows the verification gate consults.
// All collections are keyed by canonical id; snapshots come back in
// ascending numeric-id order for stable display.
type Store struct {
	mu          sync.RWMutex
	users       map[string]model.User
	courses     map[string]model.Course
	enrollments map[string]model.Enrollment // keyed studentID+"/"+courseID
	sessions    map[string]model.Session
	records     map[string]model.Record // keyed studentID+"/"+sessionID
	biometric   map[string]model.BiometricEnrollment
}

// NewStore creates an empty cache.
func NewStore() *Store {
	return &Store{
		users:       make(map[string]model.User),
		courses:     make(map[string]model.Course),
		enrollments: make(map[string]model.Enrollment),
		sessions:    make(map[string]model.Session),
		records:     make(map[string]model.Record),
		biometric:   make(map[string]model.BiometricEnrollment),
	}
}

func enrollmentKey(studentID, courseID string) string { return studentID + "/" + courseID }
func recordKey(studentID, sessionID string) string    { return studentID + "/" + sessionID }

// ReplaceUsers swaps in an authoritative user collection.
func (s *Store) ReplaceUsers(users []model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]model.User, len(users))
	for _, u := range users {
		s.users[u.ID] = u
	}
}

// ReplaceCourses swaps in an authoritative course collection.
func (s *Store) ReplaceCourses(courses []model.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses = make(map[string]model.Course, len(courses))
	for _, c := range courses {
		s.courses[c.ID] = c
	}
}

// ReplaceEnrollments swaps in an authoritative enrollment collection.
func (s *Store) ReplaceEnrollments(links []model.Enrollment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments = make(map[string]model.Enrollment, len(links))
	for _, e := range links {
		s.enrollments[enrollmentKey(e.StudentID, e.CourseID)] = e
	}
}

// ReplaceSessions swaps in an authoritative session collection.
func (s *Store) ReplaceSessions(sessions []model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]model.Session, len(sessions))
	for _, sess := range sessions {
		s.sessions[sess.ID] = sess
	}
}

// ReplaceRecords swaps in an authoritative record collection.
func (s *Store) ReplaceRecords(records []model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]model.Record, len(records))
	for _, r := range records {
		s.records[recordKey(r.StudentID, r.SessionID)] = r
	}
}

// MergeSession upserts a single session, used for optimistic merges
// after a locally-initiated create or close.
func (s *Store) MergeSession(sess model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

// MergeRecord upserts a single accepted record.
func (s *Store) MergeRecord(r model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey(r.StudentID, r.SessionID)] = r
}

// ApplyEnrollment adds a course-enrollment link locally, independent of
// remote confirmation. Idempotent.
func (s *Store) ApplyEnrollment(studentID, courseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := enrollmentKey(studentID, courseID)
	if _, ok := s.enrollments[key]; ok {
		return
	}
	s.enrollments[key] = model.Enrollment{StudentID: studentID, CourseID: courseID}
}

// SetBiometric stores enrollment flags for a user. Flags never regress
// from true to false.
func (s *Store) SetBiometric(b model.BiometricEnrollment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.biometric[b.UserID]; ok {
		b.FingerprintEnrolled = b.FingerprintEnrolled || prev.FingerprintEnrolled
		b.FaceEnrolled = b.FaceEnrolled || prev.FaceEnrolled
	}
	s.biometric[b.UserID] = b
}

// Users returns a sorted snapshot.
func (s *Store) Users() []model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	model.SortByID(out, func(u model.User) string { return u.ID })
	return out
}

// Courses returns a sorted snapshot.
func (s *Store) Courses() []model.Course {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Course, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, c)
	}
	model.SortByID(out, func(c model.Course) string { return c.ID })
	return out
}

// Enrollments returns a snapshot sorted by (studentID, courseID).
func (s *Store) Enrollments() []model.Enrollment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Enrollment, 0, len(s.enrollments))
	for _, e := range s.enrollments {
		out = append(out, e)
	}
	model.SortByID(out, func(e model.Enrollment) string { return e.StudentID + "/" + e.CourseID })
	return out
}

// Sessions returns a sorted snapshot.
func (s *Store) Sessions() []model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	model.SortByID(out, func(sess model.Session) string { return sess.ID })
	return out
}

// Records returns a sorted snapshot.
func (s *Store) Records() []model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	model.SortByID(out, func(r model.Record) string { return r.ID })
	return out
}

// UserByID looks up a cached user.
func (s *Store) UserByID(id string) (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// CourseByID looks up a cached course.
func (s *Store) CourseByID(id string) (model.Course, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.courses[id]
	return c, ok
}

// SessionByID looks up a cached session.
func (s *Store) SessionByID(id string) (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// RecordFor returns the record for a (student, session) pair, if any.
func (s *Store) RecordFor(studentID, sessionID string) (model.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordKey(studentID, sessionID)]
	return r, ok
}

// BiometricFor returns cached enrollment flags; the zero value means
// nothing is enrolled.
func (s *Store) BiometricFor(userID string) model.BiometricEnrollment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.biometric[userID]; ok {
		return b
	}
	return model.BiometricEnrollment{UserID: userID}
}

// IsEnrolled reports whether a student is linked to a course.
func (s *Store) IsEnrolled(studentID, courseID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.enrollments[enrollmentKey(studentID, courseID)]
	return ok
}

// EnrolledCourseIDs lists a student's course ids in id order.
func (s *Store) EnrolledCourseIDs(studentID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, e := range s.enrollments {
		if e.StudentID == studentID {
			out = append(out, e.CourseID)
		}
	}
	sortIDs(out)
	return out
}

// EnrolledStudentIDs lists a course's student ids in id order.
func (s *Store) EnrolledStudentIDs(courseID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, e := range s.enrollments {
		if e.CourseID == courseID {
			out = append(out, e.StudentID)
		}
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []string) {
	model.SortByID(ids, func(id string) string { return id })
}
