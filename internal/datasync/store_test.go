package datasync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"biomark/internal/model"
)

func TestSnapshotsAreSortedNumerically(t *testing.T) {
	s := NewStore()
	s.ReplaceUsers([]model.User{{ID: "10"}, {ID: "2"}, {ID: "1"}})

	users := s.Users()
	assert.Equal(t, []string{"1", "2", "10"}, []string{users[0].ID, users[1].ID, users[2].ID})
}

func TestReplaceIsAuthoritative(t *testing.T) {
	s := NewStore()
	s.ReplaceCourses([]model.Course{{ID: "1"}, {ID: "2"}})
	s.ReplaceCourses([]model.Course{{ID: "3"}})

	assert.Len(t, s.Courses(), 1)
	_, ok := s.CourseByID("1")
	assert.False(t, ok, "replace drops entries absent from the new payload")
}

func TestApplyEnrollmentIdempotent(t *testing.T) {
	s := NewStore()
	s.ApplyEnrollment("5", "1")
	s.ApplyEnrollment("5", "1")
	s.ApplyEnrollment("5", "2")

	assert.True(t, s.IsEnrolled("5", "1"))
	assert.Equal(t, []string{"1", "2"}, s.EnrolledCourseIDs("5"))
	assert.Len(t, s.Enrollments(), 2)
}

func TestEnrolledStudentIDs(t *testing.T) {
	s := NewStore()
	s.ApplyEnrollment("10", "1")
	s.ApplyEnrollment("2", "1")
	s.ApplyEnrollment("5", "2")

	assert.Equal(t, []string{"2", "10"}, s.EnrolledStudentIDs("1"))
}

func TestSetBiometricNeverRegresses(t *testing.T) {
	s := NewStore()
	s.SetBiometric(model.BiometricEnrollment{UserID: "5", FingerprintEnrolled: true})
	s.SetBiometric(model.BiometricEnrollment{UserID: "5", FaceEnrolled: true})

	b := s.BiometricFor("5")
	assert.True(t, b.FingerprintEnrolled)
	assert.True(t, b.FaceEnrolled)
}

func TestBiometricForUnknownUser(t *testing.T) {
	s := NewStore()
	b := s.BiometricFor("99")
	assert.Equal(t, "99", b.UserID)
	assert.False(t, b.Enrolled(model.MethodFingerprint))
	assert.True(t, b.Enrolled(model.MethodManual))
}

func TestRecordFor(t *testing.T) {
	s := NewStore()
	s.MergeRecord(model.Record{ID: "9", StudentID: "5", SessionID: "3", Status: model.StatusPresent})

	r, ok := s.RecordFor("5", "3")
	assert.True(t, ok)
	assert.Equal(t, "9", r.ID)

	_, ok = s.RecordFor("5", "4")
	assert.False(t, ok)
}

func TestMergeSessionUpserts(t *testing.T) {
	s := NewStore()
	s.MergeSession(model.Session{ID: "3", Status: model.SessionActive})
	s.MergeSession(model.Session{ID: "3", Status: model.SessionClosed, EndTime: "10:00"})

	sess, ok := s.SessionByID("3")
	assert.True(t, ok)
	assert.Equal(t, model.SessionClosed, sess.Status)
	assert.Equal(t, "10:00", sess.EndTime)
	assert.Len(t, s.Sessions(), 1)
}
