package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biomark/internal/credential"
	"biomark/internal/datasync"
	"biomark/internal/model"
	"biomark/internal/remote"
)

// fakeRemote counts calls and echoes writes back with server-assigned ids,
// the way the backend does.
type fakeRemote struct {
	loginResult remote.LoginResult
	loginErr    error

	createRecordCalls int
	createRecordErr   error

	createSessionErr     error
	updateSessionErr     error
	createEnrollmentErr  error
	enrollmentCalls      int
	upsertBiometricCalls int
	upsertBiometricErr   error

	nextID int
}

func (f *fakeRemote) assignID() string {
	f.nextID++
	return model.CanonicalID(f.nextID + 100)
}

func (f *fakeRemote) Login(context.Context, string, string) (remote.LoginResult, error) {
	return f.loginResult, f.loginErr
}
func (f *fakeRemote) ClearToken() {}

func (f *fakeRemote) CreateUser(_ context.Context, u model.User, _ string) (model.User, error) {
	u.ID = f.assignID()
	return u, nil
}
func (f *fakeRemote) UpdateUser(_ context.Context, u model.User) (model.User, error) { return u, nil }
func (f *fakeRemote) DeleteUser(context.Context, string) error                       { return nil }

func (f *fakeRemote) CreateCourse(_ context.Context, c model.Course) (model.Course, error) {
	c.ID = f.assignID()
	return c, nil
}
func (f *fakeRemote) UpdateCourse(_ context.Context, c model.Course) (model.Course, error) {
	return c, nil
}
func (f *fakeRemote) DeleteCourse(context.Context, string) error { return nil }

func (f *fakeRemote) CreateEnrollment(_ context.Context, studentID, courseID string) (model.Enrollment, error) {
	f.enrollmentCalls++
	if f.createEnrollmentErr != nil {
		return model.Enrollment{}, f.createEnrollmentErr
	}
	return model.Enrollment{ID: f.assignID(), StudentID: studentID, CourseID: courseID}, nil
}

func (f *fakeRemote) EnrollmentsForStudent(_ context.Context, studentID string) ([]model.Enrollment, error) {
	return []model.Enrollment{{ID: "1", StudentID: studentID, CourseID: "1"}}, nil
}

func (f *fakeRemote) CreateSession(_ context.Context, s model.Session) (model.Session, error) {
	if f.createSessionErr != nil {
		return model.Session{}, f.createSessionErr
	}
	s.ID = f.assignID()
	return s, nil
}

func (f *fakeRemote) UpdateSession(_ context.Context, s model.Session) (model.Session, error) {
	if f.updateSessionErr != nil {
		return model.Session{}, f.updateSessionErr
	}
	return s, nil
}

func (f *fakeRemote) CreateRecord(_ context.Context, r model.Record) (model.Record, error) {
	f.createRecordCalls++
	if f.createRecordErr != nil {
		return model.Record{}, f.createRecordErr
	}
	r.ID = f.assignID()
	return r, nil
}

func (f *fakeRemote) BiometricEnrollment(_ context.Context, userID string) (model.BiometricEnrollment, error) {
	return model.BiometricEnrollment{UserID: userID, FingerprintEnrolled: true}, nil
}

func (f *fakeRemote) UpsertBiometricEnrollment(_ context.Context, _ model.BiometricEnrollment) error {
	f.upsertBiometricCalls++
	return f.upsertBiometricErr
}

type countingAuthenticator struct {
	creates int
	asserts int
	err     error
}

func (c *countingAuthenticator) CreateCredential(context.Context, string, string) (string, error) {
	c.creates++
	if c.err != nil {
		return "", c.err
	}
	return "cred", nil
}

func (c *countingAuthenticator) AssertCredential(context.Context, string) error {
	c.asserts++
	return c.err
}

type fixedScorer struct{ score float64 }

func (s fixedScorer) Score(string, model.Method) float64 { return s.score }

type countingNotifier struct{ calls int }

func (n *countingNotifier) NotifyMutation(context.Context) { n.calls++ }

type fixture struct {
	engine *Engine
	store  *datasync.Store
	remote *fakeRemote
	auth   *countingAuthenticator
	notify *countingNotifier
}

func newFixture(t *testing.T, scorer Scorer) *fixture {
	t.Helper()
	f := &fixture{
		store:  datasync.NewStore(),
		remote: &fakeRemote{},
		auth:   &countingAuthenticator{},
		notify: &countingNotifier{},
	}
	gate := credential.NewGate(f.auth, credential.NewMemoryStore())
	f.engine = New(f.store, f.remote, gate, scorer, f.notify)
	return f
}

func at(hour, minute int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 2, hour, minute, 0, 0, time.Local)
	}
}

func seedSession(f *fixture, id string, status model.SessionStatus) model.Session {
	sess := model.Session{
		ID:               id,
		CourseID:         "1",
		LecturerID:       "2",
		Date:             "2026-03-02",
		StartTime:        "09:00",
		Status:           status,
		BiometricEnabled: true,
		BiometricType:    model.BiometricFingerprint,
	}
	f.store.MergeSession(sess)
	return sess
}

func enrollFingerprint(f *fixture, studentID string) {
	f.store.SetBiometric(model.BiometricEnrollment{UserID: studentID, FingerprintEnrolled: true})
}

func TestMarkAttendanceWithinGraceIsPresent(t *testing.T) {
	f := newFixture(t, nil)
	seedSession(f, "3", model.SessionActive)
	enrollFingerprint(f, "5")
	f.engine.SetClock(at(9, 14))

	rec, err := f.engine.MarkAttendance(context.Background(), "5", "3", model.MethodFingerprint)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPresent, rec.Status)
	require.NotNil(t, rec.VerificationScore)
	assert.Equal(t, float64(100), *rec.VerificationScore)
	assert.Equal(t, 1, f.notify.calls)

	_, cached := f.store.RecordFor("5", "3")
	assert.True(t, cached)
}

func TestMarkAttendanceExactlyAtDeadlineIsPresent(t *testing.T) {
	f := newFixture(t, nil)
	seedSession(f, "3", model.SessionActive)
	enrollFingerprint(f, "5")
	f.engine.SetClock(at(9, 15))

	rec, err := f.engine.MarkAttendance(context.Background(), "5", "3", model.MethodFingerprint)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPresent, rec.Status)
}

func TestMarkAttendanceAfterDeadlineIsLate(t *testing.T) {
	f := newFixture(t, nil)
	seedSession(f, "3", model.SessionActive)
	enrollFingerprint(f, "5")
	f.engine.SetClock(at(9, 16))

	rec, err := f.engine.MarkAttendance(context.Background(), "5", "3", model.MethodFingerprint)
	require.NoError(t, err)
	assert.Equal(t, model.StatusLate, rec.Status)
}

func TestMarkAttendanceDuplicateSkipsEverything(t *testing.T) {
	f := newFixture(t, nil)
	seedSession(f, "3", model.SessionActive)
	enrollFingerprint(f, "5")
	f.store.MergeRecord(model.Record{ID: "9", StudentID: "5", SessionID: "3", Status: model.StatusPresent})

	_, err := f.engine.MarkAttendance(context.Background(), "5", "3", model.MethodFingerprint)
	assert.True(t, IsKind(err, KindAlreadyRecorded))
	assert.Zero(t, f.remote.createRecordCalls)
	assert.Zero(t, f.auth.asserts, "no ceremony for a duplicate")
}

func TestMarkAttendanceUnknownSession(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.engine.MarkAttendance(context.Background(), "5", "99", model.MethodFingerprint)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestMarkAttendanceClosedSession(t *testing.T) {
	f := newFixture(t, nil)
	seedSession(f, "3", model.SessionClosed)
	enrollFingerprint(f, "5")

	_, err := f.engine.MarkAttendance(context.Background(), "5", "3", model.MethodFingerprint)
	assert.True(t, IsKind(err, KindSessionClosed))
	assert.Zero(t, f.remote.createRecordCalls)
}

func TestMarkAttendanceRequiresEnrollment(t *testing.T) {
	f := newFixture(t, nil)
	seedSession(f, "3", model.SessionActive)

	_, err := f.engine.MarkAttendance(context.Background(), "5", "3", model.MethodFingerprint)
	assert.True(t, IsKind(err, KindBiometricNotEnrolled))
	assert.Zero(t, f.auth.creates, "enrollment gate runs before any ceremony")
	assert.Zero(t, f.auth.asserts)
}

func TestMarkAttendanceManualNeedsNoEnrollment(t *testing.T) {
	f := newFixture(t, nil)
	seedSession(f, "3", model.SessionActive)
	f.engine.SetClock(at(9, 5))

	rec, err := f.engine.MarkAttendance(context.Background(), "5", "3", model.MethodManual)
	require.NoError(t, err)
	assert.Equal(t, model.MethodManual, rec.Method)
}

func TestMarkAttendanceUnsupportedPlatform(t *testing.T) {
	f := newFixture(t, nil)
	f.auth.err = credential.ErrUnsupportedPlatform
	seedSession(f, "3", model.SessionActive)
	enrollFingerprint(f, "5")

	_, err := f.engine.MarkAttendance(context.Background(), "5", "3", model.MethodFingerprint)
	assert.True(t, IsKind(err, KindUnsupportedPlatform))
	assert.Zero(t, f.remote.createRecordCalls)
}

func TestMarkAttendanceRejectionLeavesCacheAlone(t *testing.T) {
	f := newFixture(t, nil)
	seedSession(f, "3", model.SessionActive)
	enrollFingerprint(f, "5")
	f.remote.createRecordErr = errors.New("boom")
	f.engine.SetClock(at(9, 5))

	_, err := f.engine.MarkAttendance(context.Background(), "5", "3", model.MethodFingerprint)
	assert.True(t, IsKind(err, KindRecordRejected))
	_, cached := f.store.RecordFor("5", "3")
	assert.False(t, cached)
	assert.Zero(t, f.notify.calls)
}

func TestScanBelowThresholdFails(t *testing.T) {
	f := newFixture(t, fixedScorer{score: 70})
	seedSession(f, "3", model.SessionActive)
	f.engine.SetClock(at(9, 5))

	_, err := f.engine.Scan(context.Background(), "5", "3", model.MethodFingerprint)
	assert.True(t, IsKind(err, KindVerificationFailed))
	assert.Contains(t, err.Error(), "70%")
	assert.Zero(t, f.remote.createRecordCalls)
}

func TestScanExactlyAtThresholdFails(t *testing.T) {
	f := newFixture(t, fixedScorer{score: 75})
	seedSession(f, "3", model.SessionActive)
	f.engine.SetClock(at(9, 5))

	_, err := f.engine.Scan(context.Background(), "5", "3", model.MethodFingerprint)
	assert.True(t, IsKind(err, KindVerificationFailed))
}

func TestScanAboveThresholdRecords(t *testing.T) {
	f := newFixture(t, fixedScorer{score: 90})
	seedSession(f, "3", model.SessionActive)
	f.engine.SetClock(at(9, 5))

	rec, err := f.engine.Scan(context.Background(), "5", "3", model.MethodFingerprint)
	require.NoError(t, err)
	require.NotNil(t, rec.VerificationScore)
	assert.Equal(t, float64(90), *rec.VerificationScore)
	assert.Equal(t, model.StatusPresent, rec.Status)
	assert.Zero(t, f.auth.asserts, "lecturer scans skip the credential ceremony")
}

func TestScanSkipsEnrollmentGate(t *testing.T) {
	f := newFixture(t, fixedScorer{score: 90})
	seedSession(f, "3", model.SessionActive)
	f.engine.SetClock(at(9, 5))

	_, err := f.engine.Scan(context.Background(), "5", "3", model.MethodFingerprint)
	assert.NoError(t, err)
}

func TestScanDuplicate(t *testing.T) {
	f := newFixture(t, fixedScorer{score: 90})
	seedSession(f, "3", model.SessionActive)
	f.store.MergeRecord(model.Record{ID: "9", StudentID: "5", SessionID: "3"})

	_, err := f.engine.Scan(context.Background(), "5", "3", model.MethodFingerprint)
	assert.True(t, IsKind(err, KindAlreadyRecorded))
}

func TestRandomScorerRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		score := RandomScorer{}.Score("5", model.MethodFingerprint)
		assert.GreaterOrEqual(t, score, 83.0)
		assert.LessOrEqual(t, score, 97.0)
	}
}

func TestOpenSession(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.SetClock(at(9, 0))

	sess, err := f.engine.OpenSession(context.Background(), "1", "2", model.BiometricFingerprint)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, sess.Status)
	assert.Equal(t, "2026-03-02", sess.Date)
	assert.Equal(t, "09:00", sess.StartTime)
	assert.True(t, sess.BiometricEnabled)

	_, cached := f.store.SessionByID(sess.ID)
	assert.True(t, cached)
	assert.Equal(t, 1, f.notify.calls)
}

func TestCloseSession(t *testing.T) {
	f := newFixture(t, nil)
	seedSession(f, "3", model.SessionActive)
	f.engine.SetClock(at(10, 0))

	closed, err := f.engine.CloseSession(context.Background(), "3", "2")
	require.NoError(t, err)
	assert.Equal(t, model.SessionClosed, closed.Status)
	assert.Equal(t, "10:00", closed.EndTime)

	cached, _ := f.store.SessionByID("3")
	assert.Equal(t, model.SessionClosed, cached.Status)
}

func TestCloseSessionTwice(t *testing.T) {
	f := newFixture(t, nil)
	seedSession(f, "3", model.SessionClosed)

	_, err := f.engine.CloseSession(context.Background(), "3", "2")
	assert.True(t, IsKind(err, KindInvalidTransition))
}

func TestCloseSessionWrongLecturer(t *testing.T) {
	f := newFixture(t, nil)
	seedSession(f, "3", model.SessionActive)

	_, err := f.engine.CloseSession(context.Background(), "3", "7")
	assert.True(t, IsKind(err, KindInvalidTransition))

	cached, _ := f.store.SessionByID("3")
	assert.Equal(t, model.SessionActive, cached.Status)
}

func TestCloseSessionNotFound(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.engine.CloseSession(context.Background(), "99", "2")
	assert.True(t, IsKind(err, KindNotFound))
}

func TestEnrollCourseKeepsLocalStateOnRemoteFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.createEnrollmentErr = errors.New("backend down")

	err := f.engine.EnrollCourse(context.Background(), "5", "1")
	require.NoError(t, err)
	assert.True(t, f.store.IsEnrolled("5", "1"))
	assert.Zero(t, f.notify.calls, "no broadcast for an unconfirmed write")
}

func TestEnrollCourseIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.engine.EnrollCourse(context.Background(), "5", "1"))
	require.NoError(t, f.engine.EnrollCourse(context.Background(), "5", "1"))
	assert.Equal(t, 1, f.remote.enrollmentCalls)
}

func TestEnrollBiometric(t *testing.T) {
	f := newFixture(t, nil)

	b, err := f.engine.EnrollBiometric(context.Background(), "5", "Ada", model.MethodFingerprint)
	require.NoError(t, err)
	assert.True(t, b.FingerprintEnrolled)
	assert.False(t, b.FaceEnrolled)
	assert.Equal(t, 1, f.auth.creates)
	assert.Equal(t, 1, f.remote.upsertBiometricCalls)
	assert.True(t, f.store.BiometricFor("5").Enrolled(model.MethodFingerprint))
}

func TestEnrollBiometricManualRejected(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.engine.EnrollBiometric(context.Background(), "5", "Ada", model.MethodManual)
	assert.True(t, IsKind(err, KindVerificationFailed))
	assert.Zero(t, f.auth.creates)
}

func TestEnrollBiometricRemoteRejection(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.upsertBiometricErr = errors.New("boom")

	_, err := f.engine.EnrollBiometric(context.Background(), "5", "Ada", model.MethodFace)
	assert.True(t, IsKind(err, KindRecordRejected))
	assert.False(t, f.store.BiometricFor("5").Enrolled(model.MethodFace))
}

func TestLoginFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.loginErr = errors.New("invalid credentials")

	_, err := f.engine.Login(context.Background(), "a@b.c", "pw")
	assert.True(t, IsKind(err, KindAuthenticationFailed))
}

func TestLoginEmptyIdentity(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.loginResult = remote.LoginResult{}

	_, err := f.engine.Login(context.Background(), "a@b.c", "pw")
	assert.True(t, IsKind(err, KindAuthenticationFailed))
}

func TestLoginHydratesStudentBiometric(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.loginResult = remote.LoginResult{
		User:  model.User{ID: "5", Name: "Ada", Role: model.RoleStudent},
		Token: "tok",
	}

	u, err := f.engine.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, "5", u.ID)
	assert.True(t, f.store.BiometricFor("5").Enrolled(model.MethodFingerprint))
	assert.True(t, f.store.IsEnrolled("5", "1"), "course links hydrate at login")
}

func TestUpdateUserRoleIsImmutable(t *testing.T) {
	f := newFixture(t, nil)
	f.store.ReplaceUsers([]model.User{{ID: "5", Name: "Ada", Role: model.RoleStudent}})

	updated, err := f.engine.UpdateUser(context.Background(), model.User{ID: "5", Name: "Ada L.", Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, model.RoleStudent, updated.Role)
	assert.Equal(t, "Ada L.", updated.Name)
}
