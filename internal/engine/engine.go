// Package engine implements the attendance core: the session lifecycle,
// the verification-gated record engine, and the operations the
// presentation layer calls. Every remote write flows through here; the
// cache is only touched after the remote collaborator confirms.
package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"biomark/internal/credential"
	"biomark/internal/datasync"
	"biomark/internal/model"
	"biomark/internal/remote"
)

// GraceWindow is how long after session start a mark still counts as
// present. Strictly after the deadline is late.
const GraceWindow = 15 * time.Minute

// ScanThreshold is the minimum confidence a lecturer-operated scan must
// exceed to be accepted.
const ScanThreshold = 75.0

// Remote is the subset of the backend client the engine writes through.
type Remote interface {
	Login(ctx context.Context, email, password string) (remote.LoginResult, error)
	ClearToken()
	CreateUser(ctx context.Context, u model.User, password string) (model.User, error)
	UpdateUser(ctx context.Context, u model.User) (model.User, error)
	DeleteUser(ctx context.Context, userID string) error
	CreateCourse(ctx context.Context, c model.Course) (model.Course, error)
	UpdateCourse(ctx context.Context, c model.Course) (model.Course, error)
	DeleteCourse(ctx context.Context, courseID string) error
	CreateEnrollment(ctx context.Context, studentID, courseID string) (model.Enrollment, error)
	EnrollmentsForStudent(ctx context.Context, studentID string) ([]model.Enrollment, error)
	CreateSession(ctx context.Context, s model.Session) (model.Session, error)
	UpdateSession(ctx context.Context, s model.Session) (model.Session, error)
	CreateRecord(ctx context.Context, r model.Record) (model.Record, error)
	BiometricEnrollment(ctx context.Context, userID string) (model.BiometricEnrollment, error)
	UpsertBiometricEnrollment(ctx context.Context, b model.BiometricEnrollment) error
}

// Scorer produces a confidence score for a lecturer-operated scan. The
// default fabricates one; a real matcher can be dropped in without
// touching the engine.
type Scorer interface {
	Score(studentID string, method model.Method) float64
}

// Notifier is what the engine pokes after successful mutations; the
// Syncer satisfies it.
type Notifier interface {
	NotifyMutation(ctx context.Context)
}

// Engine coordinates the credential gate, the session machine and the
// record rules over the shared cache.
type Engine struct {
	store  *datasync.Store
	remote Remote
	gate   *credential.Gate
	scorer Scorer
	notify Notifier
	now    func() time.Time
}

// New wires an engine. scorer and notify may be nil (random scorer, no
// notifications).
func New(store *datasync.Store, rc Remote, gate *credential.Gate, scorer Scorer, notify Notifier) *Engine {
	if scorer == nil {
		scorer = RandomScorer{}
	}
	return &Engine{
		store:  store,
		remote: rc,
		gate:   gate,
		scorer: scorer,
		notify: notify,
		now:    time.Now,
	}
}

// SetClock overrides the engine clock; tests pin classification
// boundaries with it.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Login authenticates against the remote service. A student's course
// enrollments and biometric flags are hydrated into the cache so the
// pre-flight gates can run locally.
func (e *Engine) Login(ctx context.Context, email, password string) (model.User, error) {
	res, err := e.remote.Login(ctx, email, password)
	if err != nil {
		return model.User{}, wrap(KindAuthenticationFailed, "login failed", err)
	}
	if res.User.ID == "" {
		return model.User{}, failf(KindAuthenticationFailed, "login failed: invalid credentials")
	}

	if res.User.Role == model.RoleStudent {
		if b, err := e.remote.BiometricEnrollment(ctx, res.User.ID); err == nil {
			e.store.SetBiometric(b)
		}
		if links, err := e.remote.EnrollmentsForStudent(ctx, res.User.ID); err == nil {
			for _, link := range links {
				e.store.ApplyEnrollment(link.StudentID, link.CourseID)
			}
		}
	}
	return res.User, nil
}

// Logout drops the remote bearer token. Cache state stays; it is
// process-scoped, not user-scoped.
func (e *Engine) Logout() {
	e.remote.ClearToken()
}

// EnrollCourse links a student to a course. The local cache is updated
// first and kept even if the remote call fails, so the acting student's
// own view stays consistent; the failure is only logged.
func (e *Engine) EnrollCourse(ctx context.Context, studentID, courseID string) error {
	if e.store.IsEnrolled(studentID, courseID) {
		return nil
	}
	e.store.ApplyEnrollment(studentID, courseID)

	if _, err := e.remote.CreateEnrollment(ctx, studentID, courseID); err != nil {
		log.Printf("enrollment create failed for student %s course %s, keeping local state: %v", studentID, courseID, err)
		return nil
	}
	if e.notify != nil {
		e.notify.NotifyMutation(ctx)
	}
	return nil
}

// EnrollBiometric runs the credential ceremony for a method and records
// the flag remotely and locally. Flags only ever move false to true.
func (e *Engine) EnrollBiometric(ctx context.Context, userID, displayName string, method model.Method) (model.BiometricEnrollment, error) {
	if method != model.MethodFingerprint && method != model.MethodFace {
		return model.BiometricEnrollment{}, failf(KindVerificationFailed, "method %q cannot be enrolled", method)
	}
	if err := e.gate.ProveIdentity(ctx, userID, displayName); err != nil {
		return model.BiometricEnrollment{}, gateError(err)
	}

	next := e.store.BiometricFor(userID)
	next.FingerprintEnrolled = next.FingerprintEnrolled || method == model.MethodFingerprint
	next.FaceEnrolled = next.FaceEnrolled || method == model.MethodFace

	if err := e.remote.UpsertBiometricEnrollment(ctx, next); err != nil {
		return model.BiometricEnrollment{}, wrap(KindRecordRejected, "biometric enrollment was rejected", err)
	}
	e.store.SetBiometric(next)
	if e.notify != nil {
		e.notify.NotifyMutation(ctx)
	}
	return next, nil
}

// AddUser creates a user (admin operation).
func (e *Engine) AddUser(ctx context.Context, u model.User, password string) (model.User, error) {
	created, err := e.remote.CreateUser(ctx, u, password)
	if err != nil {
		return model.User{}, wrap(KindRecordRejected, "user creation was rejected", err)
	}
	if e.notify != nil {
		e.notify.NotifyMutation(ctx)
	}
	return created, nil
}

// UpdateUser updates a user's mutable fields (admin operation). Role is
// immutable; the cached role wins over whatever the caller sent.
func (e *Engine) UpdateUser(ctx context.Context, u model.User) (model.User, error) {
	if existing, ok := e.store.UserByID(u.ID); ok {
		u.Role = existing.Role
	}
	updated, err := e.remote.UpdateUser(ctx, u)
	if err != nil {
		return model.User{}, wrap(KindRecordRejected, "user update was rejected", err)
	}
	if e.notify != nil {
		e.notify.NotifyMutation(ctx)
	}
	return updated, nil
}

// DeleteUser removes a user (admin operation).
func (e *Engine) DeleteUser(ctx context.Context, userID string) error {
	if err := e.remote.DeleteUser(ctx, userID); err != nil {
		return wrap(KindRecordRejected, "user deletion was rejected", err)
	}
	if e.notify != nil {
		e.notify.NotifyMutation(ctx)
	}
	return nil
}

// AddCourse creates a course (admin operation).
func (e *Engine) AddCourse(ctx context.Context, c model.Course) (model.Course, error) {
	created, err := e.remote.CreateCourse(ctx, c)
	if err != nil {
		return model.Course{}, wrap(KindRecordRejected, "course creation was rejected", err)
	}
	if e.notify != nil {
		e.notify.NotifyMutation(ctx)
	}
	return created, nil
}

// UpdateCourse updates a course (admin operation).
func (e *Engine) UpdateCourse(ctx context.Context, c model.Course) (model.Course, error) {
	updated, err := e.remote.UpdateCourse(ctx, c)
	if err != nil {
		return model.Course{}, wrap(KindRecordRejected, "course update was rejected", err)
	}
	if e.notify != nil {
		e.notify.NotifyMutation(ctx)
	}
	return updated, nil
}

// DeleteCourse removes a course (admin operation).
func (e *Engine) DeleteCourse(ctx context.Context, courseID string) error {
	if err := e.remote.DeleteCourse(ctx, courseID); err != nil {
		return wrap(KindRecordRejected, "course deletion was rejected", err)
	}
	if e.notify != nil {
		e.notify.NotifyMutation(ctx)
	}
	return nil
}

func gateError(err error) *Error {
	switch {
	case errors.Is(err, credential.ErrUnsupportedPlatform):
		return wrap(KindUnsupportedPlatform, "this device cannot perform biometric verification", err)
	default:
		return wrap(KindVerificationFailed, "biometric verification failed", err)
	}
}

func scorePtr(v float64) *float64 { return &v }
