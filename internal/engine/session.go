package engine

import (
	"context"

	"biomark/internal/model"
)

// Session lifecycle: active on creation, closed terminally. CourseID and
// LecturerID never change; EndTime is set only on the close transition.

// OpenSession creates an active session for a course, stamped with the
// current local date and start time at minute precision. The remote
// service assigns the identifier.
func (e *Engine) OpenSession(ctx context.Context, courseID, lecturerID string, bt model.BiometricType) (model.Session, error) {
	now := e.now()
	sess := model.Session{
		CourseID:         courseID,
		LecturerID:       lecturerID,
		Date:             now.Format(model.DateLayout),
		StartTime:        now.Format(model.TimeLayout),
		Status:           model.SessionActive,
		BiometricEnabled: true,
		BiometricType:    bt,
	}
	created, err := e.remote.CreateSession(ctx, sess)
	if err != nil {
		return model.Session{}, wrap(KindRecordRejected, "session creation was rejected", err)
	}
	e.store.MergeSession(created)
	if e.notify != nil {
		e.notify.NotifyMutation(ctx)
	}
	return created, nil
}

// CloseSession transitions an active session to closed, stamping
// EndTime. Only the owning lecturer may close it; a second close fails.
func (e *Engine) CloseSession(ctx context.Context, sessionID, lecturerID string) (model.Session, error) {
	sess, ok := e.store.SessionByID(sessionID)
	if !ok {
		return model.Session{}, failf(KindNotFound, "session %s not found", sessionID)
	}
	if sess.Status == model.SessionClosed {
		return model.Session{}, failf(KindInvalidTransition, "session is already closed")
	}
	if lecturerID != "" && sess.LecturerID != lecturerID {
		return model.Session{}, failf(KindInvalidTransition, "session belongs to another lecturer")
	}

	sess.Status = model.SessionClosed
	sess.EndTime = e.now().Format(model.TimeLayout)
	closed, err := e.remote.UpdateSession(ctx, sess)
	if err != nil {
		return model.Session{}, wrap(KindRecordRejected, "session close was rejected", err)
	}
	e.store.MergeSession(closed)
	if e.notify != nil {
		e.notify.NotifyMutation(ctx)
	}
	return closed, nil
}
