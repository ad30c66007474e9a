package engine

import (
	"context"
	"math/rand"

	"biomark/internal/metrics"
	"biomark/internal/model"
)

// MarkAttendance turns a (student, session, method) triple into an
// attendance record. Gates run strictly in order and the cheap local
// ones come first: duplicate, session state, biometric enrollment, then
// the credential ceremony, then the remote write. A failing local gate
// never contacts the remote collaborator.
func (e *Engine) MarkAttendance(ctx context.Context, studentID, sessionID string, method model.Method) (model.Record, error) {
	if _, dup := e.store.RecordFor(studentID, sessionID); dup {
		return model.Record{}, failf(KindAlreadyRecorded, "attendance already recorded for this session")
	}

	sess, ok := e.store.SessionByID(sessionID)
	if !ok {
		return model.Record{}, failf(KindNotFound, "session %s not found", sessionID)
	}
	if sess.Status != model.SessionActive {
		return model.Record{}, failf(KindSessionClosed, "this session is not active")
	}

	if !e.store.BiometricFor(studentID).Enrolled(method) {
		return model.Record{}, failf(KindBiometricNotEnrolled, "enroll %s first before signing attendance", method)
	}

	displayName := studentID
	if u, ok := e.store.UserByID(studentID); ok && u.Name != "" {
		displayName = u.Name
	}
	if err := e.gate.ProveIdentity(ctx, studentID, displayName); err != nil {
		return model.Record{}, gateError(err)
	}

	rec := e.buildRecord(studentID, sess, method, scorePtr(100))
	return e.submitRecord(ctx, rec)
}

// Scan is the lecturer-operated path: a simulated biometric capture at
// the lecturer's station. No credential ceremony runs; acceptance hinges
// on the confidence score clearing the threshold.
func (e *Engine) Scan(ctx context.Context, studentID, sessionID string, method model.Method) (model.Record, error) {
	if _, dup := e.store.RecordFor(studentID, sessionID); dup {
		metrics.ScansTotal.WithLabelValues("duplicate").Inc()
		return model.Record{}, failf(KindAlreadyRecorded, "attendance already recorded for this session")
	}
	sess, ok := e.store.SessionByID(sessionID)
	if !ok {
		return model.Record{}, failf(KindNotFound, "session %s not found", sessionID)
	}
	if sess.Status != model.SessionActive {
		metrics.ScansTotal.WithLabelValues("closed").Inc()
		return model.Record{}, failf(KindSessionClosed, "this session is not active")
	}

	score := e.scorer.Score(studentID, method)
	if score <= ScanThreshold {
		metrics.ScansTotal.WithLabelValues("mismatch").Inc()
		return model.Record{}, failf(KindVerificationFailed, "biometric mismatch (%.0f%% match), please retry", score)
	}
	metrics.ScansTotal.WithLabelValues("verified").Inc()

	rec := e.buildRecord(studentID, sess, method, scorePtr(score))
	return e.submitRecord(ctx, rec)
}

// buildRecord classifies present vs late against the session's grace
// deadline. Exactly on the deadline is still present.
func (e *Engine) buildRecord(studentID string, sess model.Session, method model.Method, score *float64) model.Record {
	now := e.now()
	status := model.StatusPresent
	if start, err := model.SessionStart(sess, now.Location()); err == nil {
		if now.After(start.Add(GraceWindow)) {
			status = model.StatusLate
		}
	}
	return model.Record{
		StudentID:         studentID,
		CourseID:          sess.CourseID,
		SessionID:         sess.ID,
		Timestamp:         now,
		Method:            method,
		Status:            status,
		VerificationScore: score,
	}
}

// submitRecord writes through to the remote collaborator and merges the
// confirmed record into the cache. A rejection leaves the cache alone.
func (e *Engine) submitRecord(ctx context.Context, rec model.Record) (model.Record, error) {
	created, err := e.remote.CreateRecord(ctx, rec)
	if err != nil {
		return model.Record{}, wrap(KindRecordRejected, "attendance record was rejected", err)
	}
	e.store.MergeRecord(created)
	metrics.MarksTotal.WithLabelValues(string(created.Status)).Inc()
	if e.notify != nil {
		e.notify.NotifyMutation(ctx)
	}
	return created, nil
}

// RandomScorer fabricates plausible confidence scores in the 83-97
// range, mirroring the simulated capture hardware.
type RandomScorer struct{}

// Score returns a random confidence score.
func (RandomScorer) Score(string, model.Method) float64 {
	return float64(83 + rand.Intn(15))
}
