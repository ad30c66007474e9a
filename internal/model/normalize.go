package model

import (
	"strings"
	"time"
)

// Wire payloads mirror the loosely-typed JSON the remote service emits:
// numeric ids, upper-cased enum strings, nullable optionals. Normalizing
// one of these is a pure function; every enum falls back to its
// documented default and every id comes out in canonical string form.

type UserPayload struct {
	ID         any     `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Role       string  `json:"role"`
	StudentID  *string `json:"studentId"`
	StaffID    *string `json:"staffId"`
	Department *string `json:"department"`
	Avatar     *string `json:"avatar"`
}

type CoursePayload struct {
	ID         any     `json:"id"`
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	LecturerID any     `json:"lecturerId"`
	Department string  `json:"department"`
	Credits    float64 `json:"credits"`
	Schedule   string  `json:"schedule"`
	Room       string  `json:"room"`
}

type EnrollmentPayload struct {
	ID        any `json:"id"`
	StudentID any `json:"studentId"`
	CourseID  any `json:"courseId"`
}

type SessionPayload struct {
	ID               any     `json:"id"`
	CourseID         any     `json:"courseId"`
	LecturerID       any     `json:"lecturerId"`
	Date             string  `json:"date"`
	StartTime        string  `json:"startTime"`
	EndTime          *string `json:"endTime"`
	Status           string  `json:"status"`
	BiometricEnabled bool    `json:"biometricEnabled"`
	AttendanceType   string  `json:"attendanceType"`
}

type RecordPayload struct {
	ID                any      `json:"id"`
	StudentID         any      `json:"studentId"`
	CourseID          any      `json:"courseId"`
	SessionID         any      `json:"sessionId"`
	Timestamp         string   `json:"timestamp"`
	Method            string   `json:"method"`
	Status            string   `json:"status"`
	VerificationScore *float64 `json:"verificationScore"`
}

type BiometricEnrollmentPayload struct {
	UserID              any    `json:"userId"`
	FingerprintEnrolled bool   `json:"fingerprintEnrolled"`
	FaceEnrolled        bool   `json:"faceEnrolled"`
	EnrolledAt          string `json:"enrolledAt"`
}

func NormalizeUser(raw UserPayload) User {
	return User{
		ID:         CanonicalID(raw.ID),
		Name:       raw.Name,
		Email:      raw.Email,
		Role:       ToRole(raw.Role),
		StudentID:  deref(raw.StudentID),
		StaffID:    deref(raw.StaffID),
		Department: deref(raw.Department),
		Avatar:     deref(raw.Avatar),
	}
}

func NormalizeCourse(raw CoursePayload) Course {
	return Course{
		ID:         CanonicalID(raw.ID),
		Code:       raw.Code,
		Name:       raw.Name,
		LecturerID: CanonicalID(raw.LecturerID),
		Department: raw.Department,
		Credits:    int(raw.Credits),
		Schedule:   raw.Schedule,
		Room:       raw.Room,
	}
}

func NormalizeEnrollment(raw EnrollmentPayload) Enrollment {
	return Enrollment{
		ID:        CanonicalID(raw.ID),
		StudentID: CanonicalID(raw.StudentID),
		CourseID:  CanonicalID(raw.CourseID),
	}
}

func NormalizeSession(raw SessionPayload) Session {
	return Session{
		ID:               CanonicalID(raw.ID),
		CourseID:         CanonicalID(raw.CourseID),
		LecturerID:       CanonicalID(raw.LecturerID),
		Date:             raw.Date,
		StartTime:        raw.StartTime,
		EndTime:          deref(raw.EndTime),
		Status:           ToSessionStatus(raw.Status),
		BiometricEnabled: raw.BiometricEnabled,
		BiometricType:    ToBiometricType(raw.AttendanceType),
	}
}

func NormalizeRecord(raw RecordPayload) Record {
	return Record{
		ID:                CanonicalID(raw.ID),
		StudentID:         CanonicalID(raw.StudentID),
		CourseID:          CanonicalID(raw.CourseID),
		SessionID:         CanonicalID(raw.SessionID),
		Timestamp:         parseTimestamp(raw.Timestamp),
		Method:            ToMethod(raw.Method),
		Status:            ToRecordStatus(raw.Status),
		VerificationScore: raw.VerificationScore,
	}
}

func NormalizeBiometricEnrollment(raw BiometricEnrollmentPayload) BiometricEnrollment {
	return BiometricEnrollment{
		UserID:              CanonicalID(raw.UserID),
		FingerprintEnrolled: raw.FingerprintEnrolled,
		FaceEnrolled:        raw.FaceEnrolled,
		EnrolledAt:          raw.EnrolledAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parseTimestamp accepts the layouts the remote service has been seen to
// emit. An unparseable value yields the zero time rather than an error;
// record timestamps are informational.
func parseTimestamp(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, DateTimeLayout, "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}
