package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Role identifies what a user may do in the system.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleLecturer Role = "lecturer"
	RoleStudent  Role = "student"
)

// SessionStatus is the lifecycle state of an attendance session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// BiometricType is the verification mode a session accepts.
type BiometricType string

const (
	BiometricFingerprint BiometricType = "fingerprint"
	BiometricFace        BiometricType = "face"
	BiometricBoth        BiometricType = "both"
)

// Method is how a single attendance record was produced.
type Method string

const (
	MethodFingerprint Method = "fingerprint"
	MethodFace        Method = "face"
	MethodManual      Method = "manual"
)

// RecordStatus classifies an attendance record.
type RecordStatus string

const (
	StatusPresent RecordStatus = "present"
	StatusLate    RecordStatus = "late"
	StatusAbsent  RecordStatus = "absent"
)

// User is an account known to the remote service. Role never changes
// after creation.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	StudentID  string `json:"studentId,omitempty"`
	StaffID    string `json:"staffId,omitempty"`
	Department string `json:"department,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
}

// Course is owned by one lecturer. The student relation lives in
// Enrollment rows, not on the course itself.
type Course struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	LecturerID string `json:"lecturerId"`
	Department string `json:"department"`
	Credits    int    `json:"credits"`
	Schedule   string `json:"schedule"`
	Room       string `json:"room"`
}

// Enrollment links one student to one course.
type Enrollment struct {
	ID        string `json:"id,omitempty"`
	StudentID string `json:"studentId"`
	CourseID  string `json:"courseId"`
}

// Session is a lecturer-bounded attendance window for one course on one
// date. CourseID and LecturerID are fixed at creation; EndTime is set
// only when the session closes.
type Session struct {
	ID               string        `json:"id"`
	CourseID         string        `json:"courseId"`
	LecturerID       string        `json:"lecturerId"`
	Date             string        `json:"date"`      // 2006-01-02
	StartTime        string        `json:"startTime"` // 15:04
	EndTime          string        `json:"endTime,omitempty"`
	Status           SessionStatus `json:"status"`
	BiometricEnabled bool          `json:"biometricEnabled"`
	BiometricType    BiometricType `json:"biometricType"`
}

// Record is the immutable outcome of one accepted attendance attempt.
// At most one record may exist per (StudentID, SessionID).
type Record struct {
	ID                string       `json:"id"`
	StudentID         string       `json:"studentId"`
	CourseID          string       `json:"courseId"`
	SessionID         string       `json:"sessionId"`
	Timestamp         time.Time    `json:"timestamp"`
	Method            Method       `json:"method"`
	Status            RecordStatus `json:"status"`
	VerificationScore *float64     `json:"verificationScore,omitempty"`
}

// BiometricEnrollment tracks which verification methods a user has
// enrolled. Flags only ever transition false to true.
type BiometricEnrollment struct {
	UserID              string `json:"userId"`
	FingerprintEnrolled bool   `json:"fingerprintEnrolled"`
	FaceEnrolled        bool   `json:"faceEnrolled"`
	EnrolledAt          string `json:"enrolledAt,omitempty"`
}

// Enrolled reports whether the given method may be attempted.
func (b BiometricEnrollment) Enrolled(m Method) bool {
	switch m {
	case MethodFingerprint:
		return b.FingerprintEnrolled
	case MethodFace:
		return b.FaceEnrolled
	case MethodManual:
		return true
	}
	return false
}

// ToRole coerces a wire value to a role, defaulting to student.
func ToRole(v string) Role {
	switch strings.ToLower(v) {
	case "admin":
		return RoleAdmin
	case "lecturer":
		return RoleLecturer
	}
	return RoleStudent
}

// ToSessionStatus coerces a wire value, defaulting to active.
func ToSessionStatus(v string) SessionStatus {
	if strings.ToLower(v) == "closed" {
		return SessionClosed
	}
	return SessionActive
}

// ToBiometricType coerces a wire value, defaulting to fingerprint.
func ToBiometricType(v string) BiometricType {
	switch strings.ToLower(v) {
	case "face":
		return BiometricFace
	case "both":
		return BiometricBoth
	}
	return BiometricFingerprint
}

// ToMethod coerces a wire value, defaulting to fingerprint.
func ToMethod(v string) Method {
	switch strings.ToLower(v) {
	case "face":
		return MethodFace
	case "manual":
		return MethodManual
	}
	return MethodFingerprint
}

// ToRecordStatus coerces a wire value, defaulting to present.
func ToRecordStatus(v string) RecordStatus {
	switch strings.ToLower(v) {
	case "late":
		return StatusLate
	case "absent":
		return StatusAbsent
	}
	return StatusPresent
}

// CanonicalID renders a remote identifier as the canonical string used
// for identity comparison everywhere in the engine. The remote service
// emits numeric ids; JSON decoding may hand them to us as numbers or
// strings.
func CanonicalID(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// IDLess orders canonical ids numerically when both parse as integers,
// falling back to lexical order. Used for stable display ordering.
func IDLess(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

// SortByID sorts a slice in ascending canonical-id order.
func SortByID[T any](items []T, id func(T) string) {
	sort.Slice(items, func(i, j int) bool { return IDLess(id(items[i]), id(items[j])) })
}

const (
	// DateLayout and TimeLayout match the remote service's wire formats.
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04"
	DateTimeLayout = "2006-01-02T15:04:05"
)

// SessionStart resolves a session's date and start time to a concrete
// instant in the given location, truncated to minute precision.
func SessionStart(s Session, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, s.Date+" "+s.StartTime, loc)
}
