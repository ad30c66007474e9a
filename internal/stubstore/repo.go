package stubstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// ErrDuplicateRecord signals the (student, session) uniqueness
// constraint.
var ErrDuplicateRecord = errors.New("attendance already marked for this student in this session")

// Wire-shaped rows; enums stay upper-cased exactly as clients send them.

type User struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Password   string  `json:"-"`
	Role       string  `json:"role"`
	StudentID  *string `json:"studentId"`
	StaffID    *string `json:"staffId"`
	Department *string `json:"department"`
	Avatar     *string `json:"avatar"`
}

type Course struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	LecturerID int64  `json:"lecturerId"`
	Department string `json:"department"`
	Credits    int    `json:"credits"`
	Schedule   string `json:"schedule"`
	Room       string `json:"room"`
}

type Enrollment struct {
	ID        int64 `json:"id"`
	StudentID int64 `json:"studentId"`
	CourseID  int64 `json:"courseId"`
}

type Session struct {
	ID               int64   `json:"id"`
	CourseID         int64   `json:"courseId"`
	LecturerID       int64   `json:"lecturerId"`
	Date             string  `json:"date"`
	StartTime        string  `json:"startTime"`
	EndTime          *string `json:"endTime"`
	Status           string  `json:"status"`
	BiometricEnabled bool    `json:"biometricEnabled"`
	AttendanceType   string  `json:"attendanceType"`
}

type Record struct {
	ID                int64    `json:"id"`
	StudentID         int64    `json:"studentId"`
	CourseID          int64    `json:"courseId"`
	SessionID         int64    `json:"sessionId"`
	Timestamp         string   `json:"timestamp"`
	Method            string   `json:"method"`
	Status            string   `json:"status"`
	VerificationScore *float64 `json:"verificationScore"`
}

type BiometricEnrollment struct {
	UserID              int64  `json:"userId"`
	FingerprintEnrolled bool   `json:"fingerprintEnrolled"`
	FaceEnrolled        bool   `json:"faceEnrolled"`
	EnrolledAt          *string `json:"enrolledAt"`
}

const userCols = "id, name, email, password, role, student_id, staff_id, department, avatar"

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &u.StudentID, &u.StaffID, &u.Department, &u.Avatar)
	return u, err
}

// ListUsers returns all users ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUserByEmail returns a user or nil when unknown.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user and returns it with the assigned id.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password, role, student_id, staff_id, department, avatar)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, u.Name, u.Email, u.Password, strings.ToUpper(u.Role), u.StudentID, u.StaffID, u.Department, u.Avatar)
	if err := row.Scan(&u.ID); err != nil {
		return User{}, err
	}
	return u, nil
}

// UpdateUser replaces mutable fields; role is left untouched.
func (s *Store) UpdateUser(ctx context.Context, u User) (User, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, email = $3, student_id = $4, staff_id = $5, department = $6, avatar = $7
		WHERE id = $1
	`, u.ID, u.Name, u.Email, u.StudentID, u.StaffID, u.Department, u.Avatar)
	if err != nil {
		return User{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, u.ID)
	return scanUser(row)
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

// ListCourses returns all courses ordered by id.
func (s *Store) ListCourses(ctx context.Context) ([]Course, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, lecturer_id, department, credits, schedule, room
		FROM courses ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var courses []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.LecturerID, &c.Department, &c.Credits, &c.Schedule, &c.Room); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// CreateCourse inserts a course.
func (s *Store) CreateCourse(ctx context.Context, c Course) (Course, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO courses (code, name, lecturer_id, department, credits, schedule, room)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, c.Code, c.Name, c.LecturerID, c.Department, c.Credits, c.Schedule, c.Room)
	if err := row.Scan(&c.ID); err != nil {
		return Course{}, err
	}
	return c, nil
}

// UpdateCourse replaces a course's fields.
func (s *Store) UpdateCourse(ctx context.Context, c Course) (Course, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE courses
		SET code = $2, name = $3, lecturer_id = $4, department = $5, credits = $6, schedule = $7, room = $8
		WHERE id = $1
	`, c.ID, c.Code, c.Name, c.LecturerID, c.Department, c.Credits, c.Schedule, c.Room)
	return c, err
}

// DeleteCourse removes a course.
func (s *Store) DeleteCourse(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	return err
}

// ListEnrollments returns all enrollment links; studentID filters when
// non-zero.
func (s *Store) ListEnrollments(ctx context.Context, studentID int64) ([]Enrollment, error) {
	query := `SELECT id, student_id, course_id FROM enrollments`
	args := []any{}
	if studentID != 0 {
		query += ` WHERE student_id = $1`
		args = append(args, studentID)
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var links []Enrollment
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.ID, &e.StudentID, &e.CourseID); err != nil {
			return nil, err
		}
		links = append(links, e)
	}
	return links, rows.Err()
}

// CreateEnrollment links a student to a course, idempotently.
func (s *Store) CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO enrollments (student_id, course_id)
		VALUES ($1, $2)
		ON CONFLICT (student_id, course_id) DO UPDATE SET student_id = EXCLUDED.student_id
		RETURNING id
	`, e.StudentID, e.CourseID)
	if err := row.Scan(&e.ID); err != nil {
		return Enrollment{}, err
	}
	return e, nil
}

// ListSessions returns all sessions ordered by id.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, lecturer_id, date, start_time, end_time, status, biometric_enabled, attendance_type
		FROM sessions ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.CourseID, &sess.LecturerID, &sess.Date, &sess.StartTime, &sess.EndTime, &sess.Status, &sess.BiometricEnabled, &sess.AttendanceType); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// CreateSession inserts a session.
func (s *Store) CreateSession(ctx context.Context, sess Session) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sessions (course_id, lecturer_id, date, start_time, end_time, status, biometric_enabled, attendance_type)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, sess.CourseID, sess.LecturerID, sess.Date, sess.StartTime, sess.EndTime, strings.ToUpper(sess.Status), sess.BiometricEnabled, strings.ToUpper(sess.AttendanceType))
	if err := row.Scan(&sess.ID); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// UpdateSession replaces a session's state.
func (s *Store) UpdateSession(ctx context.Context, sess Session) (Session, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET date = $2, start_time = $3, end_time = $4, status = $5, biometric_enabled = $6, attendance_type = $7
		WHERE id = $1
	`, sess.ID, sess.Date, sess.StartTime, sess.EndTime, strings.ToUpper(sess.Status), sess.BiometricEnabled, strings.ToUpper(sess.AttendanceType))
	return sess, err
}

// ListRecords returns all attendance records ordered by id.
func (s *Store) ListRecords(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, course_id, session_id, ts, method, status, verification_score
		FROM attendance_records ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.StudentID, &r.CourseID, &r.SessionID, &r.Timestamp, &r.Method, &r.Status, &r.VerificationScore); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CreateRecord inserts a record, enforcing one per (student, session).
func (s *Store) CreateRecord(ctx context.Context, r Record) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (student_id, course_id, session_id, ts, method, status, verification_score)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (student_id, session_id) DO NOTHING
		RETURNING id
	`, r.StudentID, r.CourseID, r.SessionID, r.Timestamp, strings.ToUpper(r.Method), strings.ToUpper(r.Status), r.VerificationScore)
	if err := row.Scan(&r.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrDuplicateRecord
		}
		return Record{}, err
	}
	return r, nil
}

// GetBiometric returns a user's enrollment flags, zero-valued when the
// user has no row yet.
func (s *Store) GetBiometric(ctx context.Context, userID int64) (BiometricEnrollment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, fingerprint_enrolled, face_enrolled, enrolled_at::text
		FROM biometric_enrollments WHERE user_id = $1
	`, userID)
	var b BiometricEnrollment
	err := row.Scan(&b.UserID, &b.FingerprintEnrolled, &b.FaceEnrolled, &b.EnrolledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return BiometricEnrollment{UserID: userID}, nil
	}
	return b, err
}

// UpsertBiometric sets enrollment flags; true flags never regress.
func (s *Store) UpsertBiometric(ctx context.Context, b BiometricEnrollment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO biometric_enrollments (user_id, fingerprint_enrolled, face_enrolled, enrolled_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			fingerprint_enrolled = biometric_enrollments.fingerprint_enrolled OR EXCLUDED.fingerprint_enrolled,
			face_enrolled = biometric_enrollments.face_enrolled OR EXCLUDED.face_enrolled
	`, b.UserID, b.FingerprintEnrolled, b.FaceEnrolled)
	return err
}
