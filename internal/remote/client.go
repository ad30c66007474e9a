package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"biomark/internal/model"
)

// Client talks to the attendance backend: five resource collections plus
// login and biometric enrollment. It converts the backend's wire shapes
// (numeric ids, upper-cased enums) to and from typed entities so callers
// never see raw payloads.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	token string
}

// New creates a client for the given base URL, e.g. http://host:8080/api.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken attaches a bearer token to subsequent requests.
func (c *Client) SetToken(token string) { c.token = token }

// ClearToken removes the bearer token.
func (c *Client) ClearToken() { c.token = "" }

// Error is a remote-side rejection with the backend's message preserved
// for display.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode}
		var payload struct {
			Message string `json:"message"`
			ErrMsg  string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			if payload.Message != "" {
				apiErr.Message = payload.Message
			} else {
				apiErr.Message = payload.ErrMsg
			}
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// LoginResult is the identity the backend returns on success. An empty
// ID signals an authentication failure.
type LoginResult struct {
	User  model.User
	Token string
}

// Login authenticates with (email, password).
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var raw struct {
		model.UserPayload
		Token string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &raw); err != nil {
		return LoginResult{}, err
	}
	res := LoginResult{User: model.NormalizeUser(raw.UserPayload), Token: raw.Token}
	if raw.Token != "" {
		c.SetToken(raw.Token)
	}
	return res, nil
}

// Users fetches the full user collection.
func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	var raw []model.UserPayload
	if err := c.do(ctx, http.MethodGet, "/users", nil, &raw); err != nil {
		return nil, err
	}
	users := make([]model.User, 0, len(raw))
	for _, r := range raw {
		users = append(users, model.NormalizeUser(r))
	}
	return users, nil
}

// Courses fetches the full course collection.
func (c *Client) Courses(ctx context.Context) ([]model.Course, error) {
	var raw []model.CoursePayload
	if err := c.do(ctx, http.MethodGet, "/courses", nil, &raw); err != nil {
		return nil, err
	}
	courses := make([]model.Course, 0, len(raw))
	for _, r := range raw {
		courses = append(courses, model.NormalizeCourse(r))
	}
	return courses, nil
}

// Enrollments fetches the full course-enrollment collection.
func (c *Client) Enrollments(ctx context.Context) ([]model.Enrollment, error) {
	var raw []model.EnrollmentPayload
	if err := c.do(ctx, http.MethodGet, "/enrollments", nil, &raw); err != nil {
		return nil, err
	}
	links := make([]model.Enrollment, 0, len(raw))
	for _, r := range raw {
		links = append(links, model.NormalizeEnrollment(r))
	}
	return links, nil
}

// EnrollmentsForStudent fetches one student's enrollment links.
func (c *Client) EnrollmentsForStudent(ctx context.Context, studentID string) ([]model.Enrollment, error) {
	var raw []model.EnrollmentPayload
	if err := c.do(ctx, http.MethodGet, "/enrollments/student/"+studentID, nil, &raw); err != nil {
		return nil, err
	}
	links := make([]model.Enrollment, 0, len(raw))
	for _, r := range raw {
		links = append(links, model.NormalizeEnrollment(r))
	}
	return links, nil
}

// Sessions fetches the full session collection.
func (c *Client) Sessions(ctx context.Context) ([]model.Session, error) {
	var raw []model.SessionPayload
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &raw); err != nil {
		return nil, err
	}
	sessions := make([]model.Session, 0, len(raw))
	for _, r := range raw {
		sessions = append(sessions, model.NormalizeSession(r))
	}
	return sessions, nil
}

// Records fetches the full attendance-record collection.
func (c *Client) Records(ctx context.Context) ([]model.Record, error) {
	var raw []model.RecordPayload
	if err := c.do(ctx, http.MethodGet, "/attendance", nil, &raw); err != nil {
		return nil, err
	}
	records := make([]model.Record, 0, len(raw))
	for _, r := range raw {
		records = append(records, model.NormalizeRecord(r))
	}
	return records, nil
}

// CreateUser registers a user. Password travels only on creation.
func (c *Client) CreateUser(ctx context.Context, u model.User, password string) (model.User, error) {
	var raw model.UserPayload
	if err := c.do(ctx, http.MethodPost, "/users", userBody(u, password), &raw); err != nil {
		return model.User{}, err
	}
	return model.NormalizeUser(raw), nil
}

// UpdateUser replaces a user's mutable fields.
func (c *Client) UpdateUser(ctx context.Context, u model.User) (model.User, error) {
	var raw model.UserPayload
	if err := c.do(ctx, http.MethodPut, "/users/"+u.ID, userBody(u, ""), &raw); err != nil {
		return model.User{}, err
	}
	return model.NormalizeUser(raw), nil
}

// DeleteUser removes a user.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+userID, nil, nil)
}

// CreateCourse registers a course.
func (c *Client) CreateCourse(ctx context.Context, course model.Course) (model.Course, error) {
	var raw model.CoursePayload
	if err := c.do(ctx, http.MethodPost, "/courses", courseBody(course), &raw); err != nil {
		return model.Course{}, err
	}
	return model.NormalizeCourse(raw), nil
}

// UpdateCourse replaces a course's mutable fields.
func (c *Client) UpdateCourse(ctx context.Context, course model.Course) (model.Course, error) {
	var raw model.CoursePayload
	if err := c.do(ctx, http.MethodPut, "/courses/"+course.ID, courseBody(course), &raw); err != nil {
		return model.Course{}, err
	}
	return model.NormalizeCourse(raw), nil
}

// DeleteCourse removes a course.
func (c *Client) DeleteCourse(ctx context.Context, courseID string) error {
	return c.do(ctx, http.MethodDelete, "/courses/"+courseID, nil, nil)
}

// CreateEnrollment links a student to a course.
func (c *Client) CreateEnrollment(ctx context.Context, studentID, courseID string) (model.Enrollment, error) {
	body := map[string]any{"studentId": num(studentID), "courseId": num(courseID)}
	var raw model.EnrollmentPayload
	if err := c.do(ctx, http.MethodPost, "/enrollments", body, &raw); err != nil {
		return model.Enrollment{}, err
	}
	return model.NormalizeEnrollment(raw), nil
}

// CreateSession opens a new attendance session.
func (c *Client) CreateSession(ctx context.Context, s model.Session) (model.Session, error) {
	var raw model.SessionPayload
	if err := c.do(ctx, http.MethodPost, "/sessions", sessionBody(s), &raw); err != nil {
		return model.Session{}, err
	}
	return model.NormalizeSession(raw), nil
}

// UpdateSession replaces a session's state, used to close it.
func (c *Client) UpdateSession(ctx context.Context, s model.Session) (model.Session, error) {
	var raw model.SessionPayload
	if err := c.do(ctx, http.MethodPut, "/sessions/"+s.ID, sessionBody(s), &raw); err != nil {
		return model.Session{}, err
	}
	return model.NormalizeSession(raw), nil
}

// CreateRecord submits an attendance record.
func (c *Client) CreateRecord(ctx context.Context, r model.Record) (model.Record, error) {
	var raw model.RecordPayload
	if err := c.do(ctx, http.MethodPost, "/attendance", recordBody(r), &raw); err != nil {
		return model.Record{}, err
	}
	return model.NormalizeRecord(raw), nil
}

// BiometricEnrollment fetches a user's enrollment flags.
func (c *Client) BiometricEnrollment(ctx context.Context, userID string) (model.BiometricEnrollment, error) {
	var raw model.BiometricEnrollmentPayload
	if err := c.do(ctx, http.MethodGet, "/biometric/"+userID, nil, &raw); err != nil {
		return model.BiometricEnrollment{}, err
	}
	return model.NormalizeBiometricEnrollment(raw), nil
}

// UpsertBiometricEnrollment records enrollment flags, updating first and
// falling back to create when the user has no enrollment row yet.
func (c *Client) UpsertBiometricEnrollment(ctx context.Context, b model.BiometricEnrollment) error {
	body := map[string]any{
		"userId":              num(b.UserID),
		"fingerprintEnrolled": b.FingerprintEnrolled,
		"faceEnrolled":        b.FaceEnrolled,
	}
	if err := c.do(ctx, http.MethodPut, "/biometric/"+b.UserID, body, nil); err == nil {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/biometric", body, nil)
}

// Ping checks backend reachability.
func (c *Client) Ping(ctx context.Context) bool {
	var raw []model.SessionPayload
	return c.do(ctx, http.MethodGet, "/sessions", nil, &raw) == nil
}

func userBody(u model.User, password string) map[string]any {
	return map[string]any{
		"name":       u.Name,
		"email":      u.Email,
		"password":   password,
		"role":       strings.ToUpper(string(u.Role)),
		"studentId":  nullable(u.StudentID),
		"staffId":    nullable(u.StaffID),
		"department": nullable(u.Department),
		"avatar":     nullable(u.Avatar),
	}
}

func courseBody(course model.Course) map[string]any {
	return map[string]any{
		"code":       course.Code,
		"name":       course.Name,
		"lecturerId": num(course.LecturerID),
		"department": course.Department,
		"credits":    course.Credits,
		"schedule":   course.Schedule,
		"room":       course.Room,
	}
}

func sessionBody(s model.Session) map[string]any {
	return map[string]any{
		"courseId":         num(s.CourseID),
		"lecturerId":       num(s.LecturerID),
		"date":             s.Date,
		"startTime":        s.StartTime,
		"endTime":          nullable(s.EndTime),
		"status":           strings.ToUpper(string(s.Status)),
		"biometricEnabled": s.BiometricEnabled,
		"attendanceType":   strings.ToUpper(string(s.BiometricType)),
	}
}

func recordBody(r model.Record) map[string]any {
	body := map[string]any{
		"studentId": num(r.StudentID),
		"courseId":  num(r.CourseID),
		"sessionId": num(r.SessionID),
		"timestamp": r.Timestamp.Format(model.DateTimeLayout),
		"method":    strings.ToUpper(string(r.Method)),
		"status":    strings.ToUpper(string(r.Status)),
	}
	if r.VerificationScore != nil {
		body["verificationScore"] = *r.VerificationScore
	} else {
		body["verificationScore"] = nil
	}
	return body
}

// num re-encodes a canonical id as the backend's numeric representation
// when it parses as one; the backend rejects string ids on write paths.
func num(id string) any {
	var n json.Number = json.Number(id)
	if _, err := n.Int64(); err == nil {
		return n
	}
	return id
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
