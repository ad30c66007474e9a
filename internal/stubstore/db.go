// Package stubstore persists the stand-in backend's collections in
// Postgres. It exists so the engine can be exercised end to end without
// the real remote service; the engine itself never imports it.
package stubstore

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open creates a Postgres connection with sane defaults and bootstraps
// the schema.
func Open(connString string) (*Store, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		email       TEXT UNIQUE NOT NULL,
		password    TEXT NOT NULL DEFAULT '',
		role        TEXT NOT NULL DEFAULT 'STUDENT',
		student_id  TEXT,
		staff_id    TEXT,
		department  TEXT,
		avatar      TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS courses (
		id          BIGSERIAL PRIMARY KEY,
		code        TEXT NOT NULL,
		name        TEXT NOT NULL,
		lecturer_id BIGINT NOT NULL,
		department  TEXT NOT NULL DEFAULT '',
		credits     INT NOT NULL DEFAULT 0,
		schedule    TEXT NOT NULL DEFAULT '',
		room        TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS enrollments (
		id          BIGSERIAL PRIMARY KEY,
		student_id  BIGINT NOT NULL,
		course_id   BIGINT NOT NULL,
		UNIQUE (student_id, course_id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id                BIGSERIAL PRIMARY KEY,
		course_id         BIGINT NOT NULL,
		lecturer_id       BIGINT NOT NULL,
		date              TEXT NOT NULL,
		start_time        TEXT NOT NULL,
		end_time          TEXT,
		status            TEXT NOT NULL DEFAULT 'ACTIVE',
		biometric_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		attendance_type   TEXT NOT NULL DEFAULT 'FINGERPRINT'
	);

	CREATE TABLE IF NOT EXISTS attendance_records (
		id                 BIGSERIAL PRIMARY KEY,
		student_id         BIGINT NOT NULL,
		course_id          BIGINT NOT NULL,
		session_id         BIGINT NOT NULL,
		ts                 TEXT NOT NULL,
		method             TEXT NOT NULL DEFAULT 'FINGERPRINT',
		status             TEXT NOT NULL DEFAULT 'PRESENT',
		verification_score DOUBLE PRECISION,
		UNIQUE (student_id, session_id)
	);

	CREATE TABLE IF NOT EXISTS biometric_enrollments (
		user_id              BIGINT PRIMARY KEY,
		fingerprint_enrolled BOOLEAN NOT NULL DEFAULT FALSE,
		face_enrolled        BOOLEAN NOT NULL DEFAULT FALSE,
		enrolled_at          TIMESTAMPTZ
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Store wraps the stub backend database.
type Store struct {
	db *sql.DB
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
