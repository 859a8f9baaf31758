package store

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		class       TEXT NOT NULL,
		section     TEXT NOT NULL,
		photo_ref   TEXT NOT NULL,
		qr_ref      TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_students_class_section ON students (class, section)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id          BIGSERIAL PRIMARY KEY,
		student_id  BIGINT NOT NULL REFERENCES students(id),
		date        DATE NOT NULL,
		status      TEXT NOT NULL CHECK (status IN ('Present', 'Absent')),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (student_id, date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance (date)`,
}

// SQLite keeps dates as ISO-8601 text so range comparisons sort correctly.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		class       TEXT NOT NULL,
		section     TEXT NOT NULL,
		photo_ref   TEXT NOT NULL,
		qr_ref      TEXT,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_students_class_section ON students (class, section)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id  INTEGER NOT NULL REFERENCES students(id),
		date        TEXT NOT NULL,
		status      TEXT NOT NULL CHECK (status IN ('Present', 'Absent')),
		updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (student_id, date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance (date)`,
}

// Migrate creates the students and attendance tables if they are missing.
func (d *DB) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if d.Driver == DriverPostgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
