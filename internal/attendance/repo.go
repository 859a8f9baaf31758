package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"classattend/internal/apperr"
	"classattend/internal/store"
)

// Repository persists students and attendance in Postgres or SQLite.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) q(query string) string { return r.db.Rebind(query) }

// AddStudent inserts a student and returns its new identity. The QR reference starts unset.
func (r *Repository) AddStudent(ctx context.Context, name, class, section, photoRef string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, apperr.Invalid("student name required")
	}
	if strings.TrimSpace(photoRef) == "" {
		return 0, apperr.Invalid("photo reference required")
	}
	var id int64
	err := r.db.Client.QueryRowContext(ctx, r.q(`
		INSERT INTO students (name, class, section, photo_ref)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), name, class, section, photoRef).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert student: %w", err)
	}
	return id, nil
}

// AttachQR sets the QR reference on an existing student.
func (r *Repository) AttachQR(ctx context.Context, studentID int64, qrRef string) error {
	res, err := r.db.Client.ExecContext(ctx, r.q(`UPDATE students SET qr_ref = ? WHERE id = ?`), qrRef, studentID)
	if err != nil {
		return fmt.Errorf("attach qr: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach qr: %w", err)
	}
	if n == 0 {
		return apperr.NotFoundf("student %d", studentID)
	}
	return nil
}

const studentColumns = `id, name, class, section, photo_ref, qr_ref, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (Student, error) {
	var s Student
	var qr sql.NullString
	if err := row.Scan(&s.ID, &s.Name, &s.Class, &s.Section, &s.PhotoRef, &qr, &s.CreatedAt); err != nil {
		return Student{}, err
	}
	s.QRRef = qr.String
	return s, nil
}

// GetStudent returns a single student by identity.
func (r *Repository) GetStudent(ctx context.Context, id int64) (Student, error) {
	row := r.db.Client.QueryRowContext(ctx, r.q(`SELECT `+studentColumns+` FROM students WHERE id = ?`), id)
	s, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, apperr.NotFoundf("student %d", id)
		}
		return Student{}, fmt.Errorf("get student: %w", err)
	}
	return s, nil
}

// ListStudents returns the roster ordered by identity. The class/section
// filter only applies when both are given.
func (r *Repository) ListStudents(ctx context.Context, class, section string) ([]Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students`
	args := []any{}
	if class != "" && section != "" {
		query += ` WHERE class = ? AND section = ?`
		args = append(args, class, section)
	}
	query += ` ORDER BY id`

	rows, err := r.db.Client.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()
	var res []Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("list students: %w", err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ListClasses returns the class/section pairs that have enrolled students.
func (r *Repository) ListClasses(ctx context.Context) ([]ClassSection, error) {
	rows, err := r.db.Client.QueryContext(ctx, `SELECT DISTINCT class, section FROM students ORDER BY class, section`)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()
	var res []ClassSection
	for rows.Next() {
		var cs ClassSection
		if err := rows.Scan(&cs.Class, &cs.Section); err != nil {
			return nil, err
		}
		res = append(res, cs)
	}
	return res, rows.Err()
}

// UpsertAttendance writes status for (studentID, date), overwriting any existing record.
func (r *Repository) UpsertAttendance(ctx context.Context, studentID int64, date civil.Date, status Status) error {
	if !status.Valid() {
		return apperr.Invalid("status %q", status)
	}
	_, err := r.db.Client.ExecContext(ctx, r.q(`
		INSERT INTO attendance (student_id, date, status)
		VALUES (?, ?, ?)
		ON CONFLICT (student_id, date) DO UPDATE SET
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP
	`), studentID, date.String(), string(status))
	if err != nil {
		return fmt.Errorf("upsert attendance %d/%s: %w", studentID, date, err)
	}
	return nil
}

// GetAttendance returns the stored status for (studentID, date); ok is false when unmarked.
func (r *Repository) GetAttendance(ctx context.Context, studentID int64, date civil.Date) (Status, bool, error) {
	var status string
	err := r.db.Client.QueryRowContext(ctx, r.q(`
		SELECT status FROM attendance WHERE student_id = ? AND date = ?
	`), studentID, date.String()).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get attendance: %w", err)
	}
	return Status(status), true, nil
}

// DayReport lists every student of class/section once; unmarked students read as Absent.
func (r *Repository) DayReport(ctx context.Context, class, section string, date civil.Date) ([]DayRow, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.q(`
		SELECT s.id, s.name, COALESCE(a.status, 'Absent')
		FROM students s
		LEFT JOIN attendance a ON s.id = a.student_id AND a.date = ?
		WHERE s.class = ? AND s.section = ?
		ORDER BY s.id
	`), date.String(), class, section)
	if err != nil {
		return nil, fmt.Errorf("day report: %w", err)
	}
	defer rows.Close()
	var res []DayRow
	for rows.Next() {
		var row DayRow
		var status string
		if err := rows.Scan(&row.ID, &row.Name, &status); err != nil {
			return nil, err
		}
		row.Status = Status(status)
		res = append(res, row)
	}
	return res, rows.Err()
}

// MonthReport counts Present and all stored records per student of class/section within month.
func (r *Repository) MonthReport(ctx context.Context, class, section string, month Month) ([]MonthRow, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.q(`
		SELECT s.id, s.name,
		       COALESCE(SUM(CASE WHEN a.status = 'Present' THEN 1 ELSE 0 END), 0),
		       COUNT(a.id)
		FROM students s
		LEFT JOIN attendance a ON s.id = a.student_id AND a.date >= ? AND a.date < ?
		WHERE s.class = ? AND s.section = ?
		GROUP BY s.id, s.name
		ORDER BY s.id
	`), month.Start().String(), month.End().String(), class, section)
	if err != nil {
		return nil, fmt.Errorf("month report: %w", err)
	}
	defer rows.Close()
	var res []MonthRow
	for rows.Next() {
		var row MonthRow
		if err := rows.Scan(&row.ID, &row.Name, &row.Presents, &row.TotalMarked); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

// StudentHistory returns the stored records of one student within month, ordered by date.
func (r *Repository) StudentHistory(ctx context.Context, studentID int64, month Month) ([]HistoryRow, error) {
	if _, err := r.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	rows, err := r.db.Client.QueryContext(ctx, r.q(`
		SELECT CAST(date AS TEXT), status
		FROM attendance
		WHERE student_id = ? AND date >= ? AND date < ?
		ORDER BY date
	`), studentID, month.Start().String(), month.End().String())
	if err != nil {
		return nil, fmt.Errorf("student history: %w", err)
	}
	defer rows.Close()
	var res []HistoryRow
	for rows.Next() {
		var date, status string
		if err := rows.Scan(&date, &status); err != nil {
			return nil, err
		}
		d, err := civil.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("student history: stored date %q: %w", date, err)
		}
		res = append(res, HistoryRow{Date: d, Status: Status(status)})
	}
	return res, rows.Err()
}
