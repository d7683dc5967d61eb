package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
)

// Store implements the student roster and attendance ledger for any Dialect.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// NewStore wraps an open database handle. The caller keeps ownership of db.
func NewStore(db *sql.DB, dialect Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dialect: dialect, logger: logger}
}

// Dialect returns the SQL flavour of the store.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// GetStudent retrieves a student by matric, returns nil if not found
func (s *Store) GetStudent(ctx context.Context, matric string) (*database.Student, error) {
	var st database.Student
	err := s.db.QueryRowContext(ctx,
		s.dialect.Rebind("SELECT matric, name FROM students WHERE matric = ?"), matric,
	).Scan(&st.Matric, &st.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}
	return &st, nil
}

// ListStudents returns all students ordered by matric
func (s *Store) ListStudents(ctx context.Context) ([]database.Student, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT matric, name FROM students ORDER BY matric")
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		var st database.Student
		if err := rows.Scan(&st.Matric, &st.Name); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// CountStudents returns the number of registered students
func (s *Store) CountStudents(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM students").Scan(&count); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

// RegisterStudent inserts a student, keeping the existing row on conflict.
func (s *Store) RegisterStudent(ctx context.Context, matric, name string) (bool, error) {
	matric = strings.TrimSpace(matric)
	if matric == "" {
		return false, database.ErrEmptyMatric
	}

	res, err := s.db.ExecContext(ctx, s.dialect.InsertIgnore("students", "matric", "name"), matric, strings.TrimSpace(name))
	if err != nil {
		return false, fmt.Errorf("insert student: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkAttendance records the student as present on the date of at.
func (s *Store) MarkAttendance(ctx context.Context, matric string, at time.Time) (database.MarkOutcome, error) {
	matric = strings.TrimSpace(matric)
	if matric == "" {
		return database.MarkUnknownStudent, database.ErrEmptyMatric
	}

	student, err := s.GetStudent(ctx, matric)
	if err != nil {
		return database.MarkUnknownStudent, err
	}
	if student == nil {
		s.logger.Warn("attendance not marked: student not registered", "matric", matric)
		return database.MarkUnknownStudent, nil
	}

	rec := database.NewAttendanceRecord(matric, at)
	res, err := s.db.ExecContext(ctx,
		s.dialect.InsertIgnore("attendance", "matric", "date", "timestamp"),
		rec.Matric, rec.Date, rec.Timestamp,
	)
	if err != nil {
		return database.MarkUnknownStudent, fmt.Errorf("insert attendance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return database.MarkUnknownStudent, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.MarkAlreadyRecorded, nil
	}

	s.logger.Info("attendance marked", "matric", matric, "name", student.Name, "date", rec.Date)
	return database.MarkRecorded, nil
}

// ListAttendance returns records joined with student names, newest first.
func (s *Store) ListAttendance(ctx context.Context, filter database.AttendanceFilter) ([]database.AttendanceRow, error) {
	var (
		where []string
		args  []any
	)
	if filter.Date != "" {
		where = append(where, "a.date = ?")
		args = append(args, filter.Date)
	}
	if filter.Matric != "" {
		where = append(where, "a.matric = ?")
		args = append(args, filter.Matric)
	}

	var b strings.Builder
	b.WriteString(`SELECT a.matric, s.name, a.date, a.timestamp
		FROM attendance a
		JOIN students s ON a.matric = s.matric`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY a.date DESC, a.timestamp DESC, a.matric")
	if filter.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var result []database.AttendanceRow
	for rows.Next() {
		var r database.AttendanceRow
		if err := rows.Scan(&r.Matric, &r.Name, &r.Date, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return result, nil
}

// CountAttendance returns the number of records on date, or all records if date is empty.
func (s *Store) CountAttendance(ctx context.Context, date string) (int, error) {
	var (
		count int
		err   error
	)
	if date == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attendance").Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, s.dialect.Rebind("SELECT COUNT(*) FROM attendance WHERE date = ?"), date).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return count, nil
}
