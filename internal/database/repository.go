package database

import (
	"context"
	"time"
)

// StudentReader provides read-only access to the student roster
type StudentReader interface {
	// GetStudent retrieves a student by matric, returns nil if not found
	GetStudent(ctx context.Context, matric string) (*Student, error)
	// ListStudents returns all students ordered by matric
	ListStudents(ctx context.Context) ([]Student, error)
	// CountStudents returns the number of registered students
	CountStudents(ctx context.Context) (int, error)
}

// StudentWriter registers students
type StudentWriter interface {
	// RegisterStudent inserts a student unless the matric already exists.
	// The name of an existing student is never changed.
	// Returns true if a row was inserted.
	RegisterStudent(ctx context.Context, matric, name string) (bool, error)
}

// AttendanceReader provides read-only access to attendance events
type AttendanceReader interface {
	// ListAttendance returns records joined with student names,
	// newest date first, then newest timestamp first
	ListAttendance(ctx context.Context, filter AttendanceFilter) ([]AttendanceRow, error)
	// CountAttendance returns the number of records on the given date (all dates if empty)
	CountAttendance(ctx context.Context, date string) (int, error)
}

// AttendanceWriter records attendance events
type AttendanceWriter interface {
	// MarkAttendance records the student as present on the calendar date of at.
	// The write is a single insert-if-absent backed by the (matric, date) key,
	// so concurrent callers observe exactly one MarkRecorded per student per day.
	MarkAttendance(ctx context.Context, matric string, at time.Time) (MarkOutcome, error)
}

// Ledger is the full attendance store
type Ledger interface {
	StudentReader
	StudentWriter
	AttendanceReader
	AttendanceWriter
	Close() error
}

// GalleryReader provides read-only access to reference embeddings
type GalleryReader interface {
	// Embeddings returns every reference vector of a student, empty if none
	Embeddings(ctx context.Context, studentID string) ([][]float32, error)
	// Entries returns all gallery entries
	Entries(ctx context.Context) ([]GalleryEntry, error)
	// CountByStudent returns the number of vectors per student
	CountByStudent(ctx context.Context) (map[string]int, error)
}

// GalleryWriter stores reference embeddings
type GalleryWriter interface {
	GalleryReader

	// SaveEmbedding appends a reference vector for a student
	SaveEmbedding(ctx context.Context, entry GalleryEntry) error
}
