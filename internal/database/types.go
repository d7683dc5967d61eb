package database

import (
	"errors"
	"time"
)

// Storage layouts for attendance dates and timestamps.
const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02 15:04:05"
)

// ErrEmptyMatric is returned when a student identifier is blank.
var ErrEmptyMatric = errors.New("matric must not be empty")

// Student is an enrolled student. Rows are never updated or deleted.
type Student struct {
	Matric string `json:"matric" yaml:"matric"`
	Name   string `json:"name" yaml:"name"`
}

// AttendanceRecord is one attendance event; (Matric, Date) is unique.
type AttendanceRecord struct {
	Matric    string
	Date      string // YYYY-MM-DD
	Timestamp string // YYYY-MM-DD HH:MM:SS
}

// AttendanceRow is an attendance record joined with the student's name.
type AttendanceRow struct {
	Matric    string `json:"matric"`
	Name      string `json:"name"`
	Date      string `json:"date"`
	Timestamp string `json:"timestamp"`
}

// AttendanceFilter narrows ListAttendance. Zero values match everything.
type AttendanceFilter struct {
	Date   string
	Matric string
	Limit  int
}

// MarkOutcome describes what MarkAttendance did.
type MarkOutcome int

const (
	MarkRecorded        MarkOutcome = iota // new row written
	MarkAlreadyRecorded                    // student already marked on that date
	MarkUnknownStudent                     // matric not in the students table, nothing written
)

// Recorded reports whether a new attendance row was written.
func (o MarkOutcome) Recorded() bool {
	return o == MarkRecorded
}

func (o MarkOutcome) String() string {
	switch o {
	case MarkRecorded:
		return "recorded"
	case MarkAlreadyRecorded:
		return "already_recorded"
	case MarkUnknownStudent:
		return "unknown_student"
	default:
		return "invalid"
	}
}

// NewAttendanceRecord builds the record for a mark at the given instant.
func NewAttendanceRecord(matric string, at time.Time) AttendanceRecord {
	return AttendanceRecord{
		Matric:    matric,
		Date:      at.Format(DateLayout),
		Timestamp: at.Format(TimestampLayout),
	}
}

// GalleryEntry is a single reference embedding for a student.
type GalleryEntry struct {
	ID        int64
	StudentID string
	Source    string // file name or enrollment photo the vector came from
	Embedding []float32
	CreatedAt time.Time
}
