// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
)

// MockLedger is an in-memory implementation of database.Ledger
type MockLedger struct {
	mu         sync.RWMutex
	students   map[string]database.Student
	attendance map[string]database.AttendanceRecord // key: matric|date

	// Error injection
	GetStudentError      error
	ListStudentsError    error
	RegisterError        error
	MarkError            error
	ListAttendanceError  error
	CountAttendanceError error

	// MarkCalls counts MarkAttendance invocations
	MarkCalls int
	Closed    bool
}

// NewMockLedger creates a new mock ledger
func NewMockLedger() *MockLedger {
	return &MockLedger{
		students:   make(map[string]database.Student),
		attendance: make(map[string]database.AttendanceRecord),
	}
}

func attendanceKey(matric, date string) string {
	return matric + "|" + date
}

// AddStudent adds a student to the mock store
func (m *MockLedger) AddStudent(matric, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[matric] = database.Student{Matric: matric, Name: name}
}

// AddAttendance adds an attendance record to the mock store
func (m *MockLedger) AddAttendance(rec database.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attendance[attendanceKey(rec.Matric, rec.Date)] = rec
}

// GetStudent retrieves a student by matric
func (m *MockLedger) GetStudent(ctx context.Context, matric string) (*database.Student, error) {
	if m.GetStudentError != nil {
		return nil, m.GetStudentError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.students[matric]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// ListStudents returns all students ordered by matric
func (m *MockLedger) ListStudents(ctx context.Context) ([]database.Student, error) {
	if m.ListStudentsError != nil {
		return nil, m.ListStudentsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]database.Student, 0, len(m.students))
	for _, st := range m.students {
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Matric < result[j].Matric })
	return result, nil
}

// CountStudents returns the number of students
func (m *MockLedger) CountStudents(ctx context.Context) (int, error) {
	if m.ListStudentsError != nil {
		return 0, m.ListStudentsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.students), nil
}

// RegisterStudent inserts a student unless it exists
func (m *MockLedger) RegisterStudent(ctx context.Context, matric, name string) (bool, error) {
	if m.RegisterError != nil {
		return false, m.RegisterError
	}
	matric = strings.TrimSpace(matric)
	if matric == "" {
		return false, database.ErrEmptyMatric
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[matric]; ok {
		return false, nil
	}
	m.students[matric] = database.Student{Matric: matric, Name: name}
	return true, nil
}

// MarkAttendance records attendance once per student per day
func (m *MockLedger) MarkAttendance(ctx context.Context, matric string, at time.Time) (database.MarkOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkCalls++
	if m.MarkError != nil {
		return database.MarkUnknownStudent, m.MarkError
	}
	matric = strings.TrimSpace(matric)
	if matric == "" {
		return database.MarkUnknownStudent, database.ErrEmptyMatric
	}
	if _, ok := m.students[matric]; !ok {
		return database.MarkUnknownStudent, nil
	}
	rec := database.NewAttendanceRecord(matric, at)
	key := attendanceKey(matric, rec.Date)
	if _, ok := m.attendance[key]; ok {
		return database.MarkAlreadyRecorded, nil
	}
	m.attendance[key] = rec
	return database.MarkRecorded, nil
}

// ListAttendance returns joined rows sorted by date and timestamp descending
func (m *MockLedger) ListAttendance(ctx context.Context, filter database.AttendanceFilter) ([]database.AttendanceRow, error) {
	if m.ListAttendanceError != nil {
		return nil, m.ListAttendanceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []database.AttendanceRow
	for _, rec := range m.attendance {
		if filter.Date != "" && rec.Date != filter.Date {
			continue
		}
		if filter.Matric != "" && rec.Matric != filter.Matric {
			continue
		}
		st, ok := m.students[rec.Matric]
		if !ok {
			continue
		}
		rows = append(rows, database.AttendanceRow{
			Matric:    rec.Matric,
			Name:      st.Name,
			Date:      rec.Date,
			Timestamp: rec.Timestamp,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date > rows[j].Date
		}
		if rows[i].Timestamp != rows[j].Timestamp {
			return rows[i].Timestamp > rows[j].Timestamp
		}
		return rows[i].Matric < rows[j].Matric
	})
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	return rows, nil
}

// CountAttendance counts records on date, or all when date is empty
func (m *MockLedger) CountAttendance(ctx context.Context, date string) (int, error) {
	if m.CountAttendanceError != nil {
		return 0, m.CountAttendanceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, rec := range m.attendance {
		if date == "" || rec.Date == date {
			count++
		}
	}
	return count, nil
}

// Close marks the ledger closed
func (m *MockLedger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// MockGallery is an in-memory implementation of database.GalleryWriter
type MockGallery struct {
	mu      sync.RWMutex
	entries []database.GalleryEntry
	nextID  int64

	// Error injection
	EmbeddingsError error
	SaveError       error
}

// NewMockGallery creates a new mock gallery
func NewMockGallery() *MockGallery {
	return &MockGallery{}
}

// Add adds reference vectors for a student
func (m *MockGallery) Add(studentID string, embeddings ...[]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, emb := range embeddings {
		m.nextID++
		m.entries = append(m.entries, database.GalleryEntry{ID: m.nextID, StudentID: studentID, Embedding: emb})
	}
}

// Embeddings returns the vectors of a student
func (m *MockGallery) Embeddings(ctx context.Context, studentID string) ([][]float32, error) {
	if m.EmbeddingsError != nil {
		return nil, m.EmbeddingsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result [][]float32
	for _, e := range m.entries {
		if e.StudentID == studentID {
			result = append(result, e.Embedding)
		}
	}
	return result, nil
}

// Entries returns all entries
func (m *MockGallery) Entries(ctx context.Context) ([]database.GalleryEntry, error) {
	if m.EmbeddingsError != nil {
		return nil, m.EmbeddingsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.GalleryEntry(nil), m.entries...), nil
}

// CountByStudent returns the number of vectors per student
func (m *MockGallery) CountByStudent(ctx context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range m.entries {
		counts[e.StudentID]++
	}
	return counts, nil
}

// SaveEmbedding appends an entry
func (m *MockGallery) SaveEmbedding(ctx context.Context, entry database.GalleryEntry) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.Add(entry.StudentID, entry.Embedding)
	return nil
}
