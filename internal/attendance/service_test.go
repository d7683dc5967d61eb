package attendance

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/database/mock"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/recognition"
)

type fakeRecognizer struct {
	result recognition.ImageResult
	calls  int
}

func (f *fakeRecognizer) RecognizeImage(context.Context, image.Image) recognition.ImageResult {
	f.calls++
	return f.result
}

func identified(id string) recognition.FaceDecision {
	return recognition.FaceDecision{
		Box:      facematch.Box{X: 1, Y: 1, W: 10, H: 10},
		Decision: recognition.Decision{Kind: recognition.KindIdentified, StudentID: id, Ratio: 1},
	}
}

func unknownFace() recognition.FaceDecision {
	return recognition.FaceDecision{Decision: recognition.Decision{Kind: recognition.KindUnknown, Ratio: 0.2}}
}

var (
	testImage = image.NewRGBA(image.Rect(0, 0, 40, 40))
	testDay   = time.Date(2024, 9, 2, 8, 30, 0, 0, time.UTC)
)

func newTestService(rec Recognizer, ledger database.Ledger) *Service {
	s := NewService(rec, ledger, nil)
	s.SetClock(func() time.Time { return testDay })
	return s
}

func TestProcessImage_MarksIdentifiedFaces(t *testing.T) {
	ledger := mock.NewMockLedger()
	ledger.AddStudent("1234", "John Doe")
	rec := &fakeRecognizer{result: recognition.ImageResult{
		Status: recognition.Detected,
		Faces:  []recognition.FaceDecision{identified("1234"), unknownFace(), identified("9999")},
	}}
	s := newTestService(rec, ledger)

	res, err := s.ProcessImage(context.Background(), testImage)
	if err != nil {
		t.Fatalf("ProcessImage() error = %v", err)
	}
	want := []Pair{
		{Label: "1234", Status: "Present"},
		{Label: "Unknown", Status: "Unknown"},
		{Label: "9999", Status: "AlreadyMarked"},
	}
	if got := res.Pairs(); !reflect.DeepEqual(got, want) {
		t.Errorf("Pairs() = %v, want %v", got, want)
	}
	if res.Faces[2].Mark != database.MarkUnknownStudent.String() {
		t.Errorf("expected unknown student mark, got %q", res.Faces[2].Mark)
	}
	if ledger.MarkCalls != 2 {
		t.Errorf("expected 2 ledger writes, got %d", ledger.MarkCalls)
	}

	// Same student again on the same day.
	res, err = s.ProcessImage(context.Background(), testImage)
	if err != nil {
		t.Fatal(err)
	}
	if res.Faces[0].Status != StatusAlreadyMarked {
		t.Errorf("expected AlreadyMarked on second pass, got %s", res.Faces[0].Status)
	}
	if len(res.Present()) != 0 {
		t.Errorf("expected nobody newly present, got %v", res.Present())
	}
}

func TestProcessImage_ImageLevelOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		result recognition.ImageResult
		want   []Pair
	}{
		{
			name:   "no face",
			result: recognition.ImageResult{Status: recognition.NoFaceDetected},
			want:   []Pair{{Label: "NoFace", Status: "None"}},
		},
		{
			name:   "detection error",
			result: recognition.ImageResult{Status: recognition.DetectionFailed, Err: errors.New("detector offline")},
			want:   []Pair{{Label: "Error", Status: "detector offline"}},
		},
		{
			name: "error and no-face decisions are not marked",
			result: recognition.ImageResult{Status: recognition.Detected, Faces: []recognition.FaceDecision{
				{Decision: recognition.Decision{Kind: recognition.KindError}},
				{Decision: recognition.Decision{Kind: recognition.KindNoFace}},
			}},
			want: []Pair{{Label: "Error", Status: "Unknown"}, {Label: "NoFace", Status: "Unknown"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ledger := mock.NewMockLedger()
			s := newTestService(&fakeRecognizer{result: tc.result}, ledger)
			res, err := s.ProcessImage(context.Background(), testImage)
			if err != nil {
				t.Fatal(err)
			}
			if got := res.Pairs(); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Pairs() = %v, want %v", got, tc.want)
			}
			if ledger.MarkCalls != 0 {
				t.Errorf("expected no ledger writes, got %d", ledger.MarkCalls)
			}
		})
	}
}

func TestProcessImage_LedgerErrorIsReturned(t *testing.T) {
	ledger := mock.NewMockLedger()
	ledger.MarkError = errors.New("database is locked")
	s := newTestService(&fakeRecognizer{result: recognition.ImageResult{
		Status: recognition.Detected,
		Faces:  []recognition.FaceDecision{identified("1234")},
	}}, ledger)

	res, err := s.ProcessImage(context.Background(), testImage)
	if err == nil || !strings.Contains(err.Error(), "database is locked") {
		t.Errorf("expected ledger error, got %v", err)
	}
	if res.Faces[0].Status != StatusUnknown {
		t.Errorf("expected Unknown status on failed write, got %s", res.Faces[0].Status)
	}
}

func TestProcessImageBytes_Unreadable(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestService(rec, mock.NewMockLedger())

	res, err := s.ProcessImageBytes(context.Background(), []byte("not an image"))
	if err != nil {
		t.Fatal(err)
	}
	want := []Pair{{Label: "Error", Status: "Cannot read image"}}
	if got := res.Pairs(); !reflect.DeepEqual(got, want) {
		t.Errorf("Pairs() = %v, want %v", got, want)
	}
	if rec.calls != 0 {
		t.Error("recognizer must not run for unreadable input")
	}

	res, _ = s.ProcessImageFile(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	if res.Outcome != OutcomeUnreadable {
		t.Errorf("expected unreadable for missing file, got %v", res.Outcome)
	}
}

func TestProcessImageBytes_DecodesPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage); err != nil {
		t.Fatal(err)
	}
	rec := &fakeRecognizer{result: recognition.ImageResult{Status: recognition.NoFaceDetected}}
	s := newTestService(rec, mock.NewMockLedger())

	res, err := s.ProcessImageBytes(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeNoFace || rec.calls != 1 {
		t.Errorf("expected recognizer to run once with no face, got %v (%d calls)", res.Outcome, rec.calls)
	}
}

func TestService_MarkAndRegister(t *testing.T) {
	ctx := context.Background()
	ledger := mock.NewMockLedger()
	s := newTestService(&fakeRecognizer{}, ledger)

	if ok, err := s.RegisterStudent(ctx, "1234", "John Doe"); err != nil || !ok {
		t.Fatalf("RegisterStudent() = %v, %v", ok, err)
	}
	if ok, _ := s.RegisterStudent(ctx, "1234", "Someone Else"); ok {
		t.Error("expected duplicate registration to be ignored")
	}

	if ok, _ := s.MarkAttendance(ctx, "9999"); ok {
		t.Error("expected false for unregistered student")
	}
	if ok, _ := s.MarkAttendance(ctx, "1234"); !ok {
		t.Error("expected first mark to record")
	}
	if ok, _ := s.MarkAttendance(ctx, "1234"); ok {
		t.Error("expected second mark on the same day to be a no-op")
	}
}

func TestRoster(t *testing.T) {
	ctx := context.Background()
	yamlData := `students:
  - matric: "3986"
    name: Akinnusi Mary Hellen
  - matric: "1234"
    name: John Doe
  - matric: "0529"
    name: akande soji
`
	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte(yamlData), 0o600); err != nil {
		t.Fatal(err)
	}

	ledger := mock.NewMockLedger()
	ledger.AddStudent("1234", "Existing Name")
	s := newTestService(&fakeRecognizer{}, ledger)

	// Roster is only seeded into an empty table.
	if n, err := s.SeedRoster(ctx, path); err != nil || n != 0 {
		t.Errorf("SeedRoster() on non-empty table = %d, %v", n, err)
	}

	roster, err := LoadRoster(path)
	if err != nil {
		t.Fatal(err)
	}
	n, err := s.ImportRoster(ctx, roster)
	if err != nil || n != 2 {
		t.Errorf("ImportRoster() = %d, %v; want 2 inserted", n, err)
	}
	if st, _ := ledger.GetStudent(ctx, "1234"); st.Name != "Existing Name" {
		t.Errorf("import must not rename existing students, got %q", st.Name)
	}

	empty := newTestService(&fakeRecognizer{}, mock.NewMockLedger())
	if n, err := empty.SeedRoster(ctx, path); err != nil || n != 3 {
		t.Errorf("SeedRoster() on empty table = %d, %v; want 3", n, err)
	}
	if n, err := empty.SeedRoster(ctx, ""); err != nil || n != 0 {
		t.Errorf("SeedRoster(\"\") = %d, %v", n, err)
	}
}

func TestReadRoster_Empty(t *testing.T) {
	roster, err := ReadRoster(strings.NewReader(""))
	if err != nil || len(roster.Students) != 0 {
		t.Errorf("ReadRoster(\"\") = %v, %v", roster, err)
	}
}

type markCounter map[string]int

func (m markCounter) RecordMark(outcome string) { m[outcome]++ }

func TestService_MarkObserver(t *testing.T) {
	ctx := context.Background()
	ledger := mock.NewMockLedger()
	ledger.AddStudent("1234", "John Doe")
	s := newTestService(&fakeRecognizer{}, ledger)
	counts := markCounter{}
	s.SetMarkObserver(counts)

	_, _ = s.MarkAttendance(ctx, "1234")
	_, _ = s.MarkAttendance(ctx, "1234")
	_, _ = s.MarkAttendance(ctx, "9999")
	ledger.MarkError = errors.New("down")
	_, _ = s.MarkAttendance(ctx, "1234")

	want := markCounter{"recorded": 1, "already_recorded": 1, "unknown_student": 1, "error": 1}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("observed %v, want %v", counts, want)
	}
}
