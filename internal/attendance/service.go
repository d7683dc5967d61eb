// Package attendance ties recognition to the ledger: it recognizes every face
// in an image and marks the identified students present.
package attendance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/recognition"
)

// Status is the attendance status reported per face.
type Status string

const (
	StatusPresent       Status = "Present"
	StatusAlreadyMarked Status = "AlreadyMarked"
	StatusUnknown       Status = "Unknown"
)

// Outcome classifies the result of processing a whole image.
type Outcome int

const (
	OutcomeFaces Outcome = iota
	OutcomeUnreadable
	OutcomeNoFace
	OutcomeDetectionError
)

// Labels reported for image-level failures.
const (
	unreadableStatus = "Cannot read image"
	noFaceStatus     = "None"
)

// Recognizer is the part of recognition.Recognizer the service needs.
type Recognizer interface {
	RecognizeImage(ctx context.Context, img image.Image) recognition.ImageResult
}

// MarkObserver is notified of every ledger write outcome.
type MarkObserver interface {
	RecordMark(outcome string)
}

// FaceResult is the recognition and attendance outcome of one face.
type FaceResult struct {
	Box      facematch.Box        `json:"box"`
	Label    string               `json:"label"`
	Status   Status               `json:"status"`
	Decision recognition.Decision `json:"decision"`
	Mark     string               `json:"mark,omitempty"`
}

// Result is the outcome of processing one image.
type Result struct {
	Outcome Outcome      `json:"-"`
	Faces   []FaceResult `json:"faces"`
	Err     error        `json:"-"`
}

// Pair is a (label, status) tuple.
type Pair struct {
	Label  string `json:"label"`
	Status string `json:"status"`
}

// Pairs returns one (label, status) pair per face, or a single pair
// describing why no face could be processed.
func (r Result) Pairs() []Pair {
	switch r.Outcome {
	case OutcomeUnreadable:
		return []Pair{{Label: recognition.LabelError, Status: unreadableStatus}}
	case OutcomeNoFace:
		return []Pair{{Label: recognition.LabelNoFace, Status: noFaceStatus}}
	case OutcomeDetectionError:
		msg := "Detection failed"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		return []Pair{{Label: recognition.LabelError, Status: msg}}
	}
	pairs := make([]Pair, 0, len(r.Faces))
	for _, f := range r.Faces {
		pairs = append(pairs, Pair{Label: f.Label, Status: string(f.Status)})
	}
	return pairs
}

// Present returns the labels of faces newly marked present.
func (r Result) Present() []string {
	var out []string
	for _, f := range r.Faces {
		if f.Status == StatusPresent {
			out = append(out, f.Label)
		}
	}
	return out
}

// Service recognizes faces and records attendance.
type Service struct {
	recognizer Recognizer
	ledger     database.Ledger
	observer   MarkObserver
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates an attendance service.
func NewService(recognizer Recognizer, ledger database.Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		recognizer: recognizer,
		ledger:     ledger,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the time source, used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetMarkObserver registers an observer for ledger writes.
func (s *Service) SetMarkObserver(o MarkObserver) {
	s.observer = o
}

// Ledger returns the underlying ledger.
func (s *Service) Ledger() database.Ledger {
	return s.ledger
}

// ProcessImage recognizes all faces in img and marks identified students
// present. The returned error reports ledger failures only; recognition
// problems are part of the result.
func (s *Service) ProcessImage(ctx context.Context, img image.Image) (Result, error) {
	if img == nil || img.Bounds().Empty() {
		return Result{Outcome: OutcomeUnreadable}, nil
	}

	rec := s.recognizer.RecognizeImage(ctx, img)
	switch rec.Status {
	case recognition.NoFaceDetected:
		return Result{Outcome: OutcomeNoFace}, nil
	case recognition.DetectionFailed:
		return Result{Outcome: OutcomeDetectionError, Err: rec.Err}, nil
	}

	result := Result{Outcome: OutcomeFaces, Faces: make([]FaceResult, 0, len(rec.Faces))}
	var errs []error
	for _, face := range rec.Faces {
		fr := FaceResult{
			Box:      face.Box,
			Label:    face.Decision.Label(),
			Status:   StatusUnknown,
			Decision: face.Decision,
		}
		if face.Decision.Identified() {
			outcome, err := s.mark(ctx, face.Decision.StudentID)
			if err != nil {
				s.logger.Error("failed to mark attendance", "student", face.Decision.StudentID, "error", err)
				errs = append(errs, fmt.Errorf("marking %s: %w", face.Decision.StudentID, err))
			} else {
				fr.Mark = outcome.String()
				fr.Status = statusFor(outcome)
			}
		}
		result.Faces = append(result.Faces, fr)
	}
	return result, errors.Join(errs...)
}

// statusFor maps a ledger outcome to the reported status. Anything that did
// not write a row, including an unregistered student, reports AlreadyMarked.
func statusFor(outcome database.MarkOutcome) Status {
	if outcome.Recorded() {
		return StatusPresent
	}
	return StatusAlreadyMarked
}

// DecodeImage decodes JPEG/PNG/GIF data, honouring EXIF orientation.
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// ProcessImageBytes decodes data and calls ProcessImage. Undecodable data
// yields OutcomeUnreadable.
func (s *Service) ProcessImageBytes(ctx context.Context, data []byte) (Result, error) {
	img, err := DecodeImage(data)
	if err != nil {
		s.logger.Warn("cannot read image", "error", err)
		return Result{Outcome: OutcomeUnreadable, Err: err}, nil
	}
	return s.ProcessImage(ctx, img)
}

// ProcessImageFile opens path and calls ProcessImage.
func (s *Service) ProcessImageFile(ctx context.Context, path string) (Result, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		s.logger.Warn("cannot read image", "path", path, "error", err)
		return Result{Outcome: OutcomeUnreadable, Err: err}, nil
	}
	return s.ProcessImage(ctx, img)
}

func (s *Service) mark(ctx context.Context, matric string) (database.MarkOutcome, error) {
	outcome, err := s.ledger.MarkAttendance(ctx, matric, s.now())
	if s.observer != nil {
		if err != nil {
			s.observer.RecordMark("error")
		} else {
			s.observer.RecordMark(outcome.String())
		}
	}
	return outcome, err
}

// MarkAttendance marks a student present now, reporting whether a new
// record was written.
func (s *Service) MarkAttendance(ctx context.Context, matric string) (bool, error) {
	outcome, err := s.mark(ctx, matric)
	if err != nil {
		return false, err
	}
	return outcome.Recorded(), nil
}

// RegisterStudent adds a student to the roster.
func (s *Service) RegisterStudent(ctx context.Context, matric, name string) (bool, error) {
	inserted, err := s.ledger.RegisterStudent(ctx, matric, name)
	if err != nil {
		return false, err
	}
	if inserted {
		s.logger.Info("registered student", "matric", matric, "name", name)
	} else {
		s.logger.Info("student already registered", "matric", matric)
	}
	return inserted, nil
}
