// Package recognition decides who a face belongs to: a classifier proposes
// the most probable students and each proposal is verified against that
// student's gallery of reference embeddings.
package recognition

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
)

// Labels reported for decisions that did not identify a student.
const (
	LabelNoFace  = "NoFace"
	LabelUnknown = "Unknown"
	LabelError   = "Error"
)

// ErrNoEmbedding is returned by embedders that found no face in the crop.
var ErrNoEmbedding = errors.New("no face embedding")

// Kind is the outcome class of a recognition decision.
type Kind int

const (
	KindIdentified Kind = iota
	KindNoFace
	KindUnknown
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindIdentified:
		return "identified"
	case KindNoFace:
		return "no_face"
	case KindUnknown:
		return "unknown"
	case KindError:
		return "error"
	default:
		return "invalid"
	}
}

// Candidate is one classifier guess and its gallery verification result.
// Ratio is -1 when the candidate has no gallery and was skipped.
type Candidate struct {
	StudentID   string  `json:"student_id"`
	Probability float64 `json:"probability"`
	Ratio       float64 `json:"ratio"`
}

// Decision is the result of recognizing a single face.
type Decision struct {
	Kind       Kind        `json:"-"`
	StudentID  string      `json:"student_id,omitempty"`
	Ratio      float64     `json:"ratio"`
	Candidates []Candidate `json:"candidates,omitempty"`
	Err        error       `json:"-"`
}

// Label returns the student identifier for an accepted face, otherwise one of
// LabelNoFace, LabelUnknown or LabelError.
func (d Decision) Label() string {
	switch d.Kind {
	case KindIdentified:
		return d.StudentID
	case KindNoFace:
		return LabelNoFace
	case KindUnknown:
		return LabelUnknown
	default:
		return LabelError
	}
}

// Identified reports whether the face was accepted as a student.
func (d Decision) Identified() bool {
	return d.Kind == KindIdentified
}

func errorDecision(err error) Decision {
	return Decision{Kind: KindError, Ratio: -1, Err: err}
}

// DetectionStatus is the outcome class of running a face detector.
type DetectionStatus int

const (
	Detected DetectionStatus = iota
	NoFaceDetected
	DetectionFailed
)

// Detection is the result of running a face detector on an image.
type Detection struct {
	Status DetectionStatus
	Boxes  []facematch.Box
	Err    error
}

// DetectedFaces returns a detection with the given boxes. No boxes means no face.
func DetectedFaces(boxes []facematch.Box) Detection {
	if len(boxes) == 0 {
		return NoFaces()
	}
	return Detection{Status: Detected, Boxes: boxes}
}

// NoFaces returns a detection that found nothing.
func NoFaces() Detection {
	return Detection{Status: NoFaceDetected}
}

// DetectionError wraps a detector failure.
func DetectionError(err error) Detection {
	return Detection{Status: DetectionFailed, Err: err}
}

// Detector finds face boxes in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) Detection
}

// Embedder extracts face embeddings from a face crop. An empty result means
// no face was found.
type Embedder interface {
	Embed(ctx context.Context, face image.Image) ([][]float32, error)
}

// Classifier maps an embedding to per-class probabilities.
type Classifier interface {
	Predict(embedding []float32) ([]float64, error)
}

// LabelDecoder maps a class index to a student identifier.
type LabelDecoder interface {
	Decode(index int) (string, error)
}

// Gallery returns the reference embeddings of a student, empty if none.
type Gallery interface {
	Embeddings(ctx context.Context, studentID string) ([][]float32, error)
}

// AttendanceRecorder writes an attendance event.
type AttendanceRecorder interface {
	MarkAttendance(ctx context.Context, matric string, at time.Time) (database.MarkOutcome, error)
}

// Observer receives every decision, e.g. for metrics.
type Observer interface {
	ObserveDecision(d Decision, elapsed time.Duration)
}
