package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/gallery"
)

// Recognition defaults.
const (
	DefaultTopK         = 3
	DefaultSimThreshold = 0.6
	DefaultVerifyRatio  = 0.6
)

// Options tune the decision procedure.
type Options struct {
	// TopK is the number of classifier guesses verified; <= 0 uses DefaultTopK.
	TopK int
	// SimThreshold is the cosine similarity a gallery vector must reach to count.
	SimThreshold float64
	// VerifyRatio is the fraction of matching gallery vectors needed to accept.
	VerifyRatio float64
	// LogAttendance makes RecognizeFace record attendance for accepted faces.
	LogAttendance bool
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		TopK:         DefaultTopK,
		SimThreshold: DefaultSimThreshold,
		VerifyRatio:  DefaultVerifyRatio,
	}
}

// Config holds the collaborators of a Recognizer. Detector is only needed by
// RecognizeImage and Recorder only when LogAttendance is set.
type Config struct {
	Detector   Detector
	Embedder   Embedder
	Classifier Classifier
	Labels     LabelDecoder
	Gallery    Gallery
	Recorder   AttendanceRecorder
	Observer   Observer
	Options    Options
	Logger     *slog.Logger
	Now        func() time.Time
}

// Recognizer runs the classify-then-verify decision procedure.
type Recognizer struct {
	detector   Detector
	embedder   Embedder
	classifier Classifier
	labels     LabelDecoder
	gallery    Gallery
	recorder   AttendanceRecorder
	observer   Observer
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Recognizer.
func New(cfg Config) (*Recognizer, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("recognition: embedder is required")
	}
	if cfg.Classifier == nil || cfg.Labels == nil {
		return nil, errors.New("recognition: classifier and label decoder are required")
	}
	if cfg.Gallery == nil {
		return nil, errors.New("recognition: gallery is required")
	}

	opts := cfg.Options
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	r := &Recognizer{
		detector:   cfg.Detector,
		embedder:   cfg.Embedder,
		classifier: cfg.Classifier,
		labels:     cfg.Labels,
		gallery:    cfg.Gallery,
		recorder:   cfg.Recorder,
		observer:   cfg.Observer,
		opts:       opts,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Options returns the effective options.
func (r *Recognizer) Options() Options {
	return r.opts
}

// SetOptions replaces the options. It must not be called while the
// recognizer is in use.
func (r *Recognizer) SetOptions(opts Options) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	r.opts = opts
}

// RecognizeFace identifies a single face crop. When LogAttendance is enabled
// and a recorder is configured, an accepted face is also marked present.
func (r *Recognizer) RecognizeFace(ctx context.Context, face image.Image) Decision {
	return r.recognizeFace(ctx, face, r.opts.LogAttendance)
}

func (r *Recognizer) recognizeFace(ctx context.Context, face image.Image, logAttendance bool) Decision {
	start := time.Now()
	d := r.decide(ctx, face)
	if r.observer != nil {
		r.observer.ObserveDecision(d, time.Since(start))
	}

	if logAttendance && d.Identified() && r.recorder != nil {
		outcome, err := r.recorder.MarkAttendance(ctx, d.StudentID, r.now())
		if err != nil {
			r.logger.Warn("failed to log attendance", "student", d.StudentID, "error", err)
		} else {
			r.logger.Debug("attendance logged", "student", d.StudentID, "outcome", outcome)
		}
	}
	return d
}

func (r *Recognizer) decide(ctx context.Context, face image.Image) Decision {
	embeddings, err := r.embedder.Embed(ctx, face)
	if errors.Is(err, ErrNoEmbedding) {
		return Decision{Kind: KindNoFace, Ratio: -1}
	}
	if err != nil {
		r.logger.Warn("embedding failed", "error", err)
		return errorDecision(fmt.Errorf("embedding face: %w", err))
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return Decision{Kind: KindNoFace, Ratio: -1}
	}
	return r.RecognizeEmbedding(ctx, embeddings[0])
}

// RecognizeEmbedding runs classification and gallery verification on an
// already extracted embedding.
func (r *Recognizer) RecognizeEmbedding(ctx context.Context, embedding []float32) Decision {
	probs, err := r.classifier.Predict(embedding)
	if err != nil {
		return errorDecision(fmt.Errorf("classifying embedding: %w", err))
	}

	top := TopK(probs, r.opts.TopK)
	candidates := make([]Candidate, 0, len(top))
	bestIdx, bestRatio := -1, -1.0

	for _, classIdx := range top {
		studentID, err := r.labels.Decode(classIdx)
		if err != nil {
			return errorDecision(fmt.Errorf("decoding class %d: %w", classIdx, err))
		}
		c := Candidate{StudentID: studentID, Probability: probs[classIdx], Ratio: -1}

		refs, err := r.gallery.Embeddings(ctx, studentID)
		if err != nil {
			return errorDecision(fmt.Errorf("loading gallery of %s: %w", studentID, err))
		}
		if len(refs) == 0 {
			candidates = append(candidates, c)
			continue
		}

		ratio, err := gallery.VerificationRatio(embedding, refs, r.opts.SimThreshold)
		if err != nil {
			return errorDecision(fmt.Errorf("verifying %s: %w", studentID, err))
		}
		c.Ratio = ratio
		candidates = append(candidates, c)

		if ratio > bestRatio {
			bestIdx, bestRatio = len(candidates)-1, ratio
		}
	}

	d := Decision{Kind: KindUnknown, Ratio: bestRatio, Candidates: candidates}
	if bestIdx >= 0 && bestRatio >= r.opts.VerifyRatio {
		d.Kind = KindIdentified
		d.StudentID = candidates[bestIdx].StudentID
	}
	return d
}

// FaceDecision is the decision for one detected face.
type FaceDecision struct {
	Box      facematch.Box
	Decision Decision
}

// ImageResult is the outcome of recognizing every face in an image.
type ImageResult struct {
	Status DetectionStatus
	Err    error
	Faces  []FaceDecision
}

// RecognizeImage detects all faces in img and recognizes each of them. It
// never records attendance; callers decide what to do with the decisions.
func (r *Recognizer) RecognizeImage(ctx context.Context, img image.Image) ImageResult {
	if r.detector == nil {
		return ImageResult{Status: DetectionFailed, Err: errors.New("recognition: no face detector configured")}
	}

	det := r.detector.Detect(ctx, img)
	switch det.Status {
	case DetectionFailed:
		r.logger.Warn("face detection failed", "error", det.Err)
		return ImageResult{Status: DetectionFailed, Err: det.Err}
	case NoFaceDetected:
		return ImageResult{Status: NoFaceDetected}
	}
	if len(det.Boxes) == 0 {
		return ImageResult{Status: NoFaceDetected}
	}

	result := ImageResult{Status: Detected, Faces: make([]FaceDecision, 0, len(det.Boxes))}
	for _, box := range det.Boxes {
		box = box.ClampOrigin()
		face, err := facematch.Crop(img, box)
		if err != nil {
			result.Faces = append(result.Faces, FaceDecision{Box: box, Decision: errorDecision(err)})
			continue
		}
		result.Faces = append(result.Faces, FaceDecision{
			Box:      box,
			Decision: r.recognizeFace(ctx, face, false),
		})
	}
	return result
}
