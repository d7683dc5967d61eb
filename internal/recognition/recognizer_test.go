package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
)

type fakeEmbedder struct {
	embeddings [][]float32
	err        error
	calls      int
	sizes      []image.Point
	mu         sync.Mutex
}

func (f *fakeEmbedder) Embed(_ context.Context, face image.Image) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sizes = append(f.sizes, face.Bounds().Size())
	return f.embeddings, f.err
}

type fakeClassifier struct {
	probs []float64
	err   error
}

func (f *fakeClassifier) Predict([]float32) ([]float64, error) {
	return f.probs, f.err
}

type fakeLabels []string

func (l fakeLabels) Decode(i int) (string, error) {
	if i < 0 || i >= len(l) {
		return "", fmt.Errorf("class %d out of range", i)
	}
	return l[i], nil
}

type fakeGallery struct {
	refs  map[string][][]float32
	err   error
	calls []string
}

func (g *fakeGallery) Embeddings(_ context.Context, id string) ([][]float32, error) {
	g.calls = append(g.calls, id)
	if g.err != nil {
		return nil, g.err
	}
	return g.refs[id], nil
}

type fakeRecorder struct {
	marked []string
}

func (r *fakeRecorder) MarkAttendance(_ context.Context, matric string, _ time.Time) (database.MarkOutcome, error) {
	r.marked = append(r.marked, matric)
	return database.MarkRecorded, nil
}

type fakeDetector struct {
	detection Detection
}

func (d fakeDetector) Detect(context.Context, image.Image) Detection {
	return d.detection
}

type countingObserver struct {
	kinds []Kind
}

func (o *countingObserver) ObserveDecision(d Decision, _ time.Duration) {
	o.kinds = append(o.kinds, d.Kind)
}

var testFace = image.NewRGBA(image.Rect(0, 0, 32, 32))

func newTestRecognizer(t *testing.T, cfg Config) *Recognizer {
	t.Helper()
	if cfg.Options == (Options{}) {
		cfg.Options = DefaultOptions()
	}
	r, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestNew_RequiresCollaborators(t *testing.T) {
	full := Config{
		Embedder:   &fakeEmbedder{},
		Classifier: &fakeClassifier{},
		Labels:     fakeLabels{},
		Gallery:    &fakeGallery{},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no embedder", func(c *Config) { c.Embedder = nil }},
		{"no classifier", func(c *Config) { c.Classifier = nil }},
		{"no labels", func(c *Config) { c.Labels = nil }},
		{"no gallery", func(c *Config) { c.Gallery = nil }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := full
			tc.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}

	r, err := New(full)
	if err != nil {
		t.Fatal(err)
	}
	if r.Options().TopK != DefaultTopK {
		t.Errorf("expected default top-k, got %d", r.Options().TopK)
	}
}

func TestSetOptions(t *testing.T) {
	r := newTestRecognizer(t, Config{
		Embedder:   &fakeEmbedder{},
		Classifier: &fakeClassifier{},
		Labels:     fakeLabels{},
		Gallery:    &fakeGallery{},
	})

	r.SetOptions(Options{TopK: 0, SimThreshold: 0.8, VerifyRatio: 0.5, LogAttendance: true})
	got := r.Options()
	want := Options{TopK: DefaultTopK, SimThreshold: 0.8, VerifyRatio: 0.5, LogAttendance: true}
	if got != want {
		t.Errorf("Options() = %+v, want %+v", got, want)
	}
}

func TestRecognizeFace_IdenticalEmbeddingIsAccepted(t *testing.T) {
	emb := []float32{0.1, 0.7, 0.2}
	r := newTestRecognizer(t, Config{
		Embedder:   &fakeEmbedder{embeddings: [][]float32{emb}},
		Classifier: &fakeClassifier{probs: []float64{0.9, 0.1}},
		Labels:     fakeLabels{"A", "B"},
		Gallery:    &fakeGallery{refs: map[string][][]float32{"A": {emb}}},
	})

	d := r.RecognizeFace(context.Background(), testFace)
	if d.Label() != "A" || !d.Identified() {
		t.Errorf("expected A, got %q (%v)", d.Label(), d.Kind)
	}
	if d.Ratio != 1 {
		t.Errorf("expected ratio 1, got %v", d.Ratio)
	}
}

func TestRecognizeFace_Outcomes(t *testing.T) {
	query := []float32{1, 0}
	tests := []struct {
		name      string
		embedder  *fakeEmbedder
		probs     []float64
		refs      map[string][][]float32
		galleryEr error
		opts      Options
		wantLabel string
	}{
		{
			name:      "no embeddings",
			embedder:  &fakeEmbedder{},
			probs:     []float64{1},
			wantLabel: LabelNoFace,
		},
		{
			name:      "embedder reports no face",
			embedder:  &fakeEmbedder{err: fmt.Errorf("wrapped: %w", ErrNoEmbedding)},
			probs:     []float64{1},
			wantLabel: LabelNoFace,
		},
		{
			name:      "embedder fails",
			embedder:  &fakeEmbedder{err: errors.New("connection refused")},
			probs:     []float64{1},
			wantLabel: LabelError,
		},
		{
			name:      "no candidate has a gallery",
			embedder:  &fakeEmbedder{embeddings: [][]float32{query}},
			probs:     []float64{0.5, 0.3, 0.2},
			refs:      map[string][][]float32{},
			wantLabel: LabelUnknown,
		},
		{
			name:      "best ratio below verify ratio",
			embedder:  &fakeEmbedder{embeddings: [][]float32{query}},
			probs:     []float64{0.8, 0.2, 0},
			refs:      map[string][][]float32{"A": {{1, 0}, {0, 1}, {0, 1}}},
			wantLabel: LabelUnknown,
		},
		{
			name:      "ratio exactly at verify ratio is accepted",
			embedder:  &fakeEmbedder{embeddings: [][]float32{query}},
			probs:     []float64{0.8, 0.2, 0},
			refs:      map[string][][]float32{"A": {{1, 0}, {1, 0}, {1, 0}, {0, 1}, {0, 1}}},
			wantLabel: "A",
		},
		{
			name:      "lower probability candidate with better ratio wins",
			embedder:  &fakeEmbedder{embeddings: [][]float32{query}},
			probs:     []float64{0.6, 0.3, 0.1},
			refs:      map[string][][]float32{"A": {{1, 0}, {0, 1}}, "B": {{1, 0}, {1, 0.1}}},
			wantLabel: "B",
		},
		{
			name:      "candidate without gallery is skipped",
			embedder:  &fakeEmbedder{embeddings: [][]float32{query}},
			probs:     []float64{0.7, 0.2, 0.1},
			refs:      map[string][][]float32{"C": {{1, 0}}},
			wantLabel: "C",
		},
		{
			name:      "candidate outside top-k is never verified",
			embedder:  &fakeEmbedder{embeddings: [][]float32{query}},
			probs:     []float64{0.7, 0.2, 0.1},
			refs:      map[string][][]float32{"C": {{1, 0}}},
			opts:      Options{TopK: 2, SimThreshold: 0.6, VerifyRatio: 0.6},
			wantLabel: LabelUnknown,
		},
		{
			name:      "gallery error",
			embedder:  &fakeEmbedder{embeddings: [][]float32{query}},
			probs:     []float64{1, 0, 0},
			galleryEr: errors.New("disk error"),
			wantLabel: LabelError,
		},
		{
			name:      "gallery dimension mismatch",
			embedder:  &fakeEmbedder{embeddings: [][]float32{query}},
			probs:     []float64{1, 0, 0},
			refs:      map[string][][]float32{"A": {{1, 0, 0}}},
			wantLabel: LabelError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRecognizer(t, Config{
				Embedder:   tc.embedder,
				Classifier: &fakeClassifier{probs: tc.probs},
				Labels:     fakeLabels{"A", "B", "C"},
				Gallery:    &fakeGallery{refs: tc.refs, err: tc.galleryEr},
				Options:    tc.opts,
			})
			d := r.RecognizeFace(context.Background(), testFace)
			if d.Label() != tc.wantLabel {
				t.Errorf("expected %q, got %q (candidates %+v, err %v)", tc.wantLabel, d.Label(), d.Candidates, d.Err)
			}
		})
	}
}

func TestRecognizeFace_TiesKeepHigherProbabilityCandidate(t *testing.T) {
	query := []float32{1, 0}
	g := &fakeGallery{refs: map[string][][]float32{
		"A": {{1, 0}},
		"B": {{1, 0}},
	}}
	r := newTestRecognizer(t, Config{
		Embedder:   &fakeEmbedder{embeddings: [][]float32{query}},
		Classifier: &fakeClassifier{probs: []float64{0.3, 0.7}},
		Labels:     fakeLabels{"A", "B"},
		Gallery:    g,
	})

	d := r.RecognizeFace(context.Background(), testFace)
	if d.Label() != "B" {
		t.Errorf("expected B (higher probability), got %q", d.Label())
	}
	if len(g.calls) != 2 || g.calls[0] != "B" {
		t.Errorf("expected galleries checked in probability order, got %v", g.calls)
	}
}

func TestRecognizeFace_ClassifierErrors(t *testing.T) {
	tests := []struct {
		name       string
		classifier *fakeClassifier
		labels     fakeLabels
	}{
		{"predict fails", &fakeClassifier{err: errors.New("bad model")}, fakeLabels{"A"}},
		{"label missing", &fakeClassifier{probs: []float64{0.2, 0.8}}, fakeLabels{"A"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRecognizer(t, Config{
				Embedder:   &fakeEmbedder{embeddings: [][]float32{{1}}},
				Classifier: tc.classifier,
				Labels:     tc.labels,
				Gallery:    &fakeGallery{},
			})
			d := r.RecognizeFace(context.Background(), testFace)
			if d.Kind != KindError || d.Err == nil {
				t.Errorf("expected error decision, got %+v", d)
			}
		})
	}
}

func TestRecognizeFace_LogAttendance(t *testing.T) {
	emb := []float32{1, 0}
	newRecognizer := func(log bool, rec *fakeRecorder, refs map[string][][]float32) *Recognizer {
		opts := DefaultOptions()
		opts.LogAttendance = log
		return newTestRecognizer(t, Config{
			Embedder:   &fakeEmbedder{embeddings: [][]float32{emb}},
			Classifier: &fakeClassifier{probs: []float64{1}},
			Labels:     fakeLabels{"A"},
			Gallery:    &fakeGallery{refs: refs},
			Recorder:   rec,
			Options:    opts,
		})
	}

	rec := &fakeRecorder{}
	newRecognizer(true, rec, map[string][][]float32{"A": {emb}}).RecognizeFace(context.Background(), testFace)
	if len(rec.marked) != 1 || rec.marked[0] != "A" {
		t.Errorf("expected attendance logged for A, got %v", rec.marked)
	}

	rec = &fakeRecorder{}
	newRecognizer(false, rec, map[string][][]float32{"A": {emb}}).RecognizeFace(context.Background(), testFace)
	if len(rec.marked) != 0 {
		t.Errorf("expected no attendance when logging is disabled, got %v", rec.marked)
	}

	rec = &fakeRecorder{}
	newRecognizer(true, rec, nil).RecognizeFace(context.Background(), testFace)
	if len(rec.marked) != 0 {
		t.Errorf("expected no attendance for unknown face, got %v", rec.marked)
	}
}

func TestRecognizeImage(t *testing.T) {
	emb := []float32{1, 0}
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	newRecognizer := func(det Detection, embedder *fakeEmbedder, rec *fakeRecorder, obs Observer) *Recognizer {
		opts := DefaultOptions()
		opts.LogAttendance = true
		cfg := Config{
			Detector:   fakeDetector{detection: det},
			Embedder:   embedder,
			Classifier: &fakeClassifier{probs: []float64{1}},
			Labels:     fakeLabels{"A"},
			Gallery:    &fakeGallery{refs: map[string][][]float32{"A": {emb}}},
			Observer:   obs,
			Options:    opts,
		}
		if rec != nil {
			cfg.Recorder = rec
		}
		return newTestRecognizer(t, cfg)
	}

	t.Run("faces are clamped, cropped and never logged", func(t *testing.T) {
		embedder := &fakeEmbedder{embeddings: [][]float32{emb}}
		rec := &fakeRecorder{}
		obs := &countingObserver{}
		r := newRecognizer(DetectedFaces([]facematch.Box{
			{X: -10, Y: -10, W: 30, H: 30},
			{X: 50, Y: 50, W: 20, H: 20},
		}), embedder, rec, obs)

		res := r.RecognizeImage(context.Background(), img)
		if res.Status != Detected || len(res.Faces) != 2 {
			t.Fatalf("unexpected result: %+v", res)
		}
		if res.Faces[0].Box.X != 0 || res.Faces[0].Box.Y != 0 {
			t.Errorf("expected clamped origin, got %v", res.Faces[0].Box)
		}
		if embedder.sizes[0] != image.Pt(30, 30) {
			t.Errorf("expected 30x30 crop from clamped origin, got %v", embedder.sizes[0])
		}
		for _, f := range res.Faces {
			if f.Decision.Label() != "A" {
				t.Errorf("expected A, got %q", f.Decision.Label())
			}
		}
		if len(rec.marked) != 0 {
			t.Errorf("multi-face path must not log attendance, got %v", rec.marked)
		}
		if len(obs.kinds) != 2 {
			t.Errorf("expected 2 observed decisions, got %d", len(obs.kinds))
		}
	})

	t.Run("no face", func(t *testing.T) {
		r := newRecognizer(NoFaces(), &fakeEmbedder{}, nil, nil)
		if res := r.RecognizeImage(context.Background(), img); res.Status != NoFaceDetected {
			t.Errorf("expected no face, got %+v", res)
		}
	})

	t.Run("detected without boxes", func(t *testing.T) {
		r := newRecognizer(Detection{Status: Detected}, &fakeEmbedder{}, nil, nil)
		if res := r.RecognizeImage(context.Background(), img); res.Status != NoFaceDetected {
			t.Errorf("expected no face, got %+v", res)
		}
	})

	t.Run("detector failure", func(t *testing.T) {
		embedder := &fakeEmbedder{}
		r := newRecognizer(DetectionError(errors.New("model crashed")), embedder, nil, nil)
		res := r.RecognizeImage(context.Background(), img)
		if res.Status != DetectionFailed || res.Err == nil {
			t.Errorf("expected detection failure, got %+v", res)
		}
		if embedder.calls != 0 {
			t.Error("embedder must not run after detection failure")
		}
	})

	t.Run("box outside image", func(t *testing.T) {
		r := newRecognizer(DetectedFaces([]facematch.Box{{X: 500, Y: 500, W: 10, H: 10}}), &fakeEmbedder{}, nil, nil)
		res := r.RecognizeImage(context.Background(), img)
		if len(res.Faces) != 1 || res.Faces[0].Decision.Label() != LabelError {
			t.Errorf("expected error decision for empty crop, got %+v", res)
		}
	})

	t.Run("no detector configured", func(t *testing.T) {
		r := newTestRecognizer(t, Config{
			Embedder:   &fakeEmbedder{},
			Classifier: &fakeClassifier{},
			Labels:     fakeLabels{},
			Gallery:    &fakeGallery{},
		})
		if res := r.RecognizeImage(context.Background(), img); res.Status != DetectionFailed {
			t.Errorf("expected failure, got %+v", res)
		}
	})
}

func TestDecisionLabel(t *testing.T) {
	tests := []struct {
		d    Decision
		want string
	}{
		{Decision{Kind: KindIdentified, StudentID: "1234"}, "1234"},
		{Decision{Kind: KindNoFace}, "NoFace"},
		{Decision{Kind: KindUnknown}, "Unknown"},
		{Decision{Kind: KindError}, "Error"},
	}
	for _, tc := range tests {
		if got := tc.d.Label(); got != tc.want {
			t.Errorf("Label() = %q, want %q", got, tc.want)
		}
	}
}
