package attendance

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/kozaktomas/attendance/internal/database/mock"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/recognition"
)

type stubDetector struct{ det recognition.Detection }

func (d stubDetector) Detect(context.Context, image.Image) recognition.Detection { return d.det }

type stubEmbedder struct{ emb []float32 }

func (e stubEmbedder) Embed(context.Context, image.Image) ([][]float32, error) {
	return [][]float32{e.emb}, nil
}

type stubClassifier struct{}

func (stubClassifier) Predict([]float32) ([]float64, error) { return []float64{0.9, 0.1}, nil }

type stubLabels []string

func (l stubLabels) Decode(i int) (string, error) { return l[i], nil }

func newPipeline(t *testing.T, det recognition.Detection) (*Service, *mock.MockLedger) {
	t.Helper()
	emb := []float32{0.3, 0.4, 0.5}
	g := mock.NewMockGallery()
	g.Add("1234", emb)

	r, err := recognition.New(recognition.Config{
		Detector:   stubDetector{det: det},
		Embedder:   stubEmbedder{emb: emb},
		Classifier: stubClassifier{},
		Labels:     stubLabels{"1234", "5678"},
		Gallery:    g,
		Options:    recognition.DefaultOptions(),
	})
	if err != nil {
		t.Fatal(err)
	}
	ledger := mock.NewMockLedger()
	ledger.AddStudent("1234", "John Doe")
	return newTestService(r, ledger), ledger
}

func TestPipeline_RecognizesAndMarksOncePerDay(t *testing.T) {
	s, ledger := newPipeline(t, recognition.DetectedFaces([]facematch.Box{{X: -3, Y: 2, W: 20, H: 20}}))

	res, err := s.ProcessImage(context.Background(), testImage)
	if err != nil {
		t.Fatal(err)
	}
	if pairs := res.Pairs(); len(pairs) != 1 || pairs[0] != (Pair{Label: "1234", Status: "Present"}) {
		t.Errorf("unexpected pairs %v", pairs)
	}

	res, _ = s.ProcessImage(context.Background(), testImage)
	if res.Faces[0].Status != StatusAlreadyMarked {
		t.Errorf("expected AlreadyMarked, got %s", res.Faces[0].Status)
	}
	if ledger.MarkCalls != 2 {
		t.Errorf("expected exactly one ledger call per face, got %d", ledger.MarkCalls)
	}
}

func TestPipeline_DetectorFailureDoesNotStopNextImage(t *testing.T) {
	failing, _ := newPipeline(t, recognition.DetectionError(errors.New("boom")))
	res, err := failing.ProcessImage(context.Background(), testImage)
	if err != nil || res.Outcome != OutcomeDetectionError {
		t.Fatalf("expected detection error outcome, got %v, %v", res.Outcome, err)
	}

	working, _ := newPipeline(t, recognition.DetectedFaces([]facematch.Box{{X: 0, Y: 0, W: 10, H: 10}}))
	res, err = working.ProcessImage(context.Background(), testImage)
	if err != nil || res.Outcome != OutcomeFaces {
		t.Errorf("expected faces outcome, got %v, %v", res.Outcome, err)
	}
}
