// Package facedetect provides a local face detector based on the pigo
// pixel-intensity cascade, for deployments without an embedding server
// doing detection.
package facedetect

import (
	"context"
	"fmt"
	"image"
	"os"
	"sort"

	pigo "github.com/esimov/pigo/core"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/recognition"
)

// Cascade parameters.
const (
	DefaultMinSize    = 40
	DefaultMaxSize    = 2000
	DefaultMinQuality = 5.0
	shiftFactor       = 0.1
	scaleFactor       = 1.1
	clusterIoU        = 0.2
)

// Options configure the cascade run.
type Options struct {
	MinSize    int
	MaxSize    int
	MinQuality float32
}

// Detector runs a pigo face cascade.
type Detector struct {
	classifier *pigo.Pigo
	opts       Options
}

// NewDetector loads a cascade file, typically "facefinder".
func NewDetector(cascadePath string, opts Options) (*Detector, error) {
	data, err := os.ReadFile(cascadePath) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}
	return NewDetectorFromBytes(data, opts)
}

// NewDetectorFromBytes unpacks an in-memory cascade.
func NewDetectorFromBytes(cascade []byte, opts Options) (*Detector, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}
	if opts.MinSize <= 0 {
		opts.MinSize = DefaultMinSize
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	return &Detector{classifier: classifier, opts: opts}, nil
}

// Detect finds faces in img. The cascade itself cannot fail once unpacked,
// so the result is either detected boxes or no face.
func (d *Detector) Detect(ctx context.Context, img image.Image) recognition.Detection {
	if err := ctx.Err(); err != nil {
		return recognition.DetectionError(err)
	}

	src := pigo.ImgToNRGBA(img)
	pixels := pigo.RgbToGrayscale(src)
	cols, rows := src.Bounds().Max.X, src.Bounds().Max.Y

	params := pigo.CascadeParams{
		MinSize:     d.opts.MinSize,
		MaxSize:     d.opts.MaxSize,
		ShiftFactor: shiftFactor,
		ScaleFactor: scaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, clusterIoU)

	return recognition.DetectedFaces(boxesFromDetections(dets, d.opts.MinQuality))
}

// boxesFromDetections converts centre/scale detections to boxes, most
// confident first. The origin may be negative for faces at the frame edge.
func boxesFromDetections(dets []pigo.Detection, minQuality float32) []facematch.Box {
	kept := make([]pigo.Detection, 0, len(dets))
	for _, det := range dets {
		if det.Q >= minQuality && det.Scale > 0 {
			kept = append(kept, det)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Q > kept[j].Q })

	boxes := make([]facematch.Box, 0, len(kept))
	for _, det := range kept {
		boxes = append(boxes, facematch.Box{
			X: det.Col - det.Scale/2,
			Y: det.Row - det.Scale/2,
			W: det.Scale,
			H: det.Scale,
		})
	}
	return boxes
}
