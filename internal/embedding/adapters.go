package embedding

import (
	"context"
	"fmt"
	"image"

	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/recognition"
)

// Embedder adapts the client to recognition.Embedder.
type Embedder struct {
	client *Client
}

// NewEmbedder returns an embedder backed by client.
func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// Embed returns the embeddings of all faces the server finds in the crop,
// most confident first. No faces yields an empty result.
func (e *Embedder) Embed(ctx context.Context, face image.Image) ([][]float32, error) {
	resp, err := e.client.FaceEmbeddingsImage(ctx, face)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.Embedding) > 0 {
			out = append(out, f.Embedding)
		}
	}
	return out, nil
}

// Detector adapts the client to recognition.Detector using the bounding boxes
// of the face endpoint. Overlapping boxes of the same face are merged.
type Detector struct {
	client   *Client
	minScore float64
}

// NewDetector returns a detector that drops faces scoring below minScore.
func NewDetector(client *Client, minScore float64) *Detector {
	return &Detector{client: client, minScore: minScore}
}

// Detect finds faces in img.
func (d *Detector) Detect(ctx context.Context, img image.Image) recognition.Detection {
	resp, err := d.client.FaceEmbeddingsImage(ctx, img)
	if err != nil {
		return recognition.DetectionError(fmt.Errorf("detecting faces: %w", err))
	}

	boxes := make([]facematch.Box, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if f.DetScore < d.minScore {
			continue
		}
		box, ok := facematch.FromCorners(f.BBox)
		if !ok {
			continue
		}
		boxes = append(boxes, box)
	}
	return recognition.DetectedFaces(facematch.Dedupe(boxes, constants.DedupeIoUThreshold))
}
