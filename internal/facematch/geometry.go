package facematch

import "math"

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	// Calculate intersection.
	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	// Calculate union.
	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// FromCorners converts an [x1, y1, x2, y2] pixel bbox, as reported by the
// embedding service, into a Box. Coordinates are rounded to whole pixels.
func FromCorners(bbox []float64) (Box, bool) {
	if len(bbox) != 4 {
		return Box{}, false
	}
	x1 := int(math.Round(bbox[0]))
	y1 := int(math.Round(bbox[1]))
	x2 := int(math.Round(bbox[2]))
	y2 := int(math.Round(bbox[3]))
	if x2 <= x1 || y2 <= y1 {
		return Box{}, false
	}
	return Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}, true
}

// Corners returns the box in [x1, y1, x2, y2] format.
func (b Box) Corners() []float64 {
	return []float64{
		float64(b.X),
		float64(b.Y),
		float64(b.X + b.W),
		float64(b.Y + b.H),
	}
}

// ClampOrigin moves a negative origin to zero. Width and height are kept, so
// the crop still extends from the clamped corner.
func (b Box) ClampOrigin() Box {
	b.X = max(0, b.X)
	b.Y = max(0, b.Y)
	return b
}

// IoU returns the Intersection over Union of two boxes.
func IoU(a, b Box) float64 {
	return ComputeIoU(a.Corners(), b.Corners())
}

// Dedupe drops boxes overlapping an earlier box by more than threshold IoU.
// Earlier boxes win, so callers should pass the most confident first.
func Dedupe(boxes []Box, threshold float64) []Box {
	kept := make([]Box, 0, len(boxes))
	for _, b := range boxes {
		duplicate := false
		for _, k := range kept {
			if IoU(b, k) > threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, b)
		}
	}
	return kept
}
