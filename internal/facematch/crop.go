package facematch

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

// ErrEmptyCrop is returned when a box does not overlap the image.
var ErrEmptyCrop = errors.New("face crop is empty")

// Crop extracts the face region of img. The box origin is clamped first and
// the region is intersected with the image bounds.
func Crop(img image.Image, box Box) (image.Image, error) {
	box = box.ClampOrigin()
	rect := box.Rect().Add(img.Bounds().Min).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, ErrEmptyCrop
	}
	return imaging.Crop(img, rect), nil
}
