// Package facematch provides face box geometry, cropping and name matching
// shared between the recognizer, the capture loop and the web handlers.
package facematch

import (
	"fmt"
	"image"
)

// Box is a face bounding box in pixel coordinates: top-left corner plus size.
// Detectors may report a negative origin for faces touching the frame edge.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect returns the box as an image rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", b.X, b.Y, b.W, b.H)
}
