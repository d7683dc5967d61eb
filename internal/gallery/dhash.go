package gallery

import (
	"image"
	"math/bits"

	"golang.org/x/image/draw"
)

// DHash computes a 64-bit difference hash of img: the image is scaled to 9x8
// grayscale and each bit records whether a pixel is brighter than its right
// neighbour. Re-encoded or slightly resized copies of a photo hash alike.
func DHash(img image.Image) uint64 {
	gray := image.NewGray(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray.GrayAt(x, y).Y > gray.GrayAt(x+1, y).Y {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

// HammingDistance is the number of differing bits of two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
