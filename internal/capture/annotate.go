package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/constants"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Box colors.
var (
	ColorPresent = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	ColorOther   = color.RGBA{R: 220, G: 0, B: 0, A: 255}
)

const boxThickness = 2

// Annotate returns a copy of img, scaled down to the stream width, with a
// box and a "<label> (<status>)" caption drawn for every face. Present faces
// are green, all others red.
func Annotate(img image.Image, faces []attendance.FaceResult) *image.RGBA {
	dst, scale := scaleFrame(img, constants.MaxStreamWidth)
	origin := img.Bounds().Min

	for _, f := range faces {
		c := ColorOther
		if f.Status == attendance.StatusPresent {
			c = ColorPresent
		}
		r := image.Rect(
			int(float64(f.Box.X-origin.X)*scale),
			int(float64(f.Box.Y-origin.Y)*scale),
			int(float64(f.Box.X-origin.X+f.Box.W)*scale),
			int(float64(f.Box.Y-origin.Y+f.Box.H)*scale),
		).Intersect(dst.Bounds())
		if r.Empty() {
			continue
		}
		drawRect(dst, r, c)
		drawLabel(dst, r, fmt.Sprintf("%s (%s)", f.Label, f.Status), c)
	}
	return dst
}

// scaleFrame copies img into an RGBA image no wider than maxWidth.
func scaleFrame(img image.Image, maxWidth int) (*image.RGBA, float64) {
	b := img.Bounds()
	if b.Dx() <= maxWidth || maxWidth <= 0 {
		dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst, 1
	}
	scale := float64(maxWidth) / float64(b.Dx())
	height := max(1, int(float64(b.Dy())*scale))
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, scale
}

func drawRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	t := boxThickness
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// drawLabel writes text above the box, or inside it when the box touches
// the top edge.
func drawLabel(dst *image.RGBA, r image.Rectangle, text string, c color.Color) {
	face := basicfont.Face7x13
	y := r.Min.Y - 4
	if y-face.Ascent < dst.Bounds().Min.Y {
		y = r.Min.Y + face.Ascent + boxThickness
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(r.Min.X, y),
	}
	d.DrawString(text)
}

// EncodeJPEG encodes img as JPEG with the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}
