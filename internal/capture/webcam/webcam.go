// Package webcam reads frames from a local camera or video stream with OpenCV.
package webcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/kozaktomas/attendance/internal/capture"
	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned when the camera delivered no image data.
var ErrEmptyFrame = errors.New("webcam: empty frame")

// Camera is an OpenCV video capture.
type Camera struct {
	device  string
	capture *gocv.VideoCapture
	frame   gocv.Mat
	mu      sync.Mutex
	closed  bool
}

// Open opens a camera by index ("0") or a video file/stream URL.
func Open(device string) (capture.Source, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("opening video capture %s: %w", device, err)
	}
	return &Camera{
		device:  device,
		capture: vc,
		frame:   gocv.NewMat(),
	}, nil
}

// Read grabs the next frame.
func (c *Camera) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, capture.ErrSourceClosed
	}

	if ok := c.capture.Read(&c.frame); !ok {
		return nil, fmt.Errorf("reading from device %s: %w", c.device, ErrEmptyFrame)
	}
	if c.frame.Empty() {
		return nil, ErrEmptyFrame
	}

	img, err := c.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	return img, nil
}

// Close releases the camera.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.frame.Close(); err != nil {
		return err
	}
	return c.capture.Close()
}
