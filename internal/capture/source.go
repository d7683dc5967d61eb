// Package capture runs real-time attendance sessions: frames are read from a
// camera, every face is recognized and marked, and the annotated frames and
// recognition events are fanned out to any number of viewers.
package capture

import (
	"context"
	"errors"
	"image"

	"github.com/kozaktomas/attendance/internal/attendance"
)

// ErrSourceClosed is returned by a Source that will not deliver more frames.
var ErrSourceClosed = errors.New("capture: source closed")

// Source delivers camera frames. Read blocks until the next frame is available.
type Source interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// Opener opens the frame source of a device, e.g. a webcam index or stream URL.
type Opener func(device string) (Source, error)

// Processor recognizes the faces of a frame and records attendance.
type Processor interface {
	ProcessImage(ctx context.Context, img image.Image) (attendance.Result, error)
}

// Observer is notified about processed frames and running sessions.
type Observer interface {
	RecordFrame(result string)
	SetActiveSessions(n int)
}

// Frame results reported to the Observer.
const (
	FrameFaces          = "faces"
	FrameNoFace         = "no_face"
	FrameDetectionError = "detection_error"
	FrameReadError      = "read_error"
)
