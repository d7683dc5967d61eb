package capture

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/constants"
)

// ErrSessionStopped is returned when waiting for frames of a stopped session.
var ErrSessionStopped = errors.New("capture: session stopped")

// Status is the lifecycle state of a session.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Info is a point-in-time view of a session.
type Info struct {
	ID        string     `json:"id"`
	Device    string     `json:"device"`
	Status    Status     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Frames    int64      `json:"frames"`
	Marked    int64      `json:"marked"`
	Viewers   int        `json:"viewers"`
}

// Session is one running camera loop.
type Session struct {
	Broadcaster

	ID        string
	Device    string
	StartedAt time.Time

	source    Source
	processor Processor
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time

	cancel context.CancelFunc
	done   chan struct{}

	frames atomic.Int64
	marked atomic.Int64

	stateMu   sync.RWMutex
	status    Status
	stoppedAt *time.Time

	frameMu sync.Mutex
	frame   []byte
	seq     uint64
	updated chan struct{}
}

func newSession(id, device string, source Source, processor Processor, observer Observer, logger *slog.Logger, now func() time.Time) *Session {
	return &Session{
		ID:        id,
		Device:    device,
		StartedAt: now(),
		source:    source,
		processor: processor,
		observer:  observer,
		logger:    logger.With("session", id),
		now:       now,
		done:      make(chan struct{}),
		status:    StatusRunning,
		updated:   make(chan struct{}),
	}
}

// Info returns the current state of the session.
func (s *Session) Info() Info {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return Info{
		ID:        s.ID,
		Device:    s.Device,
		Status:    s.status,
		StartedAt: s.StartedAt,
		StoppedAt: s.stoppedAt,
		Frames:    s.frames.Load(),
		Marked:    s.marked.Load(),
		Viewers:   s.ListenerCount(),
	}
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.status
}

// Done is closed when the capture loop has exited and the source is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stop cancels the capture loop and waits for it to exit.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

// Frame returns the latest annotated JPEG frame and its sequence number.
// The sequence is zero before the first frame.
func (s *Session) Frame() ([]byte, uint64) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	return s.frame, s.seq
}

// NextFrame blocks until a frame newer than after is available.
func (s *Session) NextFrame(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		s.frameMu.Lock()
		frame, seq, updated := s.frame, s.seq, s.updated
		s.frameMu.Unlock()

		if seq > after {
			return frame, seq, nil
		}

		select {
		case <-ctx.Done():
			return nil, seq, ctx.Err()
		case <-s.done:
			return nil, seq, ErrSessionStopped
		case <-updated:
		}
	}
}

func (s *Session) setFrame(frame []byte) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	s.frame = frame
	s.seq++
	close(s.updated)
	s.updated = make(chan struct{})
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if err := s.source.Close(); err != nil {
			s.logger.Warn("failed to close frame source", "error", err)
		}
	}()

	s.logger.Info("capture session started", "device", s.Device)

	for ctx.Err() == nil {
		img, err := s.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, ErrSourceClosed) {
				s.logger.Info("frame source closed")
				break
			}
			s.logger.Warn("failed to read frame", "error", err)
			s.recordFrame(FrameReadError)
			select {
			case <-ctx.Done():
			case <-time.After(constants.FrameReadRetryDelay):
			}
			continue
		}
		s.processFrame(ctx, img)
	}

	stoppedAt := s.now()
	s.stateMu.Lock()
	s.status = StatusStopped
	s.stoppedAt = &stoppedAt
	s.stateMu.Unlock()

	s.SendEvent(Event{Type: EventStopped, Message: "Capture stopped", Time: stoppedAt})
	s.closeListeners()
	s.logger.Info("capture session stopped", "frames", s.frames.Load(), "marked", s.marked.Load())
}

func (s *Session) processFrame(ctx context.Context, img image.Image) {
	s.frames.Add(1)

	res, err := s.processor.ProcessImage(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("failed to record attendance", "error", err)
		s.SendEvent(Event{Type: EventError, Message: err.Error(), Time: s.now()})
	}

	var faces []attendance.FaceResult
	switch res.Outcome {
	case attendance.OutcomeDetectionError:
		s.logger.Debug("skipping frame, face detection failed", "error", res.Err)
		s.recordFrame(FrameDetectionError)
	case attendance.OutcomeNoFace, attendance.OutcomeUnreadable:
		s.recordFrame(FrameNoFace)
	default:
		s.recordFrame(FrameFaces)
		faces = res.Faces
	}

	if n := len(res.Present()); n > 0 {
		s.marked.Add(int64(n))
	}

	frame, encErr := EncodeJPEG(Annotate(img, faces), constants.StreamJPEGQuality)
	if encErr != nil {
		s.logger.Warn("failed to encode frame", "error", encErr)
	} else {
		s.setFrame(frame)
	}

	if len(faces) > 0 {
		s.SendEvent(Event{Type: EventFaces, Faces: res.Pairs(), Time: s.now()})
	}
}

func (s *Session) recordFrame(result string) {
	if s.observer != nil {
		s.observer.RecordFrame(result)
	}
}
