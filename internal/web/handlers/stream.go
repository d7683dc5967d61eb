package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/attendance/internal/capture"
)

// mjpegBoundary separates the parts of the motion JPEG stream.
const mjpegBoundary = "frame"

// streamMJPEG writes every new annotated frame of the session as one part of
// a multipart/x-mixed-replace response until the session stops or the client
// disconnects.
func streamMJPEG(w http.ResponseWriter, r *http.Request, s *capture.Session, logger *slog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var seq uint64
	for {
		frame, next, err := s.NextFrame(r.Context(), seq)
		if err != nil {
			if !errors.Is(err, capture.ErrSessionStopped) && r.Context().Err() == nil {
				logger.Warn("frame stream ended", "session", s.ID, "error", err)
			}
			return
		}
		seq = next

		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(frame)); err != nil {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}
