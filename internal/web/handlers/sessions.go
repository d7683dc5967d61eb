package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance/internal/capture"
)

// SessionsHandler starts and stops camera capture sessions.
type SessionsHandler struct {
	manager       *capture.Manager
	defaultDevice string
	logger        *slog.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(manager *capture.Manager, defaultDevice string, logger *slog.Logger) *SessionsHandler {
	return &SessionsHandler{manager: manager, defaultDevice: defaultDevice, logger: logger}
}

type startSessionRequest struct {
	Device string `json:"device"`
}

// lookupSession resolves the {sessionId} URL parameter, writing an error
// response when it cannot.
func (h *SessionsHandler) lookupSession(w http.ResponseWriter, r *http.Request) (*capture.Session, bool) {
	id := chi.URLParam(r, "sessionId")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing session ID")
		return nil, false
	}
	s, err := h.manager.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

// Start opens a camera and starts recognizing. The body is optional; the
// configured device is used when none is given.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	device := strings.TrimSpace(req.Device)
	if device == "" {
		device = h.defaultDevice
	}

	s, err := h.manager.Start(device)
	if err != nil {
		h.logger.Error("failed to start capture session", "device", sanitizeForLog(device), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to open camera")
		return
	}
	respondJSON(w, http.StatusCreated, s.Info())
}

// List returns all sessions.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.manager.List()
	infos := make([]capture.Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	respondJSON(w, http.StatusOK, infos)
}

// Get returns one session.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.Info())
}

// Stop stops a session and releases its camera.
func (h *SessionsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	if err := h.manager.Stop(id); err != nil {
		if errors.Is(err, capture.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to stop session")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(capture.StatusStopped)})
}

// Events streams recognition events of a session via SSE.
func (h *SessionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	streamSSEEvents(w, r, s)
}

// Stream serves the annotated frames of a session as motion JPEG.
func (h *SessionsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	streamMJPEG(w, r, s, h.logger)
}

// Frame returns the latest annotated frame as a single JPEG.
func (h *SessionsHandler) Frame(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	frame, seq := s.Frame()
	if seq == 0 {
		respondError(w, http.StatusNotFound, "no frame captured yet")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame)
}
