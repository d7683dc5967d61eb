package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/attendance/internal/attendance"
)

// RecognizeHandler runs the multi-face attendance pipeline on uploaded images.
type RecognizeHandler struct {
	service AttendanceService
	logger  *slog.Logger
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(service AttendanceService, logger *slog.Logger) *RecognizeHandler {
	return &RecognizeHandler{service: service, logger: logger}
}

type recognizeResponse struct {
	Results []attendance.Pair       `json:"results"`
	Faces   []attendance.FaceResult `json:"faces"`
}

// Recognize accepts a multipart "image" upload, marks every identified face
// present and returns one (label, status) pair per face.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	data, err := readUploadedImage(r)
	if errors.Is(err, errMissingImage) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	var result attendance.Result
	if img, decodeErr := attendance.DecodeImage(data); decodeErr != nil {
		h.logger.Warn("cannot read uploaded image", "error", decodeErr)
		result = attendance.Result{Outcome: attendance.OutcomeUnreadable, Err: decodeErr}
	} else {
		result, err = h.service.ProcessImage(r.Context(), img)
		if err != nil {
			h.logger.Error("failed to record attendance", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to record attendance")
			return
		}
	}

	faces := result.Faces
	if faces == nil {
		faces = []attendance.FaceResult{}
	}
	respondJSON(w, http.StatusOK, recognizeResponse{Results: result.Pairs(), Faces: faces})
}
