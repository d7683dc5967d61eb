package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/export"
)

// AttendanceHandler handles attendance list, export and manual marking.
type AttendanceHandler struct {
	records database.AttendanceReader
	service AttendanceService
	logger  *slog.Logger
	now     func() time.Time
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(records database.AttendanceReader, service AttendanceService, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{records: records, service: service, logger: logger, now: time.Now}
}

type markResponse struct {
	Matric string            `json:"matric"`
	Status attendance.Status `json:"status"`
}

// filterFromQuery reads ?date=, ?matric= and ?limit=.
func filterFromQuery(r *http.Request) (database.AttendanceFilter, error) {
	q := r.URL.Query()
	filter := database.AttendanceFilter{
		Date:   strings.TrimSpace(q.Get("date")),
		Matric: strings.TrimSpace(q.Get("matric")),
	}
	if filter.Date != "" {
		if _, err := time.Parse(database.DateLayout, filter.Date); err != nil {
			return filter, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", filter.Date)
		}
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid limit %q", limit)
		}
		filter.Limit = n
	}
	return filter, nil
}

// List returns attendance records, newest first.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.records.ListAttendance(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list attendance", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}
	if rows == nil {
		rows = []database.AttendanceRow{}
	}
	respondJSON(w, http.StatusOK, rows)
}

// Export downloads the attendance records as CSV.
func (h *AttendanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Buffered so a failing query still gets a JSON error response.
	var buf bytes.Buffer
	n, err := export.Attendance(r.Context(), h.records, filter, &buf)
	if err != nil {
		h.logger.Error("failed to export attendance", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to export attendance")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(h.now())))
	w.Header().Set("X-Record-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Mark marks a student present now.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	matric := strings.TrimSpace(chi.URLParam(r, "matric"))
	if matric == "" {
		respondError(w, http.StatusBadRequest, "missing matric")
		return
	}

	recorded, err := h.service.MarkAttendance(r.Context(), matric)
	if err != nil {
		h.logger.Error("failed to mark attendance", "matric", sanitizeForLog(matric), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to mark attendance")
		return
	}

	status := attendance.StatusAlreadyMarked
	if recorded {
		status = attendance.StatusPresent
	}
	respondJSON(w, http.StatusOK, markResponse{Matric: matric, Status: status})
}
