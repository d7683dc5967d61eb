package handlers

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
)

// DashboardHandler renders the attendance dashboard.
type DashboardHandler struct {
	students database.StudentReader
	records  database.AttendanceReader
	manager  *capture.Manager
	tmpl     *template.Template
	logger   *slog.Logger
	now      func() time.Time
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(students database.StudentReader, records database.AttendanceReader, manager *capture.Manager, tmpl *template.Template, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		students: students,
		records:  records,
		manager:  manager,
		tmpl:     tmpl,
		logger:   logger,
		now:      time.Now,
	}
}

type dashboardData struct {
	Date         string
	Students     int
	PresentToday int
	Records      []database.AttendanceRow
	SessionID    string
}

// Show renders the dashboard page.
func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := dashboardData{Date: h.now().Format(database.DateLayout)}

	var err error
	if data.Students, err = h.students.CountStudents(ctx); err != nil {
		h.logger.Error("failed to count students", "error", err)
		http.Error(w, "failed to load dashboard", http.StatusInternalServerError)
		return
	}
	if data.PresentToday, err = h.records.CountAttendance(ctx, data.Date); err != nil {
		h.logger.Error("failed to count attendance", "error", err)
		http.Error(w, "failed to load dashboard", http.StatusInternalServerError)
		return
	}
	data.Records, err = h.records.ListAttendance(ctx, database.AttendanceFilter{Limit: constants.DefaultAttendanceLimit})
	if err != nil {
		h.logger.Error("failed to list attendance", "error", err)
		http.Error(w, "failed to load dashboard", http.StatusInternalServerError)
		return
	}

	if h.manager != nil {
		for _, s := range h.manager.List() {
			if s.Status() == capture.StatusRunning {
				data.SessionID = s.ID
			}
		}
	}

	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, data); err != nil {
		h.logger.Error("failed to render dashboard", "error", err)
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
