package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
)

// StudentsHandler handles roster endpoints.
type StudentsHandler struct {
	students database.StudentReader
	service  AttendanceService
	logger   *slog.Logger
}

// NewStudentsHandler creates a new students handler.
func NewStudentsHandler(students database.StudentReader, service AttendanceService, logger *slog.Logger) *StudentsHandler {
	return &StudentsHandler{students: students, service: service, logger: logger}
}

type registerStudentRequest struct {
	Matric string `json:"matric"`
	Name   string `json:"name"`
}

type registerStudentResponse struct {
	Matric   string `json:"matric"`
	Name     string `json:"name"`
	Inserted bool   `json:"inserted"`
}

// List returns all students, optionally filtered by ?search= on matric or
// name (case and diacritics insensitive).
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	students, err := h.students.ListStudents(r.Context())
	if err != nil {
		h.logger.Error("failed to list students", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list students")
		return
	}

	search := strings.TrimSpace(r.URL.Query().Get("search"))
	result := make([]database.Student, 0, len(students))
	for _, s := range students {
		if facematch.MatchesStudent(s.Matric, s.Name, search) {
			result = append(result, s)
		}
	}
	respondJSON(w, http.StatusOK, result)
}

// Register inserts a student. An existing matric keeps its original name.
func (h *StudentsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	req.Matric = strings.TrimSpace(req.Matric)
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	inserted, err := h.service.RegisterStudent(r.Context(), req.Matric, req.Name)
	if errors.Is(err, database.ErrEmptyMatric) {
		respondError(w, http.StatusBadRequest, "matric is required")
		return
	}
	if err != nil {
		h.logger.Error("failed to register student", "matric", sanitizeForLog(req.Matric), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to register student")
		return
	}

	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	respondJSON(w, status, registerStudentResponse{Matric: req.Matric, Name: req.Name, Inserted: inserted})
}
