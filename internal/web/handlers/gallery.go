package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/gallery"
	"github.com/kozaktomas/attendance/internal/recognition"
)

// GalleryIndex is the nearest-neighbor index over all gallery entries.
type GalleryIndex interface {
	Build(entries []database.GalleryEntry) int
	Search(query []float32, k int) ([]gallery.Match, error)
	Count() int
}

// GalleryHandler serves gallery statistics and similarity search.
type GalleryHandler struct {
	gallery  database.GalleryReader
	index    GalleryIndex
	embedder recognition.Embedder
	logger   *slog.Logger
}

// NewGalleryHandler creates a new gallery handler.
func NewGalleryHandler(reader database.GalleryReader, index GalleryIndex, embedder recognition.Embedder, logger *slog.Logger) *GalleryHandler {
	return &GalleryHandler{gallery: reader, index: index, embedder: embedder, logger: logger}
}

type galleryStudentStats struct {
	StudentID string `json:"student_id"`
	Vectors   int    `json:"vectors"`
}

type galleryStatsResponse struct {
	Students []galleryStudentStats `json:"students"`
	Vectors  int                   `json:"vectors"`
	Indexed  int                   `json:"indexed"`
}

type galleryMatchResponse struct {
	StudentID  string  `json:"student_id"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

type reindexResponse struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
}

// Stats returns the number of reference vectors per student.
func (h *GalleryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.gallery.CountByStudent(r.Context())
	if err != nil {
		h.logger.Error("failed to count gallery", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to count gallery")
		return
	}

	resp := galleryStatsResponse{Students: make([]galleryStudentStats, 0, len(counts))}
	for id, n := range counts {
		resp.Students = append(resp.Students, galleryStudentStats{StudentID: id, Vectors: n})
		resp.Vectors += n
	}
	sort.Slice(resp.Students, func(i, j int) bool {
		return resp.Students[i].StudentID < resp.Students[j].StudentID
	})
	if h.index != nil {
		resp.Indexed = h.index.Count()
	}
	respondJSON(w, http.StatusOK, resp)
}

// Reindex rebuilds the similarity index from the gallery and drops any
// cached per-student galleries used by recognition.
func (h *GalleryHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	if c, ok := h.gallery.(interface{ Invalidate() }); ok {
		c.Invalidate()
	}
	if h.index == nil {
		respondError(w, http.StatusServiceUnavailable, "gallery index not available")
		return
	}
	entries, err := h.gallery.Entries(r.Context())
	if err != nil {
		h.logger.Error("failed to load gallery", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load gallery")
		return
	}
	skipped := h.index.Build(entries)
	h.logger.Info("gallery index rebuilt", "indexed", h.index.Count(), "skipped", skipped)
	respondJSON(w, http.StatusOK, reindexResponse{Indexed: h.index.Count(), Skipped: skipped})
}

// Search embeds the face of an uploaded image and returns the most similar
// gallery vectors. Stores that rank vectors themselves are queried directly,
// otherwise the in-memory index is used. It does not record attendance.
func (h *GalleryHandler) Search(w http.ResponseWriter, r *http.Request) {
	finder, direct := h.gallery.(gallery.SimilarFinder)
	if (h.index == nil && !direct) || h.embedder == nil {
		respondError(w, http.StatusServiceUnavailable, "gallery search not available")
		return
	}

	limit := constants.DefaultGallerySearchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, constants.MaxGallerySearchLimit)
	}

	data, err := readUploadedImage(r)
	if errors.Is(err, errMissingImage) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	img, err := attendance.DecodeImage(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "cannot read image")
		return
	}

	embeddings, err := h.embedder.Embed(r.Context(), img)
	if errors.Is(err, recognition.ErrNoEmbedding) || (err == nil && len(embeddings) == 0) {
		respondError(w, http.StatusUnprocessableEntity, "no face found")
		return
	}
	if err != nil {
		h.logger.Error("failed to embed face", "error", err)
		respondError(w, http.StatusBadGateway, "failed to compute embedding")
		return
	}

	var matches []gallery.Match
	if direct {
		matches, err = gallery.FindMatches(r.Context(), finder, embeddings[0], limit)
	} else {
		matches, err = h.index.Search(embeddings[0], limit)
	}
	switch {
	case errors.Is(err, gallery.ErrIndexEmpty):
		respondError(w, http.StatusServiceUnavailable, "gallery index is empty")
		return
	case errors.Is(err, gallery.ErrDimensionMismatch):
		respondError(w, http.StatusUnprocessableEntity, "embedding dimension does not match the gallery")
		return
	case err != nil:
		h.logger.Error("gallery search failed", "error", err)
		respondError(w, http.StatusInternalServerError, "gallery search failed")
		return
	}

	resp := make([]galleryMatchResponse, 0, len(matches))
	for _, m := range matches {
		resp = append(resp, galleryMatchResponse{
			StudentID:  m.Entry.StudentID,
			Source:     m.Entry.Source,
			Similarity: m.Similarity,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}
