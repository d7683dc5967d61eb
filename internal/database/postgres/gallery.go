package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/pgvector/pgvector-go"
)

// GalleryRepository stores reference embeddings in gallery_embeddings (pgvector).
type GalleryRepository struct {
	pool *Pool
}

// NewGalleryRepository creates a new PostgreSQL gallery repository
func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool}
}

// SaveEmbedding appends a reference vector for a student
func (r *GalleryRepository) SaveEmbedding(ctx context.Context, entry database.GalleryEntry) error {
	if entry.StudentID == "" {
		return database.ErrEmptyMatric
	}
	if len(entry.Embedding) == 0 {
		return errors.New("empty embedding")
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO gallery_embeddings (student_id, source, embedding, dim)
		VALUES ($1, $2, $3, $4)
	`, entry.StudentID, entry.Source, pgvector.NewVector(entry.Embedding), len(entry.Embedding))
	if err != nil {
		return fmt.Errorf("insert gallery embedding: %w", err)
	}
	return nil
}

// Embeddings returns every reference vector of a student, empty if none
func (r *GalleryRepository) Embeddings(ctx context.Context, studentID string) ([][]float32, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT embedding FROM gallery_embeddings
		WHERE student_id = $1
		ORDER BY id
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query gallery embeddings: %w", err)
	}
	defer rows.Close()

	var result [][]float32
	for rows.Next() {
		var vec pgvector.Vector
		if err := rows.Scan(&vec); err != nil {
			return nil, fmt.Errorf("scan gallery embedding: %w", err)
		}
		result = append(result, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery embeddings: %w", err)
	}
	return result, nil
}

// Entries returns all gallery entries
func (r *GalleryRepository) Entries(ctx context.Context) ([]database.GalleryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, student_id, source, embedding, created_at
		FROM gallery_embeddings
		ORDER BY student_id, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query gallery entries: %w", err)
	}
	defer rows.Close()

	var entries []database.GalleryEntry
	for rows.Next() {
		var (
			e   database.GalleryEntry
			vec pgvector.Vector
		)
		if err := rows.Scan(&e.ID, &e.StudentID, &e.Source, &vec, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan gallery entry: %w", err)
		}
		e.Embedding = vec.Slice()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery entries: %w", err)
	}
	return entries, nil
}

// CountByStudent returns the number of vectors per student
func (r *GalleryRepository) CountByStudent(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, "SELECT student_id, COUNT(*) FROM gallery_embeddings GROUP BY student_id")
	if err != nil {
		return nil, fmt.Errorf("count gallery embeddings: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan gallery count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery counts: %w", err)
	}
	return counts, nil
}

// FindSimilar returns the entries closest to embedding by cosine distance,
// restricted to vectors of the same dimension.
func (r *GalleryRepository) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]database.GalleryEntry, []float64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, student_id, source, embedding, created_at, embedding <=> $1 AS distance
		FROM gallery_embeddings
		WHERE dim = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(embedding), len(embedding), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar gallery entries: %w", err)
	}
	defer rows.Close()

	var (
		entries   []database.GalleryEntry
		distances []float64
	)
	for rows.Next() {
		var (
			e    database.GalleryEntry
			vec  pgvector.Vector
			dist float64
		)
		if err := rows.Scan(&e.ID, &e.StudentID, &e.Source, &vec, &e.CreatedAt, &dist); err != nil {
			return nil, nil, fmt.Errorf("scan similar gallery entry: %w", err)
		}
		e.Embedding = vec.Slice()
		entries = append(entries, e)
		distances = append(distances, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate similar gallery entries: %w", err)
	}
	return entries, distances, nil
}
