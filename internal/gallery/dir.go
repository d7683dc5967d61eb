// Package gallery stores and searches the per-student reference embeddings
// used to verify classifier guesses.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/patrickmn/go-cache"
)

const npyExt = ".npy"

// DirGallery reads reference embeddings from a directory of .npy files named
// <student>_<n>.npy (or <student>.npy). Loaded galleries are cached per
// student; a ttl of zero keeps them until Invalidate.
type DirGallery struct {
	dir    string
	cache  *cache.Cache
	logger *slog.Logger
	mu     sync.Mutex // serializes writes
}

// NewDirGallery creates a gallery rooted at dir.
func NewDirGallery(dir string, ttl time.Duration, logger *slog.Logger) *DirGallery {
	if logger == nil {
		logger = slog.Default()
	}
	cleanup := ttl * 2
	if ttl <= 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	}
	return &DirGallery{
		dir:    dir,
		cache:  cache.New(ttl, cleanup),
		logger: logger,
	}
}

// Dir returns the gallery directory.
func (g *DirGallery) Dir() string {
	return g.dir
}

// StudentIDFromFile returns the student a gallery file belongs to: the file
// stem up to its last underscore, or the whole stem if it has none.
func StudentIDFromFile(name string) (string, bool) {
	if !strings.HasSuffix(name, npyExt) {
		return "", false
	}
	stem := strings.TrimSuffix(name, npyExt)
	if i := strings.LastIndexByte(stem, '_'); i > 0 {
		stem = stem[:i]
	}
	if stem == "" {
		return "", false
	}
	return stem, true
}

// listFiles returns gallery file names grouped by student id.
func (g *DirGallery) listFiles() (map[string][]string, error) {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		return nil, fmt.Errorf("reading gallery directory: %w", err)
	}

	files := make(map[string][]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := StudentIDFromFile(e.Name())
		if !ok {
			continue
		}
		files[id] = append(files[id], e.Name())
	}
	for id := range files {
		sort.Strings(files[id])
	}
	return files, nil
}

// Embeddings returns every reference vector of a student, empty if none.
// Unreadable files and vectors whose length differs from the student's
// dominant dimension are skipped. Empty results are not cached so a student
// enrolled by another process is seen on the next lookup.
func (g *DirGallery) Embeddings(ctx context.Context, studentID string) ([][]float32, error) {
	if cached, found := g.cache.Get(studentID); found {
		return cached.([][]float32), nil
	}

	files, err := g.listFiles()
	if err != nil {
		return nil, err
	}

	var loaded [][]float32
	var names []string
	for _, name := range files[studentID] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := ReadNPYFile(filepath.Join(g.dir, name))
		if err != nil {
			g.logger.Warn("skipping unreadable gallery file", "file", name, "error", err)
			continue
		}
		loaded = append(loaded, emb)
		names = append(names, name)
	}

	dim := dominantDim(loaded)
	result := make([][]float32, 0, len(loaded))
	for i, emb := range loaded {
		if len(emb) == 0 || len(emb) != dim {
			g.logger.Warn("skipping gallery file with wrong dimension",
				"file", names[i], "dim", len(emb), "want", dim)
			continue
		}
		result = append(result, emb)
	}
	if len(result) == 0 {
		return nil, nil
	}

	g.cache.Set(studentID, result, cache.DefaultExpiration)
	return result, nil
}

// dominantDim returns the most common vector length, preferring the one seen
// first on ties.
func dominantDim(vecs [][]float32) int {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, v := range vecs {
		counts[len(v)]++
		if c := counts[len(v)]; c > bestCount {
			best, bestCount = len(v), c
		}
	}
	return best
}

// Entries returns all gallery entries with sequential ids in file order.
func (g *DirGallery) Entries(ctx context.Context) ([]database.GalleryEntry, error) {
	files, err := g.listFiles()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(files))
	for id := range files {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var entries []database.GalleryEntry
	var next int64
	for _, id := range ids {
		for _, name := range files[id] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			path := filepath.Join(g.dir, name)
			emb, err := ReadNPYFile(path)
			if err != nil {
				g.logger.Warn("skipping unreadable gallery file", "file", name, "error", err)
				continue
			}
			next++
			entry := database.GalleryEntry{ID: next, StudentID: id, Source: name, Embedding: emb}
			if info, err := os.Stat(path); err == nil {
				entry.CreatedAt = info.ModTime()
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// CountByStudent returns the number of gallery files per student.
func (g *DirGallery) CountByStudent(ctx context.Context) (map[string]int, error) {
	files, err := g.listFiles()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(files))
	for id, names := range files {
		counts[id] = len(names)
	}
	return counts, nil
}

// SaveEmbedding writes the vector to the next free <student>_<n>.npy file.
func (g *DirGallery) SaveEmbedding(ctx context.Context, entry database.GalleryEntry) error {
	id := entry.StudentID
	if id == "" {
		return database.ErrEmptyMatric
	}
	if filepath.Base(id) != id || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("student id %q is not a valid file name", id)
	}
	if len(entry.Embedding) == 0 {
		return errors.New("empty embedding")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := os.MkdirAll(g.dir, 0o750); err != nil {
		return fmt.Errorf("creating gallery directory: %w", err)
	}

	var path string
	for n := 0; ; n++ {
		path = filepath.Join(g.dir, fmt.Sprintf("%s_%d%s", id, n, npyExt))
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			break
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640) //nolint:gosec // path built from validated id
	if err != nil {
		return fmt.Errorf("creating gallery file: %w", err)
	}
	if err := WriteNPY(f, entry.Embedding); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing gallery file: %w", err)
	}

	g.cache.Delete(id)
	g.logger.Debug("saved gallery embedding", "student", id, "file", filepath.Base(path))
	return nil
}

// Invalidate drops all cached galleries.
func (g *DirGallery) Invalidate() {
	g.cache.Flush()
}
