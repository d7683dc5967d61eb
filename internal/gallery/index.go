package gallery

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/attendance/internal/database"
)

// HNSW parameters for face embeddings.
const (
	// MaxNeighbors (M) is the maximum number of neighbors per node.
	MaxNeighbors = 16
	// EfSearch is the search candidate pool size.
	EfSearch = 100
)

// ErrIndexEmpty is returned when searching an index with no graph.
var ErrIndexEmpty = errors.New("gallery index not built")

// Match is a gallery entry returned by a nearest-neighbor search.
type Match struct {
	Entry      database.GalleryEntry `json:"entry"`
	Similarity float64               `json:"similarity"`
}

// SimilarFinder is a gallery store that ranks vectors by cosine distance
// itself, such as a pgvector table.
type SimilarFinder interface {
	FindSimilar(ctx context.Context, embedding []float32, limit int) ([]database.GalleryEntry, []float64, error)
}

// FindMatches searches the store directly instead of an in-memory index.
func FindMatches(ctx context.Context, f SimilarFinder, query []float32, limit int) ([]Match, error) {
	entries, distances, err := f.FindSimilar(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(entries) != len(distances) {
		return nil, fmt.Errorf("similar search returned %d entries and %d distances", len(entries), len(distances))
	}
	matches := make([]Match, len(entries))
	for i, e := range entries {
		matches[i] = Match{Entry: e, Similarity: max(-1, min(1, 1-distances[i]))}
	}
	return matches, nil
}

// Index is an approximate nearest-neighbor index over all gallery entries,
// used to find which student an unlabelled face most resembles.
type Index struct {
	graph   *hnsw.Graph[int64]
	entries map[int64]*database.GalleryEntry
	dim     int
	mu      sync.RWMutex
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[int64]*database.GalleryEntry)}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = MaxNeighbors
	g.Ml = 1.0 / float64(MaxNeighbors)
	g.EfSearch = EfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents. Entries without an embedding or with a
// dimension different from the first one are skipped.
func (x *Index) Build(entries []database.GalleryEntry) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.graph = nil
	x.dim = 0
	x.entries = make(map[int64]*database.GalleryEntry, len(entries))

	skipped := 0
	for i := range entries {
		e := &entries[i]
		if len(e.Embedding) == 0 || (x.dim != 0 && len(e.Embedding) != x.dim) {
			skipped++
			continue
		}
		if x.graph == nil {
			x.graph = newGraph()
			x.dim = len(e.Embedding)
		}
		x.graph.Add(hnsw.MakeNode(e.ID, e.Embedding))
		x.entries[e.ID] = e
	}
	return skipped
}

// Search returns up to k entries closest to query, most similar first.
func (x *Index) Search(query []float32, k int) ([]Match, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil {
		return nil, ErrIndexEmpty
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: index has %d, query has %d", ErrDimensionMismatch, x.dim, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	neighbors := x.graph.Search(query, k)
	matches := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		entry, ok := x.entries[n.Key]
		if !ok {
			continue
		}
		sim, err := CosineSimilarity(query, n.Value)
		if err != nil {
			continue
		}
		matches = append(matches, Match{Entry: *entry, Similarity: sim})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches, nil
}

// Count returns the number of indexed entries.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Save writes the graph to path and the entry metadata to path.entries.
func (x *Index) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil {
		_ = os.Remove(path)
		_ = os.Remove(path + ".entries")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := x.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	entries := make([]database.GalleryEntry, 0, len(x.entries))
	for _, e := range x.entries {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}
	if err := os.WriteFile(path+".entries", buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write entries file: %w", err)
	}
	return nil
}

// Load reads an index previously written by Save.
func (x *Index) Load(path string) error {
	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}

	data, err := os.ReadFile(path + ".entries") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to read entries file: %w", err)
	}
	var entries []database.GalleryEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode entries: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.graph = saved.Graph
	x.graph.Distance = hnsw.CosineDistance
	x.entries = make(map[int64]*database.GalleryEntry, len(entries))
	x.dim = 0
	for i := range entries {
		x.entries[entries[i].ID] = &entries[i]
		if x.dim == 0 {
			x.dim = len(entries[i].Embedding)
		}
	}
	if len(x.entries) == 0 {
		x.graph = nil
	}
	return nil
}
