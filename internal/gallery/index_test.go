package gallery

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/attendance/internal/database"
)

func testEntries() []database.GalleryEntry {
	return []database.GalleryEntry{
		{ID: 1, StudentID: "1234", Embedding: []float32{1, 0, 0}},
		{ID: 2, StudentID: "1234", Embedding: []float32{0.9, 0.1, 0}},
		{ID: 3, StudentID: "5678", Embedding: []float32{0, 1, 0}},
		{ID: 4, StudentID: "9012", Embedding: []float32{0, 0, 1}},
		{ID: 5, StudentID: "bad", Embedding: []float32{1, 0}},
		{ID: 6, StudentID: "none"},
	}
}

func TestIndex_BuildAndSearch(t *testing.T) {
	idx := NewIndex()
	if skipped := idx.Build(testEntries()); skipped != 2 {
		t.Errorf("expected 2 skipped entries, got %d", skipped)
	}
	if idx.Count() != 4 {
		t.Fatalf("expected 4 indexed entries, got %d", idx.Count())
	}

	matches, err := idx.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected matches")
	}
	if matches[0].Entry.ID != 1 || math.Abs(matches[0].Similarity-1) > 1e-6 {
		t.Errorf("expected exact match first, got %+v", matches[0])
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Similarity > matches[i-1].Similarity {
			t.Error("matches not sorted by similarity")
		}
	}
}

func TestIndex_SearchErrors(t *testing.T) {
	idx := NewIndex()
	if _, err := idx.Search([]float32{1, 0, 0}, 1); !errors.Is(err, ErrIndexEmpty) {
		t.Errorf("expected ErrIndexEmpty, got %v", err)
	}

	idx.Build(testEntries())
	if _, err := idx.Search([]float32{1, 0}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.hnsw")

	idx := NewIndex()
	idx.Build(testEntries())
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded := NewIndex()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Count() != 4 {
		t.Errorf("expected 4 entries after load, got %d", loaded.Count())
	}

	matches, err := loaded.Search([]float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Entry.StudentID != "5678" {
		t.Errorf("unexpected matches after load: %+v", matches)
	}
}

type stubFinder struct {
	entries   []database.GalleryEntry
	distances []float64
	err       error
}

func (f stubFinder) FindSimilar(context.Context, []float32, int) ([]database.GalleryEntry, []float64, error) {
	return f.entries, f.distances, f.err
}

func TestFindMatches(t *testing.T) {
	entries := testEntries()[:2]

	tests := []struct {
		name    string
		finder  stubFinder
		want    []float64
		wantErr bool
	}{
		{"distances become similarities", stubFinder{entries: entries, distances: []float64{0, 0.25}}, []float64{1, 0.75}, false},
		{"clamped", stubFinder{entries: entries, distances: []float64{-1e-7, 2.5}}, []float64{1, -1}, false},
		{"empty", stubFinder{}, nil, false},
		{"length mismatch", stubFinder{entries: entries, distances: []float64{0}}, nil, true},
		{"store error", stubFinder{err: errors.New("down")}, nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			matches, err := FindMatches(context.Background(), tc.finder, []float32{1, 0, 0}, 5)
			if (err != nil) != tc.wantErr {
				t.Fatalf("FindMatches() error = %v, wantErr %v", err, tc.wantErr)
			}
			if len(matches) != len(tc.want) {
				t.Fatalf("expected %d matches, got %d", len(tc.want), len(matches))
			}
			for i, m := range matches {
				if math.Abs(m.Similarity-tc.want[i]) > 1e-9 {
					t.Errorf("match %d similarity = %v, want %v", i, m.Similarity, tc.want[i])
				}
				if m.Entry.ID != entries[i].ID {
					t.Errorf("match %d entry = %d, want %d", i, m.Entry.ID, entries[i].ID)
				}
			}
		})
	}
}
