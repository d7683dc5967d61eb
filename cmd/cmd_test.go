package cmd

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/gallery"
	"github.com/kozaktomas/attendance/internal/recognition"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestScanEnrollDir(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "3986", "b.png"))
	writePNG(t, filepath.Join(dir, "3986", "a.JPG"))
	writePNG(t, filepath.Join(dir, "1234", "front.jpeg"))
	writePNG(t, filepath.Join(dir, "1234", "notes.txt"))
	writePNG(t, filepath.Join(dir, ".hidden", "x.png"))
	writePNG(t, filepath.Join(dir, "loose.png"))

	photos, err := scanEnrollDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	want := []enrollPhoto{
		{StudentID: "1234", Path: filepath.Join(dir, "1234", "front.jpeg")},
		{StudentID: "3986", Path: filepath.Join(dir, "3986", "a.JPG")},
		{StudentID: "3986", Path: filepath.Join(dir, "3986", "b.png")},
	}
	if len(photos) != len(want) {
		t.Fatalf("got %d photos, want %d: %v", len(photos), len(want), photos)
	}
	for i := range want {
		if photos[i] != want[i] {
			t.Errorf("photos[%d] = %+v, want %+v", i, photos[i], want[i])
		}
	}
}

func TestScanEnrollDir_Missing(t *testing.T) {
	if _, err := scanEnrollDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}

type stubEmbedder struct {
	embeddings [][]float32
	err        error
}

func (s stubEmbedder) Embed(context.Context, image.Image) ([][]float32, error) {
	return s.embeddings, s.err
}

func TestEnrollPhotoEmbedding(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	photo := enrollPhoto{StudentID: "3986", Path: filepath.Join(src, "3986", "front.png")}
	writePNG(t, photo.Path)

	tests := []struct {
		name     string
		embedder stubEmbedder
		photo    enrollPhoto
		wantErr  error
		wantSave bool
	}{
		{"saves first embedding", stubEmbedder{embeddings: [][]float32{{1, 0}, {0, 1}}}, photo, nil, true},
		{"no face", stubEmbedder{}, photo, recognition.ErrNoEmbedding, false},
		{"embedder error", stubEmbedder{err: errors.New("down")}, photo, nil, false},
		{"unreadable", stubEmbedder{}, enrollPhoto{StudentID: "3986", Path: filepath.Join(src, "missing.png")}, nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := gallery.NewDirGallery(t.TempDir(), 0, nil)
			err := enrollPhotoEmbedding(ctx, tc.embedder, store, tc.photo)

			if tc.wantSave {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				got, err := store.Embeddings(ctx, "3986")
				if err != nil {
					t.Fatal(err)
				}
				if len(got) != 1 || got[0][0] != 1 || got[0][1] != 0 {
					t.Errorf("stored %v, want [[1 0]]", got)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestExportPath(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 30, 5, 0, time.UTC)
	dir := t.TempDir()

	tests := []struct {
		name string
		out  string
		want string
	}{
		{"default name", "", "attendance_20250314_093005.csv"},
		{"directory", dir, filepath.Join(dir, "attendance_20250314_093005.csv")},
		{"explicit file", filepath.Join(dir, "march.csv"), filepath.Join(dir, "march.csv")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := exportPath(tc.out, now); got != tc.want {
				t.Errorf("exportPath(%q) = %q, want %q", tc.out, got, tc.want)
			}
		})
	}
}

func TestValidateDate(t *testing.T) {
	if err := validateDate(""); err != nil {
		t.Errorf("empty date: %v", err)
	}
	if err := validateDate("2025-03-14"); err != nil {
		t.Errorf("valid date: %v", err)
	}
	if err := validateDate("14.03.2025"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestFilterStudents(t *testing.T) {
	students := []database.Student{
		{Matric: "3986", Name: "Ada Lovelace"},
		{Matric: "1234", Name: "Tomáš Kozák"},
		{Matric: "0529", Name: "Grace Hopper"},
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"3986", "1234", "0529"}},
		{"kozak", []string{"1234"}},
		{"052", []string{"0529"}},
		{"nobody", nil},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			got := filterStudents(students, tc.query)
			var ids []string
			for _, s := range got {
				ids = append(ids, s.Matric)
			}
			if strings.Join(ids, ",") != strings.Join(tc.want, ",") {
				t.Errorf("filterStudents(%q) = %v, want %v", tc.query, ids, tc.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	l.Info("hidden")
	l.Warn("shown", "matric", "3986")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"matric":"3986"`) {
		t.Errorf("expected JSON warn record, got %s", out)
	}

	buf.Reset()
	newLogger(config.LogConfig{}, &buf).Info("text")
	if !strings.Contains(buf.String(), "msg=text") {
		t.Errorf("expected text handler output, got %s", buf.String())
	}
}

func TestDropDuplicatePhotos(t *testing.T) {
	dir := t.TempDir()
	photos := []enrollPhoto{
		{StudentID: "1234", Path: filepath.Join(dir, "1234", "a.png")},
		{StudentID: "1234", Path: filepath.Join(dir, "1234", "b.png")},
		{StudentID: "3986", Path: filepath.Join(dir, "3986", "a.png")},
		{StudentID: "3986", Path: filepath.Join(dir, "3986", "missing.png")},
	}
	for _, p := range photos[:3] {
		writePNG(t, p.Path)
	}

	kept, dropped := dropDuplicatePhotos(photos, 0)
	if len(dropped) != 1 || dropped[0] != photos[1] {
		t.Errorf("dropped = %v, want only %v", dropped, photos[1])
	}
	if len(kept) != 3 {
		t.Errorf("kept %d photos, want 3: %v", len(kept), kept)
	}

	kept, dropped = dropDuplicatePhotos(photos, -1)
	if len(kept) != len(photos) || len(dropped) != 0 {
		t.Errorf("disabled check kept %d, dropped %d", len(kept), len(dropped))
	}
}
