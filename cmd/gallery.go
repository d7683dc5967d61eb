package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/disintegration/imaging"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/gallery"
	"github.com/kozaktomas/attendance/internal/recognition"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage the reference embedding gallery",
}

var galleryBuildCmd = &cobra.Command{
	Use:   "build <enroll-dir>",
	Short: "Embed enrollment photos into the gallery",
	Long: `Embed enrollment photos into gallery vectors.
The enrollment directory holds one sub-directory per student named after the
matric number, containing that student's photos (jpg, jpeg or png):

  enroll/
    3986/ front.jpg left.jpg
    1234/ 001.png

Each photo with a detected face adds one reference vector.`,
	Args: cobra.ExactArgs(1),
	RunE: runGalleryBuild,
}

var gallerySearchCmd = &cobra.Command{
	Use:   "search <image>",
	Short: "Find the gallery entries most similar to a face",
	Args:  cobra.ExactArgs(1),
	RunE:  runGallerySearch,
}

var galleryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count gallery vectors per student",
	Args:  cobra.NoArgs,
	RunE:  runGalleryStats,
}

var galleryIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the gallery search index and save it to GALLERY_INDEX_PATH",
	Args:  cobra.NoArgs,
	RunE:  runGalleryIndex,
}

var galleryExportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Write every gallery vector as <matric>_<n>.npy files",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryExport,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryBuildCmd)
	galleryCmd.AddCommand(gallerySearchCmd)
	galleryCmd.AddCommand(galleryStatsCmd)
	galleryCmd.AddCommand(galleryIndexCmd)
	galleryCmd.AddCommand(galleryExportCmd)

	galleryBuildCmd.Flags().Int("concurrency", constants.WorkerPoolSize, "Number of parallel embedding requests")
	galleryBuildCmd.Flags().Int("duplicate-distance", constants.EnrollDuplicateDistance, "Skip photos whose dHash is within this many bits of another photo of the same student (-1 disables)")
	gallerySearchCmd.Flags().Int("limit", constants.DefaultGallerySearchLimit, "Number of matches to show")
}

// enrollPhoto is one enrollment photo of a student.
type enrollPhoto struct {
	StudentID string
	Path      string
}

var enrollExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// scanEnrollDir lists the photos of every student sub-directory of dir,
// ordered by student and file name.
func scanEnrollDir(dir string) ([]enrollPhoto, error) {
	students, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read enrollment directory: %w", err)
	}

	var photos []enrollPhoto
	for _, st := range students {
		if !st.IsDir() || strings.HasPrefix(st.Name(), ".") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, st.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.IsDir() || !enrollExtensions[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			photos = append(photos, enrollPhoto{
				StudentID: st.Name(),
				Path:      filepath.Join(dir, st.Name(), f.Name()),
			})
		}
	}
	sort.Slice(photos, func(i, j int) bool {
		if photos[i].StudentID != photos[j].StudentID {
			return photos[i].StudentID < photos[j].StudentID
		}
		return photos[i].Path < photos[j].Path
	})
	return photos, nil
}

// dropDuplicatePhotos removes photos that are near copies of an earlier
// photo of the same student. Unreadable photos are kept so that the embedding
// step reports them.
func dropDuplicatePhotos(photos []enrollPhoto, maxDistance int) (kept, dropped []enrollPhoto) {
	if maxDistance < 0 {
		return photos, nil
	}
	seen := make(map[string][]uint64)
	for _, p := range photos {
		img, err := imaging.Open(p.Path)
		if err != nil {
			kept = append(kept, p)
			continue
		}
		hash := gallery.DHash(img)
		duplicate := false
		for _, h := range seen[p.StudentID] {
			if gallery.HammingDistance(hash, h) <= maxDistance {
				duplicate = true
				break
			}
		}
		if duplicate {
			dropped = append(dropped, p)
			continue
		}
		seen[p.StudentID] = append(seen[p.StudentID], hash)
		kept = append(kept, p)
	}
	return kept, dropped
}

// enrollPhotoEmbedding embeds one enrollment photo and stores the first face.
func enrollPhotoEmbedding(ctx context.Context, embedder recognition.Embedder, store database.GalleryWriter, p enrollPhoto) error {
	img, err := imaging.Open(p.Path, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("cannot read image: %w", err)
	}
	embeddings, err := embedder.Embed(ctx, img)
	if err != nil {
		return err
	}
	if len(embeddings) == 0 {
		return recognition.ErrNoEmbedding
	}
	return store.SaveEmbedding(ctx, database.GalleryEntry{
		StudentID: p.StudentID,
		Source:    filepath.Base(p.Path),
		Embedding: embeddings[0],
		CreatedAt: time.Now(),
	})
}

func runGalleryBuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	concurrency := max(1, mustGetInt(cmd, "concurrency"))

	photos, err := scanEnrollDir(args[0])
	if err != nil {
		return err
	}
	if len(photos) == 0 {
		fmt.Println("No enrollment photos found")
		return nil
	}
	scanned := len(photos)
	photos, duplicates := dropDuplicatePhotos(photos, mustGetInt(cmd, "duplicate-distance"))
	for _, p := range duplicates {
		logger.Debug("skipping duplicate enrollment photo", "path", p.Path)
	}

	a, err := openApp(ctx, appOptions{gallery: true})
	if err != nil {
		return err
	}
	defer a.Close()

	startTime := time.Now()
	bar := progressbar.NewOptions(len(photos),
		progressbar.OptionSetDescription("Embedding photos"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var saved, noFace, errorCount int64
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, p := range photos {
		wg.Add(1)
		go func(p enrollPhoto) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			err := enrollPhotoEmbedding(ctx, a.embedder, a.gallery, p)
			switch {
			case err == nil:
				atomic.AddInt64(&saved, 1)
			case errors.Is(err, recognition.ErrNoEmbedding):
				atomic.AddInt64(&noFace, 1)
				a.logger.Debug("no face in enrollment photo", "path", p.Path)
			default:
				atomic.AddInt64(&errorCount, 1)
				a.logger.Warn("failed to enroll photo", "path", p.Path, "error", err)
			}
			_ = bar.Add(1)
		}(p)
	}
	wg.Wait()
	fmt.Println()

	fmt.Println("\nGallery build complete!")
	fmt.Printf("  Photos scanned: %d\n", scanned)
	if len(duplicates) > 0 {
		fmt.Printf("  Duplicates:     %d\n", len(duplicates))
	}
	fmt.Printf("  Vectors saved:  %d\n", saved)
	if noFace > 0 {
		fmt.Printf("  No face found:  %d\n", noFace)
	}
	if errorCount > 0 {
		fmt.Printf("  Errors:         %d\n", errorCount)
	}
	fmt.Printf("  Duration:       %s\n", time.Since(startTime).Round(time.Millisecond))
	return nil
}

func runGallerySearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	limit := mustGetInt(cmd, "limit")
	if limit <= 0 || limit > constants.MaxGallerySearchLimit {
		return fmt.Errorf("--limit must be between 1 and %d", constants.MaxGallerySearchLimit)
	}

	img, err := imaging.Open(args[0], imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("cannot read image: %w", err)
	}

	a, err := openApp(ctx, appOptions{gallery: true})
	if err != nil {
		return err
	}
	defer a.Close()

	finder, direct := a.gallery.(gallery.SimilarFinder)
	var index *gallery.Index
	if !direct {
		index, err = a.loadIndex(ctx)
		if err != nil {
			return err
		}
	}

	embeddings, err := a.embedder.Embed(ctx, img)
	if err != nil {
		return fmt.Errorf("failed to embed face: %w", err)
	}
	if len(embeddings) == 0 {
		fmt.Println("No face found")
		return nil
	}

	var matches []gallery.Match
	if direct {
		matches, err = gallery.FindMatches(ctx, finder, embeddings[0], limit)
	} else {
		matches, err = index.Search(embeddings[0], limit)
	}
	if errors.Is(err, gallery.ErrIndexEmpty) || (err == nil && len(matches) == 0) {
		fmt.Println("Gallery is empty")
		return nil
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STUDENT\tSOURCE\tSIMILARITY")
	fmt.Fprintln(w, "-------\t------\t----------")
	for _, m := range matches {
		fmt.Fprintf(w, "%s\t%s\t%.4f\n", m.Entry.StudentID, m.Entry.Source, m.Similarity)
	}
	w.Flush()
	return nil
}

func runGalleryStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx, appOptions{gallery: true})
	if err != nil {
		return err
	}
	defer a.Close()

	counts, err := a.gallery.CountByStudent(ctx)
	if err != nil {
		return fmt.Errorf("failed to read gallery: %w", err)
	}
	students, err := a.ledger.ListStudents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list students: %w", err)
	}

	ids := make([]string, 0, len(counts))
	total := 0
	for id, n := range counts {
		ids = append(ids, id)
		total += n
	}
	sort.Strings(ids)

	names := make(map[string]string, len(students))
	for _, s := range students {
		names[s.Matric] = s.Name
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STUDENT\tNAME\tVECTORS")
	fmt.Fprintln(w, "-------\t----\t-------")
	for _, id := range ids {
		name, ok := names[id]
		if !ok {
			name = "(not registered)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\n", id, name, counts[id])
	}
	w.Flush()

	fmt.Printf("\nTotal: %d vectors for %d students\n", total, len(ids))

	var missing []string
	for _, s := range students {
		if counts[s.Matric] == 0 {
			missing = append(missing, s.Matric)
		}
	}
	if len(missing) > 0 {
		fmt.Printf("Registered without gallery: %s\n", strings.Join(missing, ", "))
	}
	return nil
}

func runGalleryIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx, appOptions{gallery: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Gallery.IndexPath == "" {
		return errors.New("GALLERY_INDEX_PATH environment variable is required")
	}

	entries, err := a.gallery.Entries(ctx)
	if err != nil {
		return fmt.Errorf("failed to read gallery: %w", err)
	}
	index := gallery.NewIndex()
	skipped := index.Build(entries)
	if err := index.Save(a.cfg.Gallery.IndexPath); err != nil {
		return err
	}
	fmt.Printf("Indexed %d vectors (%d skipped) to %s\n", index.Count(), skipped, a.cfg.Gallery.IndexPath)
	return nil
}

func runGalleryExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx, appOptions{gallery: true})
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.gallery.Entries(ctx)
	if err != nil {
		return fmt.Errorf("failed to read gallery: %w", err)
	}

	out := gallery.NewDirGallery(args[0], 0, a.logger)
	for _, e := range entries {
		if err := out.SaveEmbedding(ctx, e); err != nil {
			return fmt.Errorf("failed to export vector of %s: %w", e.StudentID, err)
		}
	}
	fmt.Printf("Exported %d vectors to %s\n", len(entries), args[0])
	return nil
}
