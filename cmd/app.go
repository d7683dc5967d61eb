package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/classifier"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/database/backend"
	"github.com/kozaktomas/attendance/internal/embedding"
	"github.com/kozaktomas/attendance/internal/facedetect"
	"github.com/kozaktomas/attendance/internal/gallery"
	"github.com/kozaktomas/attendance/internal/metrics"
	"github.com/kozaktomas/attendance/internal/recognition"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app holds the collaborators a command needs. Recognition parts are nil for
// ledger-only commands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	ledger     database.Ledger
	gallery    database.GalleryWriter
	client     *embedding.Client
	embedder   *embedding.Embedder
	recognizer *recognition.Recognizer
	service    *attendance.Service
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	closers    []func()
}

type appOptions struct {
	// gallery opens the gallery store and the embedding client.
	gallery bool
	// recognition loads the classifier and detectors on top of the gallery.
	recognition bool
	// metrics registers Prometheus collectors on a fresh registry.
	metrics bool
}

// openLedgerApp opens only the ledger, for roster and attendance commands.
func openLedgerApp(ctx context.Context) (*app, error) {
	return openApp(ctx, appOptions{})
}

func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg := config.Load()
	a := &app{cfg: cfg, logger: logger}

	ledger, err := backend.OpenLedger(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s ledger: %w", cfg.Database.Driver, err)
	}
	a.ledger = ledger
	a.closers = append(a.closers, func() {
		if err := ledger.Close(); err != nil {
			logger.Warn("failed to close ledger", "error", err)
		}
	})

	if opts.metrics {
		a.registry = prometheus.NewRegistry()
		m, err := metrics.New(a.registry)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.metrics = m
	}

	if opts.gallery || opts.recognition {
		if err := a.loadGallery(); err != nil {
			a.Close()
			return nil, err
		}
	}
	if opts.recognition {
		if err := a.loadRecognition(); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.service = attendance.NewService(a.recognizerOrNil(), ledger, logger)
	if a.metrics != nil {
		a.service.SetMarkObserver(a.metrics)
	}

	if n, err := a.service.SeedRoster(ctx, cfg.RosterSeed); err != nil {
		logger.Warn("failed to seed roster", "path", cfg.RosterSeed, "error", err)
	} else if n > 0 {
		logger.Info("seeded roster", "path", cfg.RosterSeed, "students", n)
	}
	return a, nil
}

// recognizerOrNil avoids storing a typed nil in the service's interface.
func (a *app) recognizerOrNil() attendance.Recognizer {
	if a.recognizer == nil {
		return nil
	}
	return a.recognizer
}

func (a *app) loadGallery() error {
	gal, err := backend.OpenGallery(a.cfg, a.ledger, a.logger)
	if err != nil {
		return err
	}
	a.gallery = gal
	a.client = embedding.NewClient(a.cfg.Embedding.URL, a.cfg.Embedding.Model)
	a.embedder = embedding.NewEmbedder(a.client)
	return nil
}

func (a *app) loadRecognition() error {
	cfg := a.cfg

	detector, err := newDetector(cfg.Detector, a.client)
	if err != nil {
		return err
	}

	model, labels, err := classifier.Load(cfg.Classifier)
	if err != nil {
		return fmt.Errorf("failed to load classifier: %w", err)
	}
	if c, ok := model.(interface{ Close() }); ok {
		a.closers = append(a.closers, c.Close)
	}

	rc := recognition.Config{
		Detector:   detector,
		Embedder:   a.embedder,
		Classifier: model,
		Labels:     labels,
		Gallery:    a.gallery,
		Recorder:   a.ledger,
		Options: recognition.Options{
			TopK:         cfg.Recognition.TopK,
			SimThreshold: cfg.Recognition.SimThreshold,
			VerifyRatio:  cfg.Recognition.VerifyRatio,
		},
		Logger: a.logger,
	}
	if a.metrics != nil {
		rc.Observer = a.metrics
	}
	a.recognizer, err = recognition.New(rc)
	if err != nil {
		return err
	}

	a.logger.Debug("recognition ready",
		"classes", model.NumClasses(),
		"dim", model.Dim(),
		"detector", cfg.Detector.Backend,
		"gallery", cfg.Gallery.Backend,
	)
	return nil
}

func newDetector(cfg config.DetectorConfig, client *embedding.Client) (recognition.Detector, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "embedding":
		return embedding.NewDetector(client, constants.DefaultDetectorMinScore), nil
	case "pigo":
		d, err := facedetect.NewDetector(cfg.CascadePath, facedetect.Options{
			MinSize:    cfg.MinFace,
			MinQuality: float32(cfg.MinQuality),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load pigo cascade: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.Backend)
	}
}

// loadIndex returns the gallery search index, read from GALLERY_INDEX_PATH
// when present and rebuilt from the gallery otherwise.
func (a *app) loadIndex(ctx context.Context) (*gallery.Index, error) {
	index := gallery.NewIndex()
	path := a.cfg.Gallery.IndexPath
	if path != "" {
		err := index.Load(path)
		if err == nil {
			a.logger.Info("loaded gallery index", "path", path, "entries", index.Count())
			return index, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			a.logger.Warn("failed to load gallery index, rebuilding", "path", path, "error", err)
		}
	}

	entries, err := a.gallery.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read gallery: %w", err)
	}
	skipped := index.Build(entries)
	a.logger.Info("built gallery index", "entries", index.Count(), "skipped", skipped)
	return index, nil
}

// saveIndex persists index when GALLERY_INDEX_PATH is set.
func (a *app) saveIndex(index *gallery.Index) {
	path := a.cfg.Gallery.IndexPath
	if path == "" {
		return
	}
	if err := index.Save(path); err != nil {
		a.logger.Warn("failed to save gallery index", "path", path, "error", err)
		return
	}
	a.logger.Info("saved gallery index", "path", path, "entries", index.Count())
}

// applyRecognitionFlags overrides thresholds with flags the user set.
func (a *app) applyRecognitionFlags(cmd *cobra.Command) {
	if a.recognizer == nil {
		return
	}
	opts := a.recognizer.Options()
	changed := false
	if cmd.Flags().Changed("top-k") {
		opts.TopK = mustGetInt(cmd, "top-k")
		changed = true
	}
	if cmd.Flags().Changed("sim-threshold") {
		opts.SimThreshold = mustGetFloat64(cmd, "sim-threshold")
		changed = true
	}
	if cmd.Flags().Changed("verify-ratio") {
		opts.VerifyRatio = mustGetFloat64(cmd, "verify-ratio")
		changed = true
	}
	if changed {
		a.recognizer.SetOptions(opts)
	}
}

func addRecognitionFlags(cmd *cobra.Command) {
	cmd.Flags().Int("top-k", recognition.DefaultTopK, "Number of classifier guesses to verify (overrides RECOGNITION_TOP_K)")
	cmd.Flags().Float64("sim-threshold", recognition.DefaultSimThreshold, "Cosine similarity a gallery vector must reach (overrides RECOGNITION_SIM_THRESHOLD)")
	cmd.Flags().Float64("verify-ratio", recognition.DefaultVerifyRatio, "Fraction of matching gallery vectors needed to accept (overrides RECOGNITION_VERIFY_RATIO)")
}

// Close releases everything opened by openApp, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
