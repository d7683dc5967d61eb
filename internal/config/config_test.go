package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_DRIVER", "DATABASE_URL", "DATABASE_FOREIGN_KEYS",
		"RECOGNITION_TOP_K", "RECOGNITION_SIM_THRESHOLD", "RECOGNITION_VERIFY_RATIO",
		"GALLERY_DIR", "GALLERY_CACHE_TTL", "DETECTOR_BACKEND", "CLASSIFIER_BACKEND",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected default driver sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Database.URL != "attendance.db" {
		t.Errorf("expected default database attendance.db, got %q", cfg.Database.URL)
	}
	if !cfg.Database.ForeignKeys {
		t.Error("expected foreign keys to be enabled by default")
	}
	if cfg.Recognition.TopK != 3 {
		t.Errorf("expected default top-k 3, got %d", cfg.Recognition.TopK)
	}
	if cfg.Recognition.SimThreshold != 0.6 {
		t.Errorf("expected default similarity threshold 0.6, got %f", cfg.Recognition.SimThreshold)
	}
	if cfg.Recognition.VerifyRatio != 0.6 {
		t.Errorf("expected default verify ratio 0.6, got %f", cfg.Recognition.VerifyRatio)
	}
	if cfg.Gallery.Dir != "embeddings" {
		t.Errorf("expected default gallery dir 'embeddings', got %q", cfg.Gallery.Dir)
	}
	if cfg.Gallery.CacheTTL != 5*time.Minute {
		t.Errorf("expected default cache TTL 5m, got %v", cfg.Gallery.CacheTTL)
	}
	if cfg.Detector.Backend != "embedding" {
		t.Errorf("expected default detector 'embedding', got %q", cfg.Detector.Backend)
	}
	if cfg.Classifier.Backend != "linear" {
		t.Errorf("expected default classifier 'linear', got %q", cfg.Classifier.Backend)
	}
}

func TestLoad_CustomRecognition(t *testing.T) {
	t.Setenv("RECOGNITION_TOP_K", "5")
	t.Setenv("RECOGNITION_SIM_THRESHOLD", "0.4")
	t.Setenv("RECOGNITION_VERIFY_RATIO", "0.5")

	cfg := Load()

	if cfg.Recognition.TopK != 5 {
		t.Errorf("expected top-k 5, got %d", cfg.Recognition.TopK)
	}
	if cfg.Recognition.SimThreshold != 0.4 {
		t.Errorf("expected similarity threshold 0.4, got %f", cfg.Recognition.SimThreshold)
	}
	if cfg.Recognition.VerifyRatio != 0.5 {
		t.Errorf("expected verify ratio 0.5, got %f", cfg.Recognition.VerifyRatio)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("RECOGNITION_TOP_K", "invalid")
	t.Setenv("RECOGNITION_SIM_THRESHOLD", "-1")
	t.Setenv("DATABASE_FOREIGN_KEYS", "maybe")
	t.Setenv("GALLERY_CACHE_TTL", "soon")

	cfg := Load()

	if cfg.Recognition.TopK != 3 {
		t.Errorf("expected fallback top-k 3, got %d", cfg.Recognition.TopK)
	}
	if cfg.Recognition.SimThreshold != 0.6 {
		t.Errorf("expected fallback similarity threshold 0.6, got %f", cfg.Recognition.SimThreshold)
	}
	if !cfg.Database.ForeignKeys {
		t.Error("expected fallback foreign keys true")
	}
	if cfg.Gallery.CacheTTL != 5*time.Minute {
		t.Errorf("expected fallback cache TTL 5m, got %v", cfg.Gallery.CacheTTL)
	}
}

func TestLoad_DisableForeignKeys(t *testing.T) {
	t.Setenv("DATABASE_FOREIGN_KEYS", "false")

	cfg := Load()

	if cfg.Database.ForeignKeys {
		t.Error("expected foreign keys disabled")
	}
}

func TestLoad_DriverIsLowercased(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "Postgres")

	cfg := Load()

	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected driver 'postgres', got %q", cfg.Database.Driver)
	}
}

func TestLoad_Web(t *testing.T) {
	t.Setenv("WEB_PORT", "9090")
	t.Setenv("WEB_HOST", "127.0.0.1")
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://school.example, ,https://admin.example")

	cfg := Load()

	if cfg.Web.Port != 9090 || cfg.Web.Host != "127.0.0.1" {
		t.Errorf("expected 127.0.0.1:9090, got %s:%d", cfg.Web.Host, cfg.Web.Port)
	}
	want := []string{"https://school.example", "https://admin.example"}
	if len(cfg.Web.AllowedOrigins) != len(want) {
		t.Fatalf("expected origins %v, got %v", want, cfg.Web.AllowedOrigins)
	}
	for i := range want {
		if cfg.Web.AllowedOrigins[i] != want[i] {
			t.Errorf("origin %d = %q, want %q", i, cfg.Web.AllowedOrigins[i], want[i])
		}
	}
}
