package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Database    DatabaseConfig
	Embedding   EmbeddingConfig
	Detector    DetectorConfig
	Classifier  ClassifierConfig
	Gallery     GalleryConfig
	Recognition RecognitionConfig
	Camera      CameraConfig
	Web         WebConfig
	Log         LogConfig
	RosterSeed  string // optional YAML roster inserted when the students table is empty
}

type DatabaseConfig struct {
	Driver       string // sqlite, postgres or mariadb
	URL          string // file path for sqlite, DSN/URL for server backends
	ForeignKeys  bool   // enforce attendance.matric -> students.matric (sqlite pragma)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type EmbeddingConfig struct {
	URL   string // defaults to http://localhost:8000
	Model string // defaults to facenet, reference only
}

type DetectorConfig struct {
	Backend     string  // embedding (server-side detection) or pigo
	CascadePath string  // pigo facefinder cascade
	MinFace     int     // minimum face size in pixels for pigo
	MinQuality  float64 // minimum pigo detection score
}

type ClassifierConfig struct {
	Backend    string // linear or tflite
	ModelPath  string
	LabelsPath string
	Threads    int
}

type GalleryConfig struct {
	Backend   string // dir or postgres
	Dir       string // directory of <matric>_<n>.npy files
	CacheTTL  time.Duration
	IndexPath string // optional path to persist the HNSW search index
}

type RecognitionConfig struct {
	TopK         int
	SimThreshold float64
	VerifyRatio  float64
}

type CameraConfig struct {
	Device string // device index ("0") or stream URL
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // extra CORS origins; localhost is always allowed
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:       strings.ToLower(envString("DATABASE_DRIVER", "sqlite")),
			URL:          envString("DATABASE_URL", "attendance.db"),
			ForeignKeys:  envBool("DATABASE_FOREIGN_KEYS", true),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedding: EmbeddingConfig{
			URL:   os.Getenv("EMBEDDING_URL"),
			Model: os.Getenv("EMBEDDING_MODEL"),
		},
		Detector: DetectorConfig{
			Backend:     strings.ToLower(envString("DETECTOR_BACKEND", "embedding")),
			CascadePath: envString("PIGO_CASCADE_PATH", "models/facefinder"),
			MinFace:     envInt("DETECTOR_MIN_FACE", 40),
			MinQuality:  envFloat("DETECTOR_MIN_QUALITY", 5.0),
		},
		Classifier: ClassifierConfig{
			Backend:    strings.ToLower(envString("CLASSIFIER_BACKEND", "linear")),
			ModelPath:  envString("CLASSIFIER_MODEL_PATH", "models/classifier.yaml"),
			LabelsPath: envString("CLASSIFIER_LABELS_PATH", "models/labels.txt"),
			Threads:    envInt("CLASSIFIER_THREADS", 1),
		},
		Gallery: GalleryConfig{
			Backend:   strings.ToLower(envString("GALLERY_BACKEND", "dir")),
			Dir:       envString("GALLERY_DIR", "embeddings"),
			CacheTTL:  envDuration("GALLERY_CACHE_TTL", 5*time.Minute),
			IndexPath: os.Getenv("GALLERY_INDEX_PATH"),
		},
		Recognition: RecognitionConfig{
			TopK:         envInt("RECOGNITION_TOP_K", 3),
			SimThreshold: envFloat("RECOGNITION_SIM_THRESHOLD", 0.6),
			VerifyRatio:  envFloat("RECOGNITION_VERIFY_RATIO", 0.6),
		},
		Camera: CameraConfig{
			Device: envString("CAMERA_DEVICE", "0"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
			Format: strings.ToLower(envString("LOG_FORMAT", "text")),
		},
		RosterSeed: os.Getenv("ROSTER_SEED_PATH"),
	}
}
