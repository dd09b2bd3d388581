package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/matcher"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Dataset     DatasetConfig     `yaml:"dataset"`
	Gallery     GalleryConfig     `yaml:"gallery"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Web         WebConfig         `yaml:"web"`
}

type DatasetConfig struct {
	Path            string   `yaml:"path"`             // root of the <identity>/<images> tree
	Extensions      []string `yaml:"extensions"`       // image extensions scanned by sync
	SyncConcurrency int      `yaml:"sync_concurrency"` // images per identity extracted in parallel
}

type GalleryConfig struct {
	Dir            string `yaml:"dir"`             // directory holding <section>.gallery files
	DefaultSection string `yaml:"default_section"` // section used when a request names none
}

type EmbeddingConfig struct {
	URL string `yaml:"url"` // defaults to http://localhost:8000
	Dim int    `yaml:"dim"` // defaults to 512
}

type RecognitionConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
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

// envFloat reads an environment variable as a float. Invalid values are kept as NaN
// so that Validate reports them instead of silently using the default.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma separated list. Empty items are dropped.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Defaults returns the built-in configuration without environment overrides.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load returns the built-in defaults overridden by environment variables.
func Load() *Config {
	cfg := Defaults()

	cfg.Dataset.Path = envString("DATASET_PATH", cfg.Dataset.Path)
	cfg.Dataset.Extensions = envList("DATASET_EXTENSIONS", cfg.Dataset.Extensions)
	cfg.Dataset.SyncConcurrency = envInt("SYNC_CONCURRENCY", cfg.Dataset.SyncConcurrency)

	cfg.Gallery.Dir = envString("GALLERY_DIR", cfg.Gallery.Dir)
	cfg.Gallery.DefaultSection = envString("DEFAULT_SECTION", cfg.Gallery.DefaultSection)

	cfg.Embedding.URL = envString("EMBEDDING_URL", cfg.Embedding.URL)
	cfg.Embedding.Dim = envInt("EMBEDDING_DIM", cfg.Embedding.Dim)

	cfg.Recognition.ConfidenceThreshold = envFloat("CONFIDENCE_THRESHOLD", cfg.Recognition.ConfidenceThreshold)

	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	cfg.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS", cfg.Web.AllowedOrigins)

	return cfg
}

// Validate checks values that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	var errs []error
	if err := matcher.ValidateThreshold(c.Recognition.ConfidenceThreshold); err != nil {
		errs = append(errs, fmt.Errorf("CONFIDENCE_THRESHOLD: %w", err))
	}
	if c.Embedding.Dim <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.Embedding.Dim))
	}
	if !gallery.ValidSectionName(c.Gallery.DefaultSection) {
		errs = append(errs, fmt.Errorf("DEFAULT_SECTION %q is not a valid section name", c.Gallery.DefaultSection))
	}
	if c.Dataset.Path == "" {
		errs = append(errs, errors.New("DATASET_PATH must not be empty"))
	}
	if c.Gallery.Dir == "" {
		errs = append(errs, errors.New("GALLERY_DIR must not be empty"))
	}
	if len(c.Dataset.Extensions) == 0 {
		errs = append(errs, errors.New("DATASET_EXTENSIONS must list at least one extension"))
	}
	return errors.Join(errs...)
}

// Addr returns the web server listen address.
func (c *WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
