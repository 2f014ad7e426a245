package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Startup behavior when the corpus cannot be loaded
const (
	PolicyAbort    = "abort"
	PolicyDegraded = "degraded"
)

// Config holds all application configuration
type Config struct {
	// API Settings
	APITitle   string `yaml:"api_title"`
	APIVersion string `yaml:"api_version"`
	APIPrefix  string `yaml:"api_prefix"`
	Port       string `yaml:"port"`
	Debug      bool   `yaml:"debug"`

	// CORS
	CORSOrigins []string `yaml:"cors_origins"`

	// Requests per second per client IP, 0 disables rate limiting
	RateLimit float64 `yaml:"rate_limit"`

	// Corpus
	CorpusURL         string        `yaml:"corpus_url"`
	CorpusCachePath   string        `yaml:"corpus_cache_path"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	LoadFailurePolicy string        `yaml:"load_failure_policy"` // "abort" or "degraded"

	// S3-compatible source (CorpusURL = s3://bucket/key)
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Region    string `yaml:"s3_region"`
	S3UseSSL    bool   `yaml:"s3_use_ssl"`

	// Retrieval
	DefaultK     int           `yaml:"default_k"`
	MaxK         int           `yaml:"max_k"`
	EmbedTimeout time.Duration `yaml:"embed_timeout"`

	// Embeddings: "vertex", "custom" or "hash"
	EmbeddingProvider   string `yaml:"embedding_provider"`
	EmbeddingServiceURL string `yaml:"embedding_service_url"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	EmbeddingCacheSize  int    `yaml:"embedding_cache_size"`

	// Vertex AI (EmbeddingProvider = "vertex")
	GCPProjectID string `yaml:"gcp_project_id"`
	GCPLocation  string `yaml:"gcp_location"`
	VertexModel  string `yaml:"vertex_model"`
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		APITitle:    "Sola Scriptura Retrieval API",
		APIVersion:  "1.0.0",
		APIPrefix:   "/api/v1",
		Port:        "8081",
		CORSOrigins: []string{"http://localhost:5173", "http://localhost:3000"},

		CorpusURL:         "https://romansten.org/wp-content/kjv_with_embeddings.json",
		CorpusCachePath:   "data/kjv_with_embeddings.json",
		FetchTimeout:      5 * time.Minute,
		LoadFailurePolicy: PolicyAbort,
		S3Region:          "us-east-1",
		S3UseSSL:          true,

		DefaultK:     5,
		MaxK:         50,
		EmbedTimeout: 10 * time.Second,

		EmbeddingProvider:   "custom",
		EmbeddingServiceURL: "http://localhost:8001",
		EmbeddingDimensions: 384,
		EmbeddingCacheSize:  1024,

		GCPLocation: "us-central1",
		VertexModel: "gemini-embedding-001",
	}
}

func applyEnv(cfg *Config) error {
	var env envParser

	cfg.APITitle = getEnv("API_TITLE", cfg.APITitle)
	cfg.APIVersion = getEnv("API_VERSION", cfg.APIVersion)
	cfg.APIPrefix = getEnv("API_PREFIX", cfg.APIPrefix)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Debug = env.bool("DEBUG", cfg.Debug)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = parseCORSOrigins(v)
	}
	cfg.RateLimit = env.float("RATE_LIMIT", cfg.RateLimit)

	cfg.CorpusURL = getEnv("CORPUS_URL", cfg.CorpusURL)
	cfg.CorpusCachePath = getEnv("CORPUS_CACHE_PATH", cfg.CorpusCachePath)
	cfg.FetchTimeout = env.duration("CORPUS_FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.LoadFailurePolicy = strings.ToLower(getEnv("LOAD_FAILURE_POLICY", cfg.LoadFailurePolicy))

	cfg.S3Endpoint = getEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3AccessKey = getEnv("S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3Region = getEnv("S3_REGION", cfg.S3Region)
	cfg.S3UseSSL = env.bool("S3_USE_SSL", cfg.S3UseSSL)

	cfg.DefaultK = env.int("DEFAULT_K", cfg.DefaultK)
	cfg.MaxK = env.int("MAX_K", cfg.MaxK)
	cfg.EmbedTimeout = env.duration("EMBED_TIMEOUT", cfg.EmbedTimeout)

	cfg.EmbeddingProvider = getEnv("EMBEDDING_PROVIDER", cfg.EmbeddingProvider)
	cfg.EmbeddingServiceURL = getEnv("EMBEDDING_SERVICE_URL", cfg.EmbeddingServiceURL)
	cfg.EmbeddingDimensions = env.int("EMBEDDING_DIMENSIONS", cfg.EmbeddingDimensions)
	cfg.EmbeddingCacheSize = env.int("EMBEDDING_CACHE_SIZE", cfg.EmbeddingCacheSize)

	cfg.GCPProjectID = getEnv("GCP_PROJECT_ID", cfg.GCPProjectID)
	cfg.GCPLocation = getEnv("GCP_LOCATION", cfg.GCPLocation)
	cfg.VertexModel = getEnv("VERTEX_MODEL", cfg.VertexModel)

	return env.err()
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	switch c.LoadFailurePolicy {
	case PolicyAbort, PolicyDegraded:
	default:
		return fmt.Errorf("LOAD_FAILURE_POLICY must be %q or %q, got %q", PolicyAbort, PolicyDegraded, c.LoadFailurePolicy)
	}
	if c.CorpusCachePath == "" {
		return fmt.Errorf("CORPUS_CACHE_PATH is required")
	}
	if c.DefaultK <= 0 {
		return fmt.Errorf("DEFAULT_K must be positive, got %d", c.DefaultK)
	}
	if c.MaxK < c.DefaultK {
		return fmt.Errorf("MAX_K (%d) must be at least DEFAULT_K (%d)", c.MaxK, c.DefaultK)
	}
	if c.FetchTimeout < 0 || c.EmbedTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// Degraded reports whether startup should continue with an empty index when
// the corpus cannot be loaded
func (c *Config) Degraded() bool {
	return c.LoadFailurePolicy == PolicyDegraded
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envParser reads typed environment variables, remembering every value that
// fails to parse so Load can reject them together.
type envParser struct {
	errs []error
}

func (p *envParser) fail(key, value, want string) {
	p.errs = append(p.errs, fmt.Errorf("%s: invalid %s %q", key, want, value))
}

func (p *envParser) err() error {
	return errors.Join(p.errs...)
}

func (p *envParser) int(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, "integer")
		return defaultValue
	}
	return i
}

func (p *envParser) float(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.fail(key, value, "number")
		return defaultValue
	}
	return f
}

func (p *envParser) bool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		p.fail(key, value, "boolean")
		return defaultValue
	}
	return b
}

// duration accepts Go durations ("90s") or plain seconds ("90")
func (p *envParser) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	p.fail(key, value, "duration")
	return defaultValue
}

func parseCORSOrigins(value string) []string {
	var origins []string
	if err := json.Unmarshal([]byte(value), &origins); err == nil {
		return origins
	}
	parts := strings.Split(value, ",")
	origins = make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
