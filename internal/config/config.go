package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Providers  []ProviderConfig `json:"providers" yaml:"providers"`
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	Intent     IntentConfig     `json:"intent" yaml:"intent"`
	Retrieval  RetrievalConfig  `json:"retrieval" yaml:"retrieval"`
	Database   DatabaseConfig   `json:"database" yaml:"database"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	Realtime   RealtimeConfig   `json:"realtime" yaml:"realtime"`
	Workflow   WorkflowConfig   `json:"workflow" yaml:"workflow"`
}

type ServerConfig struct {
	Port     int    `json:"port" yaml:"port"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// LoggingConfig controls the zap encoder and optional file rotation.
type LoggingConfig struct {
	Format     string `json:"format" yaml:"format"` // json|console
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

type ProviderConfig struct {
	ID                string   `json:"id" yaml:"id"`
	Type              string   `json:"type" yaml:"type"` // groq|perplexity|openai|anthropic
	Name              string   `json:"name" yaml:"name"`
	Endpoint          string   `json:"endpoint" yaml:"endpoint"`
	APIKey            string   `json:"api_key" yaml:"api_key"`
	Models            []string `json:"models,omitempty" yaml:"models,omitempty"`
	TimeoutSeconds    int      `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	RequestsPerMinute int      `json:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty"`
}

// GenerationConfig configures the provider chain and default sampling.
type GenerationConfig struct {
	Chain            []string      `json:"chain" yaml:"chain"`
	Temperature      float64       `json:"temperature" yaml:"temperature"`
	MaxTokens        int           `json:"max_tokens" yaml:"max_tokens"`
	SummaryMaxTokens int           `json:"summary_max_tokens" yaml:"summary_max_tokens"`
	TimeoutSeconds   int           `json:"timeout_seconds" yaml:"timeout_seconds"`
	Breaker          BreakerConfig `json:"breaker" yaml:"breaker"`
}

type BreakerConfig struct {
	MaxFailures uint32 `json:"max_failures" yaml:"max_failures"`
	OpenSeconds int    `json:"open_seconds" yaml:"open_seconds"`
}

type IntentConfig struct {
	Remote              bool    `json:"remote" yaml:"remote"`
	RemoteComplexity    bool    `json:"remote_complexity" yaml:"remote_complexity"`
	ComplexityThreshold float64 `json:"complexity_threshold" yaml:"complexity_threshold"`
	AcceptConfidence    float64 `json:"accept_confidence" yaml:"accept_confidence"`
	MinSubtasks         int     `json:"min_subtasks" yaml:"min_subtasks"`
	MaxSubtasks         int     `json:"max_subtasks" yaml:"max_subtasks"`
	MaxWords            int     `json:"max_words" yaml:"max_words"`
}

type RetrievalConfig struct {
	Backend       string `json:"backend" yaml:"backend"` // qdrant|postgres
	DefaultSource string `json:"default_source" yaml:"default_source"`
	TopK          int    `json:"top_k" yaml:"top_k"`
	AugmentLimit  int    `json:"augment_limit" yaml:"augment_limit"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant" yaml:"qdrant"`
}

type PostgresConfig struct {
	DSN        string `json:"dsn" yaml:"dsn"`
	Migrations string `json:"migrations" yaml:"migrations"`
}

type RedisConfig struct {
	URL string `json:"url" yaml:"url"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider" yaml:"provider"`
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Model     string `json:"model" yaml:"model"`
	APIKey    string `json:"api_key" yaml:"api_key"`
	Dimension int    `json:"dimension" yaml:"dimension"`
}

type QdrantConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// RealtimeConfig points the weather overlay at a location.
type RealtimeConfig struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	Endpoint        string  `json:"endpoint" yaml:"endpoint"`
	ArchiveEndpoint string  `json:"archive_endpoint" yaml:"archive_endpoint"`
	Latitude        float64 `json:"latitude" yaml:"latitude"`
	Longitude       float64 `json:"longitude" yaml:"longitude"`
	Location        string  `json:"location" yaml:"location"`
	CacheTTLSeconds int     `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
}

type WorkflowConfig struct {
	StepDelayMs            int    `json:"step_delay_ms" yaml:"step_delay_ms"`
	CleanupGraceSeconds    int    `json:"cleanup_grace_seconds" yaml:"cleanup_grace_seconds"`
	SummaryRetries         int    `json:"summary_retries" yaml:"summary_retries"`
	RetryBackoffMs         int    `json:"retry_backoff_ms" yaml:"retry_backoff_ms"`
	JanitorIntervalSeconds int    `json:"janitor_interval_seconds" yaml:"janitor_interval_seconds"`
	RetentionMinutes       int    `json:"retention_minutes" yaml:"retention_minutes"`
	EventsStream           string `json:"events_stream" yaml:"events_stream"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON or YAML config file, substitutes environment variable
// references and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	resolved := expandEnv(string(data))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(resolved), &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied and no
// providers, suitable for local runs and tests.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func expandEnv(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = 28
	}

	g := &c.Generation
	if g.Temperature == 0 {
		g.Temperature = 0.3
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = 500
	}
	if g.SummaryMaxTokens == 0 {
		g.SummaryMaxTokens = 800
	}
	if g.TimeoutSeconds == 0 {
		g.TimeoutSeconds = 60
	}
	if g.Breaker.MaxFailures == 0 {
		g.Breaker.MaxFailures = 3
	}
	if g.Breaker.OpenSeconds == 0 {
		g.Breaker.OpenSeconds = 30
	}
	if len(g.Chain) == 0 {
		for _, p := range c.Providers {
			g.Chain = append(g.Chain, p.ID)
		}
	}

	in := &c.Intent
	if in.ComplexityThreshold == 0 {
		in.ComplexityThreshold = 0.7
	}
	if in.AcceptConfidence == 0 {
		in.AcceptConfidence = 0.7
	}
	if in.MinSubtasks == 0 {
		in.MinSubtasks = 3
	}
	if in.MaxSubtasks == 0 {
		in.MaxSubtasks = 5
	}
	if in.MaxWords == 0 {
		in.MaxWords = 25
	}

	r := &c.Retrieval
	if r.Backend == "" {
		r.Backend = "qdrant"
	}
	if r.DefaultSource == "" {
		r.DefaultSource = "market_prediction_data"
	}
	if r.TopK == 0 {
		r.TopK = 5
	}
	if r.AugmentLimit == 0 {
		r.AugmentLimit = 2
	}

	if c.Database.Qdrant.Host == "" {
		c.Database.Qdrant.Host = "localhost"
	}
	if c.Database.Qdrant.Port == 0 {
		c.Database.Qdrant.Port = 6334
	}
	if c.Database.Postgres.Migrations == "" {
		c.Database.Postgres.Migrations = "migrations"
	}

	rt := &c.Realtime
	if rt.Endpoint == "" {
		rt.Endpoint = "https://api.open-meteo.com/v1"
	}
	if rt.ArchiveEndpoint == "" {
		rt.ArchiveEndpoint = "https://archive-api.open-meteo.com/v1"
	}
	if rt.Latitude == 0 && rt.Longitude == 0 {
		rt.Latitude, rt.Longitude = 21.33, 83.62
	}
	if rt.Location == "" {
		rt.Location = "Bargarh, Odisha"
	}
	if rt.CacheTTLSeconds == 0 {
		rt.CacheTTLSeconds = 600
	}

	w := &c.Workflow
	if w.StepDelayMs == 0 {
		w.StepDelayMs = 500
	}
	if w.CleanupGraceSeconds == 0 {
		w.CleanupGraceSeconds = 5
	}
	if w.SummaryRetries == 0 {
		w.SummaryRetries = 2
	}
	if w.RetryBackoffMs == 0 {
		w.RetryBackoffMs = 500
	}
	if w.JanitorIntervalSeconds == 0 {
		w.JanitorIntervalSeconds = 60
	}
	if w.RetentionMinutes == 0 {
		w.RetentionMinutes = 30
	}
	if w.EventsStream == "" {
		w.EventsStream = "agri:workflow:"
	}
}
