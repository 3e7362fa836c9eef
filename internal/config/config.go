// Package config loads runtime configuration from defaults, an optional YAML
// file, and VOXRECON_* environment variables, in that order.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/voxrecon/internal/cluster"
	"github.com/raphaelgruber/voxrecon/internal/embedcache"
	"github.com/raphaelgruber/voxrecon/internal/scheduler"
)

// ProviderType names a backend for generation or text embeddings.
type ProviderType string

const (
	ProviderTemplate  ProviderType = "template"
	ProviderOllama    ProviderType = "ollama"
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderVoyage    ProviderType = "voyage"
	// ProviderNone disables semantic memo matching.
	ProviderNone ProviderType = "none"
)

// Config holds all configuration values.
type Config struct {
	// Embedding cache
	CacheMaxBytes int64 `yaml:"cache_max_bytes"`

	// Clustering
	Linkage          string  `yaml:"linkage"`
	ClusterThreshold float64 `yaml:"cluster_threshold"`
	MinClusterSize   int     `yaml:"min_cluster_size"`
	RosterThreshold  float64 `yaml:"roster_threshold"`
	// OnlineThreshold is the cosine similarity a window embedding needs to join
	// an existing provisional cluster.
	OnlineThreshold float64 `yaml:"online_threshold"`

	Scheduler scheduler.Config `yaml:"scheduler"`

	// Backend is "on_device" or "cloud".
	Backend string `yaml:"backend"`

	// Inference sidecar
	SidecarURL   string `yaml:"sidecar_url"`
	SidecarToken string `yaml:"sidecar_token"`

	// Narrative synthesis
	LLMProvider     ProviderType `yaml:"llm_provider"`
	LLMModel        string       `yaml:"llm_model"`
	OllamaHost      string       `yaml:"ollama_host"`
	OpenAIAPIKey    string       `yaml:"openai_api_key"`
	AnthropicAPIKey string       `yaml:"anthropic_api_key"`

	// Text embeddings for memo matching
	EmbedProvider  ProviderType `yaml:"embed_provider"`
	EmbedModel     string       `yaml:"embed_model"`
	EmbedDimension int          `yaml:"embed_dimension"`
	VoyageAPIKey   string       `yaml:"voyage_api_key"`

	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Sessions
	MaxSessions int           `yaml:"max_sessions"`
	SessionTTL  time.Duration `yaml:"session_ttl"`

	// Server
	Port int `yaml:"port"`

	// Logging
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	opts := cluster.DefaultOptions()
	return Config{
		CacheMaxBytes:      embedcache.DefaultMaxBytes,
		Linkage:            string(opts.Linkage),
		ClusterThreshold:   opts.Threshold,
		MinClusterSize:     opts.MinClusterSize,
		RosterThreshold:    0.6,
		OnlineThreshold:    0.75,
		Scheduler:          scheduler.DefaultConfig(),
		Backend:            "cloud",
		SidecarURL:         "http://localhost:8765",
		LLMProvider:        ProviderTemplate,
		LLMModel:           "llama3.2",
		OllamaHost:         "http://localhost:11434",
		EmbedProvider:      ProviderNone,
		EmbedModel:         "all-minilm:l6-v2",
		EmbedDimension:     384,
		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "voxrecon",
		SurrealDBDatabase:  "sessions",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",
		MaxSessions:        64,
		SessionTTL:         6 * time.Hour,
		Port:               8080,
		LogFile:            "/tmp/voxrecon.log",
		LogLevel:           "INFO",
	}
}

// Load builds the configuration. VOXRECON_CONFIG may name a YAML file whose
// values replace the defaults; environment variables win over both.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("VOXRECON_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []string
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, key)
				return
			}
			*dst = n
		}
	}
	num64 := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, key)
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, key)
				return
			}
			*dst = f
		}
	}
	provider := func(key string, dst *ProviderType) {
		if v := os.Getenv(key); v != "" {
			*dst = ProviderType(strings.ToLower(v))
		}
	}

	num64("VOXRECON_CACHE_MAX_BYTES", &c.CacheMaxBytes)
	str("VOXRECON_LINKAGE", &c.Linkage)
	float("VOXRECON_CLUSTER_THRESHOLD", &c.ClusterThreshold)
	num("VOXRECON_MIN_CLUSTER_SIZE", &c.MinClusterSize)
	float("VOXRECON_ROSTER_THRESHOLD", &c.RosterThreshold)
	float("VOXRECON_ONLINE_THRESHOLD", &c.OnlineThreshold)
	num64("VOXRECON_INTERVAL_MS", &c.Scheduler.IntervalMs)
	num64("VOXRECON_OVERLAP_MS", &c.Scheduler.OverlapMs)
	num("VOXRECON_CUMULATIVE_THRESHOLD", &c.Scheduler.CumulativeThreshold)
	num("VOXRECON_ANALYSIS_EVERY", &c.Scheduler.AnalysisEvery)
	str("VOXRECON_BACKEND", &c.Backend)
	str("VOXRECON_SIDECAR_URL", &c.SidecarURL)
	str("VOXRECON_SIDECAR_TOKEN", &c.SidecarToken)
	provider("VOXRECON_LLM_PROVIDER", &c.LLMProvider)
	str("VOXRECON_LLM_MODEL", &c.LLMModel)
	str("OLLAMA_HOST", &c.OllamaHost)
	str("OPENAI_API_KEY", &c.OpenAIAPIKey)
	str("ANTHROPIC_API_KEY", &c.AnthropicAPIKey)
	provider("VOXRECON_EMBED_PROVIDER", &c.EmbedProvider)
	str("VOXRECON_EMBED_MODEL", &c.EmbedModel)
	num("VOXRECON_EMBED_DIMENSION", &c.EmbedDimension)
	str("VOYAGE_API_KEY", &c.VoyageAPIKey)
	str("SURREALDB_URL", &c.SurrealDBURL)
	str("SURREALDB_NAMESPACE", &c.SurrealDBNamespace)
	str("SURREALDB_DATABASE", &c.SurrealDBDatabase)
	str("SURREALDB_USER", &c.SurrealDBUser)
	str("SURREALDB_PASS", &c.SurrealDBPass)
	str("SURREALDB_AUTH_LEVEL", &c.SurrealDBAuthLevel)
	num("VOXRECON_MAX_SESSIONS", &c.MaxSessions)
	num("VOXRECON_PORT", &c.Port)
	str("VOXRECON_LOG_FILE", &c.LogFile)
	str("VOXRECON_LOG_LEVEL", &c.LogLevel)
	if v := os.Getenv("VOXRECON_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, "VOXRECON_SESSION_TTL")
		} else {
			c.SessionTTL = d
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(errs, ", "))
	}
	return nil
}

// Validate rejects unknown enum values and non-positive limits.
func (c Config) Validate() error {
	if _, err := cluster.ParseLinkage(c.Linkage); err != nil {
		return err
	}
	if c.Backend != "on_device" && c.Backend != "cloud" {
		return fmt.Errorf("unknown backend %q (want on_device or cloud)", c.Backend)
	}
	switch c.LLMProvider {
	case ProviderTemplate, ProviderOllama, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLMProvider)
	}
	switch c.EmbedProvider {
	case ProviderNone, ProviderOllama, ProviderOpenAI, ProviderVoyage:
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.EmbedProvider)
	}
	if c.CacheMaxBytes <= 0 {
		return fmt.Errorf("cache_max_bytes must be positive")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be positive")
	}
	return nil
}

// ClusterOptions converts the clustering fields.
func (c Config) ClusterOptions() cluster.Options {
	l, err := cluster.ParseLinkage(c.Linkage)
	if err != nil {
		l = cluster.LinkageAverage
	}
	return cluster.Options{Linkage: l, Threshold: c.ClusterThreshold, MinClusterSize: c.MinClusterSize}
}

// Level returns the parsed log level.
func (c Config) Level() slog.Level {
	return parseLogLevel(c.LogLevel)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
