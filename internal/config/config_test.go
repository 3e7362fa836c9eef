package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/voxrecon/internal/cluster"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VOXRECON_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(50*1024*1024), cfg.CacheMaxBytes)
	assert.Equal(t, int64(180_000), cfg.Scheduler.IntervalMs)
	assert.Equal(t, int64(30_000), cfg.Scheduler.OverlapMs)
	assert.Equal(t, "cloud", cfg.Backend)
	assert.Equal(t, ProviderTemplate, cfg.LLMProvider)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.Equal(t, cluster.LinkageAverage, cfg.ClusterOptions().Linkage)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxrecon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
linkage: complete
cluster_threshold: 0.25
backend: on_device
session_ttl: 30m
scheduler:
  interval_ms: 60000
  analysis_every: 3
`), 0o644))

	t.Setenv("VOXRECON_CONFIG", path)
	t.Setenv("VOXRECON_CLUSTER_THRESHOLD", "0.4")
	t.Setenv("VOXRECON_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "complete", cfg.Linkage)
	assert.InDelta(t, 0.4, cfg.ClusterThreshold, 1e-9, "env overrides file")
	assert.Equal(t, "on_device", cfg.Backend)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, int64(60_000), cfg.Scheduler.IntervalMs)
	assert.Equal(t, int64(30_000), cfg.Scheduler.OverlapMs, "unset nested fields keep defaults")
	assert.Equal(t, 3, cfg.Scheduler.AnalysisEvery)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown linkage", "VOXRECON_LINKAGE", "ward"},
		{"unknown backend", "VOXRECON_BACKEND", "edge"},
		{"unknown llm", "VOXRECON_LLM_PROVIDER", "bedrock"},
		{"unknown embedder", "VOXRECON_EMBED_PROVIDER", "cohere"},
		{"non-numeric", "VOXRECON_INTERVAL_MS", "soon"},
		{"bad duration", "VOXRECON_SESSION_TTL", "forever"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("VOXRECON_CONFIG", "")
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.in), tt.in)
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Warn("cache full", "segment_id", "s1")

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "cache full")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &rec))
	assert.Equal(t, "s1", rec["segment_id"])
}

func TestSetupLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("started")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"started"`)
}
