package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/voxrecon/internal/config"
)

func TestWrapFatalError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"connection reset", errors.New("read: connection reset by peer"), false},
		{"deadline", errors.New("context deadline exceeded"), false},
		{"not found", errors.New("HTTP 404: model not found"), false},
		{"low credit", errors.New("Your credit balance is too low"), true},
		{"throttled", errors.New("Rate limit reached for requests"), true},
		{"quota", errors.New("You exceeded your current quota"), true},
		{"bad key", errors.New("Invalid API key provided"), true},
		{"forbidden", errors.New("status 403"), true},
		{"nested", fmt.Errorf("generate: %w", errors.New("unauthorized")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapFatalError(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Equal(t, tt.fatal, errors.Is(got, ErrFatalAPI))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestTokenUsage(t *testing.T) {
	tests := []struct {
		name    string
		info    map[string]any
		in, out int64
	}{
		{"openai", map[string]any{"PromptTokens": 120, "CompletionTokens": 30}, 120, 30},
		{"anthropic", map[string]any{"InputTokens": int64(80), "OutputTokens": int64(12)}, 80, 12},
		{"ollama json", map[string]any{"prompt_tokens": float64(9), "completion_tokens": float64(4)}, 9, 4},
		{"missing", map[string]any{"model": "x"}, 0, 0},
		{"nil", nil, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out := tokenUsage(tt.info)
			assert.Equal(t, tt.in, in)
			assert.Equal(t, tt.out, out)
		})
	}
}

func TestNewModelRequiresKeys(t *testing.T) {
	tests := []struct {
		provider config.ProviderType
		want     string
	}{
		{config.ProviderOpenAI, "OpenAI API key required"},
		{config.ProviderAnthropic, "Anthropic API key required"},
		{config.ProviderVoyage, "unsupported LLM provider"},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			cfg := config.Default()
			cfg.LLMProvider = tt.provider
			cfg.OpenAIAPIKey, cfg.AnthropicAPIKey = "", ""
			_, err := NewModel(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewEmbedder(t *testing.T) {
	cfg := config.Default()
	cfg.EmbedProvider = config.ProviderOpenAI
	cfg.OpenAIAPIKey = ""
	_, err := NewEmbedder(cfg)
	assert.ErrorContains(t, err, "OpenAI API key required")

	cfg.EmbedProvider = config.ProviderAnthropic
	_, err = NewEmbedder(cfg)
	assert.ErrorContains(t, err, "unsupported embedding provider")

	cfg.EmbedProvider = config.ProviderOllama
	cfg.EmbedModel = "nomic-embed-text"
	cfg.EmbedDimension = 768
	e, err := NewEmbedder(cfg)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", e.Model())
	assert.Equal(t, 768, e.Dimension())
}
