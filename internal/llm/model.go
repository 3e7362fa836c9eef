// Package llm provides langchaingo-backed narrative synthesis and text embeddings.
package llm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/voxrecon/internal/config"
)

// ErrFatalAPI marks provider errors that retrying will not fix
// (billing, quota, authentication).
var ErrFatalAPI = errors.New("fatal LLM API error")

var fatalMarkers = []string{
	"credit balance",
	"rate limit",
	"quota",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return slices.ContainsFunc(fatalMarkers, func(m string) bool { return strings.Contains(msg, m) })
}

func wrapFatalError(err error) error {
	if !isFatalAPIError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}

// UsageFunc receives the duration and token counts of each generation.
type UsageFunc func(d time.Duration, inputTokens, outputTokens int64)

// Model wraps langchaingo LLM for text generation.
type Model struct {
	llm       llms.Model
	modelName string
	usage     UsageFunc
}

// NewModel creates the chat model for the configured LLM provider.
func NewModel(cfg config.Config) (*Model, error) {
	client, err := chatClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Model{llm: client, modelName: cfg.LLMModel}, nil
}

func chatClient(cfg config.Config) (llms.Model, error) {
	var (
		client llms.Model
		err    error
	)
	switch cfg.LLMProvider {
	case config.ProviderOllama:
		client, err = ollama.New(ollama.WithModel(cfg.LLMModel), ollama.WithServerURL(cfg.OllamaHost))
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OpenAI API key required")
		}
		client, err = openai.New(openai.WithToken(cfg.OpenAIAPIKey), openai.WithModel(cfg.LLMModel))
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("Anthropic API key required")
		}
		client, err = anthropic.New(anthropic.WithToken(cfg.AnthropicAPIKey), anthropic.WithModel(cfg.LLMModel))
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", cfg.LLMProvider, err)
	}
	return client, nil
}

// OnUsage registers a callback invoked after every generation.
func (m *Model) OnUsage(fn UsageFunc) {
	m.usage = fn
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string, opts ...llms.CallOption) (string, error) {
	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", wrapFatalError(err))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}

	choice := resp.Choices[0]
	if m.usage != nil {
		in, out := tokenUsage(choice.GenerationInfo)
		m.usage(time.Since(start), in, out)
	}
	return choice.Content, nil
}

// tokenUsage reads token counts from provider generation info, whose key
// names differ between backends.
func tokenUsage(info map[string]any) (in, out int64) {
	read := func(keys ...string) int64 {
		for _, k := range keys {
			switch v := info[k].(type) {
			case int:
				return int64(v)
			case int32:
				return int64(v)
			case int64:
				return v
			case float64:
				return int64(v)
			}
		}
		return 0
	}
	return read("PromptTokens", "InputTokens", "prompt_tokens", "input_tokens"),
		read("CompletionTokens", "OutputTokens", "completion_tokens", "output_tokens")
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}
