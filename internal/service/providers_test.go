package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/voxrecon/internal/config"
	"github.com/raphaelgruber/voxrecon/internal/metrics"
	"github.com/raphaelgruber/voxrecon/internal/provider"
	"github.com/raphaelgruber/voxrecon/internal/report"
)

func TestNewRegistry(t *testing.T) {
	cfg := config.Default()
	reg, err := NewRegistry(cfg, metrics.NewCollector(), nil)
	require.NoError(t, err)
	assert.True(t, reg.HasProvider(provider.KindTranscription))
	assert.True(t, reg.HasProvider(provider.KindDiarization))
	assert.True(t, reg.HasProvider(provider.KindSpeakerVerification))
	assert.Equal(t, report.TemplateModelID, reg.Active(provider.KindNarrativeSynthesis))

	cfg.SidecarURL = ""
	reg, err = NewRegistry(cfg, nil, nil)
	require.NoError(t, err)
	assert.False(t, reg.HasProvider(provider.KindTranscription))
	assert.True(t, reg.HasProvider(provider.KindNarrativeSynthesis))
}

func TestNewRegistryModelNeedsKey(t *testing.T) {
	cfg := config.Default()
	cfg.LLMProvider = config.ProviderOpenAI
	cfg.OpenAIAPIKey = ""
	_, err := NewRegistry(cfg, nil, nil)
	assert.Error(t, err)
}
