package service

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/voxrecon/internal/config"
	"github.com/raphaelgruber/voxrecon/internal/llm"
	"github.com/raphaelgruber/voxrecon/internal/metrics"
	"github.com/raphaelgruber/voxrecon/internal/provider"
	"github.com/raphaelgruber/voxrecon/internal/report"
	"github.com/raphaelgruber/voxrecon/internal/sidecar"
)

// SidecarProvider is the registry name of the inference sidecar.
const SidecarProvider = "sidecar"

// NewRegistry registers the providers cfg names. The template synthesizer is
// always available; a configured language model becomes the active synthesizer.
func NewRegistry(cfg config.Config, collector *metrics.Collector, logger *slog.Logger) (*provider.Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := provider.NewRegistry()

	if cfg.SidecarURL != "" {
		sc, err := sidecar.New(cfg.SidecarURL,
			sidecar.WithToken(cfg.SidecarToken),
			sidecar.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("sidecar: %w", err)
		}
		reg.RegisterTranscriber(SidecarProvider, sc)
		reg.RegisterDiarizer(SidecarProvider, sc)
		reg.RegisterVerifier(SidecarProvider, sc)
	}

	reg.RegisterSynthesizer(report.TemplateModelID, report.NewTemplateSynthesizer())
	if cfg.LLMProvider == config.ProviderTemplate || cfg.LLMProvider == "" {
		return reg, nil
	}

	model, err := llm.NewModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	if collector != nil {
		model.OnUsage(func(d time.Duration, in, out int64) {
			collector.RecordLLMUsage(metrics.OpGenerate, d, in, out)
		})
	}
	reg.RegisterSynthesizer(string(cfg.LLMProvider), llm.NewSynthesizer(model, logger))
	logger.Info("synthesizer configured", "provider", cfg.LLMProvider, "model", model.Model())
	return reg, nil
}
