// Package llm provides text completion for transcript postprocessing.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/config"
	"github.com/raphaelgruber/speechkit-go/internal/metrics"
)

// Completer turns a prompt into a single text response.
type Completer interface {
	Process(ctx context.Context, prompt string) (string, error)
	// MaxTokens is the prompt budget the caller must stay under.
	MaxTokens() int
}

// Options are shared by all adapters.
type Options struct {
	Model     string
	MaxTokens int
	// BaseURL overrides the vendor endpoint where the adapter supports it.
	BaseURL string
	Metrics *metrics.Collector
}

// New builds the completer selected by cfg.LLMProvider.
func New(ctx context.Context, cfg config.Config, collector *metrics.Collector) (Completer, error) {
	opts := Options{Model: cfg.LLMModel, MaxTokens: cfg.LLMMaxTokens, Metrics: collector}

	switch cfg.LLMProvider {
	case config.ProviderOpenRouter:
		return NewOpenRouter(cfg.OpenRouterAPIKey, opts)
	case config.ProviderBedrock:
		return NewBedrock(ctx, cfg.BedrockRegion, opts)
	case config.ProviderOpenAI, config.ProviderOllama, config.ProviderAnthropic:
		return NewLangChain(cfg, collector)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}

func recordUsage(c *metrics.Collector, start time.Time, err error, inputTokens, outputTokens int64) {
	d := time.Since(start)
	if err != nil {
		c.RecordFailure(metrics.OpLLMGenerate, d)
		return
	}
	c.RecordLLMUsage(metrics.OpLLMGenerate, d, inputTokens, outputTokens)
}
