package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/config"
	"github.com/raphaelgruber/speechkit-go/internal/metrics"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChain wraps a langchaingo model (OpenAI, Ollama or Anthropic).
type LangChain struct {
	llm       llms.Model
	modelName string
	maxTokens int
	metrics   *metrics.Collector
}

// NewLangChain creates a langchaingo-backed completer based on configuration.
func NewLangChain(cfg config.Config, collector *metrics.Collector) (*LangChain, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OpenAI API key required")
		}
		opts := []openai.Option{openai.WithToken(cfg.OpenAIAPIKey)}
		if cfg.LLMModel != "" {
			opts = append(opts, openai.WithModel(cfg.LLMModel))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("Anthropic API key required")
		}
		opts := []anthropic.Option{anthropic.WithToken(cfg.AnthropicAPIKey)}
		if cfg.LLMModel != "" {
			opts = append(opts, anthropic.WithModel(cfg.LLMModel))
		}
		model, err = anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported langchain provider: %s", cfg.LLMProvider)
	}

	return &LangChain{
		llm:       model,
		modelName: cfg.LLMModel,
		maxTokens: cfg.LLMMaxTokens,
		metrics:   collector,
	}, nil
}

func (m *LangChain) MaxTokens() int { return m.maxTokens }

// Model returns the LLM model name.
func (m *LangChain) Model() string { return m.modelName }

// Process sends the prompt as a single human message.
func (m *LangChain) Process(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		recordUsage(m.metrics, start, err, 0, 0)
		return "", fmt.Errorf("generate: %w", wrapFatalError(err))
	}
	if len(resp.Choices) == 0 {
		err := errors.New("no response choices")
		recordUsage(m.metrics, start, err, 0, 0)
		return "", err
	}

	choice := resp.Choices[0]
	in := tokenCount(choice.GenerationInfo, "PromptTokens", "InputTokens", "prompt_eval_count")
	out := tokenCount(choice.GenerationInfo, "CompletionTokens", "OutputTokens", "eval_count")
	recordUsage(m.metrics, start, nil, in, out)
	return choice.Content, nil
}

// tokenCount reads the first present numeric key. Providers name usage fields differently.
func tokenCount(info map[string]any, keys ...string) int64 {
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
