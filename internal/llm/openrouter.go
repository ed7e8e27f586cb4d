package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/metrics"
	"github.com/sashabaranov/go-openai"
)

const (
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel = "openai/gpt-4o"
)

// OpenRouter completes prompts through the OpenAI-compatible OpenRouter API.
type OpenRouter struct {
	client    *openai.Client
	model     string
	maxTokens int
	metrics   *metrics.Collector
}

func NewOpenRouter(apiKey string, opts Options) (*OpenRouter, error) {
	if apiKey == "" {
		return nil, errors.New("OpenRouter API key required")
	}
	if opts.Model == "" {
		opts.Model = defaultOpenRouterModel
	}
	if opts.BaseURL == "" {
		opts.BaseURL = openRouterBaseURL
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = opts.BaseURL

	return &OpenRouter{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		metrics:   opts.Metrics,
	}, nil
}

func (o *OpenRouter) MaxTokens() int { return o.maxTokens }

func (o *OpenRouter) Process(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		recordUsage(o.metrics, start, err, 0, 0)
		slog.Warn("openrouter completion failed", "model", o.model, "error", err)
		return "", fmt.Errorf("openrouter: %w", wrapFatalError(err))
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		err := errors.New("openrouter: no content in response")
		recordUsage(o.metrics, start, err, 0, 0)
		return "", err
	}

	recordUsage(o.metrics, start, nil, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))
	slog.Debug("openrouter completion done", "model", o.model,
		"prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens,
		"duration_ms", time.Since(start).Milliseconds())
	return resp.Choices[0].Message.Content, nil
}
