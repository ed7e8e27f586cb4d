package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML overlay. Only the fields present in the file are applied.
type fileConfig struct {
	Pipeline struct {
		Merge           *bool          `yaml:"merge"`
		DownloadTimeout *time.Duration `yaml:"download_timeout"`
		StepTimeout     *time.Duration `yaml:"step_timeout"`
	} `yaml:"pipeline"`

	Retry struct {
		InitialInterval *time.Duration `yaml:"initial_interval"`
		Multiplier      *float64       `yaml:"multiplier"`
		MaxAttempts     *int           `yaml:"max_attempts"`
	} `yaml:"retry"`

	STT struct {
		Providers       []string       `yaml:"providers"`
		PollInterval    *time.Duration `yaml:"poll_interval"`
		MaxPollAttempts *int           `yaml:"max_poll_attempts"`
	} `yaml:"stt"`

	LLM struct {
		Provider  *string        `yaml:"provider"`
		Model     *string        `yaml:"model"`
		MaxTokens *int           `yaml:"max_tokens"`
		Timeout   *time.Duration `yaml:"timeout"`
	} `yaml:"llm"`

	Postprocess struct {
		Prompt *string `yaml:"prompt"`
	} `yaml:"postprocess"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	set(&c.PipelineMerge, fc.Pipeline.Merge)
	set(&c.DownloadTimeout, fc.Pipeline.DownloadTimeout)
	set(&c.StepTimeout, fc.Pipeline.StepTimeout)

	set(&c.RetryInitialInterval, fc.Retry.InitialInterval)
	set(&c.RetryMultiplier, fc.Retry.Multiplier)
	set(&c.RetryMaxAttempts, fc.Retry.MaxAttempts)

	if len(fc.STT.Providers) > 0 {
		c.STTProviders = fc.STT.Providers
	}
	set(&c.STTPollInterval, fc.STT.PollInterval)
	set(&c.STTMaxPollAttempts, fc.STT.MaxPollAttempts)

	set(&c.LLMProvider, fc.LLM.Provider)
	set(&c.LLMModel, fc.LLM.Model)
	set(&c.LLMMaxTokens, fc.LLM.MaxTokens)
	set(&c.LLMTimeout, fc.LLM.Timeout)

	set(&c.PostprocessPrompt, fc.Postprocess.Prompt)
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
