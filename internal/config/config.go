package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// LLM providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
	ProviderAnthropic  = "anthropic"
	ProviderBedrock    = "bedrock"
)

// Run stores.
const (
	RunStoreSurrealDB = "surrealdb"
	RunStoreMemory    = "memory"
)

// STT provider names.
const (
	STTYandex = "yandex"
	STTSalute = "salute"
)

// Config holds all configuration values.
type Config struct {
	// Storage
	StorageBackend  string
	StoragePath     string
	StorageS3Bucket string

	// Yandex Cloud (SpeechKit + Object Storage)
	YCAPIKey          string
	YCFolderID        string
	YCS3Endpoint      string
	YCS3Region        string
	YCAccessKeyID     string
	YCSecretAccessKey string
	YCSpeechKitBucket string

	// SaluteSpeech
	SaluteAuthKey     string
	SaluteScope       string
	SaluteInsecureTLS bool

	// STT
	STTProviders       []string
	STTPollInterval    time.Duration
	STTMaxPollAttempts int

	// LLM
	LLMProvider      string
	LLMModel         string
	OpenRouterAPIKey string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	OllamaHost       string
	BedrockRegion    string
	LLMMaxTokens     int
	LLMTimeout       time.Duration

	// Chat
	TelegramBotToken string

	// Pipeline
	PipelineMerge        bool
	DownloadTimeout      time.Duration
	LocalSourceDir       string
	RetryInitialInterval time.Duration
	RetryMultiplier      float64
	RetryMaxAttempts     int
	StepTimeout          time.Duration
	PostprocessPrompt    string

	// Toolchain
	FFmpegPath  string
	FFprobePath string

	// Run store
	RunStore           string
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Server
	Port      string
	ServerURL string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Default returns the built-in configuration before any file or environment is applied.
func Default() Config {
	return Config{
		StorageBackend: StorageLocal,
		StoragePath:    "./audio",

		YCS3Endpoint:      "https://storage.yandexcloud.net",
		YCS3Region:        "ru-central1",
		YCSpeechKitBucket: "speech-kit-wav",

		SaluteScope: "SALUTE_SPEECH_PERS",

		STTProviders:       []string{STTYandex, STTSalute},
		STTPollInterval:    5 * time.Second,
		STTMaxPollAttempts: 120,

		LLMProvider:  ProviderOpenRouter,
		OllamaHost:   "http://localhost:11434",
		LLMMaxTokens: 100_000,
		LLMTimeout:   5 * time.Minute,

		PipelineMerge:        true,
		DownloadTimeout:      30 * time.Second,
		LocalSourceDir:       "./incoming",
		RetryInitialInterval: 5 * time.Second,
		RetryMultiplier:      2,
		RetryMaxAttempts:     3,
		StepTimeout:          time.Hour,
		PostprocessPrompt:    DefaultPostprocessPrompt,

		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",

		RunStore:           RunStoreSurrealDB,
		SurrealDBURL:       "ws://localhost:8001/rpc",
		SurrealDBNamespace: "speechkit",
		SurrealDBDatabase:  "pipeline",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		Port:      "8000",
		ServerURL: "http://localhost:8000",

		LogFile:  "/tmp/speechkit.log",
		LogLevel: slog.LevelInfo,
	}
}

// Load reads configuration from .env, the optional YAML file named by
// SPEECHKIT_CONFIG and the environment, in increasing precedence.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("SPEECHKIT_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.StorageBackend = getEnv("STORAGE_BACKEND", c.StorageBackend)
	c.StoragePath = getEnv("STORAGE_PATH", c.StoragePath)
	c.StorageS3Bucket = getEnv("STORAGE_S3_BUCKET", c.StorageS3Bucket)

	c.YCAPIKey = getEnv("YC_API_KEY", c.YCAPIKey)
	c.YCFolderID = getEnv("YC_FOLDER_ID", c.YCFolderID)
	c.YCS3Endpoint = getEnv("YC_S3_ENDPOINT", c.YCS3Endpoint)
	c.YCS3Region = getEnv("YC_S3_REGION", c.YCS3Region)
	c.YCAccessKeyID = getEnv("YC_ACCESS_KEY_ID", c.YCAccessKeyID)
	c.YCSecretAccessKey = getEnv("YC_SECRET_ACCESS_KEY", c.YCSecretAccessKey)
	c.YCSpeechKitBucket = getEnv("YC_SPEECH_KIT_BUCKET_NAME", c.YCSpeechKitBucket)

	c.SaluteAuthKey = getEnv("SALUTE_SPEECH_AUTH_KEY", c.SaluteAuthKey)
	c.SaluteScope = getEnv("SALUTE_SPEECH_SCOPE", c.SaluteScope)
	c.SaluteInsecureTLS = getBool("SALUTE_SPEECH_INSECURE_TLS", c.SaluteInsecureTLS)

	c.STTProviders = getList("STT_PROVIDERS", c.STTProviders)
	c.STTPollInterval = getDuration("STT_POLL_INTERVAL", c.STTPollInterval)
	c.STTMaxPollAttempts = getInt("STT_MAX_POLL_ATTEMPTS", c.STTMaxPollAttempts)

	c.LLMProvider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLMProvider))
	c.LLMModel = getEnv("LLM_MODEL", c.LLMModel)
	c.OpenRouterAPIKey = getEnv("OPENROUTER_API_KEY", c.OpenRouterAPIKey)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.OllamaHost = getEnv("OLLAMA_HOST", c.OllamaHost)
	c.BedrockRegion = getEnv("BEDROCK_REGION", c.BedrockRegion)
	c.LLMMaxTokens = getInt("LLM_MAX_TOKENS", c.LLMMaxTokens)
	c.LLMTimeout = getDuration("LLM_TIMEOUT", c.LLMTimeout)

	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)

	c.PipelineMerge = getBool("PIPELINE_MERGE", c.PipelineMerge)
	c.DownloadTimeout = getDuration("DOWNLOAD_TIMEOUT", c.DownloadTimeout)
	c.LocalSourceDir = getEnv("LOCAL_SOURCE_DIR", c.LocalSourceDir)
	c.RetryInitialInterval = getDuration("RETRY_INITIAL_INTERVAL", c.RetryInitialInterval)
	c.RetryMultiplier = getFloat("RETRY_MULTIPLIER", c.RetryMultiplier)
	c.RetryMaxAttempts = getInt("RETRY_MAX_ATTEMPTS", c.RetryMaxAttempts)
	c.StepTimeout = getDuration("STEP_TIMEOUT", c.StepTimeout)

	c.FFmpegPath = getEnv("FFMPEG_PATH", c.FFmpegPath)
	c.FFprobePath = getEnv("FFPROBE_PATH", c.FFprobePath)

	c.RunStore = strings.ToLower(getEnv("RUN_STORE", c.RunStore))
	c.SurrealDBURL = getEnv("SURREALDB_URL", c.SurrealDBURL)
	c.SurrealDBNamespace = getEnv("SURREALDB_NAMESPACE", c.SurrealDBNamespace)
	c.SurrealDBDatabase = getEnv("SURREALDB_DATABASE", c.SurrealDBDatabase)
	c.SurrealDBUser = getEnv("SURREALDB_USER", c.SurrealDBUser)
	c.SurrealDBPass = getEnv("SURREALDB_PASS", c.SurrealDBPass)
	c.SurrealDBAuthLevel = getEnv("SURREALDB_AUTH_LEVEL", c.SurrealDBAuthLevel)

	c.Port = getEnv("PORT", c.Port)
	c.ServerURL = getEnv("SPEECHKIT_SERVER_URL", c.ServerURL)

	c.LogFile = getEnv("SPEECHKIT_LOG_FILE", c.LogFile)
	if v := os.Getenv("SPEECHKIT_LOG_LEVEL"); v != "" {
		c.LogLevel = parseLogLevel(v)
	}
}

// Validate reports missing settings for the components the configuration enables.
func (c Config) Validate() error {
	var errs []error
	require := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	switch c.StorageBackend {
	case StorageLocal:
		require("STORAGE_PATH", c.StoragePath)
	case StorageS3:
		require("STORAGE_S3_BUCKET", c.StorageS3Bucket)
		require("YC_ACCESS_KEY_ID", c.YCAccessKeyID)
		require("YC_SECRET_ACCESS_KEY", c.YCSecretAccessKey)
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_BACKEND: %q", c.StorageBackend))
	}

	if len(c.STTProviders) == 0 {
		errs = append(errs, errors.New("STT_PROVIDERS must name at least one provider"))
	}
	if !slotOrder(c.STTProviders) {
		errs = append(errs, fmt.Errorf("STT_PROVIDERS must list %s before %s, got %v",
			STTYandex, STTSalute, c.STTProviders))
	}
	for _, p := range c.STTProviders {
		switch p {
		case STTYandex:
			require("YC_API_KEY", c.YCAPIKey)
			require("YC_ACCESS_KEY_ID", c.YCAccessKeyID)
			require("YC_SECRET_ACCESS_KEY", c.YCSecretAccessKey)
			require("YC_SPEECH_KIT_BUCKET_NAME", c.YCSpeechKitBucket)
		case STTSalute:
			require("SALUTE_SPEECH_AUTH_KEY", c.SaluteAuthKey)
		default:
			errs = append(errs, fmt.Errorf("unsupported STT provider: %q", p))
		}
	}

	switch c.LLMProvider {
	case ProviderOpenRouter:
		require("OPENROUTER_API_KEY", c.OpenRouterAPIKey)
	case ProviderOpenAI:
		require("OPENAI_API_KEY", c.OpenAIAPIKey)
	case ProviderAnthropic:
		require("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	case ProviderOllama:
		require("OLLAMA_HOST", c.OllamaHost)
		require("LLM_MODEL", c.LLMModel)
	case ProviderBedrock:
		require("LLM_MODEL", c.LLMModel)
	default:
		errs = append(errs, fmt.Errorf("unsupported LLM_PROVIDER: %q", c.LLMProvider))
	}

	switch c.RunStore {
	case RunStoreMemory:
	case RunStoreSurrealDB:
		require("SURREALDB_URL", c.SurrealDBURL)
	default:
		errs = append(errs, fmt.Errorf("unsupported RUN_STORE: %q", c.RunStore))
	}

	if !strings.Contains(c.PostprocessPrompt, "{text}") {
		errs = append(errs, errors.New("postprocess prompt must contain {text}"))
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, errors.New("RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.LLMMaxTokens < 1 {
		errs = append(errs, errors.New("LLM_MAX_TOKENS must be positive"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		slog.Warn("ignoring invalid boolean setting", "key", key, "value", val)
		return defaultVal
	}
	return b
}

func getInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("ignoring invalid integer setting", "key", key, "value", val)
		return defaultVal
	}
	return n
}

func getFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		slog.Warn("ignoring invalid number setting", "key", key, "value", val)
		return defaultVal
	}
	return f
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("ignoring invalid duration setting", "key", key, "value", val)
		return defaultVal
	}
	return d
}

func getList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
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

// slotOrder reports whether providers fill the transcript slots in the order
// their file names expect: yandex in slot A, salute in slot B.
func slotOrder(providers []string) bool {
	slots := []string{STTYandex, STTSalute}
	if len(providers) > len(slots) {
		return false
	}
	for i, p := range providers {
		if p != slots[i] {
			return false
		}
	}
	return true
}
