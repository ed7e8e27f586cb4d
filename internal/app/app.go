// Package app wires the pipeline together from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raphaelgruber/speechkit-go/internal/audio"
	"github.com/raphaelgruber/speechkit-go/internal/config"
	"github.com/raphaelgruber/speechkit-go/internal/db"
	"github.com/raphaelgruber/speechkit-go/internal/llm"
	"github.com/raphaelgruber/speechkit-go/internal/loader"
	"github.com/raphaelgruber/speechkit-go/internal/metrics"
	"github.com/raphaelgruber/speechkit-go/internal/notify"
	"github.com/raphaelgruber/speechkit-go/internal/service"
	"github.com/raphaelgruber/speechkit-go/internal/storage"
	"github.com/raphaelgruber/speechkit-go/internal/stt"
	"github.com/raphaelgruber/speechkit-go/internal/workflow"
)

// App holds the long-lived components of the server.
type App struct {
	Engine  *workflow.Engine
	Metrics *metrics.Collector

	db *db.Client
}

// New builds every component selected by cfg.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	mc := metrics.NewCollector()

	store, err := newStorage(cfg)
	if err != nil {
		return nil, err
	}

	var bot *tgbotapi.BotAPI
	if cfg.TelegramBotToken != "" {
		bot, err = tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			return nil, fmt.Errorf("telegram bot: %w", err)
		}
	}

	toolchain := audio.NewToolchain(cfg.FFmpegPath, cfg.FFprobePath)

	providers, err := newProviders(cfg, toolchain)
	if err != nil {
		return nil, err
	}

	completer, err := llm.New(ctx, cfg, mc)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	var notifier notify.Notifier = notify.NewOutbox(store)
	if bot != nil {
		notifier = notify.NewTelegram(bot)
	}

	var merge *service.MergeStep
	if cfg.PipelineMerge {
		merge = service.NewMergeStep(store, mc)
	}
	pipeline := service.NewPipeline(
		service.NewDownloadStep(newLoaders(cfg, bot), store, mc),
		service.NewConvertStep(store, toolchain, mc),
		service.NewTranscribeStep(store, providers, mc),
		merge,
		service.NewPostprocessStep(store, completer, service.PostprocessConfig{
			Prompt:    cfg.PostprocessPrompt,
			UseMerged: cfg.PipelineMerge,
			Timeout:   cfg.LLMTimeout,
		}, mc),
		service.NewDeliverStep(store, notifier, mc),
	)

	a := &App{Metrics: mc}

	var runs workflow.RunStore = workflow.NewMemoryStore()
	if cfg.RunStore == config.RunStoreSurrealDB {
		client, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, slog.Default(), mc)
		if err != nil {
			return nil, err
		}
		if err := client.InitSchema(ctx); err != nil {
			client.Close(ctx)
			return nil, err
		}
		a.db = client
		runs = db.NewRunStore(client)
	}

	a.Engine = workflow.NewEngine(pipeline, runs, notifier, workflow.Options{
		Retry: workflow.RetryPolicy{
			InitialInterval: cfg.RetryInitialInterval,
			Multiplier:      cfg.RetryMultiplier,
			MaxAttempts:     cfg.RetryMaxAttempts,
			AttemptTimeout:  cfg.StepTimeout,
		},
	})
	return a, nil
}

// Close closes the database connection, if any.
func (a *App) Close(ctx context.Context) error {
	if a.db != nil {
		return a.db.Close(ctx)
	}
	return nil
}

// WipeData deletes all persisted runs. Use for testing only.
func (a *App) WipeData(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.WipeData(ctx)
}

func newStorage(cfg config.Config) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		return storage.NewS3(storage.S3Config{
			Endpoint:        cfg.YCS3Endpoint,
			Region:          cfg.YCS3Region,
			Bucket:          cfg.StorageS3Bucket,
			AccessKeyID:     cfg.YCAccessKeyID,
			SecretAccessKey: cfg.YCSecretAccessKey,
		})
	case config.StorageLocal:
		return storage.NewLocal(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.StorageBackend)
	}
}

// newLoaders registers the local file loader first, confined to LOCAL_SOURCE_DIR,
// and the chat loader only with a bot.
func newLoaders(cfg config.Config, bot *tgbotapi.BotAPI) *loader.Registry {
	loaders := []loader.Loader{
		loader.NewLocalFile(cfg.LocalSourceDir),
		loader.NewGoogleDrive(http.DefaultClient, cfg.DownloadTimeout),
		loader.NewYandexDisk(http.DefaultClient, cfg.DownloadTimeout, ""),
	}
	if bot != nil {
		loaders = append(loaders, loader.NewTelegram(bot, http.DefaultClient, cfg.DownloadTimeout))
	}
	return loader.NewRegistry(loaders...)
}

// newProviders builds the recognizers in STT_PROVIDERS order. The first fills slot A.
func newProviders(cfg config.Config, encoder stt.OpusEncoder) ([]stt.Provider, error) {
	poll := stt.PollConfig{Interval: cfg.STTPollInterval, MaxAttempts: cfg.STTMaxPollAttempts}

	providers := make([]stt.Provider, 0, len(cfg.STTProviders))
	for _, name := range cfg.STTProviders {
		switch name {
		case config.STTYandex:
			bucket, err := storage.NewS3(storage.S3Config{
				Endpoint:        cfg.YCS3Endpoint,
				Region:          cfg.YCS3Region,
				Bucket:          cfg.YCSpeechKitBucket,
				AccessKeyID:     cfg.YCAccessKeyID,
				SecretAccessKey: cfg.YCSecretAccessKey,
			})
			if err != nil {
				return nil, fmt.Errorf("speechkit bucket: %w", err)
			}
			providers = append(providers, stt.NewYandex(stt.YandexConfig{
				APIKey:   cfg.YCAPIKey,
				FolderID: cfg.YCFolderID,
				Poll:     poll,
			}, bucket, nil))
		case config.STTSalute:
			providers = append(providers, stt.NewSalute(stt.SaluteConfig{
				AuthKey:     cfg.SaluteAuthKey,
				Scope:       cfg.SaluteScope,
				InsecureTLS: cfg.SaluteInsecureTLS,
				Poll:        poll,
			}, encoder))
		default:
			return nil, fmt.Errorf("unsupported STT provider: %s", name)
		}
	}
	return providers, nil
}
