package loader

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/models"
)

var telegramFileID = regexp.MustCompile(`^[\w-]+$`)

// FileURLResolver turns a Bot API file id into a direct download URL.
// *tgbotapi.BotAPI satisfies it.
type FileURLResolver interface {
	GetFileDirectURL(fileID string) (string, error)
}

// Telegram loads chat attachments through the Bot API.
type Telegram struct {
	resolver FileURLResolver
	fetcher  httpFetcher
}

// NewTelegram returns a loader for telegram_file_id sources.
func NewTelegram(resolver FileURLResolver, client *http.Client, timeout time.Duration) *Telegram {
	return &Telegram{resolver: resolver, fetcher: newHTTPFetcher(client, timeout)}
}

func (t *Telegram) Supports(source models.FileSource) bool {
	return source.Kind == models.SourceChatFile
}

func (t *Telegram) Load(ctx context.Context, source models.FileSource) ([]byte, error) {
	data, _, err := t.LoadNamed(ctx, source)
	return data, err
}

func (t *Telegram) LoadNamed(ctx context.Context, source models.FileSource) ([]byte, string, error) {
	if !telegramFileID.MatchString(source.Value) {
		return nil, "", fmt.Errorf("%w: telegram file id %q", ErrInvalidReference, source.Value)
	}
	directURL, err := t.resolver.GetFileDirectURL(source.Value)
	if err != nil {
		return nil, "", fmt.Errorf("%w: resolve telegram file: %v", ErrDownloadFailed, err)
	}
	return t.fetcher.fetch(ctx, directURL)
}
