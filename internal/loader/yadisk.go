package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/models"
)

var yandexDiskID = regexp.MustCompile(`/d/([^/]+)`)

const (
	yandexDiskAPI     = "https://cloud-api.yandex.net"
	yandexDiskTimeout = 20 * time.Second
)

// YandexDisk loads publicly shared Yandex Disk files via the public resources API.
type YandexDisk struct {
	client  *http.Client
	apiBase string
	fetcher httpFetcher
}

// NewYandexDisk uses apiBase for the resources API; empty means the public endpoint.
func NewYandexDisk(client *http.Client, timeout time.Duration, apiBase string) *YandexDisk {
	if client == nil {
		client = http.DefaultClient
	}
	if apiBase == "" {
		apiBase = yandexDiskAPI
	}
	return &YandexDisk{client: client, apiBase: apiBase, fetcher: newHTTPFetcher(client, timeout)}
}

func (y *YandexDisk) Supports(source models.FileSource) bool {
	return source.Kind == models.SourceUploadURL && hostMatches(source.Value, "disk.yandex.ru")
}

func (y *YandexDisk) Load(ctx context.Context, source models.FileSource) ([]byte, error) {
	data, _, err := y.LoadNamed(ctx, source)
	return data, err
}

func (y *YandexDisk) LoadNamed(ctx context.Context, source models.FileSource) ([]byte, string, error) {
	link, err := y.resolve(ctx, source.Value)
	if err != nil {
		return nil, "", err
	}
	return y.fetcher.fetch(ctx, link)
}

type publicResource struct {
	Name string `json:"name"`
	File string `json:"file"`
}

func (y *YandexDisk) resolve(ctx context.Context, shareURL string) (string, error) {
	if !yandexDiskID.MatchString(shareURL) {
		return "", fmt.Errorf("%w: no file id in yandex disk url", ErrInvalidReference)
	}

	ctx, cancel := context.WithTimeout(ctx, yandexDiskTimeout)
	defer cancel()

	apiURL := y.apiBase + "/v1/disk/public/resources?public_key=" + url.QueryEscape(shareURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrDownloadFailed, err)
	}
	resp, err := y.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: yandex disk api: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: yandex disk api status %d", ErrDownloadFailed, resp.StatusCode)
	}

	var res publicResource
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("%w: decode yandex disk response: %v", ErrDownloadFailed, err)
	}
	if res.File == "" {
		return "", fmt.Errorf("%w: no download link in yandex disk response", ErrDownloadFailed)
	}
	return res.File, nil
}
