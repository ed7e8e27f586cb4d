package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const defaultDownloadTimeout = 30 * time.Second

// httpFetcher downloads a resolved URL under a bounded timeout.
type httpFetcher struct {
	client  *http.Client
	timeout time.Duration
}

func newHTTPFetcher(client *http.Client, timeout time.Duration) httpFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	return httpFetcher{client: client, timeout: timeout}
}

// fetch returns the body and the filename from Content-Disposition, if any.
func (f httpFetcher) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: build request: %v", ErrDownloadFailed, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: unexpected status %d", ErrDownloadFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read body: %v", ErrDownloadFailed, err)
	}

	slog.Info("file downloaded", "bytes", len(data), "host", req.URL.Host)
	return data, ExtractFilename(resp.Header.Get("Content-Disposition")), nil
}

var dispositionFilename = regexp.MustCompile(`filename[^\n;=]*=("[^"]*"|'[^']*'|[^\n;]*)`)

// ExtractFilename returns the file name from a Content-Disposition header,
// or "" when there is none.
func ExtractFilename(contentDisposition string) string {
	if contentDisposition == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
		if name := params["filename"]; name != "" {
			return unescapeFilename(name)
		}
	}

	m := dispositionFilename.FindStringSubmatch(contentDisposition)
	if m == nil {
		return ""
	}
	name := strings.TrimSpace(m[1])
	name = strings.Trim(name, `"'`)
	return unescapeFilename(name)
}

func unescapeFilename(name string) string {
	if decoded, err := url.PathUnescape(name); err == nil {
		return decoded
	}
	return name
}
