package loader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/models"
)

var driveFileID = regexp.MustCompile(`/file/d/([^/]+)`)

// GoogleDrive loads publicly shared Google Drive files.
type GoogleDrive struct {
	fetcher     httpFetcher
	downloadURL string
}

func NewGoogleDrive(client *http.Client, timeout time.Duration) *GoogleDrive {
	return &GoogleDrive{
		fetcher:     newHTTPFetcher(client, timeout),
		downloadURL: "https://drive.google.com/uc",
	}
}

func (g *GoogleDrive) Supports(source models.FileSource) bool {
	return source.Kind == models.SourceUploadURL && hostMatches(source.Value, "drive.google.com")
}

func (g *GoogleDrive) Load(ctx context.Context, source models.FileSource) ([]byte, error) {
	data, _, err := g.LoadNamed(ctx, source)
	return data, err
}

func (g *GoogleDrive) LoadNamed(ctx context.Context, source models.FileSource) ([]byte, string, error) {
	link, err := g.DownloadURL(source.Value)
	if err != nil {
		return nil, "", err
	}
	return g.fetcher.fetch(ctx, link)
}

// DownloadURL maps a share link to its direct download link.
func (g *GoogleDrive) DownloadURL(shareURL string) (string, error) {
	m := driveFileID.FindStringSubmatch(shareURL)
	if m == nil {
		return "", fmt.Errorf("%w: no file id in google drive url", ErrInvalidReference)
	}
	return g.downloadURL + "?export=download&id=" + m[1], nil
}

// hostMatches reports whether rawURL points at host or one of its subdomains.
func hostMatches(rawURL, host string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	h := strings.ToLower(u.Hostname())
	return h == host || strings.HasSuffix(h, "."+host)
}
