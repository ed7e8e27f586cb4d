package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/speechkit-go/internal/models"
)

// LocalFile loads audio that was already downloaded onto this machine.
// Only files under its base directory are readable.
type LocalFile struct {
	base string
}

// NewLocalFile confines reads to base. A zero LocalFile rejects every path.
func NewLocalFile(base string) LocalFile {
	abs, err := filepath.Abs(base)
	if err != nil {
		abs = filepath.Clean(base)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return LocalFile{base: abs}
}

func (LocalFile) Supports(source models.FileSource) bool {
	return source.Kind == models.SourceDownloadedPath
}

func (l LocalFile) Load(ctx context.Context, source models.FileSource) ([]byte, error) {
	data, _, err := l.LoadNamed(ctx, source)
	return data, err
}

func (l LocalFile) LoadNamed(_ context.Context, source models.FileSource) ([]byte, string, error) {
	full, err := l.resolve(source.Value)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	slog.Info("local file loaded", "bytes", len(data), "path", full)
	return data, filepath.Base(full), nil
}

// resolve maps a relative or absolute path to a file inside base, following
// symlinks so a link cannot point outside it.
func (l LocalFile) resolve(path string) (string, error) {
	if l.base == "" || path == "" {
		return "", fmt.Errorf("%w: local path %q", ErrInvalidReference, path)
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(l.base, full)
	}
	full = filepath.Clean(full)
	if real, err := filepath.EvalSymlinks(full); err == nil {
		full = real
	}
	if !strings.HasPrefix(full, l.base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q is outside %s", ErrInvalidReference, path, l.base)
	}
	return full, nil
}
