// Package loader fetches original audio from the places users share it.
package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/samber/lo"
)

var (
	// ErrNoLoader indicates no registered loader accepts the source.
	ErrNoLoader = errors.New("no loader supports source")

	// ErrInvalidReference indicates a malformed file id or share link.
	ErrInvalidReference = errors.New("invalid file reference")

	// ErrDownloadFailed wraps transport failures and non-2xx responses.
	ErrDownloadFailed = errors.New("download failed")
)

// Loader fetches the bytes of one kind of FileSource.
type Loader interface {
	Supports(source models.FileSource) bool
	Load(ctx context.Context, source models.FileSource) ([]byte, error)
}

// NamedLoader is implemented by loaders that can also report the file name
// announced by the remote side.
type NamedLoader interface {
	LoadNamed(ctx context.Context, source models.FileSource) (data []byte, filename string, err error)
}

// Registry holds loaders in priority order.
type Registry struct {
	loaders []Loader
}

// NewRegistry returns a registry that tries loaders in the given order.
func NewRegistry(loaders ...Loader) *Registry {
	return &Registry{loaders: loaders}
}

// Find returns the first loader that supports the source.
func (r *Registry) Find(source models.FileSource) (Loader, error) {
	l, ok := lo.Find(r.loaders, func(l Loader) bool { return l.Supports(source) })
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoLoader, source.Kind)
	}
	return l, nil
}

// Len reports how many loaders are registered.
func (r *Registry) Len() int {
	return len(r.loaders)
}
