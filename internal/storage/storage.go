// Package storage persists job artifacts under relative keys.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates no artifact is stored under the key.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidPath indicates a key that escapes the storage root.
	ErrInvalidPath = errors.New("invalid storage path")
)

// Storage saves and reads artifacts addressed by relative keys such as "1717171717_<id>/merged.txt".
type Storage interface {
	Save(ctx context.Context, data []byte, path string) error
	Read(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Bucket is an object store that can hand out temporary public links.
// Speech providers that fetch audio by URI upload through it.
type Bucket interface {
	Upload(ctx context.Context, localPath, key string) error
	PresignGet(ctx context.Context, key string) (string, error)
}
