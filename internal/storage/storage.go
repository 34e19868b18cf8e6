// Package storage holds image bytes under flat keys such as "12_3.jpg".
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrNotFound = errors.New("object not found")
	ErrExists   = errors.New("object already exists")
)

type Object struct {
	Key         string
	Size        int64
	ModTime     time.Time
	ContentType string
}

// Store is the blob backend behind the image gateway.
type Store interface {
	// Create writes data under key and fails with ErrExists rather than overwrite.
	Create(ctx context.Context, key string, data []byte, contentType string) (Object, error)
	Stat(ctx context.Context, key string) (Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, Object, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Locate returns the first key in candidates that exists.
func Locate(ctx context.Context, s Store, candidates ...string) (Object, error) {
	for _, key := range candidates {
		obj, err := s.Stat(ctx, key)
		if err == nil {
			return obj, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Object{}, fmt.Errorf("stat %s: %w", key, err)
		}
	}
	return Object{}, ErrNotFound
}
