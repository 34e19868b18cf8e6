package service

import (
	"fmt"
	"os"

	"imagevault/internal/media/sniffer"
)

// Fallback is the placeholder served with a 404 when an image is missing.
type Fallback struct {
	Data        []byte
	ContentType string
}

// LoadFallback reads the placeholder image. An empty path disables it.
func LoadFallback(path string) (*Fallback, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fallback image: %w", err)
	}
	detected, err := sniffer.DetectHead(data)
	if err != nil {
		return nil, fmt.Errorf("fallback image %s: %w", path, err)
	}
	return &Fallback{Data: data, ContentType: detected.MIME}, nil
}
