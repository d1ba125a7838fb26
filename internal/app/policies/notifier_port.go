package policies

import (
	"context"
	"io"
)

// Notifier delivers a templated message over one channel (email, SMS).
type Notifier interface {
	Send(ctx context.Context, to string, template string, data any) error
}

// ImageStore uploads listing photos and returns their public URL.
type ImageStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (publicURL string, err error)
}
