package storage

import (
	"context"
	"io"
	"time"
)

// Reporter receives upload progress as a percentage.
type Reporter interface {
	Report(percent int)
}

// Provider stages custom WPK files where agents can download them.
type Provider interface {
	// CheckBucket makes sure the staging bucket exists.
	CheckBucket(ctx context.Context) error

	// Upload stores size bytes read from r under key. progress may be nil.
	Upload(ctx context.Context, key string, r io.Reader, size int64, progress Reporter) error

	// PresignedURL returns a temporary download link for key.
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
