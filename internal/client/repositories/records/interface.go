package records

import (
	"context"
	"time"
)

// Change is one row of the change log.
type Change struct {
	ID        int64
	Key       string
	Origin    string
	ChangedAt time.Time
}

// Writer mutates records. Inside Batch it is bound to the open transaction.
type Writer interface {
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type Repository interface {
	Writer
	// Get returns (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Batch applies every write made through w atomically.
	Batch(ctx context.Context, fn func(ctx context.Context, w Writer) error) error
	// Origin identifies the instance the writes are attributed to.
	Origin() string
}
