package session

import (
	"context"
)

// Repository stores per-instance session values. Nothing written here is
// visible to other instances.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
