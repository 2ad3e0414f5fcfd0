package port

import "context"

type KeyValueStore interface {
	// Get returns the raw value for key, found=false if it was never written
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set writes a single key
	Set(ctx context.Context, key string, value []byte) error

	// SetMulti writes all entries atomically: either every key is updated or none is
	SetMulti(ctx context.Context, entries map[string][]byte) error

	// DeletePrefix removes every key starting with prefix
	DeletePrefix(ctx context.Context, prefix string) error
}
