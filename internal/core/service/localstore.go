package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rl1809/labstock/internal/port"
)

// DefaultKeyPrefix namespaces every persisted key by schema version.
const DefaultKeyPrefix = "labstock:v3:"

const (
	keyItems        = "items"
	keyTransactions = "transactions"
	keySuppliers    = "suppliers"
	keyUsers        = "users"
	keyEndpointURL  = "endpoint_url"
	keyShareURL     = "share_url"
	keyAutoSync     = "auto_sync"
)

// LocalStore is the typed layer over a key-value adapter. Each collection
// and configuration scalar lives under its own key.
type LocalStore struct {
	kv     port.KeyValueStore
	prefix string
}

func NewLocalStore(kv port.KeyValueStore, prefix string) *LocalStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &LocalStore{kv: kv, prefix: prefix}
}

func (s *LocalStore) Key(name string) string {
	return s.prefix + name
}

// load returns the stored value for name, or fallback() if nothing was
// ever written under it.
func load[T any](ctx context.Context, s *LocalStore, name string, fallback func() T) (T, error) {
	raw, found, err := s.kv.Get(ctx, s.Key(name))
	if err != nil {
		var zero T
		return zero, fmt.Errorf("load %s: %w", name, err)
	}
	if !found {
		return fallback(), nil
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		var zero T
		return zero, fmt.Errorf("decode %s: %w", name, err)
	}
	return value, nil
}

func save[T any](ctx context.Context, s *LocalStore, name string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := s.kv.Set(ctx, s.Key(name), raw); err != nil {
		return fmt.Errorf("save %s: %w", s.Key(name), err)
	}
	return nil
}

// saveAll persists several keys as one atomic write. A single key goes
// through save.
func (s *LocalStore) saveAll(ctx context.Context, values map[string]any) error {
	if len(values) == 1 {
		for name, value := range values {
			return save(ctx, s, name, value)
		}
	}

	entries := make(map[string][]byte, len(values))
	for name, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		entries[s.Key(name)] = raw
	}
	if err := s.kv.SetMulti(ctx, entries); err != nil {
		return fmt.Errorf("save %d keys: %w", len(entries), err)
	}
	return nil
}

func (s *LocalStore) clear(ctx context.Context) error {
	if err := s.kv.DeletePrefix(ctx, s.prefix); err != nil {
		return fmt.Errorf("clear %s: %w", s.prefix, err)
	}
	return nil
}
