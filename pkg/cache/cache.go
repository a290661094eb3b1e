package cache

import "context"

// Cacher defines the caching interface.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// Nop is a Cacher that stores nothing and always misses.
// It is used when the database is unavailable and in tests.
type Nop struct{}

func (Nop) GetCache(ctx context.Context, key string) ([]byte, bool) {
	return nil, false
}

func (Nop) SetCache(ctx context.Context, key string, val []byte) error {
	return nil
}
