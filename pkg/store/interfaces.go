package store

import (
	"context"
	"time"
)

// Conversion represents one text-to-speech run recorded in history.
type Conversion struct {
	RequestID string
	VoiceID   string
	Model     string
	Chars     int
	Format    string
	FilePath  string
	Status    string
	CreatedAt time.Time
}

// Conversion status values.
const (
	StatusOK       = "ok"
	StatusFallback = "fallback"
	StatusMissing  = "missing"
)

// HistoryStore handles conversion history persistence.
type HistoryStore interface {
	SaveConversion(ctx context.Context, rec *Conversion) error
	RecentConversions(ctx context.Context, limit int) ([]*Conversion, error)
	CountConversions(ctx context.Context) (int, error)
}

// CacheStore handles generic key-value caching.
type CacheStore interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	HasCache(ctx context.Context, key string) (bool, error)
	SetCache(ctx context.Context, key string, val []byte) error
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}
