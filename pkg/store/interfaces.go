package store

import (
	"context"
	"time"
)

// CacheStore handles generic key-value caching.
type CacheStore interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	HasCache(ctx context.Context, key string) (bool, error)
	SetCache(ctx context.Context, key string, val []byte) error
	ListCacheKeys(ctx context.Context, prefix string) ([]string, error)
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

// NarrationRecord is one finished (completed or abandoned) narration span.
type NarrationRecord struct {
	MonumentID string    `json:"monument_id"`
	Language   string    `json:"language"`
	Mode       string    `json:"mode"`
	Completed  bool      `json:"completed"`
	Progress   float64   `json:"progress"`
	FinishedAt time.Time `json:"finished_at"`
}

// HistoryStore records what has been listened to.
type HistoryStore interface {
	SaveNarration(ctx context.Context, rec *NarrationRecord) error
	// RecentNarrations returns records finished at or after since, newest first.
	RecentNarrations(ctx context.Context, since time.Time, limit int) ([]NarrationRecord, error)
}
