// Package passport tracks heritage check-ins: one stamp per monument, persisted as a
// JSON list under a single state key.
package passport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bharatvista/pkg/logging"
	"bharatvista/pkg/model"
	"bharatvista/pkg/store"
)

// DefaultStorageKey is the state key the check-in list is stored under.
const DefaultStorageKey = "bharat_vista_checkins"

var (
	// ErrDuplicateCheckin is returned when the monument already has a stamp.
	ErrDuplicateCheckin = errors.New("monument already checked in")
	// ErrEmptyMonumentID is returned for a blank monument id.
	ErrEmptyMonumentID = errors.New("monument id is empty")
)

// Tracker holds the check-in list in memory. Like a browser tab it reads the store
// once on Load and writes the whole list back on every check-in, so two trackers
// over one store overwrite each other's writes.
type Tracker struct {
	store  store.StateStore
	key    string
	now    func() time.Time
	logger *slog.Logger

	mu       sync.RWMutex
	checkins []model.Checkin
	index    map[string]struct{}
}

// New creates a tracker. An empty key selects DefaultStorageKey.
func New(st store.StateStore, key string) *Tracker {
	if key == "" {
		key = DefaultStorageKey
	}
	return &Tracker{
		store:  st,
		key:    key,
		now:    time.Now,
		logger: slog.With("component", "passport"),
		index:  make(map[string]struct{}),
	}
}

// Load reads the persisted list, replacing what the tracker holds. A missing or
// unreadable value yields an empty list.
func (t *Tracker) Load(ctx context.Context) {
	var list []model.Checkin
	if raw, ok := t.store.GetState(ctx, t.key); ok && strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			t.logger.Warn("Discarding unreadable check-in list", "key", t.key, "error", err)
			list = nil
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkins = t.checkins[:0]
	t.index = make(map[string]struct{}, len(list))
	for _, c := range list {
		if c.MonumentID == "" {
			continue
		}
		if _, dup := t.index[c.MonumentID]; dup {
			continue
		}
		t.index[c.MonumentID] = struct{}{}
		t.checkins = append(t.checkins, c)
	}
	t.logger.Debug("Check-ins loaded", "count", len(t.checkins))
}

// CheckIn stamps the monument and persists the list. A monument that is already
// stamped returns ErrDuplicateCheckin and the store is not written.
func (t *Tracker) CheckIn(ctx context.Context, monumentID string) (model.Checkin, error) {
	monumentID = strings.TrimSpace(monumentID)
	if monumentID == "" {
		return model.Checkin{}, ErrEmptyMonumentID
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[monumentID]; ok {
		return model.Checkin{}, fmt.Errorf("%w: %s", ErrDuplicateCheckin, monumentID)
	}

	c := model.Checkin{MonumentID: monumentID, Timestamp: t.now().UnixMilli()}
	next := append(append([]model.Checkin(nil), t.checkins...), c)
	raw, err := json.Marshal(next)
	if err != nil {
		return model.Checkin{}, err
	}
	if err := t.store.SetState(ctx, t.key, string(raw)); err != nil {
		return model.Checkin{}, fmt.Errorf("failed to persist check-in: %w", err)
	}
	t.checkins = next
	t.index[monumentID] = struct{}{}

	t.logger.Info("Checked in", "monument", monumentID, "total", len(next))
	logging.LogEvent(&model.Event{
		Timestamp: c.Time(),
		Type:      "checkin",
		Title:     monumentID,
		Summary:   fmt.Sprintf("%d stamps", len(next)),
	})
	return c, nil
}

// List returns the check-ins in the order they were made.
func (t *Tracker) List() []model.Checkin {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]model.Checkin(nil), t.checkins...)
}

// Has reports whether the monument has a stamp.
func (t *Tracker) Has(monumentID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.index[monumentID]
	return ok
}

// Count returns the number of stamps.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.checkins)
}
