package narration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bharatvista/pkg/logging"
	"bharatvista/pkg/model"
	"bharatvista/pkg/store"
)

const historySaveTimeout = 5 * time.Second

// RecordHistory writes a store.NarrationRecord whenever the session completes a
// narration, and once more if it is closed part-way through one. Sessions that
// never started leave no record. The returned func stops recording.
func RecordHistory(s *Session, h store.HistoryStore) (stop func()) {
	r := &historyRecorder{store: h, monumentID: s.Monument().ID, logger: slog.With("component", "narration_history")}
	return s.Subscribe(r.observe)
}

type historyRecorder struct {
	store      store.HistoryStore
	monumentID string
	logger     *slog.Logger

	mu        sync.Mutex
	lastState PlayState
	started   bool
	closed    bool
}

func (r *historyRecorder) observe(snap Snapshot) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	var rec *store.NarrationRecord
	switch {
	case snap.Closed:
		r.closed = true
		switch {
		case snap.State == StateCompleted && r.lastState != StateCompleted:
			// The completion itself was superseded by the close.
			rec = r.record(snap, true)
		case r.started && snap.State != StateCompleted:
			rec = r.record(snap, false)
		}
	case snap.State == StatePlaying:
		r.started = true
	case snap.State == StateCompleted && r.lastState != StateCompleted:
		r.started = false
		rec = r.record(snap, true)
	}
	r.lastState = snap.State
	r.mu.Unlock()

	if rec != nil {
		r.save(rec)
	}
}

func (r *historyRecorder) record(snap Snapshot, completed bool) *store.NarrationRecord {
	return &store.NarrationRecord{
		MonumentID: r.monumentID,
		Language:   snap.Language,
		Mode:       string(snap.Mode),
		Completed:  completed,
		Progress:   snap.Progress,
		FinishedAt: time.Now(),
	}
}

func (r *historyRecorder) save(rec *store.NarrationRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), historySaveTimeout)
	defer cancel()
	if err := r.store.SaveNarration(ctx, rec); err != nil {
		r.logger.Warn("Failed to save narration history", "monument", rec.MonumentID, "error", err)
		return
	}

	summary := fmt.Sprintf("stopped at %.0f%%", rec.Progress)
	if rec.Completed {
		summary = "completed"
	}
	logging.LogEvent(&model.Event{
		Timestamp: rec.FinishedAt,
		Type:      "narration",
		Title:     rec.MonumentID,
		Summary:   fmt.Sprintf("%s (%s, %s)", summary, rec.Language, rec.Mode),
	})
}
