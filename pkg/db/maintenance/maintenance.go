package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bharatvista/pkg/db"
)

// Options controls what a maintenance run removes. Zero ages skip that task.
type Options struct {
	CacheMaxAge   time.Duration
	HistoryMaxAge time.Duration
	// ClipDir holds downloaded narration clips; files older than ClipMaxAge are deleted.
	ClipDir    string
	ClipMaxAge time.Duration
}

// Run executes all maintenance tasks. Failures are logged and do not stop startup.
// It blocks until completion.
func Run(ctx context.Context, d *db.DB, opts Options) error {
	slog.Info("Starting database maintenance...")

	if opts.CacheMaxAge > 0 {
		if n, err := d.PruneCache(opts.CacheMaxAge); err != nil {
			slog.Error("Cache pruning failed", "error", err)
		} else {
			slog.Info("Cache pruning completed", "removed", n)
		}
	}

	if opts.HistoryMaxAge > 0 {
		if n, err := d.PruneHistory(opts.HistoryMaxAge); err != nil {
			slog.Error("History pruning failed", "error", err)
		} else {
			slog.Info("History pruning completed", "removed", n)
		}
	}

	if opts.ClipDir != "" && opts.ClipMaxAge > 0 {
		n, err := pruneClips(ctx, opts.ClipDir, opts.ClipMaxAge)
		if err != nil {
			slog.Error("Clip pruning failed", "dir", opts.ClipDir, "error", err)
		} else if n > 0 {
			slog.Info("Clip pruning completed", "removed", n)
		}
	}

	return ctx.Err()
}

// pruneClips deletes regular files in dir not modified within maxAge.
func pruneClips(ctx context.Context, dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read clip dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("Failed to remove stale clip", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
