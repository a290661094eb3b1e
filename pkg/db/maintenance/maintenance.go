package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"audiopages/pkg/db"
	"audiopages/pkg/store"
)

// reconcileLimit bounds how many history rows a single startup pass inspects.
const reconcileLimit = 500

// Run executes all maintenance tasks: cache pruning and history reconciliation.
// It blocks until completion. A pruning failure is logged but not returned;
// stale cache rows only waste space.
func Run(ctx context.Context, s store.Store, d *db.DB, cacheTTL time.Duration) error {
	slog.Info("Starting database maintenance...")

	if err := d.PruneCache(cacheTTL); err != nil {
		slog.Error("Cache pruning failed", "error", err)
	} else {
		slog.Info("Cache pruning completed")
	}

	if err := reconcileHistory(ctx, s); err != nil {
		return fmt.Errorf("history reconciliation: %w", err)
	}
	slog.Info("History reconciliation completed")
	return nil
}

// reconcileHistory marks conversion records whose output file has disappeared
// from disk, so the history listing can flag them.
func reconcileHistory(ctx context.Context, s store.Store) error {
	records, err := s.RecentConversions(ctx, reconcileLimit)
	if err != nil {
		return err
	}

	marked := 0
	for _, rec := range records {
		if rec.Status == store.StatusMissing || rec.FilePath == "" {
			continue
		}
		if _, err := os.Stat(rec.FilePath); err == nil || !os.IsNotExist(err) {
			continue
		}
		rec.Status = store.StatusMissing
		if err := s.SaveConversion(ctx, rec); err != nil {
			return fmt.Errorf("failed to mark conversion %s: %w", rec.RequestID, err)
		}
		marked++
	}

	if marked > 0 {
		slog.Info("Marked conversions with missing files", "count", marked)
	}

	return nil
}
