package maintenance

import (
	"context"
	"log/slog"
	"time"

	"trackback/pkg/db"
	"trackback/pkg/store"
)

// Run executes the startup maintenance tasks: flights left open by an
// earlier process are closed, and ended flights older than retention are
// pruned. retention <= 0 keeps everything. It blocks until completion.
func Run(ctx context.Context, s store.FlightStore, d *db.DB, retention time.Duration) error {
	slog.Info("Starting database maintenance...")

	if err := closeOrphans(ctx, s); err != nil {
		slog.Error("Closing orphaned flights failed", "error", err)
	}

	if retention > 0 {
		n, err := d.PruneFlights(retention)
		if err != nil {
			slog.Error("Flight pruning failed", "error", err)
		} else {
			slog.Info("Flight pruning completed", "removed", n, "retention", retention)
		}
	}

	return nil
}

// closeOrphans ends flights that were still recording when the last
// process stopped. A new process always starts a new flight.
func closeOrphans(ctx context.Context, s store.FlightStore) error {
	n, err := s.CloseOpenFlights(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Warn("Closed flights left open by a previous run", "count", n)
	}
	return nil
}
