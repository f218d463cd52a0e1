package core

import (
	"context"
	"log/slog"
	"time"

	"trackback/pkg/model"
	"trackback/pkg/store"
)

// PathPersistenceJob periodically saves the outbound track of the current
// flight, so a crash loses at most one interval of recording.
type PathPersistenceJob struct {
	st       store.FlightStore
	nav      *Navigator
	interval time.Duration

	lastSaved uint64
}

// NewPathPersistenceJob creates a new persistence job.
func NewPathPersistenceJob(st store.FlightStore, nav *Navigator, interval time.Duration) *PathPersistenceJob {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PathPersistenceJob{
		st:       st,
		nav:      nav,
		interval: interval,
	}
}

// Start begins the persistence loop.
func (j *PathPersistenceJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)

	slog.Info("Persistence: Path persistence loop started", "interval", j.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.checkAndSave(ctx)
			}
		}
	}()
}

func (j *PathPersistenceJob) checkAndSave(ctx context.Context) {
	snap := j.nav.Snapshot()

	// Only the outbound track is saved here; the return snapshots are
	// written when the return is committed.
	if snap.Mode != ModeRecording || snap.Flight == nil || snap.Flight.ID == "" {
		return
	}

	// Dirty Check
	if snap.Version == j.lastSaved {
		return
	}

	if err := j.st.SavePath(ctx, snap.Flight.ID, model.PathOutbound, snap.Path); err != nil {
		slog.Error("Persistence: Failed to save path", "error", err)
		return
	}
	j.lastSaved = snap.Version
	slog.Debug("Persistence: Path saved", "points", len(snap.Path), "version", snap.Version)
}
