package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"trackback/pkg/config"
	"trackback/pkg/model"
	"trackback/pkg/sim"
)

// NewRecordingJob records an outbound fix every recordDistance meters.
func NewRecordingJob(nav *Navigator, recordDistance float64) *DistanceJob {
	return NewDistanceJob("Recording", recordDistance, func(ctx context.Context, t sim.Telemetry) {
		nav.Record(ctx, &t)
	})
}

// NewGuidanceJob checks waypoint progress every interval.
func NewGuidanceJob(nav *Navigator, interval time.Duration) *TimeJob {
	return NewTimeJob("Guidance", interval, func(ctx context.Context, t sim.Telemetry) {
		nav.Advance(ctx, &t)
	})
}

// AutoReturnJob commits the return once a flight has been recording for
// longer than the configured limit. A zero limit disables it.
type AutoReturnJob struct {
	BaseJob
	nav  *Navigator
	prov config.Provider
	now  func() time.Time
}

func NewAutoReturnJob(nav *Navigator, prov config.Provider) *AutoReturnJob {
	return &AutoReturnJob{
		BaseJob: NewBaseJob("Auto Return"),
		nav:     nav,
		prov:    prov,
		now:     time.Now,
	}
}

func (j *AutoReturnJob) ShouldFire(t *sim.Telemetry) bool {
	if j.IsRunning() {
		return false
	}

	limit := j.prov.AutoReturnAfter(context.Background())
	if limit <= 0 || j.nav.Mode() != ModeRecording {
		return false
	}

	f := j.nav.Flight()
	return f != nil && j.now().Sub(f.StartedAt) >= limit
}

func (j *AutoReturnJob) Run(ctx context.Context, t *sim.Telemetry) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	plan, err := j.nav.commitReturn(ctx, model.EventAutoReturn, "Automatic return")
	if errors.Is(err, ErrNotRecording) {
		// Committed by hand in the meantime
		return
	}
	slog.Info("AutoReturnJob: Return committed", "kind", plan.Kind, "limit", j.prov.AutoReturnAfter(ctx))
}
