package core

import (
	"context"
	"sync/atomic"
	"time"

	"trackback/pkg/geo"
	"trackback/pkg/sim"
)

// Job is evaluated by the scheduler on every fix.
type Job interface {
	Name() string
	ShouldFire(t *sim.Telemetry) bool
	Run(ctx context.Context, t *sim.Telemetry)
}

// BaseJob guards a job against overlapping runs and counts completed ones.
type BaseJob struct {
	name    string
	running atomic.Bool
	runs    atomic.Uint64
}

func NewBaseJob(name string) BaseJob {
	return BaseJob{name: name}
}

func (b *BaseJob) Name() string {
	return b.name
}

// TryLock marks the job running. It fails if a run is in progress.
func (b *BaseJob) TryLock() bool {
	return b.running.CompareAndSwap(false, true)
}

// Unlock ends a run started with TryLock.
func (b *BaseJob) Unlock() {
	b.runs.Add(1)
	b.running.Store(false)
}

func (b *BaseJob) IsRunning() bool {
	return b.running.Load()
}

// Runs returns the number of completed runs.
func (b *BaseJob) Runs() uint64 {
	return b.runs.Load()
}

// DistanceJob fires once the vehicle is threshold meters (track distance,
// climbs included) away from where it last ran.
type DistanceJob struct {
	BaseJob
	last      atomic.Pointer[geo.Position]
	threshold float64
	action    func(context.Context, sim.Telemetry)
}

func NewDistanceJob(name string, thresholdMeters float64, action func(context.Context, sim.Telemetry)) *DistanceJob {
	return &DistanceJob{
		BaseJob:   NewBaseJob(name),
		threshold: thresholdMeters,
		action:    action,
	}
}

func (j *DistanceJob) ShouldFire(t *sim.Telemetry) bool {
	if j.IsRunning() {
		return false
	}
	last := j.last.Load()
	return last == nil || geo.TrackDistance(*last, t.Position()) >= j.threshold
}

func (j *DistanceJob) Run(ctx context.Context, t *sim.Telemetry) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	pos := t.Position()
	j.last.Store(&pos)
	j.action(ctx, *t)
}

// ResetSession makes the next fix fire immediately.
func (j *DistanceJob) ResetSession(ctx context.Context) {
	j.last.Store(nil)
}

// TimeJob fires once interval has passed since it last ran.
type TimeJob struct {
	BaseJob
	last     atomic.Int64 // unix nanos, 0 before the first run
	interval time.Duration
	action   func(context.Context, sim.Telemetry)
	now      func() time.Time
}

func NewTimeJob(name string, interval time.Duration, action func(context.Context, sim.Telemetry)) *TimeJob {
	return &TimeJob{
		BaseJob:  NewBaseJob(name),
		interval: interval,
		action:   action,
		now:      time.Now,
	}
}

func (j *TimeJob) ShouldFire(t *sim.Telemetry) bool {
	if j.IsRunning() {
		return false
	}
	last := j.last.Load()
	return last == 0 || j.now().Sub(time.Unix(0, last)) >= j.interval
}

func (j *TimeJob) Run(ctx context.Context, t *sim.Telemetry) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	j.last.Store(j.now().UnixNano())
	j.action(ctx, *t)
}

// ResetSession makes the next fix fire immediately.
func (j *TimeJob) ResetSession(ctx context.Context) {
	j.last.Store(0)
}
