package core

import (
	"context"
	"log/slog"
	"time"

	"trackback/pkg/config"
	"trackback/pkg/sim"
)

// Scheduler manages the central heartbeat and scheduled jobs.
type Scheduler struct {
	cfg   config.Provider
	sim   sim.Client
	sinks []TelemetrySink
	jobs  []Job
}

// NewScheduler creates a new Scheduler. Nil sinks are skipped.
func NewScheduler(cfg config.Provider, simClient sim.Client, sinks ...TelemetrySink) *Scheduler {
	s := &Scheduler{
		cfg: cfg,
		sim: simClient,
	}
	for _, sink := range sinks {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
	return s
}

// AddJob registers a job.
func (s *Scheduler) AddJob(j Job) {
	s.jobs = append(s.jobs, j)
}

// Jobs returns the registered jobs in evaluation order.
func (s *Scheduler) Jobs() []Job {
	return s.jobs
}

// ResetSession resets every job that keeps per-flight state.
func (s *Scheduler) ResetSession(ctx context.Context) {
	for _, j := range s.jobs {
		if r, ok := j.(SessionResettable); ok {
			r.ResetSession(ctx)
		}
	}
}

// Start runs the main loop. It blocks until context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	interval := s.cfg.AppConfig().Ticker.TelemetryLoop.Std()
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Scheduler started", "interval", interval, "jobs", len(s.jobs))

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	simState := s.sim.GetState()
	for _, sink := range s.sinks {
		sink.UpdateState(simState)
	}

	// No recording without live fixes
	if !simState.Usable() {
		return
	}

	tel, err := s.sim.GetTelemetry(ctx)
	if err != nil {
		slog.Debug("failed to read telemetry", "error", err)
		return
	}

	for _, sink := range s.sinks {
		sink.Update(&tel)
	}

	for _, job := range s.jobs {
		if job.ShouldFire(&tel) {
			// Each run gets its own copy; the next tick reuses tel.
			t := tel
			go job.Run(ctx, &t)
		}
	}
}
