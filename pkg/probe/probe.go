// Package probe runs the startup checks: database, vehicle link and terrain.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 5 * time.Second

// CheckFunc returns nil when the checked component is usable.
type CheckFunc func(ctx context.Context) error

// Probe is one startup check. A failing critical probe stops the startup;
// other failures only degrade it (for example flat terrain instead of ETOPO1).
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes the probes in order, each with its own timeout.
func Run(ctx context.Context, probes []Probe, timeout time.Duration) []Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	results := make([]Result, len(probes))
	for i, p := range probes {
		start := time.Now()
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Check(checkCtx)
		cancel()

		results[i] = Result{Probe: p, Error: err, Duration: time.Since(start)}
	}
	return results
}

// Verify logs every result and joins the errors of failed critical probes.
func Verify(results []Result) error {
	var critical []error
	for _, r := range results {
		attrs := []any{"probe", r.Probe.Name, "took", r.Duration.Round(time.Millisecond)}
		switch {
		case r.Error == nil:
			slog.Info("Startup check passed", attrs...)
		case r.Probe.Critical:
			slog.Error("Startup check failed", append(attrs, "error", r.Error)...)
			critical = append(critical, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		default:
			slog.Warn("Startup check degraded", append(attrs, "error", r.Error)...)
		}
	}
	return errors.Join(critical...)
}
