package core

import (
	"context"

	"trackback/pkg/sim"
)

// TelemetrySink receives every fix the scheduler reads, before any job runs.
type TelemetrySink interface {
	Update(t *sim.Telemetry)
	UpdateState(s sim.State)
}

// SessionResettable is implemented by jobs that remember where or when they
// last fired. The navigator resets them with the recorder.
type SessionResettable interface {
	ResetSession(ctx context.Context)
}
