package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trackback/pkg/config"
	"trackback/pkg/sim"
)

// mockSimClient implements sim.Client
type mockSimClient struct {
	tel   sim.Telemetry
	err   error
	state sim.State
	mu    sync.Mutex
}

func (m *mockSimClient) GetTelemetry(ctx context.Context) (sim.Telemetry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tel, m.err
}

func (m *mockSimClient) GetState() sim.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == "" {
		return sim.StateActive
	}
	return m.state
}

func (m *mockSimClient) SetState(s sim.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

func (m *mockSimClient) Close() error { return nil }

func (m *mockSimClient) SetTelemetry(t *sim.Telemetry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tel = *t
}

func fastProvider() config.Provider {
	cfg := config.DefaultConfig()
	cfg.Ticker.TelemetryLoop = config.Duration(10 * time.Millisecond)
	return config.NewProvider(cfg, nil)
}

func TestScheduler_JobExecution(t *testing.T) {
	mockSim := &mockSimClient{state: sim.StateActive}
	sched := NewScheduler(fastProvider(), mockSim, nil)

	var firedCount int32
	fired := make(chan struct{}, 10)

	job := NewDistanceJob("TestDist", 100, func(ctx context.Context, tel sim.Telemetry) {
		atomic.AddInt32(&firedCount, 1)
		fired <- struct{}{}
	})
	sched.AddJob(job)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sched.Start(ctx)

	// The first fix always fires.
	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Job should have fired once for initialization")
	}

	// Move < Threshold (~50m)
	mockSim.SetTelemetry(&sim.Telemetry{Latitude: 0.00045, Longitude: 0})
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&firedCount) > 1 {
		t.Error("Job fired when movement was small")
	}

	// Move > Threshold (~150m total)
	mockSim.SetTelemetry(&sim.Telemetry{Latitude: 0.00135, Longitude: 0})
	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Error("Job should have fired after movement")
	}
}

func TestJob_Concurrency(t *testing.T) {
	job := NewBaseJob("SlowJob")

	if !job.TryLock() {
		t.Fatal("Should lock when free")
	}
	if job.TryLock() {
		t.Fatal("Should fail lock when busy")
	}
	if !job.IsRunning() {
		t.Error("IsRunning should report the lock")
	}

	job.Unlock()

	if !job.TryLock() {
		t.Fatal("Should lock again after unlock")
	}
}

// mockSink implements TelemetrySink
type mockSink struct {
	mu             sync.Mutex
	updateCount    int
	stateUpdateCnt int
	lastState      sim.State
}

func (m *mockSink) Update(t *sim.Telemetry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCount++
}

func (m *mockSink) UpdateState(s sim.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateUpdateCnt++
	m.lastState = s
}

func (m *mockSink) getUpdateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateCount
}

func (m *mockSink) getLastState() sim.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastState
}

func TestScheduler_SkipsTelemetryWhenInactive(t *testing.T) {
	mockSim := &mockSimClient{state: sim.StateInactive}
	sink := &mockSink{}
	other := &mockSink{}
	sched := NewScheduler(fastProvider(), mockSim, sink, nil, other)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sched.Start(ctx)

	time.Sleep(50 * time.Millisecond)

	if cnt := sink.getUpdateCount(); cnt > 0 {
		t.Errorf("Telemetry was updated %d times, but should be 0 when inactive", cnt)
	}
	if s := sink.getLastState(); s != sim.StateInactive {
		t.Errorf("expected state %q to reach the sink, got %q", sim.StateInactive, s)
	}

	mockSim.SetState(sim.StateActive)
	time.Sleep(50 * time.Millisecond)

	if cnt := sink.getUpdateCount(); cnt == 0 {
		t.Error("Telemetry was never updated after switching to active")
	}
	if cnt := other.getUpdateCount(); cnt == 0 {
		t.Error("Second sink was never updated")
	}
}

func TestScheduler_ResetSession(t *testing.T) {
	sched := NewScheduler(fastProvider(), &mockSimClient{})
	dist := NewDistanceJob("Dist", 1000, func(ctx context.Context, tel sim.Telemetry) {})
	timed := NewTimeJob("Time", time.Hour, func(ctx context.Context, tel sim.Telemetry) {})
	sched.AddJob(dist)
	sched.AddJob(timed)

	if len(sched.Jobs()) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(sched.Jobs()))
	}

	tel := sim.Telemetry{Latitude: 1, Longitude: 1}
	dist.Run(context.Background(), &tel)
	if dist.ShouldFire(&tel) {
		t.Fatal("distance job should wait for movement")
	}

	sched.ResetSession(context.Background())
	if !dist.ShouldFire(&tel) {
		t.Error("distance job should fire after a session reset")
	}
}
