package sim

import (
	"math"
	"testing"
	"time"
)

func TestClimbRate(t *testing.T) {
	c := NewClimbRate(5 * time.Second)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	at := func(s float64) time.Time { return start.Add(time.Duration(s * float64(time.Second))) }

	steps := []struct {
		t, alt, want float64
	}{
		{0, 300, 0},  // single sample
		{6, 330, 5},  // 30m in 6s
		{7, 327, -3}, // sample at 0 left the window
		{67, 327, 0}, // only the two newest survive a gap
		{68, 329, 2},
		{69, 333, 3}, // least squares over 327, 329, 333
	}
	for _, s := range steps {
		if got := c.Update(at(s.t), s.alt); math.Abs(got-s.want) > 1e-9 {
			t.Errorf("Update(t=%v, alt=%v) = %.4f, want %.4f", s.t, s.alt, got, s.want)
		}
	}

	c.Reset()
	if got := c.Update(at(70), 500); got != 0 {
		t.Errorf("expected 0 after reset, got %.4f", got)
	}
}

func TestClimbRate_SameTimestamp(t *testing.T) {
	c := NewClimbRate(3 * time.Second)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.Update(now, 100)
	if got := c.Update(now, 110); got != 0 {
		t.Errorf("expected 0 for zero elapsed time, got %.4f", got)
	}
}

func TestClimbRate_BoundedSamples(t *testing.T) {
	c := NewClimbRate(time.Hour)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var got float64
	for i := 0; i < 3*climbSamples; i++ {
		got = c.Update(start.Add(time.Duration(i)*time.Second), float64(2*i))
	}
	if c.n != climbSamples {
		t.Errorf("expected %d samples kept, got %d", climbSamples, c.n)
	}
	if math.Abs(got-2) > 1e-9 {
		t.Errorf("expected 2 m/s, got %.4f", got)
	}
}
