package sim

import (
	"sync"
	"time"
)

// climbSamples bounds the samples a ClimbRate keeps regardless of its window.
const climbSamples = 32

type altSample struct {
	at  time.Time
	alt float64
}

// ClimbRate estimates vertical speed as the least-squares slope of the
// altitude samples inside a trailing time window. It never allocates after
// construction.
type ClimbRate struct {
	mu      sync.Mutex
	window  time.Duration
	samples [climbSamples]altSample
	head    int // oldest sample
	n       int
}

// NewClimbRate returns an estimator over the given window (e.g. 3s).
func NewClimbRate(window time.Duration) *ClimbRate {
	return &ClimbRate{window: window}
}

// Update adds an altitude sample in meters and returns the climb rate in m/s.
// The two newest samples are always kept, so a slow fix rate still yields a
// rate.
func (c *ClimbRate) Update(now time.Time, alt float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.n == climbSamples {
		c.head = (c.head + 1) % climbSamples
		c.n--
	}
	c.samples[(c.head+c.n)%climbSamples] = altSample{at: now, alt: alt}
	c.n++

	cutoff := now.Add(-c.window)
	for c.n > 2 && c.samples[c.head].at.Before(cutoff) {
		c.head = (c.head + 1) % climbSamples
		c.n--
	}
	return c.slope()
}

func (c *ClimbRate) slope() float64 {
	if c.n < 2 {
		return 0
	}
	t0 := c.samples[c.head].at
	var st, sa float64
	for i := 0; i < c.n; i++ {
		s := c.samples[(c.head+i)%climbSamples]
		st += s.at.Sub(t0).Seconds()
		sa += s.alt
	}
	mt, ma := st/float64(c.n), sa/float64(c.n)

	var cov, varT float64
	for i := 0; i < c.n; i++ {
		s := c.samples[(c.head+i)%climbSamples]
		dt := s.at.Sub(t0).Seconds() - mt
		cov += dt * (s.alt - ma)
		varT += dt * dt
	}
	if varT == 0 {
		return 0
	}
	return cov / varT
}

// Reset drops every sample.
func (c *ClimbRate) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head, c.n = 0, 0
}
