package geo

import "sync"

// TrackBuffer keeps the last few fixes in a fixed ring and derives the
// ground track (bearing from the oldest to the newest sample).
type TrackBuffer struct {
	mu    sync.RWMutex
	ring  []Point
	start int
	n     int
}

// NewTrackBuffer creates a buffer holding windowSize samples (at least 2).
func NewTrackBuffer(windowSize int) *TrackBuffer {
	if windowSize < 2 {
		windowSize = 2
	}
	return &TrackBuffer{ring: make([]Point, windowSize)}
}

// Push records p and returns the current ground track in degrees.
// With fewer than 2 samples it returns defaultHeading.
func (b *TrackBuffer) Push(p Point, defaultHeading float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.ring)
	if b.n < size {
		b.ring[(b.start+b.n)%size] = p
		b.n++
	} else {
		b.ring[b.start] = p
		b.start = (b.start + 1) % size
	}

	if b.n < 2 {
		return defaultHeading
	}
	oldest := b.ring[b.start]
	newest := b.ring[(b.start+b.n-1)%size]
	if oldest == newest {
		return defaultHeading
	}
	return Bearing(oldest, newest)
}

// Len returns the number of buffered samples.
func (b *TrackBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.n
}

// Reset clears the buffer history.
func (b *TrackBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start, b.n = 0, 0
}
