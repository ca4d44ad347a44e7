package events

import (
	"sync"
	"time"
)

// Stamper hands out monotonically non-decreasing timestamps per stream.
// Wall clocks can step backwards; mouth-shape consumers rely on ordering.
type Stamper struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewStamper() *Stamper {
	return &Stamper{last: make(map[string]time.Time)}
}

// Next returns now, clamped so it never precedes the previous timestamp
// handed out for streamID.
func (s *Stamper) Next(streamID string, now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.last[streamID]; ok && now.Before(prev) {
		now = prev
	}
	s.last[streamID] = now
	return now
}

// Forget drops tracking state for a finished stream.
func (s *Stamper) Forget(streamID string) {
	s.mu.Lock()
	delete(s.last, streamID)
	s.mu.Unlock()
}
