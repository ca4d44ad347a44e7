package sched

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/kuchi/pkg/phrase"
	"github.com/harunnryd/kuchi/pkg/viseme"
)

// Session owns one response's phrase queue and mouth state. A session ends
// only when both completion flags are set and the queue is exhausted: the
// text stream may still be producing phrases after audio finished, and vice
// versa.
type Session struct {
	mu sync.Mutex

	id        string
	queue     *phrase.Queue
	current   viseme.Shape
	target    viseme.Shape
	startedAt time.Time

	textComplete bool
	audioDrained bool
	gapUntil     time.Time
}

// NewSession creates a session around its own queue.
func NewSession(maxHistory int, startedAt time.Time) *Session {
	return &Session{
		id:        uuid.NewString(),
		queue:     phrase.NewQueue(maxHistory),
		startedAt: startedAt,
	}
}

// ID returns the session identifier used in events and artifacts.
func (s *Session) ID() string { return s.id }

// Queue returns the phrase queue owned by this session.
func (s *Session) Queue() *phrase.Queue { return s.queue }

// MarkTextComplete records that the text stream finished.
func (s *Session) MarkTextComplete() {
	s.mu.Lock()
	s.textComplete = true
	s.mu.Unlock()
}

// MarkAudioDrained records that the synthesis engine finished.
func (s *Session) MarkAudioDrained() {
	s.mu.Lock()
	s.audioDrained = true
	s.mu.Unlock()
}

// Finished reports whether both completion flags are set and no phrase is
// pending or speaking.
func (s *Session) Finished() bool {
	s.mu.Lock()
	text, audio := s.textComplete, s.audioDrained
	s.mu.Unlock()
	return text && audio && s.queue.Exhausted()
}

// Shape returns the current smoothed mouth shape.
func (s *Session) Shape() viseme.Shape {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
