package phrase

import (
	"errors"
	"sync"
	"time"

	"github.com/harunnryd/kuchi/pkg/viseme"
)

// Status is the playback state of a queued phrase.
type Status int

const (
	StatusPending Status = iota
	StatusSpeaking
	StatusComplete
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSpeaking:
		return "speaking"
	case StatusComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Entry is one queued phrase with its eagerly planned timeline.
type Entry struct {
	ID        string
	Text      string
	Timeline  viseme.Timeline
	Status    Status
	StartedAt time.Time
}

// Stats is what survives of a phrase after its timeline is dropped.
type Stats struct {
	Text       string
	DurationMS int
	SpokenAt   time.Time
}

// ErrAlreadySpeaking reports a violated queue invariant: a second entry was
// about to enter Speaking while one was still active.
var ErrAlreadySpeaking = errors.New("phrase queue already has a speaking entry")

// Queue holds phrases in recognition order. At most one entry is Speaking
// at any instant; the playback scheduler is the queue's sole mutator once
// playback starts.
type Queue struct {
	mu         sync.Mutex
	entries    []*Entry
	history    []Stats
	maxHistory int
}

// NewQueue creates a queue keeping at most maxHistory completed-phrase
// stats.
func NewQueue(maxHistory int) *Queue {
	if maxHistory <= 0 {
		maxHistory = 10
	}
	return &Queue{maxHistory: maxHistory}
}

// Enqueue appends a pending entry.
func (q *Queue) Enqueue(e *Entry) {
	q.mu.Lock()
	e.Status = StatusPending
	q.entries = append(q.entries, e)
	q.mu.Unlock()
}

// Current returns the speaking entry, or nil.
func (q *Queue) Current() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.Status == StatusSpeaking {
			return e
		}
	}
	return nil
}

// StartNext marks the oldest pending entry Speaking and stamps its start
// time. It refuses to create a second speaking entry.
func (q *Queue) StartNext(now time.Time) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var next *Entry
	for _, e := range q.entries {
		if e.Status == StatusSpeaking {
			return nil, ErrAlreadySpeaking
		}
		if next == nil && e.Status == StatusPending {
			next = e
		}
	}
	if next == nil {
		return nil, nil
	}
	next.Status = StatusSpeaking
	next.StartedAt = now
	return next, nil
}

// CompleteCurrent marks the speaking entry Complete, drops its timeline,
// and records summary stats in the bounded history.
func (q *Queue) CompleteCurrent(now time.Time) *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.Status != StatusSpeaking {
			continue
		}
		e.Status = StatusComplete
		q.history = append(q.history, Stats{
			Text:       e.Text,
			DurationMS: e.Timeline.TotalMS,
			SpokenAt:   e.StartedAt,
		})
		if len(q.history) > q.maxHistory {
			q.history = q.history[len(q.history)-q.maxHistory:]
		}
		e.Timeline = viseme.Timeline{SourceText: e.Timeline.SourceText}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		return e
	}
	return nil
}

// DropCurrent discards the speaking entry without recording stats. Used to
// recover from invariant violations without crashing the session.
func (q *Queue) DropCurrent() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.Status == StatusSpeaking {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

// PendingLen returns the number of phrases waiting to be spoken.
func (q *Queue) PendingLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		if e.Status == StatusPending {
			n++
		}
	}
	return n
}

// SpeakingCount returns how many entries are Speaking; 0 or 1 in correct
// operation.
func (q *Queue) SpeakingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		if e.Status == StatusSpeaking {
			n++
		}
	}
	return n
}

// Exhausted reports whether nothing is pending or speaking.
func (q *Queue) Exhausted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.Status != StatusComplete {
			return false
		}
	}
	return true
}

// History returns a copy of the completed-phrase stats.
func (q *Queue) History() []Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Stats, len(q.history))
	copy(out, q.history)
	return out
}

// Clear drops every entry. History is preserved.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.entries = nil
	q.mu.Unlock()
}
