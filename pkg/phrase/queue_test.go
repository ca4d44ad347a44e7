package phrase

import (
	"testing"
	"time"

	"github.com/harunnryd/kuchi/pkg/viseme"
)

func entry(text string) *Entry {
	return &Entry{
		ID:       text,
		Text:     text,
		Timeline: viseme.GenerateTimeline(text, viseme.DefaultConfig()),
	}
}

func TestQueueSingleSpeaking(t *testing.T) {
	q := NewQueue(5)
	q.Enqueue(entry("one"))
	q.Enqueue(entry("two"))

	now := time.Unix(100, 0)
	e, err := q.StartNext(now)
	if err != nil || e == nil || e.Text != "one" {
		t.Fatalf("StartNext = %+v, %v", e, err)
	}
	if q.SpeakingCount() != 1 {
		t.Fatalf("speaking count = %d", q.SpeakingCount())
	}

	if _, err := q.StartNext(now); err != ErrAlreadySpeaking {
		t.Fatalf("expected ErrAlreadySpeaking, got %v", err)
	}

	done := q.CompleteCurrent(now.Add(time.Second))
	if done == nil || done.Text != "one" {
		t.Fatalf("CompleteCurrent = %+v", done)
	}
	if q.SpeakingCount() != 0 {
		t.Fatalf("speaking count after complete = %d", q.SpeakingCount())
	}

	e, err = q.StartNext(now.Add(2 * time.Second))
	if err != nil || e == nil || e.Text != "two" {
		t.Fatalf("second StartNext = %+v, %v", e, err)
	}
}

func TestQueueDropsTimelineKeepsStats(t *testing.T) {
	q := NewQueue(2)
	now := time.Unix(100, 0)
	for _, text := range []string{"alpha one.", "beta two.", "gamma three."} {
		q.Enqueue(entry(text))
		if _, err := q.StartNext(now); err != nil {
			t.Fatalf("start: %v", err)
		}
		done := q.CompleteCurrent(now)
		if len(done.Timeline.Phonemes) != 0 {
			t.Fatalf("timeline retained after completion")
		}
	}

	hist := q.History()
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want bounded at 2", len(hist))
	}
	if hist[0].Text != "beta two." || hist[1].Text != "gamma three." {
		t.Fatalf("history = %+v", hist)
	}
	if hist[1].DurationMS == 0 {
		t.Fatalf("stats lost duration")
	}
}

func TestQueueExhaustedAndClear(t *testing.T) {
	q := NewQueue(5)
	if !q.Exhausted() {
		t.Fatalf("empty queue must be exhausted")
	}
	q.Enqueue(entry("one"))
	if q.Exhausted() {
		t.Fatalf("queue with pending entry is not exhausted")
	}
	q.Clear()
	if !q.Exhausted() || q.PendingLen() != 0 {
		t.Fatalf("clear left entries behind")
	}
}
