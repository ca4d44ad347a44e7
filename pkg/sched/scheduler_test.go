package sched

import (
	"math"
	"testing"
	"time"

	"github.com/harunnryd/kuchi/pkg/events"
	"github.com/harunnryd/kuchi/pkg/phrase"
	"github.com/harunnryd/kuchi/pkg/viseme"
)

type eventLog struct {
	all []events.Event
}

func (l *eventLog) sink(ev events.Event) { l.all = append(l.all, ev) }

func (l *eventLog) kinds(k events.Kind) []events.Event {
	var out []events.Event
	for _, ev := range l.all {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

func openPhrase(text string, totalMS int) *phrase.Entry {
	return &phrase.Entry{
		ID:   text,
		Text: text,
		Timeline: viseme.Timeline{
			Phonemes: []viseme.Entry{
				{Class: viseme.ClassOpen, StartMS: 0, DurationMS: totalMS, Intensity: 1.0},
			},
			TotalMS:    totalMS,
			SourceText: text,
		},
	}
}

func newTestScheduler(t *testing.T, log *eventLog, onDone func(string)) *Scheduler {
	t.Helper()
	cfg := Config{
		TickInterval:   33 * time.Millisecond,
		Smoothing:      0.3,
		InterPhraseGap: 150 * time.Millisecond,
		MaxHistory:     10,
	}
	s, err := NewScheduler(cfg, log.sink, onDone, nil, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func TestSmoothingConvergence(t *testing.T) {
	log := &eventLog{}
	s := newTestScheduler(t, log, nil)

	sess := NewSession(10, time.Unix(100, 0))
	sess.Queue().Enqueue(openPhrase("ah", 100000))
	s.BeginSession(sess)

	base := time.Unix(100, 0)
	prev := 0.0
	for n := 1; n <= 10; n++ {
		s.Advance(base.Add(time.Duration(n) * 33 * time.Millisecond))
		got := sess.Shape().Open
		want := 1 - math.Pow(0.7, float64(n))
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("tick %d: open = %v, want %v", n, got, want)
		}
		if got <= prev || got > 1.0 {
			t.Fatalf("tick %d: open = %v not strictly increasing within bounds", n, got)
		}
		prev = got
	}
}

func TestPhraseSequencingWithGap(t *testing.T) {
	log := &eventLog{}
	s := newTestScheduler(t, log, nil)

	sess := NewSession(10, time.Unix(100, 0))
	sess.Queue().Enqueue(openPhrase("first", 100))
	sess.Queue().Enqueue(openPhrase("second", 100))
	s.BeginSession(sess)

	base := time.Unix(100, 0)
	// Tick 0 starts the first phrase.
	s.Advance(base)
	if sess.Queue().SpeakingCount() != 1 {
		t.Fatalf("first phrase not speaking")
	}
	// 100 ms later the phrase is exhausted.
	s.Advance(base.Add(100 * time.Millisecond))
	if got := len(log.kinds(events.KindPhraseComplete)); got != 1 {
		t.Fatalf("phrase_complete count = %d", got)
	}
	// Inside the inter-phrase gap nothing may start.
	s.Advance(base.Add(200 * time.Millisecond))
	if sess.Queue().SpeakingCount() != 0 {
		t.Fatalf("phrase started during gap")
	}
	// After the gap the second phrase starts.
	s.Advance(base.Add(260 * time.Millisecond))
	speaking := log.kinds(events.KindPhraseSpeaking)
	if len(speaking) != 2 || speaking[1].Text != "second" {
		t.Fatalf("phrase_speaking events = %+v", speaking)
	}
}

func TestQueueExclusivityEveryTick(t *testing.T) {
	log := &eventLog{}
	s := newTestScheduler(t, log, nil)

	sess := NewSession(10, time.Unix(100, 0))
	for _, text := range []string{"a", "b", "c", "d"} {
		sess.Queue().Enqueue(openPhrase(text, 60))
	}
	s.BeginSession(sess)

	base := time.Unix(100, 0)
	for n := 0; n < 60; n++ {
		s.Advance(base.Add(time.Duration(n) * 33 * time.Millisecond))
		if c := sess.Queue().SpeakingCount(); c > 1 {
			t.Fatalf("tick %d: %d entries speaking", n, c)
		}
	}
}

func TestSessionEndsOnlyWhenBothFlagsSet(t *testing.T) {
	log := &eventLog{}
	var done []string
	s := newTestScheduler(t, log, func(id string) { done = append(done, id) })

	sess := NewSession(10, time.Unix(100, 0))
	sess.Queue().Enqueue(openPhrase("only", 60))
	s.BeginSession(sess)

	base := time.Unix(100, 0)
	s.Advance(base)
	s.Advance(base.Add(70 * time.Millisecond))
	// Queue exhausted but neither flag set.
	s.Advance(base.Add(300 * time.Millisecond))
	if len(done) != 0 {
		t.Fatalf("session ended before completion flags")
	}

	sess.MarkTextComplete()
	s.Advance(base.Add(350 * time.Millisecond))
	if len(done) != 0 {
		t.Fatalf("session ended with audio not drained")
	}

	sess.MarkAudioDrained()
	s.Advance(base.Add(400 * time.Millisecond))
	if len(done) != 1 || done[0] != sess.ID() {
		t.Fatalf("onDone calls = %v", done)
	}

	// Later ticks must not re-finish the session.
	s.Advance(base.Add(500 * time.Millisecond))
	if len(done) != 1 {
		t.Fatalf("session finished twice")
	}
}

func TestMouthUpdateEveryTickAndMonotonic(t *testing.T) {
	log := &eventLog{}
	s := newTestScheduler(t, log, nil)

	base := time.Unix(100, 0)
	s.Advance(base)
	s.Advance(base.Add(33 * time.Millisecond))
	// A clock step backwards must not produce a regressing timestamp.
	s.Advance(base.Add(20 * time.Millisecond))

	updates := log.kinds(events.KindMouthUpdate)
	if len(updates) != 3 {
		t.Fatalf("mouth_update count = %d, want 3", len(updates))
	}
	for i := 1; i < len(updates); i++ {
		if updates[i].Time.Before(updates[i-1].Time) {
			t.Fatalf("mouth timestamps regressed at %d", i)
		}
	}
}

func TestMouthRelaxesWithoutPhrase(t *testing.T) {
	log := &eventLog{}
	s := newTestScheduler(t, log, nil)

	sess := NewSession(10, time.Unix(100, 0))
	sess.mu.Lock()
	sess.current = viseme.Shape{Open: 1.0, Wide: 0.5}
	sess.mu.Unlock()
	s.BeginSession(sess)

	base := time.Unix(100, 0)
	prev := sess.Shape().Open
	for n := 1; n <= 5; n++ {
		s.Advance(base.Add(time.Duration(n) * 33 * time.Millisecond))
		got := sess.Shape().Open
		if got >= prev {
			t.Fatalf("tick %d: mouth not relaxing toward rest (%v -> %v)", n, prev, got)
		}
		prev = got
	}
}

func TestStopIdempotentAndSilent(t *testing.T) {
	log := &eventLog{}
	s := newTestScheduler(t, log, nil)

	sess := NewSession(10, time.Unix(100, 0))
	sess.Queue().Enqueue(openPhrase("pending", 100))
	s.BeginSession(sess)

	s.Stop()
	s.Stop()

	before := len(log.all)
	s.Advance(time.Unix(200, 0))
	if len(log.all) != before {
		t.Fatalf("stopped scheduler emitted events")
	}
	if sess.Queue().PendingLen() != 0 {
		t.Fatalf("queue not cleared on stop")
	}
	if got := sess.Shape(); got != viseme.RestShape() {
		t.Fatalf("smoothing state not reset: %+v", got)
	}
	if err := s.Start(nil); err != ErrStopped {
		t.Fatalf("Start after Stop = %v, want ErrStopped", err)
	}
}

func TestSchedulerConfigValidation(t *testing.T) {
	bad := []Config{
		{TickInterval: 0, Smoothing: 0.3},
		{TickInterval: time.Millisecond, Smoothing: 0},
		{TickInterval: time.Millisecond, Smoothing: 1.5},
		{TickInterval: time.Millisecond, Smoothing: 0.3, InterPhraseGap: -time.Second},
	}
	for i, cfg := range bad {
		if _, err := NewScheduler(cfg, nil, nil, nil, nil); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
