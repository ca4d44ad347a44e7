package sched

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/kuchi/pkg/events"
	"github.com/harunnryd/kuchi/pkg/metrics"
	"github.com/harunnryd/kuchi/pkg/viseme"
)

// Scheduler drives playback on a fixed-rate tick, decoupled from phrase
// arrival timing: phrases arrive whenever the network delivers them, the
// visual signal must stay smooth. It is the sole mutator of the session's
// queue and mouth shape.
//
// Advance runs one tick and is safe to call directly with a caller-supplied
// clock; Start drives Advance from a time.Ticker. A scheduler is one-shot:
// after Stop it stays stopped.
type Scheduler struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger
	sink   events.Sink
	obs    metrics.Observer

	stamper   *events.Stamper
	sess      *Session
	idleShape viseme.Shape
	onDone    func(sessionID string)

	running  bool
	stopped  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ErrStopped is returned when Start is called on a stopped scheduler.
var ErrStopped = errors.New("scheduler stopped")

// NewScheduler validates cfg and builds an idle scheduler. onDone is
// invoked from the tick goroutine when a session finishes.
func NewScheduler(cfg Config, sink events.Sink, onDone func(sessionID string), logger *slog.Logger, obs metrics.Observer) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = func(events.Event) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Scheduler{
		cfg:     cfg,
		sink:    sink,
		onDone:  onDone,
		logger:  logger,
		obs:     obs,
		stamper: events.NewStamper(),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start launches the tick loop. Calling Start twice is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.running = true
	interval := s.cfg.TickInterval
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case now := <-ticker.C:
				s.Advance(now)
			}
		}
	}()
	return nil
}

// Stop synchronously halts the tick, clears the phrase queue, and resets
// smoothing state. Idempotent; after Stop returns no further ticks are
// observed.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()

	s.mu.Lock()
	s.stopped = true
	s.running = false
	sess := s.sess
	s.sess = nil
	s.idleShape = viseme.RestShape()
	s.mu.Unlock()

	if sess != nil {
		sess.Queue().Clear()
		sess.mu.Lock()
		sess.current = viseme.RestShape()
		sess.target = viseme.RestShape()
		sess.mu.Unlock()
	}
}

// BeginSession installs the session whose queue the following ticks play.
func (s *Scheduler) BeginSession(sess *Session) {
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
}

// Session returns the active session, or nil.
func (s *Scheduler) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

// ClearSession abandons the active session without stopping the tick,
// for recovery paths where playback must be cut short.
func (s *Scheduler) ClearSession() {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()
	if sess != nil {
		sess.Queue().Clear()
		s.stamper.Forget(sess.ID())
	}
}

// Advance runs one scheduler tick at the supplied time.
func (s *Scheduler) Advance(now time.Time) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	cfg := s.cfg
	sess := s.sess
	s.mu.Unlock()

	var emit []events.Event
	target := viseme.RestShape()
	sessionDone := false

	if sess != nil {
		cur := sess.Queue().Current()
		if cur == nil {
			sess.mu.Lock()
			gapOver := !now.Before(sess.gapUntil)
			sess.mu.Unlock()
			if gapOver {
				next, err := sess.Queue().StartNext(now)
				switch {
				case err != nil:
					// Invariant violation: drop the offending phrase and
					// keep the session alive.
					s.logger.Error("phrase queue invariant violated", slog.String("err", err.Error()))
					sess.Queue().DropCurrent()
					s.obs.RecordEvent(metrics.MetricsEvent{
						Name: "invariant_violation",
						Time: now,
						Tags: map[string]string{"session_id": sess.ID()},
					})
				case next != nil:
					cur = next
					emit = append(emit, events.Event{
						Kind:       events.KindPhraseSpeaking,
						Time:       now,
						SessionID:  sess.ID(),
						Text:       next.Text,
						DurationMS: next.Timeline.TotalMS,
					})
				}
			}
		}

		if cur != nil {
			elapsedMS := int(now.Sub(cur.StartedAt).Milliseconds())
			if elapsedMS >= cur.Timeline.TotalMS {
				text, totalMS := cur.Text, cur.Timeline.TotalMS
				sess.Queue().CompleteCurrent(now)
				sess.mu.Lock()
				sess.gapUntil = now.Add(cfg.InterPhraseGap)
				sess.mu.Unlock()
				emit = append(emit, events.Event{
					Kind:       events.KindPhraseComplete,
					Time:       now,
					SessionID:  sess.ID(),
					Text:       text,
					DurationMS: totalMS,
				})
				s.obs.RecordEvent(metrics.MetricsEvent{
					Name:  "phrase_spoken",
					Time:  now,
					Value: float64(totalMS),
					Tags:  map[string]string{"session_id": sess.ID()},
				})
			} else if entry, ok := cur.Timeline.EntryAt(elapsedMS); ok {
				target = entry.Class.TargetShape(entry.Intensity)
			}
		} else if sess.Finished() {
			s.mu.Lock()
			if s.sess == sess {
				s.sess = nil
			}
			s.mu.Unlock()
			sessionDone = true
		}
	}

	// Exponential smoothing runs every tick regardless of phrase state, so
	// the mouth relaxes toward rest instead of snapping shut.
	var shape viseme.Shape
	var ts time.Time
	if sess != nil && !sessionDone {
		sess.mu.Lock()
		sess.target = target
		sess.current = sess.current.Lerp(target, cfg.Smoothing)
		shape = sess.current
		sess.mu.Unlock()
		ts = s.stamper.Next(sess.ID(), now)
		emit = append(emit, events.Event{
			Kind:      events.KindMouthUpdate,
			Time:      ts,
			SessionID: sess.ID(),
			Shape:     &shape,
		})
	} else {
		s.mu.Lock()
		s.idleShape = s.idleShape.Lerp(target, cfg.Smoothing)
		shape = s.idleShape
		s.mu.Unlock()
		ts = s.stamper.Next("idle", now)
		emit = append(emit, events.Event{
			Kind:  events.KindMouthUpdate,
			Time:  ts,
			Shape: &shape,
		})
	}

	for _, ev := range emit {
		s.sink(ev)
	}
	if sessionDone {
		s.stamper.Forget(sess.ID())
		s.obs.RecordEvent(metrics.MetricsEvent{
			Name: "session_done",
			Time: now,
			Tags: map[string]string{"session_id": sess.ID()},
		})
		s.mu.Lock()
		onDone := s.onDone
		s.mu.Unlock()
		if onDone != nil {
			onDone(sess.ID())
		}
	}
}
