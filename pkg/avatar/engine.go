package avatar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/kuchi/pkg/adapters/stt"
	"github.com/harunnryd/kuchi/pkg/adapters/tts"
	"github.com/harunnryd/kuchi/pkg/errorsx"
	"github.com/harunnryd/kuchi/pkg/events"
	"github.com/harunnryd/kuchi/pkg/logging"
	"github.com/harunnryd/kuchi/pkg/metrics"
	"github.com/harunnryd/kuchi/pkg/phrase"
	"github.com/harunnryd/kuchi/pkg/priority"
	"github.com/harunnryd/kuchi/pkg/sched"
	"github.com/harunnryd/kuchi/pkg/vad"
)

// Engine is the top-level pipeline state machine. All external inputs —
// audio frames, transcripts, response chunks, synthesizer completions —
// and all control signals are pushed onto a two-priority queue and drained
// by a single dispatch goroutine, so handlers run to completion and never
// interleave. The engine is the sole mutator of the pipeline state; it
// talks to the detector, buffer, and scheduler only through their public
// operations.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	obs    metrics.Observer
	bus    *events.Bus
	queue  *priority.PriorityQueue
	fsm    *stateMachine

	detector  *vad.Detector
	buffer    *phrase.Buffer
	scheduler *sched.Scheduler

	recognizer  stt.Recognizer
	synthesizer tts.Synthesizer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
	stopped  atomic.Bool
	running  atomic.Bool

	// Dispatch-goroutine-owned state. No lock: only the dispatch
	// goroutine touches these.
	sess         *sched.Session
	gotFinal     bool
	spoken       int
	completed    int
	textComplete bool
	timerGen     int
	halted       bool
}

// ErrBusy is returned when Listen is refused because a response is still
// being processed or spoken.
var ErrBusy = errors.New("engine busy")

// ErrEngineStopped is returned from operations on a disposed engine.
var ErrEngineStopped = errors.New("engine stopped")

type startMsg struct{ reply chan error }
type stopMsg struct{ done chan struct{} }
type frameMsg struct {
	level float64
	pcm   []byte
	now   time.Time
}
type transcriptMsg struct{ t stt.Transcript }
type chunkMsg struct {
	content  string
	complete bool
}
type synthDoneMsg struct{ c tts.Completion }
type sessionDoneMsg struct{ id string }

type timerKind int

const (
	timerListenTimeout timerKind = iota
	timerLinger
	timerErrorReset
)

type timerMsg struct {
	kind timerKind
	gen  int
}

type failureMsg struct {
	reason errorsx.ReasonCode
	err    error
}

// NewEngine validates cfg and wires the pipeline around the supplied
// recognizer and synthesizer. Nothing runs until Run.
func NewEngine(cfg Config, recognizer stt.Recognizer, synthesizer tts.Synthesizer, logger *slog.Logger, obs metrics.Observer) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if recognizer == nil || synthesizer == nil {
		return nil, errorsx.Wrap(fmt.Errorf("recognizer and synthesizer are required"), errorsx.ReasonConfigInvalid)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if obs == nil {
		obs = metrics.NoopObserver{}
	}

	e := &Engine{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "engine"),
		obs:         obs,
		bus:         events.NewBus(cfg.Engine.EventBuffer),
		queue:       priority.New(cfg.Engine.HighCapacity, cfg.Engine.LowCapacity, cfg.Engine.FairnessRatio),
		fsm:         newStateMachine(),
		recognizer:  recognizer,
		synthesizer: synthesizer,
	}

	detector, err := vad.NewDetector(cfg.VAD, vad.Events{
		OnSpeechStart: e.onSpeechStart,
		OnSpeechEnd:   e.onSpeechEnd,
		OnLevel:       e.onLevel,
	}, logger)
	if err != nil {
		return nil, err
	}
	e.detector = detector

	buffer, err := phrase.NewBuffer(cfg.Buffer, cfg.Timeline)
	if err != nil {
		return nil, err
	}
	e.buffer = buffer

	scheduler, err := sched.NewScheduler(cfg.Scheduler, e.emit, func(sessionID string) {
		e.queue.TryPushHigh(sessionDoneMsg{id: sessionID})
	}, logger, obs)
	if err != nil {
		return nil, err
	}
	e.scheduler = scheduler

	return e, nil
}

// Run starts the collaborators and the dispatch loop. It returns once the
// pipeline is live; it does not begin listening.
func (e *Engine) Run(ctx context.Context) error {
	if e.stopped.Load() {
		return ErrEngineStopped
	}
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	e.ctx, e.cancel = context.WithCancel(ctx)

	if err := e.recognizer.Start(e.ctx); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonRecognizerConnect)
	}
	if err := e.synthesizer.Start(e.ctx); err != nil {
		_ = e.recognizer.Close()
		return errorsx.Wrap(err, errorsx.ReasonSynthesizerConnect)
	}
	if err := e.scheduler.Start(e.ctx); err != nil {
		_ = e.recognizer.Close()
		_ = e.synthesizer.Close()
		return err
	}

	e.wg.Add(1)
	go e.dispatch()

	results := e.recognizer.Results()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for t := range results {
			e.queue.TryPushLow(transcriptMsg{t: t})
		}
	}()

	done := e.synthesizer.Done()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for c := range done {
			e.queue.TryPushLow(synthDoneMsg{c: c})
		}
	}()

	e.logger.Info("engine running")
	return nil
}

// Listen requests the Idle -> Listening transition. It is refused while a
// response is processing or speaking, and while recovering from an error.
func (e *Engine) Listen() error {
	reply := make(chan error, 1)
	if !e.queue.TryPushHigh(startMsg{reply: reply}) {
		return ErrEngineStopped
	}
	return <-reply
}

// PushFrame feeds one audio energy sample (with optional raw audio) into
// the pipeline. Frames pushed while not Listening are ignored.
func (e *Engine) PushFrame(level float64, pcm []byte, now time.Time) {
	e.queue.TryPushLow(frameMsg{level: level, pcm: pcm, now: now})
}

// FeedResponse pushes one chunk of streaming response text. The first
// chunk of a response moves the pipeline from Processing to Speaking.
func (e *Engine) FeedResponse(content string, isComplete bool) {
	e.queue.TryPushLow(chunkMsg{content: content, complete: isComplete})
}

// State returns the current pipeline state.
func (e *Engine) State() State {
	return e.fsm.State()
}

// Events subscribes to the pipeline event stream.
func (e *Engine) Events() <-chan events.Event {
	return e.bus.Subscribe()
}

// Bus exposes the event bus for transports that fan events out.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// Session returns the active playback session, or nil.
func (e *Engine) Session() *sched.Session {
	return e.scheduler.Session()
}

// Stop disposes the pipeline: the scheduler tick halts synchronously, the
// phrase queue is cleared, smoothing state resets, and collaborators are
// closed. Idempotent — repeated calls are no-ops, and after Stop returns
// no further events are observed.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.stopped.Store(true)
		done := make(chan struct{})
		if e.queue.TryPushHigh(stopMsg{done: done}) {
			<-done
		} else {
			e.shutdown()
		}
		e.queue.Close()
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
		e.bus.Close()
	})
}

// Drain blocks until the active session (if any) finishes playing. The
// caller bounds the wait.
func (e *Engine) Drain() error {
	for {
		if e.stopped.Load() || e.scheduler.Session() == nil {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// --- dispatch loop ---

func (e *Engine) dispatch() {
	defer e.wg.Done()
	for {
		item, ok := e.queue.Pop()
		if !ok {
			return
		}
		e.handle(item)
	}
}

func (e *Engine) handle(item any) {
	// A failing handler must surface as an error event, never escape the
	// dispatch loop.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("handler panic", slog.Any("panic", r))
			e.fail(errorsx.ReasonInvariant, fmt.Errorf("handler panic: %v", r))
		}
	}()

	if e.halted {
		// Residual messages queued before Close still need their waiters
		// released.
		switch m := item.(type) {
		case stopMsg:
			close(m.done)
		case startMsg:
			m.reply <- ErrEngineStopped
		}
		return
	}

	switch m := item.(type) {
	case startMsg:
		m.reply <- e.handleStart()
	case stopMsg:
		e.shutdown()
		close(m.done)
	case frameMsg:
		e.handleFrame(m)
	case transcriptMsg:
		e.handleTranscript(m.t)
	case chunkMsg:
		e.handleChunk(m.content, m.complete)
	case synthDoneMsg:
		e.handleSynthDone(m.c)
	case sessionDoneMsg:
		e.handleSessionDone(m.id)
	case timerMsg:
		e.handleTimer(m)
	case failureMsg:
		e.fail(m.reason, m.err)
	default:
		e.logger.Warn("unknown queue item", slog.String("type", fmt.Sprintf("%T", item)))
	}
}

func (e *Engine) handleStart() error {
	switch e.fsm.State() {
	case StateListening:
		return nil
	case StateProcessing, StateSpeaking:
		return ErrBusy
	case StateError:
		return ErrBusy
	}
	if err := e.fsm.Transition(StateListening, "listen requested"); err != nil {
		return err
	}
	e.gotFinal = false
	e.detector.Start()
	e.armTimer(timerListenTimeout, e.cfg.Engine.ListenTimeout)
	e.emit(events.Event{Kind: events.KindListeningStart, Time: time.Now()})
	return nil
}

func (e *Engine) handleFrame(m frameMsg) {
	if e.fsm.State() != StateListening {
		return
	}
	e.detector.ProcessFrame(m.level, m.now)
	if len(m.pcm) > 0 {
		if err := e.recognizer.SendAudio(m.pcm); err != nil {
			e.fail(errorsx.ReasonRecognizerSend, err)
		}
	}
}

// onSpeechStart fires from ProcessFrame inside handleFrame, so it already
// runs on the dispatch goroutine.
func (e *Engine) onSpeechStart(now time.Time) {
	e.emit(events.Event{Kind: events.KindSpeechDetected, Time: now})
}

func (e *Engine) onSpeechEnd(now time.Time, speech time.Duration) {
	e.emit(events.Event{
		Kind:       events.KindSpeechEnded,
		Time:       now,
		DurationMS: int(speech.Milliseconds()),
	})
	// Linger before finalizing: the speaker may only be pausing.
	e.armTimer(timerLinger, e.cfg.Engine.Linger)
}

func (e *Engine) onLevel(level float64, now time.Time) {
	e.obs.RecordEvent(metrics.MetricsEvent{
		Name:  "audio_level",
		Time:  now,
		Value: level,
	})
}

func (e *Engine) handleTranscript(t stt.Transcript) {
	e.emit(events.Event{
		Kind:       events.KindTranscript,
		Time:       time.Now(),
		Text:       t.Text,
		Confidence: t.Confidence,
	})
	if !t.IsFinal || e.fsm.State() != StateListening {
		return
	}
	e.gotFinal = true
	e.timerGen++ // cancels the pending listen timeout
	e.detector.Stop()
	e.emit(events.Event{Kind: events.KindListeningEnd, Time: time.Now()})
	if err := e.fsm.Transition(StateProcessing, "final transcript"); err != nil {
		e.fail(errorsx.ReasonInvariant, err)
		return
	}
	e.emit(events.Event{Kind: events.KindProcessingStart, Time: time.Now()})
}

func (e *Engine) handleChunk(content string, complete bool) {
	switch e.fsm.State() {
	case StateProcessing:
		if err := e.fsm.Transition(StateSpeaking, "response stream opened"); err != nil {
			e.fail(errorsx.ReasonInvariant, err)
			return
		}
		e.emit(events.Event{Kind: events.KindProcessingEnd, Time: time.Now()})
		sess := sched.NewSession(e.cfg.Scheduler.MaxHistory, time.Now())
		e.sess = sess
		e.spoken = 0
		e.completed = 0
		e.textComplete = false
		e.buffer.Reset()
		e.scheduler.BeginSession(sess)
		e.emit(events.Event{Kind: events.KindSpeakingStart, Time: time.Now(), SessionID: sess.ID()})
	case StateSpeaking:
	default:
		e.logger.Warn("response chunk outside a response window",
			slog.String("state", e.fsm.State().String()))
		return
	}

	entries, streamDone := e.buffer.ProcessChunk(content, complete)
	for _, entry := range entries {
		e.sess.Queue().Enqueue(entry)
		e.emit(events.Event{
			Kind:       events.KindPhraseReady,
			Time:       time.Now(),
			SessionID:  e.sess.ID(),
			Text:       entry.Text,
			DurationMS: entry.Timeline.TotalMS,
		})
		if err := e.synthesizer.Speak(entry.Text); err != nil {
			e.fail(errorsx.ReasonSynthesizerSpeak, err)
			return
		}
		e.spoken++
	}

	if streamDone && !e.textComplete {
		e.textComplete = true
		e.sess.MarkTextComplete()
		e.emit(events.Event{Kind: events.KindStreamComplete, Time: time.Now(), SessionID: e.sess.ID()})
		if e.completed >= e.spoken {
			e.sess.MarkAudioDrained()
		}
	}
}

func (e *Engine) handleSynthDone(c tts.Completion) {
	if c.Err != nil {
		e.fail(errorsx.ReasonSynthesizerStream, c.Err)
		return
	}
	if e.sess == nil {
		return
	}
	e.completed++
	if e.textComplete && e.completed >= e.spoken {
		e.sess.MarkAudioDrained()
	}
}

func (e *Engine) handleSessionDone(id string) {
	if e.sess == nil || e.sess.ID() != id {
		return
	}
	e.emit(events.Event{Kind: events.KindSpeakingEnd, Time: time.Now(), SessionID: id})
	e.sess = nil
	if e.cfg.Engine.AutoListen {
		if err := e.fsm.Transition(StateListening, "auto listen"); err != nil {
			e.fail(errorsx.ReasonInvariant, err)
			return
		}
		e.gotFinal = false
		e.detector.Start()
		e.armTimer(timerListenTimeout, e.cfg.Engine.ListenTimeout)
		e.emit(events.Event{Kind: events.KindListeningStart, Time: time.Now()})
		return
	}
	if err := e.fsm.Transition(StateIdle, "session complete"); err != nil {
		e.fail(errorsx.ReasonInvariant, err)
	}
}

func (e *Engine) handleTimer(m timerMsg) {
	if m.gen != e.timerGen {
		return
	}
	switch m.kind {
	case timerListenTimeout:
		if e.fsm.State() != StateListening || e.gotFinal {
			return
		}
		// No finalized speech within the bound: a normal no-input
		// outcome, not a failure.
		e.detector.Stop()
		e.emit(events.Event{
			Kind:   events.KindListeningEnd,
			Time:   time.Now(),
			Reason: "timeout",
		})
		if err := e.fsm.Transition(StateIdle, "listen timeout"); err != nil {
			e.fail(errorsx.ReasonInvariant, err)
		}
	case timerLinger:
		if e.fsm.State() != StateListening || e.gotFinal {
			return
		}
		if err := e.recognizer.Finalize(); err != nil {
			e.fail(errorsx.ReasonRecognizerFinalize, err)
		}
	case timerErrorReset:
		if e.fsm.State() != StateError {
			return
		}
		if err := e.fsm.Transition(StateIdle, "error reset"); err != nil {
			e.logger.Error("error reset failed", slog.String("err", err.Error()))
		}
	}
}

// fail converts a collaborator failure into an error event and moves the
// pipeline to Error, which auto-resets to Idle after the configured delay.
func (e *Engine) fail(reason errorsx.ReasonCode, err error) {
	err = errorsx.Wrap(err, reason)
	e.logger.Error("pipeline failure",
		slog.String("reason", string(reason)),
		slog.String("err", err.Error()))
	e.obs.RecordEvent(metrics.MetricsEvent{
		Name: "pipeline_failure",
		Time: time.Now(),
		Tags: map[string]string{"reason": string(reason)},
	})

	if e.fsm.State() != StateError {
		e.detector.Stop()
		if e.sess != nil {
			e.scheduler.ClearSession()
			e.sess = nil
		}
		e.synthesizer.Cancel()
		if trErr := e.fsm.Transition(StateError, string(reason)); trErr != nil {
			e.logger.Error("error transition failed", slog.String("err", trErr.Error()))
		}
		e.timerGen++
		e.armTimer(timerErrorReset, e.cfg.Engine.ErrorReset)
	}

	e.emit(events.Event{
		Kind:   events.KindError,
		Time:   time.Now(),
		Reason: string(reason),
		Err:    err,
	})
}

func (e *Engine) armTimer(kind timerKind, d time.Duration) {
	gen := e.timerGen
	time.AfterFunc(d, func() {
		e.queue.TryPushHigh(timerMsg{kind: kind, gen: gen})
	})
}

// shutdown runs on the dispatch goroutine as the final handler.
func (e *Engine) shutdown() {
	e.halted = true
	e.timerGen++
	e.scheduler.Stop()
	e.detector.Stop()
	if e.sess != nil {
		e.sess.Queue().Clear()
		e.sess = nil
	}
	e.buffer.Reset()
	if err := e.recognizer.Close(); err != nil {
		e.logger.Warn("recognizer close", slog.String("err", err.Error()))
	}
	if err := e.synthesizer.Close(); err != nil {
		e.logger.Warn("synthesizer close", slog.String("err", err.Error()))
	}
	if e.fsm.State() != StateIdle {
		if err := e.fsm.Transition(StateIdle, "stopped"); err != nil {
			e.logger.Error("stop transition failed", slog.String("err", err.Error()))
		}
	}
	e.logger.Info("engine stopped")
}

// emit stamps the current pipeline state onto an event and publishes it.
// It doubles as the scheduler's sink.
func (e *Engine) emit(ev events.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	ev.State = e.fsm.State().String()
	e.bus.Publish(ev)
}
