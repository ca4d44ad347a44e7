package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/harunnryd/kuchi/pkg/adapters/tts"
)

type SynthesizerConfig struct {
	SessionID string
	// SpeakErr, when set, is returned from every Speak call.
	SpeakErr error
	// CompleteErr, when set, is carried on every completion instead of nil.
	CompleteErr error
}

// Synthesizer is a deterministic synthesizer used in tests and the demo
// binary. Every Speak immediately reports a completion for that phrase.
type Synthesizer struct {
	cfg     SynthesizerConfig
	done    chan tts.Completion
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
	spoken  []string
}

func NewSynthesizer(cfg SynthesizerConfig) *Synthesizer {
	return &Synthesizer{cfg: cfg, done: make(chan tts.Completion, 16)}
}

func (s *Synthesizer) Name() string { return "mock_tts" }

func (s *Synthesizer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, s.cancel = context.WithCancel(ctx)
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *Synthesizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.started = false
	return nil
}

func (s *Synthesizer) Speak(text string) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.New("not started")
	}
	if s.cfg.SpeakErr != nil {
		s.mu.Unlock()
		return s.cfg.SpeakErr
	}
	s.spoken = append(s.spoken, text)
	done := s.done
	s.mu.Unlock()

	done <- tts.Completion{Text: text, Err: s.cfg.CompleteErr}
	return nil
}

func (s *Synthesizer) Cancel() {}

func (s *Synthesizer) Done() <-chan tts.Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Spoken returns the phrases passed to Speak, in order.
func (s *Synthesizer) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
