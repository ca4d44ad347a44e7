package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/harunnryd/kuchi/pkg/adapters/stt"
)

type RecognizerConfig struct {
	SessionID         string
	Transcript        string
	InterimTranscript string
	Confidence        float64
	EmitInterim       bool
	// FramesUntilFinal is how many audio frames arrive before the final
	// transcript is emitted. Zero means the first frame triggers it.
	FramesUntilFinal int
}

// Recognizer is a deterministic recognizer used in tests and the demo
// binary. It emits a fixed transcript after a configurable number of
// audio frames.
type Recognizer struct {
	cfg     RecognizerConfig
	out     chan stt.Transcript
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
	frames  int
	emitted bool
}

func NewRecognizer(cfg RecognizerConfig) *Recognizer {
	if cfg.Transcript == "" {
		cfg.Transcript = "mock transcript"
	}
	if cfg.Confidence == 0 {
		cfg.Confidence = 0.95
	}
	return &Recognizer{cfg: cfg, out: make(chan stt.Transcript, 16)}
}

func (r *Recognizer) Name() string { return "mock_stt" }

func (r *Recognizer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, r.cancel = context.WithCancel(ctx)
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
	return nil
}

func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	if r.out != nil {
		close(r.out)
		r.out = nil
	}
	r.started = false
	return nil
}

func (r *Recognizer) SendAudio(pcm []byte) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return errors.New("not started")
	}
	if r.emitted {
		r.mu.Unlock()
		return nil
	}
	r.frames++
	if r.frames <= r.cfg.FramesUntilFinal {
		r.mu.Unlock()
		return nil
	}
	r.emitted = true
	out := r.out
	r.mu.Unlock()

	if r.cfg.EmitInterim {
		interim := r.cfg.InterimTranscript
		if interim == "" {
			interim = r.cfg.Transcript
		}
		out <- stt.Transcript{Text: interim, IsFinal: false, Confidence: r.cfg.Confidence / 2}
	}
	out <- stt.Transcript{Text: r.cfg.Transcript, IsFinal: true, Confidence: r.cfg.Confidence}
	return nil
}

// Finalize flushes the final transcript even when fewer frames than
// FramesUntilFinal arrived.
func (r *Recognizer) Finalize() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return errors.New("not started")
	}
	if r.emitted {
		r.mu.Unlock()
		return nil
	}
	r.emitted = true
	out := r.out
	r.mu.Unlock()

	out <- stt.Transcript{Text: r.cfg.Transcript, IsFinal: true, Confidence: r.cfg.Confidence}
	return nil
}

func (r *Recognizer) Results() <-chan stt.Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out
}

var _ stt.Recognizer = (*Recognizer)(nil)
