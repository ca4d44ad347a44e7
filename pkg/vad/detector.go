package vad

import (
	"log/slog"
	"sync"
	"time"
)

// State is the detector's per-frame bookkeeping. The detector is its sole
// mutator; Snapshot returns a copy.
type State struct {
	AudioLevel  float64
	Speaking    bool
	SpeechStart time.Time
	LastSpeech  time.Time
	Active      bool
}

// Events carries the detector's callbacks. Callbacks are invoked
// synchronously from ProcessFrame, after internal state is settled.
type Events struct {
	OnSpeechStart func(now time.Time)
	OnSpeechEnd   func(now time.Time, speech time.Duration)
	OnLevel       func(level float64, now time.Time)
}

// Detector turns a continuous 0..1 energy signal into debounced
// speech-start/speech-end transitions. Hysteresis: the signal must hold
// above threshold for MinSpeechDuration before speech starts, and below it
// for MinSilenceDuration before speech ends, so single noisy frames cannot
// toggle state.
type Detector struct {
	mu     sync.Mutex
	cfg    Config
	st     State
	ev     Events
	logger *slog.Logger

	aboveStart time.Time
	belowStart time.Time
}

// NewDetector validates cfg and builds an inactive detector.
func NewDetector(cfg Config, ev Events, logger *slog.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cfg: cfg, ev: ev, logger: logger}, nil
}

// Start enables frame processing.
func (d *Detector) Start() {
	d.mu.Lock()
	d.st.Active = true
	d.mu.Unlock()
}

// Stop disables the detector and clears transient run state. Frames
// delivered while stopped are silently ignored; a stopped detector never
// emits.
func (d *Detector) Stop() {
	d.mu.Lock()
	d.st.Active = false
	d.st.Speaking = false
	d.st.SpeechStart = time.Time{}
	d.aboveStart = time.Time{}
	d.belowStart = time.Time{}
	d.mu.Unlock()
}

// Reconfigure swaps the config. Debounce runs restart from the next frame.
func (d *Detector) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	d.cfg = cfg
	d.aboveStart = time.Time{}
	d.belowStart = time.Time{}
	d.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current state.
func (d *Detector) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st
}

// Speaking reports whether the detector currently classifies the signal as
// speech.
func (d *Detector) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st.Speaking
}

// ProcessFrame classifies one energy sample against the threshold and
// advances the debounce windows. now is supplied by the caller so the
// detector has no clock of its own.
func (d *Detector) ProcessFrame(level float64, now time.Time) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}

	d.mu.Lock()
	if !d.st.Active {
		d.mu.Unlock()
		return
	}

	d.st.AudioLevel = level

	var started bool
	var ended bool
	var speechDur time.Duration

	if level >= d.cfg.Threshold {
		d.st.LastSpeech = now
		d.belowStart = time.Time{}
		if !d.st.Speaking {
			if d.aboveStart.IsZero() {
				d.aboveStart = now
			}
			if now.Sub(d.aboveStart) >= d.cfg.MinSpeechDuration {
				d.st.Speaking = true
				d.st.SpeechStart = now
				started = true
			}
		}
	} else {
		d.aboveStart = time.Time{}
		if d.st.Speaking {
			if d.belowStart.IsZero() {
				d.belowStart = now
			}
			if now.Sub(d.belowStart) >= d.cfg.MinSilenceDuration {
				d.st.Speaking = false
				speechDur = now.Sub(d.st.SpeechStart)
				d.st.SpeechStart = time.Time{}
				d.belowStart = time.Time{}
				ended = true
			}
		}
	}
	ev := d.ev
	d.mu.Unlock()

	// Callbacks fire outside the lock.
	if ev.OnLevel != nil {
		ev.OnLevel(level, now)
	}
	if started {
		d.logger.Debug("speech_start", slog.Float64("level", level))
		if ev.OnSpeechStart != nil {
			ev.OnSpeechStart(now)
		}
	}
	if ended {
		d.logger.Debug("speech_end", slog.Duration("speech", speechDur))
		if ev.OnSpeechEnd != nil {
			ev.OnSpeechEnd(now, speechDur)
		}
	}
}
