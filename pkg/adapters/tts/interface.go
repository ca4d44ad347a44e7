package tts

import "context"

// Completion reports that audio for one phrase finished rendering.
type Completion struct {
	Text string
	Err  error
}

// Synthesizer defines the contract for any streaming TTS vendor
// implementation.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start initializes the synthesizer connection.
	Start(ctx context.Context) error
	// Close shuts down the synthesizer connection.
	Close() error
	// Speak queues one phrase for synthesis.
	Speak(text string) error
	// Cancel stops current synthesis and clears pending phrases.
	Cancel()
	// Done returns a channel of per-phrase completions. Closed on Close.
	Done() <-chan Completion
}

// Config contains vendor-agnostic synthesizer configuration.
type Config struct {
	SessionID  string
	SampleRate int
	Voice      string
}
