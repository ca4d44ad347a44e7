package stt

import "context"

// Transcript is a recognition result from a streaming recognizer.
type Transcript struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// Recognizer defines the contract for any streaming STT vendor
// implementation.
type Recognizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start initializes the recognizer connection.
	Start(ctx context.Context) error
	// Close shuts down the recognizer connection.
	Close() error
	// SendAudio forwards a raw audio frame to the recognizer.
	SendAudio(pcm []byte) error
	// Finalize asks the recognizer to flush any pending partial result.
	Finalize() error
	// Results returns a channel of transcripts. Closed on Close.
	Results() <-chan Transcript
}

// Config contains vendor-agnostic recognizer configuration.
type Config struct {
	SessionID  string
	SampleRate int
	Language   string
}
