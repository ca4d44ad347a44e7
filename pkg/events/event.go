package events

import (
	"time"

	"github.com/harunnryd/kuchi/pkg/viseme"
)

// Kind identifies one pipeline event.
type Kind string

const (
	KindListeningStart  Kind = "listening_start"
	KindListeningEnd    Kind = "listening_end"
	KindSpeechDetected  Kind = "speech_detected"
	KindSpeechEnded     Kind = "speech_ended"
	KindTranscript      Kind = "transcript"
	KindProcessingStart Kind = "processing_start"
	KindProcessingEnd   Kind = "processing_end"
	KindSpeakingStart   Kind = "speaking_start"
	KindSpeakingEnd     Kind = "speaking_end"
	KindPhraseReady     Kind = "phrase_ready"
	KindPhraseSpeaking  Kind = "phrase_speaking"
	KindPhraseComplete  Kind = "phrase_complete"
	KindMouthUpdate     Kind = "mouth_update"
	KindStreamComplete  Kind = "stream_complete"
	KindError           Kind = "error"
)

// Event is one entry of the timestamped stream the pipeline exposes to the
// outside. State carries the pipeline state at emission time.
type Event struct {
	Kind       Kind          `json:"kind"`
	Time       time.Time     `json:"time"`
	State      string        `json:"state"`
	SessionID  string        `json:"session_id,omitempty"`
	Text       string        `json:"text,omitempty"`
	Level      float64       `json:"level,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	DurationMS int           `json:"duration_ms,omitempty"`
	Shape      *viseme.Shape `json:"shape,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Err        error         `json:"-"`
}

// Sink receives events synchronously from the emitting component.
type Sink func(Event)
