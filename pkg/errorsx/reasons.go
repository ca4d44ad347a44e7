package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// Configuration errors are rejected at construction, never clamped.
	ReasonConfigInvalid ReasonCode = "config_invalid"

	// Transient collaborator failures; the pipeline recovers through the
	// Error state.
	ReasonRecognizerConnect  ReasonCode = "recognizer_connect"
	ReasonRecognizerSend     ReasonCode = "recognizer_send"
	ReasonRecognizerFinalize ReasonCode = "recognizer_finalize"
	ReasonSynthesizerConnect ReasonCode = "synthesizer_connect"
	ReasonSynthesizerSpeak   ReasonCode = "synthesizer_speak"
	ReasonSynthesizerStream  ReasonCode = "synthesizer_stream"
	ReasonRateLimit          ReasonCode = "rate_limit"

	// A listening window that produced no finalized speech; not fatal.
	ReasonListenTimeout ReasonCode = "listen_timeout"

	// Internal invariant violations; the offending phrase is dropped and
	// the session continues.
	ReasonInvariant ReasonCode = "invariant"
)
