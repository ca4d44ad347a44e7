package phrase

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/harunnryd/kuchi/pkg/viseme"
)

// BufferConfig controls phrase boundary detection.
type BufferConfig struct {
	Boundaries   string `mapstructure:"boundaries"`
	MinPhraseLen int    `mapstructure:"min_phrase_len"`
}

// DefaultBufferConfig matches sentence punctuation and short clauses.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{Boundaries: ".,!?;:", MinPhraseLen: 10}
}

// Validate rejects an empty boundary set or a nonsensical minimum length.
func (c BufferConfig) Validate() error {
	if c.Boundaries == "" {
		return fmt.Errorf("boundaries must not be empty")
	}
	if c.MinPhraseLen < 1 {
		return fmt.Errorf("min_phrase_len must be at least 1, got %d", c.MinPhraseLen)
	}
	return nil
}

// Buffer accumulates streaming text and slices it into playable phrases at
// boundary markers. Each emitted phrase carries its timeline, planned the
// instant the boundary is recognized.
type Buffer struct {
	mu       sync.Mutex
	cfg      BufferConfig
	timeline viseme.Config
	acc      string
	complete bool
}

// NewBuffer validates cfg and builds an empty buffer. timeline is the
// pacing used for eager planning.
func NewBuffer(cfg BufferConfig, timeline viseme.Config) (*Buffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := timeline.Validate(); err != nil {
		return nil, err
	}
	return &Buffer{cfg: cfg, timeline: timeline}, nil
}

// ProcessChunk appends content and scans the accumulator for the
// right-most boundary marker at or after the minimum phrase length. A found
// boundary slices everything up to and including it off as one phrase. On
// isComplete, any non-empty remainder is flushed even without a boundary,
// and the returned streamDone is true exactly once; later chunks are
// ignored.
func (b *Buffer) ProcessChunk(content string, isComplete bool) (emitted []*Entry, streamDone bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.complete {
		return nil, false
	}
	b.acc += content

	if idx := b.rightmostBoundary(); idx >= 0 {
		phraseText := strings.TrimSpace(b.acc[:idx+1])
		b.acc = b.acc[idx+1:]
		if phraseText != "" {
			emitted = append(emitted, b.newEntry(phraseText))
		}
	}

	if isComplete {
		if rest := strings.TrimSpace(b.acc); rest != "" {
			emitted = append(emitted, b.newEntry(rest))
		}
		b.acc = ""
		b.complete = true
		streamDone = true
	}
	return emitted, streamDone
}

// Pending returns the unflushed remainder.
func (b *Buffer) Pending() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acc
}

// Complete reports whether the stream-complete signal has fired.
func (b *Buffer) Complete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.complete
}

// Reset prepares the buffer for a new response stream.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.acc = ""
	b.complete = false
	b.mu.Unlock()
}

func (b *Buffer) newEntry(text string) *Entry {
	return &Entry{
		ID:       uuid.NewString(),
		Text:     text,
		Timeline: viseme.GenerateTimeline(text, b.timeline),
		Status:   StatusPending,
	}
}

// rightmostBoundary returns the index of the right-most boundary marker
// whose cut would yield at least MinPhraseLen characters, or -1.
func (b *Buffer) rightmostBoundary() int {
	idx := strings.LastIndexAny(b.acc, b.cfg.Boundaries)
	if idx < 0 || idx+1 < b.cfg.MinPhraseLen {
		return -1
	}
	return idx
}
