package phrase

import (
	"strings"
	"testing"

	"github.com/harunnryd/kuchi/pkg/viseme"
)

func newTestBuffer(t *testing.T) *Buffer {
	t.Helper()
	b, err := NewBuffer(BufferConfig{Boundaries: ".,?!", MinPhraseLen: 10}, viseme.DefaultConfig())
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	return b
}

func TestBufferScenario(t *testing.T) {
	b := newTestBuffer(t)

	first, done := b.ProcessChunk("Hello there,", false)
	if done {
		t.Fatalf("stream done too early")
	}
	if len(first) != 1 || first[0].Text != "Hello there," {
		t.Fatalf("first chunk emitted %+v", texts(first))
	}

	second, done := b.ProcessChunk(" how are you?", false)
	if done {
		t.Fatalf("stream done too early")
	}
	if len(second) != 1 || second[0].Text != "how are you?" {
		t.Fatalf("second chunk emitted %+v", texts(second))
	}

	if first[0].ID == second[0].ID {
		t.Fatalf("phrases share an ID")
	}
	rest, done := b.ProcessChunk("", true)
	if !done {
		t.Fatalf("expected stream completion")
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected flush phrases %+v", texts(rest))
	}
}

func TestBufferEagerTimeline(t *testing.T) {
	b := newTestBuffer(t)
	out, _ := b.ProcessChunk("Plan this phrase now.", false)
	if len(out) != 1 {
		t.Fatalf("expected one phrase, got %d", len(out))
	}
	tl := out[0].Timeline
	if tl.TotalMS == 0 || len(tl.Phonemes) == 0 {
		t.Fatalf("timeline not planned eagerly: %+v", tl)
	}
	if err := tl.Validate(); err != nil {
		t.Fatalf("planned timeline invalid: %v", err)
	}
}

func TestBufferFlushOnce(t *testing.T) {
	b := newTestBuffer(t)

	// Sub-minimum, boundary-free chunks must emit nothing.
	for _, chunk := range []string{"uh", " hm", " ok"} {
		out, done := b.ProcessChunk(chunk, false)
		if len(out) != 0 || done {
			t.Fatalf("premature emission for %q", chunk)
		}
	}

	out, done := b.ProcessChunk("", true)
	if !done {
		t.Fatalf("expected completion signal")
	}
	if len(out) != 1 || out[0].Text != "uh hm ok" {
		t.Fatalf("flush emitted %+v", texts(out))
	}

	// A second complete chunk must not fire completion again.
	out, done = b.ProcessChunk("ignored", true)
	if len(out) != 0 || done {
		t.Fatalf("completion fired twice")
	}
}

func TestBufferMinLengthHoldsBoundary(t *testing.T) {
	b := newTestBuffer(t)
	out, _ := b.ProcessChunk("Hi.", false)
	if len(out) != 0 {
		t.Fatalf("boundary below min length emitted %+v", texts(out))
	}
	out, _ = b.ProcessChunk(" More words arrive.", false)
	if len(out) != 1 || out[0].Text != "Hi. More words arrive." {
		t.Fatalf("emitted %+v", texts(out))
	}
}

func TestBufferOrderAndNoDuplicates(t *testing.T) {
	b := newTestBuffer(t)
	var got []string
	chunks := []string{"First sentence. ", "Second one here. ", "And a third!"}
	for i, ch := range chunks {
		out, _ := b.ProcessChunk(ch, i == len(chunks)-1)
		got = append(got, texts(out)...)
	}
	want := []string{"First sentence.", "Second one here.", "And a third!"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("phrases = %v, want %v", got, want)
	}
}

func TestBufferConfigValidation(t *testing.T) {
	if _, err := NewBuffer(BufferConfig{Boundaries: "", MinPhraseLen: 5}, viseme.DefaultConfig()); err == nil {
		t.Fatalf("expected empty boundary set to be rejected")
	}
	if _, err := NewBuffer(BufferConfig{Boundaries: ".", MinPhraseLen: 0}, viseme.DefaultConfig()); err == nil {
		t.Fatalf("expected zero min length to be rejected")
	}
	if _, err := NewBuffer(DefaultBufferConfig(), viseme.Config{BasePhonemeMS: -1}); err == nil {
		t.Fatalf("expected invalid timeline config to be rejected")
	}
}

func texts(entries []*Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}
