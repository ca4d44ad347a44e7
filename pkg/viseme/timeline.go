package viseme

import (
	"fmt"
	"math"
	"strings"
)

// Entry is one timed mouth-shape target. Entries within a Timeline are
// ordered and contiguous: each entry starts exactly where the previous one
// ended.
type Entry struct {
	Class      Class
	StartMS    int
	DurationMS int
	Intensity  float64
}

// EndMS returns the exclusive end time of the entry.
func (e Entry) EndMS() int { return e.StartMS + e.DurationMS }

// Timeline is an immutable, pre-planned phoneme sequence for one phrase.
type Timeline struct {
	Phonemes   []Entry
	TotalMS    int
	SourceText string
}

// Config controls timeline pacing.
type Config struct {
	BasePhonemeMS int `mapstructure:"base_phoneme_ms"`
	WordGapMS     int `mapstructure:"word_gap_ms"`
}

// DefaultConfig returns the pacing used when nothing is configured.
func DefaultConfig() Config {
	return Config{BasePhonemeMS: 80, WordGapMS: 100}
}

// Validate rejects unusable pacing values.
func (c Config) Validate() error {
	if c.BasePhonemeMS <= 0 {
		return fmt.Errorf("base_phoneme_ms must be positive, got %d", c.BasePhonemeMS)
	}
	if c.WordGapMS < 0 {
		return fmt.Errorf("word_gap_ms must not be negative, got %d", c.WordGapMS)
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BasePhonemeMS <= 0 {
		c.BasePhonemeMS = def.BasePhonemeMS
	}
	if c.WordGapMS < 0 {
		c.WordGapMS = def.WordGapMS
	}
	return c
}

// GenerateTimeline turns text into a contiguous timed phoneme sequence.
// It is pure and deterministic: identical input yields identical output.
//
// Matching is maximal-munch: the 2-character digraph table is consulted
// before the single-character table. A rest entry of WordGapMS closes every
// word, including the last one.
func GenerateTimeline(text string, cfg Config) Timeline {
	cfg = cfg.withDefaults()
	tl := Timeline{SourceText: text}

	clock := 0
	for _, word := range strings.Fields(normalize(text)) {
		entries := wordEntries(word, cfg.BasePhonemeMS, clock)
		if len(entries) == 0 {
			continue
		}
		tl.Phonemes = append(tl.Phonemes, entries...)
		clock = entries[len(entries)-1].EndMS()
		if cfg.WordGapMS > 0 {
			tl.Phonemes = append(tl.Phonemes, Entry{
				Class:      ClassRest,
				StartMS:    clock,
				DurationMS: cfg.WordGapMS,
				Intensity:  ClassRest.Intensity(),
			})
			clock += cfg.WordGapMS
		}
	}
	tl.TotalMS = clock
	return tl
}

// Validate checks the contiguity invariant: entries are back to back and
// their durations sum to TotalMS.
func (t Timeline) Validate() error {
	sum := 0
	for i, e := range t.Phonemes {
		if e.DurationMS <= 0 {
			return fmt.Errorf("entry %d has non-positive duration %d", i, e.DurationMS)
		}
		if e.StartMS != sum {
			return fmt.Errorf("entry %d starts at %d, want %d", i, e.StartMS, sum)
		}
		sum += e.DurationMS
	}
	if sum != t.TotalMS {
		return fmt.Errorf("total duration %d, entries sum to %d", t.TotalMS, sum)
	}
	return nil
}

// EntryAt returns the entry whose interval contains elapsedMS, or false when
// elapsedMS falls outside the timeline.
func (t Timeline) EntryAt(elapsedMS int) (Entry, bool) {
	if elapsedMS < 0 || elapsedMS >= t.TotalMS {
		return Entry{}, false
	}
	for _, e := range t.Phonemes {
		if elapsedMS < e.EndMS() {
			return e, true
		}
	}
	return Entry{}, false
}

// LevelToPhoneme maps an instantaneous audio level to a single phoneme entry
// for level-driven (non-text) lip sync. The [0,1] range is partitioned into
// five contiguous bands; no timeline is persisted.
func LevelToPhoneme(level float64) Entry {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	var class Class
	switch {
	case level < 0.2:
		class = ClassRest
	case level < 0.4:
		class = ClassClosed
	case level < 0.6:
		class = ClassMid
	case level < 0.8:
		class = ClassOpen
	default:
		class = ClassWide
	}
	base := DefaultConfig().BasePhonemeMS
	return Entry{
		Class:      class,
		DurationMS: scaledDuration(base, class),
		Intensity:  level,
	}
}

func wordEntries(word string, baseMS, startMS int) []Entry {
	var entries []Entry
	clock := startMS
	for i := 0; i < len(word); {
		var class Class
		if i+1 < len(word) {
			if c, ok := digraphs[word[i:i+2]]; ok {
				class = c
				i += 2
			}
		}
		if class == "" {
			ch := word[i]
			i++
			if ch < 'a' || ch > 'z' {
				continue
			}
			class = classForSingle(ch)
		}
		dur := scaledDuration(baseMS, class)
		entries = append(entries, Entry{
			Class:      class,
			StartMS:    clock,
			DurationMS: dur,
			Intensity:  class.Intensity(),
		})
		clock += dur
	}
	return entries
}

func scaledDuration(baseMS int, class Class) int {
	return int(math.Round(float64(baseMS) * class.DurationMult()))
}

// normalize lowercases and strips everything outside letters, whitespace,
// and sentence punctuation; punctuation is then treated as a word break.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(' ')
		case r == '.' || r == ',' || r == '!' || r == '?' || r == ';' || r == ':':
			b.WriteRune(' ')
		}
	}
	return b.String()
}
