package viseme

import (
	"reflect"
	"testing"
)

func TestGenerateTimelineHi(t *testing.T) {
	cfg := Config{BasePhonemeMS: 80, WordGapMS: 100}
	tl := GenerateTimeline("hi", cfg)

	want := []Entry{
		{Class: ClassTongue, StartMS: 0, DurationMS: 80, Intensity: 0.5},
		{Class: ClassHigh, StartMS: 80, DurationMS: 96, Intensity: 0.6},
		{Class: ClassRest, StartMS: 176, DurationMS: 100, Intensity: 0},
	}
	if !reflect.DeepEqual(tl.Phonemes, want) {
		t.Fatalf("phonemes mismatch:\n got %+v\nwant %+v", tl.Phonemes, want)
	}
	if tl.TotalMS != 276 {
		t.Fatalf("total duration = %d, want 276", tl.TotalMS)
	}
	if err := tl.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestGenerateTimelineContiguity(t *testing.T) {
	texts := []string{
		"hello there, how are you?",
		"The quick brown fox jumps over the lazy dog.",
		"ooh! aye... champion",
		"a",
		"   spaced    out   words   ",
	}
	for _, text := range texts {
		tl := GenerateTimeline(text, DefaultConfig())
		if err := tl.Validate(); err != nil {
			t.Fatalf("%q: %v", text, err)
		}
		sum := 0
		for _, e := range tl.Phonemes {
			sum += e.DurationMS
		}
		if sum != tl.TotalMS {
			t.Fatalf("%q: durations sum to %d, total %d", text, sum, tl.TotalMS)
		}
	}
}

func TestGenerateTimelineDeterministic(t *testing.T) {
	a := GenerateTimeline("Good morning, world!", DefaultConfig())
	b := GenerateTimeline("Good morning, world!", DefaultConfig())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("identical input produced different timelines")
	}
}

func TestGenerateTimelineMaximalMunch(t *testing.T) {
	tl := GenerateTimeline("thee", Config{BasePhonemeMS: 80, WordGapMS: 0})
	// "th" must match as a digraph before 't', then "ee" as a digraph.
	if len(tl.Phonemes) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(tl.Phonemes), tl.Phonemes)
	}
	if tl.Phonemes[0].Class != ClassTongue || tl.Phonemes[1].Class != ClassHigh {
		t.Fatalf("unexpected classes: %+v", tl.Phonemes)
	}
}

func TestGenerateTimelineEmpty(t *testing.T) {
	tl := GenerateTimeline("  ... !!", DefaultConfig())
	if len(tl.Phonemes) != 0 || tl.TotalMS != 0 {
		t.Fatalf("expected empty timeline, got %+v", tl)
	}
	if err := tl.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestEntryAt(t *testing.T) {
	tl := GenerateTimeline("hi", Config{BasePhonemeMS: 80, WordGapMS: 100})
	cases := []struct {
		elapsed int
		class   Class
		ok      bool
	}{
		{0, ClassTongue, true},
		{79, ClassTongue, true},
		{80, ClassHigh, true},
		{175, ClassHigh, true},
		{176, ClassRest, true},
		{275, ClassRest, true},
		{276, "", false},
		{-1, "", false},
	}
	for _, c := range cases {
		e, ok := tl.EntryAt(c.elapsed)
		if ok != c.ok {
			t.Fatalf("EntryAt(%d) ok = %v, want %v", c.elapsed, ok, c.ok)
		}
		if ok && e.Class != c.class {
			t.Fatalf("EntryAt(%d) class = %s, want %s", c.elapsed, e.Class, c.class)
		}
	}
}

func TestLevelToPhonemeBands(t *testing.T) {
	cases := []struct {
		level float64
		class Class
	}{
		{0.0, ClassRest},
		{0.19, ClassRest},
		{0.2, ClassClosed},
		{0.45, ClassMid},
		{0.75, ClassOpen},
		{0.95, ClassWide},
		{1.0, ClassWide},
		{-0.5, ClassRest},
		{3.0, ClassWide},
	}
	for _, c := range cases {
		e := LevelToPhoneme(c.level)
		if e.Class != c.class {
			t.Fatalf("LevelToPhoneme(%v) = %s, want %s", c.level, e.Class, c.class)
		}
	}
}

func TestTimelineValidateDetectsGaps(t *testing.T) {
	tl := Timeline{
		Phonemes: []Entry{
			{Class: ClassOpen, StartMS: 0, DurationMS: 80},
			{Class: ClassMid, StartMS: 100, DurationMS: 80},
		},
		TotalMS: 180,
	}
	if err := tl.Validate(); err == nil {
		t.Fatalf("expected validation failure for non-contiguous timeline")
	}
}
