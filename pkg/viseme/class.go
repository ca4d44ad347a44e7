package viseme

// Class is a discrete visual mouth category standing in for a sound or
// letter group. The set is closed; every letter maps to exactly one class.
type Class string

const (
	ClassOpen   Class = "open"   // open jaw vowels (a)
	ClassClosed Class = "closed" // bilabials (b, m, p)
	ClassMid    Class = "mid"    // mid vowels (e)
	ClassWide   Class = "wide"   // diphthongs
	ClassRound  Class = "round"  // rounded vowels (o) and postalveolars
	ClassLong   Class = "long"   // long rounded vowels (u, "oo")
	ClassTeeth  Class = "teeth"  // labiodentals (f, v)
	ClassTongue Class = "tongue" // default consonant class
	ClassHigh   Class = "high"   // high front vowels (i, "ee")
	ClassRest   Class = "rest"   // silence
)

type classTraits struct {
	durationMult float64
	intensity    float64
}

// The multiplier/intensity constants are tunable styling parameters, not a
// phonetic model. They only need to stay stable so generated timelines are
// reproducible.
var traits = map[Class]classTraits{
	ClassOpen:   {durationMult: 1.0, intensity: 1.0},
	ClassClosed: {durationMult: 0.8, intensity: 0.9},
	ClassMid:    {durationMult: 1.0, intensity: 0.7},
	ClassWide:   {durationMult: 1.4, intensity: 0.9},
	ClassRound:  {durationMult: 1.1, intensity: 0.8},
	ClassLong:   {durationMult: 1.3, intensity: 0.7},
	ClassTeeth:  {durationMult: 0.8, intensity: 0.6},
	ClassTongue: {durationMult: 1.0, intensity: 0.5},
	ClassHigh:   {durationMult: 1.2, intensity: 0.6},
	ClassRest:   {durationMult: 1.0, intensity: 0.0},
}

// DurationMult returns the fixed duration multiplier for the class.
func (c Class) DurationMult() float64 { return traits[c].durationMult }

// Intensity returns the fixed articulation intensity for the class.
func (c Class) Intensity() float64 { return traits[c].intensity }

func (c Class) String() string { return string(c) }

// digraphs is the 2-character maximal-munch table, checked before the
// single-character table.
var digraphs = map[string]Class{
	"th": ClassTongue,
	"sh": ClassRound,
	"ch": ClassRound,
	"ee": ClassHigh,
	"oo": ClassLong,
	"ea": ClassHigh,
	"ai": ClassWide,
	"ay": ClassWide,
	"ou": ClassWide,
	"ow": ClassWide,
	"ie": ClassWide,
	"oi": ClassWide,
	"oy": ClassWide,
}

var singles = map[byte]Class{
	'a': ClassOpen,
	'e': ClassMid,
	'i': ClassHigh,
	'o': ClassRound,
	'u': ClassLong,
	'b': ClassClosed,
	'm': ClassClosed,
	'p': ClassClosed,
	'f': ClassTeeth,
	'v': ClassTeeth,
	'w': ClassRound,
}

func classForSingle(ch byte) Class {
	if c, ok := singles[ch]; ok {
		return c
	}
	return ClassTongue
}
