package viseme

// Shape is the continuous mouth pose consumed by the rendering front end.
// Components are in [0,1].
type Shape struct {
	Open  float64 `json:"open"`
	Wide  float64 `json:"wide"`
	Round float64 `json:"round"`
}

// RestShape is the relaxed pose targeted when nothing is being spoken.
func RestShape() Shape { return Shape{} }

// Lerp moves s toward target by factor, the exponential smoothing step
// applied once per scheduler tick: s + (target-s)*factor.
func (s Shape) Lerp(target Shape, factor float64) Shape {
	return Shape{
		Open:  s.Open + (target.Open-s.Open)*factor,
		Wide:  s.Wide + (target.Wide-s.Wide)*factor,
		Round: s.Round + (target.Round-s.Round)*factor,
	}
}

// fullShapes holds the canonical full-intensity pose per class; the entry
// intensity scales it down.
var fullShapes = map[Class]Shape{
	ClassOpen:   {Open: 1.0},
	ClassMid:    {Open: 0.6},
	ClassHigh:   {Open: 0.3, Wide: 0.7},
	ClassWide:   {Open: 0.5, Wide: 1.0},
	ClassRound:  {Open: 0.4, Round: 1.0},
	ClassLong:   {Open: 0.3, Round: 0.8},
	ClassClosed: {Open: 0.05},
	ClassTeeth:  {Open: 0.2, Wide: 0.4},
	ClassTongue: {Open: 0.35},
	ClassRest:   {},
}

// TargetShape converts a class and intensity to the mouth pose the
// scheduler smooths toward.
func (c Class) TargetShape(intensity float64) Shape {
	if intensity < 0 {
		intensity = 0
	}
	if intensity > 1 {
		intensity = 1
	}
	full := fullShapes[c]
	return Shape{
		Open:  full.Open * intensity,
		Wide:  full.Wide * intensity,
		Round: full.Round * intensity,
	}
}
