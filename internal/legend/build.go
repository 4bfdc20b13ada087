package legend

import (
	"fmt"
	"math"
	"strconv"

	"geolayer/internal/geom"
)

// Options tune the classification builders.
type Options struct {
	MissingValue float64
	// RainbowLimit is the largest unique-value count coloured with the
	// rainbow ramp; larger sets get random colours.
	RainbowLimit int
	Seed         uint64
	// Intervals is the target number of graduated classes.
	Intervals int
}

func DefaultOptions() Options {
	return Options{
		MissingValue: DefaultMissingValue,
		RainbowLimit: 13,
		Seed:         1,
		Intervals:    10,
	}
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

var polygonFill = RGB(255, 251, 195)

// DefaultBreak returns the base style for a family with the given colour.
func DefaultBreak(family geom.Family, c Color) ColorBreak {
	b := ColorBreak{Color: c, OutlineColor: Black}
	switch family {
	case geom.FamilyPoint:
		b.Size = 5
		b.DrawFill = true
		b.DrawOutline = true
		b.OutlineSize = 1
	case geom.FamilyLine:
		b.Size = 1
		b.DrawOutline = true
	case geom.FamilyPolygon:
		b.Size = 1
		b.DrawFill = true
		b.DrawOutline = true
		b.OutlineColor = Gray
		b.OutlineSize = 1
	}
	return b
}

// NewSingleSymbol returns a one-break scheme with the family's fixed style.
func NewSingleSymbol(family geom.Family, opts Options) *Scheme {
	var c Color
	switch family {
	case geom.FamilyPoint:
		c = Red
	case geom.FamilyLine:
		c = Black
	default:
		c = polygonFill
	}
	b := DefaultBreak(family, c)
	b.Caption = family.String()
	return &Scheme{
		Type:         SingleSymbol,
		Family:       family,
		Breaks:       []ColorBreak{b},
		MissingValue: opts.MissingValue,
	}
}

// UniqueInput is one distinct value of the classified field.
type UniqueInput struct {
	Text    string
	Number  float64
	Numeric bool
}

// NewUniqueValue builds one break per distinct value, in the given order,
// plus a trailing default break. Fewer than two values cannot be classified.
func NewUniqueValue(family geom.Family, field string, numeric bool, values []UniqueInput, opts Options) (*Scheme, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("%w: field %q has %d distinct values", ErrCannotClassify, field, len(values))
	}
	var colors []Color
	if len(values) <= opts.RainbowLimit {
		colors = Rainbow(len(values))
	} else {
		colors = RandomColors(len(values), opts.Seed)
	}
	s := &Scheme{
		Type:         UniqueValue,
		Family:       family,
		FieldName:    field,
		NumericField: numeric,
		MissingValue: opts.MissingValue,
		Breaks:       make([]ColorBreak, 0, len(values)+1),
	}
	for i, v := range values {
		b := DefaultBreak(family, colors[i])
		b.Value = v.Text
		b.Caption = v.Text
		if v.Numeric {
			b.Start, b.End = v.Number, v.Number
		}
		s.Breaks = append(s.Breaks, b)
	}
	def := DefaultBreak(family, White)
	def.Caption = "Default"
	def.NoData = true
	s.Breaks = append(s.Breaks, def)
	return s, nil
}

// NewGraduatedColor splits [min, max] at nice contour values into a rainbow ramp.
func NewGraduatedColor(family geom.Family, field string, min, max float64, opts Options) (*Scheme, error) {
	if !finite(min) || !finite(max) || !finite(max-min) {
		return nil, fmt.Errorf("%w: field %q range [%v, %v] is not finite", ErrCannotClassify, field, min, max)
	}
	if max-min <= 0 {
		return nil, fmt.Errorf("%w: field %q has constant value %v", ErrCannotClassify, field, min)
	}
	n := opts.Intervals
	if n <= 0 {
		n = 10
	}
	cuts := ContourValues(min, max, n)
	edges := make([]float64, 0, len(cuts)+2)
	edges = append(edges, min)
	edges = append(edges, cuts...)
	edges = append(edges, max)

	colors := Rainbow(len(edges) - 1)
	s := &Scheme{
		Type:         GraduatedColor,
		Family:       family,
		FieldName:    field,
		NumericField: true,
		MinValue:     min,
		MaxValue:     max,
		MissingValue: opts.MissingValue,
		Breaks:       make([]ColorBreak, 0, len(edges)-1),
	}
	for i := 0; i+1 < len(edges); i++ {
		b := DefaultBreak(family, colors[i])
		b.Start, b.End = edges[i], edges[i+1]
		b.Caption = formatNum(b.Start) + " - " + formatNum(b.End)
		s.Breaks = append(s.Breaks, b)
	}
	return s, nil
}

// NiceStep rounds span/n to 1, 2 or 5 times a power of ten.
func NiceStep(span float64, n int) float64 {
	if span <= 0 || n <= 0 {
		return 0
	}
	raw := span / float64(n)
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	norm := raw / mag
	switch {
	case norm < 1.5:
		norm = 1
	case norm < 3:
		norm = 2
	case norm < 7:
		norm = 5
	default:
		norm = 10
	}
	return norm * mag
}

// ContourValues returns multiples of a nice step strictly inside (min, max).
// It returns nil when the step is finer than the float spacing at the range.
func ContourValues(min, max float64, n int) []float64 {
	step := NiceStep(max-min, n)
	if step == 0 || !finite(step) {
		return nil
	}
	mag := math.Max(math.Abs(min), math.Abs(max))
	if step <= math.Nextafter(mag, math.Inf(1))-mag {
		return nil
	}
	first, last := math.Ceil(min/step), math.Floor(max/step)
	count := int(last-first) + 1
	if count <= 0 || count > 4*n+2 {
		return nil
	}
	tol := step * 1e-6
	var out []float64
	for i := 0; i < count; i++ {
		v := roundTo((first+float64(i))*step, step)
		if v <= min+tol || v >= max-tol {
			continue
		}
		out = append(out, v)
	}
	return out
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func roundTo(v, step float64) float64 {
	digits := -int(math.Floor(math.Log10(step)))
	if digits < 0 {
		return v
	}
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}
