// Package legend builds classification schemes that map attribute values to
// rendering styles.
package legend

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"geolayer/internal/geom"
)

// Type is the classification mode of a scheme.
type Type int

const (
	SingleSymbol Type = iota
	UniqueValue
	GraduatedColor
)

func (t Type) String() string {
	switch t {
	case UniqueValue:
		return "unique"
	case GraduatedColor:
		return "graduated"
	}
	return "single"
}

func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "singlesymbol", "":
		return SingleSymbol, nil
	case "unique", "uniquevalue":
		return UniqueValue, nil
	case "graduated", "graduatedcolor":
		return GraduatedColor, nil
	}
	return SingleSymbol, fmt.Errorf("unknown legend type %q", s)
}

// ErrCannotClassify is returned when a field has too little variation to
// build a scheme from.
var ErrCannotClassify = errors.New("cannot classify")

// Epsilon is the tolerance for numeric break matching.
const Epsilon = 1e-9

// DefaultMissingValue marks absent numeric data.
const DefaultMissingValue = -9999.0

// ColorBreak is one classification bucket and its style.
// UniqueValue breaks match on Value (and Start for numeric fields);
// GraduatedColor breaks cover [Start, End).
type ColorBreak struct {
	Value        string  `json:"value,omitempty"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Caption      string  `json:"caption"`
	Color        Color   `json:"color"`
	OutlineColor Color   `json:"outlineColor"`
	Size         float64 `json:"size"`
	OutlineSize  float64 `json:"outlineSize"`
	DrawFill     bool    `json:"drawFill"`
	DrawOutline  bool    `json:"drawOutline"`
	NoData       bool    `json:"noData"`
}

// Scheme is an ordered set of breaks, optionally bound to a field.
type Scheme struct {
	Type         Type         `json:"type"`
	Family       geom.Family  `json:"family"`
	FieldName    string       `json:"fieldName,omitempty"`
	NumericField bool         `json:"numericField"`
	Breaks       []ColorBreak `json:"breaks"`
	MinValue     float64      `json:"minValue"`
	MaxValue     float64      `json:"maxValue"`
	MissingValue float64      `json:"missingValue"`
}

func (s *Scheme) Clone() *Scheme {
	if s == nil {
		return nil
	}
	c := *s
	c.Breaks = append([]ColorBreak(nil), s.Breaks...)
	return &c
}

func (s *Scheme) BreakCount() int {
	if s == nil {
		return 0
	}
	return len(s.Breaks)
}

// ValidIndex reports whether i is -1 or addresses a break.
func (s *Scheme) ValidIndex(i int) bool {
	return i >= -1 && i < s.BreakCount()
}

// IsMissing reports whether v equals the missing-value sentinel.
func (s *Scheme) IsMissing(v float64) bool {
	return math.Abs(v-s.MissingValue) <= Epsilon
}

// UniqueIndex finds the break for a value's text form. For numeric fields,
// a parsed value matches a break start within Epsilon. The reserved
// default break never matches.
func (s *Scheme) UniqueIndex(text string, num float64, isNum bool) int {
	for i, b := range s.Breaks {
		if b.NoData {
			continue
		}
		if s.NumericField && isNum {
			if math.Abs(b.Start-num) <= Epsilon {
				return i
			}
			continue
		}
		if b.Value == text {
			return i
		}
	}
	return -1
}

// GraduatedIndex finds the break covering v. Values at or below the minimum
// clamp to the first break, at or above the maximum to the last. Breaks are
// half-open except the last, which is closed.
func (s *Scheme) GraduatedIndex(v float64) int {
	if s.IsMissing(v) || math.IsNaN(v) {
		return -1
	}
	n := 0
	for _, b := range s.Breaks {
		if !b.NoData {
			n++
		}
	}
	if n == 0 {
		return -1
	}
	if v <= s.MinValue {
		return 0
	}
	if v >= s.MaxValue {
		return n - 1
	}
	for i := 0; i < n; i++ {
		b := s.Breaks[i]
		if i == n-1 {
			if b.Start <= v && v <= b.End {
				return i
			}
			continue
		}
		if b.Start <= v && v < b.End {
			return i
		}
	}
	return -1
}
