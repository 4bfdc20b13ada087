package layer

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/paulmach/orb"

	"geolayer/internal/geom"
	"geolayer/internal/legend"
	"geolayer/internal/table"
)

// NumberFormat controls how numeric label values are printed.
type NumberFormat int

const (
	// FormatTrim drops trailing zeros.
	FormatTrim NumberFormat = iota
	// FormatFixed always prints DecimalDigits digits.
	FormatFixed
)

type Font struct {
	Name string  `json:"name" yaml:"name"`
	Size float64 `json:"size" yaml:"size"`
	Bold bool    `json:"bold" yaml:"bold"`
}

// LabelSet configures label generation.
type LabelSet struct {
	Field          string
	Font           Font
	Color          legend.Color
	OffsetX        float64
	OffsetY        float64
	AvoidCollision bool
	NumberFormat   NumberFormat
	AutoDecimal    bool
	DecimalDigits  int
	// UnitsPerPoint converts font points to map units for collision boxes.
	UnitsPerPoint float64
}

func DefaultLabelSet() LabelSet {
	return LabelSet{
		Font:          Font{Name: "sans-serif", Size: 9},
		Color:         legend.Black,
		AutoDecimal:   true,
		UnitsPerPoint: 1,
	}
}

// Label is one generated annotation.
type Label struct {
	Index int          `json:"index"`
	Text  string       `json:"text"`
	X     float64      `json:"x"`
	Y     float64      `json:"y"`
	Font  Font         `json:"font"`
	Color legend.Color `json:"color"`
}

// Anchor is the label position of a shape: the point itself, the middle
// vertex of a line, or the box centre of a polygon.
func Anchor(s *geom.Shape) orb.Point {
	switch s.Family() {
	case geom.FamilyPoint:
		if p, ok := s.Geometry.(orb.Point); ok {
			return p
		}
		return s.BBox().Center()
	case geom.FamilyLine:
		pts := s.Vertices()
		if len(pts) > 0 {
			return pts[len(pts)/2]
		}
	}
	return s.BBox().Center()
}

// targets are the shapes annotated: the selection if any, else all.
func (v *VectorLayer) targets() []int {
	if sel := v.SelectedIndexes(); len(sel) > 0 {
		return sel
	}
	out := make([]int, len(v.shapes))
	for i := range out {
		out[i] = i
	}
	return out
}

// AutoDecimalDigits derives a digit count from the smallest magnitude.
func AutoDecimalDigits(min float64) int {
	if min == 0 {
		return 0
	}
	d := 1 - int(math.Floor(math.Log10(math.Abs(min))))
	if d < 0 {
		return 0
	}
	return d
}

// FormatNumber prints v with the given digits, trimming zeros for FormatTrim.
func FormatNumber(v float64, f NumberFormat, digits int) string {
	if digits < 0 {
		digits = 0
	}
	s := strconv.FormatFloat(v, 'f', digits, 64)
	if f == FormatTrim && strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

// GenerateLabels derives labels from the label field. Numeric values that
// cannot be parsed are labelled with their raw text and reported.
func (v *VectorLayer) GenerateLabels() ([]Label, error) {
	return v.GenerateLabelsWith(v.Labels)
}

// GenerateLabelsWith is GenerateLabels with settings that are not stored on
// the layer.
func (v *VectorLayer) GenerateLabelsWith(ls LabelSet) ([]Label, error) {
	f, err := v.table.Field(ls.Field)
	if err != nil {
		return nil, err
	}
	idx := v.targets()

	digits := ls.DecimalDigits
	if f.Type.Numeric() && ls.AutoDecimal {
		lo := math.Inf(1)
		for _, i := range idx {
			if x, ok, err := v.table.Float(i, ls.Field); err == nil && ok && !v.isMissing(x) {
				lo = math.Min(lo, x)
			}
		}
		if !math.IsInf(lo, 1) {
			digits = AutoDecimalDigits(lo)
		}
	}
	if f.Type == table.Integer {
		digits = 0
	}

	var (
		out   []Label
		errs  []error
		boxes []geom.BBox
	)
	for _, i := range idx {
		raw, _ := v.table.Value(i, ls.Field)
		if raw == nil {
			continue
		}
		text := table.FormatValue(raw)
		if f.Type.Numeric() {
			x, _, err := v.table.Float(i, ls.Field)
			if err != nil {
				errs = append(errs, err)
			} else {
				text = FormatNumber(x, ls.NumberFormat, digits)
			}
		}
		p := Anchor(v.shapes[i])
		l := Label{
			Index: i,
			Text:  text,
			X:     p[0] + ls.OffsetX,
			Y:     p[1] + ls.OffsetY,
			Font:  ls.Font,
			Color: ls.Color,
		}
		if ls.AvoidCollision {
			b := labelBox(l, ls.UnitsPerPoint)
			if overlapsAny(b, boxes) {
				continue
			}
			boxes = append(boxes, b)
		}
		out = append(out, l)
	}
	return out, errors.Join(errs...)
}

func labelBox(l Label, unitsPerPoint float64) geom.BBox {
	if unitsPerPoint <= 0 {
		unitsPerPoint = 1
	}
	w := float64(utf8.RuneCountInString(l.Text)) * l.Font.Size * 0.6 * unitsPerPoint
	h := l.Font.Size * unitsPerPoint
	return geom.NewBBox(l.X-w/2, l.Y-h/2, l.X+w/2, l.Y+h/2)
}

func overlapsAny(b geom.BBox, boxes []geom.BBox) bool {
	for _, o := range boxes {
		if b.MinX < o.MaxX && o.MinX < b.MaxX && b.MinY < o.MaxY && o.MinY < b.MaxY {
			return true
		}
	}
	return false
}
