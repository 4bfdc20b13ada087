package layer

import (
	"errors"
	"math"

	"geolayer/internal/geom"
	"geolayer/internal/legend"
)

type ChartType int

const (
	ChartBar ChartType = iota
	ChartPie
)

func (c ChartType) String() string {
	if c == ChartPie {
		return "pie"
	}
	return "bar"
}

// ChartSet configures chart generation over one or more numeric fields.
type ChartSet struct {
	Type           ChartType
	Fields         []string
	Colors         []legend.Color
	MaxSize        float64
	MinSize        float64
	BarWidth       float64
	OffsetX        float64
	OffsetY        float64
	AvoidCollision bool
}

func DefaultChartSet() ChartSet {
	return ChartSet{MaxSize: 50, MinSize: 10, BarWidth: 8}
}

func (c ChartSet) clone() ChartSet {
	c.Fields = append([]string(nil), c.Fields...)
	c.Colors = append([]legend.Color(nil), c.Colors...)
	return c
}

// Chart is one generated glyph. For bar charts Sizes are bar heights; for
// pie charts Sizes holds the single diameter.
type Chart struct {
	Index  int            `json:"index"`
	Type   string         `json:"type"`
	X      float64        `json:"x"`
	Y      float64        `json:"y"`
	Values []float64      `json:"values"`
	Sizes  []float64      `json:"sizes"`
	Width  float64        `json:"width"`
	Height float64        `json:"height"`
	Colors []legend.Color `json:"colors"`
}

// GenerateCharts derives charts from the chart fields. A shape with a value
// that cannot be parsed gets no chart; those errors are returned joined
// alongside the charts that were built.
func (v *VectorLayer) GenerateCharts() ([]Chart, error) {
	cs := v.Charts
	if len(cs.Fields) == 0 {
		return nil, errors.New("no chart fields")
	}
	for _, f := range cs.Fields {
		if _, err := v.table.Field(f); err != nil {
			return nil, err
		}
	}
	colors := cs.Colors
	if len(colors) < len(cs.Fields) {
		colors = legend.Rainbow(len(cs.Fields))
	}

	type entry struct {
		i      int
		values []float64
	}
	var (
		entries []entry
		errs    []error
	)
	maxAbs, minSum, maxSum := 0.0, math.Inf(1), math.Inf(-1)
	for _, i := range v.targets() {
		vals := make([]float64, len(cs.Fields))
		ok := true
		for k, f := range cs.Fields {
			x, has, err := v.table.Float(i, f)
			if err != nil {
				errs = append(errs, err)
				ok = false
				break
			}
			if has && !v.isMissing(x) {
				vals[k] = x
			}
		}
		if !ok {
			continue
		}
		sum := 0.0
		for _, x := range vals {
			maxAbs = math.Max(maxAbs, math.Abs(x))
			sum += math.Abs(x)
		}
		minSum, maxSum = math.Min(minSum, sum), math.Max(maxSum, sum)
		entries = append(entries, entry{i: i, values: vals})
	}

	var (
		out   []Chart
		boxes []geom.BBox
	)
	for _, e := range entries {
		p := Anchor(v.shapes[e.i])
		c := Chart{
			Index:  e.i,
			Type:   cs.Type.String(),
			X:      p[0] + cs.OffsetX,
			Y:      p[1] + cs.OffsetY,
			Values: e.values,
			Colors: colors[:len(cs.Fields)],
		}
		switch cs.Type {
		case ChartPie:
			sum := 0.0
			for _, x := range e.values {
				sum += math.Abs(x)
			}
			size := cs.MaxSize
			if maxSum > minSum {
				size = cs.MinSize + (sum-minSum)/(maxSum-minSum)*(cs.MaxSize-cs.MinSize)
			}
			c.Sizes = []float64{size}
			c.Width, c.Height = size, size
		default:
			c.Sizes = make([]float64, len(e.values))
			for k, x := range e.values {
				if maxAbs > 0 {
					c.Sizes[k] = math.Abs(x) / maxAbs * cs.MaxSize
				}
				c.Height = math.Max(c.Height, c.Sizes[k])
			}
			c.Width = cs.BarWidth * float64(len(e.values))
		}
		if cs.AvoidCollision {
			b := geom.NewBBox(c.X-c.Width/2, c.Y, c.X+c.Width/2, c.Y+c.Height)
			if overlapsAny(b, boxes) {
				continue
			}
			boxes = append(boxes, b)
		}
		out = append(out, c)
	}
	return out, errors.Join(errs...)
}
