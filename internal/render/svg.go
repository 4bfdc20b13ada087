// Package render draws a classified vector layer as SVG.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	svg "github.com/ajstarks/svgo"
	"github.com/paulmach/orb"

	"geolayer/internal/geom"
	"geolayer/internal/layer"
	"geolayer/internal/legend"
)

var ErrEmptyLayer = errors.New("layer has no shapes")

// Options control the SVG output. Width is the pixel width of the map area;
// the height follows the extent's aspect ratio.
type Options struct {
	Width  int
	Margin int
	Labels bool
	Charts bool
	Legend bool
}

func DefaultOptions() Options {
	return Options{Width: 800, Margin: 10, Legend: true}
}

type frame struct {
	box    geom.BBox
	scale  float64
	margin int
}

func newFrame(box geom.BBox, opts Options) frame {
	if box.Width() == 0 || box.Height() == 0 {
		box = box.Expand(0.5)
	}
	w := opts.Width
	if w <= 0 {
		w = DefaultOptions().Width
	}
	return frame{box: box, scale: float64(w) / box.Width(), margin: max(opts.Margin, 0)}
}

func (f frame) size() (int, int) {
	w := int(math.Round(f.box.Width() * f.scale))
	h := int(math.Round(f.box.Height() * f.scale))
	return w + 2*f.margin, h + 2*f.margin
}

func (f frame) xy(p orb.Point) (int, int) {
	return int(math.Round((p[0]-f.box.MinX)*f.scale)) + f.margin,
		int(math.Round((f.box.MaxY-p[1])*f.scale)) + f.margin
}

// Render writes v as a standalone SVG document. Shapes with no legend
// break are not drawn. Label and chart value errors are returned after the
// document is complete.
func Render(w io.Writer, v *layer.VectorLayer, opts Options) error {
	ext, ok := v.Extent()
	if !ok {
		return ErrEmptyLayer
	}
	f := newFrame(ext, opts)
	scheme := v.LegendScheme()

	canvas := svg.New(w)
	canvas.Start(f.size())
	canvas.Title(v.Name)
	canvas.Group(`id="shapes"`, fmt.Sprintf(`opacity="%.3g"`, 1-v.Transparency))
	for _, s := range v.Shapes() {
		if s.LegendIndex < 0 || s.LegendIndex >= scheme.BreakCount() {
			continue
		}
		drawShape(canvas, f, s, scheme.Breaks[s.LegendIndex])
	}
	canvas.Gend()

	var errs []error
	if opts.Labels && v.Labels.Field != "" {
		errs = append(errs, drawLabels(canvas, f, v))
	}
	if opts.Charts && len(v.Charts.Fields) > 0 {
		errs = append(errs, drawCharts(canvas, f, v))
	}
	if opts.Legend {
		drawLegend(canvas, scheme)
	}
	canvas.End()
	return errors.Join(errs...)
}

func paint(attr string, c legend.Color) []string {
	out := []string{fmt.Sprintf(`%s="#%02x%02x%02x"`, attr, c.R, c.G, c.B)}
	if c.A != 0 && c.A != 255 {
		out = append(out, fmt.Sprintf(`%s-opacity="%.3g"`, attr, float64(c.A)/255))
	}
	return out
}

func shapeStyle(b legend.ColorBreak, fill bool) []string {
	var st []string
	if fill && b.DrawFill {
		st = append(st, paint("fill", b.Color)...)
	} else {
		st = append(st, `fill="none"`)
	}
	outline, width := b.OutlineColor, b.OutlineSize
	if !fill {
		outline, width = b.Color, b.Size
	}
	if !fill || b.DrawOutline {
		st = append(st, paint("stroke", outline)...)
		st = append(st, fmt.Sprintf(`stroke-width="%.3g"`, math.Max(width, 0.5)))
	}
	return st
}

func drawShape(canvas *svg.SVG, f frame, s *geom.Shape, b legend.ColorBreak) {
	var extra []string
	if s.Selected {
		extra = append(extra, `class="selected"`)
	}
	switch s.Family() {
	case geom.FamilyPoint:
		st := append(shapeStyle(b, true), extra...)
		r := int(math.Max(math.Round(b.Size/2), 1))
		for _, p := range s.Vertices() {
			x, y := f.xy(p)
			canvas.Circle(x, y, r, st...)
		}
	case geom.FamilyLine:
		st := append(shapeStyle(b, false), extra...)
		for _, part := range s.Outlines() {
			xs, ys := f.coords(part)
			canvas.Polyline(xs, ys, st...)
		}
	case geom.FamilyPolygon:
		st := append(shapeStyle(b, true), `fill-rule="evenodd"`)
		canvas.Path(f.ringPath(s.Outlines()), append(st, extra...)...)
	}
}

func (f frame) coords(ls orb.LineString) ([]int, []int) {
	xs := make([]int, len(ls))
	ys := make([]int, len(ls))
	for i, p := range ls {
		xs[i], ys[i] = f.xy(p)
	}
	return xs, ys
}

// ringPath joins every ring into one path so holes cut out with evenodd.
func (f frame) ringPath(rings []orb.LineString) string {
	var sb strings.Builder
	for _, r := range rings {
		for i, p := range r {
			x, y := f.xy(p)
			cmd := "L"
			if i == 0 {
				cmd = "M"
			}
			fmt.Fprintf(&sb, "%s%d %d ", cmd, x, y)
		}
		sb.WriteString("Z ")
	}
	return strings.TrimSpace(sb.String())
}

// drawLabels generates labels with collision boxes measured in pixels.
func drawLabels(canvas *svg.SVG, f frame, v *layer.VectorLayer) error {
	ls := v.Labels
	ls.UnitsPerPoint = 1 / f.scale
	labels, err := v.GenerateLabelsWith(ls)

	canvas.Gid("labels")
	for _, l := range labels {
		x, y := f.xy(orb.Point{l.X, l.Y})
		st := append(paint("fill", l.Color),
			fmt.Sprintf(`font-size="%.3g"`, l.Font.Size),
			fmt.Sprintf(`font-family="%s"`, l.Font.Name),
			`text-anchor="middle"`)
		if l.Font.Bold {
			st = append(st, `font-weight="bold"`)
		}
		canvas.Text(x, y, l.Text, st...)
	}
	canvas.Gend()
	return err
}

func drawCharts(canvas *svg.SVG, f frame, v *layer.VectorLayer) error {
	charts, err := v.GenerateCharts()
	canvas.Gid("charts")
	for _, c := range charts {
		x, y := f.xy(orb.Point{c.X, c.Y})
		if c.Type == layer.ChartPie.String() {
			drawPie(canvas, x, y, c)
			continue
		}
		bw := int(math.Max(c.Width/float64(max(len(c.Values), 1)), 1))
		left := x - int(c.Width/2)
		for k, h := range c.Sizes {
			hh := int(math.Round(h))
			canvas.Rect(left+k*bw, y-hh, bw, hh, append(paint("fill", c.Colors[k]), `stroke="black"`)...)
		}
	}
	canvas.Gend()
	return err
}

func drawPie(canvas *svg.SVG, cx, cy int, c layer.Chart) {
	total := 0.0
	for _, x := range c.Values {
		total += math.Abs(x)
	}
	r := c.Sizes[0] / 2
	if total == 0 {
		canvas.Circle(cx, cy, int(math.Max(r, 1)), `fill="none"`, `stroke="black"`)
		return
	}
	angle := -math.Pi / 2
	for k, x := range c.Values {
		sweep := math.Abs(x) / total * 2 * math.Pi
		if sweep == 0 {
			continue
		}
		st := append(paint("fill", c.Colors[k]), `stroke="black"`)
		if sweep >= 2*math.Pi-1e-9 {
			canvas.Circle(cx, cy, int(math.Max(r, 1)), st...)
			return
		}
		x0, y0 := float64(cx)+r*math.Cos(angle), float64(cy)+r*math.Sin(angle)
		angle += sweep
		x1, y1 := float64(cx)+r*math.Cos(angle), float64(cy)+r*math.Sin(angle)
		large := 0
		if sweep > math.Pi {
			large = 1
		}
		d := fmt.Sprintf("M%d %d L%.2f %.2f A%.2f %.2f 0 %d 1 %.2f %.2f Z", cx, cy, x0, y0, r, r, large, x1, y1)
		canvas.Path(d, st...)
	}
}

func drawLegend(canvas *svg.SVG, s *legend.Scheme) {
	const row = 16
	canvas.Gid("legend")
	for i, b := range s.Breaks {
		y := 4 + i*row
		canvas.Rect(4, y, 12, 12, append(paint("fill", b.Color), `stroke="black"`)...)
		canvas.Text(20, y+10, b.Caption, `font-size="10"`, `font-family="sans-serif"`)
	}
	canvas.Gend()
}
