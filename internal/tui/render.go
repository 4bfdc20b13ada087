package tui

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"

	"geolayer/internal/geom"
	"geolayer/internal/legend"
)

// frame is the box mapped onto the canvas; a single point or a flat line
// gets a unit-wide box so it still projects.
func (m Model) frame() (geom.BBox, bool) {
	if m.layer == nil || m.layer.ShapeCount() == 0 {
		return geom.BBox{}, false
	}
	b := m.bbox
	if b.Width() <= 0 || b.Height() <= 0 {
		b = b.Expand(0.5)
	}
	return b, true
}

// cellToLonLat converts a map cell coordinate back to lon/lat using bbox, zoom, and pan.
func (m Model) cellToLonLat(cx, cy, w, h int) (float64, float64, bool) {
	b, ok := m.frame()
	if !ok || w <= 1 || h <= 1 {
		return 0, 0, false
	}
	zx := float64(cx-m.offsetX) / float64(w-1)
	zy := 1.0 - float64(cy-m.offsetY)/float64(h-1)
	nx := 0.5 + (zx-0.5)/m.zoom
	ny := 0.5 + (zy-0.5)/m.zoom
	return b.MinX + nx*b.Width(), b.MinY + ny*b.Height(), true
}

// screenXYMicro maps lon/lat into a 2x4 microgrid per cell for braille rendering.
func (m Model) screenXYMicro(lon, lat float64, w, h int) (int, int, bool) {
	b, ok := m.frame()
	if !ok {
		return 0, 0, false
	}
	nx := (lon - b.MinX) / b.Width()
	ny := (lat - b.MinY) / b.Height()
	zx := 0.5 + (nx-0.5)*m.zoom
	zy := 0.5 + (ny-0.5)*m.zoom
	sx := int(zx*float64(w*2-1)) + m.offsetX*2
	sy := int((1.0-zy)*float64(h*4-1)) + m.offsetY*4
	return sx, sy, true
}

// shapeColor picks the legend colour of s, or "" when unclassified.
func shapeColor(s *geom.Shape, sc *legend.Scheme) (fill, outline string) {
	if s.Selected {
		return selectedHex, selectedHex
	}
	if s.LegendIndex < 0 || s.LegendIndex >= sc.BreakCount() {
		return "", ""
	}
	br := sc.Breaks[s.LegendIndex]
	fill, outline = br.Color.Hex(), br.OutlineColor.Hex()
	if !br.DrawOutline {
		outline = fill
	}
	return fill, outline
}

func (m Model) projectRing(ls orb.LineString, w, h int) [][2]int {
	out := make([][2]int, 0, len(ls))
	for _, p := range ls {
		if mx, my, ok := m.screenXYMicro(p[0], p[1], w, h); ok {
			out = append(out, [2]int{mx, my})
		}
	}
	return out
}

// fillRings paints the even-odd interior of all rings, so holes stay empty.
func fillRings(br *brailleBuf, rings [][][2]int, color string) {
	hMic := br.h * 4
	for yMic := 0; yMic < hMic; yMic++ {
		var xs []int
		for _, r := range rings {
			for i := 0; i < len(r); i++ {
				a := r[i]
				b := r[(i+1)%len(r)]
				if a[1] == b[1] {
					continue
				}
				y0, y1 := a[1], b[1]
				if (yMic >= y0 && yMic < y1) || (yMic >= y1 && yMic < y0) {
					t := float64(yMic-y0) / float64(y1-y0)
					xs = append(xs, int(float64(a[0])+t*float64(b[0]-a[0])))
				}
			}
		}
		sort.Ints(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			for xMic := max(0, xs[i]); xMic <= xs[i+1]; xMic++ {
				br.setPixel(xMic, yMic, color)
			}
		}
	}
}

// renderMap draws every visible shape of the layer in its legend colour.
// Shapes without a valid legend index are skipped.
func (m Model) renderMap(w, h int) string {
	br := newBrailleBuf(w, h)
	if m.layer != nil && m.layer.Visible {
		sc := m.layer.LegendScheme()
		for _, s := range m.layer.Shapes() {
			fill, outline := shapeColor(s, sc)
			if fill == "" {
				continue
			}
			switch s.Family() {
			case geom.FamilyPoint:
				for _, p := range s.Vertices() {
					if mx, my, ok := m.screenXYMicro(p[0], p[1], w, h); ok {
						br.setPixel(mx, my, fill)
					}
				}
			case geom.FamilyLine:
				for _, part := range s.Outlines() {
					r := m.projectRing(part, w, h)
					for j := 1; j < len(r); j++ {
						br.drawLineMicro(r[j-1][0], r[j-1][1], r[j][0], r[j][1], fill)
					}
				}
			case geom.FamilyPolygon:
				var rings [][][2]int
				for _, ring := range s.Outlines() {
					if r := m.projectRing(ring, w, h); len(r) >= 3 {
						rings = append(rings, r)
					}
				}
				fillRings(br, rings, fill)
				for _, r := range rings {
					for j := range r {
						a, b := r[j], r[(j+1)%len(r)]
						br.drawLineMicro(a[0], a[1], b[0], b[1], outline)
					}
				}
			}
		}
		if m.showLabels {
			m.drawLabels(br, w, h)
		}
	}

	lines := br.toStyledLines()
	if m.hovering {
		cx, cy := m.hoverMicX/2, m.hoverMicY/4
		if cy >= 0 && cy < h && cx >= 0 && cx < w {
			lines[cy] = m.hoverLine(br, cx, cy)
		}
	}
	return strings.Join(lines, "\n")
}

// hoverLine re-renders row cy with an orange circle at cx.
func (m Model) hoverLine(br *brailleBuf, cx, cy int) string {
	row := br.toLines()[cy]
	r := []rune(row)
	circle := lipgloss.NewStyle().Foreground(lipgloss.Color(hoverHex)).Render("◯")
	return string(r[:cx]) + circle + string(r[cx+1:])
}

func (m Model) drawLabels(br *brailleBuf, w, h int) {
	labels, err := m.layer.GenerateLabels()
	if err != nil && labels == nil {
		return
	}
	for _, l := range labels {
		mx, my, ok := m.screenXYMicro(l.X, l.Y, w, h)
		if !ok {
			continue
		}
		n := len([]rune(l.Text))
		br.putText(mx/2-n/2, my/4, l.Text, labelHex)
	}
}

// nearestVertex returns the micro position of the vertex closest to the
// micro point (hx, hy).
func (m Model) nearestVertex(hx, hy, w, h int) (int, int) {
	best := 1<<31 - 1
	bx, by := hx, hy
	if m.layer == nil {
		return bx, by
	}
	for _, s := range m.layer.Shapes() {
		for _, p := range s.Vertices() {
			mx, my, ok := m.screenXYMicro(p[0], p[1], w, h)
			if !ok {
				continue
			}
			dx, dy := mx-hx, my-hy
			if d := dx*dx + dy*dy; d < best {
				best = d
				bx, by = mx, my
			}
		}
	}
	return bx, by
}
