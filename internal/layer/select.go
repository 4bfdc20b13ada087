package layer

import (
	"context"
	"slices"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"geolayer/internal/geom"
	"geolayer/internal/topology"
)

// SelectionMode combines a new match set with the current selection.
type SelectionMode int

const (
	SelectNew SelectionMode = iota
	AddToCurrent
	RemoveFromCurrent
	SelectFromCurrent
)

func (m SelectionMode) String() string {
	switch m {
	case AddToCurrent:
		return "add"
	case RemoveFromCurrent:
		return "remove"
	case SelectFromCurrent:
		return "intersect"
	}
	return "new"
}

// ParseSelectionMode accepts the names printed by String.
func ParseSelectionMode(s string) (SelectionMode, bool) {
	for _, m := range []SelectionMode{SelectNew, AddToCurrent, RemoveFromCurrent, SelectFromCurrent} {
		if m.String() == s {
			return m, true
		}
	}
	return SelectNew, s == ""
}

// indexed is an R-tree entry for one shape.
type indexed struct {
	i    int
	rect rtreego.Rect
}

func (e *indexed) Bounds() rtreego.Rect { return e.rect }

const minRectSide = 1e-9

func toRect(b geom.BBox) rtreego.Rect {
	w, h := b.Width(), b.Height()
	if w < minRectSide {
		w = minRectSide
	}
	if h < minRectSide {
		h = minRectSide
	}
	r, _ := rtreego.NewRect(rtreego.Point{b.MinX, b.MinY}, []float64{w, h})
	return r
}

func (v *VectorLayer) spatialIndex() *rtreego.Rtree {
	if v.index != nil && !v.indexDirty {
		return v.index
	}
	objs := make([]rtreego.Spatial, len(v.shapes))
	for i, s := range v.shapes {
		objs[i] = &indexed{i: i, rect: toRect(s.BBox())}
	}
	v.index = rtreego.NewTree(2, 25, 50, objs...)
	v.indexDirty = false
	return v.index
}

// candidates returns the indexes of shapes whose box meets b, ascending.
func (v *VectorLayer) candidates(b geom.BBox) []int {
	if len(v.shapes) == 0 {
		return nil
	}
	hits := v.spatialIndex().SearchIntersect(toRect(b.Expand(minRectSide)))
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		i := h.(*indexed).i
		if v.shapes[i].BBox().Intersects(b) {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// ShapesInExtent returns the shapes matched by a rectangle. Points match
// when inside it, in list order. Lines match when their box meets it,
// nearest to the rectangle centre first. Polygons are scanned topmost first
// and match when they contain the centre or have a vertex in the rectangle.
// With single set only the first match is returned.
func (v *VectorLayer) ShapesInExtent(ext geom.BBox, single bool) []int {
	cands := v.candidates(ext)
	var out []int
	switch v.Family() {
	case geom.FamilyPoint:
		for _, i := range cands {
			if anyVertexIn(v.shapes[i], ext) {
				out = append(out, i)
				if single {
					break
				}
			}
		}
	case geom.FamilyLine:
		c := ext.Center()
		dist := make(map[int]float64, len(cands))
		for _, i := range cands {
			dist[i] = planar.DistanceFrom(v.shapes[i].Geometry, c)
		}
		out = append(out, cands...)
		sort.SliceStable(out, func(a, b int) bool { return dist[out[a]] < dist[out[b]] })
		if single && len(out) > 1 {
			out = out[:1]
		}
	case geom.FamilyPolygon:
		c := ext.Center()
		for k := len(cands) - 1; k >= 0; k-- {
			i := cands[k]
			s := v.shapes[i]
			if containsPoint(s.Geometry, c) || anyVertexIn(s, ext) {
				out = append(out, i)
				if single {
					break
				}
			}
		}
	}
	return out
}

// SelectByExtent applies ShapesInExtent to the selection.
func (v *VectorLayer) SelectByExtent(ext geom.BBox, single bool, mode SelectionMode) []int {
	return v.applySelection(v.ShapesInExtent(ext, single), mode)
}

// ShapesInPolygon returns the shapes with any vertex inside the lasso.
func (v *VectorLayer) ShapesInPolygon(lasso orb.Polygon) []int {
	if len(lasso) == 0 {
		return nil
	}
	var out []int
	for _, i := range v.candidates(geom.BBoxOf(lasso.Bound())) {
		for _, p := range v.shapes[i].Vertices() {
			if planar.PolygonContains(lasso, p) {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

func (v *VectorLayer) SelectByPolygon(lasso orb.Polygon, mode SelectionMode) []int {
	return v.applySelection(v.ShapesInPolygon(lasso), mode)
}

// ShapeAt returns the first shape, in list order, whose geometry contains pt.
func (v *VectorLayer) ShapeAt(pt orb.Point) (int, bool) {
	for _, i := range v.candidates(geom.NewBBox(pt[0], pt[1], pt[0], pt[1])) {
		ok, err := topology.Contains(v.shapes[i].Geometry, pt)
		if err != nil {
			logger.Printf("[SELECT] contains test on shape %d: %v", i, err)
			continue
		}
		if ok {
			return i, true
		}
	}
	return -1, false
}

// SelectShape picks the shape under pt. It returns the resulting selection.
func (v *VectorLayer) SelectShape(pt orb.Point, mode SelectionMode) []int {
	var hit []int
	if i, ok := v.ShapeAt(pt); ok {
		hit = []int{i}
	}
	return v.applySelection(hit, mode)
}

// SQLSelect filters rows with a SQL WHERE expression and combines the
// matches with the selection.
func (v *VectorLayer) SQLSelect(ctx context.Context, expr string, mode SelectionMode) ([]int, error) {
	rows, err := v.table.Select(ctx, expr)
	if err != nil {
		return nil, err
	}
	return v.applySelection(rows, mode), nil
}

// Select applies an explicit index list to the selection.
func (v *VectorLayer) Select(indexes []int, mode SelectionMode) []int {
	return v.applySelection(indexes, mode)
}

func (v *VectorLayer) applySelection(hits []int, mode SelectionMode) []int {
	in := make(map[int]bool, len(hits))
	for _, i := range hits {
		if i >= 0 && i < len(v.shapes) {
			in[i] = true
		}
	}
	for i, s := range v.shapes {
		switch mode {
		case SelectNew:
			s.Selected = in[i]
		case AddToCurrent:
			s.Selected = s.Selected || in[i]
		case RemoveFromCurrent:
			s.Selected = s.Selected && !in[i]
		case SelectFromCurrent:
			s.Selected = s.Selected && in[i]
		}
	}
	return v.SelectedIndexes()
}

// SelectedIndexes scans the shapes for the selected flag.
func (v *VectorLayer) SelectedIndexes() []int {
	var out []int
	for i, s := range v.shapes {
		if s.Selected {
			out = append(out, i)
		}
	}
	return out
}

func (v *VectorLayer) SelectedShapes() []*geom.Shape {
	var out []*geom.Shape
	for _, s := range v.shapes {
		if s.Selected {
			out = append(out, s)
		}
	}
	return out
}

func (v *VectorLayer) HasSelection() bool {
	return slices.ContainsFunc(v.shapes, func(s *geom.Shape) bool { return s.Selected })
}

func (v *VectorLayer) ClearSelection() {
	for _, s := range v.shapes {
		s.Selected = false
	}
}

func anyVertexIn(s *geom.Shape, b geom.BBox) bool {
	for _, p := range s.Vertices() {
		if b.Contains(p[0], p[1]) {
			return true
		}
	}
	return false
}

func containsPoint(g orb.Geometry, p orb.Point) bool {
	switch x := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(x, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(x, p)
	}
	return false
}
