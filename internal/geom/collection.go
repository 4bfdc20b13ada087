package geom

// Collection is a loaded dataset: shapes with one attribute row each.
// Rows are aligned with Columns; a missing value is nil.
type Collection struct {
	Shapes  []*Shape
	Columns []string
	Rows    [][]any
}

func (c *Collection) add(s *Shape, row []any) {
	c.Shapes = append(c.Shapes, s)
	c.Rows = append(c.Rows, row)
}

// BBox covers every shape; the first shape sets it.
func (c *Collection) BBox() BBox {
	var bb BBox
	for i, s := range c.Shapes {
		if i == 0 {
			bb = s.BBox()
			continue
		}
		bb = bb.Union(s.BBox())
	}
	return bb
}

// Counts returns the number of point, line and polygon shapes.
func (c *Collection) Counts() (points, lines, polys int) {
	for _, s := range c.Shapes {
		switch s.Family() {
		case FamilyPoint:
			points++
		case FamilyLine:
			lines++
		case FamilyPolygon:
			polys++
		}
	}
	return
}
