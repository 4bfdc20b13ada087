package geom

import "github.com/paulmach/orb"

// BBox is an axis-aligned extent in map units.
type BBox struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// BBoxOf converts an orb bound.
func BBoxOf(b orb.Bound) BBox {
	return BBox{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]}
}

// NewBBox builds a normalized box from two corners.
func NewBBox(x0, y0, x1, y1 float64) BBox {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return BBox{MinX: x0, MinY: y0, MaxX: x1, MaxY: y1}
}

func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinX, b.MinY}, Max: orb.Point{b.MaxX, b.MaxY}}
}

func (b BBox) Width() float64  { return b.MaxX - b.MinX }
func (b BBox) Height() float64 { return b.MaxY - b.MinY }

func (b BBox) Center() orb.Point {
	return orb.Point{(b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2}
}

// Extend grows the box to cover the point.
func (b BBox) Extend(x, y float64) BBox {
	if x < b.MinX {
		b.MinX = x
	}
	if y < b.MinY {
		b.MinY = y
	}
	if x > b.MaxX {
		b.MaxX = x
	}
	if y > b.MaxY {
		b.MaxY = y
	}
	return b
}

// Union returns the smallest box covering both.
func (b BBox) Union(o BBox) BBox {
	return b.Extend(o.MinX, o.MinY).Extend(o.MaxX, o.MaxY)
}

// Intersects reports whether the boxes overlap; touching edges count.
func (b BBox) Intersects(o BBox) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Contains reports whether the point lies inside or on the box.
func (b BBox) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Expand pads every side by d.
func (b BBox) Expand(d float64) BBox {
	return BBox{MinX: b.MinX - d, MinY: b.MinY - d, MaxX: b.MaxX + d, MaxY: b.MaxY + d}
}
