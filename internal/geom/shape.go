package geom

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// ShapeType follows the shapefile geometry variants.
type ShapeType int

const (
	TypeNull ShapeType = iota
	TypePoint
	TypePointZ
	TypePointM
	TypeMultiPoint
	TypePolyline
	TypePolylineZ
	TypePolylineM
	TypePolygon
	TypePolygonZ
	TypePolygonM
)

var shapeTypeNames = map[ShapeType]string{
	TypeNull:       "Null",
	TypePoint:      "Point",
	TypePointZ:     "PointZ",
	TypePointM:     "PointM",
	TypeMultiPoint: "MultiPoint",
	TypePolyline:   "Polyline",
	TypePolylineZ:  "PolylineZ",
	TypePolylineM:  "PolylineM",
	TypePolygon:    "Polygon",
	TypePolygonZ:   "PolygonZ",
	TypePolygonM:   "PolygonM",
}

func (t ShapeType) String() string {
	if s, ok := shapeTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ShapeType(%d)", int(t))
}

// Family groups shape types by their planar dimension.
type Family int

const (
	FamilyNone Family = iota
	FamilyPoint
	FamilyLine
	FamilyPolygon
)

func (f Family) String() string {
	switch f {
	case FamilyPoint:
		return "point"
	case FamilyLine:
		return "line"
	case FamilyPolygon:
		return "polygon"
	}
	return "none"
}

func (f Family) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Family) UnmarshalText(b []byte) error {
	switch string(b) {
	case "point":
		*f = FamilyPoint
	case "line":
		*f = FamilyLine
	case "polygon":
		*f = FamilyPolygon
	case "none", "":
		*f = FamilyNone
	default:
		return fmt.Errorf("unknown family %q", b)
	}
	return nil
}

// Family of the type.
func (t ShapeType) Family() Family {
	switch t {
	case TypePoint, TypePointZ, TypePointM, TypeMultiPoint:
		return FamilyPoint
	case TypePolyline, TypePolylineZ, TypePolylineM:
		return FamilyLine
	case TypePolygon, TypePolygonZ, TypePolygonM:
		return FamilyPolygon
	}
	return FamilyNone
}

// BaseType is the plain 2D type of a family.
func BaseType(f Family) ShapeType {
	switch f {
	case FamilyPoint:
		return TypePoint
	case FamilyLine:
		return TypePolyline
	case FamilyPolygon:
		return TypePolygon
	}
	return TypeNull
}

// FamilyOf classifies an orb geometry. Collections report FamilyNone.
func FamilyOf(g orb.Geometry) Family {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return FamilyPoint
	case orb.LineString, orb.MultiLineString:
		return FamilyLine
	case orb.Polygon, orb.MultiPolygon, orb.Ring, orb.Bound:
		return FamilyPolygon
	}
	return FamilyNone
}

// HasZ reports whether vertices carry elevation.
func (t ShapeType) HasZ() bool {
	return t == TypePointZ || t == TypePolylineZ || t == TypePolygonZ
}

// HasM reports whether vertices carry a measure. Z variants carry M as well.
func (t ShapeType) HasM() bool {
	return t == TypePointM || t == TypePolylineM || t == TypePolygonM || t.HasZ()
}

var ErrUnsupportedGeometry = errors.New("unsupported geometry")

// Shape is one feature's geometry plus its per-feature render state.
// Polygon rings follow orb: ring 0 is the outer boundary, later rings are holes.
type Shape struct {
	Type     ShapeType
	Geometry orb.Geometry
	// Z and M hold one value per vertex in Vertices order for Z/M variants.
	Z []float64
	M []float64

	Selected    bool
	Editing     bool
	LegendIndex int
}

// NewShape wraps a geometry, inferring its 2D type.
func NewShape(g orb.Geometry) (*Shape, error) {
	var t ShapeType
	switch v := g.(type) {
	case orb.Point:
		t = TypePoint
	case orb.MultiPoint:
		t = TypeMultiPoint
	case orb.LineString, orb.MultiLineString:
		t = TypePolyline
	case orb.Ring:
		g = orb.Polygon{v}
		t = TypePolygon
	case orb.Bound:
		g = v.ToPolygon()
		t = TypePolygon
	case orb.Polygon, orb.MultiPolygon:
		t = TypePolygon
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g)
	}
	return &Shape{Type: t, Geometry: g, LegendIndex: -1}, nil
}

// NewPoint returns a point shape.
func NewPoint(x, y float64) *Shape {
	return &Shape{Type: TypePoint, Geometry: orb.Point{x, y}, LegendIndex: -1}
}

// NewPolyline returns a single-part line shape.
func NewPolyline(pts ...orb.Point) *Shape {
	return &Shape{Type: TypePolyline, Geometry: orb.LineString(pts), LegendIndex: -1}
}

// NewPolygon returns a polygon shape; rings after the first are holes.
// Rings are closed if needed.
func NewPolygon(rings ...orb.Ring) *Shape {
	poly := make(orb.Polygon, 0, len(rings))
	for _, r := range rings {
		poly = append(poly, closeRing(r))
	}
	return &Shape{Type: TypePolygon, Geometry: poly, LegendIndex: -1}
}

func closeRing(r orb.Ring) orb.Ring {
	if len(r) > 0 && !r.Closed() {
		r = append(r, r[0])
	}
	return r
}

// WithZ attaches elevations (and optional measures), upgrading the type to its Z variant.
func (s *Shape) WithZ(z, m []float64) *Shape {
	s.Z, s.M = z, m
	switch s.Type.Family() {
	case FamilyPoint:
		s.Type = TypePointZ
	case FamilyLine:
		s.Type = TypePolylineZ
	case FamilyPolygon:
		s.Type = TypePolygonZ
	}
	return s
}

// WithM attaches measures, upgrading the type to its M variant.
func (s *Shape) WithM(m []float64) *Shape {
	s.M = m
	switch s.Type.Family() {
	case FamilyPoint:
		s.Type = TypePointM
	case FamilyLine:
		s.Type = TypePolylineM
	case FamilyPolygon:
		s.Type = TypePolygonM
	}
	return s
}

func (s *Shape) Family() Family { return s.Type.Family() }

// BBox of the shape geometry.
func (s *Shape) BBox() BBox {
	if s == nil || s.Geometry == nil {
		return BBox{}
	}
	return BBoxOf(s.Geometry.Bound())
}

// Vertices flattens every coordinate in storage order.
func (s *Shape) Vertices() []orb.Point {
	var out []orb.Point
	switch g := s.Geometry.(type) {
	case orb.Point:
		out = append(out, g)
	case orb.MultiPoint:
		out = append(out, g...)
	case orb.LineString:
		out = append(out, g...)
	case orb.MultiLineString:
		for _, ls := range g {
			out = append(out, ls...)
		}
	case orb.Polygon:
		for _, r := range g {
			out = append(out, r...)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			for _, r := range p {
				out = append(out, r...)
			}
		}
	}
	return out
}

// Outlines returns the boundary rings of a polygon shape, or the parts of a line shape.
func (s *Shape) Outlines() []orb.LineString {
	var out []orb.LineString
	switch g := s.Geometry.(type) {
	case orb.LineString:
		out = append(out, g)
	case orb.MultiLineString:
		out = append(out, g...)
	case orb.Polygon:
		for _, r := range g {
			out = append(out, orb.LineString(r))
		}
	case orb.MultiPolygon:
		for _, p := range g {
			for _, r := range p {
				out = append(out, orb.LineString(r))
			}
		}
	}
	return out
}

// Holes returns the interior rings of a polygon shape.
func (s *Shape) Holes() []orb.Ring {
	var out []orb.Ring
	switch g := s.Geometry.(type) {
	case orb.Polygon:
		if len(g) > 1 {
			out = append(out, g[1:]...)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			if len(p) > 1 {
				out = append(out, p[1:]...)
			}
		}
	}
	return out
}

// Clone deep-copies geometry, measures and flags.
func (s *Shape) Clone() *Shape {
	c := *s
	if s.Geometry != nil {
		c.Geometry = orb.Clone(s.Geometry)
	}
	if s.Z != nil {
		c.Z = append([]float64(nil), s.Z...)
	}
	if s.M != nil {
		c.M = append([]float64(nil), s.M...)
	}
	return &c
}
