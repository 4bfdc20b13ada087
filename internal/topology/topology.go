// Package topology runs boolean operations, buffers, hulls and containment
// tests on orb geometries through GEOS.
package topology

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/twpayne/go-geos"

	"geolayer/internal/geom"
)

var ErrGEOS = errors.New("geos")

// Op is a binary overlay operator.
type Op int

const (
	Intersection Op = iota
	Difference
	SymDifference
	Union
)

func (o Op) String() string {
	switch o {
	case Difference:
		return "difference"
	case SymDifference:
		return "symdifference"
	case Union:
		return "union"
	}
	return "intersection"
}

// guard turns a GEOS panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrGEOS, r)
		}
	}()
	return fn()
}

// ToGEOS converts an orb geometry. The caller owns the result.
func ToGEOS(g orb.Geometry) (*geos.Geom, error) {
	data, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode wkb: %w", err)
	}
	var out *geos.Geom
	err = guard(func() error {
		var err error
		out, err = geos.NewGeomFromWKB(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FromGEOS converts back to orb. Empty geometries return nil.
func FromGEOS(g *geos.Geom) (orb.Geometry, error) {
	if g == nil {
		return nil, nil
	}
	var data []byte
	err := guard(func() error {
		if g.IsEmpty() {
			return nil
		}
		data = g.ToWKB()
		return nil
	})
	if err != nil || data == nil {
		return nil, err
	}
	out, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode wkb: %w", err)
	}
	return out, nil
}

func unary(g orb.Geometry, fn func(*geos.Geom) *geos.Geom) (orb.Geometry, error) {
	a, err := ToGEOS(g)
	if err != nil {
		return nil, err
	}
	defer a.Destroy()
	var res *geos.Geom
	if err := guard(func() error {
		res = fn(a)
		return nil
	}); err != nil {
		return nil, err
	}
	defer res.Destroy()
	return FromGEOS(res)
}

// Apply runs op(a, b). A nil geometry means the result was empty.
func Apply(op Op, a, b orb.Geometry) (orb.Geometry, error) {
	ga, err := ToGEOS(a)
	if err != nil {
		return nil, err
	}
	defer ga.Destroy()
	gb, err := ToGEOS(b)
	if err != nil {
		return nil, err
	}
	defer gb.Destroy()

	var res *geos.Geom
	if err := guard(func() error {
		switch op {
		case Intersection:
			res = ga.Intersection(gb)
		case Difference:
			res = ga.Difference(gb)
		case SymDifference:
			res = ga.SymDifference(gb)
		case Union:
			res = ga.Union(gb)
		default:
			return fmt.Errorf("unknown op %d", op)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	defer res.Destroy()
	return FromGEOS(res)
}

// Buffer grows g by dist using quadSegs segments per quarter circle.
func Buffer(g orb.Geometry, dist float64, quadSegs int) (orb.Geometry, error) {
	if quadSegs <= 0 {
		quadSegs = 8
	}
	return unary(g, func(a *geos.Geom) *geos.Geom { return a.Buffer(dist, quadSegs) })
}

func ConvexHull(g orb.Geometry) (orb.Geometry, error) {
	return unary(g, (*geos.Geom).ConvexHull)
}

// Contains reports whether pt lies strictly inside g (boundary excluded).
func Contains(g orb.Geometry, pt orb.Point) (bool, error) {
	ga, err := ToGEOS(g)
	if err != nil {
		return false, err
	}
	defer ga.Destroy()
	gp, err := ToGEOS(pt)
	if err != nil {
		return false, err
	}
	defer gp.Destroy()
	var ok bool
	err = guard(func() error {
		ok = ga.Contains(gp)
		return nil
	})
	return ok, err
}

// Keep extracts the parts of g belonging to family, flattening collections.
// It returns nil when nothing of that family remains.
func Keep(g orb.Geometry, family geom.Family) orb.Geometry {
	var pts orb.MultiPoint
	var lines orb.MultiLineString
	var polys orb.MultiPolygon
	var walk func(orb.Geometry)
	walk = func(g orb.Geometry) {
		switch v := g.(type) {
		case orb.Point:
			pts = append(pts, v)
		case orb.MultiPoint:
			pts = append(pts, v...)
		case orb.LineString:
			lines = append(lines, v)
		case orb.MultiLineString:
			lines = append(lines, v...)
		case orb.Polygon:
			polys = append(polys, v)
		case orb.MultiPolygon:
			polys = append(polys, v...)
		case orb.Collection:
			for _, c := range v {
				walk(c)
			}
		}
	}
	walk(g)

	switch family {
	case geom.FamilyPoint:
		switch len(pts) {
		case 0:
			return nil
		case 1:
			return pts[0]
		}
		return pts
	case geom.FamilyLine:
		switch len(lines) {
		case 0:
			return nil
		case 1:
			return lines[0]
		}
		return lines
	case geom.FamilyPolygon:
		switch len(polys) {
		case 0:
			return nil
		case 1:
			return polys[0]
		}
		return polys
	}
	return nil
}
