package layer

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"geolayer/internal/geom"
	"geolayer/internal/table"
)

// LoadShapefile reads a .shp with its .dbf and optional .prj.
func LoadShapefile(path string) (*VectorLayer, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	t, ok := typeFromShp(r.GeometryType)
	if !ok {
		return nil, fmt.Errorf("%w: shapefile type %d", geom.ErrUnsupportedGeometry, r.GeometryType)
	}

	dbf := r.Fields()
	fields := make([]table.Field, len(dbf))
	for i, f := range dbf {
		fields[i] = table.Field{Name: f.String(), Type: fieldTypeFromShp(f.Fieldtype, f.Precision)}
	}
	tb := table.New(fields...)

	var shapes []*geom.Shape
	for r.Next() {
		idx, s := r.Shape()
		shape, err := shapeFromShp(s)
		if err != nil {
			logger.Printf("[SHAPEFILE] %s: record %d skipped: %v", path, idx, err)
			continue
		}
		row := make(table.Row, len(dbf))
		for i := range dbf {
			if text := strings.Trim(r.ReadAttribute(idx, i), " \x00"); text != "" {
				row[i] = text
			}
		}
		if err := tb.AppendRow(row); err != nil {
			return nil, fmt.Errorf("record %d: %w", idx, err)
		}
		shapes = append(shapes, shape)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	v := NewVectorLayer(name, t)
	if err := v.ReplaceAll(shapes, tb); err != nil {
		return nil, err
	}
	if prj, err := os.ReadFile(prjPath(path)); err == nil {
		v.Projection = strings.TrimSpace(string(prj))
	}
	return v, nil
}

// SaveShapefile writes .shp, .shx, .dbf and, when a projection is set, .prj.
// Field names longer than ten characters are truncated.
func (v *VectorLayer) SaveShapefile(path string) error {
	if err := v.Validate(); err != nil {
		return err
	}
	st, ok := typeToShp(v.ShapeType)
	if !ok {
		return fmt.Errorf("%w: %s", geom.ErrUnsupportedGeometry, v.ShapeType)
	}
	if st == shp.POINT {
		for _, s := range v.shapes {
			if _, single := s.Geometry.(orb.Point); !single {
				st = shp.MULTIPOINT
				break
			}
		}
	}
	w, err := shp.Create(path, st)
	if err != nil {
		return err
	}
	defer w.Close()

	fields := v.table.Fields()
	w.SetFields(fieldsToShp(fields))

	for i, s := range v.shapes {
		rec, err := shapeToShp(s, st)
		if err != nil {
			return fmt.Errorf("shape %d: %w", i, err)
		}
		n := int(w.Write(rec))
		for j, f := range fields {
			raw, _ := v.table.ValueAt(i, j)
			if raw == nil {
				continue
			}
			if err := w.WriteAttribute(n, j, attrToShp(f.Type, raw)); err != nil {
				return fmt.Errorf("shape %d field %s: %w", i, f.Name, err)
			}
		}
	}
	if v.Projection != "" {
		if err := os.WriteFile(prjPath(path), []byte(v.Projection), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func prjPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
}

func typeFromShp(t shp.ShapeType) (geom.ShapeType, bool) {
	switch t {
	case shp.POINT:
		return geom.TypePoint, true
	case shp.POINTZ:
		return geom.TypePointZ, true
	case shp.POINTM:
		return geom.TypePointM, true
	case shp.MULTIPOINT, shp.MULTIPOINTZ, shp.MULTIPOINTM:
		return geom.TypeMultiPoint, true
	case shp.POLYLINE:
		return geom.TypePolyline, true
	case shp.POLYLINEZ:
		return geom.TypePolylineZ, true
	case shp.POLYLINEM:
		return geom.TypePolylineM, true
	case shp.POLYGON:
		return geom.TypePolygon, true
	case shp.POLYGONZ:
		return geom.TypePolygonZ, true
	case shp.POLYGONM:
		return geom.TypePolygonM, true
	}
	return geom.TypeNull, false
}

func typeToShp(t geom.ShapeType) (shp.ShapeType, bool) {
	for _, st := range []shp.ShapeType{
		shp.POINT, shp.POINTZ, shp.POINTM, shp.MULTIPOINT,
		shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM,
		shp.POLYGON, shp.POLYGONZ, shp.POLYGONM,
	} {
		if gt, _ := typeFromShp(st); gt == t {
			return st, true
		}
	}
	return shp.NULL, false
}

func fieldTypeFromShp(code byte, precision uint8) table.FieldType {
	switch code {
	case 'N':
		if precision > 0 {
			return table.Double
		}
		return table.Integer
	case 'F':
		return table.Double
	case 'D':
		return table.Date
	case 'L':
		return table.Boolean
	}
	return table.String
}

func fieldsToShp(fields []table.Field) []shp.Field {
	out := make([]shp.Field, len(fields))
	for i, f := range fields {
		name := f.Name
		if len(name) > 10 {
			name = name[:10]
		}
		switch f.Type {
		case table.Integer:
			out[i] = shp.NumberField(name, 18)
		case table.Double:
			out[i] = shp.FloatField(name, 24, 10)
		case table.Date:
			out[i] = shp.DateField(name)
		case table.Boolean:
			out[i] = shp.Field{Fieldtype: 'L', Size: 1}
			copy(out[i].Name[:], name)
		default:
			out[i] = shp.StringField(name, 254)
		}
	}
	return out
}

func attrToShp(t table.FieldType, v any) any {
	switch x := v.(type) {
	case int64:
		return int(x)
	case float64:
		return x
	case bool:
		if x {
			return "T"
		}
		return "F"
	case time.Time:
		return x.Format("20060102")
	}
	s := table.FormatValue(v)
	if t == table.String && len(s) > 254 {
		s = s[:254]
	}
	return s
}

func toPoints(ps []shp.Point) []orb.Point {
	out := make([]orb.Point, len(ps))
	for i, p := range ps {
		out[i] = orb.Point{p.X, p.Y}
	}
	return out
}

// splitParts cuts a flat point list at the part offsets.
func splitParts(parts []int32, pts []orb.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(pts) {
			continue
		}
		out = append(out, pts[start:end])
	}
	return out
}

func linesFrom(parts [][]orb.Point) orb.Geometry {
	if len(parts) == 1 {
		return orb.LineString(parts[0])
	}
	mls := make(orb.MultiLineString, len(parts))
	for i, p := range parts {
		mls[i] = orb.LineString(p)
	}
	return mls
}

// polygonsFrom groups rings: clockwise rings start a polygon, the rest are
// holes of the polygon before them. Rings are stored outer counter-clockwise.
func polygonsFrom(parts [][]orb.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, p := range parts {
		ring := append(orb.Ring(nil), p...)
		cw := ring.Orientation() == orb.CW
		if cw || len(mp) == 0 {
			if cw {
				ring.Reverse()
			}
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		ring.Reverse()
		mp[len(mp)-1] = append(mp[len(mp)-1], ring)
	}
	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}

var errEmptyRecord = errors.New("null record")

func shapeFromShp(s shp.Shape) (*geom.Shape, error) {
	switch x := s.(type) {
	case *shp.Null:
		return nil, errEmptyRecord
	case *shp.Point:
		return geom.NewPoint(x.X, x.Y), nil
	case *shp.PointZ:
		return geom.NewPoint(x.X, x.Y).WithZ([]float64{x.Z}, []float64{x.M}), nil
	case *shp.PointM:
		return geom.NewPoint(x.X, x.Y).WithM([]float64{x.M}), nil
	case *shp.MultiPoint:
		return geom.NewShape(orb.MultiPoint(toPoints(x.Points)))
	case *shp.MultiPointZ:
		return geom.NewShape(orb.MultiPoint(toPoints(x.Points)))
	case *shp.MultiPointM:
		return geom.NewShape(orb.MultiPoint(toPoints(x.Points)))
	case *shp.PolyLine:
		return geom.NewShape(linesFrom(splitParts(x.Parts, toPoints(x.Points))))
	case *shp.PolyLineZ:
		g, err := geom.NewShape(linesFrom(splitParts(x.Parts, toPoints(x.Points))))
		if err != nil {
			return nil, err
		}
		return g.WithZ(x.ZArray, x.MArray), nil
	case *shp.PolyLineM:
		g, err := geom.NewShape(linesFrom(splitParts(x.Parts, toPoints(x.Points))))
		if err != nil {
			return nil, err
		}
		return g.WithM(x.MArray), nil
	case *shp.Polygon:
		return geom.NewShape(polygonsFrom(splitParts(x.Parts, toPoints(x.Points))))
	case *shp.PolygonZ:
		g, err := geom.NewShape(polygonsFrom(splitParts(x.Parts, toPoints(x.Points))))
		if err != nil {
			return nil, err
		}
		return g.WithZ(x.ZArray, x.MArray), nil
	case *shp.PolygonM:
		g, err := geom.NewShape(polygonsFrom(splitParts(x.Parts, toPoints(x.Points))))
		if err != nil {
			return nil, err
		}
		return g.WithM(x.MArray), nil
	}
	return nil, fmt.Errorf("%w: %T", geom.ErrUnsupportedGeometry, s)
}

func fromPoints(ps []orb.Point) []shp.Point {
	out := make([]shp.Point, len(ps))
	for i, p := range ps {
		out[i] = shp.Point{X: p[0], Y: p[1]}
	}
	return out
}

// shpParts flattens a shape into shapefile parts. Polygon outer rings are
// written clockwise and holes counter-clockwise.
func shpParts(s *geom.Shape) [][]shp.Point {
	var parts [][]shp.Point
	addPolygon := func(p orb.Polygon) {
		for k, r := range p {
			r = append(orb.Ring(nil), r...)
			if (k == 0) != (r.Orientation() == orb.CW) {
				r.Reverse()
			}
			parts = append(parts, fromPoints(r))
		}
	}
	switch g := s.Geometry.(type) {
	case orb.LineString:
		parts = append(parts, fromPoints(g))
	case orb.MultiLineString:
		for _, ls := range g {
			parts = append(parts, fromPoints(ls))
		}
	case orb.Polygon:
		addPolygon(g)
	case orb.MultiPolygon:
		for _, p := range g {
			addPolygon(p)
		}
	}
	return parts
}

func valueRange(vals []float64) [2]float64 {
	if len(vals) == 0 {
		return [2]float64{}
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	return [2]float64{lo, hi}
}

// padded returns vals extended with zeros to n entries.
func padded(vals []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, vals)
	return out
}

func shapeToShp(s *geom.Shape, st shp.ShapeType) (shp.Shape, error) {
	switch st {
	case shp.POINT, shp.POINTZ, shp.POINTM:
		p, ok := s.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("%w: %T in point layer", geom.ErrUnsupportedGeometry, s.Geometry)
		}
		z, m := padded(s.Z, 1), padded(s.M, 1)
		switch st {
		case shp.POINTZ:
			return &shp.PointZ{X: p[0], Y: p[1], Z: z[0], M: m[0]}, nil
		case shp.POINTM:
			return &shp.PointM{X: p[0], Y: p[1], M: m[0]}, nil
		}
		return &shp.Point{X: p[0], Y: p[1]}, nil
	case shp.MULTIPOINT:
		pts := fromPoints(s.Vertices())
		return &shp.MultiPoint{
			Box:       shp.BBoxFromPoints(pts),
			NumPoints: int32(len(pts)),
			Points:    pts,
		}, nil
	}

	parts := shpParts(s)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %T", geom.ErrUnsupportedGeometry, s.Geometry)
	}
	line := shp.NewPolyLine(parts)
	switch st {
	case shp.POLYLINE:
		return line, nil
	case shp.POLYGON:
		pg := shp.Polygon(*line)
		return &pg, nil
	}

	n := int(line.NumPoints)
	z, m := padded(s.Z, n), padded(s.M, n)
	switch st {
	case shp.POLYLINEZ:
		return &shp.PolyLineZ{
			Box: line.Box, NumParts: line.NumParts, NumPoints: line.NumPoints,
			Parts: line.Parts, Points: line.Points,
			ZRange: valueRange(z), ZArray: z, MRange: valueRange(m), MArray: m,
		}, nil
	case shp.POLYGONZ:
		return &shp.PolygonZ{
			Box: line.Box, NumParts: line.NumParts, NumPoints: line.NumPoints,
			Parts: line.Parts, Points: line.Points,
			ZRange: valueRange(z), ZArray: z, MRange: valueRange(m), MArray: m,
		}, nil
	case shp.POLYLINEM:
		return &shp.PolyLineM{
			Box: line.Box, NumParts: line.NumParts, NumPoints: line.NumPoints,
			Parts: line.Parts, Points: line.Points,
			MRange: valueRange(m), MArray: m,
		}, nil
	case shp.POLYGONM:
		return &shp.PolygonM{
			Box: line.Box, NumParts: line.NumParts, NumPoints: line.NumPoints,
			Parts: line.Parts, Points: line.Points,
			MRange: valueRange(m), MArray: m,
		}, nil
	}
	return nil, fmt.Errorf("%w: shapefile type %d", geom.ErrUnsupportedGeometry, st)
}
