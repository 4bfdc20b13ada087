package geom

import (
	"encoding/xml"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// LoadKML extracts placemarks (Point, LineString, Polygon) from a KML file.
// KML coordinates are "lon,lat[,alt]"; altitude is ignored. The placemark name
// becomes the single "name" column.
func LoadKML(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	type kmlCoords struct {
		Coordinates string `xml:"coordinates"`
	}
	type kmlRing struct {
		Ring kmlCoords `xml:"LinearRing"`
	}
	type kmlPolygon struct {
		Outer kmlRing   `xml:"outerBoundaryIs"`
		Inner []kmlRing `xml:"innerBoundaryIs"`
	}
	type kmlPlacemark struct {
		Name       string      `xml:"name"`
		Point      *kmlCoords  `xml:"Point"`
		LineString *kmlCoords  `xml:"LineString"`
		Polygon    *kmlPolygon `xml:"Polygon"`
	}
	type kmlDoc struct {
		Placemarks []kmlPlacemark `xml:"Document>Placemark"`
		Flat       []kmlPlacemark `xml:"Placemark"`
	}

	var doc kmlDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	c := &Collection{Columns: []string{"name"}}
	for _, pm := range append(doc.Placemarks, doc.Flat...) {
		switch {
		case pm.Point != nil:
			pts := parseKMLCoords(pm.Point.Coordinates)
			if len(pts) == 0 {
				continue
			}
			c.add(NewPoint(pts[0][0], pts[0][1]), []any{pm.Name})
		case pm.LineString != nil:
			pts := parseKMLCoords(pm.LineString.Coordinates)
			if len(pts) < 2 {
				continue
			}
			c.add(NewPolyline(pts...), []any{pm.Name})
		case pm.Polygon != nil:
			outer := parseKMLCoords(pm.Polygon.Outer.Ring.Coordinates)
			if len(outer) < 3 {
				continue
			}
			rings := []orb.Ring{orb.Ring(outer)}
			for _, in := range pm.Polygon.Inner {
				if pts := parseKMLCoords(in.Ring.Coordinates); len(pts) >= 3 {
					rings = append(rings, orb.Ring(pts))
				}
			}
			c.add(NewPolygon(rings...), []any{pm.Name})
		}
	}
	if len(c.Shapes) == 0 {
		return nil, errors.New("kml: no placemarks found")
	}
	return c, nil
}

// coordinates may contain multiple tuples separated by whitespace
func parseKMLCoords(s string) []orb.Point {
	var pts []orb.Point
	for _, tuple := range strings.Fields(s) {
		vals := strings.Split(tuple, ",")
		if len(vals) < 2 {
			continue
		}
		lon, err1 := strconv.ParseFloat(strings.TrimSpace(vals[0]), 64)
		lat, err2 := strconv.ParseFloat(strings.TrimSpace(vals[1]), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		pts = append(pts, orb.Point{lon, lat})
	}
	return pts
}
