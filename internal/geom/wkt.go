package geom

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb/encoding/wkt"
)

// ParseWKT parses one WKT geometry into a shape.
// Supported: POINT, MULTIPOINT, LINESTRING, MULTILINESTRING, POLYGON, MULTIPOLYGON.
func ParseWKT(s string) (*Shape, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty wkt")
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("wkt: %w", err)
	}
	return NewShape(g)
}

// ParseWKTCollection parses one geometry per non-empty line. Lines starting with '#' are skipped.
func ParseWKTCollection(text string) (*Collection, error) {
	c := &Collection{}
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		l := strings.TrimSpace(sc.Text())
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		s, err := ParseWKT(l)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c.add(s, []any{})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(c.Shapes) == 0 {
		return nil, errors.New("wkt: no geometries parsed")
	}
	return c, nil
}

// FormatWKT renders the 2D geometry of a shape.
func FormatWKT(s *Shape) string {
	return wkt.MarshalString(s.Geometry)
}
