package geom

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/paulmach/orb/geojson"
)

// LoadGeoJSON reads a GeoJSON file into a collection.
func LoadGeoJSON(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeGeoJSON(data)
}

// DecodeGeoJSON accepts a FeatureCollection, a Feature or a bare geometry.
// Property keys become columns in first-seen order (keys sorted within a feature).
// Features without a supported geometry are dropped.
func DecodeGeoJSON(data []byte) (*Collection, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	var features []*geojson.Feature
	switch head.Type {
	case "":
		return nil, errors.New("invalid geojson: missing type")
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		features = fc.Features
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		features = []*geojson.Feature{f}
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, err
		}
		features = []*geojson.Feature{geojson.NewFeature(g.Geometry())}
	}

	c := &Collection{}
	index := map[string]int{}
	for _, f := range features {
		keys := make([]string, 0, len(f.Properties))
		for k := range f.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := index[k]; !ok {
				index[k] = len(c.Columns)
				c.Columns = append(c.Columns, k)
			}
		}
	}
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		s, err := NewShape(f.Geometry)
		if err != nil {
			continue
		}
		row := make([]any, len(c.Columns))
		for k, v := range f.Properties {
			row[index[k]] = normalizeJSONValue(v)
		}
		c.add(s, row)
	}
	if len(c.Shapes) == 0 {
		return nil, errors.New("no geometries found")
	}
	return c, nil
}

// normalizeJSONValue keeps scalars and re-encodes nested values as JSON text.
func normalizeJSONValue(v any) any {
	switch t := v.(type) {
	case nil, string, float64, bool:
		return t
	default:
		bs, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(bs)
	}
}

// EncodeGeoJSON writes a FeatureCollection; row values are keyed by column.
func EncodeGeoJSON(c *Collection) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for i, s := range c.Shapes {
		f := geojson.NewFeature(s.Geometry)
		if i < len(c.Rows) {
			for j, col := range c.Columns {
				if j < len(c.Rows[i]) {
					f.Properties[col] = c.Rows[i][j]
				}
			}
		}
		fc.Append(f)
	}
	return fc.MarshalJSON()
}
