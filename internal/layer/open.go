package layer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"geolayer/internal/geom"
)

// Extensions lists the file types Open understands.
var Extensions = []string{".geojson", ".json", ".csv", ".kml", ".wkt", ".shp"}

// Supported reports whether Open can read path by its extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Open loads a vector layer from a file, choosing the reader by extension.
// The layer is named after the file.
func Open(path string) (*VectorLayer, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var (
		c   *geom.Collection
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".shp":
		v, err := LoadShapefile(path)
		if err != nil {
			return nil, err
		}
		v.Name = name
		return v, nil
	case ".geojson", ".json":
		c, err = geom.LoadGeoJSON(path)
	case ".csv":
		c, err = geom.LoadCSV(path)
	case ".kml":
		c, err = geom.LoadKML(path)
	case ".wkt":
		var data []byte
		data, err = os.ReadFile(path)
		if err == nil {
			c, err = geom.ParseWKTCollection(string(data))
		}
	default:
		return nil, fmt.Errorf("unsupported file: %s", ext)
	}
	if err != nil {
		return nil, err
	}
	v, err := FromCollection(name, c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	logger.Printf("[LOAD] %s: %d %s shapes, %d fields", name, v.ShapeCount(), v.Family(), len(v.Table().Fields()))
	return v, nil
}
