package layer

import (
	"os"
	"path/filepath"
	"testing"

	"geolayer/internal/geom"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"towns.geojson": `{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{"name":"a","pop":10},"geometry":{"type":"Point","coordinates":[1,2]}},
			{"type":"Feature","properties":{"name":"b","pop":20},"geometry":{"type":"Point","coordinates":[3,4]}}]}`,
		"parcels.wkt": "POLYGON ((0 0, 1 0, 1 1, 0 1, 0 0))\nPOLYGON ((2 2, 3 2, 3 3, 2 3, 2 2))\n",
		"notes.txt":   "nothing",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		file   string
		name   string
		family geom.Family
		shapes int
		fields int
	}{
		{"towns.geojson", "towns", geom.FamilyPoint, 2, 2},
		{"parcels.wkt", "parcels", geom.FamilyPolygon, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			v, err := Open(filepath.Join(dir, tt.file))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if v.Name != tt.name || v.Family() != tt.family || v.ShapeCount() != tt.shapes {
				t.Errorf("got %q %s %d; want %q %s %d", v.Name, v.Family(), v.ShapeCount(), tt.name, tt.family, tt.shapes)
			}
			if n := len(v.Table().Fields()); n != tt.fields {
				t.Errorf("fields = %d; want %d", n, tt.fields)
			}
		})
	}

	if _, err := Open(filepath.Join(dir, "notes.txt")); err == nil {
		t.Errorf("unsupported extension accepted")
	}
	if _, err := Open(filepath.Join(dir, "missing.geojson")); err == nil {
		t.Errorf("missing file accepted")
	}
	if Supported("a.txt") || !Supported("A.SHP") {
		t.Errorf("Supported mismatch")
	}
}
