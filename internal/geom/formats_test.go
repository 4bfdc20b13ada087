package geom

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/paulmach/orb"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseWKT(t *testing.T) {
	tests := []struct {
		in      string
		want    ShapeType
		wantErr bool
	}{
		{"POINT (1 2)", TypePoint, false},
		{"  LINESTRING (0 0, 1 1, 2 0) ", TypePolyline, false},
		{"POLYGON ((0 0, 4 0, 4 4, 0 4, 0 0))", TypePolygon, false},
		{"MULTIPOINT ((0 0), (1 1))", TypeMultiPoint, false},
		{"", TypeNull, true},
		{"BLOB (1 2)", TypeNull, true},
	}
	for _, tt := range tests {
		s, err := ParseWKT(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseWKT(%q) err = %v; wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && s.Type != tt.want {
			t.Errorf("ParseWKT(%q) type = %s; want %s", tt.in, s.Type, tt.want)
		}
	}
}

func TestParseWKTCollection(t *testing.T) {
	c, err := ParseWKTCollection("# comment\nPOINT (1 2)\n\nLINESTRING (0 0, 3 3)\n")
	if err != nil {
		t.Fatalf("ParseWKTCollection: %v", err)
	}
	if p, l, g := c.Counts(); p != 1 || l != 1 || g != 0 {
		t.Errorf("counts = %d %d %d", p, l, g)
	}
	if c.BBox() != (BBox{MinX: 0, MinY: 0, MaxX: 3, MaxY: 3}) {
		t.Errorf("bbox = %+v", c.BBox())
	}
	if _, err := ParseWKTCollection("POINT (1 2)\nNOPE"); err == nil {
		t.Errorf("bad line accepted")
	}
	if _, err := ParseWKTCollection("# only comments"); err == nil {
		t.Errorf("empty collection accepted")
	}
}

func TestFormatWKTRoundTrip(t *testing.T) {
	s := NewPolygon(orb.Ring{{0, 0}, {4, 0}, {4, 4}, {0, 4}})
	back, err := ParseWKT(FormatWKT(s))
	if err != nil {
		t.Fatalf("ParseWKT: %v", err)
	}
	if !orb.Equal(back.Geometry, s.Geometry) {
		t.Errorf("round trip = %v; want %v", back.Geometry, s.Geometry)
	}
}

func TestDecodeGeoJSON(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"name":"a","pop":10}},
		{"type":"Feature","geometry":null,"properties":{"name":"skip"}},
		{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]},"properties":{"tags":{"k":"v"},"name":"b"}}
	]}`
	c, err := DecodeGeoJSON([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeGeoJSON: %v", err)
	}
	if len(c.Shapes) != 2 {
		t.Fatalf("shapes = %d; want 2", len(c.Shapes))
	}
	if want := []string{"name", "pop", "tags"}; !reflect.DeepEqual(c.Columns, want) {
		t.Errorf("columns = %v; want %v", c.Columns, want)
	}
	if want := []any{"a", 10.0, nil}; !reflect.DeepEqual(c.Rows[0], want) {
		t.Errorf("row 0 = %v; want %v", c.Rows[0], want)
	}
	if got := c.Rows[1][2]; got != `{"k":"v"}` {
		t.Errorf("nested value = %v", got)
	}
}

func TestDecodeGeoJSONVariants(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"feature", `{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}}`, false},
		{"geometry", `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`, false},
		{"missing type", `{"features":[]}`, true},
		{"empty", `{"type":"FeatureCollection","features":[]}`, true},
		{"not json", `nope`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeGeoJSON([]byte(tt.doc))
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v; wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeGeoJSON(t *testing.T) {
	c := &Collection{Columns: []string{"name"}}
	c.add(NewPoint(1, 2), []any{"a"})
	data, err := EncodeGeoJSON(c)
	if err != nil {
		t.Fatalf("EncodeGeoJSON: %v", err)
	}
	var out struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(out.Features) != 1 || out.Features[0].Properties["name"] != "a" {
		t.Errorf("features = %+v", out.Features)
	}
}

func TestLoadCSV(t *testing.T) {
	p := writeTemp(t, "pts.csv", "name,Lat,Lon\na,10,20\nb,bad,1\nc,-5,3.5\n")
	c, err := LoadCSV(p)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(c.Shapes) != 2 {
		t.Fatalf("shapes = %d; want 2", len(c.Shapes))
	}
	if got := c.Shapes[1].Geometry.(orb.Point); got != (orb.Point{3.5, -5}) {
		t.Errorf("point = %v; want [3.5 -5]", got)
	}
	if !reflect.DeepEqual(c.Rows[0], []any{"a", "10", "20"}) {
		t.Errorf("row = %v", c.Rows[0])
	}

	if _, err := LoadCSV(writeTemp(t, "no.csv", "a,b\n1,2\n")); err == nil {
		t.Errorf("csv without coordinates accepted")
	}
}

func TestLoadKML(t *testing.T) {
	doc := `<?xml version="1.0"?>
<kml><Document>
<Placemark><name>pin</name><Point><coordinates>1,2,0</coordinates></Point></Placemark>
<Placemark><name>road</name><LineString><coordinates>0,0 1,1 2,1</coordinates></LineString></Placemark>
<Placemark><name>park</name><Polygon><outerBoundaryIs><LinearRing><coordinates>0,0 4,0 4,4 0,4 0,0</coordinates></LinearRing></outerBoundaryIs></Polygon></Placemark>
</Document></kml>`
	c, err := LoadKML(writeTemp(t, "doc.kml", doc))
	if err != nil {
		t.Fatalf("LoadKML: %v", err)
	}
	if p, l, g := c.Counts(); p != 1 || l != 1 || g != 1 {
		t.Errorf("counts = %d %d %d; want 1 1 1", p, l, g)
	}
	if c.Rows[2][0] != "park" {
		t.Errorf("name = %v", c.Rows[2][0])
	}
}
