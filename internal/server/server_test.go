package server

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"geolayer/internal/config"
	"geolayer/internal/layer"
)

const squares = `{"type":"FeatureCollection","features":[
{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[4,0],[4,4],[0,4],[0,0]]]},"properties":{"id":1,"zone":"res","flat":5}},
{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[10,0],[14,0],[14,4],[10,4],[10,0]]]},"properties":{"id":2,"zone":"ind","flat":5}}
]}`

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	layer.SetLogger(log.New(io.Discard, "", 0))
	os.Exit(m.Run())
}

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	return New(config.Default(), NewRegistry(), false)
}

func do(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func createSquares(t *testing.T, app *fiber.App) layerInfo {
	t.Helper()
	resp, data := do(t, app, http.MethodPost, "/layers?name=parcels", squares)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d: %s", resp.StatusCode, data)
	}
	return decode[layerInfo](t, data)
}

func TestHealth(t *testing.T) {
	resp, data := do(t, newApp(t), http.MethodGet, "/health/live", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "alive") {
		t.Errorf("health = %d %s", resp.StatusCode, data)
	}
}

func TestCreateAndGetLayer(t *testing.T) {
	app := newApp(t)
	info := createSquares(t, app)
	if info.Name != "parcels" || info.Shapes != 2 || info.ShapeType != "Polygon" {
		t.Errorf("info = %+v", info)
	}
	if len(info.Fields) != 3 {
		t.Errorf("fields = %+v", info.Fields)
	}

	resp, data := do(t, app, http.MethodGet, "/layers/"+info.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if got := decode[layerInfo](t, data); got.ID != info.ID {
		t.Errorf("id = %s; want %s", got.ID, info.ID)
	}

	resp, data = do(t, app, http.MethodGet, "/layers", "")
	if list := decode[[]layerInfo](t, data); resp.StatusCode != http.StatusOK || len(list) != 1 {
		t.Errorf("list = %d %s", resp.StatusCode, data)
	}
}

func TestCreateLayerErrors(t *testing.T) {
	app := newApp(t)
	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"empty", "/layers", "", http.StatusBadRequest},
		{"bad geojson", "/layers", `{"type":"FeatureCollection","features":[]}`, http.StatusBadRequest},
		{"bad format", "/layers?format=kml", squares, http.StatusBadRequest},
		{"wkt", "/layers?format=wkt", "POINT (1 2)\nPOINT (3 4)", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := do(t, app, http.MethodPost, tt.target, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d; want %d (%s)", resp.StatusCode, tt.want, data)
			}
		})
	}
}

func TestLegend(t *testing.T) {
	app := newApp(t)
	id := createSquares(t, app).ID

	resp, data := do(t, app, http.MethodPost, "/layers/"+id+"/legend", `{"type":"unique","field":"zone"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("legend status = %d: %s", resp.StatusCode, data)
	}
	out := decode[struct {
		Legend struct {
			Type   string `json:"type"`
			Breaks []struct {
				Caption string `json:"caption"`
			} `json:"breaks"`
		} `json:"legend"`
		LegendIndexes []int `json:"legendIndexes"`
	}](t, data)
	if out.Legend.Type != "unique" || len(out.Legend.Breaks) != 3 {
		t.Errorf("legend = %+v", out.Legend)
	}
	if len(out.LegendIndexes) != 2 || out.LegendIndexes[0] != 0 || out.LegendIndexes[1] != 1 {
		t.Errorf("legendIndexes = %v", out.LegendIndexes)
	}

	tests := []struct {
		body string
		want int
	}{
		{`{"type":"graduated","field":"flat"}`, http.StatusUnprocessableEntity},
		{`{"type":"unique","field":"nope"}`, http.StatusBadRequest},
		{`{"type":"sparkly"}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if resp, data := do(t, app, http.MethodPost, "/layers/"+id+"/legend", tt.body); resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d; want %d (%s)", tt.body, resp.StatusCode, tt.want, data)
		}
	}
}

func TestSelect(t *testing.T) {
	app := newApp(t)
	id := createSquares(t, app).ID
	target := "/layers/" + id + "/select"

	tests := []struct {
		name string
		body string
		code int
		want []int
	}{
		{"where", `{"where":"id = 2"}`, http.StatusOK, []int{1}},
		{"add bbox", `{"mode":"add","bbox":[1,1,2,2]}`, http.StatusOK, []int{0, 1}},
		{"remove where", `{"mode":"remove","where":"zone = 'ind'"}`, http.StatusOK, []int{0}},
		{"none", `{"where":"id > 10"}`, http.StatusOK, []int{}},
		{"lasso", `{"polygon":[[-1,-1],[5,-1],[5,5],[-1,5]]}`, http.StatusOK, []int{0}},
		{"point", `{"point":[12,2]}`, http.StatusOK, []int{1}},
		{"add point outside", `{"mode":"add","point":[7,2]}`, http.StatusOK, []int{1}},
		{"two queries", `{"where":"id = 1","point":[1,1]}`, http.StatusBadRequest, nil},
		{"bad where", `{"where":"id = ;"}`, http.StatusBadRequest, nil},
		{"bad mode", `{"mode":"xor","where":"id = 1"}`, http.StatusBadRequest, nil},
		{"missing", `{}`, http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		resp, data := do(t, app, http.MethodPost, target, tt.body)
		if resp.StatusCode != tt.code {
			t.Errorf("%s: status = %d; want %d (%s)", tt.name, resp.StatusCode, tt.code, data)
			continue
		}
		if tt.code != http.StatusOK {
			continue
		}
		got := decode[struct {
			Selected []int `json:"selected"`
		}](t, data).Selected
		if len(got) != len(tt.want) {
			t.Errorf("%s: selected = %v; want %v", tt.name, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: selected = %v; want %v", tt.name, got, tt.want)
				break
			}
		}
	}
}

func TestOverlay(t *testing.T) {
	app := newApp(t)
	id := createSquares(t, app).ID
	body := `{"op":"intersection","clipGeojson":{"type":"Polygon","coordinates":[[[2,2],[6,2],[6,6],[2,6],[2,2]]]}}`

	resp, data := do(t, app, http.MethodPost, "/layers/"+id+"/overlay", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("overlay status = %d: %s", resp.StatusCode, data)
	}
	out := decode[struct {
		Layer   layerInfo `json:"layer"`
		Skipped int       `json:"skipped"`
	}](t, data)
	if out.Layer.Shapes != 1 || out.Skipped != 0 || out.Layer.Name != "parcels_intersection" {
		t.Errorf("result = %+v", out)
	}
	want := []float64{2, 2, 4, 4}
	for i, x := range want {
		if out.Layer.Extent[i] != x {
			t.Errorf("extent = %v; want %v", out.Layer.Extent, want)
			break
		}
	}

	if resp, _ := do(t, app, http.MethodGet, "/layers/"+out.Layer.ID, ""); resp.StatusCode != http.StatusOK {
		t.Errorf("result layer not registered: %d", resp.StatusCode)
	}

	clip := `{"op":"clip","clipLayer":"` + id + `","name":"self"}`
	if resp, data := do(t, app, http.MethodPost, "/layers/"+id+"/overlay", clip); resp.StatusCode != http.StatusCreated {
		t.Errorf("clip by layer status = %d: %s", resp.StatusCode, data)
	}
	buffer := `{"op":"buffer","distance":1}`
	if resp, data := do(t, app, http.MethodPost, "/layers/"+id+"/overlay", buffer); resp.StatusCode != http.StatusCreated {
		t.Errorf("buffer status = %d: %s", resp.StatusCode, data)
	}
	for _, bad := range []string{`{"op":"melt"}`, `{"op":"intersection"}`, `{"op":"clip","clipLayer":"nope"}`} {
		if resp, _ := do(t, app, http.MethodPost, "/layers/"+id+"/overlay", bad); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d; want 400", bad, resp.StatusCode)
		}
	}
}

func TestLabelsAndExports(t *testing.T) {
	app := newApp(t)
	id := createSquares(t, app).ID

	resp, data := do(t, app, http.MethodGet, "/layers/"+id+"/labels?field=zone", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("labels status = %d: %s", resp.StatusCode, data)
	}
	labels := decode[struct {
		Labels []layer.Label `json:"labels"`
	}](t, data).Labels
	if len(labels) != 2 || labels[0].Text != "res" || labels[0].X != 2 || labels[0].Y != 2 {
		t.Errorf("labels = %+v", labels)
	}
	if resp, _ := do(t, app, http.MethodGet, "/layers/"+id+"/labels?field=nope", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown label field status = %d", resp.StatusCode)
	}

	resp, data = do(t, app, http.MethodGet, "/layers/"+id+"/geojson", "")
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" || !strings.Contains(string(data), "FeatureCollection") {
		t.Errorf("geojson = %q %s", ct, data)
	}
	resp, data = do(t, app, http.MethodGet, "/layers/"+id+"/svg", "")
	if ct := resp.Header.Get("Content-Type"); ct != "image/svg+xml" || !strings.Contains(string(data), "<svg") {
		t.Errorf("svg = %q", ct)
	}
}

func TestDeleteLayer(t *testing.T) {
	app := newApp(t)
	id := createSquares(t, app).ID
	if resp, _ := do(t, app, http.MethodDelete, "/layers/"+id, ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	if resp, _ := do(t, app, http.MethodGet, "/layers/"+id, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted layer status = %d", resp.StatusCode)
	}
	if resp, _ := do(t, app, http.MethodGet, "/layers/not-a-uuid", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d", resp.StatusCode)
	}
}

func TestOverlayTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.Server.OverlayTimeout = 0
	app := New(cfg, NewRegistry(), false)
	id := createSquares(t, app).ID

	resp, data := do(t, app, http.MethodPost, "/layers/"+id+"/overlay", `{"op":"buffer","distance":1}`)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status = %d; want 504 (%s)", resp.StatusCode, data)
	}
	_, data = do(t, app, http.MethodGet, "/layers", "")
	if got := decode[[]layerInfo](t, data); len(got) != 1 {
		t.Errorf("layers after timeout = %d; want 1", len(got))
	}
}

func TestLabelsDoNotPersistQuery(t *testing.T) {
	reg := NewRegistry()
	app := New(config.Default(), reg, false)
	id := createSquares(t, app).ID

	if resp, data := do(t, app, http.MethodGet, "/layers/"+id+"/labels?field=zone&avoidCollision=true", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("labels status = %d: %s", resp.StatusCode, data)
	}
	e, ok := reg.get(uuid.MustParse(id))
	if !ok {
		t.Fatal("layer not registered")
	}
	if e.layer.Labels.AvoidCollision {
		t.Errorf("avoidCollision query stored on the layer")
	}
	if e.layer.Labels.Field != "zone" {
		t.Errorf("label field = %q; want zone", e.layer.Labels.Field)
	}
}

func TestFieldEdits(t *testing.T) {
	app := newApp(t)
	id := createSquares(t, app).ID
	base := "/layers/" + id

	resp, data := do(t, app, http.MethodPost, base+"/fields", `{"name":"zone","type":"integer"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status = %d: %s", resp.StatusCode, data)
	}
	if got := decode[fieldRequest](t, data); got.Name != "zone_1" || got.Type != "integer" {
		t.Errorf("added field = %+v; want zone_1 integer", got)
	}

	tests := []struct {
		name   string
		method string
		target string
		body   string
		code   int
	}{
		{"rename", http.MethodPatch, base + "/fields/zone_1", `{"name":"code"}`, http.StatusOK},
		{"rename missing", http.MethodPatch, base + "/fields/nope", `{"name":"x"}`, http.StatusNotFound},
		{"rename taken", http.MethodPatch, base + "/fields/code", `{"name":"id"}`, http.StatusConflict},
		{"bad type", http.MethodPost, base + "/fields", `{"name":"q","type":"blob"}`, http.StatusBadRequest},
		{"edit row", http.MethodPut, base + "/rows/0", `{"code":7}`, http.StatusOK},
		{"edit bad value", http.MethodPut, base + "/rows/0", `{"code":"seven"}`, http.StatusBadRequest},
		{"edit unknown field", http.MethodPut, base + "/rows/0", `{"nope":1}`, http.StatusBadRequest},
		{"edit row out of range", http.MethodPut, base + "/rows/9", `{"code":1}`, http.StatusNotFound},
		{"remove", http.MethodDelete, base + "/fields/code", "", http.StatusNoContent},
		{"remove again", http.MethodDelete, base + "/fields/code", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, data := do(t, app, tt.method, tt.target, tt.body)
		if resp.StatusCode != tt.code {
			t.Errorf("%s: status = %d; want %d (%s)", tt.name, resp.StatusCode, tt.code, data)
		}
		if tt.name == "edit row" {
			attrs := decode[struct {
				Attributes map[string]string `json:"attributes"`
			}](t, data).Attributes
			if attrs["code"] != "7" || attrs["zone"] != "res" {
				t.Errorf("row 0 attributes = %v", attrs)
			}
		}
	}

	_, data = do(t, app, http.MethodGet, base, "")
	for _, f := range decode[layerInfo](t, data).Fields {
		if f.Name == "code" || f.Name == "zone_1" {
			t.Errorf("field %s still present", f.Name)
		}
	}
}

func TestDensity(t *testing.T) {
	app := newApp(t)
	id := createSquares(t, app).ID

	resp, data := do(t, app, http.MethodGet, "/layers/"+id+"/density?cols=2&rows=1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("density status = %d: %s", resp.StatusCode, data)
	}
	grid := decode[struct {
		Kind   string    `json:"kind"`
		Values []float64 `json:"values"`
	}](t, data)
	if grid.Kind != "raster" || len(grid.Values) != 2 || grid.Values[0] != 1 || grid.Values[1] != 1 {
		t.Errorf("grid = %+v", grid)
	}

	_, data = do(t, app, http.MethodGet, "/layers/"+id+"/density?cols=2&rows=1&x=1&y=1", "")
	cell := decode[struct {
		Value  float64 `json:"value"`
		Inside bool    `json:"inside"`
	}](t, data)
	if cell.Value != 1 || !cell.Inside {
		t.Errorf("cell = %+v", cell)
	}
	if resp, _ := do(t, app, http.MethodGet, "/layers/"+id+"/density?cols=abc", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad cols status = %d", resp.StatusCode)
	}
}

func TestBasemap(t *testing.T) {
	app := newApp(t)
	resp, data := do(t, app, http.MethodGet, "/basemap", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "tile.openstreetmap.org") {
		t.Errorf("basemap = %d %s", resp.StatusCode, data)
	}
	resp, _ = do(t, app, http.MethodGet, "/basemap/25/1/2", "")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("tile status = %d; want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://tile.openstreetmap.org/19/1/2.png" {
		t.Errorf("Location = %q", loc)
	}
	if resp, _ := do(t, app, http.MethodGet, "/basemap/1/x/2", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad tile status = %d", resp.StatusCode)
	}
}
