package layer

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"geolayer/internal/geom"
	"geolayer/internal/legend"
	"geolayer/internal/table"
)

func polygonLayer(t *testing.T, shapes ...*geom.Shape) *VectorLayer {
	t.Helper()
	v := NewVectorLayer("A", geom.TypePolygon, table.Field{Name: "id", Type: table.Integer})
	v.Projection = "EPSG:4326"
	v.Transparency = 0.25
	for i, s := range shapes {
		if err := v.EditInsertShapeRow(s, i, table.Row{int64(i + 1)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	return v
}

func clipB() []orb.Geometry {
	return []orb.Geometry{squareShape(2, 2, 6, 6).Geometry}
}

func TestIntersectionSquares(t *testing.T) {
	a := polygonLayer(t, squareShape(0, 0, 4, 4))
	res, err := a.Intersection(context.Background(), clipB(), false)
	if err != nil {
		t.Fatalf("Intersection: %v", err)
	}
	out := res.Layer
	if out.ShapeCount() != 1 || res.Skipped != 0 {
		t.Fatalf("shapes=%d skipped=%d; want 1, 0", out.ShapeCount(), res.Skipped)
	}
	s := out.Shape(0)
	if s.Family() != geom.FamilyPolygon {
		t.Fatalf("family = %s", s.Family())
	}
	if got := s.BBox(); got != (geom.BBox{MinX: 2, MinY: 2, MaxX: 4, MaxY: 4}) {
		t.Errorf("bbox = %+v; want [2,2,4,4]", got)
	}
	if area := planar.Area(s.Geometry); math.Abs(area-4) > 1e-9 {
		t.Errorf("area = %v; want 4", area)
	}
	if id, _ := out.Table().Value(0, "id"); id != int64(1) {
		t.Errorf("id = %v; want 1", id)
	}
	if out.Projection != a.Projection || out.Transparency != a.Transparency {
		t.Errorf("params not cloned: %q %v", out.Projection, out.Transparency)
	}
	if err := out.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestOverlayRowsAreCopies(t *testing.T) {
	a := polygonLayer(t, squareShape(0, 0, 4, 4))
	res, err := a.Clip(context.Background(), clipB(), false)
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	res.Layer.EditCellValue(0, "id", 99)
	if id, _ := a.Table().Value(0, "id"); id != int64(1) {
		t.Errorf("source row changed to %v", id)
	}
	if res.Layer.Shape(0) == a.Shape(0) {
		t.Errorf("output shares a shape with the source")
	}
}

func TestClipOneOutputPerPolygon(t *testing.T) {
	a := polygonLayer(t, squareShape(0, 0, 10, 10))
	clips := []orb.Geometry{
		squareShape(1, 1, 2, 2).Geometry,
		squareShape(5, 5, 6, 6).Geometry,
		squareShape(50, 50, 60, 60).Geometry,
	}
	res, err := a.Clip(context.Background(), clips, false)
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	if res.Layer.ShapeCount() != 2 {
		t.Errorf("clip outputs = %d; want 2", res.Layer.ShapeCount())
	}
	res, err = a.Intersection(context.Background(), clips, false)
	if err != nil {
		t.Fatalf("Intersection: %v", err)
	}
	if res.Layer.ShapeCount() != 0 {
		t.Errorf("chained intersection outputs = %d; want 0", res.Layer.ShapeCount())
	}
}

func TestDifferenceShortCircuits(t *testing.T) {
	a := polygonLayer(t, squareShape(0, 0, 4, 4), squareShape(10, 10, 12, 12))
	clips := []orb.Geometry{squareShape(-1, -1, 5, 5).Geometry, squareShape(100, 100, 101, 101).Geometry}
	res, err := a.Difference(context.Background(), clips, false)
	if err != nil {
		t.Fatalf("Difference: %v", err)
	}
	if res.Layer.ShapeCount() != 1 {
		t.Fatalf("outputs = %d; want 1", res.Layer.ShapeCount())
	}
	if id, _ := res.Layer.Table().Value(0, "id"); id != int64(2) {
		t.Errorf("surviving id = %v; want 2", id)
	}
}

func TestSymDifference(t *testing.T) {
	a := polygonLayer(t, squareShape(0, 0, 4, 4))
	res, err := a.SymDifference(context.Background(), clipB(), false)
	if err != nil {
		t.Fatalf("SymDifference: %v", err)
	}
	if area := planar.Area(res.Layer.Shape(0).Geometry); math.Abs(area-24) > 1e-9 {
		t.Errorf("area = %v; want 24", area)
	}
}

func TestBufferPointsToPolygons(t *testing.T) {
	v := pointLayer(t, orb.Point{0, 0}, orb.Point{10, 10})
	v.Select([]int{1}, SelectNew)
	res, err := v.Buffer(context.Background(), 1, 8, true)
	if err != nil {
		t.Fatalf("Buffer: %v", err)
	}
	out := res.Layer
	if out.ShapeType != geom.TypePolygon || out.ShapeCount() != 1 {
		t.Fatalf("type=%s count=%d", out.ShapeType, out.ShapeCount())
	}
	if id, _ := out.Table().Value(0, "id"); id != int64(2) {
		t.Errorf("id = %v; want 2", id)
	}
	c := out.Shape(0).BBox().Center()
	if math.Abs(c[0]-10) > 1e-9 || math.Abs(c[1]-10) > 1e-9 {
		t.Errorf("buffer centre = %v", c)
	}
}

func TestConvexHull(t *testing.T) {
	v := NewVectorLayer("l", geom.TypePolyline)
	v.AddShape(geom.NewPolyline(orb.Point{0, 0}, orb.Point{4, 0}, orb.Point{4, 4}, orb.Point{2, 1}))
	v.AddShape(geom.NewPolyline(orb.Point{0, 0}, orb.Point{5, 0}))
	res, err := v.ConvexHull(context.Background(), false)
	if err != nil {
		t.Fatalf("ConvexHull: %v", err)
	}
	// The straight line has a degenerate hull and yields no polygon.
	if res.Layer.ShapeCount() != 1 {
		t.Fatalf("outputs = %d; want 1", res.Layer.ShapeCount())
	}
	if area := planar.Area(res.Layer.Shape(0).Geometry); math.Abs(area-8) > 1e-9 {
		t.Errorf("hull area = %v; want 8", area)
	}
}

func TestOverlayKeepsLegend(t *testing.T) {
	a := polygonLayer(t, squareShape(0, 0, 4, 4), squareShape(1, 1, 3, 3))
	if err := a.Classify(legend.UniqueValue, "id"); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	res, err := a.Intersection(context.Background(), clipB(), false)
	if err != nil {
		t.Fatalf("Intersection: %v", err)
	}
	got, want := res.Layer.LegendScheme(), a.LegendScheme()
	if got.Type != want.Type || got.BreakCount() != want.BreakCount() {
		t.Errorf("scheme = %s/%d; want %s/%d", got.Type, got.BreakCount(), want.Type, want.BreakCount())
	}
	if err := res.Layer.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestOverlayCancelled(t *testing.T) {
	a := polygonLayer(t, squareShape(0, 0, 4, 4))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Intersection(ctx, clipB(), false); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v; want context.Canceled", err)
	}
}

func TestOverlayAsyncSnapshot(t *testing.T) {
	a := polygonLayer(t, squareShape(0, 0, 4, 4), squareShape(1, 1, 3, 3))
	var calls int
	ch := a.OverlayAsync(context.Background(), OverlayRequest{
		Op:           OpIntersection,
		ClipPolygons: clipB(),
		Progress:     func(done, total int) { calls++ },
	})
	// Edits after the call do not reach the running job.
	a.RemoveShapeAt(0)
	res := <-ch
	if res.Err != nil {
		t.Fatalf("OverlayAsync: %v", res.Err)
	}
	if res.Layer.ShapeCount() != 2 {
		t.Errorf("outputs = %d; want 2", res.Layer.ShapeCount())
	}
	if calls != 2 {
		t.Errorf("progress calls = %d; want 2", calls)
	}
	if _, open := <-ch; open {
		t.Errorf("channel not closed")
	}
}

func TestOverlayRejectsBadRequest(t *testing.T) {
	a := polygonLayer(t, squareShape(0, 0, 4, 4))
	if _, err := a.Intersection(context.Background(), nil, false); err == nil {
		t.Errorf("missing clip polygons accepted")
	}
	if _, err := a.Clip(context.Background(), []orb.Geometry{orb.Point{1, 1}}, false); err == nil {
		t.Errorf("point clip accepted")
	}
	res := <-a.OverlayAsync(context.Background(), OverlayRequest{Op: OverlayOp(42)})
	if res.Err == nil {
		t.Errorf("unknown op accepted")
	}
}
