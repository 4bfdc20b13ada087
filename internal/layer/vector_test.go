package layer

import (
	"errors"
	"io"
	"log"
	"os"
	"reflect"
	"testing"

	"github.com/paulmach/orb"

	"geolayer/internal/geom"
	"geolayer/internal/table"
)

func TestMain(m *testing.M) {
	SetLogger(log.New(io.Discard, "", 0))
	os.Exit(m.Run())
}

func squareShape(x0, y0, x1, y1 float64) *geom.Shape {
	return geom.NewPolygon(orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}})
}

// pointLayer builds points with an id and a temp column.
func pointLayer(t *testing.T, pts ...orb.Point) *VectorLayer {
	t.Helper()
	v := NewVectorLayer("pts", geom.TypePoint,
		table.Field{Name: "id", Type: table.Integer},
		table.Field{Name: "temp", Type: table.Double},
	)
	for i, p := range pts {
		row := table.Row{int64(i + 1), float64(i) * 10}
		if err := v.EditInsertShapeRow(geom.NewPoint(p[0], p[1]), i, row); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	return v
}

func mustValid(t *testing.T, v *VectorLayer) {
	t.Helper()
	if err := v.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.ShapeCount() != v.Table().RowCount() {
		t.Fatalf("shapes=%d rows=%d", v.ShapeCount(), v.Table().RowCount())
	}
}

func TestAddRemoveRoundTrip(t *testing.T) {
	v := pointLayer(t, orb.Point{0, 0}, orb.Point{1, 1})
	shapes, rows := v.ShapeCount(), v.Table().RowCount()

	s := geom.NewPoint(5, 5)
	if err := v.AddShape(s); err != nil {
		t.Fatalf("AddShape: %v", err)
	}
	mustValid(t, v)
	if !v.EditRemoveShape(s) {
		t.Fatalf("EditRemoveShape returned false")
	}
	mustValid(t, v)
	if v.ShapeCount() != shapes || v.Table().RowCount() != rows {
		t.Errorf("after round trip shapes=%d rows=%d; want %d %d", v.ShapeCount(), v.Table().RowCount(), shapes, rows)
	}
	if v.EditRemoveShape(s) {
		t.Errorf("removing an absent shape reported true")
	}
}

func TestInsertRejectsBadRow(t *testing.T) {
	v := pointLayer(t, orb.Point{0, 0})
	err := v.EditInsertShapeRow(geom.NewPoint(1, 1), 0, table.Row{"x", "not a number"})
	if err == nil {
		t.Fatalf("insert with bad row succeeded")
	}
	var fe *table.InvalidFieldValueError
	if !errors.As(err, &fe) {
		t.Errorf("error = %v; want InvalidFieldValueError", err)
	}
	mustValid(t, v)
	if v.ShapeCount() != 1 {
		t.Errorf("ShapeCount = %d; want 1", v.ShapeCount())
	}
}

func TestInsertRejectsWrongFamily(t *testing.T) {
	v := pointLayer(t)
	if err := v.AddShape(squareShape(0, 0, 1, 1)); !errors.Is(err, ErrShapeType) {
		t.Errorf("got %v; want ErrShapeType", err)
	}
	s := geom.NewPoint(0, 0)
	v.AddShape(s)
	if err := v.AddShape(s); !errors.Is(err, ErrShapeOwned) {
		t.Errorf("double add: got %v; want ErrShapeOwned", err)
	}
	mustValid(t, v)
}

func TestExtent(t *testing.T) {
	v := pointLayer(t)
	if _, ok := v.Extent(); ok {
		t.Fatalf("empty layer has an extent")
	}
	a, b := geom.NewPoint(1, 2), geom.NewPoint(-3, 7)
	v.AddShape(a)
	if ext, _ := v.Extent(); ext != (geom.BBox{MinX: 1, MinY: 2, MaxX: 1, MaxY: 2}) {
		t.Errorf("first extent = %+v", ext)
	}
	v.AddShape(b)
	if ext, _ := v.Extent(); ext != (geom.BBox{MinX: -3, MinY: 2, MaxX: 1, MaxY: 7}) {
		t.Errorf("union extent = %+v", ext)
	}
	v.EditRemoveShape(b)
	if ext, _ := v.Extent(); ext != (geom.BBox{MinX: 1, MinY: 2, MaxX: 1, MaxY: 2}) {
		t.Errorf("extent after removal = %+v", ext)
	}
}

func TestEditFields(t *testing.T) {
	v := pointLayer(t, orb.Point{0, 0}, orb.Point{1, 1}, orb.Point{2, 2})
	got, err := v.EditAddField("temp", table.Double)
	if err != nil || got != "temp_1" {
		t.Fatalf("EditAddField = %q, %v; want temp_1", got, err)
	}
	if _, err := v.EditAddField("  ", table.String); !errors.Is(err, ErrEmptyName) {
		t.Errorf("blank name: got %v", err)
	}

	var before []any
	for i := 0; i < v.ShapeCount(); i++ {
		x, _ := v.Table().Value(i, "temp")
		before = append(before, x)
	}
	if err := v.EditRenameField("temp", "temperature"); err != nil {
		t.Fatalf("EditRenameField: %v", err)
	}
	for i := range before {
		x, err := v.Table().Value(i, "temperature")
		if err != nil || !reflect.DeepEqual(x, before[i]) {
			t.Errorf("row %d: %v %v; want %v", i, x, err, before[i])
		}
	}
	if want := []string{"id", "temperature", "temp_1"}; !reflect.DeepEqual(v.Table().FieldNames(), want) {
		t.Errorf("fields = %v; want %v", v.Table().FieldNames(), want)
	}

	if err := v.EditRemoveField("temp_1"); err != nil {
		t.Fatalf("EditRemoveField: %v", err)
	}
	if err := v.EditRemoveField("temp_1"); !errors.Is(err, table.ErrFieldNotFound) {
		t.Errorf("second remove: got %v", err)
	}
	mustValid(t, v)
}

func TestEditCellValue(t *testing.T) {
	v := pointLayer(t, orb.Point{0, 0}, orb.Point{1, 1}, orb.Point{2, 2})
	if err := v.EditCellValue(1, "temp", "42.5"); err != nil {
		t.Fatalf("EditCellValue: %v", err)
	}
	if x, _ := v.Table().Value(1, "temp"); x != 42.5 {
		t.Errorf("temp = %v; want 42.5", x)
	}
	var fe *table.InvalidFieldValueError
	if err := v.EditCellValue(1, "temp", "warm"); !errors.As(err, &fe) {
		t.Errorf("got %v; want InvalidFieldValueError", err)
	}
}

func TestReplaceAllMismatch(t *testing.T) {
	v := pointLayer(t)
	tb := table.New()
	tb.AppendRow(nil)
	err := v.ReplaceAll([]*geom.Shape{geom.NewPoint(0, 0), geom.NewPoint(1, 1)}, tb)
	if !errors.Is(err, ErrInvariant) {
		t.Errorf("got %v; want ErrInvariant", err)
	}
}

func TestFromCollection(t *testing.T) {
	c := &geom.Collection{
		Columns: []string{"name", "pop", "ratio", "since", "open"},
		Shapes: []*geom.Shape{
			geom.NewPoint(0, 0),
			geom.NewPoint(1, 1),
			squareShape(0, 0, 1, 1),
		},
		Rows: [][]any{
			{"a", "120", "0.5", "2020-01-02", "true"},
			{"b", 80.0, "1", "2021-03-04", "false"},
			{"c", "1", "2", "2022-05-06", "true"},
		},
	}
	v, err := FromCollection("mixed", c)
	if err != nil {
		t.Fatalf("FromCollection: %v", err)
	}
	if v.ShapeCount() != 2 || v.Family() != geom.FamilyPoint {
		t.Fatalf("got %d %s shapes; want 2 point", v.ShapeCount(), v.Family())
	}
	want := []table.FieldType{table.String, table.Integer, table.Double, table.Date, table.Boolean}
	for i, f := range v.Table().Fields() {
		if f.Type != want[i] {
			t.Errorf("field %s type %s; want %s", f.Name, f.Type, want[i])
		}
	}
	mustValid(t, v)
}
