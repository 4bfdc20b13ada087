package layer

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/paulmach/orb"

	"geolayer/internal/geom"
	"geolayer/internal/table"
)

func TestAnchor(t *testing.T) {
	tests := []struct {
		name  string
		shape *geom.Shape
		want  orb.Point
	}{
		{"point", geom.NewPoint(3, 4), orb.Point{3, 4}},
		{"line odd", geom.NewPolyline(orb.Point{0, 0}, orb.Point{1, 0}, orb.Point{2, 0}), orb.Point{1, 0}},
		{"line even", geom.NewPolyline(orb.Point{0, 0}, orb.Point{1, 0}, orb.Point{2, 5}, orb.Point{3, 5}), orb.Point{2, 5}},
		{"polygon", squareShape(0, 0, 4, 2), orb.Point{2, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Anchor(tt.shape); got != tt.want {
				t.Errorf("Anchor = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestAutoDecimalDigits(t *testing.T) {
	tests := []struct {
		min  float64
		want int
	}{
		{0, 0},
		{123, 0},
		{2.5, 1},
		{0.5, 2},
		{0.05, 3},
		{-0.05, 3},
	}
	for _, tt := range tests {
		if got := AutoDecimalDigits(tt.min); got != tt.want {
			t.Errorf("AutoDecimalDigits(%v) = %d; want %d", tt.min, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		v      float64
		f      NumberFormat
		digits int
		want   string
	}{
		{1.5, FormatTrim, 3, "1.5"},
		{2, FormatTrim, 2, "2"},
		{1.5, FormatFixed, 3, "1.500"},
		{1.234, FormatFixed, 0, "1"},
		{10, FormatTrim, 0, "10"},
		{7.25, FormatFixed, -1, "7"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.v, tt.f, tt.digits); got != tt.want {
			t.Errorf("FormatNumber(%v, %d, %d) = %q; want %q", tt.v, tt.f, tt.digits, got, tt.want)
		}
	}
}

func labelTexts(ls []Label) []string {
	var out []string
	for _, l := range ls {
		out = append(out, l.Text)
	}
	return out
}

func TestGenerateLabels(t *testing.T) {
	v := pointLayer(t, orb.Point{0, 0}, orb.Point{100, 0}, orb.Point{200, 0}, orb.Point{300, 0})
	v.Labels.Field = "temp"
	v.Labels.OffsetY = 2

	got, err := v.GenerateLabels()
	if err != nil {
		t.Fatalf("GenerateLabels: %v", err)
	}
	if want := []string{"0", "10", "20", "30"}; !reflect.DeepEqual(labelTexts(got), want) {
		t.Errorf("texts = %v; want %v", labelTexts(got), want)
	}
	if got[1].X != 100 || got[1].Y != 2 {
		t.Errorf("label position = (%v,%v); want (100,2)", got[1].X, got[1].Y)
	}

	v.Select([]int{1, 3}, SelectNew)
	got, _ = v.GenerateLabels()
	if len(got) != 2 || got[0].Index != 1 || got[1].Index != 3 {
		t.Errorf("selection labels = %+v", got)
	}
}

func TestGenerateLabelsDigits(t *testing.T) {
	v := NewVectorLayer("d", geom.TypePoint,
		table.Field{Name: "x", Type: table.Double},
		table.Field{Name: "n", Type: table.Integer},
	)
	for i, x := range []float64{0.25, 1.5, 12} {
		v.EditInsertShapeRow(geom.NewPoint(float64(i)*100, 0), i, table.Row{x, int64(i)})
	}
	v.Labels.Field = "x"
	got, err := v.GenerateLabels()
	if err != nil {
		t.Fatalf("GenerateLabels: %v", err)
	}
	if want := []string{"0.25", "1.5", "12"}; !reflect.DeepEqual(labelTexts(got), want) {
		t.Errorf("trimmed = %v; want %v", labelTexts(got), want)
	}

	v.Labels.NumberFormat = FormatFixed
	got, _ = v.GenerateLabels()
	if want := []string{"0.25", "1.50", "12.00"}; !reflect.DeepEqual(labelTexts(got), want) {
		t.Errorf("fixed = %v; want %v", labelTexts(got), want)
	}

	v.Labels.Field = "n"
	got, _ = v.GenerateLabels()
	if want := []string{"0", "1", "2"}; !reflect.DeepEqual(labelTexts(got), want) {
		t.Errorf("integer = %v; want %v", labelTexts(got), want)
	}

	v.Labels.Field = "missing"
	if _, err := v.GenerateLabels(); !errors.Is(err, table.ErrFieldNotFound) {
		t.Errorf("got %v; want ErrFieldNotFound", err)
	}
}

func TestGenerateLabelsCollision(t *testing.T) {
	v := pointLayer(t, orb.Point{0, 0}, orb.Point{1, 0}, orb.Point{500, 0})
	v.Labels.Field = "id"
	all, _ := v.GenerateLabels()
	if len(all) != 3 {
		t.Fatalf("labels = %d; want 3", len(all))
	}
	v.Labels.AvoidCollision = true
	kept, _ := v.GenerateLabels()
	if len(kept) != 2 || kept[0].Index != 0 || kept[1].Index != 2 {
		t.Errorf("kept = %+v; want shapes 0 and 2", kept)
	}
}

func TestGenerateBarCharts(t *testing.T) {
	v := pointLayer(t, orb.Point{0, 0}, orb.Point{1, 1}, orb.Point{2, 2}, orb.Point{3, 3})
	v.Charts.Fields = []string{"id", "temp"}
	charts, err := v.GenerateCharts()
	if err != nil {
		t.Fatalf("GenerateCharts: %v", err)
	}
	if len(charts) != 4 {
		t.Fatalf("charts = %d; want 4", len(charts))
	}
	c := charts[3]
	if !reflect.DeepEqual(c.Values, []float64{4, 30}) {
		t.Errorf("values = %v", c.Values)
	}
	if math.Abs(c.Sizes[0]-4.0/30*50) > 1e-9 || c.Sizes[1] != 50 || c.Height != 50 {
		t.Errorf("sizes = %v height %v", c.Sizes, c.Height)
	}
	if c.Width != 16 || len(c.Colors) != 2 || c.Type != "bar" {
		t.Errorf("width=%v colors=%d type=%s", c.Width, len(c.Colors), c.Type)
	}
}

func TestGeneratePieCharts(t *testing.T) {
	v := pointLayer(t, orb.Point{0, 0}, orb.Point{1, 1}, orb.Point{2, 2}, orb.Point{3, 3})
	v.Charts.Type = ChartPie
	v.Charts.Fields = []string{"id", "temp"}
	charts, err := v.GenerateCharts()
	if err != nil {
		t.Fatalf("GenerateCharts: %v", err)
	}
	// Sums are 1, 12, 23 and 34.
	if charts[0].Sizes[0] != 10 || charts[3].Sizes[0] != 50 {
		t.Errorf("pie sizes = %v .. %v; want 10 .. 50", charts[0].Sizes, charts[3].Sizes)
	}
	mid := 10 + (12.0-1)/(34-1)*40
	if math.Abs(charts[1].Width-mid) > 1e-9 {
		t.Errorf("pie width = %v; want %v", charts[1].Width, mid)
	}
}

func TestGenerateChartsInvalidValue(t *testing.T) {
	v := NewVectorLayer("c", geom.TypePoint,
		table.Field{Name: "a", Type: table.Double},
		table.Field{Name: "note", Type: table.String},
	)
	v.EditInsertShapeRow(geom.NewPoint(0, 0), 0, table.Row{1.0, "2"})
	v.EditInsertShapeRow(geom.NewPoint(1, 0), 1, table.Row{3.0, "lots"})
	v.Charts.Fields = []string{"a", "note"}

	charts, err := v.GenerateCharts()
	var fe *table.InvalidFieldValueError
	if !errors.As(err, &fe) || fe.Row != 1 {
		t.Fatalf("got %v; want InvalidFieldValueError on row 1", err)
	}
	if len(charts) != 1 || charts[0].Index != 0 {
		t.Errorf("charts = %+v; want only shape 0", charts)
	}

	v.Charts.Fields = nil
	if _, err := v.GenerateCharts(); err == nil {
		t.Errorf("no chart fields accepted")
	}
}
