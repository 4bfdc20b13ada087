package layer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dhconnelly/rtreego"
	"github.com/google/uuid"

	"geolayer/internal/geom"
	"geolayer/internal/legend"
	"geolayer/internal/table"
)

var (
	// ErrInvariant means the shape list and attribute rows no longer agree.
	ErrInvariant  = errors.New("layer invariant violated")
	ErrShapeType  = errors.New("shape type does not match layer")
	ErrShapeOwned = errors.New("shape already belongs to the layer")
	ErrNoShape    = errors.New("nil shape")
	ErrEmptyName  = errors.New("empty field name")
	ErrOutOfRange = errors.New("shape index out of range")
	ErrEmptyLayer = errors.New("layer has no shapes")
)

// VectorLayer owns a shape list, the attribute table with one row per shape,
// and the legend scheme used to classify them.
type VectorLayer struct {
	Common

	ShapeType geom.ShapeType
	Labels    LabelSet
	Charts    ChartSet
	Options   legend.Options

	shapes    []*geom.Shape
	table     *table.Table
	scheme    *legend.Scheme
	extent    geom.BBox
	hasExtent bool

	index      *rtreego.Rtree
	indexDirty bool
}

// NewVectorLayer returns an empty layer for shapes of the given type,
// classified with a single symbol.
func NewVectorLayer(name string, t geom.ShapeType, fields ...table.Field) *VectorLayer {
	v := &VectorLayer{
		Common: Common{
			ID:      uuid.New(),
			Name:    name,
			Visible: true,
		},
		ShapeType:  t,
		Labels:     DefaultLabelSet(),
		Charts:     DefaultChartSet(),
		Options:    legend.DefaultOptions(),
		table:      table.New(fields...),
		indexDirty: true,
	}
	v.scheme = legend.NewSingleSymbol(t.Family(), v.Options)
	return v
}

func (v *VectorLayer) Family() geom.Family { return v.ShapeType.Family() }

func (v *VectorLayer) ShapeCount() int { return len(v.shapes) }

// Shape returns the shape at i, or nil when out of range.
func (v *VectorLayer) Shape(i int) *geom.Shape {
	if i < 0 || i >= len(v.shapes) {
		return nil
	}
	return v.shapes[i]
}

// Shapes returns the shape list. The slice is a copy; the shapes are not.
func (v *VectorLayer) Shapes() []*geom.Shape {
	return append([]*geom.Shape(nil), v.shapes...)
}

// Table exposes the attribute table for reads. Structural changes must go
// through the Edit methods.
func (v *VectorLayer) Table() *table.Table { return v.table }

// Extent is the bounding box of all shapes; ok is false for an empty layer.
func (v *VectorLayer) Extent() (geom.BBox, bool) { return v.extent, v.hasExtent }

// IndexOf finds a shape by identity.
func (v *VectorLayer) IndexOf(s *geom.Shape) int {
	for i, x := range v.shapes {
		if x == s {
			return i
		}
	}
	return -1
}

// Validate checks the lockstep and legend index invariants.
func (v *VectorLayer) Validate() error {
	if n, m := len(v.shapes), v.table.RowCount(); n != m {
		return fmt.Errorf("%w: %d shapes, %d rows", ErrInvariant, n, m)
	}
	for i, s := range v.shapes {
		if !v.scheme.ValidIndex(s.LegendIndex) {
			return fmt.Errorf("%w: shape %d legend index %d of %d breaks",
				ErrInvariant, i, s.LegendIndex, v.scheme.BreakCount())
		}
	}
	return nil
}

func (v *VectorLayer) accepts(s *geom.Shape) error {
	if s == nil {
		return ErrNoShape
	}
	if s.Family() != v.Family() {
		return fmt.Errorf("%w: %s into %s layer", ErrShapeType, s.Type, v.ShapeType)
	}
	if v.IndexOf(s) >= 0 {
		return ErrShapeOwned
	}
	return nil
}

// AddShape appends a shape with a blank row.
func (v *VectorLayer) AddShape(s *geom.Shape) error {
	return v.EditInsertShapeRow(s, len(v.shapes), nil)
}

// EditInsertShape inserts a shape with a blank row at pos.
func (v *VectorLayer) EditInsertShape(s *geom.Shape, pos int) error {
	return v.EditInsertShapeRow(s, pos, nil)
}

// EditInsertShapeRow inserts a shape and its row at pos. The row is
// validated against the schema before either list changes.
func (v *VectorLayer) EditInsertShapeRow(s *geom.Shape, pos int, row table.Row) error {
	if err := v.accepts(s); err != nil {
		return err
	}
	if pos < 0 || pos > len(v.shapes) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, pos)
	}
	if err := v.table.InsertRow(pos, row); err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	v.shapes = append(v.shapes, nil)
	copy(v.shapes[pos+1:], v.shapes[pos:])
	v.shapes[pos] = s
	if v.table.RowCount() != len(v.shapes) {
		v.shapes = append(v.shapes[:pos], v.shapes[pos+1:]...)
		v.table.RemoveRow(pos)
		return fmt.Errorf("%w: insert at %d", ErrInvariant, pos)
	}

	s.LegendIndex, _ = v.legendIndexFor(pos)
	v.extendExtent(s.BBox())
	v.indexDirty = true
	return nil
}

// EditRemoveShape removes a shape and its row. It reports false when the
// shape is not in the layer.
func (v *VectorLayer) EditRemoveShape(s *geom.Shape) bool {
	i := v.IndexOf(s)
	if i < 0 {
		return false
	}
	return v.RemoveShapeAt(i) == nil
}

// RemoveShapeAt removes the shape and row at i.
func (v *VectorLayer) RemoveShapeAt(i int) error {
	if i < 0 || i >= len(v.shapes) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	if err := v.table.RemoveRow(i); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	v.shapes = append(v.shapes[:i], v.shapes[i+1:]...)
	v.recomputeExtent()
	v.indexDirty = true
	return nil
}

// ReplaceAll swaps in a new shape list and table of equal length.
func (v *VectorLayer) ReplaceAll(shapes []*geom.Shape, t *table.Table) error {
	if t == nil {
		t = table.New()
		for range shapes {
			t.AppendRow(nil)
		}
	}
	if len(shapes) != t.RowCount() {
		return fmt.Errorf("%w: %d shapes, %d rows", ErrInvariant, len(shapes), t.RowCount())
	}
	for i, s := range shapes {
		if s == nil {
			return fmt.Errorf("shape %d: %w", i, ErrNoShape)
		}
		if s.Family() != v.Family() {
			return fmt.Errorf("shape %d: %w: %s", i, ErrShapeType, s.Type)
		}
	}
	v.shapes = append([]*geom.Shape(nil), shapes...)
	v.table = t
	v.recomputeExtent()
	v.indexDirty = true
	return v.UpdateLegendIndexes()
}

func (v *VectorLayer) extendExtent(b geom.BBox) {
	if !v.hasExtent {
		v.extent, v.hasExtent = b, true
		return
	}
	v.extent = v.extent.Union(b)
}

func (v *VectorLayer) recomputeExtent() {
	v.extent, v.hasExtent = geom.BBox{}, false
	for _, s := range v.shapes {
		v.extendExtent(s.BBox())
	}
}

// EditAddField appends a column. A colliding name gets a _1, _2... suffix;
// the name actually used is returned.
func (v *VectorLayer) EditAddField(name string, t table.FieldType) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	return v.table.AddField(name, t), nil
}

// EditRemoveField drops a column. Removing the classified field falls back
// to a single symbol scheme.
func (v *VectorLayer) EditRemoveField(name string) error {
	if err := v.table.RemoveField(name); err != nil {
		return err
	}
	if v.scheme != nil && v.scheme.FieldName == name {
		v.scheme = legend.NewSingleSymbol(v.Family(), v.Options)
		v.UpdateLegendIndexes()
	}
	if v.Labels.Field == name {
		v.Labels.Field = ""
	}
	kept := v.Charts.Fields[:0:0]
	for _, f := range v.Charts.Fields {
		if f != name {
			kept = append(kept, f)
		}
	}
	v.Charts.Fields = kept
	return nil
}

// EditRenameField renames a column; values stay in place.
func (v *VectorLayer) EditRenameField(oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrEmptyName
	}
	if err := v.table.RenameField(oldName, newName); err != nil {
		return err
	}
	if v.scheme != nil && v.scheme.FieldName == oldName {
		v.scheme.FieldName = newName
	}
	if v.Labels.Field == oldName {
		v.Labels.Field = newName
	}
	for i, f := range v.Charts.Fields {
		if f == oldName {
			v.Charts.Fields[i] = newName
		}
	}
	return nil
}

// EditCellValue sets one attribute and re-derives that shape's legend index.
func (v *VectorLayer) EditCellValue(row int, field string, value any) error {
	if err := v.table.SetValue(row, field, value); err != nil {
		return err
	}
	if v.scheme != nil && v.scheme.FieldName == field {
		idx, err := v.legendIndexFor(row)
		v.shapes[row].LegendIndex = idx
		return err
	}
	return nil
}

// CloneParams copies name, projection, transparency, options and label/chart
// settings into an empty layer of the given type with the same schema.
func (v *VectorLayer) CloneParams(name string, t geom.ShapeType) *VectorLayer {
	out := NewVectorLayer(name, t, v.table.Fields()...)
	out.Projection = v.Projection
	out.Transparency = v.Transparency
	out.Visible = v.Visible
	out.Options = v.Options
	out.Labels = v.Labels
	out.Charts = v.Charts.clone()
	return out
}

// appendOwned adds a shape and row without ownership or schema checks.
// Both must come from a snapshot of a layer with the same schema.
func (v *VectorLayer) appendOwned(s *geom.Shape, row table.Row) error {
	if err := v.table.AppendRow(row); err != nil {
		return err
	}
	v.shapes = append(v.shapes, s)
	v.extendExtent(s.BBox())
	v.indexDirty = true
	return nil
}
