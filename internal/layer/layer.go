// Package layer holds map layers. VectorLayer keeps shapes, attribute rows
// and legend indexes in lockstep and implements selection, classification,
// set operations and annotation on top of them.
package layer

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"geolayer/internal/geom"
)

// Common carries the fields every layer kind shares.
type Common struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Visible      bool      `json:"visible"`
	Transparency float64   `json:"transparency"`
	// Projection is the layer's coordinate reference, usually WKT or a PROJ string.
	Projection string `json:"projection,omitempty"`
}

type Kind int

const (
	KindVector Kind = iota
	KindRaster
	KindWebMap
)

func (k Kind) String() string {
	switch k {
	case KindRaster:
		return "raster"
	case KindWebMap:
		return "webmap"
	}
	return "vector"
}

// Layer is a tagged union over the layer kinds. Exactly the field matching
// Kind is set.
type Layer struct {
	Kind   Kind
	Vector *VectorLayer
	Raster *RasterLayer
	WebMap *WebMapLayer
}

func FromVector(v *VectorLayer) *Layer { return &Layer{Kind: KindVector, Vector: v} }
func FromRaster(r *RasterLayer) *Layer { return &Layer{Kind: KindRaster, Raster: r} }
func FromWebMap(w *WebMapLayer) *Layer { return &Layer{Kind: KindWebMap, WebMap: w} }

// Common returns the shared fields of whichever kind is set.
func (l *Layer) Common() *Common {
	switch l.Kind {
	case KindVector:
		return &l.Vector.Common
	case KindRaster:
		return &l.Raster.Common
	case KindWebMap:
		return &l.WebMap.Common
	}
	return nil
}

// Extent of the layer contents; web maps report the whole world.
func (l *Layer) Extent() (geom.BBox, bool) {
	switch l.Kind {
	case KindVector:
		return l.Vector.Extent()
	case KindRaster:
		return l.Raster.Extent, l.Raster.Cols > 0 && l.Raster.Rows > 0
	case KindWebMap:
		return geom.NewBBox(-180, -85.0511, 180, 85.0511), true
	}
	return geom.BBox{}, false
}

var ErrGridSize = errors.New("grid size does not match values")

// RasterLayer is a regular grid of values over an extent. Row 0 is the top.
type RasterLayer struct {
	Common
	Extent  geom.BBox
	Cols    int
	Rows    int
	Values  []float64
	Missing float64
}

func NewRasterLayer(name string, ext geom.BBox, cols, rows int, values []float64) (*RasterLayer, error) {
	if cols <= 0 || rows <= 0 || len(values) != cols*rows {
		return nil, fmt.Errorf("%w: %dx%d with %d values", ErrGridSize, cols, rows, len(values))
	}
	return &RasterLayer{
		Common:  Common{ID: uuid.New(), Name: name, Visible: true},
		Extent:  ext,
		Cols:    cols,
		Rows:    rows,
		Values:  values,
		Missing: -9999,
	}, nil
}

// CellSize returns the width and height of one cell.
func (r *RasterLayer) CellSize() (float64, float64) {
	return r.Extent.Width() / float64(r.Cols), r.Extent.Height() / float64(r.Rows)
}

// ValueAt returns the cell value under (x, y); ok is false outside the grid
// or on a missing cell.
func (r *RasterLayer) ValueAt(x, y float64) (float64, bool) {
	if !r.Extent.Contains(x, y) {
		return 0, false
	}
	dx, dy := r.CellSize()
	col := int((x - r.Extent.MinX) / dx)
	row := int((r.Extent.MaxY - y) / dy)
	col = min(col, r.Cols-1)
	row = min(row, r.Rows-1)
	v := r.Values[row*r.Cols+col]
	if math.IsNaN(v) || v == r.Missing {
		return 0, false
	}
	return v, true
}

// WebMapLayer is a tiled basemap addressed by a URL template with {z}, {x}
// and {y} placeholders.
type WebMapLayer struct {
	Common
	URLTemplate string
	MinZoom     int
	MaxZoom     int
}

func NewWebMapLayer(name, tmpl string, minZoom, maxZoom int) *WebMapLayer {
	return &WebMapLayer{
		Common:      Common{ID: uuid.New(), Name: name, Visible: true},
		URLTemplate: tmpl,
		MinZoom:     minZoom,
		MaxZoom:     maxZoom,
	}
}

// TileURL fills the template, clamping z to the zoom range.
func (w *WebMapLayer) TileURL(z, x, y int) string {
	z = max(w.MinZoom, min(z, w.MaxZoom))
	r := strings.NewReplacer("{z}", fmt.Sprint(z), "{x}", fmt.Sprint(x), "{y}", fmt.Sprint(y))
	return r.Replace(w.URLTemplate)
}

// Density counts shapes per cell of a cols x rows grid over the layer
// extent. Each shape is counted once, at the centre of its bounding box.
func (v *VectorLayer) Density(cols, rows int) (*RasterLayer, error) {
	ext, ok := v.Extent()
	if !ok {
		return nil, ErrEmptyLayer
	}
	if ext.Width() == 0 || ext.Height() == 0 {
		ext = ext.Expand(0.5)
	}
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrGridSize, cols, rows)
	}
	r, err := NewRasterLayer(v.Name+"_density", ext, cols, rows, make([]float64, cols*rows))
	if err != nil {
		return nil, err
	}
	r.Projection = v.Projection
	dx, dy := r.CellSize()
	for _, s := range v.shapes {
		c := s.BBox().Center()
		col := min(int((c[0]-ext.MinX)/dx), cols-1)
		row := min(int((ext.MaxY-c[1])/dy), rows-1)
		r.Values[row*cols+col]++
	}
	return r, nil
}
