package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"geolayer/internal/config"
	"geolayer/internal/geom"
	"geolayer/internal/layer"
	"geolayer/internal/legend"
	"geolayer/internal/render"
	"geolayer/internal/table"
)

// Handler serves layer operations over a Registry.
type Handler struct {
	reg *Registry
	cfg *config.Config
}

func NewHandler(reg *Registry, cfg *config.Config) *Handler {
	return &Handler{reg: reg, cfg: cfg}
}

type fieldInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type layerInfo struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Kind       string         `json:"kind"`
	Visible    bool           `json:"visible"`
	ShapeType  string         `json:"shapeType"`
	Family     geom.Family    `json:"family"`
	Shapes     int            `json:"shapes"`
	Extent     []float64      `json:"extent,omitempty"`
	Projection string         `json:"projection,omitempty"`
	Fields     []fieldInfo    `json:"fields"`
	Selected   []int          `json:"selected"`
	Legend     *legend.Scheme `json:"legend"`
}

func describe(v *layer.VectorLayer) layerInfo {
	l := layer.FromVector(v)
	c := l.Common()
	info := layerInfo{
		ID:         c.ID.String(),
		Name:       c.Name,
		Kind:       l.Kind.String(),
		Visible:    c.Visible,
		ShapeType:  v.ShapeType.String(),
		Family:     v.Family(),
		Shapes:     v.ShapeCount(),
		Projection: c.Projection,
		Fields:     []fieldInfo{},
		Selected:   v.SelectedIndexes(),
		Legend:     v.LegendScheme(),
	}
	if ext, ok := l.Extent(); ok {
		info.Extent = []float64{ext.MinX, ext.MinY, ext.MaxX, ext.MaxY}
	}
	for _, f := range v.Table().Fields() {
		info.Fields = append(info.Fields, fieldInfo{Name: f.Name, Type: f.Type.String()})
	}
	if info.Selected == nil {
		info.Selected = []int{}
	}
	return info
}

func errorJSON(c fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// lookup resolves :id. On failure it writes the error response and returns
// a nil entry with the write result.
func (h *Handler) lookup(c fiber.Ctx) (*entry, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, errorJSON(c, http.StatusBadRequest, "invalid layer id")
	}
	e, ok := h.reg.get(id)
	if !ok {
		return nil, errorJSON(c, http.StatusNotFound, "layer not found")
	}
	return e, nil
}

// configure applies the service defaults to a new layer.
func (h *Handler) configure(v *layer.VectorLayer) {
	v.Options = h.cfg.LegendOptions()
	v.Labels.Font.Size = h.cfg.Layer.LabelFontSize
	v.Classify(legend.SingleSymbol, "")
}

// CreateLayer loads a GeoJSON (default) or WKT body into a new layer.
func (h *Handler) CreateLayer(c fiber.Ctx) error {
	log.Printf("[LAYERS] Create request")

	body := c.Body()
	if len(body) == 0 {
		return errorJSON(c, http.StatusBadRequest, "empty body")
	}
	var (
		coll *geom.Collection
		err  error
	)
	switch strings.ToLower(c.Query("format", "geojson")) {
	case "geojson":
		coll, err = geom.DecodeGeoJSON(body)
	case "wkt":
		coll, err = geom.ParseWKTCollection(string(body))
	default:
		return errorJSON(c, http.StatusBadRequest, "format must be geojson or wkt")
	}
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	v, err := layer.FromCollection(c.Query("name", "layer"), coll)
	if err != nil {
		return errorJSON(c, http.StatusUnprocessableEntity, err.Error())
	}
	h.configure(v)
	h.reg.Add(v)
	log.Printf("[LAYERS] Created %s (%s, %d shapes)", v.ID, v.ShapeType, v.ShapeCount())
	return c.Status(http.StatusCreated).JSON(describe(v))
}

func (h *Handler) ListLayers(c fiber.Ctx) error {
	out := []layerInfo{}
	for _, id := range h.reg.IDs() {
		e, ok := h.reg.get(id)
		if !ok {
			continue
		}
		e.mu.RLock()
		out = append(out, describe(e.layer))
		e.mu.RUnlock()
	}
	return c.JSON(out)
}

func (h *Handler) GetLayer(c fiber.Ctx) error {
	e, err := h.lookup(c)
	if e == nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return c.JSON(describe(e.layer))
}

func (h *Handler) GetGeoJSON(c fiber.Ctx) error {
	e, err := h.lookup(c)
	if e == nil {
		return err
	}
	e.mu.RLock()
	data, err := geom.EncodeGeoJSON(e.layer.ToCollection())
	e.mu.RUnlock()
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	c.Set(fiber.HeaderContentType, "application/geo+json")
	return c.Send(data)
}

// GetSVG renders the layer with its legend, and labels when a label field is set.
func (h *Handler) GetSVG(c fiber.Ctx) error {
	e, err := h.lookup(c)
	if e == nil {
		return err
	}
	opts := render.DefaultOptions()
	opts.Labels = true
	opts.Charts = c.Query("charts") == "true"

	var buf bytes.Buffer
	// Label generation adjusts label settings while it runs.
	e.mu.Lock()
	err = render.Render(&buf, e.layer, opts)
	e.mu.Unlock()
	if errors.Is(err, render.ErrEmptyLayer) {
		return errorJSON(c, http.StatusUnprocessableEntity, err.Error())
	}
	if err != nil {
		log.Printf("[SVG] %s: %v", e.layer.ID, err)
	}
	c.Set(fiber.HeaderContentType, "image/svg+xml")
	return c.Send(buf.Bytes())
}

func (h *Handler) DeleteLayer(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid layer id")
	}
	if !h.reg.Remove(id) {
		return errorJSON(c, http.StatusNotFound, "layer not found")
	}
	return c.SendStatus(http.StatusNoContent)
}

type legendRequest struct {
	Type  string `json:"type"`
	Field string `json:"field"`
}

// SetLegend classifies the layer. Values that could not be read are
// reported as warnings; the scheme is applied regardless.
func (h *Handler) SetLegend(c fiber.Ctx) error {
	e, err := h.lookup(c)
	if e == nil {
		return err
	}
	var req legendRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid json")
	}
	t, err := legend.ParseType(req.Type)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.layer
	s, err := v.CreateLegendScheme(t, req.Field)
	switch {
	case errors.Is(err, legend.ErrCannotClassify):
		return errorJSON(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, table.ErrFieldNotFound):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	case err != nil:
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	warnings := []string{}
	if err := v.SetLegendScheme(s); err != nil {
		warnings = append(warnings, strings.Split(err.Error(), "\n")...)
	}
	indexes := make([]int, v.ShapeCount())
	for i := range indexes {
		indexes[i] = v.Shape(i).LegendIndex
	}
	return c.JSON(fiber.Map{
		"legend":        v.LegendScheme(),
		"legendIndexes": indexes,
		"warnings":      warnings,
	})
}

type selectRequest struct {
	Mode  string    `json:"mode"`
	Where string    `json:"where"`
	BBox  []float64 `json:"bbox"`
	// Single keeps only the best match of a bbox query.
	Single bool `json:"single"`
	// Polygon is a lasso ring; shapes with a vertex inside it match.
	Polygon [][2]float64 `json:"polygon"`
	// Point picks the shape containing it.
	Point []float64 `json:"point"`
}

func (r selectRequest) queries() int {
	n := 0
	for _, set := range []bool{r.Where != "", r.BBox != nil, r.Polygon != nil, r.Point != nil} {
		if set {
			n++
		}
	}
	return n
}

// Select applies a SQL filter, a bounding box, a lasso or a point pick to the
// layer selection.
func (h *Handler) Select(c fiber.Ctx) error {
	e, err := h.lookup(c)
	if e == nil {
		return err
	}
	var req selectRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid json")
	}
	mode := layer.SelectNew
	if req.Mode != "" {
		m, ok := layer.ParseSelectionMode(req.Mode)
		if !ok {
			return errorJSON(c, http.StatusBadRequest, "unknown selection mode")
		}
		mode = m
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	var sel []int
	switch {
	case req.queries() > 1:
		return errorJSON(c, http.StatusBadRequest, "use one of where, bbox, polygon or point")
	case req.Where != "":
		sel, err = e.layer.SQLSelect(c.Context(), req.Where, mode)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, err.Error())
		}
	case len(req.BBox) == 4:
		b := geom.NewBBox(req.BBox[0], req.BBox[1], req.BBox[2], req.BBox[3])
		sel = e.layer.SelectByExtent(b, req.Single, mode)
	case len(req.Polygon) >= 3:
		ring := make(orb.Ring, 0, len(req.Polygon)+1)
		for _, p := range req.Polygon {
			ring = append(ring, orb.Point(p))
		}
		if ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}
		sel = e.layer.SelectByPolygon(orb.Polygon{ring}, mode)
	case len(req.Point) == 2:
		sel = e.layer.SelectShape(orb.Point{req.Point[0], req.Point[1]}, mode)
	default:
		return errorJSON(c, http.StatusBadRequest, "where, bbox [minx,miny,maxx,maxy], polygon [[x,y],...] or point [x,y] required")
	}
	if sel == nil {
		sel = []int{}
	}
	return c.JSON(fiber.Map{"selected": sel})
}

type overlayRequest struct {
	Op           string          `json:"op"`
	ClipLayer    string          `json:"clipLayer"`
	ClipGeoJSON  json.RawMessage `json:"clipGeojson"`
	SelectedOnly bool            `json:"selectedOnly"`
	ClipSelected bool            `json:"clipSelected"`
	Distance     float64         `json:"distance"`
	QuadSegs     int             `json:"quadSegs"`
	Name         string          `json:"name"`
}

// clipGeometries resolves the clip operand from another layer or inline GeoJSON.
func (h *Handler) clipGeometries(req overlayRequest) ([]orb.Geometry, error) {
	switch {
	case req.ClipLayer != "":
		id, err := uuid.Parse(req.ClipLayer)
		if err != nil {
			return nil, errors.New("invalid clip layer id")
		}
		var clips []orb.Geometry
		e, ok := h.reg.get(id)
		if !ok {
			return nil, errors.New("clip layer not found")
		}
		e.mu.RLock()
		defer e.mu.RUnlock()
		for _, g := range e.layer.PolygonGeometries(req.ClipSelected) {
			clips = append(clips, orb.Clone(g))
		}
		if len(clips) == 0 {
			return nil, errors.New("clip layer has no polygons")
		}
		return clips, nil
	case len(req.ClipGeoJSON) > 0:
		coll, err := geom.DecodeGeoJSON(req.ClipGeoJSON)
		if err != nil {
			return nil, err
		}
		var clips []orb.Geometry
		for _, s := range coll.Shapes {
			if s.Family() == geom.FamilyPolygon {
				clips = append(clips, s.Geometry)
			}
		}
		return clips, nil
	}
	return nil, nil
}

// Overlay runs a set operation and registers the result as a new layer.
func (h *Handler) Overlay(c fiber.Ctx) error {
	e, err := h.lookup(c)
	if e == nil {
		return err
	}
	var req overlayRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid json")
	}
	op, err := layer.ParseOverlayOp(req.Op)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	clips, err := h.clipGeometries(req)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	quadSegs := req.QuadSegs
	if quadSegs <= 0 {
		quadSegs = h.cfg.Layer.BufferQuadSegs
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.cfg.OverlayTimeout())
	defer cancel()
	e.mu.RLock()
	ch := e.layer.OverlayAsync(ctx, layer.OverlayRequest{
		Op:           op,
		ClipPolygons: clips,
		SelectedOnly: req.SelectedOnly,
		Distance:     req.Distance,
		QuadSegs:     quadSegs,
		Name:         req.Name,
	})
	e.mu.RUnlock()

	var res layer.OverlayResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		return errorJSON(c, http.StatusGatewayTimeout, "overlay timed out")
	}
	if errors.Is(res.Err, context.DeadlineExceeded) || errors.Is(res.Err, context.Canceled) {
		return errorJSON(c, http.StatusGatewayTimeout, "overlay timed out")
	}
	if res.Err != nil {
		return errorJSON(c, http.StatusBadRequest, res.Err.Error())
	}
	h.reg.Add(res.Layer)
	log.Printf("[OVERLAY] %s %s -> %s (%d shapes, %d skipped)", op, e.layer.ID, res.Layer.ID, res.Layer.ShapeCount(), res.Skipped)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"layer":   describe(res.Layer),
		"skipped": res.Skipped,
	})
}

// GetLabels generates labels, optionally for the field named in ?field=.
func (h *Handler) GetLabels(c fiber.Ctx) error {
	e, err := h.lookup(c)
	if e == nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.layer
	if f := c.Query("field"); f != "" {
		if v.Table().FieldIndex(f) < 0 {
			return errorJSON(c, http.StatusBadRequest, "unknown field "+f)
		}
		v.Labels.Field = f
	}
	ls := v.Labels
	if c.Query("avoidCollision") == "true" {
		ls.AvoidCollision = true
	}
	labels, err := v.GenerateLabelsWith(ls)
	if errors.Is(err, table.ErrFieldNotFound) {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	warnings := []string{}
	if err != nil {
		warnings = append(warnings, strings.Split(err.Error(), "\n")...)
	}
	if labels == nil {
		labels = []layer.Label{}
	}
	return c.JSON(fiber.Map{"labels": labels, "warnings": warnings})
}

// GetDensity grids the layer into ?cols= x ?rows= cells of shape counts.
// With ?x= and ?y= it returns only the count under that point.
func (h *Handler) GetDensity(c fiber.Ctx) error {
	e, err := h.lookup(c)
	if e == nil {
		return err
	}
	cols, cerr := strconv.Atoi(c.Query("cols", "16"))
	rows, rerr := strconv.Atoi(c.Query("rows", "16"))
	if cerr != nil || rerr != nil || cols > 1024 || rows > 1024 {
		return errorJSON(c, http.StatusBadRequest, "cols and rows must be integers up to 1024")
	}
	e.mu.RLock()
	r, err := e.layer.Density(cols, rows)
	e.mu.RUnlock()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	if c.Query("x") != "" || c.Query("y") != "" {
		x, xerr := strconv.ParseFloat(c.Query("x"), 64)
		y, yerr := strconv.ParseFloat(c.Query("y"), 64)
		if xerr != nil || yerr != nil {
			return errorJSON(c, http.StatusBadRequest, "x and y must be numbers")
		}
		n, ok := r.ValueAt(x, y)
		return c.JSON(fiber.Map{"value": n, "inside": ok})
	}
	l := layer.FromRaster(r)
	ext, _ := l.Extent()
	return c.JSON(fiber.Map{
		"name":   l.Common().Name,
		"kind":   l.Kind.String(),
		"extent": []float64{ext.MinX, ext.MinY, ext.MaxX, ext.MaxY},
		"cols":   r.Cols,
		"rows":   r.Rows,
		"values": r.Values,
	})
}

// basemap is the configured tile layer.
func (h *Handler) basemap() *layer.WebMapLayer {
	return layer.NewWebMapLayer("basemap", h.cfg.Server.BasemapURL, h.cfg.Server.BasemapMinZoom, h.cfg.Server.BasemapMaxZoom)
}

func (h *Handler) GetBasemap(c fiber.Ctx) error {
	w := h.basemap()
	l := layer.FromWebMap(w)
	ext, _ := l.Extent()
	return c.JSON(fiber.Map{
		"kind":    l.Kind.String(),
		"url":     w.URLTemplate,
		"minZoom": w.MinZoom,
		"maxZoom": w.MaxZoom,
		"extent":  []float64{ext.MinX, ext.MinY, ext.MaxX, ext.MaxY},
	})
}

// GetTile redirects to the basemap tile at :z/:x/:y.
func (h *Handler) GetTile(c fiber.Ctx) error {
	var zxy [3]int
	for i, p := range []string{"z", "x", "y"} {
		n, err := strconv.Atoi(c.Params(p))
		if err != nil || n < 0 {
			return errorJSON(c, http.StatusBadRequest, "invalid tile coordinate "+p)
		}
		zxy[i] = n
	}
	return c.Redirect().Status(http.StatusFound).To(h.basemap().TileURL(zxy[0], zxy[1], zxy[2]))
}
