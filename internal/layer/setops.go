package layer

import (
	"context"
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"geolayer/internal/geom"
	"geolayer/internal/legend"
	"geolayer/internal/table"
	"geolayer/internal/topology"
)

// OverlayOp selects the geometric operation of an overlay.
type OverlayOp int

const (
	OpClip OverlayOp = iota
	OpIntersection
	OpDifference
	OpSymDifference
	OpBuffer
	OpConvexHull
)

var overlayNames = map[OverlayOp]string{
	OpClip:          "clip",
	OpIntersection:  "intersection",
	OpDifference:    "difference",
	OpSymDifference: "symdifference",
	OpBuffer:        "buffer",
	OpConvexHull:    "convexhull",
}

func (o OverlayOp) String() string { return overlayNames[o] }

func ParseOverlayOp(s string) (OverlayOp, error) {
	for op, name := range overlayNames {
		if name == strings.ToLower(s) {
			return op, nil
		}
	}
	return OpClip, fmt.Errorf("unknown overlay op %q", s)
}

// OverlayRequest describes one set operation.
type OverlayRequest struct {
	Op OverlayOp
	// ClipPolygons are the operands for clip, intersection, difference
	// and symdifference.
	ClipPolygons []orb.Geometry
	SelectedOnly bool
	// Distance and QuadSegs apply to buffer.
	Distance float64
	QuadSegs int
	// Name of the result layer; defaults to "<source>_<op>".
	Name string
	// Progress, when set, is called after each source shape.
	Progress func(done, total int)
}

// OverlayResult is the outcome of an overlay. Skipped counts source shapes
// whose geometry operation failed.
type OverlayResult struct {
	Layer   *VectorLayer
	Skipped int
	Err     error
}

// overlayJob is an immutable snapshot of the source layer.
type overlayJob struct {
	req    OverlayRequest
	out    *VectorLayer
	shapes []*geom.Shape
	rows   []table.Row
	scheme *legend.Scheme
}

func (v *VectorLayer) snapshot(req OverlayRequest) (*overlayJob, error) {
	switch req.Op {
	case OpClip, OpIntersection, OpDifference, OpSymDifference:
		if len(req.ClipPolygons) == 0 {
			return nil, fmt.Errorf("%s: no clip polygons", req.Op)
		}
		for i, g := range req.ClipPolygons {
			if g == nil || geom.FamilyOf(g) != geom.FamilyPolygon {
				return nil, fmt.Errorf("%s: clip geometry %d is not a polygon", req.Op, i)
			}
		}
	case OpBuffer, OpConvexHull:
	default:
		return nil, fmt.Errorf("unknown overlay op %d", req.Op)
	}

	outType := geom.BaseType(v.Family())
	if req.Op == OpBuffer || req.Op == OpConvexHull {
		outType = geom.TypePolygon
	}
	name := req.Name
	if name == "" {
		name = v.Name + "_" + req.Op.String()
	}

	job := &overlayJob{
		req:    req,
		out:    v.CloneParams(name, outType),
		scheme: v.scheme.Clone(),
	}
	job.req.ClipPolygons = make([]orb.Geometry, len(req.ClipPolygons))
	for i, g := range req.ClipPolygons {
		job.req.ClipPolygons[i] = orb.Clone(g)
	}
	for i, s := range v.shapes {
		if req.SelectedOnly && !s.Selected {
			continue
		}
		row, err := v.table.Row(i)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvariant, err)
		}
		job.shapes = append(job.shapes, s.Clone())
		job.rows = append(job.rows, row)
	}
	return job, nil
}

// Overlay runs a set operation and returns a new layer. Failures on single
// shapes are logged and counted in Skipped; cancellation stops between shapes.
func (v *VectorLayer) Overlay(ctx context.Context, req OverlayRequest) (OverlayResult, error) {
	job, err := v.snapshot(req)
	if err != nil {
		return OverlayResult{}, err
	}
	res := job.run(ctx)
	return res, res.Err
}

// OverlayAsync snapshots the layer and computes the overlay on a goroutine.
// The layer may be edited as soon as it returns. The channel yields exactly
// one result.
func (v *VectorLayer) OverlayAsync(ctx context.Context, req OverlayRequest) <-chan OverlayResult {
	ch := make(chan OverlayResult, 1)
	job, err := v.snapshot(req)
	if err != nil {
		ch <- OverlayResult{Err: err}
		close(ch)
		return ch
	}
	go func() {
		defer close(ch)
		ch <- job.run(ctx)
	}()
	return ch
}

func (j *overlayJob) run(ctx context.Context) OverlayResult {
	res := OverlayResult{}
	total := len(j.shapes)
	family := j.out.Family()
	for i, s := range j.shapes {
		if err := ctx.Err(); err != nil {
			return OverlayResult{Skipped: res.Skipped, Err: err}
		}
		geoms, err := j.apply(s.Geometry)
		if err != nil {
			logger.Printf("[OVERLAY] %s: shape %d skipped: %v", j.req.Op, i, err)
			res.Skipped++
		}
		for _, g := range geoms {
			g = topology.Keep(g, family)
			if g == nil {
				continue
			}
			out, err := geom.NewShape(g)
			if err != nil {
				logger.Printf("[OVERLAY] %s: shape %d result: %v", j.req.Op, i, err)
				continue
			}
			if err := j.out.appendOwned(out, j.rows[i].Clone()); err != nil {
				return OverlayResult{Skipped: res.Skipped, Err: fmt.Errorf("%w: %v", ErrInvariant, err)}
			}
		}
		if j.req.Progress != nil {
			j.req.Progress(i+1, total)
		}
	}
	j.out.scheme = j.scheme
	if err := j.out.UpdateLegendIndexes(); err != nil {
		logger.Printf("[OVERLAY] %s: legend indexes: %v", j.req.Op, err)
	}
	res.Layer = j.out
	return res
}

// apply returns the non-empty results for one source geometry.
func (j *overlayJob) apply(g orb.Geometry) ([]orb.Geometry, error) {
	switch j.req.Op {
	case OpClip:
		var out []orb.Geometry
		for _, c := range j.req.ClipPolygons {
			r, err := topology.Apply(topology.Intersection, g, c)
			if err != nil {
				return out, err
			}
			if r != nil {
				out = append(out, r)
			}
		}
		return out, nil
	case OpIntersection, OpDifference, OpSymDifference:
		op := topology.Intersection
		if j.req.Op == OpDifference {
			op = topology.Difference
		} else if j.req.Op == OpSymDifference {
			op = topology.SymDifference
		}
		cur := g
		for _, c := range j.req.ClipPolygons {
			r, err := topology.Apply(op, cur, c)
			if err != nil {
				return nil, err
			}
			if r == nil {
				return nil, nil
			}
			cur = r
		}
		return []orb.Geometry{cur}, nil
	case OpBuffer:
		r, err := topology.Buffer(g, j.req.Distance, j.req.QuadSegs)
		if err != nil || r == nil {
			return nil, err
		}
		return []orb.Geometry{r}, nil
	case OpConvexHull:
		r, err := topology.ConvexHull(g)
		if err != nil || r == nil {
			return nil, err
		}
		return []orb.Geometry{r}, nil
	}
	return nil, fmt.Errorf("unknown overlay op %d", j.req.Op)
}

// Clip returns one output shape per non-empty intersection of a shape with
// a clip polygon.
func (v *VectorLayer) Clip(ctx context.Context, clips []orb.Geometry, selectedOnly bool) (OverlayResult, error) {
	return v.Overlay(ctx, OverlayRequest{Op: OpClip, ClipPolygons: clips, SelectedOnly: selectedOnly})
}

// Intersection intersects each shape with every clip polygon in turn.
func (v *VectorLayer) Intersection(ctx context.Context, clips []orb.Geometry, selectedOnly bool) (OverlayResult, error) {
	return v.Overlay(ctx, OverlayRequest{Op: OpIntersection, ClipPolygons: clips, SelectedOnly: selectedOnly})
}

// Difference subtracts every clip polygon from each shape.
func (v *VectorLayer) Difference(ctx context.Context, clips []orb.Geometry, selectedOnly bool) (OverlayResult, error) {
	return v.Overlay(ctx, OverlayRequest{Op: OpDifference, ClipPolygons: clips, SelectedOnly: selectedOnly})
}

func (v *VectorLayer) SymDifference(ctx context.Context, clips []orb.Geometry, selectedOnly bool) (OverlayResult, error) {
	return v.Overlay(ctx, OverlayRequest{Op: OpSymDifference, ClipPolygons: clips, SelectedOnly: selectedOnly})
}

// Buffer grows each shape by dist into a polygon layer.
func (v *VectorLayer) Buffer(ctx context.Context, dist float64, quadSegs int, selectedOnly bool) (OverlayResult, error) {
	return v.Overlay(ctx, OverlayRequest{Op: OpBuffer, Distance: dist, QuadSegs: quadSegs, SelectedOnly: selectedOnly})
}

func (v *VectorLayer) ConvexHull(ctx context.Context, selectedOnly bool) (OverlayResult, error) {
	return v.Overlay(ctx, OverlayRequest{Op: OpConvexHull, SelectedOnly: selectedOnly})
}

// PolygonGeometries returns the geometries of a polygon layer, for use as
// clip operands. Only selected shapes are used when selectedOnly is set.
func (v *VectorLayer) PolygonGeometries(selectedOnly bool) []orb.Geometry {
	if v.Family() != geom.FamilyPolygon {
		return nil
	}
	var out []orb.Geometry
	for _, s := range v.shapes {
		if selectedOnly && !s.Selected {
			continue
		}
		out = append(out, s.Geometry)
	}
	return out
}
