package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"

	"geolayer/internal/config"
	"geolayer/internal/geom"
	"geolayer/internal/layer"
	"geolayer/internal/legend"
	"geolayer/internal/render"
	"geolayer/internal/server"
	"geolayer/internal/table"
	"geolayer/internal/tui"
)

func main() {
	var app App
	ctx := kong.Parse(&app,
		kong.Name("geolayer"),
		kong.Description("Classify, query and overlay vector layers."),
	)
	cfg, err := config.Load(app.Config)
	ctx.FatalIfErrorf(err)
	ctx.FatalIfErrorf(ctx.Run(cfg))
}

// App defines the application cli.
type App struct {
	Config string `kong:"optional,type=path,name=config,short=c,env=GEOLAYER_CONFIG,help='YAML configuration file.'"`

	View     ViewCmd     `kong:"cmd,help='Browse a layer in the terminal.'"`
	Info     InfoCmd     `kong:"cmd,help='Print a layer summary.'"`
	Classify ClassifyCmd `kong:"cmd,help='Classify a layer and print its legend.'"`
	Select   SelectCmd   `kong:"cmd,help='Select shapes by filter or extent.'"`
	Overlay  OverlayCmd  `kong:"cmd,help='Run a set operation and write the result.'"`
	Export   ExportCmd   `kong:"cmd,help='Convert a layer to SVG, GeoJSON or a shapefile.'"`
	Serve    ServeCmd    `kong:"cmd,help='Run the HTTP API.'"`
}

// ViewCmd opens the terminal viewer.
type ViewCmd struct {
	Path string `kong:"arg,optional,type=existingfile,help='Layer file to open.'"`
}

func (c ViewCmd) Run(cfg *config.Config) error {
	m := tui.New(cfg)
	if c.Path != "" {
		m = tui.NewWithPath(cfg, c.Path)
	}
	// Logging would draw over the alternate screen.
	layer.SetLogger(nil)
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion()).Run()
	return err
}

// InfoCmd prints the layer summary.
type InfoCmd struct {
	Path string `kong:"arg,type=existingfile,help='Layer file.'"`
}

func (c InfoCmd) Run(cfg *config.Config) error {
	v, err := open(cfg, c.Path)
	if err != nil {
		return err
	}
	ext, _ := v.Extent()
	fmt.Printf("name:       %s\n", v.Name)
	fmt.Printf("type:       %s\n", v.ShapeType)
	fmt.Printf("shapes:     %d\n", v.ShapeCount())
	fmt.Printf("extent:     %g %g %g %g\n", ext.MinX, ext.MinY, ext.MaxX, ext.MaxY)
	if v.Projection != "" {
		fmt.Printf("projection: %s\n", firstLine(v.Projection))
	}
	for _, f := range v.Table().Fields() {
		fmt.Printf("field:      %s (%s)\n", f.Name, f.Type)
	}
	return nil
}

// ClassifyCmd builds a legend and prints one line per break.
type ClassifyCmd struct {
	Path  string `kong:"arg,type=existingfile,help='Layer file.'"`
	Type  string `kong:"name=type,short=t,default='unique',enum='single,unique,graduated',help='Legend type.'"`
	Field string `kong:"name=field,short=f,help='Field to classify on.'"`
}

func (c ClassifyCmd) Run(cfg *config.Config) error {
	v, err := open(cfg, c.Path)
	if err != nil {
		return err
	}
	if err := classify(v, c.Type, c.Field); err != nil {
		return err
	}
	counts := make(map[int]int)
	for _, s := range v.Shapes() {
		counts[s.LegendIndex]++
	}
	for i, b := range v.LegendScheme().Breaks {
		fmt.Printf("%-3d %s  %-24s %d\n", i, b.Color.Hex(), b.Caption, counts[i])
	}
	if n := counts[-1]; n > 0 {
		fmt.Printf("unclassified: %d\n", n)
	}
	return nil
}

// SelectCmd prints the indexes of matching shapes.
type SelectCmd struct {
	Path   string    `kong:"arg,type=existingfile,help='Layer file.'"`
	Where  string    `kong:"name=where,short=w,xor=query,help='SQL filter expression.'"`
	BBox   []float64 `kong:"name=bbox,short=b,xor=query,sep=',',help='Extent as minx,miny,maxx,maxy.'"`
	Single bool      `kong:"name=single,help='Keep only the best extent hit.'"`
	Output string    `kong:"name=output,short=o,type=path,help='Write the selected shapes to this file.'"`
}

func (c SelectCmd) Run(cfg *config.Config) error {
	v, err := open(cfg, c.Path)
	if err != nil {
		return err
	}
	var sel []int
	switch {
	case c.Where != "":
		sel, err = v.SQLSelect(context.Background(), c.Where, layer.SelectNew)
		if err != nil {
			return err
		}
	case len(c.BBox) == 4:
		sel = v.SelectByExtent(geom.NewBBox(c.BBox[0], c.BBox[1], c.BBox[2], c.BBox[3]), c.Single, layer.SelectNew)
	default:
		return errors.New("need --where or a four-value --bbox")
	}
	for _, i := range sel {
		fmt.Println(i)
	}
	log.Printf("[SELECT] %d of %d shapes", len(sel), v.ShapeCount())
	if c.Output == "" {
		return nil
	}
	out := v.CloneParams(v.Name+"_selection", v.ShapeType)
	for n, i := range sel {
		row, _ := v.Table().Row(i)
		s := v.Shape(i).Clone()
		s.Selected = false
		if err := out.EditInsertShapeRow(s, n, row.Clone()); err != nil {
			return err
		}
	}
	if err := out.SetLegendScheme(v.LegendScheme()); err != nil {
		return err
	}
	return save(out, c.Output, render.DefaultOptions())
}

// OverlayCmd runs one set operation against a clip layer or a buffer distance.
type OverlayCmd struct {
	Path     string  `kong:"arg,type=existingfile,help='Source layer file.'"`
	Output   string  `kong:"arg,type=path,help='Destination file (.shp, .geojson or .svg).'"`
	Op       string  `kong:"name=op,short=p,required,enum='clip,intersection,difference,symdifference,buffer,convexhull',help='Operation.'"`
	Clip     string  `kong:"name=clip,type=existingfile,help='Polygon layer supplying the clip geometries.'"`
	Distance float64 `kong:"name=distance,short=d,help='Buffer distance.'"`
	Where    string  `kong:"name=where,short=w,help='Restrict the source to shapes matching this filter.'"`
}

func (c OverlayCmd) Run(cfg *config.Config) error {
	v, err := open(cfg, c.Path)
	if err != nil {
		return err
	}
	op, err := layer.ParseOverlayOp(c.Op)
	if err != nil {
		return err
	}
	req := layer.OverlayRequest{
		Op:       op,
		Distance: c.Distance,
		QuadSegs: cfg.Layer.BufferQuadSegs,
		Progress: func(done, total int) {
			if done == total || done%1000 == 0 {
				log.Printf("[OVERLAY] %s %d/%d", op, done, total)
			}
		},
	}
	if c.Where != "" {
		if _, err := v.SQLSelect(context.Background(), c.Where, layer.SelectNew); err != nil {
			return err
		}
		req.SelectedOnly = true
	}
	if c.Clip != "" {
		clip, err := open(cfg, c.Clip)
		if err != nil {
			return err
		}
		req.ClipPolygons = clip.PolygonGeometries(false)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OverlayTimeout())
	defer cancel()
	res, err := v.Overlay(ctx, req)
	if err != nil {
		return err
	}
	log.Printf("[OVERLAY] %s: %d shapes written, %d skipped", op, res.Layer.ShapeCount(), res.Skipped)
	return save(res.Layer, c.Output, render.DefaultOptions())
}

// ExportCmd converts a layer, optionally classified and labelled.
type ExportCmd struct {
	Path     string   `kong:"arg,type=existingfile,help='Layer file.'"`
	Output   string   `kong:"arg,type=path,help='Destination file (.svg, .geojson or .shp).'"`
	Type     string   `kong:"name=type,short=t,default='single',enum='single,unique,graduated',help='Legend type for SVG output.'"`
	Field    string   `kong:"name=field,short=f,help='Field to classify on.'"`
	Labels   string   `kong:"name=labels,short=l,help='Label field for SVG output.'"`
	Charts   []string `kong:"name=charts,sep=',',help='Chart fields for SVG output.'"`
	Pie      bool     `kong:"name=pie,help='Draw pie charts instead of bars.'"`
	Width    int      `kong:"name=width,default=800,help='SVG width in pixels.'"`
	NoLegend bool     `kong:"name=no-legend,help='Omit the SVG legend.'"`
}

func (c ExportCmd) Run(cfg *config.Config) error {
	v, err := open(cfg, c.Path)
	if err != nil {
		return err
	}
	if err := classify(v, c.Type, c.Field); err != nil {
		return err
	}
	opts := render.DefaultOptions()
	opts.Width = c.Width
	opts.Legend = !c.NoLegend
	if c.Labels != "" {
		v.Labels.Field = c.Labels
		v.Labels.AvoidCollision = true
		opts.Labels = true
	}
	if len(c.Charts) > 0 {
		v.Charts.Fields = c.Charts
		if c.Pie {
			v.Charts.Type = layer.ChartPie
		}
		opts.Charts = true
	}
	return save(v, c.Output, opts)
}

// ServeCmd runs the HTTP API.
type ServeCmd struct {
	Port      string   `kong:"name=port,short=p,help='Listen port; overrides the config.'"`
	Preload   []string `kong:"name=preload,type=existingfile,help='Layer files to register at start.'"`
	AccessLog bool     `kong:"name=access-log,default=true,negatable,help='Log every request.'"`
}

func (c ServeCmd) Run(cfg *config.Config) error {
	if c.Port != "" {
		cfg.Server.Port = c.Port
	}
	reg := server.NewRegistry()
	for _, p := range c.Preload {
		v, err := open(cfg, p)
		if err != nil {
			return err
		}
		id := reg.Add(v)
		log.Printf("[SERVE] preloaded %s as %s", v.Name, id)
	}
	app := server.New(cfg, reg, c.AccessLog)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Starting geolayer API on %s", addr)
	return app.Listen(addr)
}

// ============================================================
// Helpers
// ============================================================

func open(cfg *config.Config, path string) (*layer.VectorLayer, error) {
	v, err := layer.Open(path)
	if err != nil {
		return nil, err
	}
	v.Options = cfg.LegendOptions()
	v.Labels.Font.Size = cfg.Layer.LabelFontSize
	if err := v.SetLegendScheme(nil); err != nil {
		return nil, err
	}
	return v, nil
}

// classify applies the named legend type; invalid values are logged, not fatal.
func classify(v *layer.VectorLayer, typ, field string) error {
	t, err := legend.ParseType(typ)
	if err != nil {
		return err
	}
	err = v.Classify(t, field)
	var fe *table.InvalidFieldValueError
	if errors.As(err, &fe) {
		log.Printf("[CLASSIFY] %s: %v", v.Name, err)
		return nil
	}
	return err
}

// save writes v in the format named by the extension of path.
func save(v *layer.VectorLayer, path string, opts render.Options) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return v.SaveShapefile(path)
	case ".geojson", ".json":
		data, err := geom.EncodeGeoJSON(v.ToCollection())
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	case ".svg":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create file '%s': %w", path, err)
		}
		return writeClose(f, func(w io.Writer) error { return render.Render(w, v, opts) })
	}
	return fmt.Errorf("unsupported output %q", path)
}

// writeClose runs write on w and closes it. A close error is returned when
// write succeeded.
func writeClose(w io.WriteCloser, write func(io.Writer) error) (err error) {
	defer func() {
		if closeErr := w.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", closeErr)
		}
	}()
	return write(w)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
