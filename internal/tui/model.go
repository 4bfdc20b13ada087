package tui

import (
	"os"

	list "github.com/charmbracelet/bubbles/list"
	table "github.com/charmbracelet/bubbles/table"
	textarea "github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"geolayer/internal/config"
	"geolayer/internal/geom"
	"geolayer/internal/layer"
	"geolayer/internal/legend"
)

// inputMode says what the text area is collecting.
type inputMode int

const (
	inputNone inputMode = iota
	inputWKT
	inputSQL
)

type Model struct {
	cfg *config.Config

	width  int
	height int

	showSidebar bool
	helpVisible bool

	zoom    float64
	offsetX int
	offsetY int

	status string

	// File explorer
	cwd     string
	l       list.Model
	items   []list.Item
	selPath string

	// Data
	layer *layer.VectorLayer
	bbox  geom.BBox

	// classification cycling
	legendType legend.Type
	fieldIdx   int

	// text input
	input   inputMode
	sqlMode layer.SelectionMode
	ta      textarea.Model

	showLabels bool

	inspectPopup string

	// hover state
	hovering    bool
	hoverCellX  int
	hoverCellY  int
	hoverMicX   int
	hoverMicY   int
	hoverHasGeo bool
	hoverLon    float64
	hoverLat    float64

	// attributes table
	showAttrs bool
	tbl       table.Model
}

func New(cfg *config.Config) Model {
	m := Model{
		cfg:         cfg,
		showSidebar: false,
		helpVisible: true,
		zoom:        1.0,
		status:      "geolayer ready",
	}
	m.cwd, _ = os.Getwd()
	d := list.NewDefaultDelegate()
	d.ShowDescription = false
	m.l = list.New(nil, d, 0, 0)
	m.l.Title = "Files"
	m.l.SetShowHelp(false)
	m.l.SetShowStatusBar(false)
	m.l.SetFilteringEnabled(true)
	m.ta = textarea.New()
	m.ta.CharLimit = 0
	m.ta.SetWidth(50)
	m.ta.SetHeight(6)
	m.tbl = table.New(table.WithFocused(true))
	m.tbl.SetHeight(12)
	m.refreshDir()
	return m
}

// NewWithPath preloads a file's data at launch.
func NewWithPath(cfg *config.Config, path string) Model {
	m := New(cfg)
	m.loadPath(path)
	return m
}

// NewWithLayer shows an already loaded layer.
func NewWithLayer(cfg *config.Config, v *layer.VectorLayer) Model {
	m := New(cfg)
	m.setLayer(v, "")
	return m
}

func (m Model) Init() tea.Cmd { return nil }

// Layer returns the layer on display, or nil.
func (m Model) Layer() *layer.VectorLayer { return m.layer }
