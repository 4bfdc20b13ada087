package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	list "github.com/charmbracelet/bubbles/list"

	"geolayer/internal/geom"
	"geolayer/internal/layer"
	"geolayer/internal/legend"
)

type fileItem struct {
	title, desc string
	path        string
}

func (f fileItem) Title() string       { return f.title }
func (f fileItem) Description() string { return f.desc }
func (f fileItem) FilterValue() string { return f.title }

func (m *Model) refreshDir() {
	entries, err := os.ReadDir(m.cwd)
	if err != nil {
		m.status = "read dir error: " + err.Error()
		return
	}
	var items []list.Item
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !layer.Supported(name) {
			continue
		}
		items = append(items, fileItem{title: name, desc: strings.ToLower(filepath.Ext(name)), path: filepath.Join(m.cwd, name)})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].(fileItem).Title() < items[j].(fileItem).Title() })
	m.items = items
	m.l.SetItems(items)
	if len(items) == 0 {
		m.status = "no supported files in current directory"
	}
}

// loadPath replaces the current layer with the file's contents.
func (m *Model) loadPath(p string) {
	v, err := layer.Open(p)
	if err != nil {
		m.status = "load error: " + err.Error()
		return
	}
	m.setLayer(v, p)
	m.status = fmt.Sprintf("loaded: %s  %d %s shapes", filepath.Base(p), v.ShapeCount(), v.Family())
}

// loadWKT builds an unnamed layer from pasted WKT, one geometry per line.
func (m *Model) loadWKT(text string) {
	c, err := geom.ParseWKTCollection(text)
	if err != nil {
		m.status = "wkt error: " + err.Error()
		return
	}
	v, err := layer.FromCollection("pasted", c)
	if err != nil {
		m.status = "wkt error: " + err.Error()
		return
	}
	m.setLayer(v, "")
	m.status = fmt.Sprintf("rendered WKT  %d %s shapes", v.ShapeCount(), v.Family())
}

func (m *Model) setLayer(v *layer.VectorLayer, path string) {
	v.Options = m.cfg.LegendOptions()
	v.Labels.Font.Size = m.cfg.Layer.LabelFontSize
	v.SetLegendScheme(nil)
	m.layer = v
	m.selPath = path
	m.bbox, _ = v.Extent()
	m.legendType = legend.SingleSymbol
	m.fieldIdx = 0
	m.zoom = 1.0
	m.offsetX, m.offsetY = 0, 0
	m.inspectPopup = ""
	if m.showAttrs {
		m.refreshAttrsFromCurrent()
	}
}
