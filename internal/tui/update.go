package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	list "github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/paulmach/orb"

	"geolayer/internal/geom"
	"geolayer/internal/layer"
	"geolayer/internal/legend"
	"geolayer/internal/table"
)

const (
	sidebarWidth = 28
	headerHeight = 1
	footerHeight = 2
)

// layout returns the map origin and size; View and mouse handling share it.
func (m Model) layout() (x, y, w, h int) {
	contentHeight := max(4, m.height-headerHeight-footerHeight)
	contentWidth := max(10, m.width)
	sw := 0
	if m.showSidebar {
		sw = sidebarWidth + 1
	}
	return sw, headerHeight, max(10, contentWidth-sw), contentHeight
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.showSidebar {
			_, _, _, h := m.layout()
			m.l.SetSize(sidebarWidth-2, h-2)
		}
	case tea.KeyMsg:
		// While the list filters, keys belong to it.
		if m.showSidebar && m.l.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.l, cmd = m.l.Update(msg)
			return m, cmd
		}
		if m.input != inputNone {
			return m.updateInput(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "+", "=":
			if m.zoom < 64 {
				m.zoom *= 1.2
				m.status = fmt.Sprintf("zoom: %.2fx", m.zoom)
			}
		case "-", "_":
			if m.zoom > 0.05 {
				m.zoom /= 1.2
				m.status = fmt.Sprintf("zoom: %.2fx", m.zoom)
			}
		case "0":
			m.zoom = 1.0
			m.offsetX, m.offsetY = 0, 0
			m.status = "view reset"
		case "tab":
			m.showSidebar = !m.showSidebar
			if m.showSidebar {
				m.refreshDir()
				_, _, _, h := m.layout()
				m.l.SetSize(sidebarWidth-2, h-2)
			}
		case "p":
			m.openInput(inputWKT, "Paste WKT, one geometry per line. Enter renders; Esc cancels.")
		case "s", "S":
			if m.layer == nil {
				m.status = "no layer loaded"
				break
			}
			m.sqlMode = layer.SelectNew
			if msg.String() == "S" {
				m.sqlMode = layer.AddToCurrent
			}
			m.openInput(inputSQL, "Filter, e.g. pop > 1000 AND name LIKE 'A%'. Enter selects; Esc cancels.")
		case "x":
			if m.layer != nil {
				m.layer.ClearSelection()
				m.status = "selection cleared"
				m.refreshAttrsIfShown()
			}
		case "c":
			m.legendType = legend.Type(nextIndex(int(m.legendType), 1, 3))
			m.classify()
		case "f":
			if m.layer != nil {
				m.fieldIdx = nextIndex(m.fieldIdx, 1, len(m.layer.Table().Fields()))
				if m.legendType == legend.SingleSymbol {
					m.legendType = legend.UniqueValue
				}
				m.classify()
			}
		case "l":
			m.toggleLabels()
		case "h":
			m.helpVisible = !m.helpVisible
		case "a":
			m.showAttrs = !m.showAttrs
			if m.showAttrs {
				m.refreshAttrsFromCurrent()
			}
		case "i":
			m.inspect()
		case "esc":
			m.inspectPopup = ""
		case "enter":
			if m.showSidebar {
				if it, ok := m.l.SelectedItem().(fileItem); ok {
					m.loadPath(it.path)
				}
			}
		case "up":
			m.offsetY -= 1
		case "down":
			m.offsetY += 1
		case "left":
			m.offsetX -= 2
		case "right":
			m.offsetX += 2
		}
	case tea.MouseMsg:
		m.updateMouse(msg)
	}
	// Pass messages to list when visible
	if m.showSidebar {
		var cmd tea.Cmd
		m.l, cmd = m.l.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) openInput(mode inputMode, placeholder string) {
	m.input = mode
	m.ta.SetValue("")
	m.ta.Placeholder = placeholder
	m.ta.Focus()
	m.status = "input mode"
}

func (m *Model) closeInput() {
	m.input = inputNone
	m.ta.Blur()
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeInput()
		m.status = "view mode"
		return m, nil
	case "enter":
		text := strings.TrimSpace(m.ta.Value())
		if text == "" {
			m.status = "input: empty"
			return m, nil
		}
		switch m.input {
		case inputWKT:
			m.loadWKT(text)
		case inputSQL:
			m.sqlSelect(text, m.sqlMode)
		}
		m.closeInput()
		return m, nil
	}
	var cmd tea.Cmd
	m.ta, cmd = m.ta.Update(msg)
	return m, cmd
}

func (m *Model) sqlSelect(expr string, mode layer.SelectionMode) {
	sel, err := m.layer.SQLSelect(context.Background(), expr, mode)
	if err != nil {
		m.status = "sql error: " + err.Error()
		return
	}
	m.status = fmt.Sprintf("selected %d of %d", len(sel), m.layer.ShapeCount())
	m.refreshAttrsIfShown()
}

// classify applies the current legend type to the current field.
func (m *Model) classify() {
	v := m.layer
	if v == nil {
		m.status = "no layer loaded"
		return
	}
	field := ""
	if m.legendType != legend.SingleSymbol {
		fields := v.Table().Fields()
		if len(fields) == 0 {
			m.legendType = legend.SingleSymbol
			m.status = "no fields to classify"
			return
		}
		m.fieldIdx = nextIndex(m.fieldIdx, 0, len(fields))
		field = fields[m.fieldIdx].Name
	}
	err := v.Classify(m.legendType, field)
	var fe *table.InvalidFieldValueError
	switch {
	case err == nil:
		m.status = fmt.Sprintf("legend: %s %s (%d breaks)", m.legendType, field, v.LegendScheme().BreakCount())
	case errors.As(err, &fe):
		m.status = fmt.Sprintf("legend: %s %s, invalid values: %v", m.legendType, field, fe)
	default:
		m.status = "classify error: " + err.Error()
	}
	if field != "" {
		v.Labels.Field = field
	}
}

func (m *Model) toggleLabels() {
	if m.layer == nil {
		return
	}
	if !m.showLabels && m.layer.Labels.Field == "" {
		names := m.layer.Table().FieldNames()
		if len(names) == 0 {
			m.status = "no fields to label"
			return
		}
		m.layer.Labels.Field = names[0]
	}
	m.showLabels = !m.showLabels
	m.status = fmt.Sprintf("labels: %v (%s)", m.showLabels, m.layer.Labels.Field)
}

// inspect shows the attributes of the shape under the cursor, or a layer
// summary when there is none.
func (m *Model) inspect() {
	v := m.layer
	if v == nil {
		m.inspectPopup = "no layer loaded"
		return
	}
	if m.hoverHasGeo {
		if i, ok := v.ShapeAt(orb.Point{m.hoverLon, m.hoverLat}); ok {
			var sb strings.Builder
			fmt.Fprintf(&sb, "shape %d (%s)\n", i, v.Shape(i).Type)
			for _, f := range v.Table().FieldNames() {
				fmt.Fprintf(&sb, "%s: %s\n", f, v.Table().Text(i, f))
			}
			m.inspectPopup = strings.TrimRight(sb.String(), "\n")
			m.status = "inspect popup"
			return
		}
	}
	name := filepath.Base(m.selPath)
	if m.selPath == "" {
		name = "<unsaved>"
	}
	crs := v.Projection
	if crs == "" {
		crs = "unknown"
	}
	m.inspectPopup = strings.Join([]string{
		fmt.Sprintf("name: %s (%s)", v.Name, name),
		fmt.Sprintf("type: %s", v.ShapeType),
		fmt.Sprintf("bbox: [%.5f, %.5f, %.5f, %.5f]", m.bbox.MinX, m.bbox.MinY, m.bbox.MaxX, m.bbox.MaxY),
		fmt.Sprintf("shapes: %d  selected: %d", v.ShapeCount(), len(v.SelectedIndexes())),
		fmt.Sprintf("fields: %s", strings.Join(v.Table().FieldNames(), ", ")),
		fmt.Sprintf("legend: %s", v.LegendScheme().Type),
		"crs: " + crs,
	}, "\n")
	m.status = "inspect popup"
}

func (m *Model) updateMouse(msg tea.MouseMsg) {
	ox, oy, w, h := m.layout()
	cx, cy := msg.X, msg.Y
	if cx < ox || cx >= ox+w || cy < oy || cy >= oy+h {
		m.hovering = false
		m.hoverHasGeo = false
		return
	}
	m.hovering = true
	m.hoverCellX, m.hoverCellY = cx-ox, cy-oy
	m.hoverLon, m.hoverLat, m.hoverHasGeo = m.cellToLonLat(m.hoverCellX, m.hoverCellY, w, h)
	m.hoverMicX, m.hoverMicY = m.nearestVertex(m.hoverCellX*2, m.hoverCellY*4, w, h)

	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft || m.layer == nil || !m.hoverHasGeo {
		return
	}
	mode := layer.SelectNew
	if msg.Shift {
		mode = layer.AddToCurrent
	}
	// A click selects what lies within half a cell of the pointer.
	b, _ := m.frame()
	half := b.Width() / float64(w) / m.zoom / 2
	pt := orb.Point{m.hoverLon, m.hoverLat}
	var sel []int
	if m.layer.Family() == geom.FamilyPolygon {
		sel = m.layer.SelectShape(pt, mode)
	} else {
		ext := geom.NewBBox(pt[0]-half, pt[1]-half, pt[0]+half, pt[1]+half)
		sel = m.layer.SelectByExtent(ext, true, mode)
	}
	m.status = fmt.Sprintf("selected %d of %d", len(sel), m.layer.ShapeCount())
	m.refreshAttrsIfShown()
}

func (m *Model) refreshAttrsIfShown() {
	if m.showAttrs {
		m.refreshAttrsFromCurrent()
	}
}
