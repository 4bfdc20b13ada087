package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	_, _, mapWidth, mapHeight := m.layout()
	contentWidth := max(10, m.width)
	contentHeight := mapHeight

	if m.showSidebar {
		m.l.SetSize(sidebarWidth-2, contentHeight-2)
	}

	title := " geolayer ─ terminal vector layer viewer "
	if m.layer != nil {
		title += fmt.Sprintf("─ %s (%s) ", m.layer.Name, m.layer.ShapeType)
	}
	header := lipgloss.NewStyle().Width(contentWidth).Padding(0).Render(titleStyle.Render(title))

	var sidebar string
	if m.showSidebar {
		sidebar = lipgloss.NewStyle().Width(sidebarWidth).Render(m.l.View())
	}

	var mapView string
	switch {
	case m.showAttrs:
		colW := 0
		for _, c := range m.tbl.Columns() {
			colW += c.Width + 3
		}
		if colW == 0 {
			colW = min(60, contentWidth-6)
		}
		maxW := min(mapWidth, max(32, colW))
		m.tbl.SetWidth(maxW - 4)
		m.tbl.SetHeight(min(mapHeight-2, 20))
		attrsBox := boxStyle.Width(maxW).Render(m.tbl.View())
		mapView = lipgloss.Place(mapWidth, mapHeight, lipgloss.Center, lipgloss.Center, attrsBox)
	case m.input != inputNone:
		m.ta.SetWidth(mapWidth)
		m.ta.SetHeight(min(mapHeight, 12))
		mapView = lipgloss.NewStyle().Width(mapWidth).Height(mapHeight).Render(m.ta.View())
	default:
		mapView = lipgloss.NewStyle().Width(mapWidth).Height(mapHeight).Render(m.renderMap(mapWidth, mapHeight))
	}

	popup := ""
	if m.inspectPopup != "" && !m.showAttrs {
		maxPopupW := max(20, min(48, contentWidth/2))
		box := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).MaxWidth(maxPopupW).Render(m.inspectPopup)
		popup = lipgloss.Place(contentWidth, contentHeight, lipgloss.Left, lipgloss.Center, box)
	}

	body := mapView
	if m.showSidebar {
		body = lipgloss.JoinHorizontal(lipgloss.Top, sidebar, " ", mapView)
	}

	status := dimStyle.Render(" " + m.status + " ")
	coords := ""
	if m.hoverHasGeo {
		coords = dimStyle.Render(fmt.Sprintf("  x=%.5f y=%.5f  ", m.hoverLon, m.hoverLat))
	}
	left := lipgloss.JoinHorizontal(lipgloss.Bottom, status, m.renderHelp())
	spacerW := max(0, contentWidth-lipgloss.Width(left)-lipgloss.Width(coords))
	right := lipgloss.Place(spacerW+lipgloss.Width(coords), 1, lipgloss.Right, lipgloss.Center, coords)
	footer := lipgloss.NewStyle().Width(contentWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.renderLegend(contentWidth),
			lipgloss.JoinHorizontal(lipgloss.Bottom, left, right),
		))

	ui := lipgloss.JoinVertical(lipgloss.Left, header, popup, body, footer)
	return appStyle.Width(contentWidth).Height(m.height).Render(ui)
}

// renderLegend lists the breaks of the current scheme as coloured swatches,
// cut to width.
func (m Model) renderLegend(width int) string {
	if m.layer == nil {
		return ""
	}
	sc := m.layer.LegendScheme()
	var parts []string
	used := 0
	for _, b := range sc.Breaks {
		sw := lipgloss.NewStyle().Foreground(lipgloss.Color(b.Color.Hex())).Render("■")
		item := " " + sw + " " + b.Caption
		w := lipgloss.Width(item)
		if used+w > width {
			parts = append(parts, dimStyle.Render(" …"))
			break
		}
		parts = append(parts, item)
		used += w
	}
	return strings.Join(parts, "")
}

func (m Model) renderHelp() string {
	if !m.helpVisible {
		return ""
	}
	keys := []string{
		"↑↓←→ pan",
		"+/- zoom",
		"Tab files",
		"click select",
		"s sql",
		"x clear",
		"c legend",
		"f field",
		"l labels",
		"a attrs",
		"i inspect",
		"p paste",
		"q quit",
	}
	return dimStyle.Render("  " + strings.Join(keys, "  "))
}
