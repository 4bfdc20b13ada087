package tui

import (
	"strconv"

	table "github.com/charmbracelet/bubbles/table"

	gtable "geolayer/internal/table"
)

const maxColW = 24

// refreshAttrsFromCurrent rebuilds the table columns/rows from the current layer.
func (m *Model) refreshAttrsFromCurrent() {
	cols, rows := m.buildAttributes()
	// An empty table panics on render; fall back to the map.
	if len(cols) == 0 || len(rows) == 0 {
		m.showAttrs = false
		m.status = "no attributes for current dataset"
		return
	}
	tcols := make([]table.Column, 0, len(cols)+1)
	tcols = append(tcols, table.Column{Title: "#", Width: 5})
	for i, c := range cols {
		w := len(c) + 2
		for _, r := range rows {
			w = max(w, len(r[i])+1)
		}
		tcols = append(tcols, table.Column{Title: c, Width: min(w, maxColW)})
	}
	trows := make([]table.Row, 0, len(rows))
	for i, r := range rows {
		mark := strconv.Itoa(i + 1)
		if s := m.layer.Shape(i); s != nil && s.Selected {
			mark = "*" + mark
		}
		trows = append(trows, table.Row(append([]string{mark}, r...)))
	}
	// Avoid transient mismatch: clear rows, set columns, then set rows
	m.tbl.SetRows(nil)
	m.tbl.SetColumns(tcols)
	m.tbl.SetRows(trows)
}

// buildAttributes returns the layer's field names and formatted rows.
func (m *Model) buildAttributes() ([]string, [][]string) {
	if m.layer == nil {
		return nil, nil
	}
	t := m.layer.Table()
	cols := t.FieldNames()
	rows := make([][]string, 0, t.RowCount())
	for i := 0; i < t.RowCount(); i++ {
		r, err := t.Row(i)
		if err != nil {
			continue
		}
		vals := make([]string, len(cols))
		for j := range cols {
			if j < len(r) {
				vals[j] = gtable.FormatValue(r[j])
			}
		}
		rows = append(rows, vals)
	}
	return cols, rows
}
