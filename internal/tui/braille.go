package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// brailleBuf is a cell grid where every cell holds a 2x4 dot mask, the
// colour of the last dot set in it, and an optional text rune on top.
type brailleBuf struct {
	w, h  int // in cells
	m     [][]uint8
	color [][]string
	text  [][]rune
	tint  [][]string
}

func newBrailleBuf(w, h int) *brailleBuf {
	b := &brailleBuf{w: w, h: h}
	b.m = make([][]uint8, h)
	b.color = make([][]string, h)
	b.text = make([][]rune, h)
	b.tint = make([][]string, h)
	for i := 0; i < h; i++ {
		b.m[i] = make([]uint8, w)
		b.color[i] = make([]string, w)
		b.text[i] = make([]rune, w)
		b.tint[i] = make([]string, w)
	}
	return b
}

// dotBits maps a micro position (column, row) in a cell to its braille bit.
var dotBits = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

// setPixel sets a micro-pixel at micro coords (2x4 per cell)
func (b *brailleBuf) setPixel(mx, my int, color string) {
	if mx < 0 || my < 0 {
		return
	}
	cx, cy := mx/2, my/4
	if cx >= b.w || cy >= b.h {
		return
	}
	b.m[cy][cx] |= dotBits[mx%2][my%4]
	if color != "" {
		b.color[cy][cx] = color
	}
}

// drawLineMicro draws a line on the microgrid using Bresenham
func (b *brailleBuf) drawLineMicro(x0, y0, x1, y1 int, color string) {
	dx := abs(x1 - x0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -abs(y1 - y0)
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		b.setPixel(x0, y0, color)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// putText writes s starting at cell (cx, cy), clipped to the grid.
func (b *brailleBuf) putText(cx, cy int, s, color string) {
	if cy < 0 || cy >= b.h {
		return
	}
	for i, r := range []rune(s) {
		x := cx + i
		if x < 0 || x >= b.w {
			continue
		}
		b.text[cy][x] = r
		b.tint[cy][x] = color
	}
}

func (b *brailleBuf) cell(x, y int) (rune, string) {
	if r := b.text[y][x]; r != 0 {
		return r, b.tint[y][x]
	}
	if mask := b.m[y][x]; mask != 0 {
		return rune(0x2800 + int(mask)), b.color[y][x]
	}
	return ' ', ""
}

// toLines returns the grid without colour.
func (b *brailleBuf) toLines() []string {
	out := make([]string, b.h)
	for y := 0; y < b.h; y++ {
		row := make([]rune, b.w)
		for x := 0; x < b.w; x++ {
			row[x], _ = b.cell(x, y)
		}
		out[y] = string(row)
	}
	return out
}

// toStyledLines colours runs of equal colour with lipgloss.
func (b *brailleBuf) toStyledLines() []string {
	out := make([]string, b.h)
	for y := 0; y < b.h; y++ {
		var sb strings.Builder
		var run []rune
		cur := ""
		flush := func() {
			if len(run) == 0 {
				return
			}
			if cur == "" {
				sb.WriteString(string(run))
			} else {
				sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(cur)).Render(string(run)))
			}
			run = run[:0]
		}
		for x := 0; x < b.w; x++ {
			r, c := b.cell(x, y)
			if c != cur {
				flush()
				cur = c
			}
			run = append(run, r)
		}
		flush()
		out[y] = sb.String()
	}
	return out
}
