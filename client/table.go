package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/rivo/uniseg"
	"github.com/samber/lo"
)

const columnSeparator = "  "

// table renders left-aligned columns. A cell containing newlines spans several lines,
// the other cells of its row are left blank on the extra lines.
type table struct {
	headers []string
	rows    [][]string
	styles  map[int]func(string) string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// styleColumn decorates the cells of a column once they are aligned.
func (t *table) styleColumn(col int, style func(string) string) {
	if t.styles == nil {
		t.styles = make(map[int]func(string) string)
	}
	t.styles[col] = style
}

func (t *table) render(w io.Writer) error {
	widths := lo.Map(t.headers, func(header string, _ int) int { return uniseg.StringWidth(header) })
	for _, row := range t.rows {
		for col, cell := range row[:min(len(row), len(widths))] {
			for _, line := range strings.Split(cell, "\n") {
				widths[col] = max(widths[col], uniseg.StringWidth(line))
			}
		}
	}

	bold := color.New(color.Bold)
	header := func(_ int, cell string) string { return bold.Sprint(cell) }
	if _, err := fmt.Fprintln(w, formatLine(t.headers, widths, header)); err != nil {
		return err
	}

	for _, row := range t.rows {
		cells := lo.Map(row, func(cell string, _ int) []string { return strings.Split(cell, "\n") })
		height := lo.Max(lo.Map(cells, func(lines []string, _ int) int { return len(lines) }))

		for i := 0; i < height; i++ {
			line := lo.Map(cells, func(lines []string, _ int) string {
				return lo.Ternary(i < len(lines), lines[min(i, len(lines)-1)], "")
			})
			if _, err := fmt.Fprintln(w, formatLine(line, widths, t.style)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *table) style(col int, cell string) string {
	if style, ok := t.styles[col]; ok && cell != "" {
		return style(cell)
	}
	return cell
}

func formatLine(cells []string, widths []int, style func(col int, cell string) string) string {
	var line strings.Builder
	for col, cell := range cells[:min(len(cells), len(widths))] {
		if col > 0 {
			line.WriteString(columnSeparator)
		}
		line.WriteString(style(col, cell))
		if col < len(widths)-1 {
			line.WriteString(strings.Repeat(" ", widths[col]-uniseg.StringWidth(cell)))
		}
	}
	return strings.TrimRight(line.String(), " ")
}
