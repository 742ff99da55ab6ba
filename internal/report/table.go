// Package report renders pipeline results as aligned terminal tables.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
)

// Align is a column alignment.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Table is a simple column-aligned text table. Cells may carry color codes;
// widths are measured on the visible text.
type Table struct {
	headers []string
	align   []Align
	rows    [][]string
	footer  []string
}

// NewTable creates a table with the given headers, all left aligned.
func NewTable(headers ...string) *Table {
	return &Table{
		headers: headers,
		align:   make([]Align, len(headers)),
	}
}

// SetAlign sets the alignment of column i.
func (t *Table) SetAlign(i int, a Align) *Table {
	if i >= 0 && i < len(t.align) {
		t.align[i] = a
	}
	return t
}

// AddRow appends a row. Missing cells render empty; extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, t.normalize(cells))
}

// SetFooter sets a row rendered below a separator.
func (t *Table) SetFooter(cells ...string) {
	t.footer = t.normalize(cells)
}

func (t *Table) normalize(cells []string) []string {
	row := make([]string, len(t.headers))
	copy(row, cells)
	return row
}

func visibleWidth(s string) int {
	return runewidth.StringWidth(color.ClearCode(s))
}

func (t *Table) widths() []int {
	w := make([]int, len(t.headers))
	measure := func(row []string) {
		for i, c := range row {
			if n := visibleWidth(c); n > w[i] {
				w[i] = n
			}
		}
	}
	measure(t.headers)
	for _, r := range t.rows {
		measure(r)
	}
	if t.footer != nil {
		measure(t.footer)
	}
	return w
}

func (t *Table) pad(cell string, width int, a Align) string {
	gap := width - visibleWidth(cell)
	if gap <= 0 {
		return cell
	}
	if a == AlignRight {
		return strings.Repeat(" ", gap) + cell
	}
	return cell + strings.Repeat(" ", gap)
}

func (t *Table) line(row []string, widths []int) string {
	cells := make([]string, len(row))
	for i, c := range row {
		cells[i] = t.pad(c, widths[i], t.align[i])
	}
	return strings.TrimRight(strings.Join(cells, "  "), " ")
}

func separator(widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = strings.Repeat("-", w)
	}
	return strings.Join(parts, "  ")
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) error {
	widths := t.widths()

	headers := make([]string, len(t.headers))
	for i, h := range t.headers {
		headers[i] = color.Bold.Sprint(h)
	}

	var b strings.Builder
	b.WriteString(t.line(headers, widths) + "\n")
	b.WriteString(separator(widths) + "\n")
	for _, r := range t.rows {
		b.WriteString(t.line(r, widths) + "\n")
	}
	if t.footer != nil {
		b.WriteString(separator(widths) + "\n")
		b.WriteString(t.line(t.footer, widths) + "\n")
	}

	_, err := fmt.Fprint(w, b.String())
	return err
}

// DisableColor turns off color output, e.g. for --no-color or a non-TTY.
func DisableColor() {
	color.Disable()
}
