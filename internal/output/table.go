package output

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders tabular data for text output. Widths are measured in
// terminal cells, so styled or non-ASCII cells stay aligned.
type Table struct {
	headers   []string
	rows      [][]string
	right     map[int]bool
	noHeader  bool
	separator string
	theme     *Theme
}

// NewTable creates a new table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{
		headers:   headers,
		rows:      [][]string{},
		right:     make(map[int]bool),
		separator: "  ",
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// AlignRight right-aligns the given columns. Amount columns use it.
func (t *Table) AlignRight(cols ...int) *Table {
	for _, c := range cols {
		t.right[c] = true
	}
	return t
}

// WithTheme styles the header row with theme.
func (t *Table) WithTheme(theme *Theme) *Table {
	t.theme = theme
	return t
}

// SetNoHeader suppresses the header row.
func (t *Table) SetNoHeader(noHeader bool) {
	t.noHeader = noHeader
}

// SetSeparator sets the column separator.
func (t *Table) SetSeparator(sep string) {
	t.separator = sep
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render renders the table to the writer.
func (t *Table) Render(w io.Writer) error {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return nil
	}

	widths := t.calculateWidths()

	if !t.noHeader && len(t.headers) > 0 {
		header := t.formatRow(t.headers, widths)
		if t.theme != nil {
			header = t.theme.Header(header)
		}
		if _, err := io.WriteString(w, header+"\n"); err != nil {
			return err
		}
		if _, err := io.WriteString(w, t.separatorLine(widths)+"\n"); err != nil {
			return err
		}
	}

	for _, row := range t.rows {
		if _, err := io.WriteString(w, t.formatRow(row, widths)+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// String returns the table as a string.
func (t *Table) String() string {
	var sb strings.Builder
	_ = t.Render(&sb)
	return sb.String()
}

func (t *Table) calculateWidths() []int {
	numCols := len(t.headers)
	for _, row := range t.rows {
		numCols = max(numCols, len(row))
	}

	widths := make([]int, numCols)
	for i, h := range t.headers {
		widths[i] = max(widths[i], lipgloss.Width(h))
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}
	return widths
}

func (t *Table) formatRow(cells []string, widths []int) string {
	parts := make([]string, len(widths))
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		pad := strings.Repeat(" ", width-lipgloss.Width(cell))
		if t.right[i] {
			parts[i] = pad + cell
		} else {
			parts[i] = cell + pad
		}
	}
	return strings.TrimRight(strings.Join(parts, t.separator), " ")
}

func (t *Table) separatorLine(widths []int) string {
	parts := make([]string, len(widths))
	for i, width := range widths {
		parts[i] = strings.Repeat("-", width)
	}
	return strings.Join(parts, t.separator)
}
