package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// columnGap separates columns.
const columnGap = 2

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// visualLen is the printed width of s, ignoring ANSI color sequences.
func visualLen(s string) int {
	return utf8.RuneCountInString(ansiEscape.ReplaceAllString(s, ""))
}

// Table buffers rows and prints them column-aligned on Flush, with a dash
// divider under the headers. Colored cells align by their visible width.
// A table with no rows prints nothing.
type Table struct {
	out      io.Writer
	headers  []string
	rows     [][]string
	prefix   string
	maxWidth int
}

// NewTable creates a table on stdout with the given column headers.
func NewTable(headers ...string) *Table {
	return NewTableTo(os.Stdout, headers...)
}

// NewTableTo creates a table that writes to out.
func NewTableTo(out io.Writer, headers ...string) *Table {
	return &Table{out: out, headers: headers}
}

// WithPrefix sets a string prepended to each line (headers, divider, rows).
func (t *Table) WithPrefix(prefix string) *Table {
	t.prefix = prefix
	return t
}

// WithMaxWidth truncates cells wider than n runes. Zero disables.
func (t *Table) WithMaxWidth(n int) *Table {
	t.maxWidth = n
	return t
}

// Row buffers one row.
func (t *Table) Row(values ...string) {
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = t.truncate(v)
	}
	t.rows = append(t.rows, row)
}

func (t *Table) truncate(s string) string {
	if t.maxWidth <= 3 || visualLen(s) <= t.maxWidth {
		return s
	}
	plain := []rune(ansiEscape.ReplaceAllString(s, ""))
	return string(plain[:t.maxWidth-3]) + "..."
}

// Flush prints the headers, divider and buffered rows, then resets the
// buffer.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		return
	}

	dividers := make([]string, len(t.headers))
	for i, h := range t.headers {
		dividers[i] = strings.Repeat("-", len(h))
	}
	lines := append([][]string{t.headers, dividers}, t.rows...)

	var widths []int
	for _, line := range lines {
		for i, cell := range line {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if n := visualLen(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	for _, line := range lines {
		var sb strings.Builder
		sb.WriteString(t.prefix)
		for i, cell := range line {
			sb.WriteString(cell)
			if i < len(line)-1 {
				sb.WriteString(strings.Repeat(" ", widths[i]-visualLen(cell)+columnGap))
			}
		}
		fmt.Fprintln(t.out, sb.String())
	}
	t.rows = nil
}
