// Package export turns generated groups into spreadsheet-friendly tables:
// CSV text, a colored HTML table, an xlsx workbook, and the clipboard copy
// built on top of them.
package export

import (
	"fmt"
	"strings"

	"github.com/payback159/raidsplit/pkg/calculator"
	"github.com/payback159/raidsplit/pkg/models"
)

// Format selects the clipboard representation
type Format string

const (
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// ParseFormat maps a request value onto a Format; anything that is not
// csv selects html
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatCSV)) {
		return FormatCSV
	}
	return FormatHTML
}

// GroupLabel is the header text of a group's columns
func GroupLabel(g models.Group) string {
	return fmt.Sprintf("Group %d", g.GroupID)
}

// Every group takes two columns; groups are separated by one blank column.
const columnsPerGroup = 2

// layout describes the shared two-columns-per-group grid
type layout struct {
	groups []models.Group
	rows   int
}

func newLayout(groups []models.Group) layout {
	rows := 0
	for _, g := range groups {
		if h := calculator.HalfSplit(len(g.Characters)); h > rows {
			rows = h
		}
	}
	return layout{groups: groups, rows: rows}
}

// width is the total number of columns including buffers
func (l layout) width() int {
	if len(l.groups) == 0 {
		return 0
	}
	return len(l.groups)*(columnsPerGroup+1) - 1
}

// column returns the zero-based first column of group gi
func (l layout) column(gi int) int {
	return gi * (columnsPerGroup + 1)
}

// character returns the character shown in group gi at row, in the first
// (half 0) or second (half 1) column
func (l layout) character(gi, row, half int) (models.Character, bool) {
	chars := l.groups[gi].Characters
	split := calculator.HalfSplit(len(chars))
	idx := row
	if half == 1 {
		idx = split + row
		if idx >= len(chars) {
			return models.Character{}, false
		}
	} else if idx >= split {
		return models.Character{}, false
	}
	if idx >= len(chars) {
		return models.Character{}, false
	}
	return chars[idx], true
}

// summaryRow is one label/value pair shown under each group
type summaryRow struct {
	label string
	value func(calculator.GroupSummary) string
}

var summaryRows = []summaryRow{
	{"Composition (T/H/D)", func(s calculator.GroupSummary) string { return s.Composition.String() }},
	{"Mains", func(s calculator.GroupSummary) string { return fmt.Sprint(s.Mains) }},
	{"Raid Buffs", func(s calculator.GroupSummary) string { return s.BuffCoverage() }},
	{"Armor (P/M/L/C)", func(s calculator.GroupSummary) string { return s.ArmorLine() }},
	{"Tier (Z/D/M/V)", func(s calculator.GroupSummary) string { return s.TierLine() }},
}

// quoteField double-quotes a value and doubles embedded quotes
func quoteField(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// quoteDownloadField is quoteField for files saved to disk: values that a
// spreadsheet would read as a formula get a leading apostrophe.
func quoteDownloadField(field string) string {
	if len(field) > 0 {
		switch field[0] {
		case '=', '+', '-', '@', '\t', '\r':
			field = "'" + field
		}
	}
	return quoteField(field)
}

func joinRow(cells []string) string {
	return joinRowWith(cells, quoteField)
}

func joinRowWith(cells []string, quote func(string) string) string {
	quoted := make([]string, len(cells))
	for i, c := range cells {
		quoted[i] = quote(c)
	}
	return strings.Join(quoted, ",")
}
