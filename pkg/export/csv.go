package export

import (
	"strings"

	"github.com/payback159/raidsplit/pkg/models"
)

// BuildCSV renders groups as the clipboard CSV grid: max(ceil(n/2)) rows of
// character names, two columns per group and one blank column between
// groups. Returns "" for no groups.
func BuildCSV(groups []models.Group) string {
	l := newLayout(groups)
	if l.width() == 0 {
		return ""
	}
	var b strings.Builder
	writeCharacterRows(&b, l, groups, quoteField)
	return b.String()
}

// BuildDownloadCSV renders the CSV grid for a file download: a row of group
// labels above the character rows, with formula-like values neutralised.
// Returns "" for no groups.
func BuildDownloadCSV(groups []models.Group) string {
	l := newLayout(groups)
	if l.width() == 0 {
		return ""
	}

	var b strings.Builder
	header := make([]string, l.width())
	for gi, g := range groups {
		header[l.column(gi)] = GroupLabel(g)
	}
	b.WriteString(joinRowWith(header, quoteDownloadField))
	b.WriteString("\n")

	writeCharacterRows(&b, l, groups, quoteDownloadField)
	return b.String()
}

func writeCharacterRows(b *strings.Builder, l layout, groups []models.Group, quote func(string) string) {
	for row := 0; row < l.rows; row++ {
		cells := make([]string, l.width())
		for gi := range groups {
			for half := 0; half < columnsPerGroup; half++ {
				if ch, ok := l.character(gi, row, half); ok {
					cells[l.column(gi)+half] = ch.Name
				}
			}
		}
		b.WriteString(joinRowWith(cells, quote))
		b.WriteString("\n")
	}
}
