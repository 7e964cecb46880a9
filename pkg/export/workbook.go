package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/payback159/raidsplit/pkg/calculator"
	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
)

// SheetName is the worksheet holding the split grid
const SheetName = "Raid Splits"

var thinBorder = []excelize.Border{
	{Type: "left", Color: "#000000", Style: 1},
	{Type: "top", Color: "#000000", Style: 1},
	{Type: "right", Color: "#000000", Style: 1},
	{Type: "bottom", Color: "#000000", Style: 1},
}

// styleCache creates one fill style per color on first use
type styleCache struct {
	f      *excelize.File
	bold   bool
	font   string
	styles map[string]int
}

func newStyleCache(f *excelize.File, bold bool, fontColor string) *styleCache {
	return &styleCache{f: f, bold: bold, font: fontColor, styles: make(map[string]int)}
}

func (c *styleCache) get(fill string) (int, error) {
	if id, ok := c.styles[fill]; ok {
		return id, nil
	}
	id, err := c.f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: c.bold, Color: c.font},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{fill}, Pattern: 1},
		Border:    thinBorder,
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return 0, fmt.Errorf("create style %s: %w", fill, err)
	}
	c.styles[fill] = id
	return id, nil
}

// sheetWriter writes values and styles to one sheet, keeping the first
// error and skipping everything after it
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (w *sheetWriter) set(col, row int, value any, styleID int) {
	if w.err != nil {
		return
	}
	name, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetCellValue(w.sheet, name, value); err != nil {
		w.err = fmt.Errorf("set %s: %w", name, err)
		return
	}
	if styleID > 0 {
		if err := w.f.SetCellStyle(w.sheet, name, name, styleID); err != nil {
			// styles are cosmetic
			logging.LogWarn("Failed to set cell style", "cell", name, "error", err.Error())
		}
	}
}

func (w *sheetWriter) merge(col, row, span int) {
	if w.err != nil || span < 2 {
		return
	}
	from, _ := excelize.CoordinatesToCellName(col+1, row)
	to, _ := excelize.CoordinatesToCellName(col+span, row)
	if err := w.f.MergeCell(w.sheet, from, to); err != nil {
		w.err = fmt.Errorf("merge %s:%s: %w", from, to, err)
	}
}

// BuildWorkbook writes the split grid to a new workbook. The caller owns
// the returned file and must Close it.
func BuildWorkbook(groups []models.Group) (*excelize.File, error) {
	if len(groups) == 0 {
		return nil, ErrNoGroups
	}
	l := newLayout(groups)

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headers := newStyleCache(f, true, headerTextColor)
	cells := newStyleCache(f, false, cellTextColor)
	labels := newStyleCache(f, true, cellTextColor)
	w := &sheetWriter{f: f, sheet: SheetName}

	row := 1
	for gi, g := range groups {
		id, err := headers.get(models.GroupHeaderColor(gi))
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		w.set(l.column(gi), row, GroupLabel(g), id)
		w.merge(l.column(gi), row, columnsPerGroup)
	}

	for r := 0; r < l.rows; r++ {
		row++
		for gi := range groups {
			for half := 0; half < columnsPerGroup; half++ {
				ch, ok := l.character(gi, r, half)
				if !ok {
					continue
				}
				id, err := cells.get(models.ClassColor(ch.ClassName))
				if err != nil {
					_ = f.Close()
					return nil, err
				}
				w.set(l.column(gi)+half, row, ch.Name, id)
			}
		}
	}

	summaryLabel, err := labels.get(summaryFill)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	summaryValue, err := cells.get(summaryFill)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	for _, sr := range summaryRows {
		row++
		for gi, g := range groups {
			w.set(l.column(gi), row, sr.label, summaryLabel)
			w.set(l.column(gi)+1, row, sr.value(calculator.Summarize(g)), summaryValue)
		}
	}

	for gi := range groups {
		from, _ := excelize.ColumnNumberToName(l.column(gi) + 1)
		to, _ := excelize.ColumnNumberToName(l.column(gi) + columnsPerGroup)
		if err := f.SetColWidth(SheetName, from, to, 20); err != nil {
			logging.LogWarn("Failed to set column width", "columns", from+":"+to, "error", err.Error())
		}
	}

	if w.err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write groups sheet: %w", w.err)
	}
	return f, nil
}
