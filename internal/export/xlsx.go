package export

import (
	"fmt"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	sheetName   = "Users"
	headerColor = "#C0C0C0"
	bandColor   = "#F2F2F2"
)

// RenderXLSX writes rows into a single-sheet workbook: bold grey header with
// an auto filter, light grey band on even rows, columns as wide as their
// longest value.
func RenderXLSX(rows []Row, progress Progress) ([]byte, error) {
	if progress == nil {
		progress = noProgress
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerColor}},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	bandStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{bandColor}},
	})
	if err != nil {
		return nil, fmt.Errorf("band style: %w", err)
	}

	widths := make([]int, len(Columns))
	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
		widths[i] = utf8.RuneCountInString(c)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	last, _ := excelize.ColumnNumberToName(len(Columns))
	if err := f.SetCellStyle(sheetName, "A1", last+"1", headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, r := range rows {
		line := i + 2
		cells := r.Cells()
		values := make([]interface{}, len(cells))
		for j, c := range cells {
			values[j] = c
			if n := utf8.RuneCountInString(c); n > widths[j] {
				widths[j] = n
			}
		}
		start, _ := excelize.CoordinatesToCellName(1, line)
		if err := f.SetSheetRow(sheetName, start, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", line, err)
		}
		if line%2 == 0 {
			end, _ := excelize.CoordinatesToCellName(len(Columns), line)
			if err := f.SetCellStyle(sheetName, start, end, bandStyle); err != nil {
				return nil, fmt.Errorf("style row %d: %w", line, err)
			}
		}
		progress(i+1, len(rows))
	}

	if err := f.AutoFilter(sheetName, "A1:"+last+"1", nil); err != nil {
		return nil, fmt.Errorf("auto filter: %w", err)
	}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheetName, col, col, float64(w+2)); err != nil {
			return nil, fmt.Errorf("column width %s: %w", col, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
