package export

import (
	"bytes"
	"fmt"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/wml/ctypes"
	"github.com/gomutex/godocx/wml/stypes"
)

// A4 in twentieths of a point.
const (
	a4Long  uint64 = 16838
	a4Short uint64 = 11906
)

// RenderDOCX writes rows as a single table in a landscape word document.
func RenderDOCX(title string, rows []Row, progress Progress) ([]byte, error) {
	if progress == nil {
		progress = noProgress
	}

	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("open document template: %w", err)
	}

	doc.AddEmptyParagraph().AddText(title).Bold(true)

	table := doc.AddTable()
	table.Style("TableGrid")
	header := table.AddRow()
	for _, c := range Columns {
		header.AddCell().AddEmptyPara().AddText(c).Bold(true)
	}
	for i, r := range rows {
		tr := table.AddRow()
		for _, c := range r.Cells() {
			tr.AddCell().AddParagraph(c)
		}
		progress(i+1, len(rows))
	}

	// a table may not be the last block before the section properties
	doc.AddEmptyParagraph()

	if body := doc.Document.Body; body != nil {
		if body.SectPr == nil {
			body.SectPr = ctypes.NewSectionProper()
		}
		w, h := a4Long, a4Short
		body.SectPr.PageSize = &ctypes.PageSize{Width: &w, Height: &h, Orient: stypes.PageOrientLandscape}
	}

	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}
	return buf.Bytes(), nil
}
