// Package export renders user listings as spreadsheet, word and pdf files and
// runs the export tasks that store them as documents.
package export

import (
	"strings"
	"time"
)

const (
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimePDF  = "application/pdf"

	// Missing is printed for null or empty values.
	Missing = "N/D"

	timestampLayout = "2006/01/02 15:04:05"
	dateLayout      = "2006-01-02"
)

// Columns are the exported headers, in display order.
var Columns = []string{"Name", "Last name", "Email", "Birth date", "Role", "Created at", "Updated at", "Deleted at"}

// Row is one exported user.
type Row struct {
	Name      string
	LastName  string
	Email     string
	BirthDate *time.Time
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Cells formats r in column order.
func (r Row) Cells() []string {
	return []string{
		text(r.Name),
		text(r.LastName),
		text(r.Email),
		date(r.BirthDate),
		text(r.Role),
		timestamp(&r.CreatedAt),
		timestamp(&r.UpdatedAt),
		timestamp(r.DeletedAt),
	}
}

func text(s string) string {
	if strings.TrimSpace(s) == "" {
		return Missing
	}
	return s
}

func date(t *time.Time) string {
	if t == nil || t.IsZero() {
		return Missing
	}
	return t.Format(dateLayout)
}

func timestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return Missing
	}
	return t.Format(timestampLayout)
}

// Progress is called after each written row with the 1-based row number.
type Progress func(current, total int)

func noProgress(int, int) {}
