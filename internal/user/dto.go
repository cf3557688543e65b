package user

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/frahmantamala/document-management/internal/query"
)

const dateLayout = "2006-01-02"

// Date is a calendar day written as YYYY-MM-DD.
type Date time.Time

func (d Date) Time() time.Time {
	return time.Time(d)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if time.Time(d).IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(time.Time(d).Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("birth_date must be a YYYY-MM-DD string")
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(dateLayout, *raw)
	if err != nil {
		return fmt.Errorf("birth_date must be a YYYY-MM-DD string")
	}
	*d = Date(t)
	return nil
}

type CreateRequest struct {
	Name      string `json:"name" validate:"required,max=255"`
	LastName  string `json:"last_name" validate:"required,max=255"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required"`
	Genre     string `json:"genre" validate:"required,oneof=m f"`
	BirthDate Date   `json:"birth_date"`
	Active    *bool  `json:"active"`
	RoleID    int64  `json:"role_id" validate:"required,gt=0"`
}

type UpdateRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=255"`
	LastName  *string `json:"last_name" validate:"omitempty,min=1,max=255"`
	Email     *string `json:"email" validate:"omitempty,email,max=255"`
	Password  *string `json:"password"`
	Genre     *string `json:"genre" validate:"omitempty,oneof=m f"`
	BirthDate *Date   `json:"birth_date"`
	Active    *bool   `json:"active"`
	RoleID    *int64  `json:"role_id" validate:"omitempty,gt=0"`
}

// ExportKind selects what an export request produces.
type ExportKind string

const (
	ExportXLSX        ExportKind = "xlsx"
	ExportWord        ExportKind = "word"
	ExportWordAndXLSX ExportKind = "word_and_xlsx"
)

type ExportRequest struct {
	Kind   ExportKind
	ToPDF  bool
	Search *query.Descriptor
}
