package role

import (
	"regexp"
	"strings"
	"time"

	roleDatamodel "github.com/frahmantamala/document-management/internal/core/datamodel/role"
	"github.com/frahmantamala/document-management/internal/query"
)

type Role struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Label       string     `json:"label"`
	Description *string    `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at"`
}

func FromDataModel(r *roleDatamodel.Role) *Role {
	out := &Role{
		ID:          r.ID,
		Name:        r.Name,
		Label:       r.Label,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.DeletedAt.Valid {
		t := r.DeletedAt.Time
		out.DeletedAt = &t
	}
	return out
}

var whitespace = regexp.MustCompile(`\s+`)

// Slugify derives a role name from its label: lowercase, whitespace runs
// replaced by a dash.
func Slugify(label string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), "-")
}

// Schema is the searchable surface of roles.
var Schema = query.NewSchema("role", map[string]query.Field{
	"id":          {Kind: query.KindID},
	"name":        {Kind: query.KindString},
	"label":       {Kind: query.KindString},
	"description": {Kind: query.KindString},
	"created_at":  {Kind: query.KindTime},
	"updated_at":  {Kind: query.KindTime},
	"deleted_at":  {Kind: query.KindTime},
})
