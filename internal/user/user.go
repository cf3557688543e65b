package user

import (
	"time"

	userDatamodel "github.com/frahmantamala/document-management/internal/core/datamodel/user"
	"github.com/frahmantamala/document-management/internal/query"
	"github.com/frahmantamala/document-management/internal/role"
)

type User struct {
	ID        int64       `json:"id"`
	CreatedBy *int64      `json:"created_by"`
	Name      string      `json:"name"`
	LastName  string      `json:"last_name"`
	Email     string      `json:"email"`
	Genre     string      `json:"genre"`
	BirthDate Date        `json:"birth_date"`
	Active    bool        `json:"active"`
	Roles     []role.Role `json:"roles"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	DeletedAt *time.Time  `json:"deleted_at"`
}

func FromDataModel(u *userDatamodel.User) *User {
	out := &User{
		ID:        u.ID,
		CreatedBy: u.CreatedBy,
		Name:      u.Name,
		LastName:  u.LastName,
		Email:     u.Email,
		Genre:     u.Genre,
		BirthDate: Date(u.BirthDate),
		Active:    u.Active,
		Roles:     make([]role.Role, 0, len(u.Roles)),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	for i := range u.Roles {
		out.Roles = append(out.Roles, *role.FromDataModel(&u.Roles[i]))
	}
	if u.DeletedAt.Valid {
		t := u.DeletedAt.Time
		out.DeletedAt = &t
	}
	return out
}

const (
	GenreMale   = "m"
	GenreFemale = "f"
)

// Schema is the searchable surface of users.
var Schema = query.NewSchema("user", map[string]query.Field{
	"id":         {Kind: query.KindID},
	"created_by": {Kind: query.KindID},
	"name":       {Kind: query.KindString},
	"last_name":  {Kind: query.KindString},
	"email":      {Kind: query.KindString},
	"genre":      {Kind: query.KindEnum, Values: []string{GenreMale, GenreFemale}},
	"birth_date": {Kind: query.KindDate},
	"active":     {Kind: query.KindBool},
	"created_at": {Kind: query.KindTime},
	"updated_at": {Kind: query.KindTime},
	"deleted_at": {Kind: query.KindTime},
})
