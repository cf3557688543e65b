package user

import (
	"time"

	"github.com/frahmantamala/document-management/internal/core/datamodel/role"
	"gorm.io/gorm"
)

type User struct {
	ID           int64          `gorm:"primaryKey"`
	CreatedBy    *int64         `gorm:"column:created_by"`
	Name         string         `gorm:"column:name;not null"`
	LastName     string         `gorm:"column:last_name;not null"`
	Email        string         `gorm:"column:email;not null"`
	Password     string         `gorm:"column:password;not null"`
	Genre        string         `gorm:"column:genre;not null"`
	BirthDate    time.Time      `gorm:"column:birth_date;type:date;not null"`
	Active       bool           `gorm:"column:active;not null"`
	FsUniquifier string         `gorm:"column:fs_uniquifier;not null"`
	Roles        []role.Role    `gorm:"many2many:users_roles;"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (User) TableName() string {
	return "users"
}

// RoleNames returns the slugs of the loaded roles.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}
