package role

import (
	"time"

	"gorm.io/gorm"
)

type Role struct {
	ID          int64          `gorm:"primaryKey"`
	Name        string         `gorm:"column:name;not null"`
	Label       string         `gorm:"column:label;not null"`
	Description *string        `gorm:"column:description"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt   gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Role) TableName() string {
	return "roles"
}
