package document

import (
	"time"

	"gorm.io/gorm"
)

type Document struct {
	ID               int64          `gorm:"primaryKey"`
	CreatedBy        int64          `gorm:"column:created_by;not null"`
	Name             string         `gorm:"column:name;not null"`
	MimeType         string         `gorm:"column:mime_type;not null"`
	Size             int64          `gorm:"column:size;not null"`
	StorageType      string         `gorm:"column:storage_type;not null"`
	StorageID        *string        `gorm:"column:storage_id"`
	InternalFilename *string        `gorm:"column:internal_filename"`
	DirectoryPath    *string        `gorm:"column:directory_path"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt        gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Document) TableName() string {
	return "documents"
}
