package postgres

import (
	documentDatamodel "github.com/frahmantamala/document-management/internal/core/datamodel/document"
	"github.com/frahmantamala/document-management/internal/core/repository"
	"github.com/frahmantamala/document-management/internal/document"
	"gorm.io/gorm"
)

type DocumentRepository struct {
	*repository.Repository[documentDatamodel.Document]
}

func NewDocumentRepository(db *gorm.DB) document.RepositoryAPI {
	return &DocumentRepository{Repository: repository.New[documentDatamodel.Document](db)}
}
