package postgres

import (
	"context"

	roleDatamodel "github.com/frahmantamala/document-management/internal/core/datamodel/role"
	"github.com/frahmantamala/document-management/internal/core/repository"
	"github.com/frahmantamala/document-management/internal/role"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoleRepository struct {
	*repository.Repository[roleDatamodel.Role]
}

func NewRoleRepository(db *gorm.DB) role.RepositoryAPI {
	return &RoleRepository{Repository: repository.New[roleDatamodel.Role](db)}
}

// FindByName looks up a live role by slug.
func (r *RoleRepository) FindByName(ctx context.Context, name string) (*roleDatamodel.Role, error) {
	return r.Find(ctx, clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: "name"}, Value: name})
}

// CountLiveHolders counts the live users assigned the role.
func (r *RoleRepository) CountLiveHolders(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := r.Conn(ctx).
		Table("users_roles").
		Joins("JOIN users ON users.id = users_roles.user_id").
		Where("users_roles.role_id = ? AND users.deleted_at IS NULL", id).
		Count(&n).Error
	return n, err
}
