package postgres

import (
	"context"
	"fmt"

	userDatamodel "github.com/frahmantamala/document-management/internal/core/datamodel/user"
	"github.com/frahmantamala/document-management/internal/core/repository"
	"github.com/frahmantamala/document-management/internal/user"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	*repository.Repository[userDatamodel.User]
}

func NewUserRepository(db *gorm.DB) user.RepositoryAPI {
	return &UserRepository{Repository: repository.New[userDatamodel.User](db, "Roles")}
}

// FindByEmail looks up a live user by its lowercased email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*userDatamodel.User, error) {
	return r.Find(ctx, clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: "email"}, Value: email})
}

// ReplaceRoles swaps every role assignment of the user for roleIDs.
func (r *UserRepository) ReplaceRoles(ctx context.Context, userID int64, roleIDs ...int64) error {
	db := r.Conn(ctx)
	if err := db.Exec("DELETE FROM users_roles WHERE user_id = ?", userID).Error; err != nil {
		return fmt.Errorf("clear roles: %w", err)
	}
	for _, id := range roleIDs {
		if err := db.Exec("INSERT INTO users_roles (user_id, role_id) VALUES (?, ?)", userID, id).Error; err != nil {
			return fmt.Errorf("assign role %d: %w", id, err)
		}
	}
	return nil
}
