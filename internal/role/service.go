package role

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/document-management/internal"
	"github.com/frahmantamala/document-management/internal/core/common/validation"
	roleDatamodel "github.com/frahmantamala/document-management/internal/core/datamodel/role"
	"github.com/frahmantamala/document-management/internal/core/repository"
	"github.com/frahmantamala/document-management/internal/query"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm/clause"
)

const (
	cacheSize = 128
	cacheTTL  = 5 * time.Minute
)

type RepositoryAPI interface {
	Create(ctx context.Context, role *roleDatamodel.Role) error
	FindByID(ctx context.Context, id int64, conds ...clause.Expression) (*roleDatamodel.Role, error)
	FindByName(ctx context.Context, name string) (*roleDatamodel.Role, error)
	Get(ctx context.Context, q query.Query) (repository.Page[roleDatamodel.Role], error)
	Save(ctx context.Context, id int64, fields map[string]interface{}) (*roleDatamodel.Role, error)
	Delete(ctx context.Context, id int64, force bool) (*roleDatamodel.Role, error)
	CountLiveHolders(ctx context.Context, id int64) (int64, error)
}

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	repo   RepositoryAPI
	tx     Transactor
	cache  *expirable.LRU[int64, roleDatamodel.Role]
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, tx Transactor, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		cache:  expirable.NewLRU[int64, roleDatamodel.Role](cacheSize, nil, cacheTTL),
		logger: logger,
	}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Role, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	name, err := nameFromLabel(req.Label)
	if err != nil {
		return nil, err
	}

	entity := &roleDatamodel.Role{Name: name, Label: req.Label, Description: req.Description}
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.ensureNameFree(ctx, name, 0); err != nil {
			return err
		}
		return s.repo.Create(ctx, entity)
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	s.logger.InfoContext(ctx, "role created", "role_id", entity.ID, "name", entity.Name)
	return FromDataModel(entity), nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Role, error) {
	entity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	return FromDataModel(entity), nil
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*Role, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	var updated *roleDatamodel.Role
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.FindByID(ctx, id); err != nil {
			return err
		}

		fields := map[string]interface{}{}
		if req.Label != nil {
			name, err := nameFromLabel(*req.Label)
			if err != nil {
				return err
			}
			if err := s.ensureNameFree(ctx, name, id); err != nil {
				return err
			}
			fields["label"] = *req.Label
			fields["name"] = name
		}
		if req.Description != nil {
			fields["description"] = *req.Description
		}

		var err error
		updated, err = s.repo.Save(ctx, id, fields)
		return err
	})
	s.cache.Remove(id)
	if err != nil {
		return nil, s.mapError(err)
	}
	return FromDataModel(updated), nil
}

// Delete soft-deletes a role no live user holds. Roles still assigned to
// live users answer ErrRoleInUse.
func (s *Service) Delete(ctx context.Context, id int64) (*Role, error) {
	var entity *roleDatamodel.Role
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		holders, err := s.repo.CountLiveHolders(ctx, id)
		if err != nil {
			return err
		}
		if holders > 0 {
			return internal.ErrRoleInUse
		}
		entity, err = s.repo.Delete(ctx, id, false)
		return err
	})
	s.cache.Remove(id)
	if err != nil {
		return nil, s.mapError(err)
	}
	s.logger.InfoContext(ctx, "role deleted", "role_id", id)
	return FromDataModel(entity), nil
}

func (s *Service) Search(ctx context.Context, d query.Descriptor) (repository.Page[Role], error) {
	q, err := query.Build(Schema, d)
	if err != nil {
		return repository.Page[Role]{}, err
	}
	page, err := s.repo.Get(ctx, q)
	if err != nil {
		return repository.Page[Role]{}, s.mapError(err)
	}

	out := repository.Page[Role]{
		Rows:            make([]Role, 0, len(page.Rows)),
		RecordsTotal:    page.RecordsTotal,
		RecordsFiltered: page.RecordsFiltered,
	}
	for i := range page.Rows {
		out.Rows = append(out.Rows, *FromDataModel(&page.Rows[i]))
	}
	return out, nil
}

// Live returns a live role, served from a short-lived cache.
func (s *Service) Live(ctx context.Context, id int64) (*roleDatamodel.Role, error) {
	if cached, ok := s.cache.Get(id); ok {
		return &cached, nil
	}
	entity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	s.cache.Add(id, *entity)
	return entity, nil
}

// ByName returns the live role with the given slug.
func (s *Service) ByName(ctx context.Context, name string) (*roleDatamodel.Role, error) {
	entity, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return nil, s.mapError(err)
	}
	return entity, nil
}

// EnsureRole creates the role when no live role carries its slug.
func (s *Service) EnsureRole(ctx context.Context, label, description string) (*roleDatamodel.Role, bool, error) {
	name := Slugify(label)
	existing, err := s.repo.FindByName(ctx, name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}
	entity := &roleDatamodel.Role{Name: name, Label: label, Description: &description}
	if err := s.repo.Create(ctx, entity); err != nil {
		return nil, false, err
	}
	return entity, true, nil
}

func (s *Service) ensureNameFree(ctx context.Context, name string, self int64) error {
	existing, err := s.repo.FindByName(ctx, name)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return internal.ErrRoleNameTaken
	}
	return nil
}

func nameFromLabel(label string) (string, error) {
	name := Slugify(label)
	if name == "" {
		return "", internal.NewValidationFieldError("label", "label is required", internal.ErrCodeValidationFailed)
	}
	return name, nil
}

func (s *Service) mapError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return internal.ErrRoleNotFound
	case errors.Is(err, repository.ErrAlreadyDeleted):
		return internal.ErrAlreadyDeleted
	}
	if _, ok := internal.IsAppError(err); ok {
		return err
	}
	s.logger.Error("role repository failure", "error", err)
	return internal.ErrInternal.WithCause(err)
}
