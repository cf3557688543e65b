package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/frahmantamala/document-management/internal/core/database"
	"github.com/frahmantamala/document-management/internal/query"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound               = errors.New("record not found")
	ErrAlreadyDeleted         = errors.New("record already deleted")
	ErrForceDeleteUnsupported = errors.New("force delete is not supported")
)

// Page is one window of a search together with its counters.
type Page[T any] struct {
	Rows            []T
	RecordsTotal    int64
	RecordsFiltered int64
}

// Repository implements CRUD with soft delete for a gorm model T. The model
// must carry a gorm.DeletedAt column.
type Repository[T any] struct {
	db       *gorm.DB
	preloads []string
}

func New[T any](db *gorm.DB, preloads ...string) *Repository[T] {
	return &Repository[T]{db: db, preloads: preloads}
}

// Conn returns the handle for ctx, joining the caller's transaction if any.
func (r *Repository[T]) Conn(ctx context.Context) *gorm.DB {
	return database.Conn(ctx, r.db)
}

func (r *Repository[T]) withPreloads(db *gorm.DB) *gorm.DB {
	for _, p := range r.preloads {
		db = db.Preload(p)
	}
	return db
}

func (r *Repository[T]) Create(ctx context.Context, entity *T) error {
	if err := r.Conn(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("create: %w", err)
	}
	return nil
}

// Find returns the first live row matching conds.
func (r *Repository[T]) Find(ctx context.Context, conds ...clause.Expression) (*T, error) {
	return r.find(r.Conn(ctx), conds...)
}

// FindUnscoped is Find including soft-deleted rows.
func (r *Repository[T]) FindUnscoped(ctx context.Context, conds ...clause.Expression) (*T, error) {
	return r.find(r.Conn(ctx).Unscoped(), conds...)
}

func (r *Repository[T]) FindByID(ctx context.Context, id int64, conds ...clause.Expression) (*T, error) {
	return r.Find(ctx, append([]clause.Expression{idEq(id)}, conds...)...)
}

func (r *Repository[T]) FindByIDUnscoped(ctx context.Context, id int64) (*T, error) {
	return r.FindUnscoped(ctx, idEq(id))
}

func (r *Repository[T]) find(db *gorm.DB, conds ...clause.Expression) (*T, error) {
	var entity T
	db = r.withPreloads(db)
	for _, c := range conds {
		db = db.Where(c)
	}
	if err := db.First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find: %w", err)
	}
	return &entity, nil
}

// Exists reports whether a live row matches conds.
func (r *Repository[T]) Exists(ctx context.Context, conds ...clause.Expression) (bool, error) {
	db := r.Conn(ctx).Model(new(T))
	for _, c := range conds {
		db = db.Where(c)
	}
	var count int64
	if err := db.Limit(1).Count(&count).Error; err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return count > 0, nil
}

// Get counts and fetches one page. RecordsTotal ignores q's filters.
func (r *Repository[T]) Get(ctx context.Context, q query.Query) (Page[T], error) {
	base := r.Conn(ctx).Model(new(T))
	if q.IncludeDeleted {
		base = base.Unscoped()
	}
	base = base.Session(&gorm.Session{})

	var page Page[T]
	if err := base.Count(&page.RecordsTotal).Error; err != nil {
		return page, fmt.Errorf("count total: %w", err)
	}

	filtered := q.Filter(base)
	if err := filtered.Count(&page.RecordsFiltered).Error; err != nil {
		return page, fmt.Errorf("count filtered: %w", err)
	}

	rows := make([]T, 0, q.Limit())
	if err := r.withPreloads(q.Paginate(filtered)).Find(&rows).Error; err != nil {
		return page, fmt.Errorf("get: %w", err)
	}
	page.Rows = rows
	return page, nil
}

// Save updates the given columns of a live row and returns the fresh row.
func (r *Repository[T]) Save(ctx context.Context, id int64, fields map[string]interface{}) (*T, error) {
	if len(fields) == 0 {
		return r.FindByID(ctx, id)
	}
	res := r.Conn(ctx).Model(new(T)).Where(idEq(id)).Updates(fields)
	if res.Error != nil {
		return nil, fmt.Errorf("save: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

// Delete soft-deletes a live row. Hard deletes are refused.
func (r *Repository[T]) Delete(ctx context.Context, id int64, force bool) (*T, error) {
	if force {
		return nil, ErrForceDeleteUnsupported
	}

	db := r.Conn(ctx)
	res := db.Where(idEq(id)).Delete(new(T))
	if res.Error != nil {
		return nil, fmt.Errorf("delete: %w", res.Error)
	}

	entity, err := r.FindByIDUnscoped(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyDeleted
	}
	return entity, nil
}

func idEq(id int64) clause.Expression {
	return clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: "id"}, Value: id}
}
