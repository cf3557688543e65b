package user

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/frahmantamala/document-management/internal"
	"github.com/frahmantamala/document-management/internal/core/common/validation"
	roleDatamodel "github.com/frahmantamala/document-management/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/document-management/internal/core/datamodel/user"
	"github.com/frahmantamala/document-management/internal/core/repository"
	"github.com/frahmantamala/document-management/internal/export"
	"github.com/frahmantamala/document-management/internal/mail"
	"github.com/frahmantamala/document-management/internal/query"
	"github.com/frahmantamala/document-management/internal/task"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

type RepositoryAPI interface {
	Create(ctx context.Context, user *userDatamodel.User) error
	FindByID(ctx context.Context, id int64, conds ...clause.Expression) (*userDatamodel.User, error)
	FindByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	Get(ctx context.Context, q query.Query) (repository.Page[userDatamodel.User], error)
	Save(ctx context.Context, id int64, fields map[string]interface{}) (*userDatamodel.User, error)
	Delete(ctx context.Context, id int64, force bool) (*userDatamodel.User, error)
	ReplaceRoles(ctx context.Context, userID int64, roleIDs ...int64) error
}

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RoleLookup resolves live roles.
type RoleLookup interface {
	Live(ctx context.Context, id int64) (*roleDatamodel.Role, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
}

type TaskSubmitter interface {
	Submit(ctx context.Context, n task.Node) (string, error)
}

type Service struct {
	repo              RepositoryAPI
	tx                Transactor
	roles             RoleLookup
	hasher            PasswordHasher
	tasks             TaskSubmitter
	passwordLengthMin int
	logger            *slog.Logger
}

func NewService(repo RepositoryAPI, tx Transactor, roles RoleLookup, hasher PasswordHasher, tasks TaskSubmitter, passwordLengthMin int, logger *slog.Logger) *Service {
	return &Service{
		repo:              repo,
		tx:                tx,
		roles:             roles,
		hasher:            hasher,
		tasks:             tasks,
		passwordLengthMin: passwordLengthMin,
		logger:            logger,
	}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*User, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	var created *userDatamodel.User
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.ensureEmailFree(ctx, email, 0); err != nil {
			return err
		}
		if err := s.ensureRole(ctx, req.RoleID); err != nil {
			return err
		}
		hash, err := s.hasher.Hash(req.Password)
		if err != nil {
			return err
		}

		entity := &userDatamodel.User{
			Name:         strings.TrimSpace(req.Name),
			LastName:     strings.TrimSpace(req.LastName),
			Email:        email,
			Password:     hash,
			Genre:        req.Genre,
			BirthDate:    req.BirthDate.Time(),
			Active:       active,
			FsUniquifier: newUniquifier(),
		}
		if by := internal.UserIDFromContext(ctx); by != 0 {
			entity.CreatedBy = &by
		}
		if err := s.repo.Create(ctx, entity); err != nil {
			return err
		}
		if err := s.repo.ReplaceRoles(ctx, entity.ID, req.RoleID); err != nil {
			return err
		}
		created, err = s.repo.FindByID(ctx, entity.ID)
		return err
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	s.logger.InfoContext(ctx, "user created", "user_id", created.ID)
	return FromDataModel(created), nil
}

func (s *Service) validateCreate(req CreateRequest) *internal.AppError {
	problems := []*internal.AppError{validation.Struct(req)}

	v := validation.NewValidator()
	v.Field("password", req.Password).MinLength(s.passwordLengthMin).MaxLength(128)
	v.Field("birth_date", req.BirthDate.Time()).Required().NotFuture()
	problems = append(problems, v.Validate())

	return internal.MergeValidation(problems...)
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	entity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	return FromDataModel(entity), nil
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*User, error) {
	problems := []*internal.AppError{validation.Struct(req)}
	v := validation.NewValidator()
	if req.Password != nil {
		v.Field("password", *req.Password).Required().MinLength(s.passwordLengthMin).MaxLength(128)
	}
	if req.BirthDate != nil {
		v.Field("birth_date", req.BirthDate.Time()).Required().NotFuture()
	}
	problems = append(problems, v.Validate())
	if err := internal.MergeValidation(problems...); err != nil {
		return nil, err
	}

	var updated *userDatamodel.User
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.FindByID(ctx, id); err != nil {
			return err
		}

		fields := map[string]interface{}{}
		if req.Name != nil {
			fields["name"] = strings.TrimSpace(*req.Name)
		}
		if req.LastName != nil {
			fields["last_name"] = strings.TrimSpace(*req.LastName)
		}
		if req.Email != nil {
			email := normalizeEmail(*req.Email)
			if err := s.ensureEmailFree(ctx, email, id); err != nil {
				return err
			}
			fields["email"] = email
		}
		if req.Genre != nil {
			fields["genre"] = *req.Genre
		}
		if req.BirthDate != nil {
			fields["birth_date"] = req.BirthDate.Time()
		}
		if req.Active != nil {
			fields["active"] = *req.Active
		}
		if req.Password != nil {
			hash, err := s.hasher.Hash(*req.Password)
			if err != nil {
				return err
			}
			fields["password"] = hash
			fields["fs_uniquifier"] = newUniquifier()
		}
		if req.RoleID != nil {
			if err := s.ensureRole(ctx, *req.RoleID); err != nil {
				return err
			}
			if err := s.repo.ReplaceRoles(ctx, id, *req.RoleID); err != nil {
				return err
			}
			// touch the row so updated_at reflects the new assignment
			fields["updated_at"] = time.Now()
		}

		var err error
		updated, err = s.repo.Save(ctx, id, fields)
		return err
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	return FromDataModel(updated), nil
}

func (s *Service) Delete(ctx context.Context, id int64) (*User, error) {
	entity, err := s.repo.Delete(ctx, id, false)
	if err != nil {
		return nil, s.mapError(err)
	}
	s.logger.InfoContext(ctx, "user deleted", "user_id", id)
	return FromDataModel(entity), nil
}

// Search lists users. Admins also see soft-deleted users.
func (s *Service) Search(ctx context.Context, d query.Descriptor) (repository.Page[User], error) {
	q, err := query.Build(Schema, d)
	if err != nil {
		return repository.Page[User]{}, err
	}
	if p, ok := internal.PrincipalFromContext(ctx); ok && p.IsAdmin() {
		q.IncludeDeleted = true
	}

	page, err := s.repo.Get(ctx, q)
	if err != nil {
		return repository.Page[User]{}, s.mapError(err)
	}
	out := repository.Page[User]{
		Rows:            make([]User, 0, len(page.Rows)),
		RecordsTotal:    page.RecordsTotal,
		RecordsFiltered: page.RecordsFiltered,
	}
	for i := range page.Rows {
		out.Rows = append(out.Rows, *FromDataModel(&page.Rows[i]))
	}
	return out, nil
}

// ChangePassword stores a new hash and rotates the uniquifier, which
// invalidates every token issued before.
func (s *Service) ChangePassword(ctx context.Context, id int64, password string) (*userDatamodel.User, error) {
	if err := validation.ValidatePassword(password, s.passwordLengthMin); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, internal.ErrInternal.WithCause(err)
	}
	updated, err := s.repo.Save(ctx, id, map[string]interface{}{
		"password":      hash,
		"fs_uniquifier": newUniquifier(),
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	return updated, nil
}

// FindByEmail returns the live user with the given email.
func (s *Service) FindByEmail(ctx context.Context, email string) (*userDatamodel.User, error) {
	return s.repo.FindByEmail(ctx, normalizeEmail(email))
}

// FindByID returns the live user with its live roles.
func (s *Service) FindByID(ctx context.Context, id int64) (*userDatamodel.User, error) {
	return s.repo.FindByID(ctx, id)
}

// Export enqueues the requested export for the calling user and returns the
// id of the task whose result is the final one.
func (s *Service) Export(ctx context.Context, req ExportRequest) (string, error) {
	p, ok := internal.PrincipalFromContext(ctx)
	if !ok {
		return "", internal.ErrUnauthorized
	}
	if req.Search != nil {
		if _, err := query.Build(Schema, *req.Search); err != nil {
			return "", err
		}
	}

	args := export.UsersArgs{RequestedBy: p.UserID, Search: req.Search, ToPDF: req.ToPDF}
	var node task.Node
	switch req.Kind {
	case ExportXLSX:
		sig, err := task.NewSignature(export.TaskUsersXLSX, args)
		if err != nil {
			return "", internal.ErrInternal.WithCause(err)
		}
		node = task.Task(sig)
	case ExportWord:
		sig, err := task.NewSignature(export.TaskUsersWord, args)
		if err != nil {
			return "", internal.ErrInternal.WithCause(err)
		}
		node = task.Task(sig)
	case ExportWordAndXLSX:
		requester, err := s.repo.FindByID(ctx, p.UserID)
		if err != nil {
			return "", s.mapError(err)
		}
		word, err := task.NewSignature(export.TaskUsersWord, args)
		if err != nil {
			return "", internal.ErrInternal.WithCause(err)
		}
		sheet, err := task.NewSignature(export.TaskUsersXLSX, args)
		if err != nil {
			return "", internal.ErrInternal.WithCause(err)
		}
		notify, err := task.NewSignature(mail.TaskExportReady, mail.ExportReadyArgs{Email: requester.Email, Name: requester.Name})
		if err != nil {
			return "", internal.ErrInternal.WithCause(err)
		}
		node = task.Chord([]task.Signature{word, sheet}, task.Task(notify))
	default:
		return "", internal.NewBadRequestError("Unknown export type", internal.ErrCodeInvalidValue)
	}

	id, err := s.tasks.Submit(ctx, node)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to enqueue export", "kind", req.Kind, "error", err)
		return "", internal.ErrInternal.WithCause(err)
	}
	s.logger.InfoContext(ctx, "export enqueued", "kind", req.Kind, "task_id", id, "user_id", p.UserID)
	return id, nil
}

// ExportRows lists every user matching d as seen by requestedBy, in pages of
// the maximum size.
func (s *Service) ExportRows(ctx context.Context, requestedBy int64, d query.Descriptor) ([]export.Row, error) {
	requester, err := s.repo.FindByID(ctx, requestedBy)
	if err != nil {
		return nil, err
	}

	d.PageNumber, d.ItemsPerPage = 0, 0
	q, err := query.Build(Schema, d)
	if err != nil {
		return nil, err
	}
	q.IncludeDeleted = requester.HasRole(internal.RoleAdmin)
	q.PerPage = query.MaxPerPage

	var rows []export.Row
	for q.Page = 1; ; q.Page++ {
		page, err := s.repo.Get(ctx, q)
		if err != nil {
			return nil, err
		}
		for i := range page.Rows {
			rows = append(rows, toRow(&page.Rows[i]))
		}
		if int64(q.Page*q.PerPage) >= page.RecordsFiltered || len(page.Rows) == 0 {
			return rows, nil
		}
	}
}

func toRow(u *userDatamodel.User) export.Row {
	row := export.Row{
		Name:      u.Name,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      strings.Join(u.RoleNames(), ", "),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if !u.BirthDate.IsZero() {
		b := u.BirthDate
		row.BirthDate = &b
	}
	if u.DeletedAt.Valid {
		t := u.DeletedAt.Time
		row.DeletedAt = &t
	}
	return row
}

func (s *Service) ensureEmailFree(ctx context.Context, email string, self int64) error {
	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return internal.ErrEmailTaken
	}
	return nil
}

func (s *Service) ensureRole(ctx context.Context, id int64) error {
	if _, err := s.roles.Live(ctx, id); err != nil {
		if errors.Is(err, internal.ErrRoleNotFound) {
			return internal.NewValidationFieldError("role_id", "role not found", internal.ErrCodeRoleNotFound)
		}
		return err
	}
	return nil
}

func (s *Service) mapError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return internal.ErrUserNotFound
	case errors.Is(err, repository.ErrAlreadyDeleted):
		return internal.ErrAlreadyDeleted
	}
	if _, ok := internal.IsAppError(err); ok {
		return err
	}
	s.logger.Error("user repository failure", "error", err)
	return internal.ErrInternal.WithCause(err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newUniquifier() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
