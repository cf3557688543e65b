package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/frahmantamala/document-management/internal"
	"github.com/frahmantamala/document-management/internal/core/common/validation"
	"github.com/frahmantamala/document-management/internal/core/database"
	documentDatamodel "github.com/frahmantamala/document-management/internal/core/datamodel/document"
	"github.com/frahmantamala/document-management/internal/core/repository"
	"github.com/frahmantamala/document-management/internal/export"
	"github.com/frahmantamala/document-management/internal/mail"
	"github.com/frahmantamala/document-management/internal/query"
	"github.com/frahmantamala/document-management/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// objectDir is the local directory, relative to the storage root, holding
// document bytes.
const objectDir = "documents"

type RepositoryAPI interface {
	Create(ctx context.Context, doc *documentDatamodel.Document) error
	FindByID(ctx context.Context, id int64, conds ...clause.Expression) (*documentDatamodel.Document, error)
	Get(ctx context.Context, q query.Query) (repository.Page[documentDatamodel.Document], error)
	Save(ctx context.Context, id int64, fields map[string]interface{}) (*documentDatamodel.Document, error)
	Delete(ctx context.Context, id int64, force bool) (*documentDatamodel.Document, error)
}

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Storage resolves backends by type and mints download URLs.
type Storage interface {
	Get(t storage.Type) (storage.Backend, error)
	URL(loc storage.Locator) string
}

type Service struct {
	repo    RepositoryAPI
	tx      Transactor
	storage Storage
	allowed map[string]struct{}
	logger  *slog.Logger
}

func NewService(repo RepositoryAPI, tx Transactor, store Storage, allowedMimeTypes []string, logger *slog.Logger) *Service {
	allowed := make(map[string]struct{}, len(allowedMimeTypes))
	for _, m := range allowedMimeTypes {
		allowed[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return &Service{repo: repo, tx: tx, storage: store, allowed: allowed, logger: logger}
}

func (s *Service) present(d *documentDatamodel.Document) *Document {
	return FromDataModel(d, s.storage.URL(Locate(d)))
}

// Upload stores the bytes and then the row. The bytes are removed again when
// the row cannot be written.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*Document, error) {
	t, err := s.validateUpload(req)
	if err != nil {
		return nil, err
	}
	owner := internal.UserIDFromContext(ctx)
	if owner == 0 {
		return nil, internal.ErrUnauthorized
	}

	entity := &documentDatamodel.Document{
		CreatedBy: owner,
		Name:      req.Name,
		MimeType:  req.MimeType,
	}
	if err := s.store(ctx, entity, t, req.Data); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "document uploaded", "document_id", entity.ID, "storage_type", entity.StorageType, "size", entity.Size)
	return s.present(entity), nil
}

func (s *Service) validateUpload(req UploadRequest) (storage.Type, error) {
	problems := []*internal.AppError{validation.Struct(req)}
	if req.MimeType != "" && !s.Allowed(req.MimeType) {
		problems = append(problems, internal.NewValidationFieldError("file",
			fmt.Sprintf("mime type %s is not allowed", req.MimeType), internal.ErrCodeInvalidMimeType))
	}
	if err := internal.MergeValidation(problems...); err != nil {
		return "", err
	}
	t := storage.Type(req.StorageType)
	if _, err := s.storage.Get(t); err != nil {
		return "", internal.NewValidationFieldError("storage_type",
			fmt.Sprintf("storage type %q is not available", req.StorageType), internal.ErrCodeInvalidValue)
	}
	return t, nil
}

// Allowed reports whether uploads of mimeType are accepted.
func (s *Service) Allowed(mimeType string) bool {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = mimeType
	}
	_, ok := s.allowed[strings.ToLower(base)]
	return ok
}

// store saves data under a fresh key and creates the row for entity.
func (s *Service) store(ctx context.Context, entity *documentDatamodel.Document, t storage.Type, data []byte) error {
	backend, err := s.storage.Get(t)
	if err != nil {
		return internal.NewBackendError("Storage backend unavailable", internal.ErrCodeStorage, err)
	}
	obj, err := backend.Save(ctx, data, newKey(backend.Type(), entity.Name), false)
	if err != nil {
		return internal.NewBackendError("Failed to store the file", internal.ErrCodeStorage, err)
	}

	placeAt(entity, backend.Type(), obj)
	entity.Size = obj.Size
	// joining a caller's transaction, the row only lands if that commits
	if database.InTransaction(ctx) {
		database.OnRollback(ctx, func() { s.discard(ctx, backend, obj.Key) })
	}
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, entity)
	})
	if err != nil {
		s.discard(ctx, backend, obj.Key)
		return s.mapError(err)
	}
	return nil
}

func (s *Service) discard(ctx context.Context, backend storage.Backend, key string) {
	if err := backend.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.ErrorContext(ctx, "failed to remove orphaned file", "storage_type", backend.Type(), "key", key, "error", err)
	}
}

func (s *Service) Get(ctx context.Context, id int64) (*Document, error) {
	entity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	return s.present(entity), nil
}

// Open returns the metadata and content of a live document. The caller
// closes the reader.
func (s *Service) Open(ctx context.Context, id int64) (*Document, io.ReadCloser, error) {
	entity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, s.mapError(err)
	}
	backend, err := s.storage.Get(storage.Type(entity.StorageType))
	if err != nil {
		return nil, nil, internal.NewBackendError("Storage backend unavailable", internal.ErrCodeStorage, err)
	}
	rc, err := backend.Open(ctx, Locate(entity).Key())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, internal.ErrDocumentNotFound
		}
		return nil, nil, internal.NewBackendError("Failed to read the file", internal.ErrCodeStorage, err)
	}
	return s.present(entity), rc, nil
}

// Update replaces the content of a document. The new bytes go to a fresh key
// on the document's backend; the old object is removed once the row points
// to the new one.
func (s *Service) Update(ctx context.Context, id int64, req UploadRequest) (*Document, error) {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	req.StorageType = current.StorageType
	t, err := s.validateUpload(req)
	if err != nil {
		return nil, err
	}

	backend, err := s.storage.Get(t)
	if err != nil {
		return nil, internal.NewBackendError("Storage backend unavailable", internal.ErrCodeStorage, err)
	}
	obj, err := backend.Save(ctx, req.Data, newKey(t, req.Name), false)
	if err != nil {
		return nil, internal.NewBackendError("Failed to store the file", internal.ErrCodeStorage, err)
	}

	next := *current
	placeAt(&next, t, obj)
	var updated *documentDatamodel.Document
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.repo.Save(ctx, id, map[string]interface{}{
			"name":              req.Name,
			"mime_type":         req.MimeType,
			"size":              obj.Size,
			"storage_id":        next.StorageID,
			"internal_filename": next.InternalFilename,
			"directory_path":    next.DirectoryPath,
		})
		return err
	})
	if err != nil {
		s.discard(ctx, backend, obj.Key)
		return nil, s.mapError(err)
	}

	s.discard(ctx, backend, Locate(current).Key())
	return s.present(updated), nil
}

// Delete soft-deletes the row and keeps the bytes.
func (s *Service) Delete(ctx context.Context, id int64) (*Document, error) {
	entity, err := s.repo.Delete(ctx, id, false)
	if err != nil {
		return nil, s.mapError(err)
	}
	return s.present(entity), nil
}

func (s *Service) Search(ctx context.Context, d query.Descriptor) (repository.Page[Document], error) {
	q, err := query.Build(Schema, d)
	if err != nil {
		return repository.Page[Document]{}, err
	}
	page, err := s.repo.Get(ctx, q)
	if err != nil {
		return repository.Page[Document]{}, s.mapError(err)
	}
	out := repository.Page[Document]{
		Rows:            make([]Document, 0, len(page.Rows)),
		RecordsTotal:    page.RecordsTotal,
		RecordsFiltered: page.RecordsFiltered,
	}
	for i := range page.Rows {
		out.Rows = append(out.Rows, *s.present(&page.Rows[i]))
	}
	return out, nil
}

// StoreArtifact persists a generated export on the default backend.
func (s *Service) StoreArtifact(ctx context.Context, a export.Artifact) (export.Stored, error) {
	entity := &documentDatamodel.Document{
		CreatedBy: a.CreatedBy,
		Name:      a.Name,
		MimeType:  a.MimeType,
	}
	if err := s.store(ctx, entity, "", a.Data); err != nil {
		return export.Stored{}, err
	}
	d := s.present(entity)
	return export.Stored{ID: d.ID, Name: d.Name, MimeType: d.MimeType, Size: d.Size, URL: d.URL}, nil
}

// OpenArtifact loads a document fully into memory for mailing.
func (s *Service) OpenArtifact(ctx context.Context, id int64) (mail.Artifact, error) {
	d, rc, err := s.Open(ctx, id)
	if err != nil {
		return mail.Artifact{}, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return mail.Artifact{}, fmt.Errorf("read document %d: %w", id, err)
	}
	return mail.Artifact{Name: d.Name, MimeType: d.MimeType, Data: buf.Bytes()}, nil
}

// newKey is a collision-free object key keeping the original extension.
func newKey(t storage.Type, name string) string {
	file := uuid.NewString() + strings.ToLower(filepath.Ext(name))
	if t == storage.TypeLocal {
		return path.Join(objectDir, file)
	}
	return file
}

func (s *Service) mapError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return internal.ErrDocumentNotFound
	case errors.Is(err, repository.ErrAlreadyDeleted):
		return internal.ErrAlreadyDeleted
	}
	if _, ok := internal.IsAppError(err); ok {
		return err
	}
	s.logger.Error("document repository failure", "error", err)
	return internal.ErrInternal.WithCause(err)
}
