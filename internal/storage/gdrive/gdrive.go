package gdrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/frahmantamala/document-management/internal/storage"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"
	fileFields     = "id, name, size"
)

type Config struct {
	CredentialsFile string
	FolderName      string
	// PublicRead grants anyone/reader on every uploaded file.
	PublicRead bool
}

// Store keeps objects as files inside one Drive folder. Keys passed to Save
// are file names; every other call addresses files by id.
type Store struct {
	srv        *drive.Service
	folderName string
	publicRead bool
	logger     *slog.Logger

	mu       sync.Mutex
	folderID string
}

func New(ctx context.Context, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Store, error) {
	if cfg.CredentialsFile != "" {
		opts = append([]option.ClientOption{
			option.WithCredentialsFile(cfg.CredentialsFile),
			option.WithScopes(drive.DriveScope),
		}, opts...)
	}
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	if cfg.FolderName == "" {
		cfg.FolderName = "documents"
	}
	if cfg.PublicRead {
		logger.Warn("drive uploads are shared with anyone holding the link", "folder", cfg.FolderName)
	}
	return &Store{srv: srv, folderName: cfg.FolderName, publicRead: cfg.PublicRead, logger: logger}, nil
}

func (s *Store) Type() storage.Type {
	return storage.TypeGDrive
}

// folder looks the parent folder up by name and creates it when missing.
// Concurrent processes may each create one; any of them is acceptable.
func (s *Store) folder(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.folderID != "" {
		return s.folderID, nil
	}

	q := fmt.Sprintf("mimeType = '%s' and name = '%s' and trashed = false", folderMimeType, quote(s.folderName))
	list, err := s.srv.Files.List().Q(q).Fields("files(id, name)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", mapErr(err)
	}
	if len(list.Files) > 0 {
		s.folderID = list.Files[0].Id
		return s.folderID, nil
	}

	created, err := s.srv.Files.Create(&drive.File{Name: s.folderName, MimeType: folderMimeType}).
		Fields("id").Context(ctx).Do()
	if err != nil {
		return "", mapErr(err)
	}
	s.logger.Info("created drive folder", "name", s.folderName, "id", created.Id)
	s.folderID = created.Id
	return s.folderID, nil
}

func (s *Store) lookup(ctx context.Context, folderID, name string) (*drive.File, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", quote(name), quote(folderID))
	list, err := s.srv.Files.List().Q(q).Fields("files(id, name, size)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return nil, mapErr(err)
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	return list.Files[0], nil
}

func (s *Store) Save(ctx context.Context, data []byte, key string, override bool) (storage.Object, error) {
	if key == "" {
		return storage.Object{}, storage.ErrInvalidKey
	}
	folderID, err := s.folder(ctx)
	if err != nil {
		return storage.Object{}, err
	}

	existing, err := s.lookup(ctx, folderID, key)
	if err != nil {
		return storage.Object{}, err
	}
	if existing != nil {
		if !override {
			return storage.Object{}, fmt.Errorf("%w: %s", storage.ErrFileExists, key)
		}
		f, err := s.srv.Files.Update(existing.Id, &drive.File{}).
			Media(bytes.NewReader(data)).Fields(fileFields).Context(ctx).Do()
		if err != nil {
			return storage.Object{}, mapErr(err)
		}
		return object(f, len(data)), nil
	}

	f, err := s.srv.Files.Create(&drive.File{Name: key, Parents: []string{folderID}}).
		Media(bytes.NewReader(data)).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return storage.Object{}, mapErr(err)
	}
	if err := s.share(ctx, f.Id); err != nil {
		_ = s.Delete(ctx, f.Id)
		return storage.Object{}, err
	}
	return object(f, len(data)), nil
}

func (s *Store) share(ctx context.Context, id string) error {
	if !s.publicRead {
		return nil
	}
	_, err := s.srv.Permissions.Create(id, &drive.Permission{Type: "anyone", Role: "reader"}).Context(ctx).Do()
	return mapErr(err)
}

func (s *Store) Size(ctx context.Context, key string) (int64, error) {
	f, err := s.srv.Files.Get(key).Fields("size").Context(ctx).Do()
	if err != nil {
		return 0, mapErr(err)
	}
	return f.Size, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.srv.Files.Delete(key).Context(ctx).Do()
	if err = mapErr(err); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

func (s *Store) Copy(ctx context.Context, src, dst string) (storage.Object, error) {
	folderID, err := s.folder(ctx)
	if err != nil {
		return storage.Object{}, err
	}
	f, err := s.srv.Files.Copy(src, &drive.File{Name: dst, Parents: []string{folderID}}).
		Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return storage.Object{}, mapErr(err)
	}
	if err := s.share(ctx, f.Id); err != nil {
		return storage.Object{}, err
	}
	return object(f, -1), nil
}

func (s *Store) Rename(ctx context.Context, src, dst string) (storage.Object, error) {
	f, err := s.srv.Files.Update(src, &drive.File{Name: dst}).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return storage.Object{}, mapErr(err)
	}
	return object(f, -1), nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.srv.Files.Get(key).Context(ctx).Download()
	if err != nil {
		return nil, mapErr(err)
	}
	return resp.Body, nil
}

func (s *Store) URL(loc storage.Locator) string {
	return "https://drive.google.com/uc?id=" + loc.StorageID + "&export=download"
}

func object(f *drive.File, size int) storage.Object {
	o := storage.Object{Key: f.Id, Name: f.Name, Size: f.Size}
	if o.Size == 0 && size > 0 {
		o.Size = int64(size)
	}
	return o
}

func quote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", storage.ErrNotFound, gerr.Message)
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", storage.ErrPermissionDenied, gerr.Message)
		}
	}
	return fmt.Errorf("%w: %v", storage.ErrBackend, err)
}
