package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/frahmantamala/document-management/internal/storage"
	"github.com/google/uuid"
)

// Store keeps objects as files below a root directory.
type Store struct {
	root       string
	serverName string
}

func New(root, serverName string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", abs, err)
	}
	return &Store{root: abs, serverName: strings.TrimSuffix(serverName, "/")}, nil
}

func (s *Store) Type() storage.Type {
	return storage.TypeLocal
}

func (s *Store) Root() string {
	return s.root
}

// resolve maps a slash separated key to a path inside the root.
func (s *Store) resolve(key string) (string, string, error) {
	if key == "" || strings.ContainsRune(key, 0) {
		return "", "", storage.ErrInvalidKey
	}
	clean := path.Clean(strings.ReplaceAll(key, `\`, "/"))
	if path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", "", fmt.Errorf("%w: %q", storage.ErrInvalidKey, key)
	}
	return clean, filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *Store) Save(_ context.Context, data []byte, key string, override bool) (storage.Object, error) {
	clean, full, err := s.resolve(key)
	if err != nil {
		return storage.Object{}, err
	}
	if !override {
		if _, err := os.Stat(full); err == nil {
			return storage.Object{}, fmt.Errorf("%w: %s", storage.ErrFileExists, clean)
		}
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return storage.Object{}, fmt.Errorf("%w: create directory: %v", storage.ErrBackend, err)
	}

	tmp := full + "." + uuid.NewString()[:8] + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return storage.Object{}, fmt.Errorf("%w: create temp file: %v", storage.ErrBackend, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return storage.Object{}, fmt.Errorf("%w: write: %v", storage.ErrBackend, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return storage.Object{}, fmt.Errorf("%w: fsync: %v", storage.ErrBackend, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return storage.Object{}, fmt.Errorf("%w: close: %v", storage.ErrBackend, err)
	}

	if !override {
		// os.Link fails if the destination appeared after the Stat above.
		if err := os.Link(tmp, full); err != nil {
			os.Remove(tmp)
			if errors.Is(err, fs.ErrExist) {
				return storage.Object{}, fmt.Errorf("%w: %s", storage.ErrFileExists, clean)
			}
			return storage.Object{}, fmt.Errorf("%w: link: %v", storage.ErrBackend, err)
		}
		os.Remove(tmp)
	} else if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return storage.Object{}, fmt.Errorf("%w: rename: %v", storage.ErrBackend, err)
	}

	return storage.Object{Key: clean, Name: path.Base(clean), Size: int64(len(data))}, nil
}

func (s *Store) Size(_ context.Context, key string) (int64, error) {
	_, full, err := s.resolve(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return 0, mapErr(err)
	}
	return info.Size(), nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	_, full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return mapErr(err)
	}
	return nil
}

func (s *Store) Copy(ctx context.Context, src, dst string) (storage.Object, error) {
	_, full, err := s.resolve(src)
	if err != nil {
		return storage.Object{}, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return storage.Object{}, mapErr(err)
	}
	return s.Save(ctx, data, dst, false)
}

func (s *Store) Rename(ctx context.Context, src, dst string) (storage.Object, error) {
	_, from, err := s.resolve(src)
	if err != nil {
		return storage.Object{}, err
	}
	clean, to, err := s.resolve(dst)
	if err != nil {
		return storage.Object{}, err
	}
	if _, err := os.Stat(to); err == nil {
		return storage.Object{}, fmt.Errorf("%w: %s", storage.ErrFileExists, clean)
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o750); err != nil {
		return storage.Object{}, fmt.Errorf("%w: create directory: %v", storage.ErrBackend, err)
	}
	if err := os.Rename(from, to); err != nil {
		return storage.Object{}, mapErr(err)
	}
	size, err := s.Size(ctx, clean)
	if err != nil {
		return storage.Object{}, err
	}
	return storage.Object{Key: clean, Name: path.Base(clean), Size: size}, nil
}

func (s *Store) Open(_ context.Context, key string) (io.ReadCloser, error) {
	_, full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, mapErr(err)
	}
	return f, nil
}

// URL points at the document download route of this service.
func (s *Store) URL(loc storage.Locator) string {
	return s.serverName + "/api/documents/" + strconv.FormatInt(loc.ID, 10)
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", storage.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", storage.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %v", storage.ErrBackend, err)
	}
}
