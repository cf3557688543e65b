// Package storage defines the byte store behind documents and the registry
// that selects a backend by storage type.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
)

type Type string

const (
	TypeLocal  Type = "local"
	TypeGDrive Type = "gdrive"
)

var (
	ErrFileExists       = errors.New("file already exists")
	ErrNotFound         = errors.New("file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrBackend          = errors.New("storage backend error")
	ErrInvalidKey       = errors.New("invalid storage key")
	ErrUnknownType      = errors.New("unknown storage type")
)

func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeLocal, TypeGDrive:
		return Type(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Object is what a backend reports after a write. Key addresses the object in
// later calls: a relative path for local storage, a file id for drives.
type Object struct {
	Key  string
	Name string
	Size int64
}

// Locator is the storage view of a document row.
type Locator struct {
	ID               int64
	StorageType      Type
	StorageID        string
	InternalFilename string
	DirectoryPath    string
}

func (l Locator) Key() string {
	if l.StorageType == TypeLocal {
		return path.Join(l.DirectoryPath, l.InternalFilename)
	}
	return l.StorageID
}

type Backend interface {
	Type() Type
	// Save writes data under key. It fails with ErrFileExists when the key is
	// taken and override is false.
	Save(ctx context.Context, data []byte, key string, override bool) (Object, error)
	Size(ctx context.Context, key string) (int64, error)
	// Delete succeeds when the key is already gone.
	Delete(ctx context.Context, key string) error
	Copy(ctx context.Context, src, dst string) (Object, error)
	Rename(ctx context.Context, src, dst string) (Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	URL(loc Locator) string
}

type Registry struct {
	backends map[Type]Backend
	def      Type
}

func NewRegistry(def Type, backends ...Backend) (*Registry, error) {
	r := &Registry{backends: make(map[Type]Backend, len(backends)), def: def}
	for _, b := range backends {
		r.backends[b.Type()] = b
	}
	if _, ok := r.backends[def]; !ok {
		return nil, fmt.Errorf("%w: default %q is not registered", ErrUnknownType, def)
	}
	return r, nil
}

func (r *Registry) Get(t Type) (Backend, error) {
	if t == "" {
		t = r.def
	}
	b, ok := r.backends[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return b, nil
}

func (r *Registry) Default() Backend {
	return r.backends[r.def]
}

// Types lists the registered storage types.
func (r *Registry) Types() []Type {
	out := make([]Type, 0, len(r.backends))
	for t := range r.backends {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// URL mints the download link of a document, or "" when its backend is not
// configured in this process.
func (r *Registry) URL(loc Locator) string {
	b, ok := r.backends[loc.StorageType]
	if !ok {
		return ""
	}
	return b.URL(loc)
}
