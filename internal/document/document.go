package document

import (
	"path"
	"time"

	documentDatamodel "github.com/frahmantamala/document-management/internal/core/datamodel/document"
	"github.com/frahmantamala/document-management/internal/query"
	"github.com/frahmantamala/document-management/internal/storage"
)

type Document struct {
	ID          int64      `json:"id"`
	CreatedBy   int64      `json:"created_by"`
	Name        string     `json:"name"`
	MimeType    string     `json:"mime_type"`
	Size        int64      `json:"size"`
	StorageType string     `json:"storage_type"`
	URL         string     `json:"url"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at"`
}

// Locate returns where the bytes of d live.
func Locate(d *documentDatamodel.Document) storage.Locator {
	loc := storage.Locator{ID: d.ID, StorageType: storage.Type(d.StorageType)}
	if d.StorageID != nil {
		loc.StorageID = *d.StorageID
	}
	if d.InternalFilename != nil {
		loc.InternalFilename = *d.InternalFilename
	}
	if d.DirectoryPath != nil {
		loc.DirectoryPath = *d.DirectoryPath
	}
	return loc
}

// placeAt records obj as the location of d for a backend of type t.
func placeAt(d *documentDatamodel.Document, t storage.Type, obj storage.Object) {
	d.StorageType = string(t)
	if t == storage.TypeLocal {
		dir, file := path.Split(obj.Key)
		dir = path.Clean(dir)
		d.DirectoryPath, d.InternalFilename, d.StorageID = &dir, &file, nil
		return
	}
	key := obj.Key
	d.StorageID, d.DirectoryPath, d.InternalFilename = &key, nil, nil
}

func FromDataModel(d *documentDatamodel.Document, url string) *Document {
	out := &Document{
		ID:          d.ID,
		CreatedBy:   d.CreatedBy,
		Name:        d.Name,
		MimeType:    d.MimeType,
		Size:        d.Size,
		StorageType: d.StorageType,
		URL:         url,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.DeletedAt.Valid {
		t := d.DeletedAt.Time
		out.DeletedAt = &t
	}
	return out
}

// Schema is the searchable surface of documents.
var Schema = query.NewSchema("document", map[string]query.Field{
	"id":           {Kind: query.KindID},
	"created_by":   {Kind: query.KindID},
	"name":         {Kind: query.KindString},
	"mime_type":    {Kind: query.KindString},
	"size":         {Kind: query.KindInt},
	"storage_type": {Kind: query.KindEnum, Values: []string{string(storage.TypeLocal), string(storage.TypeGDrive)}},
	"created_at":   {Kind: query.KindTime},
	"updated_at":   {Kind: query.KindTime},
	"deleted_at":   {Kind: query.KindTime},
})
