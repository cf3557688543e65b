package document

// UploadRequest carries a received file. StorageType empty selects the
// default backend.
type UploadRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	MimeType    string `json:"mime_type" validate:"required"`
	Data        []byte `json:"-"`
	StorageType string `json:"storage_type" validate:"omitempty,oneof=local gdrive"`
}
