package document

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/frahmantamala/document-management/internal"
	"github.com/frahmantamala/document-management/internal/core/repository"
	"github.com/frahmantamala/document-management/internal/query"
	"github.com/frahmantamala/document-management/internal/transport"
	"github.com/gabriel-vasile/mimetype"
)

const maxUploadSize = 32 << 20

type ServiceAPI interface {
	Upload(ctx context.Context, req UploadRequest) (*Document, error)
	Get(ctx context.Context, id int64) (*Document, error)
	Open(ctx context.Context, id int64) (*Document, io.ReadCloser, error)
	Update(ctx context.Context, id int64, req UploadRequest) (*Document, error)
	Delete(ctx context.Context, id int64) (*Document, error)
	Search(ctx context.Context, d query.Descriptor) (repository.Page[Document], error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// readUpload extracts the multipart "file" field. The mime type is the
// part's declared type unless it is missing or generic, in which case it is
// sniffed from the content.
func readUpload(w http.ResponseWriter, r *http.Request) (UploadRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return UploadRequest{}, internal.NewBadRequestError("Expected a multipart form with a file field", internal.ErrCodeInvalidBody)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return UploadRequest{}, internal.NewValidationFieldError("file", "file is required", internal.ErrCodeValidationFailed)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return UploadRequest{}, internal.NewBadRequestError("Failed to read the uploaded file", internal.ErrCodeInvalidBody)
	}

	mimeType := header.Header.Get("Content-Type")
	if base, _, err := mime.ParseMediaType(mimeType); err != nil || base == "application/octet-stream" {
		mimeType = mimetype.Detect(data).String()
	}
	if base, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = base
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = header.Filename
	}
	return UploadRequest{
		Name:        name,
		MimeType:    mimeType,
		Data:        data,
		StorageType: r.URL.Query().Get("storage_type"),
	}, nil
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := readUpload(w, r)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	created, err := h.Service.Upload(r.Context(), req)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteData(w, http.StatusCreated, created)
}

// Get answers with the metadata, or with the bytes when the client accepts
// application/octet-stream.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := transport.URLParamID(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	if !wantsBinary(r) {
		found, err := h.Service.Get(r.Context(), id)
		if err != nil {
			h.WriteAppError(w, r, err)
			return
		}
		h.WriteData(w, http.StatusOK, found)
		return
	}

	doc, rc, err := h.Service.Open(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	defer rc.Close()

	disposition := "inline"
	if r.URL.Query().Get("as_attachment") == "1" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Length", fmt.Sprint(doc.Size))
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": doc.Name}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.Logger.WarnContext(r.Context(), "document download interrupted", "document_id", id, "error", err)
	}
}

func wantsBinary(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if base, _, err := mime.ParseMediaType(strings.TrimSpace(part)); err == nil && base == "application/octet-stream" {
			return true
		}
	}
	return false
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := transport.URLParamID(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	req, err := readUpload(w, r)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	updated, err := h.Service.Update(r.Context(), id, req)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteData(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := transport.URLParamID(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	deleted, err := h.Service.Delete(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteData(w, http.StatusOK, deleted)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var d query.Descriptor
	if err := h.DecodeJSON(r, &d); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	page, err := h.Service.Search(r.Context(), d)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteList(w, page.Rows, page.RecordsTotal, page.RecordsFiltered)
}
