package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/frahmantamala/document-management/internal/query"
	"github.com/frahmantamala/document-management/internal/task"
)

const (
	TaskUsersXLSX = "users.export_xlsx"
	TaskUsersWord = "users.export_word"
)

// UsersArgs is the payload of both user export tasks.
type UsersArgs struct {
	RequestedBy int64             `json:"requested_by"`
	Search      *query.Descriptor `json:"search,omitempty"`
	ToPDF       bool              `json:"to_pdf"`
}

// RowSource lists the users visible to the requesting user.
type RowSource interface {
	ExportRows(ctx context.Context, requestedBy int64, d query.Descriptor) ([]Row, error)
}

// Artifact is a rendered file waiting to be stored.
type Artifact struct {
	Name      string
	MimeType  string
	Data      []byte
	CreatedBy int64
}

// Stored is the presentation of the document created for an artifact and
// the result of an export task.
type Stored struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// ArtifactStore persists the bytes and the document row. Implementations
// remove the bytes when the row cannot be written.
type ArtifactStore interface {
	StoreArtifact(ctx context.Context, a Artifact) (Stored, error)
}

type PDFConverter interface {
	Convert(ctx context.Context, name string, data []byte) ([]byte, error)
}

type Registrar interface {
	Register(name string, h task.Handler)
}

type Tasks struct {
	rows      RowSource
	store     ArtifactStore
	converter PDFConverter
	logger    *slog.Logger
	now       func() time.Time
}

func NewTasks(rows RowSource, store ArtifactStore, converter PDFConverter, logger *slog.Logger) *Tasks {
	return &Tasks{rows: rows, store: store, converter: converter, logger: logger, now: time.Now}
}

func (t *Tasks) Register(r Registrar) {
	r.Register(TaskUsersXLSX, t.UsersXLSX)
	r.Register(TaskUsersWord, t.UsersWord)
}

func (t *Tasks) UsersXLSX(ctx context.Context, call task.Call, rep task.Reporter) (json.RawMessage, error) {
	return t.run(ctx, call, rep, "xlsx", MimeXLSX, func(rows []Row, p Progress) ([]byte, error) {
		return RenderXLSX(rows, p)
	})
}

func (t *Tasks) UsersWord(ctx context.Context, call task.Call, rep task.Reporter) (json.RawMessage, error) {
	return t.run(ctx, call, rep, "docx", MimeDOCX, func(rows []Row, p Progress) ([]byte, error) {
		return RenderDOCX("Users", rows, p)
	})
}

type renderFunc func(rows []Row, p Progress) ([]byte, error)

func (t *Tasks) run(ctx context.Context, call task.Call, rep task.Reporter, ext, mime string, render renderFunc) (json.RawMessage, error) {
	var args UsersArgs
	if err := call.Bind(&args); err != nil {
		return nil, err
	}
	var search query.Descriptor
	if args.Search != nil {
		search = *args.Search
	}

	rows, err := t.rows.ExportRows(ctx, args.RequestedBy, search)
	if err != nil {
		return nil, fmt.Errorf("load rows: %w", err)
	}

	data, err := render(rows, func(current, total int) {
		if err := rep.Update(ctx, current, total, fmt.Sprintf("Writing row %d of %d", current, total)); err != nil {
			t.logger.WarnContext(ctx, "progress update failed", "task_id", call.ID, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", ext, err)
	}

	name := t.filename(ext)
	if args.ToPDF {
		if err := rep.Update(ctx, len(rows), len(rows), "Converting to PDF"); err != nil {
			t.logger.WarnContext(ctx, "progress update failed", "task_id", call.ID, "error", err)
		}
		data, err = t.converter.Convert(ctx, name, data)
		if err != nil {
			return nil, err
		}
		name = strings.TrimSuffix(name, "."+ext) + ".pdf"
		mime = MimePDF
	}

	stored, err := t.store.StoreArtifact(ctx, Artifact{Name: name, MimeType: mime, Data: data, CreatedBy: args.RequestedBy})
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", name, err)
	}
	t.logger.InfoContext(ctx, "export stored", "task_id", call.ID, "document_id", stored.ID, "rows", len(rows))
	return json.Marshal(stored)
}

func (t *Tasks) filename(ext string) string {
	return fmt.Sprintf("users_%s.%s", t.now().UTC().Format("20060102_150405"), ext)
}
