package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/document-management/internal/task"
)

const (
	TaskResetPassword = "mail.reset_password"
	TaskExportReady   = "mail.export_ready"
)

// ResetPasswordArgs is the payload of TaskResetPassword.
type ResetPasswordArgs struct {
	Email   string        `json:"email"`
	Name    string        `json:"name"`
	URL     string        `json:"url"`
	Expires time.Duration `json:"expires"`
}

// ExportReadyArgs is the payload of TaskExportReady. The chord input is the
// list of exported document presentations.
type ExportReadyArgs struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Artifact is a stored file ready to be attached.
type Artifact struct {
	Name     string
	MimeType string
	Data     []byte
}

// ArtifactSource loads document bytes by id.
type ArtifactSource interface {
	OpenArtifact(ctx context.Context, id int64) (Artifact, error)
}

type Registrar interface {
	Register(name string, h task.Handler)
}

type Tasks struct {
	sender    Sender
	artifacts ArtifactSource
	logger    *slog.Logger
}

func NewTasks(sender Sender, artifacts ArtifactSource, logger *slog.Logger) *Tasks {
	return &Tasks{sender: sender, artifacts: artifacts, logger: logger}
}

func (t *Tasks) Register(r Registrar) {
	r.Register(TaskResetPassword, t.ResetPassword)
	r.Register(TaskExportReady, t.ExportReady)
}

func (t *Tasks) ResetPassword(ctx context.Context, call task.Call, rep task.Reporter) (json.RawMessage, error) {
	var args ResetPasswordArgs
	if err := call.Bind(&args); err != nil {
		return nil, err
	}
	if args.Email == "" || args.URL == "" {
		return nil, errors.New("reset mail needs an email and a url")
	}

	data := resetData{Name: args.Name, URL: args.URL, Expires: args.Expires.String()}
	text, err := render(resetText, data)
	if err != nil {
		return nil, fmt.Errorf("render reset mail: %w", err)
	}
	html, err := render(resetHTML, data)
	if err != nil {
		return nil, fmt.Errorf("render reset mail: %w", err)
	}

	if err := t.sender.Send(ctx, Message{
		To:      []string{args.Email},
		Subject: "Reset your password",
		Text:    text,
		HTML:    html,
	}); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"sent_to": args.Email})
}

type exportedDocument struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (t *Tasks) ExportReady(ctx context.Context, call task.Call, rep task.Reporter) (json.RawMessage, error) {
	var args ExportReadyArgs
	if err := call.Bind(&args); err != nil {
		return nil, err
	}
	var docs []exportedDocument
	if len(call.Input) > 0 {
		if err := json.Unmarshal(call.Input, &docs); err != nil {
			return nil, fmt.Errorf("decode export results: %w", err)
		}
	}

	msg := Message{To: []string{args.Email}, Subject: "Your export is ready"}
	data := exportData{Name: args.Name}
	for i, d := range docs {
		a, err := t.artifacts.OpenArtifact(ctx, d.ID)
		if err != nil {
			return nil, fmt.Errorf("load document %d: %w", d.ID, err)
		}
		msg.Attachments = append(msg.Attachments, Attachment{Name: a.Name, ContentType: a.MimeType, Data: a.Data})
		data.Links = append(data.Links, exportLink{Name: d.Name, URL: d.URL})
		if err := rep.Update(ctx, i+1, len(docs)+1, "attaching "+d.Name); err != nil {
			t.logger.WarnContext(ctx, "progress update failed", "task_id", call.ID, "error", err)
		}
	}

	text, err := render(exportText, data)
	if err != nil {
		return nil, fmt.Errorf("render export mail: %w", err)
	}
	msg.Text = text

	if err := t.sender.Send(ctx, msg); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]interface{}{"sent_to": args.Email, "attachments": len(msg.Attachments)})
}
