package export_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/frahmantamala/document-management/internal/export"
	"github.com/frahmantamala/document-management/internal/query"
	"github.com/frahmantamala/document-management/internal/task"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubRows struct {
	rows        []export.Row
	requestedBy int64
	search      query.Descriptor
}

func (s *stubRows) ExportRows(_ context.Context, requestedBy int64, d query.Descriptor) ([]export.Row, error) {
	s.requestedBy = requestedBy
	s.search = d
	return s.rows, nil
}

type memoryArtifacts struct {
	stored []export.Artifact
	err    error
}

func (m *memoryArtifacts) StoreArtifact(_ context.Context, a export.Artifact) (export.Stored, error) {
	if m.err != nil {
		return export.Stored{}, m.err
	}
	m.stored = append(m.stored, a)
	id := int64(len(m.stored))
	return export.Stored{ID: id, Name: a.Name, MimeType: a.MimeType, Size: int64(len(a.Data)), URL: "http://files/" + a.Name}, nil
}

type stubConverter struct {
	in  []byte
	err error
}

func (c *stubConverter) Convert(_ context.Context, _ string, data []byte) ([]byte, error) {
	c.in = data
	if c.err != nil {
		return nil, c.err
	}
	return []byte("%PDF"), nil
}

type brokenReporter struct{}

func (brokenReporter) Update(context.Context, int, int, string) error {
	return errors.New("result store unavailable")
}

type progressLog struct {
	updates []task.Progress
}

func (p *progressLog) Update(_ context.Context, current, total int, status string) error {
	p.updates = append(p.updates, task.Progress{State: task.StateStarted, Current: current, Total: total, Status: status})
	return nil
}

var _ = Describe("Tasks", func() {
	var (
		ctx       context.Context
		rows      *stubRows
		artifacts *memoryArtifacts
		converter *stubConverter
		tasks     *export.Tasks
		progress  *progressLog
	)

	call := func(name string, args export.UsersArgs) task.Call {
		raw, _ := json.Marshal(args)
		return task.Call{ID: "t-1", Name: name, Args: raw}
	}

	BeforeEach(func() {
		ctx = context.Background()
		rows = &stubRows{rows: sampleRows()}
		artifacts = &memoryArtifacts{}
		converter = &stubConverter{}
		progress = &progressLog{}
		tasks = export.NewTasks(rows, artifacts, converter, slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	It("exports a spreadsheet and returns the stored document", func() {
		search := &query.Descriptor{Search: []query.Predicate{{FieldName: "name", FieldOperator: "contains", FieldValue: query.StringValue("o")}}}
		out, err := tasks.UsersXLSX(ctx, call(export.TaskUsersXLSX, export.UsersArgs{RequestedBy: 7, Search: search}), progress)
		Expect(err).NotTo(HaveOccurred())

		var stored export.Stored
		Expect(json.Unmarshal(out, &stored)).To(Succeed())
		Expect(stored.ID).To(Equal(int64(1)))
		Expect(stored.MimeType).To(Equal(export.MimeXLSX))
		Expect(stored.Name).To(HavePrefix("users_"))
		Expect(stored.Name).To(HaveSuffix(".xlsx"))

		Expect(rows.requestedBy).To(Equal(int64(7)))
		Expect(rows.search.Search).To(HaveLen(1))
		Expect(artifacts.stored[0].CreatedBy).To(Equal(int64(7)))

		Expect(progress.updates).To(HaveLen(3))
		Expect(progress.updates[2]).To(Equal(task.Progress{State: task.StateStarted, Current: 3, Total: 3, Status: "Writing row 3 of 3"}))
	})

	It("converts the word document when asked for pdf", func() {
		out, err := tasks.UsersWord(ctx, call(export.TaskUsersWord, export.UsersArgs{RequestedBy: 1, ToPDF: true}), progress)
		Expect(err).NotTo(HaveOccurred())

		var stored export.Stored
		Expect(json.Unmarshal(out, &stored)).To(Succeed())
		Expect(stored.MimeType).To(Equal(export.MimePDF))
		Expect(stored.Name).To(HaveSuffix(".pdf"))
		Expect(string(artifacts.stored[0].Data)).To(Equal("%PDF"))
		Expect(converter.in[:2]).To(Equal([]byte("PK")))
		Expect(progress.updates[len(progress.updates)-1].Status).To(Equal("Converting to PDF"))
	})

	It("logs progress failures and still stores the artifact", func() {
		logs := &bytes.Buffer{}
		tasks = export.NewTasks(rows, artifacts, converter, slog.New(slog.NewTextHandler(logs, nil)))

		_, err := tasks.UsersWord(ctx, call(export.TaskUsersWord, export.UsersArgs{RequestedBy: 1, ToPDF: true}), brokenReporter{})
		Expect(err).NotTo(HaveOccurred())
		Expect(artifacts.stored).To(HaveLen(1))
		Expect(strings.Count(logs.String(), "progress update failed")).To(Equal(len(sampleRows()) + 1))
	})

	It("stores nothing when conversion fails", func() {
		converter.err = export.ErrConversion
		_, err := tasks.UsersWord(ctx, call(export.TaskUsersWord, export.UsersArgs{ToPDF: true}), progress)
		Expect(err).To(MatchError(export.ErrConversion))
		Expect(artifacts.stored).To(BeEmpty())
	})

	It("fails when the artifact cannot be stored", func() {
		artifacts.err = errors.New("disk full")
		_, err := tasks.UsersXLSX(ctx, call(export.TaskUsersXLSX, export.UsersArgs{}), progress)
		Expect(err).To(HaveOccurred())
		Expect(strings.Contains(err.Error(), "disk full")).To(BeTrue())
	})

	It("registers both exports", func() {
		reg := registrar{}
		tasks.Register(reg)
		Expect(reg).To(HaveKey(export.TaskUsersXLSX))
		Expect(reg).To(HaveKey(export.TaskUsersWord))
	})
})

type registrar map[string]task.Handler

func (r registrar) Register(name string, h task.Handler) { r[name] = h }
