package document_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/frahmantamala/document-management/internal"
	"github.com/frahmantamala/document-management/internal/core/database"
	documentDatamodel "github.com/frahmantamala/document-management/internal/core/datamodel/document"
	"github.com/frahmantamala/document-management/internal/document"
	documentPostgres "github.com/frahmantamala/document-management/internal/document/postgres"
	"github.com/frahmantamala/document-management/internal/export"
	"github.com/frahmantamala/document-management/internal/query"
	"github.com/frahmantamala/document-management/internal/storage"
	"github.com/frahmantamala/document-management/internal/storage/local"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

type failingCreate struct {
	document.RepositoryAPI
}

func (failingCreate) Create(context.Context, *documentDatamodel.Document) error {
	return errors.New("insert failed")
}

func storedFiles(root string) []string {
	entries, err := os.ReadDir(filepath.Join(root, "documents"))
	if os.IsNotExist(err) {
		return nil
	}
	Expect(err).NotTo(HaveOccurred())
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

var _ = Describe("Service", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		root    string
		store   *local.Store
		service *document.Service
	)

	BeforeEach(func() {
		ctx = internal.ContextWithPrincipal(context.Background(), &internal.Principal{UserID: 7, Roles: []string{internal.RoleWorker}})
		db = openDB()
		root = GinkgoT().TempDir()

		var err error
		store, err = local.New(root, "http://docs.test")
		Expect(err).NotTo(HaveOccurred())
		registry, err := storage.NewRegistry(storage.TypeLocal, store)
		Expect(err).NotTo(HaveOccurred())
		service = document.NewService(documentPostgres.NewDocumentRepository(db), database.NewTransactor(db), registry, allowedTypes, quietLogger)
	})

	upload := func(name string, size int) *document.Document {
		doc, err := service.Upload(ctx, document.UploadRequest{
			Name: name, MimeType: "application/pdf", Data: bytes.Repeat([]byte("a"), size),
		})
		Expect(err).NotTo(HaveOccurred())
		return doc
	}

	Describe("Upload", func() {
		It("stores bytes under a fresh key and records the owner", func() {
			doc := upload("Report.PDF", 64)
			Expect(doc.CreatedBy).To(Equal(int64(7)))
			Expect(doc.Size).To(Equal(int64(64)))
			Expect(doc.StorageType).To(Equal("local"))
			Expect(doc.URL).To(Equal("http://docs.test/api/documents/" + strconv.FormatInt(doc.ID, 10)))

			files := storedFiles(root)
			Expect(files).To(HaveLen(1))
			Expect(files[0]).To(HaveSuffix(".pdf"))
			Expect(files[0]).NotTo(ContainSubstring("Report"))
		})

		It("rejects mime types outside the allow list", func() {
			_, err := service.Upload(ctx, document.UploadRequest{Name: "x.exe", MimeType: "application/x-msdownload", Data: []byte("MZ")})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(422))
			Expect(appErr.Details.(internal.ValidationErrors).FieldMessages()).To(HaveKey("file"))
			Expect(storedFiles(root)).To(BeEmpty())
		})

		It("rejects unknown storage types", func() {
			_, err := service.Upload(ctx, document.UploadRequest{Name: "a.txt", MimeType: "text/plain", Data: []byte("a"), StorageType: "gdrive"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Details.(internal.ValidationErrors).FieldMessages()).To(HaveKey("storage_type"))
		})

		It("needs an authenticated owner", func() {
			_, err := service.Upload(context.Background(), document.UploadRequest{Name: "a.txt", MimeType: "text/plain", Data: []byte("a")})
			Expect(err).To(MatchError(internal.ErrUnauthorized))
		})

		It("removes the bytes when the row cannot be written", func() {
			registry, err := storage.NewRegistry(storage.TypeLocal, store)
			Expect(err).NotTo(HaveOccurred())
			broken := document.NewService(failingCreate{documentPostgres.NewDocumentRepository(db)}, database.NewTransactor(db), registry, allowedTypes, quietLogger)

			_, err = broken.Upload(ctx, document.UploadRequest{Name: "a.txt", MimeType: "text/plain", Data: []byte("a")})
			Expect(err).To(HaveOccurred())
			Expect(storedFiles(root)).To(BeEmpty())
		})
	})

	Describe("Search", func() {
		It("filters by a size range", func() {
			upload("small.pdf", 1000)
			mid := upload("mid.pdf", 2000000)
			upload("large.pdf", 3000000)

			page, err := service.Search(ctx, query.Descriptor{
				Search: []query.Predicate{{FieldName: "size", FieldOperator: "between", FieldValue: query.StringValue("1500000;2500000")}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(page.RecordsTotal).To(Equal(int64(3)))
			Expect(page.RecordsFiltered).To(Equal(int64(1)))
			Expect(page.Rows).To(HaveLen(1))
			Expect(page.Rows[0].ID).To(Equal(mid.ID))
		})
	})

	Describe("Update", func() {
		It("swaps the content and removes the previous object", func() {
			doc := upload("a.pdf", 10)
			before := storedFiles(root)

			updated, err := service.Update(ctx, doc.ID, document.UploadRequest{Name: "b.txt", MimeType: "text/plain", Data: []byte("hello")})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Name).To(Equal("b.txt"))
			Expect(updated.Size).To(Equal(int64(5)))

			after := storedFiles(root)
			Expect(after).To(HaveLen(1))
			Expect(after).NotTo(Equal(before))

			_, rc, err := service.Open(ctx, doc.ID)
			Expect(err).NotTo(HaveOccurred())
			defer rc.Close()
			content, err := io.ReadAll(rc)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(content)).To(Equal("hello"))
		})
	})

	Describe("Delete", func() {
		It("soft deletes and keeps the bytes", func() {
			doc := upload("a.pdf", 10)
			deleted, err := service.Delete(ctx, doc.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted.DeletedAt).NotTo(BeNil())
			Expect(storedFiles(root)).To(HaveLen(1))

			_, err = service.Get(ctx, doc.ID)
			Expect(err).To(MatchError(internal.ErrDocumentNotFound))
			_, err = service.Delete(ctx, doc.ID)
			Expect(err).To(MatchError(internal.ErrAlreadyDeleted))
		})
	})

	Describe("artifacts", func() {
		It("stores exports on the default backend and reads them back", func() {
			stored, err := service.StoreArtifact(ctx, export.Artifact{
				Name: "users.xlsx", MimeType: export.MimeXLSX, Data: []byte("sheet"), CreatedBy: 3,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ID).NotTo(BeZero())
			Expect(stored.Size).To(Equal(int64(5)))

			doc, err := service.Get(ctx, stored.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.CreatedBy).To(Equal(int64(3)))

			a, err := service.OpenArtifact(ctx, stored.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Name).To(Equal("users.xlsx"))
			Expect(string(a.Data)).To(Equal("sheet"))
		})

		It("removes the bytes when the enclosing transaction rolls back", func() {
			tx := database.NewTransactor(db)
			err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
				_, err := service.StoreArtifact(ctx, export.Artifact{
					Name: "users.xlsx", MimeType: export.MimeXLSX, Data: []byte("sheet"), CreatedBy: 3,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(storedFiles(root)).To(HaveLen(1))
				return errors.New("task failed after storing")
			})
			Expect(err).To(MatchError("task failed after storing"))

			Expect(storedFiles(root)).To(BeEmpty())
			var rows int64
			Expect(db.Model(&documentDatamodel.Document{}).Count(&rows).Error).To(Succeed())
			Expect(rows).To(BeZero())
		})

		It("keeps the bytes when the enclosing transaction commits", func() {
			tx := database.NewTransactor(db)
			Expect(tx.WithinTransaction(ctx, func(ctx context.Context) error {
				_, err := service.StoreArtifact(ctx, export.Artifact{
					Name: "users.xlsx", MimeType: export.MimeXLSX, Data: []byte("sheet"), CreatedBy: 3,
				})
				return err
			})).To(Succeed())
			Expect(storedFiles(root)).To(HaveLen(1))
		})
	})
})
