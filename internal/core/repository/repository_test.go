package repository_test

import (
	"context"
	"errors"

	"github.com/frahmantamala/document-management/internal/core/database"
	roleDatamodel "github.com/frahmantamala/document-management/internal/core/datamodel/role"
	"github.com/frahmantamala/document-management/internal/core/repository"
	"github.com/frahmantamala/document-management/internal/query"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var roleSchema = query.NewSchema("role", map[string]query.Field{
	"id":    {Kind: query.KindID},
	"name":  {Kind: query.KindString},
	"label": {Kind: query.KindString},
})

var _ = Describe("Repository", func() {
	var (
		ctx  context.Context
		db   *gorm.DB
		repo *repository.Repository[roleDatamodel.Role]
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(db.AutoMigrate(&roleDatamodel.Role{})).To(Succeed())

		repo = repository.New[roleDatamodel.Role](db)
		for _, name := range []string{"admin", "team_leader", "worker"} {
			Expect(repo.Create(ctx, &roleDatamodel.Role{Name: name, Label: name})).To(Succeed())
		}
	})

	Describe("Find", func() {
		It("returns live rows matching the conditions", func() {
			role, err := repo.Find(ctx, clause.Eq{Column: "name", Value: "worker"})
			Expect(err).NotTo(HaveOccurred())
			Expect(role.Name).To(Equal("worker"))
		})

		It("returns ErrNotFound for a missing id", func() {
			_, err := repo.FindByID(ctx, 999)
			Expect(errors.Is(err, repository.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("Delete", func() {
		It("soft deletes and hides the row from live lookups", func() {
			deleted, err := repo.Delete(ctx, 1, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted.DeletedAt.Valid).To(BeTrue())
			Expect(deleted.UpdatedAt).To(BeTemporally("<=", deleted.DeletedAt.Time))

			_, err = repo.FindByID(ctx, 1)
			Expect(errors.Is(err, repository.ErrNotFound)).To(BeTrue())

			still, err := repo.FindByIDUnscoped(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(still.Name).To(Equal("admin"))
		})

		It("reports already-deleted rows", func() {
			_, err := repo.Delete(ctx, 1, false)
			Expect(err).NotTo(HaveOccurred())

			_, err = repo.Delete(ctx, 1, false)
			Expect(errors.Is(err, repository.ErrAlreadyDeleted)).To(BeTrue())
		})

		It("reports missing rows", func() {
			_, err := repo.Delete(ctx, 42, false)
			Expect(errors.Is(err, repository.ErrNotFound)).To(BeTrue())
		})

		It("refuses force deletes", func() {
			_, err := repo.Delete(ctx, 1, true)
			Expect(errors.Is(err, repository.ErrForceDeleteUnsupported)).To(BeTrue())

			_, err = repo.FindByID(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Save", func() {
		It("updates the given columns of a live row", func() {
			saved, err := repo.Save(ctx, 2, map[string]interface{}{"label": "Team Leader"})
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Label).To(Equal("Team Leader"))
			Expect(saved.Name).To(Equal("team_leader"))
		})

		It("does not touch deleted rows", func() {
			_, err := repo.Delete(ctx, 2, false)
			Expect(err).NotTo(HaveOccurred())

			_, err = repo.Save(ctx, 2, map[string]interface{}{"label": "x"})
			Expect(errors.Is(err, repository.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("Get", func() {
		It("reports total and filtered counts", func() {
			q, err := query.Build(roleSchema, query.Descriptor{
				Search: []query.Predicate{{FieldName: "name", FieldOperator: "contains", FieldValue: query.StringValue("er")}},
			})
			Expect(err).NotTo(HaveOccurred())

			page, err := repo.Get(ctx, q)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.RecordsTotal).To(Equal(int64(3)))
			Expect(page.RecordsFiltered).To(Equal(int64(2)))
			Expect(page.RecordsFiltered).To(BeNumerically("<=", page.RecordsTotal))
			Expect(page.Rows).To(HaveLen(2))
		})

		It("pages the filtered rows", func() {
			q, err := query.Build(roleSchema, query.Descriptor{PageNumber: 2, ItemsPerPage: 2})
			Expect(err).NotTo(HaveOccurred())

			page, err := repo.Get(ctx, q)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.RecordsFiltered).To(Equal(int64(3)))
			Expect(page.Rows).To(HaveLen(1))
			Expect(page.Rows[0].Name).To(Equal("worker"))
		})

		It("includes deleted rows only when asked to", func() {
			_, err := repo.Delete(ctx, 3, false)
			Expect(err).NotTo(HaveOccurred())

			live, err := repo.Get(ctx, query.Default())
			Expect(err).NotTo(HaveOccurred())
			Expect(live.RecordsTotal).To(Equal(int64(2)))

			q := query.Default()
			q.IncludeDeleted = true
			all, err := repo.Get(ctx, q)
			Expect(err).NotTo(HaveOccurred())
			Expect(all.RecordsTotal).To(Equal(int64(3)))
		})
	})

	Describe("Transactor", func() {
		It("rolls back every write on error", func() {
			tx := database.NewTransactor(db)
			boom := errors.New("boom")

			err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
				Expect(repo.Create(ctx, &roleDatamodel.Role{Name: "auditor", Label: "Auditor"})).To(Succeed())
				_, err := repo.Delete(ctx, 1, false)
				Expect(err).NotTo(HaveOccurred())
				return boom
			})
			Expect(err).To(MatchError(boom))

			_, err = repo.Find(ctx, clause.Eq{Column: "name", Value: "auditor"})
			Expect(errors.Is(err, repository.ErrNotFound)).To(BeTrue())
			_, err = repo.FindByID(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
		})

		It("commits on success", func() {
			tx := database.NewTransactor(db)
			err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
				return repo.Create(ctx, &roleDatamodel.Role{Name: "auditor", Label: "Auditor"})
			})
			Expect(err).NotTo(HaveOccurred())

			exists, err := repo.Exists(ctx, clause.Eq{Column: "name", Value: "auditor"})
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())
		})
	})
})
