package user_test

import (
	"context"
	"encoding/json"
	"time"

	"github.com/frahmantamala/document-management/internal"
	"github.com/frahmantamala/document-management/internal/core/database"
	userDatamodel "github.com/frahmantamala/document-management/internal/core/datamodel/user"
	"github.com/frahmantamala/document-management/internal/export"
	"github.com/frahmantamala/document-management/internal/mail"
	"github.com/frahmantamala/document-management/internal/query"
	"github.com/frahmantamala/document-management/internal/role"
	rolePostgres "github.com/frahmantamala/document-management/internal/role/postgres"
	"github.com/frahmantamala/document-management/internal/task"
	"github.com/frahmantamala/document-management/internal/user"
	userPostgres "github.com/frahmantamala/document-management/internal/user/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

func birth(y int) user.Date {
	return user.Date(time.Date(y, 1, 2, 0, 0, 0, 0, time.UTC))
}

var _ = Describe("Service", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		roles     *role.Service
		service   *user.Service
		submitter *recordingSubmitter
		adminRole int64
		workerID  int64
	)

	newUser := func(name, email string, roleID int64) *user.User {
		u, err := service.Create(ctx, user.CreateRequest{
			Name: name, LastName: "Doe", Email: email, Password: "P@ssw0rd1",
			Genre: "f", BirthDate: birth(1990), RoleID: roleID,
		})
		Expect(err).NotTo(HaveOccurred())
		return u
	}

	BeforeEach(func() {
		ctx = context.Background()
		db = openDB()
		tx := database.NewTransactor(db)
		roles = role.NewService(rolePostgres.NewRoleRepository(db), tx, quietLogger)
		submitter = &recordingSubmitter{}
		service = user.NewService(userPostgres.NewUserRepository(db), tx, roles, prefixHasher{}, submitter, 8, quietLogger)

		admin, err := roles.Create(ctx, role.CreateRequest{Label: "admin"})
		Expect(err).NotTo(HaveOccurred())
		worker, err := roles.Create(ctx, role.CreateRequest{Label: "worker"})
		Expect(err).NotTo(HaveOccurred())
		adminRole, workerID = admin.ID, worker.ID
	})

	Describe("Create", func() {
		It("stores a lowercased email, a hash, a uniquifier and the role", func() {
			created, err := service.Create(ctx, user.CreateRequest{
				Name: "Alice", LastName: "Johnson", Email: "Alice@X.test", Password: "P@ssw0rd1",
				Genre: "f", BirthDate: birth(1990), RoleID: adminRole,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(created.Email).To(Equal("alice@x.test"))
			Expect(created.Active).To(BeTrue())
			Expect(created.Roles).To(HaveLen(1))
			Expect(created.Roles[0].Name).To(Equal("admin"))

			stored, err := service.FindByEmail(ctx, "ALICE@x.test")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Password).To(Equal("hashed:P@ssw0rd1"))
			Expect(stored.FsUniquifier).NotTo(BeEmpty())
		})

		It("records the creator", func() {
			creator := newUser("Root", "root@x.test", adminRole)
			ctx = internal.ContextWithPrincipal(ctx, &internal.Principal{UserID: creator.ID, Roles: []string{"admin"}})
			created := newUser("Bob", "bob@x.test", workerID)
			Expect(created.CreatedBy).NotTo(BeNil())
			Expect(*created.CreatedBy).To(Equal(creator.ID))
		})

		It("rejects a taken email", func() {
			newUser("Alice", "alice@x.test", adminRole)
			_, err := service.Create(ctx, user.CreateRequest{
				Name: "Other", LastName: "Alice", Email: "ALICE@x.test", Password: "P@ssw0rd1",
				Genre: "f", BirthDate: birth(1991), RoleID: adminRole,
			})
			Expect(err).To(MatchError(internal.ErrEmailTaken))
		})

		It("requires a live role", func() {
			_, err := roles.Delete(ctx, workerID)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Create(ctx, user.CreateRequest{
				Name: "Al", LastName: "B", Email: "al@x.test", Password: "P@ssw0rd1",
				Genre: "m", BirthDate: birth(1990), RoleID: workerID,
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))

			var count int64
			db.Model(&userDatamodel.User{}).Count(&count)
			Expect(count).To(BeZero())
		})

		It("reports every invalid field", func() {
			_, err := service.Create(ctx, user.CreateRequest{Email: "nope", Password: "short", Genre: "x"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			msgs := appErr.Details.(internal.ValidationErrors).FieldMessages()
			Expect(msgs).To(HaveKey("name"))
			Expect(msgs).To(HaveKey("email"))
			Expect(msgs).To(HaveKey("genre"))
			Expect(msgs).To(HaveKey("password"))
			Expect(msgs).To(HaveKey("birth_date"))
			Expect(msgs).To(HaveKey("role_id"))
		})
	})

	Describe("Update", func() {
		It("rotates the uniquifier when the password changes", func() {
			u := newUser("Alice", "alice@x.test", adminRole)
			before, _ := service.FindByID(ctx, u.ID)

			pw := "Newp@ssw0rd"
			_, err := service.Update(ctx, u.ID, user.UpdateRequest{Password: &pw})
			Expect(err).NotTo(HaveOccurred())

			after, _ := service.FindByID(ctx, u.ID)
			Expect(after.Password).To(Equal("hashed:Newp@ssw0rd"))
			Expect(after.FsUniquifier).NotTo(Equal(before.FsUniquifier))
		})

		It("replaces the role", func() {
			u := newUser("Alice", "alice@x.test", adminRole)
			updated, err := service.Update(ctx, u.ID, user.UpdateRequest{RoleID: &workerID})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Roles).To(HaveLen(1))
			Expect(updated.Roles[0].Name).To(Equal("worker"))
		})

		It("keeps the row unchanged when validation fails", func() {
			u := newUser("Alice", "alice@x.test", adminRole)
			bad := "x"
			_, err := service.Update(ctx, u.ID, user.UpdateRequest{Genre: &bad})
			Expect(err).To(HaveOccurred())
			found, _ := service.Get(ctx, u.ID)
			Expect(found.Genre).To(Equal("f"))
		})
	})

	Describe("Delete", func() {
		It("soft-deletes once and hides the user", func() {
			u := newUser("Alice", "alice@x.test", adminRole)
			deleted, err := service.Delete(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted.DeletedAt).NotTo(BeNil())
			Expect(deleted.UpdatedAt).To(BeTemporally("<=", *deleted.DeletedAt))

			_, err = service.Delete(ctx, u.ID)
			Expect(err).To(MatchError(internal.ErrAlreadyDeleted))
			_, err = service.Get(ctx, u.ID)
			Expect(err).To(MatchError(internal.ErrUserNotFound))
		})
	})

	Describe("Search", func() {
		BeforeEach(func() {
			newUser("Alice Johnson", "alice@x.test", adminRole)
			newUser("John Smith", "john@x.test", workerID)
			michael := newUser("Michael Williams", "michael@x.test", workerID)
			_, err := service.Delete(ctx, michael.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		contains := query.Descriptor{Search: []query.Predicate{{FieldName: "name", FieldOperator: "contains", FieldValue: query.StringValue("e")}}}

		It("shows deleted users to admins", func() {
			adminCtx := internal.ContextWithPrincipal(ctx, &internal.Principal{UserID: 1, Roles: []string{"admin"}})
			page, err := service.Search(adminCtx, contains)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.RecordsTotal).To(Equal(int64(3)))
			Expect(page.RecordsFiltered).To(Equal(int64(2)))
			names := []string{page.Rows[0].Name, page.Rows[1].Name}
			Expect(names).To(ConsistOf("Alice Johnson", "Michael Williams"))
		})

		It("hides deleted users from other roles", func() {
			leaderCtx := internal.ContextWithPrincipal(ctx, &internal.Principal{UserID: 2, Roles: []string{"team_leader"}})
			page, err := service.Search(leaderCtx, contains)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.RecordsTotal).To(Equal(int64(2)))
			Expect(page.RecordsFiltered).To(Equal(int64(1)))
			Expect(page.Rows[0].Name).To(Equal("Alice Johnson"))
		})
	})

	Describe("Export", func() {
		var requester *user.User

		BeforeEach(func() {
			requester = newUser("Alice", "alice@x.test", adminRole)
			ctx = internal.ContextWithPrincipal(ctx, &internal.Principal{UserID: requester.ID, Email: requester.Email, Roles: []string{"admin"}})
		})

		It("enqueues a single spreadsheet task", func() {
			id, err := service.Export(ctx, user.ExportRequest{Kind: user.ExportXLSX})
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("task-1"))

			simple, ok := submitter.nodes[0].(task.Simple)
			Expect(ok).To(BeTrue())
			Expect(simple.Name).To(Equal(export.TaskUsersXLSX))
			var args export.UsersArgs
			Expect(json.Unmarshal(simple.Args, &args)).To(Succeed())
			Expect(args.RequestedBy).To(Equal(requester.ID))
		})

		It("fans out both documents and mails them", func() {
			_, err := service.Export(ctx, user.ExportRequest{Kind: user.ExportWordAndXLSX, ToPDF: true})
			Expect(err).NotTo(HaveOccurred())

			chord, ok := submitter.nodes[0].(task.ChordNode)
			Expect(ok).To(BeTrue())
			Expect(chord.Group).To(HaveLen(2))
			Expect(chord.Group[0].Name).To(Equal(export.TaskUsersWord))
			Expect(chord.Group[1].Name).To(Equal(export.TaskUsersXLSX))
			callback := chord.Callback.(task.Simple)
			Expect(callback.Name).To(Equal(mail.TaskExportReady))
			Expect(string(callback.Args)).To(ContainSubstring("alice@x.test"))
		})

		It("rejects an invalid search before enqueueing", func() {
			bad := &query.Descriptor{Search: []query.Predicate{{FieldName: "shoe_size", FieldOperator: "eq", FieldValue: query.StringValue("9")}}}
			_, err := service.Export(ctx, user.ExportRequest{Kind: user.ExportWord, Search: bad})
			Expect(err).To(HaveOccurred())
			Expect(submitter.nodes).To(BeEmpty())
		})

		It("lists rows with role names, deleted users included for admins", func() {
			gone := newUser("Gone", "gone@x.test", workerID)
			_, err := service.Delete(ctx, gone.ID)
			Expect(err).NotTo(HaveOccurred())

			rows, err := service.ExportRows(ctx, requester.ID, query.Descriptor{})
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
			Expect(rows[0].Role).To(Equal("admin"))
			Expect(rows[1].DeletedAt).NotTo(BeNil())
			Expect(rows[0].BirthDate).NotTo(BeNil())
		})
	})
})
