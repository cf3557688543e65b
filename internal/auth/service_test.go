package auth_test

import (
	"context"
	"strings"
	"time"

	"github.com/frahmantamala/document-management/internal"
	"github.com/frahmantamala/document-management/internal/auth"
	"github.com/frahmantamala/document-management/internal/core/database"
	"github.com/frahmantamala/document-management/internal/mail"
	"github.com/frahmantamala/document-management/internal/role"
	rolePostgres "github.com/frahmantamala/document-management/internal/role/postgres"
	"github.com/frahmantamala/document-management/internal/token"
	"github.com/frahmantamala/document-management/internal/user"
	userPostgres "github.com/frahmantamala/document-management/internal/user/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

var _ = Describe("Service", func() {
	var (
		ctx     context.Context
		now     time.Time
		users   *user.Service
		tasks   *recordingTasks
		service *auth.Service
		alice   *user.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Now()
		db := openDB()
		tx := database.NewTransactor(db)
		hasher := auth.NewPasswordHasher("pepper", bcrypt.MinCost)
		tasks = &recordingTasks{}

		roles := role.NewService(rolePostgres.NewRoleRepository(db), tx, quietLogger)
		users = user.NewService(userPostgres.NewUserRepository(db), tx, roles, hasher, tasks, 8, quietLogger)
		reset := token.NewSerializer("secret", auth.ResetSalt, 24*time.Hour).WithClock(func() time.Time { return now })
		service = auth.NewService(users, hasher,
			auth.NewJWTTokenGenerator("a", "r", 15*time.Minute, time.Hour),
			auth.NewMemoryBlocklist(64, 15*time.Minute),
			reset, tasks, auth.Config{ResetURL: "http://docs.test/api/auth/reset_password"}, quietLogger)

		admin, err := roles.Create(ctx, role.CreateRequest{Label: "admin"})
		Expect(err).NotTo(HaveOccurred())
		alice, err = users.Create(ctx, user.CreateRequest{
			Name: "Alice", LastName: "Johnson", Email: "alice@x.test", Password: "P@ssw0rd1",
			Genre: "f", BirthDate: user.Date(time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC)), RoleID: admin.ID,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	login := func(password string) (auth.AuthTokens, error) {
		return service.Login(ctx, auth.LoginRequest{Email: "alice@x.test", Password: password})
	}

	Describe("Login", func() {
		It("issues tokens that authenticate the user with its roles", func() {
			tokens, err := login("P@ssw0rd1")
			Expect(err).NotTo(HaveOccurred())
			Expect(tokens.AccessToken).NotTo(BeEmpty())
			Expect(tokens.RefreshToken).NotTo(BeEmpty())

			p, err := service.Authenticate(ctx, tokens.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.UserID).To(Equal(alice.ID))
			Expect(p.Roles).To(ConsistOf(internal.RoleAdmin))
		})

		It("answers invalid credentials for a wrong password or unknown email", func() {
			_, err := login("nope-nope")
			Expect(err).To(MatchError(internal.ErrInvalidCredentials))

			_, err = service.Login(ctx, auth.LoginRequest{Email: "bob@x.test", Password: "P@ssw0rd1"})
			Expect(err).To(MatchError(internal.ErrInvalidCredentials))
		})

		It("refuses inactive and deleted users", func() {
			inactive := false
			_, err := users.Update(ctx, alice.ID, user.UpdateRequest{Active: &inactive})
			Expect(err).NotTo(HaveOccurred())
			_, err = login("P@ssw0rd1")
			Expect(err).To(MatchError(internal.ErrInvalidCredentials))

			_, err = users.Delete(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = login("P@ssw0rd1")
			Expect(err).To(MatchError(internal.ErrInvalidCredentials))
		})
	})

	It("refreshes the access token only with a refresh token", func() {
		tokens, err := login("P@ssw0rd1")
		Expect(err).NotTo(HaveOccurred())

		refreshed, err := service.Refresh(ctx, auth.RefreshRequest{RefreshToken: tokens.RefreshToken})
		Expect(err).NotTo(HaveOccurred())
		Expect(refreshed.AccessToken).NotTo(BeEmpty())
		Expect(refreshed.RefreshToken).To(BeEmpty())

		_, err = service.Refresh(ctx, auth.RefreshRequest{RefreshToken: tokens.AccessToken})
		Expect(err).To(MatchError(internal.ErrInvalidToken))
	})

	It("revokes the access token on logout", func() {
		tokens, err := login("P@ssw0rd1")
		Expect(err).NotTo(HaveOccurred())
		p, err := service.Authenticate(ctx, tokens.AccessToken)
		Expect(err).NotTo(HaveOccurred())

		authed := internal.ContextWithPrincipal(ctx, p)
		Expect(service.Logout(authed)).To(Succeed())
		Expect(service.Logout(authed)).To(Succeed())

		_, err = service.Authenticate(ctx, tokens.AccessToken)
		Expect(err).To(MatchError(internal.ErrInvalidToken))
	})

	Describe("password reset", func() {
		resetToken := func() string {
			Expect(tasks.calls).To(HaveLen(1))
			Expect(tasks.calls[0].name).To(Equal(mail.TaskResetPassword))
			args := tasks.calls[0].args.(mail.ResetPasswordArgs)
			Expect(args.Email).To(Equal("alice@x.test"))
			Expect(args.URL).To(HavePrefix("http://docs.test/api/auth/reset_password/"))
			return args.URL[strings.LastIndex(args.URL, "/")+1:]
		}

		It("runs the whole cycle and invalidates old tokens", func() {
			before, err := login("P@ssw0rd1")
			Expect(err).NotTo(HaveOccurred())

			Expect(service.RequestReset(ctx, auth.ResetRequest{Email: "alice@x.test"})).To(Succeed())
			signed := resetToken()
			Expect(service.CheckReset(ctx, signed)).To(Succeed())

			after, err := service.ConfirmReset(ctx, signed, auth.ConfirmResetRequest{Password: "N3w-p@ssword"})
			Expect(err).NotTo(HaveOccurred())
			Expect(after.AccessToken).NotTo(BeEmpty())

			_, err = service.Authenticate(ctx, before.AccessToken)
			Expect(err).To(MatchError(internal.ErrInvalidToken))
			_, err = service.Authenticate(ctx, after.AccessToken)
			Expect(err).NotTo(HaveOccurred())

			_, err = login("P@ssw0rd1")
			Expect(err).To(MatchError(internal.ErrInvalidCredentials))
			_, err = login("N3w-p@ssword")
			Expect(err).NotTo(HaveOccurred())

			Expect(service.CheckReset(ctx, signed)).To(MatchError(internal.ErrInvalidToken))
		})

		It("stays silent for unknown emails", func() {
			Expect(service.RequestReset(ctx, auth.ResetRequest{Email: "ghost@x.test"})).To(Succeed())
			Expect(tasks.calls).To(BeEmpty())
		})

		It("answers 400 for expired tokens", func() {
			Expect(service.RequestReset(ctx, auth.ResetRequest{Email: "alice@x.test"})).To(Succeed())
			signed := resetToken()

			now = now.Add(25 * time.Hour)
			err := service.CheckReset(ctx, signed)
			Expect(err).To(MatchError(internal.ErrResetTokenExpired))
			appErr, _ := internal.IsAppError(err)
			Expect(appErr.StatusCode).To(Equal(400))
		})

		It("rejects garbage tokens", func() {
			Expect(service.CheckReset(ctx, "not-a-token")).To(MatchError(internal.ErrInvalidToken))
		})
	})
})
