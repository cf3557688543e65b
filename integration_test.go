//go:build integration

package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"regexp"
	"sync"
	"time"

	"github.com/frahmantamala/document-management/db/migrations"
	"github.com/frahmantamala/document-management/internal"
	"github.com/frahmantamala/document-management/internal/auth"
	"github.com/frahmantamala/document-management/internal/core/database"
	"github.com/frahmantamala/document-management/internal/core/events"
	"github.com/frahmantamala/document-management/internal/document"
	documentPostgres "github.com/frahmantamala/document-management/internal/document/postgres"
	"github.com/frahmantamala/document-management/internal/export"
	"github.com/frahmantamala/document-management/internal/mail"
	"github.com/frahmantamala/document-management/internal/role"
	rolePostgres "github.com/frahmantamala/document-management/internal/role/postgres"
	"github.com/frahmantamala/document-management/internal/storage"
	"github.com/frahmantamala/document-management/internal/storage/local"
	"github.com/frahmantamala/document-management/internal/task"
	"github.com/frahmantamala/document-management/internal/token"
	"github.com/frahmantamala/document-management/internal/transport"
	"github.com/frahmantamala/document-management/internal/transport/rest"
	"github.com/frahmantamala/document-management/internal/user"
	userPostgres "github.com/frahmantamala/document-management/internal/user/postgres"
	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

const adminPassword = "s3cret-admin"

var _ = Describe("Document management API", Ordered, func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		server *httptest.Server
		access string
		outbox = &mailbox{}
	)

	BeforeAll(func() {
		ctx, cancel = context.WithCancel(context.Background())
		lg := slog.New(slog.NewTextHandler(GinkgoWriter, nil))

		container, err := postgres.Run(ctx,
			"docker.io/postgres:16-alpine",
			postgres.WithDatabase("documents_test"),
			postgres.WithUsername("documents"),
			postgres.WithPassword("test-password"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = container.Terminate(context.Background()) })

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
		Expect(err).NotTo(HaveOccurred())
		goose.SetBaseFS(migrations.FS)
		goose.SetTableName("schema_migrations")
		Expect(goose.UpContext(ctx, sqlDB, ".")).To(Succeed())
		Expect(sqlDB.Close()).To(Succeed())

		db, err := database.Open(internal.DatabaseConfig{Source: dsn, MaxOpenConns: 5, MaxIdleConns: 2})
		Expect(err).NotTo(HaveOccurred())
		tx := database.NewTransactor(db)

		bus := events.NewEventBus(lg)
		pool := task.NewPool(2, 0, lg)
		engine := task.NewEngine(pool, task.NewMemoryStore(), tx, bus, lg)
		go func() { _ = engine.Run(ctx) }()
		DeferCleanup(func() {
			cancel()
			_ = pool.Close()
			bus.Wait()
		})

		disk, err := local.New(GinkgoT().TempDir(), "http://files.test")
		Expect(err).NotTo(HaveOccurred())
		registry, err := storage.NewRegistry(storage.TypeLocal, disk)
		Expect(err).NotTo(HaveOccurred())

		hasher := auth.NewPasswordHasher("pepper", bcrypt.MinCost)
		roles := role.NewService(rolePostgres.NewRoleRepository(db), tx, lg)
		users := user.NewService(userPostgres.NewUserRepository(db), tx, roles, hasher, engine, 8, lg)
		documents := document.NewService(documentPostgres.NewDocumentRepository(db), tx, registry,
			internal.DefaultAllowedMimeTypes, lg)
		authService := auth.NewService(users, hasher,
			auth.NewJWTTokenGenerator("access", "refresh", 15*time.Minute, time.Hour),
			auth.NewMemoryBlocklist(100, 15*time.Minute),
			token.NewSerializer("secret", auth.ResetSalt, time.Hour),
			engine, auth.Config{ResetURL: "http://app.test/api/auth/reset_password"}, lg)

		export.NewTasks(users, documents, export.NewConverter("soffice", time.Minute), lg).Register(engine)
		mail.NewTasks(outbox, documents, lg).Register(engine)

		var adminRoleID int64
		for _, name := range []string{internal.RoleAdmin, internal.RoleTeamLeader, internal.RoleWorker} {
			r, _, err := roles.EnsureRole(ctx, name, name)
			Expect(err).NotTo(HaveOccurred())
			if name == internal.RoleAdmin {
				adminRoleID = r.ID
			}
		}
		_, err = users.Create(ctx, user.CreateRequest{
			Name: "Ada", LastName: "Admin", Email: "ada@x.test", Password: adminPassword, Genre: "f",
			BirthDate: user.Date(time.Date(1985, 3, 14, 0, 0, 0, 0, time.UTC)), RoleID: adminRoleID,
		})
		Expect(err).NotTo(HaveOccurred())

		base := transport.NewBaseHandler(lg)
		router := chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.Handlers{
			Auth:     auth.NewHandler(base, authService),
			RBAC:     auth.NewRBACAuthorization(base, lg),
			User:     user.NewHandler(base, users),
			Role:     role.NewHandler(base, roles),
			Document: document.NewHandler(base, documents),
			Task:     task.NewStatusHandler(base, engine),
			Health: rest.NewHealthHandler(map[string]rest.Checker{
				"postgres": func(ctx context.Context) error {
					raw, err := db.DB()
					if err != nil {
						return err
					}
					return raw.PingContext(ctx)
				},
			}),
		}, lg)
		server = httptest.NewServer(router)
		DeferCleanup(server.Close)
	})

	do := func(method, path, contentType string, body io.Reader) *http.Response {
		req, err := http.NewRequestWithContext(ctx, method, server.URL+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if access != "" {
			req.Header.Set("Authorization", "Bearer "+access)
		}
		resp, err := server.Client().Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}
	doJSON := func(method, path string, body interface{}) *http.Response {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		return do(method, path, "application/json", bytes.NewReader(raw))
	}
	decode := func(resp *http.Response, v interface{}) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	It("reports healthy dependencies", func() {
		resp := do(http.MethodGet, "/api/health", "", nil)
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	login := func(password string) (int, auth.AuthTokens) {
		resp := doJSON(http.MethodPost, "/api/auth/login", auth.LoginRequest{Email: "ada@x.test", Password: password})
		var tokens auth.AuthTokens
		decode(resp, &tokens)
		return resp.StatusCode, tokens
	}

	It("logs the administrator in", func() {
		status, tokens := login(adminPassword)
		Expect(status).To(Equal(http.StatusOK))
		Expect(tokens.AccessToken).NotTo(BeEmpty())
		Expect(tokens.RefreshToken).NotTo(BeEmpty())
		access = tokens.AccessToken
	})

	It("creates and searches users", func() {
		var roles transport.ListResponse
		resp := doJSON(http.MethodPost, "/api/roles/search", map[string]interface{}{
			"search": []map[string]string{{"field_name": "name", "field_operator": "eq", "field_value": internal.RoleWorker}},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		decode(resp, &roles)
		Expect(roles.RecordsFiltered).To(BeEquivalentTo(1))
		workerID := roles.Data.([]interface{})[0].(map[string]interface{})["id"]

		resp = doJSON(http.MethodPost, "/api/users", map[string]interface{}{
			"name": "Bob", "last_name": "Builder", "email": "bob@x.test", "password": "bob-password",
			"genre": "m", "birth_date": "1990-04-01", "role_id": workerID,
		})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		resp.Body.Close()

		resp = doJSON(http.MethodPost, "/api/users/search", map[string]interface{}{
			"search": []map[string]string{{"field_name": "email", "field_operator": "contains", "field_value": "x.test"}},
			"order":  []map[string]string{{"field_name": "email", "sorting": "asc"}},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var page transport.ListResponse
		decode(resp, &page)
		Expect(page.RecordsFiltered).To(BeEquivalentTo(2))
	})

	It("stores and serves documents", func() {
		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="file"; filename="notes.txt"`)
		h.Set("Content-Type", "text/plain")
		part, err := mw.CreatePart(h)
		Expect(err).NotTo(HaveOccurred())
		_, _ = part.Write([]byte("integration notes"))
		Expect(mw.Close()).To(Succeed())

		resp := do(http.MethodPost, "/api/documents", mw.FormDataContentType(), body)
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var created transport.DataResponse
		decode(resp, &created)
		id := created.Data.(map[string]interface{})["id"].(float64)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/documents/"+jsonNumber(id), nil)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Authorization", "Bearer "+access)
		req.Header.Set("Accept", "application/octet-stream")
		raw, err := server.Client().Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer raw.Body.Close()
		Expect(raw.StatusCode).To(Equal(http.StatusOK))
		data, _ := io.ReadAll(raw.Body)
		Expect(string(data)).To(Equal("integration notes"))
	})

	It("runs a user export to completion", func() {
		resp := doJSON(http.MethodPost, "/api/users/xlsx", map[string]interface{}{})
		Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
		var ack transport.TaskResponse
		decode(resp, &ack)
		Expect(ack.Task).NotTo(BeEmpty())

		var progress task.Progress
		Eventually(func() task.State {
			r := do(http.MethodGet, "/api/tasks/status/"+ack.Task, "", nil)
			var out struct {
				Data task.Progress `json:"data"`
			}
			decode(r, &out)
			progress = out.Data
			return out.Data.State
		}).WithTimeout(30 * time.Second).WithPolling(200 * time.Millisecond).Should(Equal(task.StateSuccess))

		var stored export.Stored
		Expect(json.Unmarshal(progress.Result, &stored)).To(Succeed())
		Expect(stored.MimeType).To(Equal("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
		Expect(stored.Size).To(BeNumerically(">", 0))
	})

	It("rejects the access token after logout", func() {
		resp := do(http.MethodPost, "/api/auth/logout", "", nil)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		resp = doJSON(http.MethodPost, "/api/users/search", map[string]interface{}{})
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		access = ""
	})

	It("resets a forgotten password through the mailed link", func() {
		resp := doJSON(http.MethodPost, "/api/auth/reset_password", auth.ResetRequest{Email: "ada@x.test"})
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

		var link string
		Eventually(func() string {
			link = outbox.resetToken()
			return link
		}).WithTimeout(10 * time.Second).WithPolling(100 * time.Millisecond).ShouldNot(BeEmpty())

		resp = do(http.MethodGet, "/api/auth/reset_password/"+link, "", nil)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		resp = doJSON(http.MethodPost, "/api/auth/reset_password/"+link, auth.ConfirmResetRequest{Password: "n3w-admin-pass"})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var fresh auth.AuthTokens
		decode(resp, &fresh)
		Expect(fresh.AccessToken).NotTo(BeEmpty())

		status, _ := login(adminPassword)
		Expect(status).To(Equal(http.StatusUnauthorized))
		status, tokens := login("n3w-admin-pass")
		Expect(status).To(Equal(http.StatusOK))
		Expect(tokens.AccessToken).NotTo(BeEmpty())

		resp = doJSON(http.MethodPost, "/api/auth/reset_password/"+link, auth.ConfirmResetRequest{Password: "an0ther-pass"})
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})
})

var resetLink = regexp.MustCompile(`/api/auth/reset_password/([^\s"<]+)`)

// mailbox keeps sent mail in memory.
type mailbox struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *mailbox) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mailbox) resetToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.sent {
		if match := resetLink.FindStringSubmatch(msg.Text); match != nil {
			return match[1]
		}
	}
	return ""
}

func jsonNumber(f float64) string {
	raw, _ := json.Marshal(int64(f))
	return string(raw)
}
