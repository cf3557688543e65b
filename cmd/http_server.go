package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	"github.com/frahmantamala/document-management/internal/storage/gdrive"
	"github.com/frahmantamala/document-management/internal/storage/local"
	"github.com/frahmantamala/document-management/internal/task"
	"github.com/frahmantamala/document-management/internal/task/rabbitmq"
	taskRedis "github.com/frahmantamala/document-management/internal/task/redis"
	"github.com/frahmantamala/document-management/internal/token"
	"github.com/frahmantamala/document-management/internal/transport"
	"github.com/frahmantamala/document-management/internal/transport/rest"
	"github.com/frahmantamala/document-management/internal/user"
	userPostgres "github.com/frahmantamala/document-management/internal/user/postgres"
	"github.com/frahmantamala/document-management/pkg/logger"

	"github.com/go-chi/chi"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const blocklistSize = 100_000

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long: `Start the HTTP server to handle API requests. Without a broker url the
task workers run inside the server process.`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config    *internal.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Router    *chi.Mux
	Logger    *slog.Logger
	Bus       *events.EventBus
	Broker    task.Broker
	Engine    *task.Engine
	Storage   *storage.Registry
	Hasher    *auth.PasswordHasher
	Roles     *role.Service
	Users     *user.Service
	Documents *document.Service
	Auth      *auth.Service
}

// InProcess reports whether tasks are consumed by the server itself.
func (d *Dependencies) InProcess() bool {
	return d.Config.Worker.BrokerURL == ""
}

func (d *Dependencies) Close() {
	if err := d.Broker.Close(); err != nil {
		d.Logger.Error("broker close error", "error", err)
	}
	d.Bus.Wait()
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if sqlDB, err := d.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			d.Logger.Error("database close error", "error", err)
		}
	}
}

func startHTTPServer() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	setupRoutes(deps)

	workerDone := make(chan error, 1)
	if deps.InProcess() {
		go func() { workerDone <- deps.Engine.Run(ctx) }()
	} else {
		close(workerDone)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "in_process_workers", deps.InProcess())

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		deps.Logger.Info("Received signal, shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			stop()
			<-workerDone
			deps.Close()
			os.Exit(1)
		}
	}

	stop()
	if err := <-workerDone; err != nil {
		deps.Logger.Error("task workers stopped with error", "error", err)
	}
	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) {
	base := transport.NewBaseHandler(deps.Logger)

	checks := map[string]rest.Checker{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := deps.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		}
	}

	rest.RegisterAllRoutes(deps.Router, rest.Handlers{
		Auth:     auth.NewHandler(base, deps.Auth),
		RBAC:     auth.NewRBACAuthorization(base, deps.Logger),
		User:     user.NewHandler(base, deps.Users),
		Role:     role.NewHandler(base, deps.Roles),
		Document: document.NewHandler(base, deps.Documents),
		Task:     task.NewStatusHandler(base, deps.Engine),
		Health:   rest.NewHealthHandler(checks),
	}, deps.Logger)
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	config.Worker.Concurrency = getIntFlag(workerConcurrency, config.Worker.Concurrency)
	lg := logger.L()

	db, err := database.Open(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	tx := database.NewTransactor(db)

	deps := &Dependencies{
		Config: config,
		DB:     db,
		Router: chi.NewRouter(),
		Logger: lg,
		Bus:    events.NewEventBus(lg),
	}
	task.SubscribeMetrics(deps.Bus)

	if config.Worker.ResultBackend != "" {
		deps.Redis, err = taskRedis.NewClient(config.Worker.ResultBackend)
		if err != nil {
			return nil, fmt.Errorf("failed to connect result backend: %w", err)
		}
	}

	var store task.ResultStore = task.NewMemoryStore()
	var blocklist auth.Blocklist = auth.NewMemoryBlocklist(blocklistSize, config.Security.AccessTokenDuration)
	if deps.Redis != nil {
		store = taskRedis.NewStore(deps.Redis, config.Worker.ResultTTL)
		blocklist = auth.NewRedisBlocklist(deps.Redis)
	}

	if config.Worker.BrokerURL == "" {
		deps.Broker = task.NewPool(config.Worker.Concurrency, 0, lg)
	} else {
		if deps.Redis == nil {
			lg.Warn("broker configured without result backend; task status is only visible to this process")
		}
		deps.Broker, err = rabbitmq.Dial(config.Worker.BrokerURL, config.Worker.Queue, config.Worker.Concurrency, lg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect broker: %w", err)
		}
	}
	deps.Engine = task.NewEngine(deps.Broker, store, tx, deps.Bus, lg)

	deps.Storage, err = newStorage(ctx, config, lg)
	if err != nil {
		return nil, err
	}

	deps.Hasher = auth.NewPasswordHasher(config.Security.PasswordSalt, config.Security.BCryptCost)
	deps.Roles = role.NewService(rolePostgres.NewRoleRepository(db), tx, lg)
	deps.Users = user.NewService(userPostgres.NewUserRepository(db), tx, deps.Roles, deps.Hasher, deps.Engine,
		config.Security.PasswordLengthMin, lg)
	deps.Documents = document.NewService(documentPostgres.NewDocumentRepository(db), tx, deps.Storage,
		config.Storage.AllowedMimeTypes, lg)

	deps.Auth = auth.NewService(
		deps.Users,
		deps.Hasher,
		auth.NewJWTTokenGenerator(config.Security.JWTSecretKey, config.Security.JWTRefreshSecretKey,
			config.Security.AccessTokenDuration, config.Security.RefreshTokenDuration),
		blocklist,
		token.NewSerializer(config.Security.SecretKey, auth.ResetSalt, config.Security.ResetTokenExpires),
		deps.Engine,
		auth.Config{ResetURL: config.Server.ServerName + "/api/auth/reset_password"},
		lg,
	)

	var sender mail.Sender = mail.NewLogSender(lg)
	if config.Mail.Server != "" {
		sender = mail.NewSMTPSender(config.Mail)
	} else {
		lg.Warn("mail server not configured; outgoing mail is only logged")
	}

	export.NewTasks(deps.Users, deps.Documents, export.NewConverter(config.Converter.Binary, config.Converter.Timeout), lg).
		Register(deps.Engine)
	mail.NewTasks(sender, deps.Documents, lg).Register(deps.Engine)

	return deps, nil
}

func newStorage(ctx context.Context, config *internal.Config, lg *slog.Logger) (*storage.Registry, error) {
	disk, err := local.New(config.Storage.Directory, config.Server.ServerName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local storage: %w", err)
	}
	backends := []storage.Backend{disk}

	if config.Storage.DriveCredentialsFile != "" {
		drive, err := gdrive.New(ctx, gdrive.Config{
			CredentialsFile: config.Storage.DriveCredentialsFile,
			FolderName:      config.Storage.DriveFolderName,
			PublicRead:      config.Storage.DrivePublicRead,
		}, lg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize drive storage: %w", err)
		}
		backends = append(backends, drive)
	}

	return storage.NewRegistry(storage.TypeLocal, backends...)
}
