package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/frahmantamala/document-management/internal"
	"github.com/frahmantamala/document-management/internal/auth"
	"github.com/frahmantamala/document-management/internal/core/database"
	"github.com/frahmantamala/document-management/internal/core/repository"
	"github.com/frahmantamala/document-management/internal/role"
	rolePostgres "github.com/frahmantamala/document-management/internal/role/postgres"
	"github.com/frahmantamala/document-management/internal/user"
	userPostgres "github.com/frahmantamala/document-management/internal/user/postgres"
	"github.com/frahmantamala/document-management/pkg/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	seedAdminEmail     string
	seedAdminPassword  string
	seedAdminName      string
	seedAdminBirthDate string
)

const seedDateLayout = "2006-01-02"

var seedRoles = []struct {
	Label string
	Desc  string
}{
	{internal.RoleAdmin, "full administrator"},
	{internal.RoleTeamLeader, "manages users and documents"},
	{internal.RoleWorker, "reads documents and requests exports"},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with the base roles and an administrator",
	Long: `Create the admin, team_leader and worker roles when missing and an active
administrator account. The password comes from --password or SEED_ADMIN_PASSWORD,
the birth date from --birth-date (default 1970-01-01).`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSeed(context.Background()); err != nil {
			log.Fatalf("seed: %v", err)
		}
	},
}

func runSeed(ctx context.Context) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to init db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	password := seedAdminPassword
	if password == "" {
		password = os.Getenv("SEED_ADMIN_PASSWORD")
	}
	birthDate, err := time.Parse(seedDateLayout, seedAdminBirthDate)
	if err != nil {
		return fmt.Errorf("invalid --birth-date %q: expected YYYY-MM-DD", seedAdminBirthDate)
	}

	return seedDatabase(ctx, db, cfg.Security, seedAdmin{
		Email:     seedAdminEmail,
		Password:  password,
		Name:      seedAdminName,
		BirthDate: birthDate,
	}, logger.L())
}

type seedAdmin struct {
	Email     string
	Password  string
	Name      string
	BirthDate time.Time
}

// seedDatabase ensures the base roles and creates the administrator unless
// a user with that email already exists.
func seedDatabase(ctx context.Context, db *gorm.DB, sec internal.SecurityConfig, admin seedAdmin, lg *slog.Logger) error {
	tx := database.NewTransactor(db)

	roles := role.NewService(rolePostgres.NewRoleRepository(db), tx, lg)
	var adminRoleID int64
	for _, r := range seedRoles {
		entity, created, err := roles.EnsureRole(ctx, r.Label, r.Desc)
		if err != nil {
			return fmt.Errorf("failed to ensure role %s: %w", r.Label, err)
		}
		if created {
			fmt.Println("Seeded role:", entity.Name)
		}
		if entity.Name == internal.RoleAdmin {
			adminRoleID = entity.ID
		}
	}

	hasher := auth.NewPasswordHasher(sec.PasswordSalt, sec.BCryptCost)
	users := user.NewService(userPostgres.NewUserRepository(db), tx, roles, hasher, nil, sec.PasswordLengthMin, lg)

	_, err := users.FindByEmail(ctx, admin.Email)
	if err == nil {
		fmt.Println("admin user already exists:", admin.Email)
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to lookup admin user: %w", err)
	}

	if admin.Password == "" {
		return errors.New("admin password is required (--password or SEED_ADMIN_PASSWORD)")
	}

	if _, err := users.Create(ctx, user.CreateRequest{
		Name:      admin.Name,
		LastName:  "Admin",
		Email:     admin.Email,
		Password:  admin.Password,
		Genre:     "m",
		BirthDate: user.Date(admin.BirthDate),
		RoleID:    adminRoleID,
	}); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	fmt.Println("Seeded admin user:", admin.Email)
	return nil
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminEmail, "email", "admin@localhost.localdomain", "administrator email")
	seedCmd.Flags().StringVar(&seedAdminPassword, "password", "", "administrator password")
	seedCmd.Flags().StringVar(&seedAdminName, "name", "System", "administrator first name")
	seedCmd.Flags().StringVar(&seedAdminBirthDate, "birth-date", "1970-01-01", "administrator birth date (YYYY-MM-DD)")
}
