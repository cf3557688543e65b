package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env       string          `mapstructure:"env"`
	Server    ServerConfig    `mapstructure:"http_server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Security  SecurityConfig  `mapstructure:"security"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Mail      MailConfig      `mapstructure:"mail"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Converter ConverterConfig `mapstructure:"converter"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ServerName        string        `mapstructure:"server_name"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	SecretKey            string        `mapstructure:"secret_key"`
	PasswordSalt         string        `mapstructure:"password_salt"`
	PasswordLengthMin    int           `mapstructure:"password_length_min"`
	ResetTokenExpires    time.Duration `mapstructure:"reset_token_expires"`
	JWTSecretKey         string        `mapstructure:"jwt_secret_key"`
	JWTRefreshSecretKey  string        `mapstructure:"jwt_refresh_secret_key"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration"`
	BCryptCost           int           `mapstructure:"bcrypt_cost"`
}

type StorageConfig struct {
	Directory            string   `mapstructure:"directory"`
	AllowedMimeTypes     []string `mapstructure:"allowed_mime_types"`
	DriveCredentialsFile string   `mapstructure:"drive_credentials_file"`
	DriveFolderName      string   `mapstructure:"drive_folder_name"`
	DrivePublicRead      bool     `mapstructure:"drive_public_read"`
}

type MailConfig struct {
	Server        string `mapstructure:"server"`
	Port          int    `mapstructure:"port"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	UseTLS        bool   `mapstructure:"use_tls"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	DefaultSender string `mapstructure:"default_sender"`
}

type WorkerConfig struct {
	BrokerURL     string        `mapstructure:"broker_url"`
	Queue         string        `mapstructure:"queue"`
	ResultBackend string        `mapstructure:"result_backend"`
	ResultTTL     time.Duration `mapstructure:"result_ttl"`
	Concurrency   int           `mapstructure:"concurrency"`
}

type ConverterConfig struct {
	Binary  string        `mapstructure:"binary"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

var DefaultAllowedMimeTypes = []string{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/pdf",
	"image/png",
	"image/jpeg",
	"text/csv",
	"text/plain",
}

// environment is the flat variable set read in container deployments.
type environment struct {
	AppEnv   string `envconfig:"APP_ENV" default:"production"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	Port        int    `envconfig:"PORT" default:"5000"`
	ServerName  string `envconfig:"SERVER_NAME" default:"http://localhost:5000"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	MaxOpen     int    `envconfig:"DATABASE_MAX_OPEN_CONNS" default:"20"`
	MaxIdle     int    `envconfig:"DATABASE_MAX_IDLE_CONNS" default:"5"`

	SecretKey            string        `envconfig:"SECRET_KEY" required:"true"`
	PasswordSalt         string        `envconfig:"SECURITY_PASSWORD_SALT" required:"true"`
	PasswordLengthMin    int           `envconfig:"SECURITY_PASSWORD_LENGTH_MIN" default:"8"`
	ResetTokenExpires    int           `envconfig:"RESET_TOKEN_EXPIRES" default:"86400"`
	JWTSecretKey         string        `envconfig:"JWT_SECRET_KEY"`
	JWTRefreshSecretKey  string        `envconfig:"JWT_REFRESH_SECRET_KEY"`
	AccessTokenDuration  time.Duration `envconfig:"JWT_ACCESS_TOKEN_EXPIRES" default:"15m"`
	RefreshTokenDuration time.Duration `envconfig:"JWT_REFRESH_TOKEN_EXPIRES" default:"168h"`
	BCryptCost           int           `envconfig:"BCRYPT_COST" default:"12"`

	StorageDirectory     string   `envconfig:"STORAGE_DIRECTORY" default:"storage"`
	AllowedMimeTypes     []string `envconfig:"ALLOWED_MIME_TYPES"`
	DriveCredentialsFile string   `envconfig:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	DriveFolderName      string   `envconfig:"GOOGLE_DRIVE_FOLDER_NAME" default:"document-management"`
	DrivePublicRead      bool     `envconfig:"GOOGLE_DRIVE_PUBLIC_READ" default:"true"`

	MailServer   string `envconfig:"MAIL_SERVER"`
	MailPort     int    `envconfig:"MAIL_PORT" default:"587"`
	MailUsername string `envconfig:"MAIL_USERNAME"`
	MailPassword string `envconfig:"MAIL_PASSWORD"`
	MailUseTLS   bool   `envconfig:"MAIL_USE_TLS" default:"true"`
	MailUseSSL   bool   `envconfig:"MAIL_USE_SSL" default:"false"`
	MailSender   string `envconfig:"MAIL_DEFAULT_SENDER" default:"no-reply@localhost"`

	BrokerURL     string        `envconfig:"BROKER_URL"`
	Queue         string        `envconfig:"BROKER_QUEUE" default:"document-management.tasks"`
	ResultBackend string        `envconfig:"RESULT_BACKEND"`
	ResultTTL     time.Duration `envconfig:"RESULT_TTL" default:"24h"`
	Concurrency   int           `envconfig:"WORKER_CONCURRENCY" default:"4"`

	ConverterBin     string        `envconfig:"PDF_CONVERTER_BIN" default:"soffice"`
	ConverterTimeout time.Duration `envconfig:"PDF_CONVERTER_TIMEOUT" default:"2m"`
}

// LoadConfigFromEnv reads configuration from process environment variables.
func LoadConfigFromEnv() (*Config, error) {
	var env environment
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	cfg := &Config{
		Env: env.AppEnv,
		Server: ServerConfig{
			Port:              env.Port,
			ServerName:        env.ServerName,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			IdleTimeout:       60 * time.Second,
			WriteTimeout:      60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    env.MaxOpen,
			MaxIdleConns:    env.MaxIdle,
			ConnMaxLifetime: 30 * time.Minute,
			Source:          env.DatabaseURL,
		},
		Security: SecurityConfig{
			SecretKey:            env.SecretKey,
			PasswordSalt:         env.PasswordSalt,
			PasswordLengthMin:    env.PasswordLengthMin,
			ResetTokenExpires:    time.Duration(env.ResetTokenExpires) * time.Second,
			JWTSecretKey:         env.JWTSecretKey,
			JWTRefreshSecretKey:  env.JWTRefreshSecretKey,
			AccessTokenDuration:  env.AccessTokenDuration,
			RefreshTokenDuration: env.RefreshTokenDuration,
			BCryptCost:           env.BCryptCost,
		},
		Storage: StorageConfig{
			Directory:            env.StorageDirectory,
			AllowedMimeTypes:     env.AllowedMimeTypes,
			DriveCredentialsFile: env.DriveCredentialsFile,
			DriveFolderName:      env.DriveFolderName,
			DrivePublicRead:      env.DrivePublicRead,
		},
		Mail: MailConfig{
			Server:        env.MailServer,
			Port:          env.MailPort,
			Username:      env.MailUsername,
			Password:      env.MailPassword,
			UseTLS:        env.MailUseTLS,
			UseSSL:        env.MailUseSSL,
			DefaultSender: env.MailSender,
		},
		Worker: WorkerConfig{
			BrokerURL:     env.BrokerURL,
			Queue:         env.Queue,
			ResultBackend: env.ResultBackend,
			ResultTTL:     env.ResultTTL,
			Concurrency:   env.Concurrency,
		},
		Converter: ConverterConfig{
			Binary:  env.ConverterBin,
			Timeout: env.ConverterTimeout,
		},
		Logging: LoggingConfig{Level: env.LogLevel},
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills values left empty by a partial config file.
func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.ServerName == "" {
		c.Server.ServerName = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	c.Server.ServerName = strings.TrimRight(c.Server.ServerName, "/")
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Security.PasswordLengthMin == 0 {
		c.Security.PasswordLengthMin = 8
	}
	if c.Security.ResetTokenExpires == 0 {
		c.Security.ResetTokenExpires = 24 * time.Hour
	}
	if c.Security.JWTSecretKey == "" {
		c.Security.JWTSecretKey = c.Security.SecretKey + ".access"
	}
	if c.Security.JWTRefreshSecretKey == "" {
		c.Security.JWTRefreshSecretKey = c.Security.SecretKey + ".refresh"
	}
	if c.Security.AccessTokenDuration == 0 {
		c.Security.AccessTokenDuration = 15 * time.Minute
	}
	if c.Security.RefreshTokenDuration == 0 {
		c.Security.RefreshTokenDuration = 7 * 24 * time.Hour
	}
	if c.Security.BCryptCost == 0 {
		c.Security.BCryptCost = 12
	}
	if c.Storage.Directory == "" {
		c.Storage.Directory = "storage"
	}
	if len(c.Storage.AllowedMimeTypes) == 0 {
		c.Storage.AllowedMimeTypes = DefaultAllowedMimeTypes
	}
	if c.Storage.DriveFolderName == "" {
		c.Storage.DriveFolderName = "document-management"
	}
	if c.Worker.Queue == "" {
		c.Worker.Queue = "document-management.tasks"
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 4
	}
	if c.Worker.ResultTTL == 0 {
		c.Worker.ResultTTL = 24 * time.Hour
	}
	if c.Converter.Binary == "" {
		c.Converter.Binary = "soffice"
	}
	if c.Converter.Timeout == 0 {
		c.Converter.Timeout = 2 * time.Minute
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Mail.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("mail config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.ServerName != "" {
		u, err := url.Parse(c.ServerName)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid server_name %q", c.ServerName)
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *SecurityConfig) Validate() error {
	if c.SecretKey == "" {
		return errors.New("secret_key is required")
	}
	if c.PasswordSalt == "" {
		return errors.New("password_salt is required")
	}
	if c.PasswordLengthMin < 1 {
		return errors.New("password_length_min must be positive")
	}
	if c.BCryptCost < 4 || c.BCryptCost > 31 {
		return errors.New("bcrypt_cost must be between 4 and 31")
	}
	return nil
}

func (c *MailConfig) Validate() error {
	if c.UseTLS && c.UseSSL {
		return errors.New("use_tls and use_ssl are mutually exclusive")
	}
	return nil
}
