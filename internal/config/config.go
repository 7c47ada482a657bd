package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MaintenanceDatabase is the database privileged connections attach to when
// creating or dropping other databases. It is never dropped itself.
const MaintenanceDatabase = "postgres"

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendDapr     = "dapr"
)

type Settings struct {
	Application Application `yaml:"application"`
	Database    Database    `yaml:"database"`
}

type Application struct {
	Host           string `yaml:"host" env:"APP_APPLICATION_HOST"`
	Port           int    `yaml:"port" env:"APP_APPLICATION_PORT"`
	ServiceName    string `yaml:"service_name" env:"APP_APPLICATION_SERVICE_NAME"`
	ServiceVersion string `yaml:"service_version" env:"APP_APPLICATION_SERVICE_VERSION"`
	GinMode        string `yaml:"gin_mode" env:"APP_APPLICATION_GIN_MODE"`
	LogLevel       string `yaml:"log_level" env:"APP_APPLICATION_LOG_LEVEL"`
}

type Database struct {
	Host            string        `yaml:"host" env:"APP_DATABASE_HOST"`
	Port            int           `yaml:"port" env:"APP_DATABASE_PORT"`
	Username        string        `yaml:"username" env:"APP_DATABASE_USERNAME"`
	Password        string        `yaml:"password" env:"APP_DATABASE_PASSWORD"`
	DatabaseName    string        `yaml:"database_name" env:"APP_DATABASE_NAME"`
	RequireSSL      bool          `yaml:"require_ssl" env:"APP_DATABASE_REQUIRE_SSL"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"APP_DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"APP_DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"APP_DATABASE_CONN_MAX_LIFETIME"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" env:"APP_DATABASE_CONNECT_TIMEOUT"`
	QueryTimeout    time.Duration `yaml:"query_timeout" env:"APP_DATABASE_QUERY_TIMEOUT"`
	Backend         string        `yaml:"backend" env:"APP_DATABASE_BACKEND"`
	DaprStore       string        `yaml:"dapr_store" env:"APP_DATABASE_DAPR_STORE"`
}

// Default returns the settings used when a layer leaves a field unset.
func Default() Settings {
	return Settings{
		Application: Application{
			Host:           "127.0.0.1",
			Port:           8000,
			ServiceName:    "newsletter",
			ServiceVersion: "1.0.0",
			LogLevel:       "info",
		},
		Database: Database{
			Host:            "localhost",
			Port:            5432,
			Username:        "postgres",
			Password:        "password",
			DatabaseName:    "newsletter",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  5 * time.Second,
			QueryTimeout:    5 * time.Second,
			Backend:         BackendPostgres,
			DaprStore:       "statestore",
		},
	}
}

// Load resolves settings from ./configuration (or APP_CONFIG_DIR) for the
// environment named by APP_ENVIRONMENT.
func Load() (*Settings, error) {
	dir := os.Getenv("APP_CONFIG_DIR")
	if dir == "" {
		dir = "configuration"
	}
	environment := os.Getenv("APP_ENVIRONMENT")
	if environment == "" {
		environment = "local"
	}
	return LoadFrom(dir, environment)
}

// LoadFrom layers base.yaml, <environment>.yaml, a .env file and finally the
// process environment, later layers overriding earlier ones.
func LoadFrom(dir, environment string) (*Settings, error) {
	settings := Default()

	if err := mergeFile(filepath.Join(dir, "base.yaml"), &settings, true); err != nil {
		return nil, err
	}
	if err := mergeFile(filepath.Join(dir, environment+".yaml"), &settings, false); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	if err := envdecode.Decode(&settings); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment overrides: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func mergeFile(path string, settings *Settings, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (s *Settings) Validate() error {
	if s.Application.Port < 0 || s.Application.Port > 65535 {
		return fmt.Errorf("application port %d out of range", s.Application.Port)
	}
	if s.Application.Host == "" {
		return errors.New("application host is required")
	}
	switch s.Database.Backend {
	case BackendPostgres:
		if s.Database.Host == "" {
			return errors.New("database host is required")
		}
		if s.Database.Port <= 0 || s.Database.Port > 65535 {
			return fmt.Errorf("database port %d out of range", s.Database.Port)
		}
		if s.Database.DatabaseName == "" {
			return errors.New("database name is required")
		}
	case BackendMemory:
	case BackendDapr:
		if s.Database.DaprStore == "" {
			return errors.New("dapr store name is required")
		}
	default:
		return fmt.Errorf("unknown database backend %q", s.Database.Backend)
	}
	return nil
}

func (s *Settings) Address() string {
	return net.JoinHostPort(s.Application.Host, strconv.Itoa(s.Application.Port))
}

// ConnectionString points at the configured application database.
func (d Database) ConnectionString() string {
	return d.dsn(d.DatabaseName)
}

// WithoutDB points at the maintenance database on the same server.
func (d Database) WithoutDB() string {
	return d.dsn(MaintenanceDatabase)
}

// WithDB returns a copy of d targeting another database on the same server.
func (d Database) WithDB(name string) Database {
	d.DatabaseName = name
	return d
}

func (d Database) dsn(name string) string {
	sslMode := "disable"
	if d.RequireSSL {
		sslMode = "require"
	}
	query := url.Values{}
	query.Set("sslmode", sslMode)
	if d.ConnectTimeout > 0 {
		seconds := int(d.ConnectTimeout.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		query.Set("connect_timeout", strconv.Itoa(seconds))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.Username, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + name,
		RawQuery: query.Encode(),
	}
	return u.String()
}
