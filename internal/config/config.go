// Package config содержит логику чтения конфигурации сервиса.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Поддерживаемые хранилища строк.
const (
	BackendSheets   = "sheets"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

const defaultRunAddress = "localhost:8080"

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress     string `env:"RUN_ADDRESS"`
	DatabaseURI    string `env:"DATABASE_URI"`
	StorageBackend string `env:"STORAGE_BACKEND"`

	SpreadsheetID       string `env:"GOOGLE_SHEETS_SPREADSHEET_ID"`
	ServiceAccountEmail string `env:"GOOGLE_SERVICE_ACCOUNT_EMAIL"`
	PrivateKey          string `env:"GOOGLE_SERVICE_ACCOUNT_PRIVATE_KEY"`
	SheetsRange         string `env:"GOOGLE_SHEETS_RANGE" envDefault:"A:Z"`

	OrdersSheet   string `env:"ORDERS_SHEET" envDefault:"orders"`
	BriefsSheet   string `env:"BRIEFS_SHEET" envDefault:"briefs"`
	OrderIDPrefix string `env:"ORDER_ID_PREFIX" envDefault:"IW"`

	RedisURL         string `env:"REDIS_URL"`
	AdminToken       string `env:"ADMIN_TOKEN"`
	NotifyWebhookURL string `env:"NOTIFY_WEBHOOK_URL"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`

	SchemaAutoMigrate bool `env:"SCHEMA_AUTO_MIGRATE" envDefault:"true"`
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envBackend := cfg.StorageBackend

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.StorageBackend, "s", BackendSheets, "row storage backend: sheets, postgres or memory")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envBackend != "" {
		cfg.StorageBackend = envBackend
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendSheets:
		var missing []string
		if c.SpreadsheetID == "" {
			missing = append(missing, "GOOGLE_SHEETS_SPREADSHEET_ID")
		}
		if c.ServiceAccountEmail == "" {
			missing = append(missing, "GOOGLE_SERVICE_ACCOUNT_EMAIL")
		}
		if c.PrivateKey == "" {
			missing = append(missing, "GOOGLE_SERVICE_ACCOUNT_PRIVATE_KEY")
		}
		if len(missing) > 0 {
			return fmt.Errorf("sheets backend requires %s", strings.Join(missing, ", "))
		}
	case BackendPostgres:
		if c.DatabaseURI == "" {
			return errors.New("postgres backend requires DATABASE_URI")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	return nil
}
