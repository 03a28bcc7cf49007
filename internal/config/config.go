package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

const (
	StorageMySQL    = "mysql"
	StorageSQLite   = "sqlite"
	StorageInMemory = "inmemory"

	MIN_JWT_SECRET_LENGTH = 32
)

type Config struct {
	AppEnv      string
	Port        string
	LogLevel    string
	LogDir      string
	StorageType string
	DB          DBConfig
	SQLitePath  string
	JWT         JWTConfig
	Cache       CacheConfig
	AMQP        AMQPConfig
	CORSOrigins []string
}

type DBConfig struct {
	User    string
	Pass    string
	Host    string
	Port    string
	Name    string
	FullDSN string
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CacheConfig struct {
	Enabled bool
	Size    int
	TTL     time.Duration
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

// Load reads .env (when present) and then the process environment.
func Load() (*Config, error) {
	// .env is optional, containers pass real env vars.
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		AppEnv:      strings.ToLower(getEnv("APP_ENV", "development")),
		Port:        getEnv("APP_PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogDir:      getEnv("LOG_DIR", "./logging/logs"),
		StorageType: strings.ToLower(getEnv("STORAGE_TYPE", StorageMySQL)),
		DB: DBConfig{
			User:    os.Getenv("DB_USER"),
			Pass:    os.Getenv("DB_PASS"),
			Host:    os.Getenv("DB_HOST"),
			Port:    os.Getenv("DB_PORT"),
			Name:    getEnv("DB_NAME", "expense_tracker"),
			FullDSN: os.Getenv("FULL_DSN"),
		},
		SQLitePath: getEnv("SQLITE_PATH", "expense_tracker.db"),
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
		},
		AMQP: AMQPConfig{
			URL:      os.Getenv("AMQP_URL"),
			Exchange: getEnv("AMQP_EXCHANGE", "expense_tracker.cache"),
		},
		CORSOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.JWT.Expiration, err = getDuration("JWT_EXPIRATION", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Cache.Enabled, err = getBool("CACHE_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.Cache.Size, err = getInt("CACHE_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.Cache.TTL, err = getDuration("CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageType {
	case StorageMySQL:
		if c.DB.FullDSN == "" && (c.DB.User == "" || c.DB.Pass == "" || c.DB.Host == "" || c.DB.Port == "") {
			return fmt.Errorf("missing required DB environment variables")
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for sqlite storage")
		}
	case StorageInMemory:
	default:
		return fmt.Errorf("unknown STORAGE_TYPE: %q", c.StorageType)
	}

	if len(c.JWT.Secret) < MIN_JWT_SECRET_LENGTH {
		return fmt.Errorf("JWT_SECRET must be at least %d characters long", MIN_JWT_SECRET_LENGTH)
	}
	if c.JWT.Expiration <= 0 {
		return fmt.Errorf("JWT_EXPIRATION must be positive")
	}
	if c.Cache.Enabled && c.Cache.Size <= 0 {
		return fmt.Errorf("CACHE_SIZE must be positive when cache is enabled")
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive when cache is enabled")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MySQLDSN returns the DSN of the application database. When FULL_DSN is
// set it is used as is.
func (c *Config) MySQLDSN() string {
	if c.DB.FullDSN != "" {
		return c.DB.FullDSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an integer", key, raw)
	}
	return value, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q is not a boolean", key, raw)
	}
	return value, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not a duration", key, raw)
	}
	return value, nil
}

func splitList(raw string) []string {
	var result []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
