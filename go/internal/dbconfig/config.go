package dbconfig

import (
	"fmt"
	"os"
	"strconv"

	"github.com/lib/pq"
)

// Config holds Postgres connection settings for the war record table.
type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string
	Table          string
	ConnectTimeout int // seconds
}

// NewConfigFromEnv reads DB_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Config{
		Host:           getEnv("DB_HOST", "localhost"),
		Port:           getEnvAsInt("DB_PORT", 5432),
		User:           getEnv("DB_USER", "postgres"),
		Password:       getEnv("DB_PASSWORD", "postgres"),
		Database:       getEnv("DB_NAME", "warboard"),
		SSLMode:        getEnv("DB_SSLMODE", "disable"),
		Table:          getEnv("DB_TABLE", "wars"),
		ConnectTimeout: getEnvAsInt("DB_CONNECT_TIMEOUT", 5),
	}
}

// DSN returns the Postgres connection URL.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode, c.ConnectTimeout,
	)
}

// QuotedTable returns the table name quoted for use in SQL text.
func (c Config) QuotedTable() string {
	if c.Table == "" {
		return pq.QuoteIdentifier("wars")
	}
	return pq.QuoteIdentifier(c.Table)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
