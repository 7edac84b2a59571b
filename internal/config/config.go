// Package config loads service configuration from the environment,
// reading a .env file in development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full service configuration.
type Config struct {
	Port   string
	DB     DBConfig
	HUD    HUDConfig
	Upload UploadConfig
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

// URL builds the pgx connection string.
func (c *DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// HUDConfig holds HUD income-limits API settings.
type HUDConfig struct {
	BaseURL  string
	Token    string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// UploadConfig holds document file storage settings.
type UploadConfig struct {
	Dir     string // local storage directory (dev)
	BaseURL string // public base URL for served files

	// Cloudflare R2 (production) — local storage is used when unset.
	R2AccountID string
	R2AccessKey string
	R2SecretKey string
	R2Bucket    string
	R2PublicURL string
}

// UseR2 reports whether R2 credentials are configured.
func (c *UploadConfig) UseR2() bool {
	return c.R2AccountID != "" && c.R2AccessKey != "" && c.R2SecretKey != "" && c.R2Bucket != ""
}

// Load reads configuration from the environment. A missing .env file is
// fine — production sets real environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "lihtc"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		HUD: HUDConfig{
			BaseURL:  getEnv("HUD_API_URL", "https://www.huduser.gov/hudapi/public/mtspil"),
			Token:    os.Getenv("HUD_API_TOKEN"),
			Timeout:  time.Duration(getEnvInt("HUD_TIMEOUT_SECONDS", 10)) * time.Second,
			CacheTTL: time.Duration(getEnvInt("HUD_CACHE_TTL_HOURS", 24)) * time.Hour,
		},
		Upload: UploadConfig{
			Dir:         getEnv("UPLOAD_DIR", "./uploads"),
			BaseURL:     getEnv("UPLOAD_BASE_URL", "http://localhost:8080/api/files"),
			R2AccountID: os.Getenv("R2_ACCOUNT_ID"),
			R2AccessKey: os.Getenv("R2_ACCESS_KEY"),
			R2SecretKey: os.Getenv("R2_SECRET_KEY"),
			R2Bucket:    os.Getenv("R2_BUCKET"),
			R2PublicURL: os.Getenv("R2_PUBLIC_URL"),
		},
	}

	if cfg.HUD.Token == "" {
		// Not fatal: AMI bucketing degrades to sentinels without it.
		fmt.Fprintln(os.Stderr, "warning: HUD_API_TOKEN not set; AMI buckets will be unavailable")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
