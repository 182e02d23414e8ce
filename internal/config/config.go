package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// Enabled reports whether enough settings are present to attempt a connection.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != "" && c.User != "" && c.Name != ""
}

// MinIOConfig holds settings for the S3-compatible remote bucket.
// PublicBaseURL is the prefix under which public objects are served,
// e.g. https://project.supabase.co/storage/v1/object/public.
type MinIOConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// Enabled reports whether the object store is configured.
func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

// UploadsConfig describes the local uploads tree.
type UploadsConfig struct {
	Root              string
	URLPrefix         string
	AllowedExtensions []string
}

// SyncConfig tunes the remote sync.
type SyncConfig struct {
	BatchSize int
}

// CleanupConfig lists storage providers that are no longer in use.
type CleanupConfig struct {
	DecommissionedDomains []string
}

// RedisConfig holds connection settings for the redis session store.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// SessionConfig controls session lifetime. Backend is "memory" or "redis";
// an empty backend disables session checks on the API.
type SessionConfig struct {
	Backend string
	TTL     time.Duration
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost  string
	Port     string
	Timezone string
	Database DatabaseConfig
	Remote   DatabaseConfig
	MinIO    MinIOConfig
	Uploads  UploadsConfig
	Sync     SyncConfig
	Cleanup  CleanupConfig
	Redis    RedisConfig
	Session  SessionConfig
}

// Location resolves the configured timezone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:  getEnv("APP_HOST", "localhost:8080"),
		Port:     getEnv("PORT", "8080"),
		Timezone: getEnv("APP_TIMEZONE", "UTC"),
		Database: loadDatabase("DB"),
		Remote:   loadDatabase("REMOTE_DB"),
		MinIO: MinIOConfig{
			Endpoint:      getEnv("MINIO_ENDPOINT", ""),
			AccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey:     getEnv("MINIO_SECRET_KEY", ""),
			Bucket:        getEnv("MINIO_BUCKET", "files"),
			UseSSL:        getEnvBool("MINIO_USE_SSL", false),
			PublicBaseURL: strings.TrimRight(getEnv("MINIO_PUBLIC_BASE_URL", ""), "/"),
		},
		Uploads: UploadsConfig{
			Root:              getEnv("UPLOADS_DIR", "uploads"),
			URLPrefix:         getEnv("UPLOADS_URL_PREFIX", "/uploads"),
			AllowedExtensions: getEnvList("UPLOADS_ALLOWED_EXT", []string{"pdf", "jpg", "jpeg", "png", "gif", "doc", "docx", "webp", "txt"}),
		},
		Sync: SyncConfig{
			BatchSize: getEnvInt("SYNC_BATCH_SIZE", 50),
		},
		Cleanup: CleanupConfig{
			DecommissionedDomains: getEnvList("CLEANUP_DECOMMISSIONED_DOMAINS", []string{"firebasestorage.googleapis.com", "storage.googleapis.com"}),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Session: SessionConfig{
			Backend: getEnv("SESSION_BACKEND", ""),
			TTL:     time.Duration(getEnvInt("SESSION_TTL_SEC", 86400)) * time.Second,
		},
	}
}

func loadDatabase(prefix string) DatabaseConfig {
	return DatabaseConfig{
		Host:               getEnv(prefix+"_HOST", ""),
		Port:               getEnv(prefix+"_PORT", "5432"),
		User:               getEnv(prefix+"_USER", ""),
		Password:           getEnv(prefix+"_PASSWORD", ""),
		Name:               getEnv(prefix+"_NAME", ""),
		SSLMode:            getEnv(prefix+"_SSLMODE", "disable"),
		MaxOpenConns:       getEnvInt(prefix+"_MAX_OPEN_CONNS", 10),
		MaxIdleConns:       getEnvInt(prefix+"_MAX_IDLE_CONNS", 5),
		ConnMaxLifetimeSec: getEnvInt(prefix+"_CONN_MAX_LIFETIME_SEC", 300),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
