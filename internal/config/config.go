package config

import (
	"fmt"
	"os"
	"strconv"
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

// StorageConfig holds object storage settings for the S3-compatible backend.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// RetentionConfig holds thresholds and triggers for the cleanup scheduler.
// Defaults are always positive; zero only means "delete everything eligible"
// when passed as an explicit manual override.
type RetentionConfig struct {
	ObjectMaxAgeDays      int
	CacheMaxAgeDays       int
	OrphanGraceDays       int
	DownloadLogMaxAgeDays int
	OpenLogMaxAgeDays     int
	CacheDir              string
	SweepCron             string
	TrackingSweepCron     string
	Enabled               bool
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost       string
	Port          string
	PublicBaseURL string
	AdminToken    string
	Database      DatabaseConfig
	Storage       StorageConfig
	Retention     RetentionConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:       getEnv("APP_HOST", ""),
		Port:          getEnv("PORT", "8080"), // default only for non-sensitive value
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		AdminToken:    getEnv("ADMIN_TOKEN", ""),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Storage: StorageConfig{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", ""),
			Region:    getEnv("S3_REGION", ""),
			UseSSL:    getEnvBool("S3_USE_SSL", false),
		},
		Retention: RetentionConfig{
			ObjectMaxAgeDays:      getEnvInt("RETENTION_OBJECT_DAYS", 365),
			CacheMaxAgeDays:       getEnvInt("RETENTION_CACHE_DAYS", 365),
			OrphanGraceDays:       getEnvInt("RETENTION_ORPHAN_GRACE_DAYS", 180),
			DownloadLogMaxAgeDays: getEnvInt("RETENTION_DOWNLOAD_LOG_DAYS", 1095),
			OpenLogMaxAgeDays:     getEnvInt("RETENTION_OPEN_LOG_DAYS", 1095),
			CacheDir:              getEnv("ATTACHMENT_CACHE_DIR", ""),
			SweepCron:             getEnv("RETENTION_SWEEP_CRON", "0 3 * * *"),
			TrackingSweepCron:     getEnv("RETENTION_TRACKING_CRON", "30 4 * * 0"),
			Enabled:               getEnvBool("RETENTION_ENABLED", true),
		},
	}
}

// Validate fails fast on missing required settings so the process refuses to
// start half-configured instead of degrading at the first upload.
func (c *AppConfig) Validate() error {
	if c.Storage.Endpoint == "" {
		return fmt.Errorf("S3_ENDPOINT is required")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	return nil
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
