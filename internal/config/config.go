package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppEnv      string
	MetricsAddr string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Attachments
	AttachmentsFile string
	UploadDir       string // staging directory for incoming files
	FinalDir        string // default resting directory for primary files
	FinalPath       string // public prefix for local values, e.g. /files/uploads/
	MaxNameLength   int
	RemoteTimeout   time.Duration

	// Observability (optional)
	SentryDSN string

	// S3-compatible storage, also used by Glacier (optional, per-field specs override)
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string
	S3PublicURL string

	GlacierRegion string
	GlacierVault  string

	// Swift / Rackspace Cloud Files
	SwiftUsername  string
	SwiftAPIKey    string
	SwiftAuthURL   string
	SwiftRegion    string
	SwiftTenant    string
	SwiftContainer string
	SwiftPublicURL string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppEnv:      envString("APP_ENV", "development"),
		MetricsAddr: envString("METRICS_ADDR", ""),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/transit.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"),

		// Attachments
		AttachmentsFile: envString("ATTACHMENTS_FILE", "attachments.yaml"),
		UploadDir:       envString("UPLOAD_DIR", "tmp/uploads"),
		FinalDir:        envString("FINAL_DIR", "files/uploads"),
		FinalPath:       envString("FINAL_PATH", ""),
		MaxNameLength:   envInt("MAX_NAME_LENGTH", 40),
		RemoteTimeout:   envDuration("REMOTE_TIMEOUT", 30*time.Second),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Storage
		S3Region:    envString("S3_REGION", "us-east-1"),
		S3Bucket:    envString("S3_BUCKET", ""),
		S3AccessKey: envString("S3_ACCESS_KEY", ""),
		S3SecretKey: envString("S3_SECRET_KEY", ""),
		S3Endpoint:  envString("S3_ENDPOINT", ""), // Optional: for non-AWS providers
		S3PublicURL: envString("S3_PUBLIC_URL", ""),

		GlacierRegion: envString("GLACIER_REGION", envString("S3_REGION", "us-east-1")),
		GlacierVault:  envString("GLACIER_VAULT", ""),

		SwiftUsername:  envString("SWIFT_USERNAME", ""),
		SwiftAPIKey:    envString("SWIFT_API_KEY", ""),
		SwiftAuthURL:   envString("SWIFT_AUTH_URL", "https://identity.api.rackspacecloud.com/v2.0"),
		SwiftRegion:    envString("SWIFT_REGION", ""),
		SwiftTenant:    envString("SWIFT_TENANT", ""),
		SwiftContainer: envString("SWIFT_CONTAINER", ""),
		SwiftPublicURL: envString("SWIFT_PUBLIC_URL", ""),
	}

	return cfg
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
