package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Auth      AuthConfig
	Storage   StorageConfig
	CORS      CORSConfig
	Publisher PublisherConfig
	Notify    NotifyConfig
	Cleanup   CleanupConfig
}

type ServerConfig struct {
	Host string
	Port string
	// WriteTimeout bounds a whole request, including a synchronous
	// publish run with all of its remote calls.
	WriteTimeout time.Duration
}

type DBConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

type AuthConfig struct {
	JWTSecret         string
	JWTExpiry         time.Duration
	AdminEmail        string
	AdminPasswordHash string
	// CITokenHashes is a comma-separated list of SHA-256 hashes of the
	// tokens accepted on the CI API.
	CITokenHashes string
}

type StorageConfig struct {
	Path string
}

type CORSConfig struct {
	AllowedOrigins string
}

type PublisherConfig struct {
	// CredentialsFile is a service account JSON key. Empty means
	// application default credentials.
	CredentialsFile string
	Endpoint        string
	HTTPTimeout     time.Duration
}

type NotifyConfig struct {
	WebhookURL     string
	WebhookTimeout time.Duration
}

type CleanupConfig struct {
	RunRetention time.Duration
	Interval     time.Duration
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; variables already set
// in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	jwtExpiry, err := durationEnv("APKHARBOR_JWT_EXPIRY", "24h")
	if err != nil {
		return nil, err
	}
	httpTimeout, err := durationEnv("APKHARBOR_HTTP_TIMEOUT", "5m")
	if err != nil {
		return nil, err
	}
	writeTimeout, err := durationEnv("APKHARBOR_WRITE_TIMEOUT", "1h")
	if err != nil {
		return nil, err
	}
	if writeTimeout < httpTimeout {
		return nil, fmt.Errorf("invalid APKHARBOR_WRITE_TIMEOUT: %s is shorter than APKHARBOR_HTTP_TIMEOUT %s", writeTimeout, httpTimeout)
	}
	webhookTimeout, err := durationEnv("APKHARBOR_WEBHOOK_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	retention, err := durationEnv("APKHARBOR_RUN_RETENTION", "168h")
	if err != nil {
		return nil, err
	}
	interval, err := durationEnv("APKHARBOR_CLEANUP_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         envOrDefault("APKHARBOR_HOST", "0.0.0.0"),
			Port:         envOrDefault("APKHARBOR_PORT", "8080"),
			WriteTimeout: writeTimeout,
		},
		DB: DBConfig{
			Host:     envOrDefault("APKHARBOR_DB_HOST", "localhost"),
			Port:     envOrDefault("APKHARBOR_DB_PORT", "5432"),
			Name:     envOrDefault("APKHARBOR_DB_NAME", "apkharbor"),
			User:     envOrDefault("APKHARBOR_DB_USER", "apkharbor"),
			Password: envOrDefault("APKHARBOR_DB_PASSWORD", "apkharbor"),
			SSLMode:  envOrDefault("APKHARBOR_DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret:         envOrDefault("APKHARBOR_JWT_SECRET", "change-me-in-production"),
			JWTExpiry:         jwtExpiry,
			AdminEmail:        envOrDefault("APKHARBOR_ADMIN_EMAIL", "admin@apkharbor.local"),
			AdminPasswordHash: os.Getenv("APKHARBOR_ADMIN_PASSWORD_HASH"),
			CITokenHashes:     os.Getenv("APKHARBOR_CI_TOKEN_HASHES"),
		},
		Storage: StorageConfig{
			Path: envOrDefault("APKHARBOR_STORAGE_PATH", "/data/workspaces"),
		},
		CORS: CORSConfig{
			AllowedOrigins: envOrDefault("APKHARBOR_CORS_ORIGINS", "http://localhost:3000"),
		},
		Publisher: PublisherConfig{
			CredentialsFile: os.Getenv("APKHARBOR_CREDENTIALS_FILE"),
			Endpoint:        os.Getenv("APKHARBOR_API_ENDPOINT"),
			HTTPTimeout:     httpTimeout,
		},
		Notify: NotifyConfig{
			WebhookURL:     os.Getenv("APKHARBOR_WEBHOOK_URL"),
			WebhookTimeout: webhookTimeout,
		},
		Cleanup: CleanupConfig{
			RunRetention: retention,
			Interval:     interval,
		},
	}

	return cfg, nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
