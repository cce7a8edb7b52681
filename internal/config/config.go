package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "ZG"
	defaultEnvironment     = EnvironmentDevelopment
	defaultHTTPAddress     = "0.0.0.0:3000"
	defaultDatabaseDriver  = DatabaseDriverSQLite
	defaultDatabaseDSN     = "zg.db"
	defaultLogLevel        = "info"
	defaultAuthIssuer      = "zg-auth"
	defaultAccessTokenTTL  = time.Hour
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultAppURL          = "http://localhost:3000"
	defaultStorageBackend  = StorageBackendLocal
	defaultStoragePath     = "uploads"
	defaultSMTPPort        = 587
)

// Supported environments.
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// Supported database drivers.
const (
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
)

// Supported object store backends.
const (
	StorageBackendLocal = "local"
	StorageBackendS3    = "s3"
	StorageBackendGCS   = "gcs"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	Environment    string
	HTTPAddress    string
	DatabaseDriver string
	DatabaseDSN    string
	LogLevel       string
	AppURL         string
	AllowedOrigins []string
	Auth           AuthConfig
	Storage        StorageConfig
	RateLimit      RateLimitConfig
	SMTP           SMTPConfig
}

// AuthConfig configures token issuing and verification.
type AuthConfig struct {
	JWTSecret       string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	JWKSURL         string
	TrustedIssuers  []string
}

// StorageConfig selects and configures the object store.
type StorageConfig struct {
	Backend       string
	LocalPath     string
	PublicBaseURL string
	S3            S3Config
	GCS           GCSConfig
}

// S3Config configures the S3 (or S3-compatible) backend.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// GCSConfig configures the Google Cloud Storage backend.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string
}

// RateLimitConfig configures the shared limiter store. An empty address selects the in-process limiter.
type RateLimitConfig struct {
	RedisAddress  string
	RedisPassword string
	RedisDB       int
}

// SMTPConfig configures outgoing mail. An empty host selects the log-only mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// IsProduction reports whether the service runs with production cookie and logging settings.
func (c AppConfig) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("environment", defaultEnvironment)
	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("app.url", defaultAppURL)
	configViper.SetDefault("cors.allowed_origins", defaultAppURL)
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.access_ttl", defaultAccessTokenTTL)
	configViper.SetDefault("auth.refresh_ttl", defaultRefreshTokenTTL)
	configViper.SetDefault("storage.backend", defaultStorageBackend)
	configViper.SetDefault("storage.local_path", defaultStoragePath)
	configViper.SetDefault("storage.s3.use_ssl", true)
	configViper.SetDefault("smtp.port", defaultSMTPPort)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		Environment:    strings.ToLower(strings.TrimSpace(configViper.GetString("environment"))),
		HTTPAddress:    configViper.GetString("http.address"),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		LogLevel:       configViper.GetString("log.level"),
		AppURL:         strings.TrimRight(configViper.GetString("app.url"), "/"),
		AllowedOrigins: splitList(configViper.GetString("cors.allowed_origins")),
		Auth: AuthConfig{
			JWTSecret:       configViper.GetString("auth.jwt_secret"),
			Issuer:          configViper.GetString("auth.issuer"),
			AccessTokenTTL:  configViper.GetDuration("auth.access_ttl"),
			RefreshTokenTTL: configViper.GetDuration("auth.refresh_ttl"),
			JWKSURL:         configViper.GetString("auth.jwks_url"),
			TrustedIssuers:  splitList(configViper.GetString("auth.trusted_issuers")),
		},
		Storage: StorageConfig{
			Backend:       strings.ToLower(strings.TrimSpace(configViper.GetString("storage.backend"))),
			LocalPath:     configViper.GetString("storage.local_path"),
			PublicBaseURL: strings.TrimRight(configViper.GetString("storage.public_base_url"), "/"),
			S3: S3Config{
				Region:          configViper.GetString("storage.s3.region"),
				Bucket:          configViper.GetString("storage.s3.bucket"),
				Endpoint:        configViper.GetString("storage.s3.endpoint"),
				AccessKeyID:     configViper.GetString("storage.s3.access_key_id"),
				SecretAccessKey: configViper.GetString("storage.s3.secret_access_key"),
				UseSSL:          configViper.GetBool("storage.s3.use_ssl"),
			},
			GCS: GCSConfig{
				Bucket:          configViper.GetString("storage.gcs.bucket"),
				CredentialsFile: configViper.GetString("storage.gcs.credentials_file"),
			},
		},
		RateLimit: RateLimitConfig{
			RedisAddress:  configViper.GetString("ratelimit.redis_address"),
			RedisPassword: configViper.GetString("ratelimit.redis_password"),
			RedisDB:       configViper.GetInt("ratelimit.redis_db"),
		},
		SMTP: SMTPConfig{
			Host:     configViper.GetString("smtp.host"),
			Port:     configViper.GetInt("smtp.port"),
			Username: configViper.GetString("smtp.username"),
			Password: configViper.GetString("smtp.password"),
			From:     configViper.GetString("smtp.from"),
		},
	}

	if cfg.Storage.PublicBaseURL == "" && cfg.Storage.Backend == StorageBackendLocal {
		cfg.Storage.PublicBaseURL = cfg.AppURL + "/media"
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	switch c.Environment {
	case EnvironmentDevelopment, EnvironmentProduction:
	default:
		return fmt.Errorf("environment must be %q or %q", EnvironmentDevelopment, EnvironmentProduction)
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("auth token ttls must be positive")
	}
	switch c.DatabaseDriver {
	case DatabaseDriverSQLite, DatabaseDriverPostgres:
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Storage.Backend {
	case StorageBackendLocal:
		if strings.TrimSpace(c.Storage.LocalPath) == "" {
			return fmt.Errorf("storage.local_path is required")
		}
	case StorageBackendS3:
		if strings.TrimSpace(c.Storage.S3.Bucket) == "" {
			return fmt.Errorf("storage.s3.bucket is required")
		}
	case StorageBackendGCS:
		if strings.TrimSpace(c.Storage.GCS.Bucket) == "" {
			return fmt.Errorf("storage.gcs.bucket is required")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	return nil
}

func splitList(raw string) []string {
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
