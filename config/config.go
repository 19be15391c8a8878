package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/attachtrack/attachtrack-api/pkg/db"
	"github.com/spf13/viper"
)

// Config holds all application configuration
//
//nolint:govet // Field alignment optimization would reduce readability
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Hasher        HasherConfig
	RateLimit     RateLimitConfig
	Logging       LoggingConfig
	Observability ObservabilityConfig
	Profiling     ProfilingConfig
	Cache         CacheConfig
}

type ServerConfig struct {
	Port           string
	GinMode        string
	AppEnv         string
	AllowedOrigins []string
	MaxBodyBytes   int64
	EnableHSTS     bool
}

type DatabaseConfig struct {
	URL           string
	MaxConns      int32
	MinConns      int32
	CACertPath    string
	TLSServerName string
	WorkOffline   bool
	StoreTimeout  time.Duration
}

// Pool returns the connection settings shared by the API and the migrator
func (d DatabaseConfig) Pool() db.PoolConfig {
	return db.PoolConfig{
		URL:           d.URL,
		MaxConns:      d.MaxConns,
		MinConns:      d.MinConns,
		CACertPath:    d.CACertPath,
		TLSServerName: d.TLSServerName,
	}
}

// RedisConfig enables the shared revocation list and rate limiter when URL is set
type RedisConfig struct {
	URL       string
	KeyPrefix string
}

type AuthConfig struct {
	JWTSecret            string
	JWTIssuer            string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	EmailScope           string
	RefreshTokenRotation bool
	BootstrapAdminEmail  string
	BootstrapAdminSecret string
}

// HasherConfig holds the Argon2id cost factors
type HasherConfig struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

type RateLimitConfig struct {
	GeneralRPS   float64
	GeneralBurst int
	LoginLimit   int
	LoginWindow  time.Duration
}

type LoggingConfig struct {
	Level string
	Dir   string
}

type ObservabilityConfig struct {
	AlloyEndpoint     string
	ServiceName       string
	ServiceNamespace  string
	ServiceVersion    string
	ServiceInstanceID string
}

type ProfilingConfig struct {
	Enabled               bool
	Endpoint              string
	AppName               string
	SampleTypes           string
	UploadIntervalSeconds int
}

type CacheConfig struct {
	PrincipalTTL time.Duration // 0 disables the principal lookup cache
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := read()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDatabase reads configuration for tools that only talk to Postgres
func LoadDatabase() (*Config, error) {
	cfg := read()

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func read() *Config {
	v := viper.New()

	// Set defaults
	v.SetDefault("PORT", "8081")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("ALLOWED_CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("MAX_BODY_BYTES", 64*1024)
	v.SetDefault("ENABLE_HSTS", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DIR", "/app/logs")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("STORE_TIMEOUT_MS", 3000)
	v.SetDefault("REDIS_KEY_PREFIX", "attachtrack:")
	v.SetDefault("JWT_ISSUER", "attachtrack-api")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 15)
	v.SetDefault("REFRESH_TOKEN_TTL_HOURS", 24*14)
	v.SetDefault("AUTH_EMAIL_SCOPE", "role")
	v.SetDefault("REFRESH_TOKEN_ROTATION", false)
	v.SetDefault("ARGON2_MEMORY_KIB", 64*1024)
	v.SetDefault("ARGON2_ITERATIONS", 3)
	v.SetDefault("ARGON2_PARALLELISM", 2)
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("LOGIN_RATE_LIMIT", 10)
	v.SetDefault("LOGIN_RATE_WINDOW_SECONDS", 60)
	v.SetDefault("PRINCIPAL_CACHE_TTL_SECONDS", 30)
	v.SetDefault("O11Y_EXPORTER_ENDPOINT", "alloy:4318") // OTLP over HTTP
	v.SetDefault("O11Y_BE_SERVICE_NAME", "attachtrack-api")
	v.SetDefault("O11Y_SERVICE_NAMESPACE", "attachtrack")
	v.SetDefault("O11Y_BE_SERVICE_VERSION", "1.0.0")
	v.SetDefault("O11Y_PROFILING_ENABLED", false)
	v.SetDefault("O11Y_PROFILING_APP_NAME", "attachtrack-api")
	v.SetDefault("O11Y_PROFILING_SAMPLE_TYPES", "cpu,alloc_space,alloc_objects,goroutines,mutex,block")
	v.SetDefault("O11Y_PROFILING_UPLOAD_INTERVAL_SECONDS", 15)

	// Automatically read environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	_ = v.ReadInConfig() //nolint:errcheck // Ignore error if .env file doesn't exist

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("PORT"),
			GinMode:        v.GetString("GIN_MODE"),
			AppEnv:         v.GetString("APP_ENV"),
			AllowedOrigins: splitList(v.GetString("ALLOWED_CORS_ORIGINS")),
			MaxBodyBytes:   v.GetInt64("MAX_BODY_BYTES"),
			EnableHSTS:     v.GetBool("ENABLE_HSTS"),
		},
		Database: DatabaseConfig{
			URL:           v.GetString("DATABASE_URL"),
			MaxConns:      v.GetInt32("DB_MAX_CONNS"),
			MinConns:      v.GetInt32("DB_MIN_CONNS"),
			CACertPath:    v.GetString("DB_CA_CERT_PATH"),
			TLSServerName: v.GetString("DB_TLS_SERVER_NAME"),
			WorkOffline:   v.GetBool("DB_WORK_OFFLINE"),
			StoreTimeout:  time.Duration(v.GetInt("STORE_TIMEOUT_MS")) * time.Millisecond,
		},
		Redis: RedisConfig{
			URL:       v.GetString("REDIS_URL"),
			KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
		},
		Auth: AuthConfig{
			JWTSecret:            v.GetString("JWT_SECRET"),
			JWTIssuer:            v.GetString("JWT_ISSUER"),
			AccessTokenTTL:       time.Duration(v.GetInt("ACCESS_TOKEN_TTL_MINUTES")) * time.Minute,
			RefreshTokenTTL:      time.Duration(v.GetInt("REFRESH_TOKEN_TTL_HOURS")) * time.Hour,
			EmailScope:           strings.ToLower(strings.TrimSpace(v.GetString("AUTH_EMAIL_SCOPE"))),
			RefreshTokenRotation: v.GetBool("REFRESH_TOKEN_ROTATION"),
			BootstrapAdminEmail:  v.GetString("ADMIN_BOOTSTRAP_EMAIL"),
			BootstrapAdminSecret: v.GetString("ADMIN_BOOTSTRAP_SECRET"),
		},
		Hasher: HasherConfig{
			MemoryKiB:   v.GetUint32("ARGON2_MEMORY_KIB"),
			Iterations:  v.GetUint32("ARGON2_ITERATIONS"),
			Parallelism: uint8(v.GetUint("ARGON2_PARALLELISM")), //nolint:gosec // validated below
		},
		RateLimit: RateLimitConfig{
			GeneralRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
			GeneralBurst: v.GetInt("RATE_LIMIT_BURST"),
			LoginLimit:   v.GetInt("LOGIN_RATE_LIMIT"),
			LoginWindow:  time.Duration(v.GetInt("LOGIN_RATE_WINDOW_SECONDS")) * time.Second,
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
			Dir:   v.GetString("LOG_DIR"),
		},
		Observability: ObservabilityConfig{
			AlloyEndpoint:     v.GetString("O11Y_EXPORTER_ENDPOINT"),
			ServiceName:       v.GetString("O11Y_BE_SERVICE_NAME"),
			ServiceNamespace:  v.GetString("O11Y_SERVICE_NAMESPACE"),
			ServiceVersion:    v.GetString("O11Y_BE_SERVICE_VERSION"),
			ServiceInstanceID: v.GetString("SERVICE_INSTANCE_ID"),
		},
		Profiling: ProfilingConfig{
			Enabled:               v.GetBool("O11Y_PROFILING_ENABLED"),
			Endpoint:              v.GetString("O11Y_PROFILING_ENDPOINT"),
			AppName:               v.GetString("O11Y_PROFILING_APP_NAME"),
			SampleTypes:           v.GetString("O11Y_PROFILING_SAMPLE_TYPES"),
			UploadIntervalSeconds: v.GetInt("O11Y_PROFILING_UPLOAD_INTERVAL_SECONDS"),
		},
		Cache: CacheConfig{
			PrincipalTTL: time.Duration(v.GetInt("PRINCIPAL_CACHE_TTL_SECONDS")) * time.Second,
		},
	}
}

func splitList(s string) []string {
	out := []string{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	if !c.Database.WorkOffline && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when not in offline mode")
	}
	if c.Database.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT_MS must be positive")
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is required and must be at least 32 bytes")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.Auth.RefreshTokenTTL < c.Auth.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL_HOURS must not be shorter than the access token TTL")
	}
	if c.Auth.EmailScope != "role" && c.Auth.EmailScope != "global" {
		return fmt.Errorf("AUTH_EMAIL_SCOPE must be 'role' or 'global', got %q", c.Auth.EmailScope)
	}
	if (c.Auth.BootstrapAdminEmail == "") != (c.Auth.BootstrapAdminSecret == "") {
		return fmt.Errorf("ADMIN_BOOTSTRAP_EMAIL and ADMIN_BOOTSTRAP_SECRET must be set together")
	}

	if c.Hasher.MemoryKiB < 8*1024 || c.Hasher.Iterations == 0 || c.Hasher.Parallelism == 0 {
		return fmt.Errorf("argon2 parameters are too weak")
	}

	if c.RateLimit.GeneralRPS <= 0 || c.RateLimit.GeneralBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.RateLimit.LoginLimit <= 0 || c.RateLimit.LoginWindow <= 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT and LOGIN_RATE_WINDOW_SECONDS must be positive")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if len(c.Server.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_CORS_ORIGINS is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}

	if c.Profiling.Enabled && c.Profiling.Endpoint == "" {
		return fmt.Errorf("O11Y_PROFILING_ENDPOINT is required when profiling is enabled")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.AppEnv == "development" || c.Server.GinMode == "debug"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.AppEnv == "production"
}
