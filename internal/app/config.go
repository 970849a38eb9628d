package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (BAZAAR_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage     string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL string `usage:"PostgreSQL connection URL (BAZAAR_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	MaxConns    int32  `default:"10" usage:"Maximum PostgreSQL pool connections" flag:"max-conns"`
	Redis       RedisConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// RedisConfig enables idempotent order placement when Addr is set.
type RedisConfig struct {
	Addr     string        `usage:"Redis address host:port (BAZAAR_REDIS_ADDR or REDIS_URL)"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database number"`
	TTL      time.Duration `default:"24h" usage:"How long an Idempotency-Key is remembered"`
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET" usage:"HMAC secret for HS256 bearer tokens (BAZAAR_AUTH_JWT_SECRET)" flag:"jwt-secret"`
	Issuer    string `default:"bazaar" usage:"Expected token issuer; empty disables the check"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BAZAAR",
		Files:     []string{"config.yaml", "/etc/bazaar/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set BAZAAR_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage backend %q", c.Storage)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT secret is required: set BAZAAR_AUTH_JWT_SECRET")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's BAZAAR_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
