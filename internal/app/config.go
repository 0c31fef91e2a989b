package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/franchise-orders/internal/storage/postgres"
)

const defaultAddr = "0.0.0.0:8080"

// Config is the order API configuration, loaded from ORDERS_-prefixed
// environment variables, flags and YAML files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (ORDERS_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Database     DatabaseConfig
	Orders       OrdersConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Health       HealthConfig
	Graceful     GracefulConfig
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL               string        `usage:"PostgreSQL connection URL (ORDERS_DATABASE_URL or DATABASE_URL)"`
	MaxConns          int32         `default:"10" usage:"Maximum pool connections"`
	MinConns          int32         `default:"0" usage:"Minimum idle pool connections"`
	MaxConnIdleTime   time.Duration `default:"5m" usage:"Close idle connections after this long"`
	HealthCheckPeriod time.Duration `default:"30s" usage:"Pool connection health check period"`
}

// Pool converts the settings for postgres.NewPool.
func (c DatabaseConfig) Pool() postgres.PoolConfig {
	return postgres.PoolConfig{
		URL:               c.URL,
		MaxConns:          c.MaxConns,
		MinConns:          c.MinConns,
		MaxConnIdleTime:   c.MaxConnIdleTime,
		HealthCheckPeriod: c.HealthCheckPeriod,
	}
}

// OrdersConfig tunes the order engine.
type OrdersConfig struct {
	WriteTimeout time.Duration `default:"10s" usage:"Deadline of a single order mutation" flag:"write-timeout"`
}

// RateLimitConfig controls per API key throttling of /api/orders.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// HealthConfig controls the probe checks.
type HealthConfig struct {
	Interval        time.Duration `default:"10s" usage:"Health check interval"`
	MaxGoroutines   int           `default:"10000" usage:"Liveness goroutine threshold"`
	DatabaseTimeout time.Duration `default:"5s" usage:"Readiness database check timeout"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s" usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads the configuration and applies platform fallbacks.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "ORDERS",
		Files:     []string{"config.yaml", "/etc/orders/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Database.URL == "":
		return errors.New("database URL is required: set ORDERS_DATABASE_URL or DATABASE_URL")
	case c.APIKeyPepper == "":
		return errors.New("API key pepper is required: set ORDERS_API_KEY_PEPPER")
	case c.Orders.WriteTimeout <= 0:
		return errors.New("orders write timeout must be positive")
	case c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0:
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// applyPlatformDefaults honours DATABASE_URL and PORT as set by hosting
// platforms.
func (c *Config) applyPlatformDefaults() {
	if c.Database.URL == "" {
		c.Database.URL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
