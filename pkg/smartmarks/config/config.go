package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	devJWTSecret = "smartmarks-dev-secret-change-in-production"
)

// Config holds the server settings. Every key can be set through the
// environment with the SMARTMARKS_ prefix, e.g. SMARTMARKS_PORT.
type Config struct {
	Host    string `mapstructure:"HOST"`
	Port    string `mapstructure:"PORT"`
	BaseURL string `mapstructure:"BASE_URL"`

	DBDriver string `mapstructure:"DB_DRIVER"`
	DBDSN    string `mapstructure:"DB_DSN"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	TokenTTL  time.Duration `mapstructure:"TOKEN_TTL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`

	MetaTimeout      time.Duration `mapstructure:"META_TIMEOUT"`
	MetaMaxBodyBytes int64         `mapstructure:"META_MAX_BODY_BYTES"`

	ReorderConcurrency int `mapstructure:"REORDER_CONCURRENCY"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	Dev             bool          `mapstructure:"DEV"`
}

var keys = []string{
	"HOST", "PORT", "BASE_URL",
	"DB_DRIVER", "DB_DSN",
	"JWT_SECRET", "TOKEN_TTL",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET",
	"META_TIMEOUT", "META_MAX_BODY_BYTES",
	"REORDER_CONCURRENCY",
	"LOG_LEVEL", "LOG_PRETTY",
	"SHUTDOWN_TIMEOUT", "DEV",
}

// New reads the configuration from defaults, an optional config file
// (SMARTMARKS_CONFIG) and the environment, in increasing precedence.
func New() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("SMARTMARKS")

	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", "8080")
	v.SetDefault("BASE_URL", "http://localhost:8080")
	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("DB_DSN", "smartmarks.db")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("TOKEN_TTL", 24*time.Hour)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("META_TIMEOUT", 15*time.Second)
	v.SetDefault("META_MAX_BODY_BYTES", 0)
	v.SetDefault("REORDER_CONCURRENCY", 8)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("SHUTDOWN_TIMEOUT", 5*time.Second)
	v.SetDefault("DEV", false)

	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, "bind env %s", key)
		}
	}

	if path := os.Getenv("SMARTMARKS_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if cfg.JWTSecret == "" && cfg.Dev {
		cfg.JWTSecret = devJWTSecret
	}

	if err := validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Listen returns the host:port the HTTP server binds to.
func (c *Config) Listen() string {
	return c.Host + ":" + c.Port
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func validate(cfg *Config) error {
	switch cfg.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return errors.New(fmt.Sprintf("DB driver is invalid: %s", cfg.DBDriver))
	}
	if cfg.DBDSN == "" {
		return errors.New("DB DSN is empty")
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT secret is empty (set SMARTMARKS_JWT_SECRET or SMARTMARKS_DEV=true)")
	}
	if cfg.TokenTTL <= 0 {
		return errors.New(fmt.Sprintf("token TTL must be positive: %s", cfg.TokenTTL))
	}
	if cfg.ReorderConcurrency < 1 {
		return errors.New(fmt.Sprintf("reorder concurrency must be >= 1: %d", cfg.ReorderConcurrency))
	}
	if cfg.MetaMaxBodyBytes < 0 {
		return errors.New(fmt.Sprintf("meta max body bytes must be >= 0: %d", cfg.MetaMaxBodyBytes))
	}
	return nil
}
