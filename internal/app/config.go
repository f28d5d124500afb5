package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/learnhub/internal/devbackend"
	"github.com/aussiebroadwan/learnhub/pkg/apiclient"
)

// Credential store drivers.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	APIURL    string        // Backend base URL (default: http://localhost:8080)
	Timeout   time.Duration // Per-request timeout (default: 10s)
	RateLimit float64       // Outgoing requests per second, 0 disables (default: 0)

	Store       string // memory, file, sqlite, redis (default: file)
	StorePath   string // file or sqlite location (default: learnhub-credentials.json / learnhub.db)
	RedisURL    string // Required for the redis store
	RedisPrefix string // Key prefix in redis (default: learnhub:credentials:)
	StoreKey    string // Optional: seals stored tokens with AES-GCM when set

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: text)

	Backend devbackend.Config
}

// fileConfig mirrors Config in the optional YAML file named by
// LEARNHUB_CONFIG. Zero values leave the defaults in place.
type fileConfig struct {
	Env string `yaml:"env"`

	API struct {
		URL       string        `yaml:"url"`
		Timeout   time.Duration `yaml:"timeout"`
		RateLimit float64       `yaml:"rateLimit"`
	} `yaml:"api"`

	Store struct {
		Driver      string `yaml:"driver"`
		Path        string `yaml:"path"`
		RedisURL    string `yaml:"redisURL"`
		RedisPrefix string `yaml:"redisPrefix"`
		Key         string `yaml:"key"`
	} `yaml:"store"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Backend struct {
		Port          int                   `yaml:"port"`
		Issuer        string                `yaml:"issuer"`
		AccessTTL     time.Duration         `yaml:"accessTTL"`
		RefreshTTL    time.Duration         `yaml:"refreshTTL"`
		KeyFile       string                `yaml:"keyFile"`
		Pepper        string                `yaml:"pepper"`
		SweepInterval time.Duration         `yaml:"sweepInterval"`
		Seeds         []devbackend.SeedUser `yaml:"seeds"`
	} `yaml:"backend"`
}

func defaultConfig() Config {
	return Config{
		APIURL:      "http://localhost:8080",
		Timeout:     apiclient.DefaultTimeout,
		Store:       StoreFile,
		RedisPrefix: "learnhub:credentials:",
		Env:         "dev",
		LogLevel:    "info",
		LogFormat:   "text",
		Backend: devbackend.Config{
			Port:                8080,
			Issuer:              "learnhub-dev",
			SweepInterval:       devbackend.DefaultSweepInterval,
			ShutdownGracePeriod: 10 * time.Second,
		},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file named
// by LEARNHUB_CONFIG if any, then environment variables.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("LEARNHUB_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.APIURL = getEnvOrDefault("LEARNHUB_API_URL", cfg.APIURL)
	cfg.Timeout = getEnvDurationOrDefault("LEARNHUB_TIMEOUT", cfg.Timeout)
	cfg.RateLimit = getEnvFloatOrDefault("LEARNHUB_RATE_LIMIT", cfg.RateLimit)
	cfg.Store = strings.ToLower(getEnvOrDefault("LEARNHUB_STORE", cfg.Store))
	cfg.StorePath = getEnvOrDefault("LEARNHUB_STORE_PATH", cfg.StorePath)
	cfg.RedisURL = getEnvOrDefault("LEARNHUB_REDIS_URL", cfg.RedisURL)
	cfg.RedisPrefix = getEnvOrDefault("LEARNHUB_REDIS_PREFIX", cfg.RedisPrefix)
	cfg.StoreKey = getEnvOrDefault("LEARNHUB_STORE_KEY", cfg.StoreKey)
	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)

	b := &cfg.Backend
	b.Port = getEnvIntOrDefault("PORT", b.Port)
	b.Issuer = getEnvOrDefault("DEVBACKEND_ISSUER", b.Issuer)
	b.AccessTTL = getEnvDurationOrDefault("DEVBACKEND_ACCESS_TTL", b.AccessTTL)
	b.RefreshTTL = getEnvDurationOrDefault("DEVBACKEND_REFRESH_TTL", b.RefreshTTL)
	b.KeyFile = getEnvOrDefault("DEVBACKEND_KEY_FILE", b.KeyFile)
	b.Pepper = getEnvOrDefault("DEVBACKEND_PEPPER", b.Pepper)
	b.SweepInterval = getEnvDurationOrDefault("DEVBACKEND_SWEEP_INTERVAL", b.SweepInterval)
	b.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", b.ShutdownGracePeriod)

	// A seeded admin is convenient for local work; both values must be set.
	if email, password := os.Getenv("DEVBACKEND_ADMIN_EMAIL"), os.Getenv("DEVBACKEND_ADMIN_PASSWORD"); email != "" && password != "" {
		b.Seeds = append(b.Seeds, devbackend.SeedUser{
			Email:    email,
			Password: password,
			FullName: "Administrator",
			Role:     devbackend.RoleAdmin,
		})
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Env, fc.Env)
	setString(&c.APIURL, fc.API.URL)
	setDuration(&c.Timeout, fc.API.Timeout)
	if fc.API.RateLimit > 0 {
		c.RateLimit = fc.API.RateLimit
	}

	setString(&c.Store, fc.Store.Driver)
	setString(&c.StorePath, fc.Store.Path)
	setString(&c.RedisURL, fc.Store.RedisURL)
	setString(&c.RedisPrefix, fc.Store.RedisPrefix)
	setString(&c.StoreKey, fc.Store.Key)

	setString(&c.LogLevel, fc.Log.Level)
	setString(&c.LogFormat, fc.Log.Format)

	b := &c.Backend
	if fc.Backend.Port > 0 {
		b.Port = fc.Backend.Port
	}
	setString(&b.Issuer, fc.Backend.Issuer)
	setDuration(&b.AccessTTL, fc.Backend.AccessTTL)
	setDuration(&b.RefreshTTL, fc.Backend.RefreshTTL)
	setString(&b.KeyFile, fc.Backend.KeyFile)
	setString(&b.Pepper, fc.Backend.Pepper)
	setDuration(&b.SweepInterval, fc.Backend.SweepInterval)
	b.Seeds = append(b.Seeds, fc.Backend.Seeds...)
	return nil
}

// Validate checks the client-side settings and fills in store paths.
func (c *Config) Validate() error {
	var errs []error

	if c.APIURL == "" {
		errs = append(errs, errors.New("api url is required"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit))
	}

	switch c.Store {
	case StoreMemory:
	case StoreFile:
		if c.StorePath == "" {
			c.StorePath = defaultStorePath("learnhub-credentials.json")
		}
	case StoreSQLite:
		if c.StorePath == "" {
			c.StorePath = defaultStorePath("learnhub.db")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("redis store requires LEARNHUB_REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown credential store %q", c.Store))
	}

	return errors.Join(errs...)
}

// defaultStorePath places name under the user config dir, falling back to the
// working directory.
func defaultStorePath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return name
	}
	return filepath.Join(dir, "learnhub", name)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// "1h", "30m", "90s"
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
