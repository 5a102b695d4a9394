// Package config collects the gateway configuration once at startup.
// Values come from an optional YAML file (HYPRCAT_CONFIG), overridden by
// HYPRCAT_* environment variables, with sane defaults for everything.
// Secrets are auto-generated when absent so a bare `hyprcat-server` run
// works out of the box.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Storage backend names recognized by StorageBackend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the process-wide configuration record. It is initialized once
// in Load and passed explicitly; tests inject alternate values directly.
type Config struct {
	Port            string        `yaml:"port"`
	Host            string        `yaml:"host"`
	BaseURL         string        `yaml:"base_url"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
	RateLimitMax    int           `yaml:"rate_limit_max"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`

	EnableLogging         bool `yaml:"enable_logging"`
	EnableSecurityHeaders bool `yaml:"enable_security_headers"`
	EnableCompression     bool `yaml:"enable_compression"`

	StorageBackend string `yaml:"storage_backend"` // memory | file | redis
	StorageDir     string `yaml:"storage_dir"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`

	JWTSecret     string `yaml:"jwt_secret"`
	PaymentSecret string `yaml:"payment_secret"`

	// DevMode gates the simulated-signature verification path. Never set
	// in production.
	DevMode bool `yaml:"dev_mode"`
}

// Load builds the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("HYPRCAT_CONFIG"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://" + cfg.Host + ":" + cfg.Port
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = randomSecret()
	}
	if cfg.PaymentSecret == "" {
		cfg.PaymentSecret = randomSecret()
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Port:                  "8402",
		Host:                  "localhost",
		CORSOrigins:           []string{"*"},
		RateLimitWindow:       time.Minute,
		RateLimitMax:          120,
		RequestTimeout:        30 * time.Second,
		EnableLogging:         true,
		EnableSecurityHeaders: true,
		StorageBackend:        BackendMemory,
		StorageDir:            "./data",
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "HYPRCAT_PORT", "PORT")
	setString(&cfg.Host, "HYPRCAT_HOST")
	setString(&cfg.BaseURL, "HYPRCAT_BASE_URL")
	if v := os.Getenv("HYPRCAT_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitTrim(v)
	}
	setDuration(&cfg.RateLimitWindow, "HYPRCAT_RATE_LIMIT_WINDOW")
	setInt(&cfg.RateLimitMax, "HYPRCAT_RATE_LIMIT_MAX")
	setDuration(&cfg.RequestTimeout, "HYPRCAT_REQUEST_TIMEOUT")
	setBool(&cfg.EnableLogging, "HYPRCAT_ENABLE_LOGGING")
	setBool(&cfg.EnableSecurityHeaders, "HYPRCAT_ENABLE_SECURITY_HEADERS")
	setBool(&cfg.EnableCompression, "HYPRCAT_ENABLE_COMPRESSION")
	if v := os.Getenv("HYPRCAT_STORAGE_BACKEND"); v == BackendMemory || v == BackendFile || v == BackendRedis {
		cfg.StorageBackend = v
	}
	setString(&cfg.StorageDir, "HYPRCAT_STORAGE_DIR")
	setString(&cfg.RedisAddr, "HYPRCAT_REDIS_ADDR")
	setString(&cfg.RedisPassword, "HYPRCAT_REDIS_PASSWORD")
	setInt(&cfg.RedisDB, "HYPRCAT_REDIS_DB")
	setString(&cfg.JWTSecret, "HYPRCAT_JWT_SECRET")
	setString(&cfg.PaymentSecret, "HYPRCAT_PAYMENT_SECRET")
	setBool(&cfg.DevMode, "HYPRCAT_DEV_MODE")
}

func setString(dst *string, keys ...string) {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			*dst = v
			return
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("config: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
