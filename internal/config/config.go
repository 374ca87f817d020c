package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location relative to the process.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	DatabaseURL             string `yaml:"databaseURL"`
	BookCatalogPath         string `yaml:"bookCatalogPath"`
	RedisAddr               string `yaml:"redisAddr"`
	RedisPassword           string `yaml:"redisPassword"`
	TokenSecret             string `yaml:"tokenSecret"`
	TokenLifetime           string `yaml:"tokenLifetime"`
	OrderPayWindow          string `yaml:"orderPayWindow"`
	SweepInterval           string `yaml:"sweepInterval"`
	SweepWorkers            int    `yaml:"sweepWorkers"`
	LoginRateLimitPerMinute int    `yaml:"loginRateLimitPerMinute"`
	LogLevel                string `yaml:"logLevel"`
	MinioEndpoint           string `yaml:"minioEndpoint"`
	MinioAccessKey          string `yaml:"minioAccessKey"`
	MinioSecretKey          string `yaml:"minioSecretKey"`
	MinioBucket             string `yaml:"minioBucket"`
	MinioUseSSL             bool   `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("BOOK_CATALOG_PATH"); v != "" {
		cfg.BookCatalogPath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("TOKEN_SECRET"); v != "" {
		cfg.TokenSecret = v
	}
	if v := os.Getenv("TOKEN_LIFETIME"); v != "" {
		cfg.TokenLifetime = v
	}
	if v := os.Getenv("ORDER_PAY_WINDOW"); v != "" {
		cfg.OrderPayWindow = v
	}
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		cfg.SweepInterval = v
	}
	if v := os.Getenv("SWEEP_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SweepWorkers = n
		}
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.TokenSecret) == "" {
		return errors.New("config: tokenSecret is required (set TOKEN_SECRET)")
	}
	if cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: loginRateLimitPerMinute must be >= 0")
	}
	if cfg.LoginRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when login throttling is enabled")
	}
	if cfg.SweepWorkers < 0 {
		return errors.New("config: sweepWorkers must be >= 0")
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "") {
		return errors.New("config: minioEndpoint requires minioAccessKey and minioSecretKey")
	}
	return nil
}

// ParseTokenLifetime parses the optional token lifetime duration string.
func ParseTokenLifetime(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid tokenLifetime duration: %w", err)
	}
	return dur, nil
}

// ParsePayWindow parses the optional order payment window duration string.
func ParsePayWindow(winStr string) (time.Duration, error) {
	if winStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(winStr)
	if err != nil {
		return 0, fmt.Errorf("invalid orderPayWindow duration: %w", err)
	}
	return dur, nil
}

// ParseSweepInterval parses the optional sweep interval duration string.
func ParseSweepInterval(intervalStr string) (time.Duration, error) {
	if intervalStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(intervalStr)
	if err != nil {
		return 0, fmt.Errorf("invalid sweepInterval duration: %w", err)
	}
	return dur, nil
}
