package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default configuration file location.
const ConfigPath = "config.yaml"

const defaultSessionTTL = time.Hour

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                    string   `yaml:"port"`
	LogLevel                string   `yaml:"logLevel"`
	DatabaseURL             string   `yaml:"databaseURL"`
	DBHost                  string   `yaml:"dbHost"`
	DBName                  string   `yaml:"dbName"`
	DBUser                  string   `yaml:"dbUser"`
	DBPassword              string   `yaml:"dbPassword"`
	JWTSecret               string   `yaml:"jwtSecret"`
	SessionTTL              string   `yaml:"sessionTTL"`
	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	AllowedOrigins          []string `yaml:"allowedOrigins"`
	TokenRateLimitPerMinute int      `yaml:"tokenRateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides.
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
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.DBHost = strings.TrimSpace(v)
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.DBName = strings.TrimSpace(v)
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.DBUser = strings.TrimSpace(v)
	}
	if v := os.Getenv("DB_PASS"); v != "" {
		cfg.DBPassword = v
	}
	if v := os.Getenv("ACCESS_TOKEN_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		cfg.SessionTTL = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("TOKEN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.TokenRateLimitPerMinute = n
		}
	}
	if cfg.Port == "" {
		cfg.Port = "5000"
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or ACCESS_TOKEN_SECRET)")
	}
	if cfg.DatabaseURL == "" && (cfg.DBHost == "" || cfg.DBUser == "") {
		return errors.New("config: databaseURL or dbHost+dbUser is required")
	}
	if cfg.TokenRateLimitPerMinute < 0 {
		return errors.New("config: tokenRateLimitPerMinute must be >= 0")
	}
	return nil
}

// DatabaseDSN returns the configured connection string, composing one from
// the discrete credentials when databaseURL is not set.
func (cfg FileConfig) DatabaseDSN() string {
	if cfg.DatabaseURL != "" {
		return cfg.DatabaseURL
	}
	name := cfg.DBName
	if name == "" {
		name = "bookbeacon"
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		url.QueryEscape(cfg.DBUser),
		url.QueryEscape(cfg.DBPassword),
		cfg.DBHost,
		name,
	)
}

// ParseSessionTTL parses the optional session TTL, defaulting to one hour.
func ParseSessionTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		return defaultSessionTTL, nil
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	if dur <= 0 {
		return 0, errors.New("sessionTTL must be positive")
	}
	return dur, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
