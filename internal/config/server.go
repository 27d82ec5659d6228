// Package config provides configuration for the print service binaries.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ServerConfig holds server configuration loaded from environment variables.
type ServerConfig struct {
	Environment Environment
	Port        int
	DatabaseURL string
	// RedisURL selects the Redis group layer when set; empty runs the
	// in-process layer, which is only correct for a single server process.
	RedisURL string
	// SiteName is announced to print clients as server_name.
	SiteName string
	// SiteURL is the asset platform base URL encoded into label QR codes.
	SiteURL string
	// AdminAPIToken guards the admin REST API.
	AdminAPIToken string

	AuthTimeout               time.Duration
	JobTimeout                time.Duration
	SweepInterval             time.Duration
	SupportedProtocolVersions []string

	CORSOrigins       []string
	RateLimitRequests int
	RateLimitPeriod   time.Duration
	LogLevel          string
}

// LoadServerConfig reads server configuration from environment variables.
// Invalid values fall back to defaults; only structurally required settings
// produce errors so a misconfigured timer cannot keep the service down.
func LoadServerConfig() (ServerConfig, error) {
	env := Environment(os.Getenv("PROPS_ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	cfg := ServerConfig{
		Environment:               env,
		Port:                      getEnvInt("PORT", 8080),
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		RedisURL:                  os.Getenv("REDIS_URL"),
		SiteName:                  getEnvString("SITE_NAME", "PROPS"),
		SiteURL:                   getEnvString("SITE_URL", "http://localhost:8000"),
		AdminAPIToken:             os.Getenv("ADMIN_API_TOKEN"),
		AuthTimeout:               getEnvSeconds("PRINT_AUTH_TIMEOUT_SECONDS", 30*time.Second),
		JobTimeout:                getEnvSeconds("PRINT_JOB_TIMEOUT_SECONDS", 5*time.Minute),
		SweepInterval:             getEnvDuration("PRINT_SWEEP_INTERVAL", time.Minute),
		SupportedProtocolVersions: getEnvList("SUPPORTED_PROTOCOL_VERSIONS", []string{"1"}),
		CORSOrigins:               getEnvList("CORS_ORIGINS", nil),
		RateLimitRequests:         getEnvInt("RATE_LIMIT_REQUESTS", 300),
		RateLimitPeriod:           getEnvDuration("RATE_LIMIT_PERIOD", time.Minute),
		LogLevel:                  getEnvString("LOG_LEVEL", "info"),
	}

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	if cfg.Environment == EnvProduction && cfg.AdminAPIToken == "" {
		return cfg, errors.New("ADMIN_API_TOKEN is required in production")
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer from an environment variable, returning the
// default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvSeconds reads a whole-seconds value.
func getEnvSeconds(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return time.Duration(n) * time.Second
}

// getEnvDuration reads a Go duration string ("90s", "5m").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// getEnvList reads a comma-separated list, trimming whitespace and dropping
// empty entries.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
