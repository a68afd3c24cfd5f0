package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Errors []ValidationError
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (r *ValidationResult) add(field, format string, args ...interface{}) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// validateConfig checks every section and reports all problems at once
func validateConfig(config *Config) error {
	result := ValidationResult{Errors: []ValidationError{}}

	validateServer(config, &result)
	validateDatabase(config, &result)
	validateAuth(config, &result)
	validateProvider(config, &result)
	validateScans(config, &result)
	validateEvents(config, &result)
	if IsProduction() {
		validateProduction(config, &result)
	}

	if _, err := logrus.ParseLevel(config.Logging.Level); err != nil {
		result.add("logging.level", "invalid log level: %s", config.Logging.Level)
	}

	if len(result.Errors) > 0 {
		var msgs []string
		for _, e := range result.Errors {
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field, e.Message))
		}
		return fmt.Errorf("configuration validation failed: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func validateServer(config *Config, result *ValidationResult) {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		result.add("server.port", "invalid server port: %d", config.Server.Port)
	}

	if config.Server.TLS.Enabled {
		if config.Server.TLS.CertFile == "" {
			result.add("server.tls.cert_file", "TLS certificate file path cannot be empty when TLS is enabled")
		} else if !fileExists(config.Server.TLS.CertFile) {
			result.add("server.tls.cert_file", "TLS certificate file not found at %s", config.Server.TLS.CertFile)
		}
		if config.Server.TLS.KeyFile == "" {
			result.add("server.tls.key_file", "TLS key file path cannot be empty when TLS is enabled")
		} else if !fileExists(config.Server.TLS.KeyFile) {
			result.add("server.tls.key_file", "TLS key file not found at %s", config.Server.TLS.KeyFile)
		}
	}

	for _, proxy := range config.Server.TrustedProxies {
		if net.ParseIP(proxy) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(proxy); err != nil {
			result.add("server.trusted_proxies", "invalid IP or CIDR in trusted proxies: %s", proxy)
		}
	}
}

func validateDatabase(config *Config, result *ValidationResult) {
	switch config.Database.Type {
	case "sqlite":
		if config.Database.SQLite.Path == "" {
			result.add("database.sqlite.path", "sqlite database path is empty")
			break
		}
		if dir := filepath.Dir(config.Database.SQLite.Path); dir != "." && config.Database.SQLite.Path != ":memory:" {
			if err := MakeDirectory(dir); err != nil {
				result.add("database.sqlite.path", "failed to create directory for sqlite database: %v", err)
			}
		}
	case "postgres":
		if config.Database.Host == "" {
			result.add("database.host", "postgres host is empty")
		}
		if config.Database.Port == 0 {
			result.add("database.port", "postgres port is empty")
		}
		if config.Database.User == "" {
			result.add("database.user", "postgres user is empty")
		}
		if config.Database.Name == "" {
			result.add("database.name", "postgres database name is empty")
		}
	default:
		result.add("database.type", "unsupported database type: %s", config.Database.Type)
	}

	if config.Database.MaxOpenConns < 1 {
		result.add("database.max_open_conns", "max_open_conns must be at least 1")
	}
	if config.Database.MaxIdleConns < 0 {
		result.add("database.max_idle_conns", "max_idle_conns cannot be negative")
	}
}

// skipSecretValidation lets local setups run without secrets. Production never skips.
func skipSecretValidation() bool {
	return GetEnvBool("SKIP_SECRET_VALIDATION", false) && !IsProduction()
}

func validateAuth(config *Config, result *ValidationResult) {
	if !skipSecretValidation() {
		if config.Auth.Secret == "" {
			result.add("auth.secret", "auth secret is empty, this is a security risk")
		} else if len(config.Auth.Secret) < 32 {
			result.add("auth.secret", "auth secret is too short, it should be at least 32 characters")
		}
	}

	if config.Auth.AccessTokenTTL <= 0 {
		result.add("auth.access_token_ttl", "access token TTL must be positive")
	}

	switch config.Auth.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		result.add("auth.algorithm", "unsupported JWT algorithm: %s", config.Auth.Algorithm)
	}
}

func validateProvider(config *Config, result *ValidationResult) {
	u, err := url.Parse(config.Provider.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		result.add("provider.base_url", "invalid provider base URL: %s", config.Provider.BaseURL)
	}
	if config.Provider.APIKey == "" && !skipSecretValidation() {
		result.add("provider.api_key", "provider API key is empty")
	}
	if config.Provider.Timeout <= 0 {
		result.add("provider.timeout", "provider timeout must be positive")
	}
	if config.Provider.MaxRetries < 0 {
		result.add("provider.max_retries", "max_retries cannot be negative")
	}
	if config.Provider.RateLimit < 0 {
		result.add("provider.rate_limit", "rate_limit cannot be negative")
	}
}

func validateScans(config *Config, result *ValidationResult) {
	if config.Scans.PollInterval <= 0 {
		result.add("scans.poll_interval", "poll interval must be positive")
	}
	if config.Scans.Timeout <= config.Scans.PollInterval {
		result.add("scans.timeout", "scan timeout must be longer than the poll interval")
	}
	if config.Scans.MaxConcurrent < 1 {
		result.add("scans.max_concurrent", "max_concurrent must be at least 1")
	}
	if config.Scans.Quota.Enabled && config.Scans.Quota.Limit < 1 {
		result.add("scans.quota.limit", "quota limit must be at least 1 when quota is enabled")
	}
}

func validateEvents(config *Config, result *ValidationResult) {
	switch config.Events.Broker {
	case "memory":
	case "postgres":
		if config.Events.PostgresDSN == "" && config.Database.Type != "postgres" {
			result.add("events.postgres_dsn", "postgres broker needs events.postgres_dsn or a postgres database")
		}
		if config.Events.Channel == "" {
			result.add("events.channel", "notification channel is empty")
		}
	default:
		result.add("events.broker", "unsupported event broker: %s", config.Events.Broker)
	}
	if config.Events.SubscriberBuffer < 1 {
		result.add("events.subscriber_buffer", "subscriber buffer must be at least 1")
	}
}

// validateProduction rejects settings that are only acceptable during development
func validateProduction(config *Config, result *ValidationResult) {
	switch config.Server.Mode {
	case "debug", "development":
		result.add("server.mode", "server mode %s is not allowed in production", config.Server.Mode)
	}
	for _, origin := range config.Security.AllowedOrigins {
		if strings.TrimSpace(origin) == "*" {
			result.add("security.allowed_origins", "wildcard origin is not allowed in production")
			break
		}
	}
	if config.Database.Type == "postgres" && config.Database.SSLMode == "disable" {
		result.add("database.ssl_mode", "TLS to the database must not be disabled in production")
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
