package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for every environment variable read by the server
const EnvPrefix = "CSO"

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	Mode            string        `mapstructure:"mode"`
	TLS             struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"cert_file"`
		KeyFile  string `mapstructure:"key_file"`
	} `mapstructure:"tls"`
}

// DatabaseConfig holds persistence settings
type DatabaseConfig struct {
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	SQLite   struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"sqlite"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string for the configured database
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// AuthConfig holds bearer token settings. Tokens only carry an owner reference.
type AuthConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	TokenIssuer    string        `mapstructure:"token_issuer"`
	TokenAudience  string        `mapstructure:"token_audience"`
	Algorithm      string        `mapstructure:"algorithm"`
}

// ProviderConfig holds the external scanning provider connection settings
type ProviderConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	Burst      int           `mapstructure:"burst"`
	UserAgent  string        `mapstructure:"user_agent"`
}

// QuotaConfig describes the scan entitlement hook
type QuotaConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Limit       int           `mapstructure:"limit"`
	Window      time.Duration `mapstructure:"window"`
	ExemptKinds []string      `mapstructure:"exempt_kinds"`
}

// ScansConfig holds orchestrator tuning
type ScansConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	EventQueue    int           `mapstructure:"event_queue"`
	Quota         QuotaConfig   `mapstructure:"quota"`
}

// SchedulerConfig holds recurring trigger settings
type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// EventsConfig selects the progress broadcaster backend
type EventsConfig struct {
	Broker           string        `mapstructure:"broker"`
	PostgresDSN      string        `mapstructure:"postgres_dsn"`
	Channel          string        `mapstructure:"channel"`
	SubscriberBuffer int           `mapstructure:"subscriber_buffer"`
	Heartbeat        time.Duration `mapstructure:"heartbeat"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecurityConfig holds transport hardening and config encryption settings
type SecurityConfig struct {
	EncryptionKey     string   `mapstructure:"encryption_key"`
	EncryptionEnabled bool     `mapstructure:"encryption_enabled"`
	AllowedOrigins    []string `mapstructure:"allowed_origins"`
	RateLimiting      struct {
		Enabled    bool  `mapstructure:"enabled"`
		MaxPerIP   int   `mapstructure:"max_per_ip"`
		WindowSecs int64 `mapstructure:"window_secs"`
	} `mapstructure:"rate_limiting"`
}

// Config holds all configuration for the application
type Config struct {
	Version  string `mapstructure:"version"`
	ServerID string `mapstructure:"server_id"`

	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Scans     ScansConfig     `mapstructure:"scans"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Events    EventsConfig    `mapstructure:"events"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// configManager loads and caches the application configuration
type configManager struct {
	config *Config
	mu     sync.RWMutex
	log    *logrus.Logger
}

var (
	manager *configManager
	once    sync.Once
)

// GetConfigManager returns the process-wide config manager
func GetConfigManager() *configManager {
	once.Do(func() {
		manager = &configManager{log: logrus.New()}
	})
	return manager
}

// LoadConfig loads the configuration from defaults, config file and environment
func LoadConfig() (*Config, error) {
	return GetConfigManager().Load()
}

// Load reads configuration, decrypts "enc:" secrets and validates the result
func (cm *configManager) Load() (*Config, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	v := viper.New()
	setDefaults(v)

	if err := loadConfigFile(v); err != nil {
		cm.log.WithError(err).Warning("Failed to load config file, using environment variables only")
	}
	loadEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := newSecretBox(&cfg.Security, cm.log).decryptAll(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decrypt configuration secrets: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cm.config = &cfg
	return &cfg, nil
}

// GetConfig returns the last successfully loaded configuration
func (cm *configManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// SafeString masks a sensitive value for display
func SafeString(val string) string {
	if val == "" {
		return ""
	}
	return "********"
}

// MaskSensitiveFields returns a copy of the config with secrets masked
func (c *Config) MaskSensitiveFields() Config {
	masked := *c
	masked.Database.Password = SafeString(masked.Database.Password)
	masked.Auth.Secret = SafeString(masked.Auth.Secret)
	masked.Provider.APIKey = SafeString(masked.Provider.APIKey)
	masked.Security.EncryptionKey = SafeString(masked.Security.EncryptionKey)
	if masked.Events.PostgresDSN != "" {
		masked.Events.PostgresDSN = SafeString(masked.Events.PostgresDSN)
	}
	return masked
}

// EventsDSN returns the connection string used by the postgres broker,
// falling back to the main database when no dedicated DSN is configured.
func (c *Config) EventsDSN() string {
	if c.Events.PostgresDSN != "" {
		return c.Events.PostgresDSN
	}
	return c.Database.DSN()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", "1.0.0")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.tls.enabled", false)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "cobytes_scans")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.sqlite.path", "data/scans.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "5m")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.access_token_ttl", "1h")
	v.SetDefault("auth.token_issuer", "cobytes-scan-orchestrator")
	v.SetDefault("auth.token_audience", "cobytes-api")
	v.SetDefault("auth.algorithm", "HS256")

	v.SetDefault("provider.base_url", "https://app.pentest-tools.com/api/v2")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.timeout", "30s")
	v.SetDefault("provider.max_retries", 2)
	v.SetDefault("provider.retry_delay", "1s")
	v.SetDefault("provider.rate_limit", 5.0)
	v.SetDefault("provider.burst", 5)
	v.SetDefault("provider.user_agent", "cobytes-scan-orchestrator/1.0")

	v.SetDefault("scans.poll_interval", "5s")
	v.SetDefault("scans.timeout", "30m")
	v.SetDefault("scans.max_concurrent", 10)
	v.SetDefault("scans.event_queue", 256)
	v.SetDefault("scans.quota.enabled", false)
	v.SetDefault("scans.quota.limit", 0)
	v.SetDefault("scans.quota.window", "720h")
	v.SetDefault("scans.quota.exempt_kinds", []string{"ping", "whois", "dns_lookup"})

	v.SetDefault("scheduler.enabled", true)

	v.SetDefault("events.broker", "memory")
	v.SetDefault("events.postgres_dsn", "")
	v.SetDefault("events.channel", "scan_events")
	v.SetDefault("events.subscriber_buffer", 32)
	v.SetDefault("events.heartbeat", "15s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("security.encryption_enabled", false)
	v.SetDefault("security.encryption_key", "")
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.max_per_ip", 100)
	v.SetDefault("security.rate_limiting.window_secs", 60)
}

// loadConfigFile reads config.yaml if one exists on the search path
func loadConfigFile(v *viper.Viper) error {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/cobytes-scan")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}

// loadEnvVars binds CSO_* environment variables, e.g. CSO_PROVIDER_API_KEY
func loadEnvVars(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}
