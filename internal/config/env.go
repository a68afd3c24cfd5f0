package config

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Environment types
const (
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

// EnvProvider reads prefixed environment variables outside of viper,
// for the few settings needed before the config file is loaded.
type EnvProvider struct {
	log    *logrus.Logger
	Prefix string
}

// NewEnvProvider creates a new environment provider
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{log: logrus.New(), Prefix: prefix}
}

// DefaultEnvProvider returns a provider using the application prefix
func DefaultEnvProvider() *EnvProvider {
	return NewEnvProvider(EnvPrefix)
}

// Get gets an environment variable or returns a default value if not present
func (p *EnvProvider) Get(key, defaultValue string) string {
	value, exists := os.LookupEnv(p.fullKey(key))
	if !exists {
		return defaultValue
	}
	return value
}

// GetBool gets a boolean environment variable or returns a default value
func (p *EnvProvider) GetBool(key string, defaultValue bool) bool {
	fullKey := p.fullKey(key)
	valueStr, exists := os.LookupEnv(fullKey)
	if !exists {
		return defaultValue
	}

	switch strings.ToLower(valueStr) {
	case "true", "yes", "y", "1", "on", "enabled":
		return true
	case "false", "no", "n", "0", "off", "disabled":
		return false
	default:
		p.log.Warnf("Invalid boolean value for environment variable %s: %s, using default: %v",
			fullKey, valueStr, defaultValue)
		return defaultValue
	}
}

// GetEnvironment returns the deployment environment, defaulting to development
func (p *EnvProvider) GetEnvironment() string {
	env := strings.ToLower(p.Get("ENV", EnvDevelopment))
	switch env {
	case EnvProduction, EnvStaging, EnvDevelopment, EnvTest:
		return env
	default:
		p.log.Warnf("Invalid environment value: %s, defaulting to development", env)
		return EnvDevelopment
	}
}

// IsProduction checks if the environment is production
func (p *EnvProvider) IsProduction() bool {
	return p.GetEnvironment() == EnvProduction
}

func (p *EnvProvider) fullKey(key string) string {
	if p.Prefix == "" {
		return key
	}
	return p.Prefix + "_" + key
}

// GetEnvBool gets a boolean application environment variable
func GetEnvBool(key string, defaultValue bool) bool {
	return DefaultEnvProvider().GetBool(key, defaultValue)
}

// IsProduction checks if the process runs in production
func IsProduction() bool {
	return DefaultEnvProvider().IsProduction()
}
