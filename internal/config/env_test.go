package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		setEnv   bool
		defValue bool
		expected bool
	}{
		{"not set true", "", false, true, true},
		{"not set false", "", false, false, false},
		{"true", "true", true, false, true},
		{"yes", "yes", true, false, true},
		{"1", "1", true, false, true},
		{"false", "false", true, true, false},
		{"off", "off", true, true, false},
		{"invalid keeps default", "maybe", true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv("CSO_TEST_ENV_VAR", tt.envValue)
			} else {
				os.Unsetenv("CSO_TEST_ENV_VAR")
			}
			assert.Equal(t, tt.expected, GetEnvBool("TEST_ENV_VAR", tt.defValue))
		})
	}
}

func TestEnvironmentChecks(t *testing.T) {
	t.Setenv("CSO_ENV", "production")
	assert.True(t, IsProduction())

	t.Setenv("CSO_ENV", "moon")
	assert.Equal(t, EnvDevelopment, DefaultEnvProvider().GetEnvironment())
	assert.False(t, IsProduction())
}

func TestSkipSecretValidation(t *testing.T) {
	t.Setenv("CSO_ENV", EnvDevelopment)
	t.Setenv("CSO_SKIP_SECRET_VALIDATION", "yes")
	assert.True(t, skipSecretValidation())

	cfg := validConfig()
	cfg.Auth.Secret = ""
	cfg.Provider.APIKey = ""
	assert.NoError(t, validateConfig(cfg))

	t.Setenv("CSO_ENV", EnvProduction)
	assert.False(t, skipSecretValidation())
	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.secret")
	assert.Contains(t, err.Error(), "provider.api_key")
}

func TestProductionRules(t *testing.T) {
	t.Setenv("CSO_ENV", EnvProduction)

	cfg := validConfig()
	cfg.Server.Mode = "release"
	assert.NoError(t, validateConfig(cfg))

	cfg.Server.Mode = "debug"
	cfg.Security.AllowedOrigins = []string{"https://app.cobytes.com", " * "}
	cfg.Database.Type = "postgres"
	cfg.Database.SSLMode = "disable"
	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.mode")
	assert.Contains(t, err.Error(), "security.allowed_origins")
	assert.Contains(t, err.Error(), "database.ssl_mode")

	t.Setenv("CSO_ENV", EnvDevelopment)
	cfg = validConfig()
	cfg.Server.Mode = "debug"
	cfg.Security.AllowedOrigins = []string{"*"}
	assert.NoError(t, validateConfig(cfg))
}
