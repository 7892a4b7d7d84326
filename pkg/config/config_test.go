package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")

	cfg, err := Load("rides-service")
	require.NoError(t, err)

	assert.Equal(t, "rides-service", cfg.Server.ServiceName)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 5000.0, cfg.Dispatch.DefaultRadiusMeters)
	assert.Equal(t, 20000.0, cfg.Dispatch.MaxRadiusMeters)
	assert.Equal(t, cfg.Database.DSN(), cfg.Database.DriverProfileDSN())
}

func TestLoadRequiresJWTSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load("rides-service")
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load("rides-service")
	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadRejectsInvertedRadiusBounds(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("DISPATCH_DEFAULT_RADIUS_METERS", "8000")
	t.Setenv("DISPATCH_MAX_RADIUS_METERS", "4000")

	_, err := Load("rides-service")
	assert.Error(t, err)
}

func TestCircuitBreakerOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("CB_SERVICE_OVERRIDES", `{"driver-profiles":{"failure_threshold":2,"timeout_seconds":5}}`)

	cfg, err := Load("rides-service")
	require.NoError(t, err)

	settings := cfg.Resilience.CircuitBreaker.SettingsFor("driver-profiles")
	assert.Equal(t, 2, settings.FailureThreshold)
	assert.Equal(t, 5, settings.TimeoutSeconds)
	assert.Equal(t, 60, settings.IntervalSeconds)

	fallback := cfg.Resilience.CircuitBreaker.SettingsFor("unknown")
	assert.Equal(t, 5, fallback.FailureThreshold)
}

func TestLoadRejectsMalformedOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("RATE_LIMIT_ENDPOINTS", "{not json")

	_, err := Load("rides-service")
	assert.ErrorContains(t, err, "RATE_LIMIT_ENDPOINTS")
}

func TestAllowedOrigins(t *testing.T) {
	s := ServerConfig{CORSOrigins: " https://a.example, ,https://b.example "}
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, s.AllowedOrigins())
}
