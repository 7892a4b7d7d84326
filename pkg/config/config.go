package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	NATS       NATSConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	Resilience ResilienceConfig
	Dispatch   DispatchConfig
	Tracing    TracingConfig
	Sentry     SentryConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           string
	Environment    string
	ServiceName    string
	Version        string
	LogLevel       string
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout int
	CORSOrigins    string // Comma-separated list of allowed origins
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int
	MinConns    int
	AutoMigrate bool
	// ProfileDSN points the driver profile lookups at a separate database.
	// Empty means the ride database.
	ProfileDSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NATSConfig holds the event bus connection settings
type NATSConfig struct {
	URL     string
	Enabled bool
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	WindowSeconds     int
	DefaultLimit      int
	DefaultBurst      int
	AnonymousLimit    int
	AnonymousBurst    int
	RedisPrefix       string
	EndpointOverrides map[string]EndpointRateLimitConfig
}

// EndpointRateLimitConfig allows customizing limits per endpoint
type EndpointRateLimitConfig struct {
	AuthenticatedLimit int `json:"authenticated_limit"`
	AuthenticatedBurst int `json:"authenticated_burst"`
	AnonymousLimit     int `json:"anonymous_limit"`
	AnonymousBurst     int `json:"anonymous_burst"`
	WindowSeconds      int `json:"window_seconds"`
}

// JWTConfig holds the identity verification key
type JWTConfig struct {
	Secret string
	Issuer string
}

// ResilienceConfig groups runtime resilience controls
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig captures default and per-dependency breaker tuning
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	TimeoutSeconds   int
	IntervalSeconds  int
	ServiceOverrides map[string]CircuitBreakerSettings
}

// CircuitBreakerSettings overrides defaults for a specific dependency
type CircuitBreakerSettings struct {
	FailureThreshold int `json:"failure_threshold"`
	SuccessThreshold int `json:"success_threshold"`
	TimeoutSeconds   int `json:"timeout_seconds"`
	IntervalSeconds  int `json:"interval_seconds"`
}

// DispatchConfig bounds the nearby-ride search.
type DispatchConfig struct {
	DefaultRadiusMeters float64
	MaxRadiusMeters     float64
}

// TracingConfig configures the OTLP exporter
type TracingConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRate   float64
}

// SentryConfig configures error tracking
type SentryConfig struct {
	DSN              string
	TracesSampleRate float64
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			ServiceName:    serviceName,
			Version:        getEnv("SERVICE_VERSION", "dev"),
			LogLevel:       getEnv("LOG_LEVEL", ""),
			ReadTimeout:    getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout:   getEnvAsInt("WRITE_TIMEOUT", 10),
			RequestTimeout: getEnvAsInt("REQUEST_TIMEOUT", 8),
			CORSOrigins:    getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			DBName:      getEnv("DB_NAME", "rides"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:    getEnvAsInt("DB_MIN_CONNS", 5),
			AutoMigrate: getEnvAsBool("DB_AUTO_MIGRATE", false),
			ProfileDSN:  getEnv("DRIVER_PROFILE_DSN", ""),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
			Enabled: getEnvAsBool("NATS_ENABLED", false),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Issuer: getEnv("JWT_ISSUER", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvAsBool("RATE_LIMIT_ENABLED", false),
			WindowSeconds:  getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			DefaultLimit:   getEnvAsInt("RATE_LIMIT_DEFAULT_LIMIT", 120),
			DefaultBurst:   getEnvAsInt("RATE_LIMIT_DEFAULT_BURST", 40),
			AnonymousLimit: getEnvAsInt("RATE_LIMIT_ANON_LIMIT", 60),
			AnonymousBurst: getEnvAsInt("RATE_LIMIT_ANON_BURST", 20),
			RedisPrefix:    getEnv("RATE_LIMIT_REDIS_PREFIX", "rate-limit"),
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          getEnvAsBool("CB_ENABLED", true),
				FailureThreshold: getEnvAsInt("CB_FAILURE_THRESHOLD", 5),
				SuccessThreshold: getEnvAsInt("CB_SUCCESS_THRESHOLD", 1),
				TimeoutSeconds:   getEnvAsInt("CB_TIMEOUT_SECONDS", 30),
				IntervalSeconds:  getEnvAsInt("CB_INTERVAL_SECONDS", 60),
			},
		},
		Dispatch: DispatchConfig{
			DefaultRadiusMeters: getEnvAsFloat("DISPATCH_DEFAULT_RADIUS_METERS", 5000),
			MaxRadiusMeters:     getEnvAsFloat("DISPATCH_MAX_RADIUS_METERS", 20000),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvAsBool("TRACING_ENABLED", false),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvAsFloat("TRACING_SAMPLE_RATE", 0.1),
		},
		Sentry: SentryConfig{
			DSN:              getEnv("SENTRY_DSN", ""),
			TracesSampleRate: getEnvAsFloat("SENTRY_TRACES_SAMPLE_RATE", 0.1),
		},
	}

	if overrides := getEnv("RATE_LIMIT_ENDPOINTS", ""); overrides != "" {
		var endpointConfig map[string]EndpointRateLimitConfig
		if err := json.Unmarshal([]byte(overrides), &endpointConfig); err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_ENDPOINTS value: %w", err)
		}
		cfg.RateLimit.EndpointOverrides = endpointConfig
	}

	if breakerOverrides := getEnv("CB_SERVICE_OVERRIDES", ""); breakerOverrides != "" {
		var serviceConfig map[string]CircuitBreakerSettings
		if err := json.Unmarshal([]byte(breakerOverrides), &serviceConfig); err != nil {
			return nil, fmt.Errorf("invalid CB_SERVICE_OVERRIDES value: %w", err)
		}
		cfg.Resilience.CircuitBreaker.ServiceOverrides = serviceConfig
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" && !c.IsDevelopment() {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	if c.Dispatch.DefaultRadiusMeters <= 0 {
		return fmt.Errorf("DISPATCH_DEFAULT_RADIUS_METERS must be positive")
	}
	if c.Dispatch.MaxRadiusMeters < c.Dispatch.DefaultRadiusMeters {
		return fmt.Errorf("DISPATCH_MAX_RADIUS_METERS must not be below the default radius")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be between 0 and 1")
	}
	return nil
}

// IsDevelopment reports whether internal error details may be exposed.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// SettingsFor returns effective breaker settings for a named dependency
func (c CircuitBreakerConfig) SettingsFor(service string) CircuitBreakerSettings {
	settings := CircuitBreakerSettings{
		FailureThreshold: c.FailureThreshold,
		SuccessThreshold: c.SuccessThreshold,
		TimeoutSeconds:   c.TimeoutSeconds,
		IntervalSeconds:  c.IntervalSeconds,
	}

	if override, ok := c.ServiceOverrides[service]; ok {
		if override.FailureThreshold > 0 {
			settings.FailureThreshold = override.FailureThreshold
		}
		if override.SuccessThreshold > 0 {
			settings.SuccessThreshold = override.SuccessThreshold
		}
		if override.TimeoutSeconds > 0 {
			settings.TimeoutSeconds = override.TimeoutSeconds
		}
		if override.IntervalSeconds > 0 {
			settings.IntervalSeconds = override.IntervalSeconds
		}
	}

	if settings.SuccessThreshold <= 0 {
		settings.SuccessThreshold = 1
	}
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.TimeoutSeconds <= 0 {
		settings.TimeoutSeconds = 30
	}
	if settings.IntervalSeconds <= 0 {
		settings.IntervalSeconds = 60
	}

	return settings
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// DriverProfileDSN returns the DSN used for driver profile lookups.
func (c *DatabaseConfig) DriverProfileDSN() string {
	if c.ProfileDSN != "" {
		return c.ProfileDSN
	}
	return c.DSN()
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// AllowedOrigins splits CORSOrigins.
func (c ServerConfig) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Window returns the configured rate limit window duration
func (c RateLimitConfig) Window() time.Duration {
	if c.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.WindowSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
