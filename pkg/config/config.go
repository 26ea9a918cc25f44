package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Maps       MapsConfig
	Session    SessionConfig
	NATS       NATSConfig
	Pricing    PricingConfig
	Tracing    TracingConfig
	Sentry     SentryConfig
	RateLimit  RateLimitConfig
	Resilience ResilienceConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int
	WriteTimeout int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// MapsConfig configures the Google Maps Web Services client
type MapsConfig struct {
	APIKey                string
	BaseURL               string
	TimeoutSeconds        int
	Language              string
	PlacesRadiusMeters    int
	GeocodeCacheTTLHours  int
	PlacesCacheTTLMinutes int
}

// SessionConfig tunes ordering sessions
type SessionConfig struct {
	ShareGraceMs           int
	QueueCapacity          int
	NearbyLimit            int
	TrackMyLocation        bool
	TrackMinDistanceMeters float64
	Locale                 string
	MaxSessions            int
}

// NATSConfig holds the event bus connection settings
type NATSConfig struct {
	Enabled bool
	URL     string
}

// PricingConfig holds trip pricing settings
type PricingConfig struct {
	CurrencySymbol string
}

// TracingConfig holds OpenTelemetry exporter settings
type TracingConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRate   float64
}

// SentryConfig holds error reporting settings
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// RateLimitConfig holds rate limiting configuration. Anonymous limits apply
// per client IP, session limits per ordering session.
type RateLimitConfig struct {
	Enabled           bool
	WindowSeconds     int
	AnonymousLimit    int
	AnonymousBurst    int
	SessionLimit      int
	SessionBurst      int
	RedisPrefix       string
	EndpointOverrides map[string]EndpointRateLimitConfig
}

// EndpointRateLimitConfig customizes limits for one "METHOD:/route" key.
// A negative burst keeps the default.
type EndpointRateLimitConfig struct {
	AnonymousLimit int `json:"anonymous_limit"`
	AnonymousBurst int `json:"anonymous_burst"`
	SessionLimit   int `json:"session_limit"`
	SessionBurst   int `json:"session_burst"`
	WindowSeconds  int `json:"window_seconds"`
}

// ResilienceConfig groups runtime resilience controls
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig captures default and per-service breaker tuning
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	TimeoutSeconds   int
	IntervalSeconds  int
	ServiceOverrides map[string]CircuitBreakerSettings
}

// CircuitBreakerSettings overrides defaults for a specific upstream service
type CircuitBreakerSettings struct {
	FailureThreshold int `json:"failure_threshold"`
	SuccessThreshold int `json:"success_threshold"`
	TimeoutSeconds   int `json:"timeout_seconds"`
	IntervalSeconds  int `json:"interval_seconds"`
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 10),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Maps: MapsConfig{
			APIKey:                getEnv("GOOGLE_MAPS_API_KEY", ""),
			BaseURL:               getEnv("MAPS_BASE_URL", "https://maps.googleapis.com/maps/api"),
			TimeoutSeconds:        getEnvAsInt("MAPS_TIMEOUT_SECONDS", 10),
			Language:              getEnv("MAPS_LANGUAGE", "en"),
			PlacesRadiusMeters:    getEnvAsInt("MAPS_PLACES_RADIUS_METERS", 1500),
			GeocodeCacheTTLHours:  getEnvAsInt("MAPS_GEOCODE_CACHE_TTL_HOURS", 24),
			PlacesCacheTTLMinutes: getEnvAsInt("MAPS_PLACES_CACHE_TTL_MINUTES", 30),
		},
		Session: SessionConfig{
			ShareGraceMs:           getEnvAsInt("SESSION_SHARE_GRACE_MS", 5000),
			QueueCapacity:          getEnvAsInt("SESSION_QUEUE_CAPACITY", 1000),
			NearbyLimit:            getEnvAsInt("SESSION_NEARBY_LIMIT", 20),
			TrackMyLocation:        getEnvAsBool("SESSION_TRACK_MY_LOCATION", false),
			TrackMinDistanceMeters: getEnvAsFloat("SESSION_TRACK_MIN_DISTANCE_METERS", 50),
			Locale:                 getEnv("SESSION_LOCALE", "en"),
			MaxSessions:            getEnvAsInt("SESSION_MAX_ACTIVE", 10000),
		},
		NATS: NATSConfig{
			Enabled: getEnvAsBool("NATS_ENABLED", false),
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
		},
		Pricing: PricingConfig{
			CurrencySymbol: getEnv("PRICING_CURRENCY_SYMBOL", "₽"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvAsBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvAsFloat("OTEL_SAMPLE_RATE", 1.0),
		},
		Sentry: SentryConfig{
			DSN:         getEnv("SENTRY_DSN", ""),
			Environment: getEnv("SENTRY_ENVIRONMENT", getEnv("ENVIRONMENT", "development")),
			Release:     getEnv("SENTRY_RELEASE", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
			WindowSeconds:     getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			AnonymousLimit:    getEnvAsInt("RATE_LIMIT_ANON_LIMIT", 60),
			AnonymousBurst:    getEnvAsInt("RATE_LIMIT_ANON_BURST", 20),
			SessionLimit:      getEnvAsInt("RATE_LIMIT_SESSION_LIMIT", 240),
			SessionBurst:      getEnvAsInt("RATE_LIMIT_SESSION_BURST", 60),
			RedisPrefix:       getEnv("RATE_LIMIT_REDIS_PREFIX", "rate-limit"),
			EndpointOverrides: DefaultRateLimitOverrides(),
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
	}

	if breakerOverrides := getEnv("CB_SERVICE_OVERRIDES", ""); breakerOverrides != "" {
		var serviceConfig map[string]CircuitBreakerSettings
		if err := json.Unmarshal([]byte(breakerOverrides), &serviceConfig); err != nil {
			return nil, fmt.Errorf("invalid CB_SERVICE_OVERRIDES value: %w", err)
		}
		cfg.Resilience.CircuitBreaker.ServiceOverrides = serviceConfig
	}

	if overrides := getEnv("RATE_LIMIT_ENDPOINTS", ""); overrides != "" {
		var endpointConfig map[string]EndpointRateLimitConfig
		if err := json.Unmarshal([]byte(overrides), &endpointConfig); err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_ENDPOINTS value: %w", err)
		}
		for endpoint, override := range endpointConfig {
			cfg.RateLimit.EndpointOverrides[endpoint] = override
		}
	}
	if cfg.RateLimit.WindowSeconds <= 0 {
		cfg.RateLimit.WindowSeconds = 60
	}

	if cfg.Maps.TimeoutSeconds <= 0 {
		cfg.Maps.TimeoutSeconds = 10
	}
	if cfg.Maps.PlacesRadiusMeters <= 0 {
		cfg.Maps.PlacesRadiusMeters = 1500
	}
	if cfg.Session.QueueCapacity <= 0 {
		cfg.Session.QueueCapacity = 1000
	}
	if cfg.Session.NearbyLimit <= 0 {
		cfg.Session.NearbyLimit = 20
	}
	if cfg.Session.ShareGraceMs < 0 {
		cfg.Session.ShareGraceMs = 0
	}
	if cfg.Session.MaxSessions < 0 {
		cfg.Session.MaxSessions = 0
	}

	cb := &cfg.Resilience.CircuitBreaker
	if cb.TimeoutSeconds <= 0 {
		cb.TimeoutSeconds = 30
	}
	if cb.IntervalSeconds <= 0 {
		cb.IntervalSeconds = 60
	}
	if cb.FailureThreshold <= 0 {
		cb.FailureThreshold = 5
	}
	if cb.SuccessThreshold <= 0 {
		cb.SuccessThreshold = 1
	}

	return cfg, nil
}

// SettingsFor returns effective breaker settings for a specific upstream service name
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

// DefaultRateLimitOverrides gives session creation a tighter anonymous limit
// than the rest of the API.
func DefaultRateLimitOverrides() map[string]EndpointRateLimitConfig {
	return map[string]EndpointRateLimitConfig{
		"POST:/api/v1/sessions": {AnonymousLimit: 10, AnonymousBurst: 5, SessionBurst: -1},
	}
}

// Window returns the default rate limit window
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Timeout returns the maps request timeout
func (c MapsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GeocodeCacheTTL returns how long reverse geocoding results are cached
func (c MapsConfig) GeocodeCacheTTL() time.Duration {
	return time.Duration(c.GeocodeCacheTTLHours) * time.Hour
}

// PlacesCacheTTL returns how long nearby places are cached per cell
func (c MapsConfig) PlacesCacheTTL() time.Duration {
	return time.Duration(c.PlacesCacheTTLMinutes) * time.Minute
}

// ShareGrace returns how long address streams outlive their last subscriber
func (c SessionConfig) ShareGrace() time.Duration {
	return time.Duration(c.ShareGraceMs) * time.Millisecond
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
