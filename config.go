package dispatch

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for the dispatch core and its server.
type Config struct {
	// HTTPAddr is the listen address for the REST and WebSocket surface.
	HTTPAddr string `yaml:"http_addr"`

	// DatabaseURL is the Postgres connection string. Empty selects the
	// in-memory store (development only).
	DatabaseURL string `yaml:"database_url"`

	// RedisAddr enables the Redis presence/surge overlay when set.
	RedisAddr string `yaml:"redis_addr"`

	// MapsAPIKey authenticates against the geocoding/distance provider.
	// Empty key leaves the matcher in degraded (unranked) mode.
	MapsAPIKey string `yaml:"maps_api_key"`

	// NotifyWebhookURL is the fire-and-forget SMS/email relay endpoint.
	// Empty falls back to log-only notifications.
	NotifyWebhookURL string `yaml:"notify_webhook_url"`

	// AdminPhone and AdminEmail receive no-show and SLA escalations.
	AdminPhone string `yaml:"admin_phone"`
	AdminEmail string `yaml:"admin_email"`

	// MatchRadiusMiles bounds standard matching.
	MatchRadiusMiles float64 `yaml:"match_radius_miles"`

	// EmergencyRadiusMiles is the relaxed radius for emergency dispatch.
	EmergencyRadiusMiles float64 `yaml:"emergency_radius_miles"`

	// HeartbeatSeconds is the WebSocket ping interval.
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:             ":8080",
		AdminPhone:           "+14073383342",
		AdminEmail:           "admin@uptend.app",
		MatchRadiusMiles:     25,
		EmergencyRadiusMiles: 50,
		HeartbeatSeconds:     30,
		ShutdownTimeout:      30 * time.Second,
	}
}

// LoadConfig reads a YAML config file over the defaults and applies
// environment overrides for secrets.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("dispatch: read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("dispatch: parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides secret-bearing fields from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("MAPS_API_KEY"); v != "" {
		c.MapsAPIKey = v
	}
	if v := os.Getenv("NOTIFY_WEBHOOK_URL"); v != "" {
		c.NotifyWebhookURL = v
	}
	if v := os.Getenv("ADMIN_PHONE"); v != "" {
		c.AdminPhone = v
	}
	if v := os.Getenv("ADMIN_EMAIL"); v != "" {
		c.AdminEmail = v
	}
}

// HeartbeatInterval returns the WebSocket ping interval as a Duration.
func (c Config) HeartbeatInterval() time.Duration {
	if c.HeartbeatSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.HeartbeatSeconds) * time.Second
}
