// Package config loads process configuration from environment variables
// (with an optional .env for local development and an optional YAML file
// for static defaults), the way the teacher repo's pkg/config does.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP+realtime gateway listener.
type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST"`
	Port int    `yaml:"port" env:"SERVER_PORT"`
}

// CORSConfig is the origin allow-list enforced by the gateway (§4.5 item 1).
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS,:"`
}

// RateLimitConfig configures the per-IP token bucket (§4.5 item 3).
type RateLimitConfig struct {
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute" env:"RATE_LIMIT_PER_MINUTE,default=600"`
}

// AuthConfig controls realtime handshake auth and internal-route gating (§4.5, §6).
type AuthConfig struct {
	RealtimeAuthSecret  string   `yaml:"realtime_auth_secret" env:"REALTIME_AUTH_SECRET"`
	InternalBearerToken string   `yaml:"internal_bearer_token" env:"INTERNAL_BEARER_TOKEN"`
	TrustedNetworks     []string `yaml:"trusted_networks" env:"INTERNAL_TRUSTED_NETWORKS,:"`
	Production          bool     `yaml:"production" env:"PRODUCTION,default=false"`
}

// LoggingConfig controls the process-wide logger (§A.1).
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL,default=info"`
	Format string `yaml:"format" env:"LOG_FORMAT,default=json"`
}

// ControlConfig carries ambient tuning knobs for the PID and perf monitor loops.
type ControlConfig struct {
	HeatingTickInterval time.Duration `yaml:"heating_tick_interval" env:"HEATING_TICK_INTERVAL,default=30s"`
	GaugeSampleInterval time.Duration `yaml:"gauge_sample_interval" env:"GAUGE_SAMPLE_INTERVAL,default=10s"`
	DeviceCallTimeout   time.Duration `yaml:"device_call_timeout" env:"DEVICE_CALL_TIMEOUT,default=3s"`
	EnergyTariffSEK     float64       `yaml:"energy_tariff_sek" env:"ENERGY_TARIFF_SEK_PER_KWH,default=1.85"`
}

// Config is the fully assembled process configuration.
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Auth      AuthConfig
	Logging   LoggingConfig
	Control   ControlConfig
}

// Load reads an optional .env file, an optional YAML config file named by
// CONFIG_FILE, then overlays environment variables (which always win).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("decode env config: %w", err)
	}

	// envdecode splits slice variables on ';' only, so comma-separated
	// origins are split here as well.
	var origins []string
	for _, item := range cfg.CORS.AllowedOrigins {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				origins = append(origins, p)
			}
		}
	}
	cfg.CORS.AllowedOrigins = origins

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.RateLimit.MaxRequestsPerMinute <= 0 {
		cfg.RateLimit.MaxRequestsPerMinute = 600
	}

	return cfg, nil
}
