// Package config loads rotorctl's runtime configuration from environment
// variables, following the dev/prod password-required switch pattern of
// the teacher's internal/platform/db/config.go.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ErrMissingPassword is returned when a required password environment
// variable is not set in production mode.
var ErrMissingPassword = errors.New("config: required password environment variable not set")

// Config holds rotorctl's daemon configuration.
type Config struct {
	NATSHost     string
	NATSPort     string
	NATSUser     string
	NATSPassword string

	MetricsAddr string

	SchedulerEnabled bool
	DefaultPreAOS    time.Duration
}

// isDevelopmentMode returns true if ROTORCTL_ENV is set to "development".
func isDevelopmentMode() bool {
	return os.Getenv("ROTORCTL_ENV") == "development"
}

// Load reads configuration from the environment. In production mode
// (ROTORCTL_ENV unset or not "development"), NATS_PASSWORD is required if
// NATS_USER is set; development mode substitutes a default and logs a
// warning, mirroring the teacher's LoadConfig.
func Load() (*Config, error) {
	isDev := isDevelopmentMode()

	natsUser := getEnv("NATS_USER", "")
	natsPassword := os.Getenv("NATS_PASSWORD")

	if natsUser != "" && natsPassword == "" {
		if !isDev {
			return nil, fmt.Errorf("%w: NATS_PASSWORD (set ROTORCTL_ENV=development to use a default)", ErrMissingPassword)
		}
		natsPassword = "dev_nats_password"
		fmt.Println("[Config] WARNING: using default NATS_PASSWORD for development")
	}

	preAOSSeconds, err := strconv.Atoi(getEnv("ROTORCTL_PREAOS_SECONDS", "120"))
	if err != nil {
		return nil, fmt.Errorf("config: ROTORCTL_PREAOS_SECONDS: %w", err)
	}

	cfg := &Config{
		NATSHost:     getEnv("NATS_HOST", "localhost"),
		NATSPort:     getEnv("NATS_PORT", "4222"),
		NATSUser:     natsUser,
		NATSPassword: natsPassword,

		MetricsAddr: getEnv("ROTORCTL_METRICS_ADDR", ":9464"),

		SchedulerEnabled: getEnv("ROTORCTL_SCHEDULER_ENABLED", "true") == "true",
		DefaultPreAOS:    time.Duration(preAOSSeconds) * time.Second,
	}
	return cfg, nil
}

// NATSURL builds the connection URL for the configured NATS host/port,
// embedding credentials when set.
func (c *Config) NATSURL() string {
	if c.NATSUser != "" {
		return fmt.Sprintf("nats://%s:%s@%s:%s", c.NATSUser, c.NATSPassword, c.NATSHost, c.NATSPort)
	}
	return fmt.Sprintf("nats://%s:%s", c.NATSHost, c.NATSPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
