// Package config loads service configuration from CLUBAPI_* environment
// variables. Everything has a workable default except the secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full service configuration.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string

	// PGDSN selects PostgreSQL persistence; empty means in-memory.
	PGDSN string

	// SessionTimeout is the inactivity window after which the sweeper
	// removes a session.
	SessionTimeout time.Duration
	// SweepInterval is how often the sweeper runs.
	SweepInterval time.Duration

	// MatrixFile optionally overrides the built-in permission matrix.
	MatrixFile string
	// APIKeyFile optionally enables static API keys.
	APIKeyFile string

	// ConfirmSecret signs confirmation tokens. Empty disables the
	// confirmation endpoints.
	ConfirmSecret string
	// RootPassword seeds the root account at startup. Empty disables root
	// login entirely.
	RootPassword string

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
	// RateBurst and RatePerSecond shape the per-client token bucket.
	RateBurst     int
	RatePerSecond int
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:    envString("CLUBAPI_LISTEN", ":8080"),
		PGDSN:         os.Getenv("CLUBAPI_PG_DSN"),
		MatrixFile:    os.Getenv("CLUBAPI_MATRIX_FILE"),
		APIKeyFile:    os.Getenv("CLUBAPI_APIKEY_FILE"),
		ConfirmSecret: os.Getenv("CLUBAPI_CONFIRM_SECRET"),
		RootPassword:  os.Getenv("CLUBAPI_ROOT_PASSWORD"),
	}

	var err error
	if cfg.SessionTimeout, err = envDuration("CLUBAPI_SESSION_TIMEOUT", 365*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = envDuration("CLUBAPI_SWEEP_INTERVAL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.MaxBodyBytes, err = envInt64("CLUBAPI_MAX_BODY_BYTES", 1<<20); err != nil {
		return Config{}, err
	}
	if cfg.RateBurst, err = envInt("CLUBAPI_RATE_BURST", 50); err != nil {
		return Config{}, err
	}
	if cfg.RatePerSecond, err = envInt("CLUBAPI_RATE_PER_SECOND", 25); err != nil {
		return Config{}, err
	}

	if cfg.SessionTimeout <= 0 {
		return Config{}, fmt.Errorf("config: CLUBAPI_SESSION_TIMEOUT must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("config: CLUBAPI_SWEEP_INTERVAL must be positive")
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
