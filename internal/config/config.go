// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default vendor endpoints. Overridable for tests and regional DMS instances.
const (
	DefaultLoginURL = "https://usiamapi.eversensedms.com/connect/token"
	DefaultAPIURL   = "https://usapialpha.eversensedms.com"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr    string
	DBPath        string
	PollInterval  time.Duration
	ErrorDisplay  time.Duration
	HistoryWindow time.Duration

	// SecretKey is the AES-256 key protecting persisted credentials. Nil
	// when unset, which disables credential persistence.
	SecretKey []byte

	// Optional bootstrap credentials for headless deployments. When set,
	// the poll service attempts a silent login with them at startup.
	Username string
	Password string
	Remember bool

	LoginURL string
	APIURL   string
	Demo     bool

	MQTTBroker   string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string
}

// HasBootstrapCredentials returns true when both Username and Password are
// set. Used by the composition root to seed the session service so the first
// silent login can succeed without anything persisted.
func (c *Config) HasBootstrapCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// MQTTEnabled returns true when a broker address is configured.
func (c *Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// Load reads configuration from environment variables and returns a validated
// Config. All variables are optional. Defaults: GLUCOPANEL_POLL_INTERVAL
// (60s), GLUCOPANEL_ERROR_DISPLAY (5s), GLUCOPANEL_HISTORY_WINDOW (24h),
// GLUCOPANEL_LISTEN_ADDR (127.0.0.1:8080), GLUCOPANEL_DB_PATH (glucopanel.db).
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:    "127.0.0.1:8080",
		DBPath:        "glucopanel.db",
		PollInterval:  60 * time.Second,
		ErrorDisplay:  5 * time.Second,
		HistoryWindow: 24 * time.Hour,
		LoginURL:      DefaultLoginURL,
		APIURL:        DefaultAPIURL,
		MQTTTopic:     "glucopanel/reading",
	}

	if v, ok := os.LookupEnv("GLUCOPANEL_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("GLUCOPANEL_DB_PATH"); ok {
		cfg.DBPath = v
	}

	var err error
	if cfg.PollInterval, err = durationEnv("GLUCOPANEL_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.ErrorDisplay, err = durationEnv("GLUCOPANEL_ERROR_DISPLAY", cfg.ErrorDisplay); err != nil {
		return nil, err
	}
	if cfg.HistoryWindow, err = durationEnv("GLUCOPANEL_HISTORY_WINDOW", cfg.HistoryWindow); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("GLUCOPANEL_SECRET_KEY"); ok {
		key, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("GLUCOPANEL_SECRET_KEY is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("GLUCOPANEL_SECRET_KEY must decode to 32 bytes (64 hex characters), got %d", len(key))
		}
		cfg.SecretKey = key
	}

	cfg.Username = os.Getenv("GLUCOPANEL_USERNAME")
	cfg.Password = os.Getenv("GLUCOPANEL_PASSWORD")
	if cfg.Remember, err = boolEnv("GLUCOPANEL_REMEMBER"); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("GLUCOPANEL_LOGIN_URL"); ok {
		cfg.LoginURL = v
	}
	if v, ok := os.LookupEnv("GLUCOPANEL_API_URL"); ok {
		cfg.APIURL = v
	}
	if cfg.Demo, err = boolEnv("GLUCOPANEL_DEMO"); err != nil {
		return nil, err
	}

	cfg.MQTTBroker = os.Getenv("GLUCOPANEL_MQTT_BROKER")
	cfg.MQTTUsername = os.Getenv("GLUCOPANEL_MQTT_USERNAME")
	cfg.MQTTPassword = os.Getenv("GLUCOPANEL_MQTT_PASSWORD")
	if v, ok := os.LookupEnv("GLUCOPANEL_MQTT_TOPIC"); ok {
		cfg.MQTTTopic = v
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	return parsed, nil
}

func boolEnv(key string) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s has invalid boolean %q: %w", key, v, err)
	}
	return parsed, nil
}
