package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags
// Default "dev" is used for development builds
var Version = "dev"

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "ARCHIVARR"

// Config holds all application configuration.
// Precedence, lowest first: defaults, config file, ARCHIVARR_* environment, flags.
type Config struct {
	// APIURL is the base URL of the remote asset API, e.g. "https://vault.example.com/API/"
	APIURL string `mapstructure:"api-url"`

	// APIToken is sent as "Authorization: Token <token>"
	APIToken string `mapstructure:"api-token"`

	// AppID is sent as the App-ID header
	AppID string `mapstructure:"app-id"`

	// RequestTimeout bounds every single API request (default: 30s)
	RequestTimeout time.Duration `mapstructure:"request-timeout"`

	// RateLimitRPS is the maximum requests per second to the API (default: 5)
	RateLimitRPS float64 `mapstructure:"rate-limit-rps"`

	// RateLimitBurst allows short bursts above RateLimitRPS (default: 10)
	RateLimitBurst int `mapstructure:"rate-limit-burst"`

	// BreakerFailureThreshold is the number of consecutive failures that opens the circuit (default: 5)
	BreakerFailureThreshold int `mapstructure:"breaker-failure-threshold"`

	// BreakerResetTimeout is how long the circuit stays open before a trial request (default: 30s)
	BreakerResetTimeout time.Duration `mapstructure:"breaker-reset-timeout"`

	// MaxRetries applies to GET requests only. Writes are never retried.
	// Off by default: retrying is an operator decision (default: 0)
	MaxRetries int `mapstructure:"max-retries"`

	PageSize        int           `mapstructure:"page-size"`
	PauseEveryPages int           `mapstructure:"pause-every-pages"`
	PagePause       time.Duration `mapstructure:"page-pause"`
	MaxDepth        int           `mapstructure:"max-depth"`

	// Window is the number of items processed concurrently (default: 10)
	Window int `mapstructure:"window"`

	// LogLevel controls logging verbosity: "debug", "info", "warn", "error" (default: "info")
	LogLevel string `mapstructure:"log-level"`

	// LogDir enables the rotating log file when set
	LogDir string `mapstructure:"log-dir"`

	// Live issues writes. The default is a dry run.
	Live bool `mapstructure:"live"`
}

var defaults = map[string]interface{}{
	"api-url":                   "",
	"api-token":                 "",
	"app-id":                    "",
	"request-timeout":           30 * time.Second,
	"rate-limit-rps":            5.0,
	"rate-limit-burst":          10,
	"breaker-failure-threshold": 5,
	"breaker-reset-timeout":     30 * time.Second,
	"max-retries":               0,
	"page-size":                 100,
	"pause-every-pages":         5,
	"page-pause":                500 * time.Millisecond,
	"max-depth":                 10,
	"window":                    10,
	"log-level":                 "info",
	"log-dir":                   "",
	"live":                      false,
}

// Global singleton
var cfg *Config

// Load builds the configuration from defaults, the optional config file named by
// the "config" flag, the environment and the given flags, and installs it as the
// global configuration. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}

	cfg = c
	return cfg, nil
}

// normalize fixes values that have an obvious safe fallback and rejects the rest.
func (c *Config) normalize() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		c.LogLevel = "info" // Fall back to info for invalid values
	}

	if c.Window < 1 {
		c.Window = 1
	}
	if c.MaxDepth < 1 {
		return errors.New("max-depth must be at least 1")
	}
	if c.PageSize < 1 {
		return errors.New("page-size must be at least 1")
	}
	if c.RateLimitRPS <= 0 {
		return errors.New("rate-limit-rps must be positive")
	}
	if c.RateLimitBurst < 1 {
		c.RateLimitBurst = 1
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return nil
}

// Validate checks the settings every command that talks to the API needs.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api-url is required (flag --api-url or ARCHIVARR_API_URL)")
	}
	if c.APIToken == "" {
		return errors.New("api-token is required (flag --api-token or ARCHIVARR_API_TOKEN)")
	}
	return nil
}

// Get returns the current configuration. Panics if Load() hasn't been called.
func Get() *Config {
	if cfg == nil {
		panic("config.Load() must be called before config.Get()")
	}
	return cfg
}

// SetForTesting allows tests to set the global config without calling Load().
// This should ONLY be used in test code.
func SetForTesting(c *Config) {
	cfg = c
}

// NewTestConfig returns a minimal Config suitable for unit tests.
func NewTestConfig() *Config {
	return &Config{
		APIURL:                  "http://127.0.0.1/API/",
		APIToken:                "test-token",
		AppID:                   "test-app",
		RequestTimeout:          5 * time.Second,
		RateLimitRPS:            1000,
		RateLimitBurst:          1000,
		BreakerFailureThreshold: 5,
		BreakerResetTimeout:     time.Second,
		MaxRetries:              0,
		PageSize:                2,
		PauseEveryPages:         5,
		PagePause:               0,
		MaxDepth:                10,
		Window:                  10,
		LogLevel:                "debug",
	}
}
