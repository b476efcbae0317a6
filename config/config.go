package config

import (
	"fmt"
	"log"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/migadu/sieveconn/helpers"
)

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Output string `toml:"output"` // Log output: "stderr", "stdout", "syslog", or file path
	Format string `toml:"format"` // Log format: "json" or "console"
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", "error"
}

// RetryConfig controls how often a failed dial is retried.
type RetryConfig struct {
	MaxRetries      int     `toml:"max_retries"`      // Retries after the first attempt (default: 0, no retries)
	InitialInterval string  `toml:"initial_interval"` // Delay before the first retry (default: "500ms")
	MaxInterval     string  `toml:"max_interval"`     // Upper bound on the delay between retries (default: "5s")
	Multiplier      float64 `toml:"multiplier"`       // Growth factor of the delay (default: 2.0)
	Jitter          bool    `toml:"jitter"`           // Randomize delays (default: true)
}

// GetInitialInterval parses the initial retry interval
func (r *RetryConfig) GetInitialInterval() (time.Duration, error) {
	if r.InitialInterval == "" {
		return 500 * time.Millisecond, nil
	}
	return helpers.ParseDuration(r.InitialInterval)
}

// GetMaxInterval parses the maximum retry interval
func (r *RetryConfig) GetMaxInterval() (time.Duration, error) {
	if r.MaxInterval == "" {
		return 5 * time.Second, nil
	}
	return helpers.ParseDuration(r.MaxInterval)
}

// ClientConfig holds the ManageSieve connection settings.
type ClientConfig struct {
	Name           string      `toml:"name"`            // Label used in log lines
	Host           string      `toml:"host"`            // Server host name or IP address
	Port           int         `toml:"port"`            // Server port (default: 2000)
	ConnectTimeout string      `toml:"connect_timeout"` // Per-address dial timeout (default: "10s")
	PollInterval   string      `toml:"poll_interval"`   // Response wait interval (default: "30ms")
	PollAttempts   int         `toml:"poll_attempts"`   // Response wait attempts (default: 10)
	DrainGrace     string      `toml:"drain_grace"`     // Time a drain read may wait for bytes in flight (default: "2ms")
	Debug          bool        `toml:"debug"`           // Log all commands and responses
	Retry          RetryConfig `toml:"retry"`
}

// GetConnectTimeout parses the connect timeout
func (c *ClientConfig) GetConnectTimeout() (time.Duration, error) {
	if c.ConnectTimeout == "" {
		return 10 * time.Second, nil
	}
	return helpers.ParseDuration(c.ConnectTimeout)
}

// GetPollInterval parses the response wait interval
func (c *ClientConfig) GetPollInterval() (time.Duration, error) {
	if c.PollInterval == "" {
		return 30 * time.Millisecond, nil
	}
	return helpers.ParseDuration(c.PollInterval)
}

// GetDrainGrace parses the drain grace period
func (c *ClientConfig) GetDrainGrace() (time.Duration, error) {
	if c.DrainGrace == "" {
		return 2 * time.Millisecond, nil
	}
	return helpers.ParseDuration(c.DrainGrace)
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"` // Listen address (default: ":9100")
	Path    string `toml:"path"` // HTTP path (default: "/metrics")
}

// Config holds all configuration for the application.
type Config struct {
	Logging LoggingConfig `toml:"logging"`
	Client  ClientConfig  `toml:"client"`
	Metrics MetricsConfig `toml:"metrics"`
}

// NewDefaultConfig creates a Config struct with default values.
func NewDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
		Client: ClientConfig{
			Name:           "default",
			Host:           "localhost",
			Port:           2000,
			ConnectTimeout: "10s",
			PollInterval:   "30ms",
			PollAttempts:   10,
			DrainGrace:     "2ms",
			Retry: RetryConfig{
				MaxRetries:      0,
				InitialInterval: "500ms",
				MaxInterval:     "5s",
				Multiplier:      2.0,
				Jitter:          true,
			},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9100",
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for values the client cannot work with.
func (c *Config) Validate() error {
	if c.Client.Host == "" {
		return fmt.Errorf("client.host is required")
	}
	if c.Client.Port < 0 || c.Client.Port > 65535 {
		return fmt.Errorf("client.port %d is out of range", c.Client.Port)
	}
	if c.Client.PollAttempts < 0 {
		return fmt.Errorf("client.poll_attempts must not be negative")
	}
	if c.Client.Retry.MaxRetries < 0 {
		return fmt.Errorf("client.retry.max_retries must not be negative")
	}

	durations := map[string]func() (time.Duration, error){
		"client.connect_timeout":        c.Client.GetConnectTimeout,
		"client.poll_interval":          c.Client.GetPollInterval,
		"client.drain_grace":            c.Client.GetDrainGrace,
		"client.retry.initial_interval": c.Client.Retry.GetInitialInterval,
		"client.retry.max_interval":     c.Client.Retry.GetMaxInterval,
	}
	for key, get := range durations {
		if _, err := get(); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			return fmt.Errorf("metrics.addr is required when metrics are enabled")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
		}
	}
	return nil
}

// LoadConfigFromFile loads configuration from a TOML file and trims whitespace from all string fields
// This function is lenient with:
//   - Duplicate keys: logs warning and uses first occurrence
//   - Unknown keys: logs warning and ignores them
func LoadConfigFromFile(configPath string, cfg *Config) error {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	metadata, err := toml.Decode(string(content), cfg)
	if err != nil {
		if !strings.Contains(err.Error(), "has already been defined") {
			return enhanceConfigError(err)
		}

		log.Printf("WARNING: Configuration file '%s' contains duplicate keys: %v", configPath, err)
		log.Printf("WARNING: Only the first occurrence of each key will be used.")

		metadata, err = toml.Decode(removeDuplicateKeysFromTOML(string(content)), cfg)
		if err != nil {
			return enhanceConfigError(err)
		}
	}

	if undecoded := metadata.Undecoded(); len(undecoded) > 0 {
		log.Printf("WARNING: Configuration file '%s' contains unknown keys that will be ignored:", configPath)
		for _, key := range undecoded {
			log.Printf("WARNING:   - %s", key)
		}
	}

	trimStringFields(reflect.ValueOf(cfg).Elem())
	return nil
}

// removeDuplicateKeysFromTOML comments out every repeated key of a table,
// keeping the first occurrence.
func removeDuplicateKeysFromTOML(content string) string {
	lines := strings.Split(content, "\n")
	seenKeys := make(map[string]int)
	result := make([]string, 0, len(lines))
	currentSection := ""

	for lineNum, line := range lines {
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			result = append(result, line)
			continue
		}

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			currentSection = strings.Trim(trimmed, "[] ")
			result = append(result, line)
			continue
		}

		if key, _, ok := strings.Cut(trimmed, "="); ok {
			fullKey := strings.TrimSpace(key)
			if currentSection != "" {
				fullKey = currentSection + "." + fullKey
			}
			if prevLine, exists := seenKeys[fullKey]; exists {
				log.Printf("WARNING: Duplicate key '%s' found at line %d (first occurrence at line %d). Ignoring duplicate.",
					fullKey, lineNum+1, prevLine+1)
				result = append(result, "# DUPLICATE IGNORED: "+line)
				continue
			}
			seenKeys[fullKey] = lineNum
		}

		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

// enhanceConfigError provides more helpful error messages for common TOML parsing issues
func enhanceConfigError(err error) error {
	errMsg := err.Error()

	if strings.Contains(errMsg, "expected value but found \"f\"") ||
		strings.Contains(errMsg, "expected value but found \"t\"") {
		return fmt.Errorf("%w\n\nHINT: In TOML, boolean values must be exactly 'true' or 'false' (lowercase, unquoted)", err)
	}

	if strings.Contains(errMsg, "incompatible types") {
		return fmt.Errorf("%w\n\nHINT: Durations are quoted strings (e.g. \"30ms\"), ports and attempts are unquoted integers", err)
	}

	if strings.Contains(errMsg, "expected") || strings.Contains(errMsg, "invalid") {
		return fmt.Errorf("%w\n\nHINT: There is a syntax error in your TOML configuration file.\n"+
			"Please check that all strings are quoted and section headers use [section] format", err)
	}

	return err
}

// trimStringFields recursively trims whitespace from all string fields in a struct
func trimStringFields(v reflect.Value) {
	if !v.IsValid() || !v.CanSet() {
		return
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(strings.TrimSpace(v.String()))
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			trimStringFields(v.Field(i))
		}
	case reflect.Ptr:
		if !v.IsNil() {
			trimStringFields(v.Elem())
		}
	}
}
