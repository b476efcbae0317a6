package managesieve

import (
	"fmt"

	"github.com/migadu/sieveconn/config"
	"github.com/migadu/sieveconn/pkg/retry"
)

// OptionsFromConfig builds connection options from the [client] section.
func OptionsFromConfig(cfg *config.ClientConfig) (Options, error) {
	connectTimeout, err := cfg.GetConnectTimeout()
	if err != nil {
		return Options{}, fmt.Errorf("invalid connect_timeout: %w", err)
	}
	pollInterval, err := cfg.GetPollInterval()
	if err != nil {
		return Options{}, fmt.Errorf("invalid poll_interval: %w", err)
	}
	drainGrace, err := cfg.GetDrainGrace()
	if err != nil {
		return Options{}, fmt.Errorf("invalid drain_grace: %w", err)
	}

	return Options{
		Name:           cfg.Name,
		ConnectTimeout: connectTimeout,
		PollInterval:   pollInterval,
		PollAttempts:   cfg.PollAttempts,
		DrainGrace:     drainGrace,
		Debug:          cfg.Debug,
	}, nil
}

// BackoffFromConfig builds the dial retry policy from the [client.retry] section.
func BackoffFromConfig(cfg *config.RetryConfig) (retry.BackoffConfig, error) {
	initial, err := cfg.GetInitialInterval()
	if err != nil {
		return retry.BackoffConfig{}, fmt.Errorf("invalid initial_interval: %w", err)
	}
	maxInterval, err := cfg.GetMaxInterval()
	if err != nil {
		return retry.BackoffConfig{}, fmt.Errorf("invalid max_interval: %w", err)
	}

	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	return retry.BackoffConfig{
		InitialInterval: initial,
		MaxInterval:     maxInterval,
		Multiplier:      multiplier,
		Jitter:          cfg.Jitter,
		MaxRetries:      cfg.MaxRetries,
	}, nil
}
