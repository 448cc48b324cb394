package config

import (
	"fmt"
	"time"
)

// InstanceCleanupConfig controls instance heartbeats and when a silent
// instance is considered stopped.
type InstanceCleanupConfig struct {
	// HeartbeatInterval is how often a running instance updates its row.
	// Default: 30s, Range: 1s-1h
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`

	// StaleThreshold is how long without a heartbeat before a running
	// instance is marked stopped. Must exceed HeartbeatInterval.
	// Default: 5m, Range: up to 24h
	StaleThreshold time.Duration `mapstructure:"stale_threshold" yaml:"stale_threshold"`
}

// DefaultInstanceCleanupConfig returns the default instance cleanup configuration
func DefaultInstanceCleanupConfig() InstanceCleanupConfig {
	return InstanceCleanupConfig{
		HeartbeatInterval: 30 * time.Second,
		StaleThreshold:    5 * time.Minute,
	}
}

// Validate checks if the configuration has valid values
func (c InstanceCleanupConfig) Validate() error {
	if c.HeartbeatInterval < time.Second || c.HeartbeatInterval > time.Hour {
		return fmt.Errorf("heartbeat_interval must be between 1s and 1h (got %v)", c.HeartbeatInterval)
	}
	if c.StaleThreshold <= c.HeartbeatInterval {
		return fmt.Errorf("stale_threshold (%v) must be greater than heartbeat_interval (%v)",
			c.StaleThreshold, c.HeartbeatInterval)
	}
	if c.StaleThreshold > 24*time.Hour {
		return fmt.Errorf("stale_threshold too large (got %v, max 24h)", c.StaleThreshold)
	}
	return nil
}

// StaleThresholdSeconds returns the threshold in the unit the store expects.
func (c InstanceCleanupConfig) StaleThresholdSeconds() int {
	return int(c.StaleThreshold.Seconds())
}

// String returns a human-readable representation of the config
func (c InstanceCleanupConfig) String() string {
	return fmt.Sprintf(
		"InstanceCleanupConfig{HeartbeatInterval: %v, StaleThreshold: %v}",
		c.HeartbeatInterval, c.StaleThreshold,
	)
}
