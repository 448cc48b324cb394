package config

import (
	"fmt"
	"time"
)

// EventRetentionConfig holds configuration for activity event retention
type EventRetentionConfig struct {
	// RetentionDays is the retention period for info and warning events.
	// Default: 30, Range: 1-365
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`

	// RetentionCriticalDays is the retention period for error and critical
	// events. Must be >= RetentionDays.
	// Default: 90, Range: 1-730
	RetentionCriticalDays int `mapstructure:"retention_critical_days" yaml:"retention_critical_days"`

	// PerTicketLimitEvents caps the events kept per ticket; the oldest
	// non-critical events go first. 0 = unlimited.
	// Default: 1000, Range: 0 or 100-10000
	PerTicketLimitEvents int `mapstructure:"per_ticket_limit_events" yaml:"per_ticket_limit_events"`

	// GlobalLimitEvents caps the total number of events. Cleanup triggers
	// at 95% of this limit.
	// Default: 100000, Range: 1000-1000000
	GlobalLimitEvents int `mapstructure:"global_limit_events" yaml:"global_limit_events"`

	// CleanupIntervalHours is how often the running loop prunes events.
	// Default: 24, Range: 1-168
	CleanupIntervalHours int `mapstructure:"cleanup_interval_hours" yaml:"cleanup_interval_hours"`

	// CleanupBatchSize is the number of events deleted per statement.
	// Default: 1000, Range: 100-10000
	CleanupBatchSize int `mapstructure:"cleanup_batch_size" yaml:"cleanup_batch_size"`

	// CleanupEnabled controls whether the running loop prunes events.
	CleanupEnabled bool `mapstructure:"cleanup_enabled" yaml:"cleanup_enabled"`

	// CleanupVacuum runs VACUUM after a cleanup that deleted something.
	CleanupVacuum bool `mapstructure:"cleanup_vacuum" yaml:"cleanup_vacuum"`
}

// DefaultEventRetentionConfig returns the default event retention configuration
func DefaultEventRetentionConfig() EventRetentionConfig {
	return EventRetentionConfig{
		RetentionDays:         30,
		RetentionCriticalDays: 90,
		PerTicketLimitEvents:  1000,
		GlobalLimitEvents:     100000,
		CleanupIntervalHours:  24,
		CleanupBatchSize:      1000,
		CleanupEnabled:        true,
		CleanupVacuum:         false,
	}
}

// Validate checks if the configuration has valid values
func (c EventRetentionConfig) Validate() error {
	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		return fmt.Errorf("retention_days must be between 1 and 365 (got %d)", c.RetentionDays)
	}

	if c.RetentionCriticalDays < 1 || c.RetentionCriticalDays > 730 {
		return fmt.Errorf("retention_critical_days must be between 1 and 730 (got %d)",
			c.RetentionCriticalDays)
	}
	if c.RetentionCriticalDays < c.RetentionDays {
		return fmt.Errorf("retention_critical_days (%d) must be >= retention_days (%d)",
			c.RetentionCriticalDays, c.RetentionDays)
	}

	if c.PerTicketLimitEvents < 0 {
		return fmt.Errorf("per_ticket_limit_events cannot be negative (got %d)",
			c.PerTicketLimitEvents)
	}
	if c.PerTicketLimitEvents > 0 && c.PerTicketLimitEvents < 100 {
		return fmt.Errorf("per_ticket_limit_events must be 0 (unlimited) or >= 100 (got %d)",
			c.PerTicketLimitEvents)
	}
	if c.PerTicketLimitEvents > 10000 {
		return fmt.Errorf("per_ticket_limit_events too large (got %d, max 10000)",
			c.PerTicketLimitEvents)
	}

	if c.GlobalLimitEvents < 1000 {
		return fmt.Errorf("global_limit_events must be at least 1000 (got %d)",
			c.GlobalLimitEvents)
	}
	if c.GlobalLimitEvents > 1000000 {
		return fmt.Errorf("global_limit_events too large (got %d, max 1000000)",
			c.GlobalLimitEvents)
	}

	if c.CleanupIntervalHours < 1 {
		return fmt.Errorf("cleanup_interval_hours must be at least 1 (got %d)",
			c.CleanupIntervalHours)
	}
	if c.CleanupIntervalHours > 168 {
		return fmt.Errorf("cleanup_interval_hours too large (got %d, max 168)",
			c.CleanupIntervalHours)
	}

	if c.CleanupBatchSize < 100 {
		return fmt.Errorf("cleanup_batch_size must be at least 100 (got %d)",
			c.CleanupBatchSize)
	}
	if c.CleanupBatchSize > 10000 {
		return fmt.Errorf("cleanup_batch_size too large (got %d, max 10000)",
			c.CleanupBatchSize)
	}

	return nil
}

// CleanupInterval returns the cleanup period as a time.Duration
func (c EventRetentionConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalHours) * time.Hour
}

// GlobalTrigger is the event count at which global cleanup starts.
func (c EventRetentionConfig) GlobalTrigger() int {
	return int(float64(c.GlobalLimitEvents) * 0.95)
}

// String returns a human-readable representation of the config
func (c EventRetentionConfig) String() string {
	return fmt.Sprintf(
		"EventRetentionConfig{RetentionDays: %d, RetentionCriticalDays: %d, "+
			"PerTicketLimit: %d, GlobalLimit: %d, CleanupInterval: %dh, "+
			"BatchSize: %d, Enabled: %t, Vacuum: %t}",
		c.RetentionDays, c.RetentionCriticalDays, c.PerTicketLimitEvents,
		c.GlobalLimitEvents, c.CleanupIntervalHours, c.CleanupBatchSize,
		c.CleanupEnabled, c.CleanupVacuum,
	)
}
