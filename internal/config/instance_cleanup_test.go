package config

import (
	"testing"
	"time"
)

func TestDefaultInstanceCleanupConfig(t *testing.T) {
	cfg := DefaultInstanceCleanupConfig()

	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("Expected HeartbeatInterval to be 30s, got %v", cfg.HeartbeatInterval)
	}
	if cfg.StaleThreshold != 5*time.Minute {
		t.Errorf("Expected StaleThreshold to be 5m, got %v", cfg.StaleThreshold)
	}
	if got := cfg.StaleThresholdSeconds(); got != 300 {
		t.Errorf("Expected StaleThresholdSeconds to be 300, got %d", got)
	}
}

func TestInstanceCleanupConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     InstanceCleanupConfig
		wantErr bool
	}{
		{
			name:    "default config is valid",
			cfg:     DefaultInstanceCleanupConfig(),
			wantErr: false,
		},
		{
			name:    "minimum heartbeat",
			cfg:     InstanceCleanupConfig{HeartbeatInterval: time.Second, StaleThreshold: 2 * time.Second},
			wantErr: false,
		},
		{
			name:    "maximum bounds",
			cfg:     InstanceCleanupConfig{HeartbeatInterval: time.Hour, StaleThreshold: 24 * time.Hour},
			wantErr: false,
		},
		{
			name:    "heartbeat too short",
			cfg:     InstanceCleanupConfig{HeartbeatInterval: 500 * time.Millisecond, StaleThreshold: time.Minute},
			wantErr: true,
		},
		{
			name:    "heartbeat too long",
			cfg:     InstanceCleanupConfig{HeartbeatInterval: 2 * time.Hour, StaleThreshold: 3 * time.Hour},
			wantErr: true,
		},
		{
			name:    "stale threshold equal to heartbeat",
			cfg:     InstanceCleanupConfig{HeartbeatInterval: time.Minute, StaleThreshold: time.Minute},
			wantErr: true,
		},
		{
			name:    "stale threshold too long",
			cfg:     InstanceCleanupConfig{HeartbeatInterval: time.Minute, StaleThreshold: 25 * time.Hour},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInstanceCleanupConfigString(t *testing.T) {
	got := DefaultInstanceCleanupConfig().String()
	want := "InstanceCleanupConfig{HeartbeatInterval: 30s, StaleThreshold: 5m0s}"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
