package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/fixbot/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. FIXBOT_LOOP_INTERVAL.
const EnvPrefix = "FIXBOT"

// envFallbacks are conventional variables consulted after FIXBOT_* ones.
var envFallbacks = map[string][]string{
	"tracker.api_token":        {"FIXBOT_TRACKER_API_TOKEN", "JIRA_API_TOKEN"},
	"tracker.token":            {"FIXBOT_TRACKER_TOKEN", "FIXBOT_JIRA_TOKEN"},
	"tracker.base_url":         {"FIXBOT_TRACKER_BASE_URL", "JIRA_BASE_URL"},
	"tracker.email":            {"FIXBOT_TRACKER_EMAIL", "JIRA_EMAIL"},
	"github.token":             {"FIXBOT_GITHUB_TOKEN", "GITHUB_TOKEN", "GH_TOKEN"},
	"notify.slack_webhook_url": {"FIXBOT_NOTIFY_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL"},
	"storage.postgres.dsn":     {"FIXBOT_STORAGE_POSTGRES_DSN", "DATABASE_URL"},
}

// LoadOptions controls where Load looks for overrides.
type LoadOptions struct {
	// File is an explicit config file; it must exist. When empty,
	// <state dir>/config.yaml is read if present.
	File string
	// Flags maps config keys (e.g. "loop.interval") to command-line flags.
	// A flag overrides the other layers only when it was set.
	Flags map[string]*pflag.Flag
}

// Load builds the effective configuration and validates it.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	defaults := make(map[string]any)
	flatten(toMap(reflect.ValueOf(Default()), false), "", defaults)
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envFallbacks {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	file := opts.File
	if file == "" {
		stateDir, err := storage.DiscoverStateDir()
		if err != nil {
			return nil, err
		}
		candidate := filepath.Join(stateDir, storage.ConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			file = candidate
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	keys := make([]string, 0, len(opts.Flags))
	for key := range opts.Flags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if f := opts.Flags[key]; f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.source = v.ConfigFileUsed()

	if cfg.StateDir != "" {
		abs, err := filepath.Abs(cfg.StateDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve state_dir: %w", err)
		}
		cfg.StateDir = abs
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = storage.DatabasePath(cfg.StateDir)
	}
	if cfg.Engine.Keywords == nil {
		cfg.Engine.Keywords = map[string]string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Path returns the file name of a state file inside the state directory.
func (c *Config) Path(name string) string {
	return filepath.Join(c.StateDir, name)
}

// YAML renders the configuration. Secrets are masked when redact is set.
func (c *Config) YAML(redact bool) ([]byte, error) {
	out, err := yaml.Marshal(toMap(reflect.ValueOf(c), redact))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}

// WriteDefault writes the default configuration to path. An existing file
// is left alone unless force is set.
func WriteDefault(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := Default().YAML(false)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

const redacted = "********"

var durationType = reflect.TypeOf(time.Duration(0))

// toMap converts a config struct into nested maps keyed by mapstructure
// tags. Durations become strings so the output reads back through viper.
func toMap(v reflect.Value, redact bool) map[string]any {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	out := make(map[string]any)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := strings.Split(field.Tag.Get("mapstructure"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		fv := v.Field(i)

		switch {
		case field.Type == durationType:
			out[name] = time.Duration(fv.Int()).String()
		case field.Type.Kind() == reflect.Struct,
			field.Type.Kind() == reflect.Pointer && field.Type.Elem().Kind() == reflect.Struct:
			if m := toMap(fv, redact); m != nil {
				out[name] = m
			}
		case redact && field.Tag.Get("secret") == "true" && fv.Kind() == reflect.String && fv.String() != "":
			out[name] = redacted
		default:
			out[name] = fv.Interface()
		}
	}
	return out
}

// flatten turns nested maps into dotted viper keys.
func flatten(m map[string]any, prefix string, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(nested, key, out)
			continue
		}
		out[key] = v
	}
}
