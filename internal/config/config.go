package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML decoding of "50ms"-style
// strings (plain integers are taken as nanoseconds).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds dispatcher and tool configuration. It is passed at
// construction; there is no process-global flag state.
type Config struct {
	// Enabled is the master switch; when false every Enqueue fails.
	Enabled bool `yaml:"enabled"`

	// StackSizeKB bounds stack use of background steps. 0 disables
	// background offloading entirely.
	StackSizeKB int `yaml:"stack_size_kb"`

	// Trace emits stage timings at Info level.
	Trace bool `yaml:"trace"`

	// Workers is the background worker count of the threaded platform.
	Workers int `yaml:"workers"`

	// IdleSlice is the idle budget granted per foreground idle period.
	IdleSlice Duration `yaml:"idle_slice"`

	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json

	// TraceDB is an optional SQLite path for recorded stage samples.
	// Empty disables the trace store.
	TraceDB string `yaml:"trace_db"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		StackSizeKB: 984,
		Workers:     2,
		IdleSlice:   Duration(50 * time.Millisecond),
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
