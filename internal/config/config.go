// Package config loads the demo process's YAML configuration: Load reads
// the file over Default's values, Validate rejects bad ones, and Duration
// parses human-readable durations such as "5s".
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete forkrpcd demo configuration.
type Config struct {
	RPC     RPCConfig     `yaml:"rpc"`
	Logging LogConfig     `yaml:"logging"`
	Watch   WatchConfig   `yaml:"watch"`
}

// Mode selects the ChildEngine variant the spawned child runs.
type Mode string

const (
	ModeBlocking    Mode = "blocking"
	ModeCooperative Mode = "cooperative"
)

// Endianness selects the wire header's integer byte order.
type Endianness string

const (
	EndiannessLegacy   Endianness = "legacy"
	EndiannessPortable Endianness = "portable"
)

// Serializer names one of internal/serializer's registered codecs.
type Serializer string

const (
	SerializerLengthPrefixed Serializer = "length-prefixed"
	SerializerJSON           Serializer = "json"
	SerializerMsgpackNative  Serializer = "msgpack-native"
	SerializerMsgpackPortable Serializer = "msgpack-portable"
)

type RPCConfig struct {
	Mode          Mode       `yaml:"mode"`
	Endianness    Endianness `yaml:"endianness"`
	Serializer    Serializer `yaml:"serializer"`
	ChildCommand  string     `yaml:"child_command"`
	ChildArgs     []string   `yaml:"child_args"`
	ShutdownGrace Duration   `yaml:"shutdown_grace"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type WatchConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Dirs     []string `yaml:"dirs"`
	Interval Duration `yaml:"interval"`
}

// Duration is a time.Duration that supports YAML string unmarshaling.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads config from a YAML file, applying defaults for missing values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.RPC.Mode {
	case ModeBlocking, ModeCooperative:
	default:
		return fmt.Errorf("rpc.mode must be 'blocking' or 'cooperative', got %q", c.RPC.Mode)
	}
	switch c.RPC.Endianness {
	case EndiannessLegacy, EndiannessPortable:
	default:
		return fmt.Errorf("rpc.endianness must be 'legacy' or 'portable', got %q", c.RPC.Endianness)
	}
	switch c.RPC.Serializer {
	case SerializerLengthPrefixed, SerializerJSON, SerializerMsgpackNative, SerializerMsgpackPortable:
	default:
		return fmt.Errorf("rpc.serializer %q is not a registered serializer", c.RPC.Serializer)
	}
	if c.RPC.ChildCommand == "" {
		return fmt.Errorf("rpc.child_command is required")
	}
	if c.RPC.ShutdownGrace.Duration() <= 0 {
		return fmt.Errorf("rpc.shutdown_grace must be > 0")
	}
	return nil
}
