package config

import "time"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		RPC: RPCConfig{
			Mode:          ModeCooperative,
			Endianness:    EndiannessPortable,
			Serializer:    SerializerLengthPrefixed,
			ShutdownGrace: Duration(5 * time.Second),
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Watch: WatchConfig{
			Enabled:  false,
			Dirs:     []string{},
			Interval: Duration(2 * time.Second),
		},
	}
}
