// Package config loads the process configuration of the telreg binary.
//
// Values are layered, highest precedence first: explicitly set flags,
// TELREG_ environment variables, the YAML config file, defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "TELREG_"

// DefaultFile is read when no config file is given and it exists.
const DefaultFile = "telreg.yaml"

// Config is the full process configuration.
type Config struct {
	ListenAddr   string        `koanf:"listen_addr"`
	LogLevel     string        `koanf:"log_level"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	OutboxSize   int           `koanf:"outbox_size"`
	Codec        string        `koanf:"codec"`

	// Server and Token are used by the client commands.
	Server string `koanf:"server"`
	Token  string `koanf:"token"`

	Tokens TokensConfig `koanf:"tokens"`
	Sticky StickyConfig `koanf:"sticky"`
	Gossip GossipConfig `koanf:"gossip"`
}

// TokensConfig lists the bcrypt hashes granted each capability.
type TokensConfig struct {
	Dump     []string `koanf:"dump"`
	Location []string `koanf:"location"`
}

// StickyConfig selects where sticky announcements are retained.
type StickyConfig struct {
	Store string `koanf:"store"`
	Path  string `koanf:"path"`

	// FailureThreshold consecutive failures of a file or sqlite store
	// switch it off for RetryAfter; announcements stay in memory meanwhile.
	FailureThreshold int           `koanf:"failure_threshold"`
	RetryAfter       time.Duration `koanf:"retry_after"`
}

// GossipConfig enables publishing announcements over libp2p gossipsub.
type GossipConfig struct {
	Enabled bool     `koanf:"enabled"`
	Listen  []string `koanf:"listen"`
	Topic   string   `koanf:"topic"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() map[string]any {
	return map[string]any{
		"listen_addr":              "127.0.0.1:7341",
		"log_level":                "info",
		"write_timeout":            "5s",
		"outbox_size":              64,
		"codec":                    "json",
		"server":                   "http://127.0.0.1:7341",
		"sticky.store":             "memory",
		"sticky.path":              "",
		"sticky.failure_threshold": 5,
		"sticky.retry_after":       "30s",
		"gossip.enabled":           false,
		"gossip.listen":            []string{"/ip4/0.0.0.0/tcp/0"},
		"gossip.topic":             "telreg/",
	}
}

// nested lists the sections whose keys are written with a single
// underscore in flags and environment variables.
var nested = []string{"tokens", "sticky", "gossip"}

// keyFor maps a flag or environment name such as "sticky-store" or
// "STICKY_STORE" to its config key "sticky.store".
func keyFor(name string) string {
	key := strings.ToLower(strings.ReplaceAll(name, "-", "_"))
	for _, section := range nested {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}
	return key
}

// Load reads the configuration. cfgFile may be empty, in which case
// DefaultFile is used if present. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			cfgFile = DefaultFile
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return keyFor(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return keyFor(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be expressed by types alone.
func (c *Config) Validate() error {
	switch c.Sticky.Store {
	case "memory":
	case "file", "sqlite":
		if c.Sticky.Path == "" {
			return fmt.Errorf("config: sticky.path is required for the %s store", c.Sticky.Store)
		}
	default:
		return fmt.Errorf("config: unknown sticky.store %q", c.Sticky.Store)
	}
	switch c.Codec {
	case "json", "cbor":
	default:
		return fmt.Errorf("config: unknown codec %q", c.Codec)
	}
	if c.Sticky.FailureThreshold <= 0 {
		return fmt.Errorf("config: sticky.failure_threshold must be positive")
	}
	if c.OutboxSize <= 0 {
		return fmt.Errorf("config: outbox_size must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("config: write_timeout must be positive")
	}
	return nil
}
