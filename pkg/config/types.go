package config

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// Config represents the persistent gemrelay configuration stored as
// config.toml in the .gemrelay/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version  int               `toml:"version"`
	Server   ServerConfig      `toml:"server"`
	Upstream UpstreamConfig    `toml:"upstream"`
	Models   map[string]string `toml:"models,omitempty"`
	Log      LogConfig         `toml:"log"`
	Metrics  MetricsConfig     `toml:"metrics"`
	Events   EventsConfig      `toml:"events"`
}

// ServerConfig holds the client-facing listener settings.
type ServerConfig struct {
	Host string `toml:"host,omitempty"`
	Port uint   `toml:"port,omitempty"`
}

// UpstreamConfig holds the generation API settings.
type UpstreamConfig struct {
	BaseURL      string `toml:"base_url,omitempty"`
	APIKey       string `toml:"api_key,omitempty"`
	DefaultModel string `toml:"default_model,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	JSON   bool   `toml:"json,omitempty"`
	Pretty bool   `toml:"pretty,omitempty"`
	File   string `toml:"file,omitempty"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled,omitempty"`
}

// EventsConfig holds the stream event publisher settings. Publishing is
// enabled when KafkaBrokers is set.
type EventsConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// Brokers splits the comma-separated broker list.
func (e EventsConfig) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(e.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// ListenAddr returns the host:port the relay listens on.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.FormatUint(uint64(c.Server.Port), 10))
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error

	// secret values are masked when displayed.
	secret bool
}

// modelKeyPrefix addresses entries of the [models] table, e.g. "models.fast".
const modelKeyPrefix = "models."

// configKeys is the authoritative map of all static config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.host": {
		get: func(c *Config) string { return c.Server.Host },
		set: func(c *Config, v string) error { c.Server.Host = v; return nil },
	},
	"server.port": {
		get: func(c *Config) string {
			if c.Server.Port == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Server.Port), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 16)
			if err != nil {
				return fmt.Errorf("invalid value for server.port: %w", err)
			}
			c.Server.Port = uint(n)
			return nil
		},
	},
	"upstream.base_url": {
		get: func(c *Config) string { return c.Upstream.BaseURL },
		set: func(c *Config, v string) error { c.Upstream.BaseURL = v; return nil },
	},
	"upstream.api_key": {
		get:    func(c *Config) string { return c.Upstream.APIKey },
		set:    func(c *Config, v string) error { c.Upstream.APIKey = v; return nil },
		secret: true,
	},
	"upstream.default_model": {
		get: func(c *Config) string { return c.Upstream.DefaultModel },
		set: func(c *Config, v string) error { c.Upstream.DefaultModel = v; return nil },
	},
	"log.json": {
		get: func(c *Config) string { return strconv.FormatBool(c.Log.JSON) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for log.json: %w", err)
			}
			c.Log.JSON = b
			return nil
		},
	},
	"log.pretty": {
		get: func(c *Config) string { return strconv.FormatBool(c.Log.Pretty) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for log.pretty: %w", err)
			}
			c.Log.Pretty = b
			return nil
		},
	},
	"log.file": {
		get: func(c *Config) string { return c.Log.File },
		set: func(c *Config, v string) error { c.Log.File = v; return nil },
	},
	"metrics.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Metrics.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for metrics.enabled: %w", err)
			}
			c.Metrics.Enabled = b
			return nil
		},
	},
	"events.kafka_brokers": {
		get: func(c *Config) string { return c.Events.KafkaBrokers },
		set: func(c *Config, v string) error { c.Events.KafkaBrokers = v; return nil },
	},
	"events.kafka_topic": {
		get: func(c *Config) string { return c.Events.KafkaTopic },
		set: func(c *Config, v string) error { c.Events.KafkaTopic = v; return nil },
	},
}

// lookupKey resolves a static key or a "models.<mnemonic>" key.
func lookupKey(key string) (configKeyInfo, bool) {
	if info, ok := configKeys[key]; ok {
		return info, true
	}

	mnemonic, ok := strings.CutPrefix(key, modelKeyPrefix)
	if !ok || mnemonic == "" || strings.Contains(mnemonic, ".") {
		return configKeyInfo{}, false
	}

	return configKeyInfo{
		get: func(c *Config) string { return c.Models[mnemonic] },
		set: func(c *Config, v string) error {
			if c.Models == nil {
				c.Models = make(map[string]string)
			}
			if v == "" {
				delete(c.Models, mnemonic)
				return nil
			}
			c.Models[mnemonic] = v
			return nil
		},
	}, true
}

// modelKeys returns the "models.<mnemonic>" keys present in cfg, sorted.
func modelKeys(cfg *Config) []string {
	keys := make([]string, 0, len(cfg.Models))
	for m := range cfg.Models {
		keys = append(keys, modelKeyPrefix+m)
	}
	sort.Strings(keys)
	return keys
}
