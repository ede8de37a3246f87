package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/gemrelay/pkg/dotdir"
	"github.com/papercomputeco/gemrelay/pkg/gemini"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .gemrelay/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the list of all static configuration key names in
// the order of the TOML section layout.
func ValidConfigKeys() []string {
	ordered := []string{
		"server.host",
		"server.port",
		"upstream.base_url",
		"upstream.api_key",
		"upstream.default_model",
		"log.json",
		"log.pretty",
		"log.file",
		"metrics.enabled",
		"events.kafka_brokers",
		"events.kafka_topic",
	}

	result := make([]string, 0, len(ordered))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}

	return result
}

// ListKeys returns every key that has a value in cfg: the static keys
// followed by one "models.<mnemonic>" key per model table entry.
func ListKeys(cfg *Config) []string {
	return append(ValidConfigKeys(), modelKeys(cfg)...)
}

// IsValidConfigKey returns true if the given key is a supported configuration
// key. Any "models.<mnemonic>" key is valid.
func IsValidConfigKey(key string) bool {
	_, ok := lookupKey(key)
	return ok
}

// IsSecretConfigKey reports whether the value of key should be masked when
// displayed.
func IsSecretConfigKey(key string) bool {
	info, ok := lookupKey(key)
	return ok && info.secret
}

// ConfigValue returns the string representation of key in cfg.
func ConfigValue(cfg *Config, key string) (string, error) {
	info, ok := lookupKey(key)
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}
	return info.get(cfg), nil
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .gemrelay/
// directory. If the file does not exist, returns NewDefaultConfig() so callers
// always receive a fully-populated Config with sane defaults. Fields explicitly
// set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
// Model table entries from the file are layered over the built-in table.
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}

	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = defaults.Upstream.BaseURL
	}
	if cfg.Upstream.DefaultModel == "" {
		cfg.Upstream.DefaultModel = defaults.Upstream.DefaultModel
	}

	if cfg.Events.KafkaTopic == "" {
		cfg.Events.KafkaTopic = defaults.Events.KafkaTopic
	}

	for mnemonic, id := range cfg.Models {
		defaults.Models[mnemonic] = id
	}
	cfg.Models = defaults.Models
}

// SaveConfig persists the configuration to config.toml in the target .gemrelay/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	// 0600: the file may hold the upstream API key.
	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := lookupKey(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	if !IsValidConfigKey(key) {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return ConfigValue(cfg, key)
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}

// Validate reports configuration that would prevent the relay from serving:
// a missing API key, a bad port, a model table that cannot resolve its default,
// or event brokers without a topic.
func (c *Config) Validate() error {
	if c.Upstream.APIKey == "" {
		return errors.New("no upstream API key configured: set GEMINI_API_KEY, --api-key, or upstream.api_key")
	}

	if c.Server.Port == 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid listen port %d", c.Server.Port)
	}

	if _, err := gemini.NewModelTable(c.Models, c.Upstream.DefaultModel); err != nil {
		return fmt.Errorf("invalid model configuration: %w", err)
	}

	if len(c.Events.Brokers()) > 0 && c.Events.KafkaTopic == "" {
		return errors.New("events.kafka_brokers is set but events.kafka_topic is empty")
	}

	return nil
}
