package config

import "github.com/papercomputeco/gemrelay/pkg/gemini"

const (
	defaultPort       = 3000
	defaultKafkaTopic = "gemrelay.streams"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values. The API key has no
// default: the relay refuses to start without one.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Port: defaultPort,
		},
		Upstream: UpstreamConfig{
			BaseURL:      gemini.DefaultBaseURL,
			DefaultModel: gemini.DefaultMnemonic,
		},
		Models: gemini.DefaultModels(),
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
