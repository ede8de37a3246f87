package relay

import (
	"github.com/papercomputeco/gemrelay/pkg/eventstream"
	"github.com/papercomputeco/gemrelay/pkg/gemini"
)

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":3000")
	ListenAddr string

	// Models resolves request mnemonics to upstream model identifiers.
	Models *gemini.ModelTable

	// EnableMetrics exposes the Prometheus registry on GET /metrics.
	EnableMetrics bool

	// Publisher receives a summary event per stream. Nil disables publishing.
	Publisher eventstream.Publisher
}
