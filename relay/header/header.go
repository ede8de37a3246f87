// Package header sets the response headers of the relay's client-facing leg.
//
// The relay sits between a client and the upstream generation API like so:
//
//	Client <--> Relay <--> Upstream API
//
// Upstream response headers are never copied down: the client leg always
// carries the relay's own event stream, whatever the upstream negotiated.
package header

import (
	"github.com/gofiber/fiber/v2"
)

// StreamIDHeader carries the id the relay assigned to a stream. The same id
// appears in the relay's logs.
const StreamIDHeader = "X-Gemrelay-Stream-Id"

// streamHeaders are set on every event-stream response.
var streamHeaders = [][2]string{
	{fiber.HeaderContentType, "text/event-stream; charset=utf-8"},
	{fiber.HeaderCacheControl, "no-cache"},
	{fiber.HeaderConnection, "keep-alive"},

	// Reverse proxies such as nginx buffer responses by default, which would
	// hold frames back until the stream ends.
	{"X-Accel-Buffering", "no"},
}

// Handler manages headers for the client connection.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// SetStreamHeaders prepares c to carry an event stream tagged with streamID.
func (h *Handler) SetStreamHeaders(c *fiber.Ctx, streamID string) {
	for _, kv := range streamHeaders {
		c.Set(kv[0], kv[1])
	}

	if streamID != "" {
		c.Set(StreamIDHeader, streamID)
	}
}
