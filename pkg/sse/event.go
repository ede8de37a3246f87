// Package sse provides the minimal, purpose-built SSE (Server-Sent Events)
// pieces used by the gemrelay relay: a line reassembler for the upstream byte
// stream and a frame writer for the normalized downstream stream.
//
// Only the subset needed by the relay is implemented. Upstream "event:", "id:"
// and "retry:" fields are never interpreted and the downstream stream only
// ever carries "data:" frames.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import "strings"

const (
	// DataPrefix is the field prefix of an SSE data line.
	DataPrefix = "data:"

	// DoneSentinel is the literal an upstream uses as its own end-of-stream
	// marker. It is distinct from the client-facing done frame.
	DoneSentinel = "[DONE]"
)

// DataPayload returns the trimmed payload of a data line. It reports false for
// blank lines, comments, and any line that is not a data field.
//
// Leading and trailing whitespace is removed before and after the prefix is
// stripped so "  data:   {...}  \r" yields "{...}".
func DataPayload(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}

	rest, ok := strings.CutPrefix(line, DataPrefix)
	if !ok {
		return "", false
	}

	return strings.TrimSpace(rest), true
}
