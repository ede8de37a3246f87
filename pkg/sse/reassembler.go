package sse

import (
	"strings"
	"unicode/utf8"
)

// LineReassembler turns an unbounded sequence of arbitrarily sized byte chunks
// into complete newline-delimited lines.
//
// ┌──────────────┐   ┌────────────────┐   ┌─────────────┐
// │ upstream     │──▶│ Feed(chunk)    │──▶│ []string    │
// │ Read() chunk │   │ decode + split │   │ whole lines │
// └──────────────┘   └────────────────┘   └─────────────┘
//
// Two pieces of state are carried between calls:
//   - pending holds the bytes of a multi-byte UTF-8 sequence that was cut by
//     a chunk boundary. This is decoder state and never reaches the buffer.
//   - buf holds decoded text received after the last newline. It never
//     contains a newline once Feed returns.
//
// A LineReassembler is owned by a single stream and is not safe for
// concurrent use.
type LineReassembler struct {
	pending []byte
	buf     strings.Builder
}

// NewLineReassembler returns an empty LineReassembler.
func NewLineReassembler() *LineReassembler {
	return &LineReassembler{}
}

// Feed decodes chunk, appends it to the buffered tail, and returns every line
// completed by it in order. Returned lines do not include the "\n". The final
// segment after the last newline, possibly empty, is retained for the next
// call. An empty chunk returns nil and leaves all state untouched.
func (r *LineReassembler) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	text := r.decode(chunk)
	if !strings.Contains(text, "\n") {
		r.buf.WriteString(text)
		return nil
	}

	r.buf.WriteString(text)
	segments := strings.Split(r.buf.String(), "\n")

	r.buf.Reset()
	r.buf.WriteString(segments[len(segments)-1])

	return segments[:len(segments)-1]
}

// Flush is called once after the source signals completion. It returns the
// buffered remainder as a final line when it is non-empty; the upstream may
// close mid-line without a trailing newline. Bytes of an incomplete UTF-8
// sequence still held by the decoder are rendered as U+FFFD.
//
// Flush resets the reassembler.
func (r *LineReassembler) Flush() (string, bool) {
	if len(r.pending) > 0 {
		r.buf.WriteString(strings.ToValidUTF8(string(r.pending), string(utf8.RuneError)))
		r.pending = nil
	}

	line := r.buf.String()
	r.buf.Reset()

	if line == "" {
		return "", false
	}
	return line, true
}

// Buffered returns the decoded text waiting for a newline.
func (r *LineReassembler) Buffered() string {
	return r.buf.String()
}

// decode converts chunk to text, prefixing any bytes held back from the
// previous chunk and holding back a trailing incomplete UTF-8 sequence.
func (r *LineReassembler) decode(chunk []byte) string {
	data := chunk
	if len(r.pending) > 0 {
		data = append(r.pending, chunk...)
		r.pending = nil
	}

	cut := incompleteTail(data)
	if cut < len(data) {
		r.pending = append([]byte(nil), data[cut:]...)
		data = data[:cut]
	}

	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}

// incompleteTail returns the offset at which a trailing, not yet complete,
// UTF-8 sequence begins. It returns len(data) when the tail is complete or
// invalid (invalid bytes are replaced during decode, not held back).
func incompleteTail(data []byte) int {
	// A UTF-8 sequence is at most utf8.UTFMax bytes, so only the last
	// UTFMax-1 bytes can start an incomplete one.
	for i := len(data) - 1; i >= 0 && i >= len(data)-(utf8.UTFMax-1); i-- {
		b := data[i]
		if b < utf8.RuneSelf {
			return len(data)
		}
		if utf8.RuneStart(b) {
			if utf8.FullRune(data[i:]) {
				return len(data)
			}
			return i
		}
	}
	return len(data)
}
