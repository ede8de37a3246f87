package gemini

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/papercomputeco/gemrelay/pkg/utils"
)

// maxRawErrorLen caps the excerpt of a non-JSON upstream error body.
const maxRawErrorLen = 200

// RejectionMessage derives a client-facing message from a non-success
// upstream response. The structured error.message is preferred; a body that
// is not JSON (or has no message) degrades to its first 200 characters, and an
// empty body to the status text.
func RejectionMessage(status int, body []byte) string {
	if ev, ok := ParseEvent(string(body)); ok {
		if msg, ok := ev.ErrorMessage(); ok && msg != "" {
			return msg
		}
	}

	if raw := strings.TrimSpace(string(body)); raw != "" {
		return utils.TruncateRunes(raw, maxRawErrorLen)
	}

	return fmt.Sprintf("upstream returned %d %s", status, http.StatusText(status))
}
