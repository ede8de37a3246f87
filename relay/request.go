package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// formDataField is the form field that carries the JSON payload when a
// client posts form-encoded data instead of a JSON body.
const formDataField = "data"

// errEmptyBody is returned for a request without a payload.
var errEmptyBody = errors.New("request body is empty")

// generateRequest is the client payload of POST /api/gemini.
type generateRequest struct {
	// ModelType is the requested mnemonic; "" when absent or not a string.
	ModelType string

	// Contents is passed through to the upstream verbatim. It is "[]" when
	// absent or null.
	Contents json.RawMessage
}

// parseRequest reads the client payload from a JSON body, or from the "data"
// field of a form-encoded or multipart body.
func parseRequest(c *fiber.Ctx) (*generateRequest, error) {
	payload, err := requestPayload(c)
	if err != nil {
		return nil, err
	}
	return decodeRequest(payload)
}

func requestPayload(c *fiber.Ctx) ([]byte, error) {
	ct := strings.ToLower(c.Get(fiber.HeaderContentType))

	if strings.HasPrefix(ct, fiber.MIMEApplicationForm) || strings.HasPrefix(ct, fiber.MIMEMultipartForm) {
		data := c.FormValue(formDataField)
		if strings.TrimSpace(data) == "" {
			return nil, fmt.Errorf("form body has no %q field", formDataField)
		}
		return []byte(data), nil
	}

	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return nil, errEmptyBody
	}
	return body, nil
}

func decodeRequest(payload []byte) (*generateRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("request body is not a JSON object: %w", err)
	}
	if fields == nil {
		return nil, errors.New("request body is not a JSON object")
	}

	req := &generateRequest{Contents: json.RawMessage("[]")}

	// A modelType that is not a string falls back to the default model.
	if raw, ok := fields["modelType"]; ok {
		_ = json.Unmarshal(raw, &req.ModelType)
	}

	if raw, ok := fields["contents"]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		req.Contents = raw
	}

	return req, nil
}
