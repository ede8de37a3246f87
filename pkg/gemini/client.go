package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Client issues streaming generation requests to the upstream API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientOpts configures a Client.
type ClientOpts struct {
	// BaseURL is the API root, e.g. "https://generativelanguage.googleapis.com".
	// Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey is passed in the "key" query parameter.
	APIKey string

	// HTTPClient defaults to a client with no overall timeout: a streaming
	// response may legitimately stay open for minutes.
	HTTPClient *http.Client
}

// NewClient returns a Client.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", base, err)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &Client{
		baseURL:    base,
		apiKey:     opts.APIKey,
		httpClient: hc,
	}, nil
}

// generateRequest is the upstream request body. Contents are passed through
// verbatim from the client.
type generateRequest struct {
	Contents json.RawMessage `json:"contents"`
}

// StreamURL returns the streamGenerateContent URL for model with SSE framing
// negotiated via alt=sse.
func (c *Client) StreamURL(model string) string {
	q := url.Values{}
	q.Set("alt", "sse")
	q.Set("key", c.apiKey)

	return fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?%s",
		c.baseURL, url.PathEscape(model), q.Encode())
}

// StreamGenerateContent opens a streaming generation request. The caller owns
// the returned response and must close its body. Any status is returned as a
// response; only transport failures produce an error.
func (c *Client) StreamGenerateContent(ctx context.Context, model string, contents json.RawMessage) (*http.Response, error) {
	if len(contents) == 0 {
		contents = json.RawMessage("[]")
	}

	body, err := json.Marshal(generateRequest{Contents: contents})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.StreamURL(model), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", c.redact(err))
	}

	return resp, nil
}

// redact strips the API key from the URL carried by net/http errors, whose
// message ends up in client-facing error frames and logs.
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}

	urlErr.URL = strings.ReplaceAll(urlErr.URL, url.QueryEscape(c.apiKey), "REDACTED")
	return err
}
