package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"inlinecomplete/client"
)

// DefaultPath is the completion endpoint of OpenAI-compatible servers
const DefaultPath = "/v1/completions"

// CompletionRequest matches the OpenAI Completion API format
type CompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Suffix      string   `json:"suffix,omitempty"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	Stop        []string `json:"stop,omitempty"`
	N           int      `json:"n,omitempty"`
	Echo        bool     `json:"echo"`
	Stream      bool     `json:"stream"`
}

// Client is a reusable OpenAI-compatible API client
type Client struct {
	HTTPClient *http.Client
	URL        string
	Path       string
	APIKey     string
	Limiter    *rate.Limiter
}

// NewClient creates a new OpenAI-compatible client.
// path defaults to DefaultPath; rps <= 0 disables request pacing.
func NewClient(url, path, apiKey string, rps float64) *Client {
	if path == "" {
		path = DefaultPath
	}
	return &Client{
		HTTPClient: &http.Client{},
		URL:        url,
		Path:       path,
		APIKey:     apiKey,
		Limiter:    client.NewLimiter(rps),
	}
}

// Stream posts an encoded completion request and returns the raw
// text/event-stream body. The caller closes it. Cancelling ctx aborts the
// transfer.
func (c *Client) Stream(ctx context.Context, body []byte) (io.ReadCloser, error) {
	resp, err := c.post(ctx, body, "text/event-stream")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) post(ctx context.Context, body []byte, accept string) (*http.Response, error) {
	if err := client.Wait(ctx, c.Limiter); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+c.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if err := client.CheckResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}
