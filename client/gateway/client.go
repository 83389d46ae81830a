package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"inlinecomplete/client"
	"inlinecomplete/logger"
)

// Client posts completion payloads to a gateway answering with an event
// stream of cumulative `completion` frames.
type Client struct {
	HTTPClient *http.Client
	URL        string
	AuthToken  string
	Compress   bool // brotli-compress request bodies
	Limiter    *rate.Limiter
}

// NewClient creates a new gateway client.
// rps <= 0 disables request pacing.
func NewClient(url, apiKey string, compress bool, rps float64) *Client {
	return &Client{
		HTTPClient: &http.Client{},
		URL:        url,
		AuthToken:  apiKey,
		Compress:   compress,
		Limiter:    client.NewLimiter(rps),
	}
}

// Stream posts the JSON payload and returns the event-stream body, which
// the caller closes.
func (c *Client) Stream(ctx context.Context, payload []byte) (io.ReadCloser, error) {
	defer logger.Trace("gateway.Stream")()

	if err := client.Wait(ctx, c.Limiter); err != nil {
		return nil, err
	}

	body := io.Reader(bytes.NewReader(payload))
	if c.Compress {
		compressed, err := compress(payload)
		if err != nil {
			return nil, err
		}
		body = compressed
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.Compress {
		httpReq.Header.Set("Content-Encoding", "br")
	}
	if c.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if err := client.CheckResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// compress encodes data with brotli (quality 1 for speed)
func compress(data []byte) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, 1)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress request: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close brotli writer: %w", err)
	}
	return &buf, nil
}
