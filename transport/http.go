package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tailored-agentic-units/segurbot/core/protocol"
	"github.com/tailored-agentic-units/segurbot/core/response"
)

const maxResponseBytes = 1 << 20

// HTTPClient posts JSON bodies to the chat endpoint.
//
// A 2xx body that is not a JSON object with a text field is returned as a
// Malformed reply rather than an error.
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClient creates an HTTPClient. A nil httpClient uses
// http.DefaultClient.
func NewHTTPClient(endpoint string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{endpoint: endpoint, client: httpClient}
}

func (c *HTTPClient) Complete(ctx context.Context, req protocol.ChatRequest) (*response.Chat, error) {
	body, err := c.post(ctx, c.endpoint, req)
	if err != nil {
		return nil, err
	}
	return response.DecodeChat(body), nil
}

func (c *HTTPClient) Reset(ctx context.Context, req protocol.ResetRequest) error {
	_, err := c.post(ctx, ResetURL(c.endpoint), req)
	return err
}

func (c *HTTPClient) post(ctx context.Context, url string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(resp)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
