package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPStore talks to a remote state endpoint: GET returns the blob (or
// JSON null when empty) and POST replaces it.
type HTTPStore struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPStore targets the state endpoint of another instance, e.g.
// "https://host/api/state".
func NewHTTPStore(stateURL string, client *http.Client) *HTTPStore {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPStore{url: stateURL, client: client}
}

// WithToken sends token as a Bearer credential on every request.
func (h *HTTPStore) WithToken(token string) *HTTPStore {
	h.token = token
	return h
}

func (h *HTTPStore) do(req *http.Request) (*http.Response, error) {
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	return h.client.Do(req)
}

func (h *HTTPStore) Load(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := h.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote state returned %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote state: %w", err)
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrNotFound
	}
	return data, nil
}

func (h *HTTPStore) Save(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.do(req)
	if err != nil {
		return fmt.Errorf("failed to save remote state: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("remote state save returned %s", resp.Status)
	}
	return nil
}

func (h *HTTPStore) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
