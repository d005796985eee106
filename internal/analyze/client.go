package analyze

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/claude/repcounter/internal/models"
)

// Client sends analyzed sessions to the repcounter server over HTTP.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
	backoff    time.Duration
}

// NewClient creates a new HTTP client for the repcounter server.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: time.Second,
	}
}

// Ping checks the server is reachable and accepts this client's identity.
func (c *Client) Ping() error {
	resp, err := c.httpClient.Get(c.serverURL + "/api/v1/me")
	if err != nil {
		return fmt.Errorf("contacting server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("identity check failed (status %d): %s", resp.StatusCode, body)
	}
	return nil
}

// SendSession POSTs an analyzed session to the server. A duplicate (same
// ID or source hash) counts as success. Retries up to 3 times with
// exponential backoff on transport and server errors.
func (c *Client) SendSession(upload models.RepSessionUpload) error {
	data, err := json.Marshal(upload)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			time.Sleep(c.backoff << uint(attempt-1))
		}

		req, err := http.NewRequest(http.MethodPost, c.serverURL+"/api/v1/sessions", bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusCreated:
			return nil
		case resp.StatusCode < 500:
			return fmt.Errorf("session rejected (status %d): %s", resp.StatusCode, body)
		}
		lastErr = fmt.Errorf("upload failed (status %d): %s", resp.StatusCode, body)
	}

	return fmt.Errorf("after 3 attempts: %w", lastErr)
}
