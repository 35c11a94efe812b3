// Package client provides the HTTP client for the markpilot scoring backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionCookieName is the session cookie the backend issues on login.
const sessionCookieName = "mp_session"

// Client talks to the scoring backend and the upload service. All requests
// attach the session cookie once one has been established or seeded.
type Client struct {
	apiURL     string
	uploadURL  string
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	session string
}

// New creates a client for the given API and upload endpoints.
// Timeout can be configured via MARKPILOT_CLIENT_TIMEOUT (default 5m, scoring
// calls sit behind a slow AI pipeline).
func New(apiURL, uploadURL string, logger *slog.Logger) *Client {
	timeout := 5 * time.Minute
	if t := os.Getenv("MARKPILOT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		apiURL:    strings.TrimRight(apiURL, "/"),
		uploadURL: strings.TrimRight(uploadURL, "/"),
		logger:    logger,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetSession seeds the session cookie value, typically from the persisted
// auth session on startup.
func (c *Client) SetSession(cookie string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = cookie
}

// Session returns the current session cookie value, empty when logged out.
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// errorBody is the JSON error shape the backend uses for rejections.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// do executes one JSON round trip against the API endpoint. A nil body sends
// no payload; a nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	c.attachSession(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("api request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return &APIError{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	c.captureSession(resp)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Status: 0, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return &APIError{
				Status:  resp.StatusCode,
				Message: fmt.Sprintf("malformed response body: %v", err),
			}
		}
	}

	return nil
}

// decodeError normalizes a non-2xx response into an APIError, preferring the
// backend's own message/code when the body parses.
func (c *Client) decodeError(status int, raw []byte) error {
	apiErr := &APIError{
		Status:  status,
		Message: fmt.Sprintf("request failed: HTTP %d", status),
	}

	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		switch {
		case eb.Error != "":
			apiErr.Message = eb.Error
		case eb.Message != "":
			apiErr.Message = eb.Message
		}
		apiErr.Code = eb.Code
	}

	c.logger.Debug("api request rejected", "status", status, "code", apiErr.Code, "message", apiErr.Message)
	return apiErr
}

func (c *Client) attachSession(req *http.Request) {
	if s := c.Session(); s != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: s})
	}
}

// captureSession picks up a refreshed session cookie from any response.
func (c *Client) captureSession(resp *http.Response) {
	for _, ck := range resp.Cookies() {
		if ck.Name == sessionCookieName {
			c.SetSession(ck.Value)
			return
		}
	}
}
