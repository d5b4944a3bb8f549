package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brojonat/moonportal/service/sync"
)

// View is the portal state reported by the server.
type View struct {
	sync.View
	Message string `json:"message,omitempty"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Kind       sync.ErrorKind
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind != sync.KindNone {
		return fmt.Sprintf("request failed (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("request failed: %s", e.Message)
}

// Is lets callers match server rejections with the sync sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case sync.ErrOperationInProgress:
		return e.Kind == sync.KindOperationInProgress
	case sync.ErrInvalidMode:
		return e.Kind == sync.KindInvalidMode
	}
	return false
}

// Client is the HTTP client for the moonportal server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new portal client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// View fetches the current view.
func (c *Client) View(ctx context.Context) (*View, error) {
	return c.do(ctx, http.MethodGet, "/api/v1/view", nil, http.StatusOK)
}

// Connect asks the server's wallet for a session.
func (c *Client) Connect(ctx context.Context) (*View, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/session/connect", nil, http.StatusAccepted)
}

// Disconnect drops the server's session.
func (c *Client) Disconnect(ctx context.Context) (*View, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/session/disconnect", nil, http.StatusAccepted)
}

// Initialize creates the record for the connected wallet.
func (c *Client) Initialize(ctx context.Context) (*View, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/record/initialize", nil, http.StatusAccepted)
}

// Refresh re-reads the record.
func (c *Client) Refresh(ctx context.Context) (*View, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/record/refresh", nil, http.StatusAccepted)
}

// SetDraft replaces the draft.
func (c *Client) SetDraft(ctx context.Context, text string) (*View, error) {
	return c.do(ctx, http.MethodPut, "/api/v1/draft", map[string]string{"text": text}, http.StatusOK)
}

// Submit submits link as a new entry. An empty link submits the current draft.
func (c *Client) Submit(ctx context.Context, link string) (*View, error) {
	var body interface{}
	if link != "" {
		body = map[string]string{"link": link}
	}
	return c.do(ctx, http.MethodPost, "/api/v1/entries", body, http.StatusAccepted)
}

// Await follows the view stream until match returns true for a view or ctx is done.
func (c *Client) Await(ctx context.Context, match func(*View) bool) (*View, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives the default client timeout; ctx bounds it instead.
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var v View
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			c.logger.Warn("failed to decode view event", "error", err)
			continue
		}
		c.logger.Debug("received view", "mode", v.Mode.String(), "busy", v.Busy)
		if match(&v) {
			return &v, nil
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("stream failed: %w", err)
	}
	return nil, fmt.Errorf("stream closed before a matching view arrived")
}

// Settled matches views with nothing in flight.
func Settled(v *View) bool {
	return !v.Busy
}

func (c *Client) do(ctx context.Context, method, path string, reqBody interface{}, wantStatus int) (*View, error) {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return nil, c.parseErrorResponse(resp)
	}

	var v View
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("request completed", "method", method, "path", path, "mode", v.Mode.String())
	return &v, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Kind:       sync.ErrorKind(errResp.Kind),
		Message:    errResp.Error,
	}
}
