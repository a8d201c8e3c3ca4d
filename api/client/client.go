// Package client talks to a running voicenotes API server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/voicenotes/api"
	"github.com/papercomputeco/voicenotes/pkg/memo"
	"github.com/papercomputeco/voicenotes/pkg/utils"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

// Client is a thin JSON client over the API routes.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at target (e.g. "http://localhost:8081").
func New(target string) (*Client, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parsing api target: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api target %q", target)
	}
	return &Client{
		baseURL: strings.TrimRight(target, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}, nil
}

// ListMemos returns memos newest first. An empty status lists everything.
func (c *Client) ListMemos(ctx context.Context, status memo.Status) ([]*memo.Memo, error) {
	path := "/memos"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}

	var out api.MemoListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return out.Memos, nil
}

// GetMemo returns a single memo.
func (c *Client) GetMemo(ctx context.Context, id string) (*memo.Memo, error) {
	var out memo.Memo
	if err := c.do(ctx, http.MethodGet, "/memos/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMemo removes a memo from the device.
func (c *Client) DeleteMemo(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/memos/"+url.PathEscape(id), nil, "", nil)
}

// RetryMemo restarts transcription of a failed memo.
func (c *Client) RetryMemo(ctx context.Context, id string) (*memo.Memo, error) {
	var out memo.Memo
	if err := c.do(ctx, http.MethodPost, "/memos/"+url.PathEscape(id)+"/retry", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartRecording begins a fresh capture.
func (c *Client) StartRecording(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/recording/start", nil, "", nil)
}

// StartExtend begins a capture appended to memo id.
func (c *Client) StartExtend(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/memos/"+url.PathEscape(id)+"/extend", nil, "", nil)
}

// UploadWAV feeds a WAV file to the active capture.
func (c *Client) UploadWAV(ctx context.Context, wav []byte) (int, error) {
	var out api.UploadResponse
	if err := c.do(ctx, http.MethodPost, "/recording/audio", wav, "audio/wav", &out); err != nil {
		return 0, err
	}
	return out.Bytes, nil
}

// StopRecording finalizes the capture and returns the stored memo.
func (c *Client) StopRecording(ctx context.Context) (*memo.Memo, error) {
	var out memo.Memo
	if err := c.do(ctx, http.MethodPost, "/recording/stop", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Record runs wav through the device as one capture: start (or extend memo
// extendID), upload, stop. A failed upload still stops the capture so the
// device returns to idle.
func (c *Client) Record(ctx context.Context, wav []byte, extendID string) (*memo.Memo, error) {
	start := c.StartRecording
	if extendID != "" {
		start = func(ctx context.Context) error { return c.StartExtend(ctx, extendID) }
	}
	if err := start(ctx); err != nil {
		return nil, err
	}

	if _, err := c.UploadWAV(ctx, wav); err != nil {
		_, _ = c.StopRecording(ctx)
		return nil, err
	}
	return c.StopRecording(ctx)
}

// RequestCatalog asks the device to pull its peer's catalog.
func (c *Client) RequestCatalog(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/sync/catalog", nil, "", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", utils.UserAgent())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
