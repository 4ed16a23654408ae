// Package rest is the client for the chat HTTP API: the durable path for
// message persistence, conversation listing and read state. The realtime
// channel only ever supplements it.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTimeout bounds a single API round trip.
const DefaultTimeout = 30 * time.Second

// Client talks to the chat REST API. Zero value is not usable; construct
// with NewClient.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithToken sets the bearer token used on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient creates a chat API client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken updates the bearer token, e.g. after a token refresh.
func (c *Client) SetToken(token string) {
	c.token = token
}

// APIError is a non-2xx response from the chat API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error (status %d)", e.StatusCode)
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body io.Reader, contentType string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, query, nil, "")
}

func (c *Client) postJSON(ctx context.Context, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	return c.do(ctx, http.MethodPost, path, nil, reader, "application/json")
}

// postMultipart sends a multipart form with an optional file part read from
// filePath under the field name "file".
func (c *Client) postMultipart(ctx context.Context, path string, fields map[string]string, filePath string) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	if filePath != "" {
		f, err := os.Open(filePath)
		if err != nil {
			return nil, fmt.Errorf("open attachment: %w", err)
		}
		part, err := w.CreateFormFile("file", filepath.Base(filePath))
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create form file: %w", err)
		}
		if _, err := io.Copy(part, f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("copy attachment: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("close attachment: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, &buf, w.FormDataContentType())
}

// errorMessage pulls a human-readable message out of an error body, which
// arrives as {"error": "..."} or {"message": "..."} depending on endpoint.
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Message
}
