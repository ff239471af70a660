// Package backend is a minimal client for the hosted backend (Supabase): auth,
// RPC counters and the profiles table.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrProfileNotFound is returned when no profile row matches a user id.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrUnauthorized matches a rejected access or refresh token.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s failed: status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

// Is reports a 401 as ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Supabase REST (PostgREST) and auth (GoTrue) endpoints.
type Client struct {
	client  HTTPClient
	baseURL string
	apiKey  string
	token   string
	now     func() time.Time
}

// New creates a Client. baseURL is the project URL, e.g. "https://xyz.supabase.co".
func New(client HTTPClient, baseURL, apiKey string) *Client {
	return &Client{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		now:     time.Now,
	}
}

// WithToken returns a copy of c that authenticates as the user owning token.
// An empty token keeps the anonymous key.
func (c *Client) WithToken(token string) *Client {
	c2 := *c
	c2.token = token
	return &c2
}

func (c *Client) bearer() string {
	if c.token != "" {
		return c.token
	}
	return c.apiKey
}

// do sends a JSON request and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any, extraHeaders map[string]string) error {
	if c == nil {
		return errors.New("nil backend client")
	}
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// rpc calls a Postgres function exposed under /rest/v1/rpc.
func (c *Client) rpc(ctx context.Context, fn string, args map[string]string, out any) error {
	return c.do(ctx, http.MethodPost, "/rest/v1/rpc/"+url.PathEscape(fn), args, out, nil)
}

// rpcRow calls a set-returning or row-returning function and decodes its single row.
func (c *Client) rpcRow(ctx context.Context, fn string, args map[string]string, out any) error {
	var raw json.RawMessage
	if err := c.rpc(ctx, fn, args, &raw); err != nil {
		return err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil {
			return fmt.Errorf("decode %s rows: %w", fn, err)
		}
		if len(rows) == 0 {
			return fmt.Errorf("%s returned no rows", fn)
		}
		raw = rows[0]
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s row: %w", fn, err)
	}
	return nil
}
