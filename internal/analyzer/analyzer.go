// Package analyzer calls the remote article-matching service.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"contxtra_bot/internal/model"
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Error is a failed analysis call. Message is safe to show to the user.
type Error struct {
	Status  int // 0 for transport failures
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Client posts post URLs to the analysis service.
type Client struct {
	client  HTTPClient
	baseURL string
}

// New creates a Client. The analysis call has no timeout of its own; it relies on
// the transport and the caller's context.
func New(client HTTPClient, baseURL string) *Client {
	return &Client{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type findRequest struct {
	URL string `json:"url"`
}

type findResponse struct {
	MatchedArticles *[]model.Article `json:"matched_articles"`
}

// FindArticles submits postURL and returns the matched articles.
// All failures are returned as *Error.
func (c *Client) FindArticles(ctx context.Context, postURL string) (*model.AnalysisResult, error) {
	body, err := json.Marshal(findRequest{URL: postURL})
	if err != nil {
		return nil, &Error{Message: "Could not encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/find-articles", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Message: "Could not build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("Network error: %v", err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: fmt.Sprintf("Network error: %v", err), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Status: resp.StatusCode, Message: ErrorMessage(resp.StatusCode, raw)}
	}

	var out findResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.MatchedArticles == nil {
		if err == nil {
			err = errors.New("missing matched_articles")
		}
		return nil, &Error{Status: resp.StatusCode, Message: "Malformed response from analysis service", Err: err}
	}
	return &model.AnalysisResult{MatchedArticles: *out.MatchedArticles}, nil
}

type validationError struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// ErrorMessage converts a non-2xx response body into one human-readable line.
func ErrorMessage(status int, body []byte) string {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Sprintf("Network response error: %d - No parsable error message from server.", status)
	}

	switch v := payload.(type) {
	case map[string]any:
		if detail, ok := v["detail"]; ok && detail != nil {
			if s, ok := detail.(string); ok {
				if s != "" {
					return fmt.Sprintf("API Error (%d): %s", status, s)
				}
			} else if msg, ok := validationMessage(status, detail); ok {
				return msg
			} else {
				b, _ := json.Marshal(detail)
				return fmt.Sprintf("API Error (%d): %s", status, b)
			}
		}
	case []any:
		if msg, ok := validationMessage(status, v); ok {
			return msg
		}
	}

	compact, _ := json.Marshal(payload)
	return fmt.Sprintf("API Error (%d): %s", status, compact)
}

func validationMessage(status int, v any) (string, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	var errs []validationError
	if err := json.Unmarshal(b, &errs); err != nil || len(errs) == 0 {
		return "", false
	}
	first := errs[0]
	if first.Msg == "" || len(first.Loc) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(first.Loc))
	for _, p := range first.Loc {
		parts = append(parts, fmt.Sprint(p))
	}
	return fmt.Sprintf("Validation Error (%d): %s at %s", status, first.Msg, strings.Join(parts, ".")), true
}
