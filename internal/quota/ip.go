package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// IPLookup resolves the caller's public address through an ipify-style endpoint
// returning {"ip": "..."}.
type IPLookup struct {
	client HTTPClient
	url    string
}

// NewIPLookup creates an IPLookup querying url.
func NewIPLookup(client HTTPClient, url string) *IPLookup {
	return &IPLookup{client: client, url: url}
}

// PublicIP returns the caller's public address.
func (l *IPLookup) PublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ip lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ip lookup: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&out); err != nil {
		return "", fmt.Errorf("ip lookup: decode: %w", err)
	}
	if net.ParseIP(out.IP) == nil {
		return "", errors.New("ip lookup: response has no valid ip")
	}
	return out.IP, nil
}
