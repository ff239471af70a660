package backend

import (
	"context"
	"fmt"
	"net/http"

	"contxtra_bot/internal/model"
)

// CheckTrialUsage reads the trial counter for ip without consuming a use.
func (c *Client) CheckTrialUsage(ctx context.Context, ip string) (model.TrialUsage, error) {
	var u model.TrialUsage
	if err := c.rpcRow(ctx, "check_trial_usage", map[string]string{"client_ip": ip}, &u); err != nil {
		return model.TrialUsage{}, err
	}
	return u.Normalize(), nil
}

// TrackAnalyzerUsage consumes one trial use for ip and returns the updated counter.
func (c *Client) TrackAnalyzerUsage(ctx context.Context, ip string) (model.TrialUsage, error) {
	var u model.TrialUsage
	if err := c.rpcRow(ctx, "track_analyzer_usage", map[string]string{"client_ip": ip}, &u); err != nil {
		return model.TrialUsage{}, err
	}
	return u.Normalize(), nil
}

// IncrementPositiveRating bumps the user's positive rating counter.
func (c *Client) IncrementPositiveRating(ctx context.Context, userID string) error {
	return c.rpc(ctx, "increment_positive_rating", map[string]string{"user_id": userID}, nil)
}

// IncrementNegativeRating bumps the user's negative rating counter.
func (c *Client) IncrementNegativeRating(ctx context.Context, userID string) error {
	return c.rpc(ctx, "increment_negative_rating", map[string]string{"user_id": userID}, nil)
}

// IncrementVisitCount bumps the user's visit counter.
func (c *Client) IncrementVisitCount(ctx context.Context, userID string) error {
	return c.rpc(ctx, "increment_visit_count", map[string]string{"user_id": userID}, nil)
}

// LinksAnalyzed reads the user's analysed-links counter.
func (c *Client) LinksAnalyzed(ctx context.Context, userID string) (int, error) {
	var rows []struct {
		LinksAnalyzed int `json:"links_analyzed"`
	}
	if err := c.do(ctx, http.MethodGet, profilePath(userID, "links_analyzed"), nil, &rows, nil); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, ErrProfileNotFound
	}
	return rows[0].LinksAnalyzed, nil
}

// SetLinksAnalyzed overwrites the user's analysed-links counter.
func (c *Client) SetLinksAnalyzed(ctx context.Context, userID string, n int) error {
	body := map[string]int{"links_analyzed": n}
	if err := c.do(ctx, http.MethodPatch, profilePath(userID, ""), body, nil, map[string]string{"Prefer": "return=minimal"}); err != nil {
		return fmt.Errorf("update links_analyzed: %w", err)
	}
	return nil
}
