package backend

import (
	"context"
	"net/http"
	"net/url"

	"contxtra_bot/internal/model"
)

func profilePath(userID, columns string) string {
	q := url.Values{"id": {"eq." + userID}}
	if columns != "" {
		q.Set("select", columns)
	}
	return "/rest/v1/profiles?" + q.Encode()
}

// Profile fetches a single profile row.
func (c *Client) Profile(ctx context.Context, userID string) (model.UserProfile, error) {
	var rows []model.UserProfile
	if err := c.do(ctx, http.MethodGet, profilePath(userID, "*"), nil, &rows, nil); err != nil {
		return model.UserProfile{}, err
	}
	if len(rows) == 0 {
		return model.UserProfile{}, ErrProfileNotFound
	}
	return rows[0], nil
}

// Metrics fetches the counters shown to a signed-in user.
func (c *Client) Metrics(ctx context.Context, userID string) (model.UserMetrics, error) {
	var rows []model.UserMetrics
	cols := "links_analyzed,visit_count,positive_ratings,negative_ratings,is_admin"
	if err := c.do(ctx, http.MethodGet, profilePath(userID, cols), nil, &rows, nil); err != nil {
		return model.UserMetrics{}, err
	}
	if len(rows) == 0 {
		return model.UserMetrics{}, ErrProfileNotFound
	}
	return rows[0], nil
}

// Profiles fetches every profile, newest first. Row visibility is decided by the
// backend's policies for the client's token.
func (c *Client) Profiles(ctx context.Context) ([]model.UserProfile, error) {
	q := url.Values{"select": {"*"}, "order": {"created_at.desc"}}
	var rows []model.UserProfile
	if err := c.do(ctx, http.MethodGet, "/rest/v1/profiles?"+q.Encode(), nil, &rows, nil); err != nil {
		return nil, err
	}
	return rows, nil
}
