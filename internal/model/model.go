// Package model defines the domain types used across the application.
package model

import "time"

// Session identifies the caller. An empty UserID means anonymous (trial) mode.
type Session struct {
	UserID       string `json:"user_id,omitempty"`
	Email        string `json:"email,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"` // epoch seconds, 0 when unknown
}

// Authenticated reports whether the session belongs to a signed-in user.
func (s Session) Authenticated() bool {
	return s.UserID != ""
}

// ExpiresWithin reports whether the access token expires before now+d.
// A session with an unknown expiry never does.
func (s Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	return s.ExpiresAt != 0 && now.Add(d).Unix() >= s.ExpiresAt
}

// TrialUsage is the anonymous usage counter tied to the caller's network address.
type TrialUsage struct {
	RemainingUses int  `json:"remaining_uses"`
	TrialExpired  bool `json:"trial_expired"`
}

// Normalize enforces RemainingUses >= 0 and TrialExpired implies zero remaining uses.
func (u TrialUsage) Normalize() TrialUsage {
	if u.RemainingUses < 0 || u.TrialExpired {
		u.RemainingUses = 0
	}
	return u
}

// HistoryItem is a previously submitted link.
type HistoryItem struct {
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// Time returns the item timestamp as a time.Time.
func (h HistoryItem) Time() time.Time {
	return time.UnixMilli(h.Timestamp)
}

// Article is one news article matched to an analysed post.
type Article struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Content     string  `json:"content"`
	URL         string  `json:"url"`
	Source      string  `json:"source"`
	Score       float64 `json:"score"`
	ImageURL    *string `json:"urlToImage"`
}

// AnalysisResult is the successful response of the analysis service.
// An empty MatchedArticles slice is a valid result.
type AnalysisResult struct {
	MatchedArticles []Article `json:"matched_articles"`
}

// RatingValue is the polarity of a result rating.
type RatingValue string

// Supported rating values.
const (
	RatingNone     RatingValue = "none"
	RatingPositive RatingValue = "positive"
	RatingNegative RatingValue = "negative"
)

// UserProfile is a row of the external profiles table.
type UserProfile struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	FullName        *string   `json:"full_name"`
	CreatedAt       time.Time `json:"created_at"`
	LinksAnalyzed   int       `json:"links_analyzed"`
	VisitCount      int       `json:"visit_count"`
	PositiveRatings int       `json:"positive_ratings"`
	NegativeRatings int       `json:"negative_ratings"`
	IsAdmin         bool      `json:"is_admin"`
}

// UserMetrics is the per-user counter view shown to a signed-in user.
type UserMetrics struct {
	LinksAnalyzed   int  `json:"links_analyzed"`
	VisitCount      int  `json:"visit_count"`
	PositiveRatings int  `json:"positive_ratings"`
	NegativeRatings int  `json:"negative_ratings"`
	IsAdmin         bool `json:"is_admin"`
}
