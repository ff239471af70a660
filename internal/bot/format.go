package bot

import (
	"fmt"
	"strings"
	"time"

	"contxtra_bot/internal/admin"
	"contxtra_bot/internal/model"
	"contxtra_bot/internal/orchestrator"
)

const (
	msgBusy           = "An analysis is already running."
	msgTrialExpired   = "Your trial period has ended. You've reached the limit of your free trial.\nSign in with /login <email> <password> to keep adding context to posts."
	msgSignInToRate   = "Sign in with /login to rate results."
	msgSessionExpired = "Your session has expired. Sign in again with /login <email> <password>."
)

// FormatTrialStatus describes the anonymous trial quota.
func FormatTrialStatus(u *model.TrialUsage) string {
	switch {
	case u == nil:
		return "Trial Mode: usage unknown"
	case u.TrialExpired:
		return "Trial Mode: trial ended. Sign up for full access."
	default:
		return fmt.Sprintf("Trial Mode: %d uses remaining", u.RemainingUses)
	}
}

// FormatProgress renders the loading message of an in-flight analysis.
func FormatProgress(url string, p orchestrator.Progress) string {
	const width = 20
	filled := p.Percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("Analyzing %s\n\n%s %d%%\n%s...", url, bar, p.Percent, p.Stage)
}

// FormatResult renders matched articles.
func FormatResult(res *model.AnalysisResult) string {
	if res == nil || len(res.MatchedArticles) == 0 {
		return "No matching articles were found for this post."
	}

	var b strings.Builder
	if n := len(res.MatchedArticles); n == 1 {
		b.WriteString("Found 1 related article:\n")
	} else {
		fmt.Fprintf(&b, "Found %d related articles:\n", n)
	}
	for i, a := range res.MatchedArticles {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, a.Title)
		if a.Description != "" {
			b.WriteString(a.Description)
			b.WriteString("\n")
		}
		if a.Source != "" {
			fmt.Fprintf(&b, "Source: %s\n", a.Source)
		}
		if a.URL != "" {
			b.WriteString(a.URL)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatRelativeTime renders t relative to now the way the history list shows it.
func FormatRelativeTime(now, t time.Time) string {
	mins := int(now.Sub(t) / time.Minute)
	switch {
	case mins < 1:
		return "Just now"
	case mins < 60:
		return fmt.Sprintf("%dm ago", mins)
	case mins < 24*60:
		return fmt.Sprintf("%dh ago", mins/60)
	default:
		return t.Format("2006-01-02")
	}
}

// FormatHistory renders the history list, most recent first.
func FormatHistory(now time.Time, items []model.HistoryItem) string {
	if len(items) == 0 {
		return "No history yet. Send a post URL to analyze it."
	}
	var b strings.Builder
	b.WriteString("Recent links:\n")
	for i, it := range items {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, it.URL, FormatRelativeTime(now, it.Time()))
	}
	return b.String()
}

// FormatMetrics renders a signed-in user's counters.
func FormatMetrics(email string, m model.UserMetrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Signed in as %s\n\n", email)
	fmt.Fprintf(&b, "Links analyzed: %d\n", m.LinksAnalyzed)
	fmt.Fprintf(&b, "Visits: %d\n", m.VisitCount)
	fmt.Fprintf(&b, "Helpful ratings: %d\n", m.PositiveRatings)
	fmt.Fprintf(&b, "Not helpful ratings: %d", m.NegativeRatings)
	if m.IsAdmin {
		b.WriteString("\n\nAdmin: /admin")
	}
	return b.String()
}

// FormatStats renders the admin summary.
func FormatStats(s admin.Stats, excluded int) string {
	var b strings.Builder
	b.WriteString("Statistics\n\n")
	fmt.Fprintf(&b, "Total users: %d\n", s.TotalUsers)
	fmt.Fprintf(&b, "Links analyzed: %d\n", s.TotalLinksAnalyzed)
	fmt.Fprintf(&b, "Total visits: %d\n", s.TotalVisits)
	fmt.Fprintf(&b, "Positive ratings: %d\n", s.TotalPositiveRatings)
	fmt.Fprintf(&b, "Negative ratings: %d\n", s.TotalNegativeRatings)
	fmt.Fprintf(&b, "Avg links per user: %.2f\n", s.AverageLinksPerUser)
	fmt.Fprintf(&b, "Avg visits per user: %.2f", s.AverageVisitsPerUser)
	if excluded > 0 {
		suffix := "s"
		if excluded == 1 {
			suffix = ""
		}
		fmt.Fprintf(&b, "\n\n%d user%s excluded from statistics", excluded, suffix)
	}
	return b.String()
}

// FormatDashboard renders the admin summary followed by the user table.
func FormatDashboard(d *admin.Dashboard) string {
	var b strings.Builder
	b.WriteString(FormatStats(d.Stats(), d.ExcludedCount()))

	s := d.Sorter()
	arrow := "↓"
	if s.Order == admin.Asc {
		arrow = "↑"
	}
	fmt.Fprintf(&b, "\n\nUsers (sorted by %s %s):\n", s.Key, arrow)
	for _, r := range d.Rows() {
		p := r.Profile
		name := p.Email
		if p.FullName != nil && *p.FullName != "" {
			name = fmt.Sprintf("%s <%s>", *p.FullName, p.Email)
		}
		tags := ""
		if p.IsAdmin {
			tags += " [admin]"
		}
		if r.Excluded {
			tags += " (excluded)"
		}
		fmt.Fprintf(&b, "\n%s%s\n  id %s, joined %s\n  links %d, visits %d, +%d/-%d\n",
			name, tags, p.ID, p.CreatedAt.UTC().Format("Jan 2, 2006 15:04"),
			p.LinksAnalyzed, p.VisitCount, p.PositiveRatings, p.NegativeRatings)
	}
	b.WriteString("\n/admin sort <column>, /admin toggle <id>, /admin all, /admin clear, /admin refresh")
	return b.String()
}
