// Package admin aggregates user profiles for the admin dashboard.
package admin

import (
	"math"

	"contxtra_bot/internal/model"
)

// Stats are totals over the profiles not excluded by the operator.
type Stats struct {
	TotalUsers           int
	TotalLinksAnalyzed   int
	TotalVisits          int
	TotalPositiveRatings int
	TotalNegativeRatings int
	AverageLinksPerUser  float64
	AverageVisitsPerUser float64
}

// ComputeStats sums the counters of profiles whose id is not in excluded.
// Averages are rounded to two decimals and are 0 when no user is counted.
func ComputeStats(profiles []model.UserProfile, excluded map[string]struct{}) Stats {
	var s Stats
	for _, p := range profiles {
		if _, ok := excluded[p.ID]; ok {
			continue
		}
		s.TotalUsers++
		s.TotalLinksAnalyzed += p.LinksAnalyzed
		s.TotalVisits += p.VisitCount
		s.TotalPositiveRatings += p.PositiveRatings
		s.TotalNegativeRatings += p.NegativeRatings
	}
	if s.TotalUsers > 0 {
		s.AverageLinksPerUser = round2(float64(s.TotalLinksAnalyzed) / float64(s.TotalUsers))
		s.AverageVisitsPerUser = round2(float64(s.TotalVisits) / float64(s.TotalUsers))
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
