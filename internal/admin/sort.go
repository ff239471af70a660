package admin

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"contxtra_bot/internal/model"
)

// SortKey names a profile column.
type SortKey string

// Sortable columns.
const (
	KeyEmail           SortKey = "email"
	KeyFullName        SortKey = "full_name"
	KeyCreatedAt       SortKey = "created_at"
	KeyLinksAnalyzed   SortKey = "links_analyzed"
	KeyVisitCount      SortKey = "visit_count"
	KeyPositiveRatings SortKey = "positive_ratings"
	KeyNegativeRatings SortKey = "negative_ratings"
	KeyIsAdmin         SortKey = "is_admin"
)

// SortKeys lists every sortable column in display order.
var SortKeys = []SortKey{
	KeyEmail, KeyFullName, KeyCreatedAt, KeyLinksAnalyzed,
	KeyVisitCount, KeyPositiveRatings, KeyNegativeRatings, KeyIsAdmin,
}

// ParseSortKey validates a column name.
func ParseSortKey(s string) (SortKey, error) {
	k := SortKey(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(SortKeys, k) {
		return k, nil
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// Order is a sort direction.
type Order string

// Sort directions.
const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// Sorter is the current column and direction of the profile table.
type Sorter struct {
	Key   SortKey
	Order Order
}

// DefaultSorter orders by newest account first.
func DefaultSorter() Sorter {
	return Sorter{Key: KeyCreatedAt, Order: Desc}
}

// Toggle flips the direction when key is already selected, otherwise selects key descending.
func (s *Sorter) Toggle(key SortKey) {
	if s.Key == key {
		if s.Order == Asc {
			s.Order = Desc
		} else {
			s.Order = Asc
		}
		return
	}
	s.Key = key
	s.Order = Desc
}

// Sort returns a stably sorted copy of profiles. Text columns use English
// collation; a missing full name sorts as the empty string.
func (s Sorter) Sort(profiles []model.UserProfile) []model.UserProfile {
	out := slices.Clone(profiles)
	col := collate.New(language.English)

	compare := func(a, b model.UserProfile) int {
		switch s.Key {
		case KeyEmail:
			return col.CompareString(a.Email, b.Email)
		case KeyFullName:
			return col.CompareString(fullName(a), fullName(b))
		case KeyCreatedAt:
			return a.CreatedAt.Compare(b.CreatedAt)
		case KeyLinksAnalyzed:
			return cmp.Compare(a.LinksAnalyzed, b.LinksAnalyzed)
		case KeyVisitCount:
			return cmp.Compare(a.VisitCount, b.VisitCount)
		case KeyPositiveRatings:
			return cmp.Compare(a.PositiveRatings, b.PositiveRatings)
		case KeyNegativeRatings:
			return cmp.Compare(a.NegativeRatings, b.NegativeRatings)
		case KeyIsAdmin:
			return cmp.Compare(boolInt(a.IsAdmin), boolInt(b.IsAdmin))
		default:
			return 0
		}
	}

	slices.SortStableFunc(out, func(a, b model.UserProfile) int {
		if s.Order == Asc {
			return compare(a, b)
		}
		return compare(b, a)
	})
	return out
}

func fullName(p model.UserProfile) string {
	if p.FullName == nil {
		return ""
	}
	return *p.FullName
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
