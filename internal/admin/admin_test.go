package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"contxtra_bot/internal/model"
)

func ptr(s string) *string { return &s }

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func sampleProfiles() []model.UserProfile {
	return []model.UserProfile{
		{ID: "a", Email: "zoe@example.com", FullName: ptr("Zoë"), CreatedAt: base.Add(2 * time.Hour), LinksAnalyzed: 4, VisitCount: 3, PositiveRatings: 1, IsAdmin: true},
		{ID: "b", Email: "adam@example.com", FullName: nil, CreatedAt: base.Add(1 * time.Hour), LinksAnalyzed: 6, VisitCount: 2, NegativeRatings: 2},
		{ID: "c", Email: "Émile@example.com", FullName: ptr("émile"), CreatedAt: base.Add(3 * time.Hour), LinksAnalyzed: 1, VisitCount: 2, PositiveRatings: 3},
	}
}

func ids(ps []model.UserProfile) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func TestComputeStats(t *testing.T) {
	two := []model.UserProfile{{ID: "one", LinksAnalyzed: 4}, {ID: "two", LinksAnalyzed: 6}}

	tests := []struct {
		name     string
		profiles []model.UserProfile
		excluded map[string]struct{}
		want     Stats
	}{
		{
			name:     "no exclusions",
			profiles: sampleProfiles(),
			want: Stats{
				TotalUsers: 3, TotalLinksAnalyzed: 11, TotalVisits: 7,
				TotalPositiveRatings: 4, TotalNegativeRatings: 2,
				AverageLinksPerUser: 3.67, AverageVisitsPerUser: 2.33,
			},
		},
		{
			name:     "everyone excluded",
			profiles: sampleProfiles(),
			excluded: map[string]struct{}{"a": {}, "b": {}, "c": {}},
			want:     Stats{},
		},
		{
			name:     "second excluded",
			profiles: two,
			excluded: map[string]struct{}{"two": {}},
			want:     Stats{TotalUsers: 1, TotalLinksAnalyzed: 4, AverageLinksPerUser: 4},
		},
		{
			name:     "unknown exclusion ignored",
			profiles: two,
			excluded: map[string]struct{}{"ghost": {}},
			want:     Stats{TotalUsers: 2, TotalLinksAnalyzed: 10, AverageLinksPerUser: 5},
		},
		{
			name: "no profiles",
			want: Stats{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStats(tt.profiles, tt.excluded)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("stats (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSorterToggle(t *testing.T) {
	s := DefaultSorter()
	if diff := cmp.Diff(Sorter{Key: KeyCreatedAt, Order: Desc}, s); diff != "" {
		t.Fatalf("default (-want +got):\n%s", diff)
	}

	s.Toggle(KeyCreatedAt)
	if diff := cmp.Diff(Sorter{Key: KeyCreatedAt, Order: Asc}, s); diff != "" {
		t.Errorf("same key (-want +got):\n%s", diff)
	}
	s.Toggle(KeyEmail)
	if diff := cmp.Diff(Sorter{Key: KeyEmail, Order: Desc}, s); diff != "" {
		t.Errorf("new key (-want +got):\n%s", diff)
	}
	s.Toggle(KeyEmail)
	s.Toggle(KeyEmail)
	if diff := cmp.Diff(Sorter{Key: KeyEmail, Order: Desc}, s); diff != "" {
		t.Errorf("double toggle (-want +got):\n%s", diff)
	}
}

func TestSort(t *testing.T) {
	tests := []struct {
		name   string
		sorter Sorter
		want   []string
	}{
		{name: "created desc", sorter: Sorter{Key: KeyCreatedAt, Order: Desc}, want: []string{"c", "a", "b"}},
		{name: "created asc", sorter: Sorter{Key: KeyCreatedAt, Order: Asc}, want: []string{"b", "a", "c"}},
		{name: "links desc", sorter: Sorter{Key: KeyLinksAnalyzed, Order: Desc}, want: []string{"b", "a", "c"}},
		{name: "email asc collated", sorter: Sorter{Key: KeyEmail, Order: Asc}, want: []string{"b", "c", "a"}},
		{name: "full name asc nil first", sorter: Sorter{Key: KeyFullName, Order: Asc}, want: []string{"b", "c", "a"}},
		{name: "visits desc stable", sorter: Sorter{Key: KeyVisitCount, Order: Desc}, want: []string{"a", "b", "c"}},
		{name: "visits asc stable", sorter: Sorter{Key: KeyVisitCount, Order: Asc}, want: []string{"b", "c", "a"}},
		{name: "admin desc", sorter: Sorter{Key: KeyIsAdmin, Order: Desc}, want: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sampleProfiles()
			got := tt.sorter.Sort(in)
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("order (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"a", "b", "c"}, ids(in)); diff != "" {
				t.Errorf("input mutated (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseSortKey(t *testing.T) {
	got, err := ParseSortKey(" Links_Analyzed ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != KeyLinksAnalyzed {
		t.Errorf("key = %q", got)
	}
	if _, err := ParseSortKey("password"); err == nil {
		t.Error("expected error for unknown key")
	}
}

type fakeProfiles struct {
	profiles []model.UserProfile
	me       model.UserProfile
	meErr    error
	listErr  error
}

func (f *fakeProfiles) Profile(_ context.Context, _ string) (model.UserProfile, error) {
	return f.me, f.meErr
}

func (f *fakeProfiles) Profiles(_ context.Context) ([]model.UserProfile, error) {
	return f.profiles, f.listErr
}

var (
	admin     = model.Session{UserID: "a", Email: "zoe@example.com"}
	errLookup = errors.New("status=401 JWT expired")
)

func TestOpenAccess(t *testing.T) {
	tests := []struct {
		name    string
		source  *fakeProfiles
		session model.Session
		wantErr error
	}{
		{name: "anonymous", source: &fakeProfiles{}, session: model.Session{}, wantErr: ErrAccessDenied},
		{name: "not admin", source: &fakeProfiles{me: model.UserProfile{ID: "a"}}, session: admin, wantErr: ErrAccessDenied},
		{name: "profile lookup fails", source: &fakeProfiles{meErr: errLookup}, session: admin, wantErr: errLookup},
		{name: "admin", source: &fakeProfiles{me: model.UserProfile{ID: "a", IsAdmin: true}, profiles: sampleProfiles()}, session: admin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Open(context.Background(), tt.source, tt.session)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if tt.wantErr == errLookup && errors.Is(err, ErrAccessDenied) {
					t.Errorf("lookup failure reported as access denied: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if diff := cmp.Diff(3, d.Stats().TotalUsers); diff != "" {
				t.Errorf("users (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDashboardExclusions(t *testing.T) {
	src := &fakeProfiles{me: model.UserProfile{ID: "a", IsAdmin: true}, profiles: sampleProfiles()}
	d, err := Open(context.Background(), src, admin)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if ex, ok := d.Toggle("b"); !ok || !ex {
		t.Fatalf("Toggle(b) = %v, %v; want excluded", ex, ok)
	}
	if diff := cmp.Diff(5, d.Stats().TotalLinksAnalyzed); diff != "" {
		t.Errorf("links after exclusion (-want +got):\n%s", diff)
	}
	if _, ok := d.Toggle("ghost"); ok {
		t.Error("unknown id toggled")
	}

	d.ToggleAll()
	if diff := cmp.Diff(Stats{}, d.Stats()); diff != "" {
		t.Errorf("all excluded (-want +got):\n%s", diff)
	}
	d.ToggleAll()
	if diff := cmp.Diff(0, d.ExcludedCount()); diff != "" {
		t.Errorf("toggle all twice (-want +got):\n%s", diff)
	}

	d.Toggle("a")
	d.Clear()
	if diff := cmp.Diff(3, d.Stats().TotalUsers); diff != "" {
		t.Errorf("after clear (-want +got):\n%s", diff)
	}
}

func TestDashboardRowsAndRefresh(t *testing.T) {
	src := &fakeProfiles{me: model.UserProfile{ID: "a", IsAdmin: true}, profiles: sampleProfiles()}
	d, err := Open(context.Background(), src, admin)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d.Toggle("c")
	d.SortBy(KeyLinksAnalyzed)

	want := []Row{
		{Profile: src.profiles[1]},
		{Profile: src.profiles[0]},
		{Profile: src.profiles[2], Excluded: true},
	}
	if diff := cmp.Diff(want, d.Rows()); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}

	src.profiles = src.profiles[:2]
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if diff := cmp.Diff(0, d.ExcludedCount()); diff != "" {
		t.Errorf("stale exclusion kept (-want +got):\n%s", diff)
	}

	src.listErr = errors.New("down")
	if err := d.Refresh(context.Background()); err == nil {
		t.Error("expected refresh error")
	}
}
