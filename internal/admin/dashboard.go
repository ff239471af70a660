package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"contxtra_bot/internal/model"
)

// ErrAccessDenied is returned when the caller is not an admin.
var ErrAccessDenied = errors.New("access denied: admin privileges required")

// Profiles reads the profiles table.
type Profiles interface {
	Profile(ctx context.Context, userID string) (model.UserProfile, error)
	Profiles(ctx context.Context) ([]model.UserProfile, error)
}

// Dashboard holds the profiles fetched for one admin together with the
// operator's exclusion set and sort. Stats are recomputed on every read.
type Dashboard struct {
	source Profiles

	mu       sync.Mutex
	profiles []model.UserProfile
	excluded map[string]struct{}
	sorter   Sorter
}

// Open checks that session belongs to an admin and loads every profile.
// Lookup failures are returned wrapped, so callers can tell an expired
// token from a missing privilege.
func Open(ctx context.Context, source Profiles, session model.Session) (*Dashboard, error) {
	if !session.Authenticated() {
		return nil, ErrAccessDenied
	}
	me, err := source.Profile(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("load caller profile: %w", err)
	}
	if !me.IsAdmin {
		return nil, ErrAccessDenied
	}

	d := &Dashboard{
		source:   source,
		excluded: make(map[string]struct{}),
		sorter:   DefaultSorter(),
	}
	if err := d.Refresh(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Refresh reloads the profiles. Exclusions of ids that no longer exist are dropped.
func (d *Dashboard) Refresh(ctx context.Context) error {
	profiles, err := d.source.Profiles(ctx)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles = profiles
	present := make(map[string]struct{}, len(profiles))
	for _, p := range profiles {
		present[p.ID] = struct{}{}
	}
	for id := range d.excluded {
		if _, ok := present[id]; !ok {
			delete(d.excluded, id)
		}
	}
	return nil
}

// Toggle excludes id from the stats or includes it again and reports whether
// id is now excluded. ok is false for an unknown id.
func (d *Dashboard) Toggle(id string) (excluded, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hasLocked(id) {
		return false, false
	}
	if _, ex := d.excluded[id]; ex {
		delete(d.excluded, id)
		return false, true
	}
	d.excluded[id] = struct{}{}
	return true, true
}

// ToggleAll clears the exclusions when every profile is excluded, otherwise excludes all.
func (d *Dashboard) ToggleAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.excluded) == len(d.profiles) {
		clear(d.excluded)
		return
	}
	for _, p := range d.profiles {
		d.excluded[p.ID] = struct{}{}
	}
}

// Clear empties the exclusion set.
func (d *Dashboard) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.excluded)
}

// SortBy toggles the sort column.
func (d *Dashboard) SortBy(key SortKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sorter.Toggle(key)
}

// Sorter returns the current sort.
func (d *Dashboard) Sorter() Sorter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sorter
}

// Stats computes the totals over the included profiles.
func (d *Dashboard) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ComputeStats(d.profiles, d.excluded)
}

// Row is a profile with its exclusion flag.
type Row struct {
	Profile  model.UserProfile
	Excluded bool
}

// Rows returns the profiles in the current sort order.
func (d *Dashboard) Rows() []Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	sorted := d.sorter.Sort(d.profiles)
	rows := make([]Row, len(sorted))
	for i, p := range sorted {
		_, ex := d.excluded[p.ID]
		rows[i] = Row{Profile: p, Excluded: ex}
	}
	return rows
}

// ExcludedCount returns the size of the exclusion set.
func (d *Dashboard) ExcludedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.excluded)
}

func (d *Dashboard) hasLocked(id string) bool {
	for _, p := range d.profiles {
		if p.ID == id {
			return true
		}
	}
	return false
}
