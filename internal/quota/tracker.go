// Package quota gates anonymous usage through the server-side trial counter
// keyed by the caller's network address.
package quota

import (
	"context"
	"errors"
	"fmt"

	"contxtra_bot/internal/model"
)

// ErrQuotaCheckFailed wraps any failure to resolve the address or reach the counter.
var ErrQuotaCheckFailed = errors.New("quota check failed")

// Resolver returns the caller's network address.
type Resolver interface {
	PublicIP(ctx context.Context) (string, error)
}

// Counter is the remote trial counter.
type Counter interface {
	CheckTrialUsage(ctx context.Context, ip string) (model.TrialUsage, error)
	TrackAnalyzerUsage(ctx context.Context, ip string) (model.TrialUsage, error)
}

// Tracker reads and consumes trial uses for the current caller.
type Tracker struct {
	resolver Resolver
	counter  Counter
}

// NewTracker creates a Tracker.
func NewTracker(resolver Resolver, counter Counter) *Tracker {
	return &Tracker{resolver: resolver, counter: counter}
}

// Check returns the current usage without consuming a use.
func (t *Tracker) Check(ctx context.Context) (model.TrialUsage, error) {
	ip, err := t.resolver.PublicIP(ctx)
	if err != nil {
		return model.TrialUsage{}, fmt.Errorf("%w: %w", ErrQuotaCheckFailed, err)
	}
	u, err := t.counter.CheckTrialUsage(ctx, ip)
	if err != nil {
		return model.TrialUsage{}, fmt.Errorf("%w: %w", ErrQuotaCheckFailed, err)
	}
	return u.Normalize(), nil
}

// Track consumes one use and returns the updated usage. Call it at most once per
// submitted attempt.
func (t *Tracker) Track(ctx context.Context) (model.TrialUsage, error) {
	ip, err := t.resolver.PublicIP(ctx)
	if err != nil {
		return model.TrialUsage{}, fmt.Errorf("%w: %w", ErrQuotaCheckFailed, err)
	}
	u, err := t.counter.TrackAnalyzerUsage(ctx, ip)
	if err != nil {
		return model.TrialUsage{}, fmt.Errorf("%w: %w", ErrQuotaCheckFailed, err)
	}
	return u.Normalize(), nil
}
