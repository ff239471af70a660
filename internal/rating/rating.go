// Package rating holds the one-shot "rate this result" state of an analysis.
package rating

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"contxtra_bot/internal/model"
)

// ErrRating matches every precondition failure of Submit.
var ErrRating = errors.New("rating rejected")

// Precondition failures. None of them reaches the network.
var (
	ErrNotAuthenticated = fmt.Errorf("%w: sign in to rate results", ErrRating)
	ErrNoResult         = fmt.Errorf("%w: no result to rate", ErrRating)
	ErrAlreadyRated     = fmt.Errorf("%w: result already rated", ErrRating)
	ErrStaleResult      = fmt.Errorf("%w: result was replaced by a newer analysis", ErrRating)
)

// Rater records a rating for the session's user remotely.
type Rater interface {
	Rate(ctx context.Context, session model.Session, positive bool) error
}

// Snapshot is a read-only view of State.
type Snapshot struct {
	Generation uint64
	HasResult  bool
	HasRated   bool
	Value      model.RatingValue
}

// State tracks whether the current result has been rated. Each submission
// starts a new generation; a rating is only accepted for the generation
// whose result is currently shown.
type State struct {
	mu        sync.Mutex
	rater     Rater
	gen       uint64
	hasResult bool
	hasRated  bool
	pending   bool
	value     model.RatingValue
}

// New creates a State reporting ratings through rater.
func New(rater Rater) *State {
	return &State{rater: rater, value: model.RatingNone}
}

// Begin starts a new generation and clears any result and rating.
func (s *State) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.hasResult = false
	s.hasRated = false
	s.pending = false
	s.value = model.RatingNone
	return s.gen
}

// Attach marks gen as having a rateable result. Attaching an old generation is a no-op.
func (s *State) Attach(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.hasResult = true
}

// Fail drops the current result.
func (s *State) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasResult = false
	s.hasRated = false
	s.pending = false
	s.value = model.RatingNone
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Generation: s.gen, HasResult: s.hasResult, HasRated: s.hasRated, Value: s.value}
}

// Submit rates the result of gen. At most one remote call is made per generation;
// a remote failure leaves the result unrated so it can be retried.
func (s *State) Submit(ctx context.Context, session model.Session, gen uint64, positive bool) error {
	if !session.Authenticated() {
		return ErrNotAuthenticated
	}

	s.mu.Lock()
	switch {
	case gen != s.gen:
		s.mu.Unlock()
		return ErrStaleResult
	case !s.hasResult:
		s.mu.Unlock()
		return ErrNoResult
	case s.hasRated || s.pending:
		s.mu.Unlock()
		return ErrAlreadyRated
	}
	s.pending = true
	s.mu.Unlock()

	err := s.rater.Rate(ctx, session, positive)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	s.pending = false
	if err != nil {
		return fmt.Errorf("submit rating: %w", err)
	}
	s.hasRated = true
	s.value = model.RatingNegative
	if positive {
		s.value = model.RatingPositive
	}
	return nil
}
