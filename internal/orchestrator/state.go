package orchestrator

import (
	"time"

	"contxtra_bot/internal/model"
	"contxtra_bot/internal/rating"
)

// State is the phase of the current analysis attempt.
type State int

// Orchestrator states. Success, Error and TrialExpired are terminal for an attempt.
const (
	Idle State = iota
	CheckingQuota
	Submitting
	Success
	Error
	TrialExpired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CheckingQuota:
		return "checking_quota"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Error:
		return "error"
	case TrialExpired:
		return "trial_expired"
	default:
		return "unknown"
	}
}

// Busy reports whether an attempt is in flight.
func (s State) Busy() bool {
	return s == CheckingQuota || s == Submitting
}

// Snapshot is a copy of the orchestrator state for presentation.
type Snapshot struct {
	State     State
	URL       string
	AttemptID string
	Result    *model.AnalysisResult
	Message   string
	// Usage is nil when the trial quota is unknown or the session is authenticated.
	Usage     *model.TrialUsage
	Session   model.Session
	Rating    rating.Snapshot
	StartedAt time.Time
}

// ExpectedDuration is the typical analysis latency the progress estimate is scaled to.
const ExpectedDuration = 9500 * time.Millisecond

// Loading stage texts.
const (
	StageFetching  = "Fetching context"
	StageSearching = "Searching thousands of articles"
	StageMatching  = "Matching relevant articles"
)

// Progress is the cosmetic loading estimate of an in-flight analysis.
type Progress struct {
	Percent int
	Stage   string
}

func estimate(elapsed time.Duration) Progress {
	if elapsed < 0 {
		elapsed = 0
	}
	pct := int(float64(elapsed) / float64(ExpectedDuration) * 100)
	if pct > 98 {
		pct = 98
	}
	stage := StageFetching
	switch {
	case pct >= 75:
		stage = StageMatching
	case pct >= 50:
		stage = StageSearching
	}
	return Progress{Percent: pct, Stage: stage}
}
