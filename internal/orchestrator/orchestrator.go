// Package orchestrator drives one analysis request at a time for a single chat:
// it gates anonymous callers on the trial quota, calls the analysis service,
// and applies the outcome to history, rating and the user's counters.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"contxtra_bot/internal/model"
	"contxtra_bot/internal/rating"
)

// Quota is the anonymous trial counter.
type Quota interface {
	Check(ctx context.Context) (model.TrialUsage, error)
	Track(ctx context.Context) (model.TrialUsage, error)
}

// Analyzer is the remote analysis service.
type Analyzer interface {
	FindArticles(ctx context.Context, postURL string) (*model.AnalysisResult, error)
}

// History records successfully analysed links.
type History interface {
	Record(ctx context.Context, url string) ([]model.HistoryItem, error)
}

// UserAPI is the per-user backend surface, authenticated as that user.
type UserAPI interface {
	IncrementPositiveRating(ctx context.Context, userID string) error
	IncrementNegativeRating(ctx context.Context, userID string) error
	IncrementVisitCount(ctx context.Context, userID string) error
	LinksAnalyzed(ctx context.Context, userID string) (int, error)
	SetLinksAnalyzed(ctx context.Context, userID string, n int) error
	Metrics(ctx context.Context, userID string) (model.UserMetrics, error)
}

// Users returns a UserAPI bound to an access token.
type Users interface {
	For(token string) UserAPI
}

// UsersFunc adapts a function to Users.
type UsersFunc func(token string) UserAPI

// For calls f(token).
func (f UsersFunc) For(token string) UserAPI { return f(token) }

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Quota    Quota
	Analyzer Analyzer
	History  History
	Users    Users
	Visits   *Visits
	Log      *slog.Logger
	Now      func() time.Time
}

// Orchestrator is the analysis state machine of one chat. Methods are safe for
// concurrent use; remote calls run without holding the lock.
type Orchestrator struct {
	deps   Deps
	rating *rating.State

	mu        sync.Mutex
	state     State
	session   model.Session
	usage     *model.TrialUsage
	url       string
	attemptID string
	result    *model.AnalysisResult
	message   string
	startedAt time.Time
}

// New creates an idle Orchestrator for an anonymous session.
func New(deps Deps) *Orchestrator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = slog.New(slog.DiscardHandler)
	}
	if deps.Visits == nil {
		deps.Visits = NewVisits()
	}
	o := &Orchestrator{deps: deps}
	o.rating = rating.New(sessionRater{users: deps.Users})
	return o
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		State:     o.state,
		URL:       o.url,
		AttemptID: o.attemptID,
		Result:    o.result,
		Message:   o.message,
		Session:   o.session,
		Rating:    o.rating.Snapshot(),
		StartedAt: o.startedAt,
	}
	if o.usage != nil {
		u := *o.usage
		s.Usage = &u
	}
	return s
}

// Session returns the current session.
func (o *Orchestrator) Session() model.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// SetSession replaces the session. Signing in discards the trial usage;
// signing out forgets the previous user's visit marker. Call Bootstrap afterwards
// to load the quota or count the visit.
func (o *Orchestrator) SetSession(s model.Session) {
	o.mu.Lock()
	defer o.mu.Unlock()

	prev := o.session
	o.session = s
	o.usage = nil
	if prev.Authenticated() && prev.UserID != s.UserID {
		o.deps.Visits.Forget(prev.UserID)
	}
}

// Bootstrap loads the trial quota for an anonymous session or counts the visit of
// a signed-in user once per process. Failures are logged and never returned.
func (o *Orchestrator) Bootstrap(ctx context.Context) {
	session := o.Session()

	if session.Authenticated() {
		if !o.deps.Visits.Mark(session.UserID) {
			return
		}
		if err := o.deps.Users.For(session.AccessToken).IncrementVisitCount(ctx, session.UserID); err != nil {
			o.deps.Visits.Forget(session.UserID)
			o.deps.Log.Warn("increment visit count", "user_id", session.UserID, "error", err)
		}
		return
	}

	u, err := o.deps.Quota.Check(ctx)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.Authenticated() {
		return
	}
	if err != nil {
		o.usage = nil
		o.deps.Log.Warn("trial quota unknown", "error", err)
		return
	}
	o.usage = &u
}

// Progress returns the loading estimate at now. It is 100 unless an analysis is
// in flight.
func (o *Orchestrator) Progress(now time.Time) Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Submitting {
		return Progress{Percent: 100}
	}
	return estimate(now.Sub(o.startedAt))
}

// Submit runs one analysis attempt for rawURL and returns the resulting snapshot.
// The error is ErrBusy, ErrTrialExpired, a *ValidationError, a quota failure or
// the analysis failure; the snapshot reflects it in every case.
func (o *Orchestrator) Submit(ctx context.Context, rawURL string) (Snapshot, error) {
	o.mu.Lock()
	if o.state.Busy() {
		defer o.mu.Unlock()
		return o.snapshotLocked(), ErrBusy
	}

	postURL := strings.TrimSpace(rawURL)
	if msg := validateURL(postURL); msg != "" {
		defer o.mu.Unlock()
		o.finishLocked(Error, msg)
		o.url = postURL
		return o.snapshotLocked(), &ValidationError{Message: msg}
	}

	attemptID := uuid.Must(uuid.NewV7()).String()
	session := o.session
	log := o.deps.Log.With("attempt_id", attemptID, "url", postURL)
	o.attemptID = attemptID
	o.url = postURL

	if !session.Authenticated() {
		if o.usage != nil && o.usage.TrialExpired {
			defer o.mu.Unlock()
			o.finishLocked(TrialExpired, "")
			log.Info("trial expired")
			return o.snapshotLocked(), ErrTrialExpired
		}

		var prev *model.TrialUsage
		if o.usage != nil {
			u := *o.usage
			prev = &u
		}
		o.state = CheckingQuota
		o.result = nil
		o.message = ""
		o.mu.Unlock()

		u, err := o.deps.Quota.Track(ctx)

		o.mu.Lock()
		if err != nil {
			defer o.mu.Unlock()
			o.finishLocked(Error, MsgQuotaCheck)
			log.Warn("track trial usage", "error", err)
			return o.snapshotLocked(), fmt.Errorf("track trial usage: %w", err)
		}
		o.usage = &u
		if u.TrialExpired && (prev == nil || prev.RemainingUses == 0) {
			defer o.mu.Unlock()
			o.finishLocked(TrialExpired, "")
			log.Info("trial expired after tracking")
			return o.snapshotLocked(), ErrTrialExpired
		}
	}

	gen := o.rating.Begin()
	o.state = Submitting
	o.result = nil
	o.message = ""
	o.startedAt = o.deps.Now()
	o.mu.Unlock()

	log.Debug("analysis started", "anonymous", !session.Authenticated())
	res, err := o.deps.Analyzer.FindArticles(ctx, postURL)

	if err != nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.finishLocked(Error, err.Error())
		log.Warn("analysis failed", "error", err)
		return o.snapshotLocked(), fmt.Errorf("find articles: %w", err)
	}

	o.mu.Lock()
	o.state = Success
	o.result = res
	o.message = ""
	o.rating.Attach(gen)
	o.mu.Unlock()
	log.Info("analysis succeeded", "articles", len(res.MatchedArticles))

	if _, err := o.deps.History.Record(ctx, postURL); err != nil {
		log.Warn("record history", "error", err)
	}
	if session.Authenticated() {
		o.incrementLinksAnalyzed(ctx, log, session)
	}

	return o.Snapshot(), nil
}

// finishLocked moves to a terminal state without a result.
func (o *Orchestrator) finishLocked(s State, msg string) {
	o.state = s
	o.result = nil
	o.message = msg
	o.rating.Fail()
}

// incrementLinksAnalyzed bumps the user's counter with a separate read and write.
// Two analyses finishing together for the same user may under-count.
func (o *Orchestrator) incrementLinksAnalyzed(ctx context.Context, log *slog.Logger, session model.Session) {
	api := o.deps.Users.For(session.AccessToken)
	n, err := api.LinksAnalyzed(ctx, session.UserID)
	if err != nil {
		log.Warn("read links analyzed", "user_id", session.UserID, "error", err)
		return
	}
	if err := api.SetLinksAnalyzed(ctx, session.UserID, n+1); err != nil {
		log.Warn("write links analyzed", "user_id", session.UserID, "error", err)
	}
}

// Rate rates the result of generation gen for the current user.
func (o *Orchestrator) Rate(ctx context.Context, gen uint64, positive bool) error {
	return o.rating.Submit(ctx, o.Session(), gen, positive)
}

// Metrics returns the signed-in user's counters.
func (o *Orchestrator) Metrics(ctx context.Context) (model.UserMetrics, error) {
	session := o.Session()
	if !session.Authenticated() {
		return model.UserMetrics{}, ErrAnonymous
	}
	m, err := o.deps.Users.For(session.AccessToken).Metrics(ctx, session.UserID)
	if err != nil {
		return model.UserMetrics{}, fmt.Errorf("load metrics: %w", err)
	}
	return m, nil
}

func validateURL(s string) string {
	if s == "" {
		return MsgEmptyURL
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return MsgInvalidURL
	}
	return ""
}

type sessionRater struct {
	users Users
}

func (r sessionRater) Rate(ctx context.Context, session model.Session, positive bool) error {
	if r.users == nil {
		return errors.New("no user backend configured")
	}
	api := r.users.For(session.AccessToken)
	if positive {
		return api.IncrementPositiveRating(ctx, session.UserID)
	}
	return api.IncrementNegativeRating(ctx, session.UserID)
}
