// Package scheduler sends the periodic admin statistics digest.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"contxtra_bot/internal/admin"
	"contxtra_bot/internal/backend"
	"contxtra_bot/internal/bot"
	"contxtra_bot/internal/model"
	"contxtra_bot/internal/session"
)

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Sessions lists the chats holding a signed-in session and keeps them valid.
type Sessions interface {
	Chats(ctx context.Context) ([]int64, error)
	Load(ctx context.Context, chatID int64) (model.Session, error)
	Renew(ctx context.Context, chatID int64, sess model.Session, r session.Refresher) (model.Session, error)
}

// Deps are the collaborators of the digest.
type Deps struct {
	Sessions  Sessions
	Refresher session.Refresher
	Profiles  bot.ProfilesFunc
	Sender    Sender
}

// Scheduler runs the digest on a cron schedule.
type Scheduler struct {
	deps     Deps
	loc      *time.Location
	schedule cron.Schedule
	log      *slog.Logger
	now      func() time.Time
	pause    time.Duration
}

// New creates a Scheduler firing on schedule (standard five-field cron or
// descriptor) in timezone.
func New(schedule, timezone string, deps Deps, log *slog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}

	return &Scheduler{
		deps:     deps,
		loc:      loc,
		schedule: sched,
		log:      log,
		now:      time.Now,
		// Rate limit: ~20 messages/sec max for Telegram
		pause: 50 * time.Millisecond,
	}, nil
}

// Run fires the digest until ctx is cancelled and waits for a running digest
// to stop. Cancelling ctx also interrupts that digest.
func (s *Scheduler) Run(ctx context.Context) {
	c := cron.New(cron.WithLocation(s.loc))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.SendDigest(ctx) }))
	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
}

// Next returns the next scheduled run.
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.now().In(s.loc))
}

// SendDigest sends the current admin statistics to every chat signed in as an admin.
func (s *Scheduler) SendDigest(ctx context.Context) {
	chats, err := s.deps.Sessions.Chats(ctx)
	if err != nil {
		s.log.Error("list sessions", "error", err)
		return
	}

	sent := 0
	for _, chatID := range chats {
		if ctx.Err() != nil {
			return
		}
		if !s.sendTo(ctx, chatID) {
			continue
		}
		sent++

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.pause):
		}
	}

	if sent > 0 {
		s.log.Info("sent admin digest", "count", sent)
	}
}

func (s *Scheduler) sendTo(ctx context.Context, chatID int64) bool {
	sess, err := s.deps.Sessions.Load(ctx, chatID)
	if err != nil || !sess.Authenticated() {
		return false
	}
	sess, err = s.deps.Sessions.Renew(ctx, chatID, sess, s.deps.Refresher)
	if errors.Is(err, session.ErrExpired) {
		s.log.Info("skip digest, session expired", "chat_id", chatID)
		return false
	}
	if err != nil {
		s.log.Warn("renew session", "chat_id", chatID, "error", err)
	}

	d, err := admin.Open(ctx, s.deps.Profiles(sess.AccessToken), sess)
	switch {
	case errors.Is(err, admin.ErrAccessDenied), errors.Is(err, backend.ErrProfileNotFound):
		return false
	case err != nil:
		s.log.Error("load digest stats", "chat_id", chatID, "user_id", sess.UserID, "error", err)
		return false
	}

	s.deps.Sender.SendMessage(chatID, "Daily digest\n\n"+bot.FormatStats(d.Stats(), 0))
	return true
}
