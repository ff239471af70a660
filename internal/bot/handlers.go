package bot

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"contxtra_bot/internal/admin"
	"contxtra_bot/internal/backend"
	"contxtra_bot/internal/orchestrator"
)

const maxMessageLen = 4000

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	c, created := b.chat(ctx, chatID)
	if !created {
		c.orch.Bootstrap(ctx)
	}
	snap := c.orch.Snapshot()

	status := FormatTrialStatus(snap.Usage)
	if snap.Session.Authenticated() {
		status = "Signed in as " + snap.Session.Email
	}
	b.reply(chatID, `Welcome to CONTXTRA!

Send me a link to a social media post and I will find news articles that add context to it.

`+status+`

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Analysis:
<url> or /analyze <url> — find articles that add context to a post
/history — recently analyzed links
/clear — clear history

Account:
/login <email> <password> — sign in for unlimited access
/logout — sign out
/me — your usage statistics

Admin:
/admin — user statistics
/admin sort <column> — sort users (email, full_name, created_at, links_analyzed, visit_count, positive_ratings, negative_ratings, is_admin)
/admin toggle <user_id> — exclude or include a user in statistics
/admin all — exclude or include everyone
/admin clear — clear exclusions
/admin refresh — reload users`)
}

// analyze runs one submission for the chat, keeping a progress message updated
// while the analysis call is in flight.
func (b *Bot) analyze(ctx context.Context, chatID int64, url string) {
	c, _ := b.chat(ctx, chatID)
	if c.orch.Snapshot().State.Busy() {
		b.reply(chatID, msgBusy)
		return
	}

	done := make(chan struct{})
	progressID := make(chan int, 1)
	go func() {
		progressID <- b.trackProgress(ctx, c, chatID, done)
	}()

	snap, err := c.orch.Submit(ctx, url)
	close(done)
	if id := <-progressID; id != 0 {
		b.request(tgbotapi.NewDeleteMessage(chatID, id), "delete progress message")
	}

	var verr *orchestrator.ValidationError
	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		b.reply(chatID, msgBusy)
	case errors.As(err, &verr):
		b.reply(chatID, verr.Message)
	case errors.Is(err, orchestrator.ErrTrialExpired):
		b.reply(chatID, msgTrialExpired)
	case err != nil:
		b.reply(chatID, "Error: "+snap.Message)
	default:
		b.sendResult(chatID, snap)
	}
}

// trackProgress posts and edits the progress message while the orchestrator is
// submitting. It returns the progress message id, or 0 when none was posted.
func (b *Bot) trackProgress(ctx context.Context, c *chat, chatID int64, done <-chan struct{}) int {
	ticker := time.NewTicker(b.progressEvery)
	defer ticker.Stop()

	msgID := 0
	last := ""
	for {
		select {
		case <-done:
			return msgID
		case <-ctx.Done():
			return msgID
		case <-ticker.C:
		}

		snap := c.orch.Snapshot()
		if snap.State != orchestrator.Submitting {
			continue
		}
		text := FormatProgress(snap.URL, c.orch.Progress(b.now()))
		if text == last {
			continue
		}
		last = text

		if msgID == 0 {
			sent, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
			if err != nil {
				b.log.Warn("send progress", "chat_id", chatID, "error", err)
				continue
			}
			msgID = sent.MessageID
			continue
		}
		if _, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, msgID, text)); err != nil {
			b.log.Debug("edit progress", "chat_id", chatID, "error", err)
		}
	}
}

func (b *Bot) sendResult(chatID int64, snap orchestrator.Snapshot) {
	text := FormatResult(snap.Result)

	if !snap.Session.Authenticated() {
		text += "\n\n" + FormatTrialStatus(snap.Usage) + "\n" + msgSignInToRate
		b.reply(chatID, text)
		return
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👍 Helpful", RateCallbackData(true, snap.Rating.Generation)),
			tgbotapi.NewInlineKeyboardButtonData("👎 Not Helpful", RateCallbackData(false, snap.Rating.Generation)),
		),
	)
	b.replyWithKeyboard(chatID, text+"\n\nWas this helpful?", &kb)
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64) {
	c, _ := b.chat(ctx, chatID)
	items, err := c.history.List(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	c.mu.Lock()
	c.lastHistory = items
	c.mu.Unlock()

	if len(items) == 0 {
		b.reply(chatID, FormatHistory(b.now(), items))
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(items))
	for i, it := range items {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(shorten(it.URL, 48), HistoryCallbackData(i)),
		))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.replyWithKeyboard(chatID, FormatHistory(b.now(), items), &kb)
}

func (b *Bot) handleClear(ctx context.Context, chatID int64) {
	c, _ := b.chat(ctx, chatID)
	if err := c.history.Clear(ctx); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	c.mu.Lock()
	c.lastHistory = nil
	c.mu.Unlock()
	b.reply(chatID, "History cleared.")
}

func (b *Bot) handleLogin(ctx context.Context, chatID int64, messageID int, args string) {
	email, password, err := ParseLoginArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /login <email> <password>")
		return
	}
	// The command carries a password.
	b.request(tgbotapi.NewDeleteMessage(chatID, messageID), "delete login message")

	c, _ := b.chat(ctx, chatID)
	sess, err := b.deps.Auth.SignIn(ctx, email, password)
	if errors.Is(err, backend.ErrInvalidCredentials) {
		b.reply(chatID, "Invalid email or password.")
		return
	}
	if err != nil {
		b.log.Error("sign in", "chat_id", chatID, "error", err)
		b.reply(chatID, "Sign-in failed. Please try again later.")
		return
	}

	if err := b.sessions.Save(ctx, chatID, sess); err != nil {
		b.log.Error("save session", "chat_id", chatID, "error", err)
	}
	c.orch.SetSession(sess)
	c.resetDashboard()
	c.orch.Bootstrap(ctx)

	b.log.Info("signed in", "chat_id", chatID, "user_id", sess.UserID)
	b.reply(chatID, fmt.Sprintf("Signed in as %s. Enjoy unlimited analyses!", sess.Email))
}

func (b *Bot) handleLogout(ctx context.Context, chatID int64) {
	c, _ := b.chat(ctx, chatID)
	if !c.orch.Session().Authenticated() {
		b.reply(chatID, "You are not signed in.")
		return
	}

	b.signOut(ctx, chatID, c, true)
	b.reply(chatID, "Signed out.\n"+FormatTrialStatus(c.orch.Snapshot().Usage))
}

func (b *Bot) handleMe(ctx context.Context, chatID int64) {
	c, _ := b.chat(ctx, chatID)
	m, err := c.orch.Metrics(ctx)
	if errors.Is(err, orchestrator.ErrAnonymous) {
		b.reply(chatID, "Sign in with /login <email> <password> to see your statistics.\n"+FormatTrialStatus(c.orch.Snapshot().Usage))
		return
	}
	if errors.Is(err, backend.ErrUnauthorized) {
		b.expireSession(ctx, chatID, c)
		return
	}
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatMetrics(c.orch.Session().Email, m))
}

func (b *Bot) handleAdmin(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseAdminArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	c, _ := b.chat(ctx, chatID)
	text, err := b.runAdmin(ctx, c, parsed)
	switch {
	case errors.Is(err, admin.ErrAccessDenied), errors.Is(err, backend.ErrProfileNotFound):
		b.reply(chatID, "Access denied. Admin privileges required.")
	case errors.Is(err, backend.ErrUnauthorized):
		b.expireSession(ctx, chatID, c)
	case err != nil:
		b.log.Error("admin dashboard", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to fetch user data.")
	default:
		b.reply(chatID, text)
	}
}

// runAdmin applies one admin action and returns the reply. Errors are load
// failures; invalid input is reported in the reply.
func (b *Bot) runAdmin(ctx context.Context, c *chat, parsed AdminArgs) (string, error) {
	sess := c.orch.Session()

	c.mu.Lock()
	defer c.mu.Unlock()

	fresh := false
	if c.dash == nil || c.dashUser != sess.UserID {
		d, err := admin.Open(ctx, b.deps.Profiles(sess.AccessToken), sess)
		if err != nil {
			return "", err
		}
		c.dash, c.dashUser, fresh = d, sess.UserID, true
	}
	d := c.dash

	switch parsed.Action {
	case "sort":
		key, err := admin.ParseSortKey(parsed.Arg)
		if err != nil {
			return err.Error(), nil
		}
		d.SortBy(key)
	case "toggle":
		if _, ok := d.Toggle(parsed.Arg); !ok {
			return fmt.Sprintf("User %s not found.", parsed.Arg), nil
		}
	case "all":
		d.ToggleAll()
	case "clear":
		d.Clear()
	case "refresh":
		if !fresh {
			if err := d.Refresh(ctx); err != nil {
				return "", err
			}
		}
	}

	return FormatDashboard(d), nil
}

func (c *chat) resetDashboard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dash = nil
	c.dashUser = ""
}

func shorten(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func truncateMessage(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	cut := maxMessageLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n…"
}
