package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"contxtra_bot/internal/admin"
	"contxtra_bot/internal/config"
	"contxtra_bot/internal/history"
	"contxtra_bot/internal/model"
	"contxtra_bot/internal/orchestrator"
	"contxtra_bot/internal/session"
	"contxtra_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Authenticator signs a user in with email and password and renews the
// resulting sessions.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (model.Session, error)
	Refresh(ctx context.Context, refreshToken string) (model.Session, error)
}

// ProfilesFunc returns the profiles table as seen by the holder of token.
type ProfilesFunc func(token string) admin.Profiles

// Deps are the collaborators shared by every chat.
type Deps struct {
	Store    storage.Storage
	Auth     Authenticator
	Quota    orchestrator.Quota
	Analyzer orchestrator.Analyzer
	Users    orchestrator.Users
	Profiles ProfilesFunc
	Visits   *orchestrator.Visits

	// Sessions defaults to a session store over Store.
	Sessions *session.Store
}

// chat is the state of one Telegram chat.
type chat struct {
	orch    *orchestrator.Orchestrator
	history *history.Cache

	mu          sync.Mutex
	dash        *admin.Dashboard
	dashUser    string
	lastHistory []model.HistoryItem
}

// Bot is the Telegram bot that handles user commands and runs analyses.
type Bot struct {
	api      telegramAPI
	cfg      *config.Config
	deps     Deps
	sessions *session.Store
	log      *slog.Logger

	mu    sync.Mutex
	chats map[int64]*chat

	progressEvery time.Duration
	now           func() time.Time
	spawn         func(func())
	wg            sync.WaitGroup
}

// New creates a Bot with the given Telegram token, config and collaborators.
func New(token string, cfg *config.Config, deps Deps, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, cfg, deps, log), nil
}

func newBot(api telegramAPI, cfg *config.Config, deps Deps, log *slog.Logger) *Bot {
	if deps.Visits == nil {
		deps.Visits = orchestrator.NewVisits()
	}
	b := &Bot{
		api:           api,
		cfg:           cfg,
		deps:          deps,
		sessions:      deps.Sessions,
		log:           log,
		chats:         make(map[int64]*chat),
		progressEvery: 700 * time.Millisecond,
		now:           time.Now,
	}
	if b.sessions == nil {
		b.sessions = session.NewStore(deps.Store).WithClock(func() time.Time { return b.now() })
	}
	b.spawn = func(f func()) {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			f()
		}()
	}
	return b
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled and
// every running analysis has finished.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			msg := update.Message
			if msg == nil || msg.From == nil {
				continue
			}
			if !b.cfg.IsUserAllowed(msg.From.ID) {
				b.reply(msg.Chat.ID, "Access denied.")
				continue
			}
			if msg.IsCommand() {
				b.handleCommand(ctx, msg)
				continue
			}
			if text := strings.TrimSpace(msg.Text); text != "" {
				b.startAnalysis(ctx, msg.Chat.ID, text)
			}
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, truncateMessage(text))
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, truncateMessage(text))
	msg.DisableWebPagePreview = true
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) request(c tgbotapi.Chattable, what string) {
	if _, err := b.api.Request(c); err != nil {
		b.log.Warn(what, "error", err)
	}
}

// chat returns the state of chatID, creating and bootstrapping it on first use.
// A signed-in session close to expiry is renewed first.
func (b *Bot) chat(ctx context.Context, chatID int64) (*chat, bool) {
	b.mu.Lock()
	c, ok := b.chats[chatID]
	if !ok {
		c = &chat{
			history: history.New(b.deps.Store, session.Scope(chatID)).WithClock(b.now),
		}
		c.orch = orchestrator.New(orchestrator.Deps{
			Quota:    b.deps.Quota,
			Analyzer: b.deps.Analyzer,
			History:  c.history,
			Users:    b.deps.Users,
			Visits:   b.deps.Visits,
			Log:      b.log.With("chat_id", chatID),
			Now:      b.now,
		})
		sess, err := b.sessions.Load(ctx, chatID)
		if err != nil {
			b.log.Warn("load session", "chat_id", chatID, "error", err)
		}
		c.orch.SetSession(sess)
		b.chats[chatID] = c
	}
	b.mu.Unlock()

	if expired := b.renew(ctx, chatID, c); !ok && !expired {
		c.orch.Bootstrap(ctx)
	}
	return c, !ok
}

// renew refreshes the chat's access token when it is about to expire. It
// reports whether the chat was signed out instead.
func (b *Bot) renew(ctx context.Context, chatID int64, c *chat) bool {
	sess := c.orch.Session()
	fresh, err := b.sessions.Renew(ctx, chatID, sess, b.deps.Auth)
	switch {
	case errors.Is(err, session.ErrExpired):
		b.log.Info("session expired", "chat_id", chatID, "user_id", sess.UserID)
		b.signOut(ctx, chatID, c, false)
		b.reply(chatID, msgSessionExpired)
		return true
	case err != nil:
		b.log.Warn("renew session", "chat_id", chatID, "user_id", sess.UserID, "error", err)
	case fresh != sess:
		c.orch.SetSession(fresh)
		c.resetDashboard()
	}
	return false
}

// expireSession signs the chat out after the backend rejected its token.
func (b *Bot) expireSession(ctx context.Context, chatID int64, c *chat) {
	b.log.Info("access token rejected", "chat_id", chatID, "user_id", c.orch.Session().UserID)
	b.signOut(ctx, chatID, c, true)
	b.reply(chatID, msgSessionExpired)
}

func (b *Bot) signOut(ctx context.Context, chatID int64, c *chat, drop bool) {
	if drop {
		if err := b.sessions.Save(ctx, chatID, model.Session{}); err != nil {
			b.log.Error("drop session", "chat_id", chatID, "error", err)
		}
	}
	c.orch.SetSession(model.Session{})
	c.resetDashboard()
	c.orch.Bootstrap(ctx)
}

func (b *Bot) startAnalysis(ctx context.Context, chatID int64, url string) {
	b.spawn(func() { b.analyze(ctx, chatID, url) })
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID)
	case "help":
		b.handleHelp(chatID)
	case "analyze":
		if args == "" {
			b.reply(chatID, "Usage: /analyze <post url>")
			return
		}
		b.startAnalysis(ctx, chatID, args)
	case "history":
		b.handleHistory(ctx, chatID)
	case "clear":
		b.handleClear(ctx, chatID)
	case "login":
		b.handleLogin(ctx, chatID, msg.MessageID, args)
	case "logout":
		b.handleLogout(ctx, chatID)
	case "me":
		b.handleMe(ctx, chatID)
	case "admin":
		b.handleAdmin(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
