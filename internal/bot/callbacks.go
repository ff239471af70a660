package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"contxtra_bot/internal/backend"
	"contxtra_bot/internal/rating"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	b.request(tgbotapi.NewCallback(cb.ID, ""), "send callback ack")

	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	action, arg, ok := strings.Cut(cb.Data, ":")
	if !ok {
		return
	}

	b.log.Info("callback",
		"action", action,
		"arg", arg,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case actionRate:
		positive, gen, err := ParseRateCallback(arg)
		if err != nil {
			return
		}
		b.handleRate(ctx, chatID, cb.Message.MessageID, gen, positive)
	case actionHistory:
		idx, err := strconv.Atoi(arg)
		if err != nil {
			return
		}
		b.handleHistoryPick(ctx, chatID, idx)
	}
}

func (b *Bot) handleRate(ctx context.Context, chatID int64, messageID int, gen uint64, positive bool) {
	c, _ := b.chat(ctx, chatID)
	err := c.orch.Rate(ctx, gen, positive)

	switch {
	case errors.Is(err, rating.ErrNotAuthenticated):
		b.reply(chatID, msgSignInToRate)
	case errors.Is(err, rating.ErrAlreadyRated):
		b.reply(chatID, "You have already rated this result.")
	case errors.Is(err, rating.ErrStaleResult), errors.Is(err, rating.ErrNoResult):
		b.reply(chatID, "This result is no longer current.")
	case errors.Is(err, backend.ErrUnauthorized):
		b.expireSession(ctx, chatID, c)
	case err != nil:
		b.log.Error("submit rating", "chat_id", chatID, "error", err)
		b.reply(chatID, "Could not save your rating. Please try again.")
	default:
		empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
		b.request(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, empty), "remove rating buttons")
		b.reply(chatID, "Thanks for your feedback!")
	}
}

func (b *Bot) handleHistoryPick(ctx context.Context, chatID int64, idx int) {
	c, _ := b.chat(ctx, chatID)

	c.mu.Lock()
	items := c.lastHistory
	c.mu.Unlock()
	if items == nil {
		var err error
		if items, err = c.history.List(ctx); err != nil {
			b.reply(chatID, "That history entry is no longer available.")
			return
		}
	}
	if idx < 0 || idx >= len(items) {
		b.reply(chatID, "That history entry is no longer available.")
		return
	}
	b.startAnalysis(ctx, chatID, items[idx].URL)
}
