package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"askbot/internal/domain"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramAnswerTimeout  = 120 * time.Second
)

// Telegram answers questions sent to a Telegram bot.
type Telegram struct {
	token     string
	allowFrom []int64 // allowed user IDs (empty = allow all)
	parseMode string

	qa     Asker
	store  domain.CorpusSource
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // user IDs as strings
	ParseMode string
	QA        Asker
	Store     domain.CorpusSource
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		parseMode: cfg.ParseMode,
		qa:        cfg.QA,
		store:     cfg.Store,
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram bot stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", update.Message.From.UserName,
		)
		t.sendMessage(chatID, "⛔ Unauthorized. Your user ID is not in the allow list.")
		return
	}

	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	if update.Message.IsCommand() {
		t.handleCommand(ctx, chatID, update.Message)
		return
	}

	t.logger.Info("telegram question received",
		"user_id", userID,
		"chat_id", chatID,
		"text_len", len(text),
	)

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = t.bot.Send(typing)

	askCtx, cancel := context.WithTimeout(ctx, telegramAnswerTimeout)
	defer cancel()

	ans, err := t.qa.Ask(askCtx, text)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrQuestionTooLong):
			t.sendMessage(chatID, "That question is too long for me. Could you shorten it?")
		case errors.Is(err, domain.ErrQuestionEmpty):
			// unreachable: text is non-empty here
		default:
			t.logger.Error("telegram answer failed", "error", err)
			t.sendMessage(chatID, "Something went wrong while answering. Please try again.")
		}
		return
	}

	t.sendMessage(chatID, ans.Text)
}

func (t *Telegram) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		t.sendMessage(chatID, "👋 Hi! I answer questions about the member messages.\n\nJust send a question like:\n\"What did Layla say about her trip?\"\n\nCommands:\n/status — Corpus status\n/refresh — Reload the messages\n/help — Show this message")
	case "help":
		t.sendMessage(chatID, "📖 Ask me anything about the member messages, for example:\n• \"When is Victor's budget review?\"\n• \"Who talked about London?\"\n\nCommands:\n/status — Corpus status\n/refresh — Reload the messages")
	case "status":
		c, ok := t.store.Snapshot()
		if !ok {
			t.sendMessage(chatID, "No messages loaded yet. Ask a question or use /refresh to load them.")
			return
		}
		stats := c.Stats()
		status := fmt.Sprintf("🟢 %d messages from %d users\nFetched: %s",
			stats.TotalMessages, stats.UniqueUsers, stats.FetchedAt.Format(time.RFC3339))
		if top := c.TopUsers(3); len(top) > 0 {
			parts := make([]string, len(top))
			for i, u := range top {
				parts[i] = fmt.Sprintf("%s (%d)", u.Name, u.Count)
			}
			status += "\nMost active: " + strings.Join(parts, ", ")
		}
		if stats.Degraded {
			status += fmt.Sprintf("\n⚠️ Incomplete: %d pages skipped", stats.SkippedPages)
		}
		t.sendMessage(chatID, status)
	case "refresh":
		t.store.Invalidate()
		refreshCtx, cancel := context.WithTimeout(ctx, telegramAnswerTimeout)
		defer cancel()
		c, err := t.store.Get(refreshCtx)
		if err != nil {
			t.sendMessage(chatID, "Refresh failed: the message archive is unreachable right now.")
			return
		}
		t.sendMessage(chatID, fmt.Sprintf("🔄 Reloaded %d messages.", c.Len()))
	default:
		t.sendMessage(chatID, "Unknown command. Type /help for available commands.")
	}
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (t *Telegram) sendMessage(chatID int64, text string) {
	// Telegram caps messages at 4096 chars; chunk at newlines where possible.
	const maxLen = telegramMaxMsgLen
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxLen {
			cutAt := strings.LastIndex(chunk[:maxLen], "\n")
			if cutAt < maxLen/2 {
				cutAt = maxLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}

		t.sendChunk(chatID, chunk)
	}
}

// sendChunk sends one chunk: Markdown first, plain text on parse errors,
// backoff on rate limits.
func (t *Telegram) sendChunk(chatID int64, text string) {
	const maxRetries = telegramMaxSendRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}

		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}

		errStr := err.Error()

		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			time.Sleep(retryAfter)
			continue
		}

		if attempt == 0 && msg.ParseMode != "" &&
			strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("telegram markdown parse error, retrying as plain text", "error", err)
			plainMsg := tgbotapi.NewMessage(chatID, text)
			if _, err2 := t.bot.Send(plainMsg); err2 == nil {
				return
			}
		}

		if attempt < maxRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}

		t.logger.Error("telegram send failed after retries", "error", err, "attempts", maxRetries+1)
	}
}
