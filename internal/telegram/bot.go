package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"little-lemon/internal/app"
	"little-lemon/internal/config"
	"little-lemon/internal/logger"
	"little-lemon/internal/menu"
	"little-lemon/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const toggleAction = "toggle"

// maxCallbackData is Telegram's limit on inline button payloads, in bytes.
const maxCallbackData = 64

// maxListedItems keeps replies under Telegram's message size limit.
const maxListedItems = 30

// messenger is the part of the Telegram API the bot talks to.
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot serves the menu to Telegram chats. Each chat keeps its own filter.
type Bot struct {
	api messenger
	app *app.App
	cfg *config.Config
	log *slog.Logger

	mu    sync.Mutex
	chats map[int64]*menu.FilterState
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, a *app.App, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	log = logger.WithComponent(log, "telegram")
	log.Info("Authorized on account", "username", api.Self.UserName)

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	log.Info("Webhook set", "description", resp.Description)

	return newBot(api, cfg, a, log), nil
}

func newBot(api messenger, cfg *config.Config, a *app.App, log *slog.Logger) *Bot {
	return &Bot{
		api:   api,
		app:   a,
		cfg:   cfg,
		log:   log,
		chats: make(map[int64]*menu.FilterState),
	}
}

// RegisterHandlers registers the webhook handler on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook", b.handleWebhook)
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		b.log.Warn("Error parsing update", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	switch {
	case update.CallbackQuery != nil:
		if !b.allowed(update.CallbackQuery.From) {
			return
		}
		go b.handleCallbackQuery(update.CallbackQuery)
	case update.Message != nil:
		if !b.allowed(update.Message.From) {
			return
		}
		go b.processMessage(update.Message)
	}
}

// allowed reports whether the user may talk to the bot. An empty allow-list
// admits everyone.
func (b *Bot) allowed(from *tgbotapi.User) bool {
	if len(b.cfg.TelegramAllowedUserIDs) == 0 {
		return true
	}
	if from == nil {
		return false
	}
	if slices.Contains(b.cfg.TelegramAllowedUserIDs, from.ID) {
		return true
	}
	b.log.Warn("Unauthorized access attempt", "user_id", from.ID, "username", from.UserName)
	return false
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch command(text) {
	case "start":
		b.handleStart(ctx, chatID)
	case "menu":
		b.sendItems(ctx, chatID)
	case "clear":
		b.withState(ctx, chatID, func(f *menu.FilterState) { f.SetQuery("") })
		b.sendItems(ctx, chatID)
	case "status":
		b.handleStatus(ctx, chatID)
	case "":
		b.withState(ctx, chatID, func(f *menu.FilterState) { f.SetQuery(text) })
		b.sendItems(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Try /start, /menu or /clear, or just type a dish.")
	}
}

// command returns the bot command in text without the leading slash or a
// @botname suffix, or "" when text is not a command.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0][1:]
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	categories, err := b.app.Syncer().EnsureMenuReady(ctx)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	b.mu.Lock()
	state, ok := b.chats[chatID]
	if !ok {
		state = menu.NewFilterState(categories)
		b.chats[chatID] = state
	} else {
		state.Reset(categories)
	}
	keyboard := categoryKeyboard(state)
	b.mu.Unlock()

	msg := tgbotapi.NewMessage(chatID, "🍋 *Welcome to Little Lemon!*\nTap a category to show or hide it, then type a dish to search.")
	msg.ParseMode = tgbotapi.ModeMarkdown
	if len(categories) > 0 {
		msg.ReplyMarkup = keyboard
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("Failed to send welcome", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		return
	}
	category, index, ok := parseToggleData(query.Data)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	chatID := query.Message.Chat.ID

	var (
		selected, known bool
		keyboard        tgbotapi.InlineKeyboardMarkup
	)
	b.withState(ctx, chatID, func(f *menu.FilterState) {
		if index >= 0 {
			if categories := f.Categories(); index < len(categories) {
				category = categories[index]
			}
		}
		selected, known = f.Toggle(category)
		keyboard = categoryKeyboard(f)
	})

	note := fmt.Sprintf("%s hidden", category)
	switch {
	case !known:
		note = "That category is no longer on the menu."
	case selected:
		note = fmt.Sprintf("%s shown", category)
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, note)); err != nil {
		b.log.Warn("Failed to answer callback", "error", err)
	}
	if !known {
		return
	}

	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, query.Message.MessageID, keyboard)
	if _, err := b.api.Send(edit); err != nil {
		b.log.Warn("Failed to update keyboard", "chat_id", chatID, "error", err)
	}
}

// withState runs fn on the chat's filter, creating it from the cached menu
// the first time the chat is seen.
func (b *Bot) withState(ctx context.Context, chatID int64, fn func(*menu.FilterState)) {
	b.mu.Lock()
	state, ok := b.chats[chatID]
	b.mu.Unlock()

	if !ok {
		categories, err := b.app.Syncer().EnsureMenuReady(ctx)
		if err != nil {
			// Not remembered, so the chat picks up the categories once a
			// later sync succeeds.
			b.log.Warn("Menu not ready for new chat", "chat_id", chatID, "error", err)
			b.mu.Lock()
			defer b.mu.Unlock()
			fn(&menu.FilterState{})
			return
		}
		state = menu.NewFilterState(categories)

		b.mu.Lock()
		if existing, ok := b.chats[chatID]; ok {
			state = existing
		} else {
			b.chats[chatID] = state
		}
		b.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	fn(state)
}

func (b *Bot) sendItems(ctx context.Context, chatID int64) {
	if _, err := b.app.Syncer().EnsureMenuReady(ctx); err != nil {
		b.replyError(chatID, err)
		return
	}

	var (
		pred  menu.Predicate
		query string
	)
	b.withState(ctx, chatID, func(f *menu.FilterState) {
		pred = f.Predicate()
		query = f.Query()
	})

	items, err := b.app.Syncer().Store().Query(ctx, pred)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	msg := tgbotapi.NewMessage(chatID, formatItemsMarkdown(items, query, b.cfg.MenuImageBaseURL))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("Failed to send menu", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	runs, err := b.app.RecentSyncs(ctx, 5)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	msg := tgbotapi.NewMessage(chatID, formatStatusMarkdown(runs, metrics.GetSysHealth(b.cfg.DatabasePath)))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("Failed to send status", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Error("Failed to send reply", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) replyError(chatID int64, err error) {
	b.log.Error("Menu request failed", "chat_id", chatID, "error", err)
	safeErr := strings.ReplaceAll(err.Error(), "`", "'")
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("❌ *Could not load the menu:*\n```\n%s\n```", safeErr))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("Failed to send error reply", "chat_id", chatID, "error", err)
	}
}

// categoryKeyboard renders one toggle button per category, in menu order.
func categoryKeyboard(f *menu.FilterState) tgbotapi.InlineKeyboardMarkup {
	states := f.States()
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i, c := range f.Categories() {
		mark := "⬜"
		if states[c] {
			mark = "✅"
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(mark+" "+c, toggleData(i, c)))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// toggleData encodes a toggle button payload. Categories whose name does not
// fit in the payload are referenced by their position in the menu.
func toggleData(index int, category string) string {
	data := toggleAction + "|" + category
	if len(data) <= maxCallbackData {
		return data
	}
	return toggleAction + "#" + strconv.Itoa(index)
}

// parseToggleData decodes a toggle payload into a category name, or a
// position (index >= 0) when the name did not fit.
func parseToggleData(data string) (category string, index int, ok bool) {
	if action, name, found := strings.Cut(data, "|"); found && action == toggleAction {
		return name, -1, true
	}
	if action, pos, found := strings.Cut(data, "#"); found && action == toggleAction {
		i, err := strconv.Atoi(pos)
		if err != nil || i < 0 {
			return "", 0, false
		}
		return "", i, true
	}
	return "", 0, false
}

func formatItemsMarkdown(items []menu.Item, query, imageBaseURL string) string {
	var sb strings.Builder
	sb.WriteString("🍽 *Menu*")
	if query != "" {
		sb.WriteString(fmt.Sprintf(" matching _%s_", escapeMarkdown(query)))
	}
	sb.WriteString("\n")

	if len(items) == 0 {
		sb.WriteString("\n_No dishes match._")
		return sb.String()
	}

	listed := 0
	for _, section := range menu.Sections(items) {
		if listed >= maxListedItems {
			break
		}
		sb.WriteString(fmt.Sprintf("\n*%s*\n", escapeMarkdown(strings.ToUpper(section.Category))))
		for _, it := range section.Items {
			if listed >= maxListedItems {
				break
			}
			listed++
			sb.WriteString(fmt.Sprintf("• [%s](%s) $%s\n", escapeMarkdown(it.Name), it.ImageURL(imageBaseURL), it.Price))
			if d := it.ShortDescription(); d != "" {
				sb.WriteString(fmt.Sprintf("  _%s_\n", escapeMarkdown(d)))
			}
		}
	}
	if rest := len(items) - listed; rest > 0 {
		sb.WriteString(fmt.Sprintf("\n…and %d more. Narrow the search to see them.", rest))
	}
	return sb.String()
}

func formatStatusMarkdown(runs []metrics.SyncRun, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Menu Status*\n\n")

	sb.WriteString("🔄 *Recent Syncs*\n")
	if len(runs) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, r := range runs {
		outcome := "cached"
		switch {
		case r.Error != "":
			outcome = "failed"
		case r.Fetched:
			outcome = "fetched"
		}
		sb.WriteString(fmt.Sprintf("• *%s*: %s, %d items (%dms)\n", r.StartedAt.Format("2006-01-02 15:04"), outcome, r.ItemCount, r.LatencyMS))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Database: %s\n", health.DBSize))
	return sb.String()
}

// escapeMarkdown escapes the characters legacy Markdown mode treats as markup.
func escapeMarkdown(s string) string {
	return strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[").Replace(s)
}
