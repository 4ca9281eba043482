package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/raythurman2386/claudegram/internal/formatter"
)

// telegramAPI is the subset of *tgbotapi.BotAPI used here.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Incoming is a Telegram message as seen by the handler.
type Incoming struct {
	ChatID      int64
	MessageID   int
	UserID      int64
	UserName    string
	Text        string
	BotUsername string
	Private     bool
	Mentioned   bool
}

type TelegramNotifier struct {
	bot       telegramAPI
	username  string
	chatID    int64
	formatter *formatter.Formatter
}

// NewTelegramNotifier connects to the Bot API. chatID is the destination for
// Send, usually the first administrator.
func NewTelegramNotifier(token string, chatID int64, f *formatter.Formatter) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	return newTelegramNotifier(bot, bot.Self.UserName, chatID, f), nil
}

func newTelegramNotifier(bot telegramAPI, username string, chatID int64, f *formatter.Formatter) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, username: username, chatID: chatID, formatter: f}
}

// Send formats message and delivers it to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, message string) error {
	_, err := t.deliver(ctx, t.chatID, 0, message)
	return err
}

func (t *TelegramNotifier) Name() string {
	return "Telegram"
}

// Username returns the bot's @username without the leading @.
func (t *TelegramNotifier) Username() string {
	return t.username
}

// StartTyping triggers the typing indicator in the configured chat.
func (t *TelegramNotifier) StartTyping(ctx context.Context) func() {
	return t.typing(ctx, t.chatID)
}

// Reply formats answer and sends it into chatID, the first chunk as a
// reply to replyTo.
func (t *TelegramNotifier) Reply(ctx context.Context, chatID int64, replyTo int, answer string) (Delivery, error) {
	return t.deliver(ctx, chatID, replyTo, answer)
}

// Notice sends a short plain-text message.
func (t *TelegramNotifier) Notice(ctx context.Context, chatID int64, replyTo int, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notice: %w", err)
	}
	return nil
}

// deliver sends every chunk as HTML. A chunk Telegram refuses to parse is
// resent as plain text so the answer still arrives in full.
func (t *TelegramNotifier) deliver(ctx context.Context, chatID int64, replyTo int, answer string) (Delivery, error) {
	chunks := t.formatter.Format(answer)
	d := Delivery{Chunks: len(chunks)}

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return d, fmt.Errorf("telegram delivery interrupted: %w", err)
		}

		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		if i == 0 {
			msg.ReplyToMessageID = replyTo
		}

		if _, err := t.bot.Send(msg); err != nil {
			if !isParseRejection(err) {
				return d, fmt.Errorf("failed to send telegram message: %w", err)
			}
			slog.Warn("HTML rejected, sending chunk as plain text", "chatID", chatID, "chunk", i, "error", err)
			d.Fallbacks++

			msg.Text = plainText(chunk)
			msg.ParseMode = ""
			if _, err := t.bot.Send(msg); err != nil {
				return d, fmt.Errorf("failed to send telegram message: %w", err)
			}
		}
	}

	return d, nil
}

// isParseRejection reports whether Telegram refused a message because of its
// markup. Rate limits, network failures and other API errors are not.
func isParseRejection(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == 400 && strings.Contains(strings.ToLower(apiErr.Message), "can't parse entities")
}

func (t *TelegramNotifier) typing(ctx context.Context, chatID int64) func() {
	childCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		// Send initial typing indicator
		action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
		_, _ = t.bot.Request(action)

		for {
			select {
			case <-ticker.C:
				action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
				_, _ = t.bot.Request(action)
			case <-childCtx.Done():
				return
			}
		}
	}()
	return cancel
}

// StartListener begins long polling and hands every text message to handler.
func (t *TelegramNotifier) StartListener(ctx context.Context, handler func(ctx context.Context, msg Incoming, r *TelegramResponder)) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	defer t.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}

			msg := t.incoming(update.Message)
			go handler(ctx, msg, &TelegramResponder{notifier: t, chatID: msg.ChatID, messageID: msg.MessageID})
		}
	}
}

func (t *TelegramNotifier) incoming(m *tgbotapi.Message) Incoming {
	in := Incoming{
		ChatID:      m.Chat.ID,
		MessageID:   m.MessageID,
		Text:        m.Text,
		BotUsername: t.username,
		Private:     m.Chat.IsPrivate(),
		Mentioned:   isMentioned(m.Text, m.Entities, t.username),
	}
	if m.From != nil {
		in.UserID = m.From.ID
		in.UserName = strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
	}
	return in
}

// isMentioned reports whether a mention entity names the bot. Entity
// offsets are counted in UTF-16 code units.
func isMentioned(text string, entities []tgbotapi.MessageEntity, username string) bool {
	if username == "" {
		return false
	}
	units := utf16.Encode([]rune(text))
	want := "@" + strings.ToLower(username)

	for _, e := range entities {
		if e.Type != "mention" || e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(units) {
			continue
		}
		mention := string(utf16.Decode(units[e.Offset : e.Offset+e.Length]))
		if strings.ToLower(mention) == want {
			return true
		}
	}
	return false
}

// TelegramResponder answers one incoming message.
type TelegramResponder struct {
	notifier  *TelegramNotifier
	chatID    int64
	messageID int
}

// Reply sends a formatted answer threaded to the incoming message.
func (r *TelegramResponder) Reply(ctx context.Context, answer string) (Delivery, error) {
	return r.notifier.Reply(ctx, r.chatID, r.messageID, answer)
}

// Notice sends a short plain-text reply.
func (r *TelegramResponder) Notice(ctx context.Context, text string) error {
	return r.notifier.Notice(ctx, r.chatID, r.messageID, text)
}

// StartTyping shows the typing indicator until the returned func is called.
func (r *TelegramResponder) StartTyping(ctx context.Context) func() {
	return r.notifier.typing(ctx, r.chatID)
}
