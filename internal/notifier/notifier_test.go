package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf16"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raythurman2386/claudegram/internal/formatter"
)

type fakeTelegram struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests int
	attempts int
	// rejectHTML makes every HTML message fail like a Bot API parse error.
	rejectHTML bool
	// sendErr, when set, is returned for every message.
	sendErr error
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	f.attempts++
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	if f.rejectHTML && msg.ParseMode == tgbotapi.ModeHTML {
		return tgbotapi.Message{}, &tgbotapi.Error{
			Code:    400,
			Message: "Bad Request: can't parse entities: Unsupported start tag \"foo\" at byte offset 0",
		}
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeTelegram) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	ch := make(chan tgbotapi.Update)
	close(ch)
	return ch
}

func (f *fakeTelegram) StopReceivingUpdates() {}

func newTestTelegram(t *testing.T, api *fakeTelegram, limit int) *TelegramNotifier {
	t.Helper()
	f, err := formatter.New(limit)
	require.NoError(t, err)
	return newTelegramNotifier(api, "claude_bot", 99, f)
}

func TestTelegramReply_SendsHTMLChunks(t *testing.T) {
	t.Parallel()
	api := &fakeTelegram{}
	n := newTestTelegram(t, api, 40)

	answer := "**Hi** there\n\n" + strings.Repeat("word ", 15)
	d, err := n.Reply(context.Background(), 5, 77, answer)
	require.NoError(t, err)

	require.Greater(t, len(api.sent), 1)
	assert.Equal(t, Delivery{Chunks: len(api.sent)}, d)
	assert.Equal(t, "<b>Hi</b> there", api.sent[0].Text)
	for i, msg := range api.sent {
		assert.Equal(t, int64(5), msg.ChatID)
		assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
		assert.LessOrEqual(t, len([]rune(msg.Text)), 40)
		if i == 0 {
			assert.Equal(t, 77, msg.ReplyToMessageID)
		} else {
			assert.Zero(t, msg.ReplyToMessageID)
		}
	}
}

func TestTelegramReply_FallsBackToPlainText(t *testing.T) {
	t.Parallel()
	api := &fakeTelegram{rejectHTML: true}
	n := newTestTelegram(t, api, formatter.MaxMessageLength)

	d, err := n.Reply(context.Background(), 5, 1, "**bold** & `code`")
	require.NoError(t, err)

	assert.Equal(t, Delivery{Chunks: 1, Fallbacks: 1}, d)
	require.Len(t, api.sent, 1)
	assert.Empty(t, api.sent[0].ParseMode)
	assert.Equal(t, "bold & code", api.sent[0].Text)
}

func TestTelegramReply_SendFailure(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		sendErr error
	}{
		{"Network error", errors.New("network down")},
		{"Rate limited", &tgbotapi.Error{
			Code:               429,
			Message:            "Too Many Requests: retry after 5",
			ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 5},
		}},
		{"Chat not found", &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}},
		{"Forbidden", &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := &fakeTelegram{sendErr: tt.sendErr}
			n := newTestTelegram(t, api, formatter.MaxMessageLength)

			d, err := n.Reply(context.Background(), 5, 1, "**hello**\n\n"+strings.Repeat("x", 5000))
			assert.ErrorContains(t, err, "failed to send telegram message")
			assert.ErrorIs(t, err, tt.sendErr)
			assert.Zero(t, d.Fallbacks)
			assert.Equal(t, 1, api.attempts, "no plain-text resend after a non-markup error")
			assert.Empty(t, api.sent)
		})
	}
}

func TestIsParseRejection(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"Parse error", &tgbotapi.Error{Code: 400, Message: "Bad Request: can't parse entities: Unclosed tag"}, true},
		{"Wrapped parse error", fmt.Errorf("send: %w", &tgbotapi.Error{Code: 400, Message: "Bad Request: Can't parse entities"}), true},
		{"Rate limit", &tgbotapi.Error{Code: 429, Message: "Too Many Requests: retry after 5"}, false},
		{"Other bad request", &tgbotapi.Error{Code: 400, Message: "Bad Request: message is too long"}, false},
		{"Plain error mentioning parse", errors.New("can't parse entities"), false},
		{"Nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, isParseRejection(tt.err))
		})
	}
}

func TestTelegramSend_EmptyAnswer(t *testing.T) {
	t.Parallel()
	api := &fakeTelegram{}
	n := newTestTelegram(t, api, formatter.MaxMessageLength)

	require.NoError(t, n.Send(context.Background(), ""))
	require.Len(t, api.sent, 1)
	assert.Equal(t, int64(99), api.sent[0].ChatID)
	assert.Equal(t, formatter.EmptyPlaceholder, api.sent[0].Text)
}

func TestTelegramResponder(t *testing.T) {
	t.Parallel()
	api := &fakeTelegram{}
	n := newTestTelegram(t, api, formatter.MaxMessageLength)
	r := &TelegramResponder{notifier: n, chatID: 3, messageID: 8}
	ctx := context.Background()

	require.NoError(t, r.Notice(ctx, "plain <text>"))
	_, err := r.Reply(ctx, "<text>")
	require.NoError(t, err)

	stop := r.StartTyping(ctx)
	stop()

	require.Len(t, api.sent, 2)
	assert.Equal(t, "plain <text>", api.sent[0].Text)
	assert.Empty(t, api.sent[0].ParseMode)
	assert.Equal(t, "&lt;text&gt;", api.sent[1].Text)
	assert.Equal(t, 8, api.sent[1].ReplyToMessageID)
}

func TestIsMentioned(t *testing.T) {
	t.Parallel()
	mentionAt := func(text, mention string) tgbotapi.MessageEntity {
		prefix := text[:strings.Index(text, mention)]
		return tgbotapi.MessageEntity{
			Type:   "mention",
			Offset: len(utf16.Encode([]rune(prefix))),
			Length: len(utf16.Encode([]rune(mention))),
		}
	}

	tests := []struct {
		name     string
		text     string
		entities func(text string) []tgbotapi.MessageEntity
		expected bool
	}{
		{
			name: "Direct mention",
			text: "@claude_bot what is Go?",
			entities: func(text string) []tgbotapi.MessageEntity {
				return []tgbotapi.MessageEntity{mentionAt(text, "@claude_bot")}
			},
			expected: true,
		},
		{
			name: "Case insensitive after emoji",
			text: "🚀🚀 hey @Claude_Bot help",
			entities: func(text string) []tgbotapi.MessageEntity {
				return []tgbotapi.MessageEntity{mentionAt(text, "@Claude_Bot")}
			},
			expected: true,
		},
		{
			name: "Other user",
			text: "@someone else",
			entities: func(text string) []tgbotapi.MessageEntity {
				return []tgbotapi.MessageEntity{mentionAt(text, "@someone")}
			},
			expected: false,
		},
		{
			name: "Not a mention entity",
			text: "@claude_bot",
			entities: func(text string) []tgbotapi.MessageEntity {
				return []tgbotapi.MessageEntity{{Type: "bold", Offset: 0, Length: 11}}
			},
			expected: false,
		},
		{
			name: "Out of range entity",
			text: "@claude_bot",
			entities: func(text string) []tgbotapi.MessageEntity {
				return []tgbotapi.MessageEntity{{Type: "mention", Offset: 5, Length: 40}}
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isMentioned(tt.text, tt.entities(tt.text), "claude_bot"))
		})
	}
}

func TestPlainText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		chunk    string
		expected string
	}{
		{"Strips tags", "<b>Hi</b> <i>there</i>", "Hi there"},
		{"Decodes entities", "a &lt; b &amp;&amp; c", "a < b && c"},
		{"Unbalanced markup", "<b>open <pre>code", "open code"},
		{"Markup only", "<b></b>", "<b></b>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, plainText(tt.chunk))
		})
	}
}

type fakeDiscord struct {
	sent   []string
	typing int
	err    error
}

func (f *fakeDiscord) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeDiscord) ChannelTyping(channelID string, options ...discordgo.RequestOption) error {
	f.typing++
	return nil
}

func TestDiscordSend(t *testing.T) {
	t.Parallel()

	t.Run("splits long messages", func(t *testing.T) {
		api := &fakeDiscord{}
		d := &DiscordNotifier{session: api, channelID: "c1"}

		require.NoError(t, d.Send(context.Background(), strings.Repeat("line of text\n", 400)))

		require.Greater(t, len(api.sent), 1)
		for _, chunk := range api.sent {
			assert.LessOrEqual(t, len([]rune(chunk)), discordLimit)
		}
	})

	t.Run("keeps markdown", func(t *testing.T) {
		api := &fakeDiscord{}
		d := &DiscordNotifier{session: api, channelID: "c1"}

		require.NoError(t, d.Send(context.Background(), "**bold**"))
		assert.Equal(t, []string{"**bold**"}, api.sent)
	})

	t.Run("send error", func(t *testing.T) {
		d := &DiscordNotifier{session: &fakeDiscord{err: errors.New("forbidden")}, channelID: "c1"}
		assert.ErrorContains(t, d.Send(context.Background(), "hi"), "failed to send discord message")
	})

	t.Run("typing", func(t *testing.T) {
		api := &fakeDiscord{}
		d := &DiscordNotifier{session: api, channelID: "c1"}
		d.StartTyping(context.Background())()
		assert.Equal(t, 1, api.typing)
		assert.Equal(t, "Discord", d.Name())
	})
}
