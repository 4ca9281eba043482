package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/raythurman2386/claudegram/internal/claude"
	"github.com/raythurman2386/claudegram/internal/config"
	"github.com/raythurman2386/claudegram/internal/db"
	"github.com/raythurman2386/claudegram/internal/notifier"
	"github.com/raythurman2386/claudegram/internal/stats"
)

const (
	helpMessage = "Mention me with a question and I'll ask Claude.\n\n" +
		"- `/reset` starts a new conversation\n" +
		"- `/status` shows bot statistics"

	// questionPreview bounds how much of a question is written to logs.
	questionPreview = 100

	// statusRecent is how many stored exchanges /status lists.
	statusRecent  = 3
	statusPreview = 40
)

// Asker is the text generator behind the bot.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
	Reset(ctx context.Context)
}

// Responder delivers output back to where a message came from.
type Responder interface {
	Reply(ctx context.Context, answer string) (notifier.Delivery, error)
	Notice(ctx context.Context, text string) error
	StartTyping(ctx context.Context) func()
}

// Handler owns admin filtering, command routing and question answering.
type Handler struct {
	claude Asker
	db     *db.DB
	cfg    *config.Config
	stats  *stats.Stats

	// mentions caches the compiled mention pattern per bot username.
	mentions sync.Map
}

// New creates a Handler with all required dependencies.
func New(asker Asker, database *db.DB, cfg *config.Config, s *stats.Stats) *Handler {
	return &Handler{
		claude: asker,
		db:     database,
		cfg:    cfg,
		stats:  s,
	}
}

// HandleMessage is the entry point for every incoming Telegram message.
// Only administrators are served; in groups the bot must be mentioned.
func (h *Handler) HandleMessage(ctx context.Context, msg notifier.Incoming, r Responder) {
	if !h.cfg.IsAdmin(msg.UserID) {
		slog.Debug("Ignoring message from non-admin", "userID", msg.UserID, "chatID", msg.ChatID)
		return
	}
	if !msg.Private && !msg.Mentioned {
		return
	}

	question := h.extractQuestion(msg.Text, msg.BotUsername)
	if question == "" {
		h.notice(ctx, r, "Write a question after mentioning the bot.")
		return
	}

	lower := strings.ToLower(question)
	switch {
	case lower == "/reset" || strings.HasPrefix(lower, "/reset "):
		h.claude.Reset(ctx)
		h.notice(ctx, r, "🔄 Conversation cleared! Let's start fresh.")

	case lower == "/status" || strings.HasPrefix(lower, "/status "):
		h.reply(ctx, r, h.statusText(ctx))

	case lower == "/help" || lower == "/start":
		h.reply(ctx, r, helpMessage)

	default:
		h.handleQuestion(ctx, msg, question, r)
	}
}

func (h *Handler) handleQuestion(ctx context.Context, msg notifier.Incoming, question string, r Responder) {
	requestID := uuid.NewString()
	slog.Info("Question received",
		"requestID", requestID,
		"user", msg.UserName,
		"userID", msg.UserID,
		"question", preview(question))
	h.stats.RecordQuestion()

	stopTyping := r.StartTyping(ctx)
	start := time.Now()
	answer, err := h.claude.Ask(ctx, question)
	elapsed := time.Since(start)
	stopTyping()

	if err != nil {
		slog.Error("Claude failed", "requestID", requestID, "duration", elapsed, "error", err)
		h.stats.RecordFailure()
		answer = failureText(err)
	} else {
		h.stats.RecordClaudeTime(elapsed)
	}

	d, err := r.Reply(ctx, answer)
	if err != nil {
		slog.Error("Failed to deliver answer", "requestID", requestID, "sent", d.Chunks, "error", err)
	}
	h.stats.RecordDelivery(d.Chunks, d.Fallbacks)

	if h.db == nil {
		return
	}
	err = h.db.RecordExchange(ctx, db.Exchange{
		RequestID: requestID,
		ChatID:    msg.ChatID,
		Question:  question,
		AnswerLen: utf8.RuneCountInString(answer),
		Chunks:    d.Chunks,
		Fallbacks: d.Fallbacks,
	})
	if err != nil {
		slog.Error("Failed to record exchange", "requestID", requestID, "error", err)
	}
}

// statusText is the runtime summary plus the latest stored exchanges.
func (h *Handler) statusText(ctx context.Context) string {
	summary := h.stats.Summary()
	if h.db == nil {
		return summary
	}
	recent, err := h.db.RecentExchanges(ctx, statusRecent)
	if err != nil {
		slog.Error("Failed to load recent exchanges", "error", err)
		return summary
	}
	if len(recent) == 0 {
		return summary
	}

	var sb strings.Builder
	sb.WriteString(summary)
	sb.WriteString("\n\n## Recent Questions\n")
	for _, e := range recent {
		fmt.Fprintf(&sb, "- %s: %s (%d chunks)\n",
			e.CreatedAt.Local().Format("Jan 2 15:04"), truncate(e.Question, statusPreview), e.Chunks)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (h *Handler) reply(ctx context.Context, r Responder, text string) {
	d, err := r.Reply(ctx, text)
	if err != nil {
		slog.Error("Failed to send reply", "error", err)
	}
	h.stats.RecordDelivery(d.Chunks, d.Fallbacks)
}

func (h *Handler) notice(ctx context.Context, r Responder, text string) {
	if err := r.Notice(ctx, text); err != nil {
		slog.Error("Failed to send notice", "error", err)
	}
}

// extractQuestion strips the bot mention from text.
func (h *Handler) extractQuestion(text, botUsername string) string {
	if botUsername != "" {
		text = h.mentionPattern(botUsername).ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

func (h *Handler) mentionPattern(botUsername string) *regexp.Regexp {
	if re, ok := h.mentions.Load(botUsername); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(botUsername) + `\b`)
	actual, _ := h.mentions.LoadOrStore(botUsername, re)
	return actual.(*regexp.Regexp)
}

// failureText turns a Claude error into the answer shown to the user.
func failureText(err error) string {
	var exitErr *claude.ExitError
	switch {
	case errors.Is(err, claude.ErrTimeout):
		return "⚠️ Claude did not answer in time. Please try again later."
	case errors.As(err, &exitErr):
		return fmt.Sprintf("⚠️ Claude CLI error:\n%s", exitErr.Output)
	default:
		return fmt.Sprintf("⚠️ Error: %v", err)
	}
}

func preview(s string) string {
	return truncate(s, questionPreview)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
