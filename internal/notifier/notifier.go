package notifier

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Notifier defines the interface for announcing events to a fixed destination.
type Notifier interface {
	Send(ctx context.Context, message string) error
	Name() string
	StartTyping(ctx context.Context) func()
}

// Delivery reports how a formatted answer was sent.
type Delivery struct {
	Chunks    int
	Fallbacks int
}

// plainText strips markup from an HTML chunk for the plain-text fallback.
func plainText(chunk string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(chunk))
	if err != nil {
		slog.Warn("Failed to parse chunk for plain fallback", "error", err)
		return chunk
	}
	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return chunk
	}
	return text
}
