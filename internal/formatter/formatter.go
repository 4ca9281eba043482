// Package formatter converts Markdown-flavoured model output into the HTML
// subset accepted by Telegram and splits the result into sendable chunks.
//
// The pipeline is strictly sequential and holds no state between calls:
// code spans are swapped for opaque placeholders, tables are flattened,
// the remaining text is HTML-escaped, style rules run in a fixed order and
// finally the placeholders are restored and the markup is split.
package formatter

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"
)

const (
	// MaxMessageLength is Telegram's limit for a single text message.
	MaxMessageLength = 4096

	// EmptyPlaceholder is sent in place of an empty response.
	EmptyPlaceholder = "(empty response)"
)

// MinMessageLength is the smallest usable limit: the empty placeholder
// must fit in a single chunk.
var MinMessageLength = utf8.RuneCountInString(EmptyPlaceholder)

// ErrInvalidLimit is returned when the chunk length limit is too small.
var ErrInvalidLimit = errors.New("message length limit is below the minimum")

// Formatter is a validated, reusable pipeline bound to one length limit.
// It is safe for concurrent use.
type Formatter struct {
	limit int
}

// New returns a Formatter that emits chunks of at most limit characters.
func New(limit int) (*Formatter, error) {
	if limit < MinMessageLength {
		return nil, fmt.Errorf("new formatter (limit %d, min %d): %w", limit, MinMessageLength, ErrInvalidLimit)
	}
	return &Formatter{limit: limit}, nil
}

// Limit returns the configured maximum chunk length.
func (f *Formatter) Limit() int {
	return f.limit
}

// Format converts text to Telegram HTML and splits it into chunks.
// The result is never empty.
func (f *Formatter) Format(text string) []string {
	if text == "" {
		return []string{EmptyPlaceholder}
	}

	markup := ToHTML(text)
	if markup == "" {
		return []string{EmptyPlaceholder}
	}

	// The limit was validated in New, so split cannot fail here.
	chunks, _ := Split(markup, f.limit)
	return chunks
}

// Format is a one-shot helper around New and (*Formatter).Format.
func Format(text string, limit int) ([]string, error) {
	f, err := New(limit)
	if err != nil {
		return nil, err
	}
	return f.Format(text), nil
}

// ToHTML converts Markdown text into Telegram HTML without splitting it.
func ToHTML(text string) string {
	// NUL delimits placeholder tokens and never appears in real messages.
	text = strings.ReplaceAll(text, "\x00", "")

	store := newPlaceholders()
	result := store.protect(text)
	result = convertTables(result)
	result = escapeHTML(result)
	result = applyRules(result)
	result = store.restore(result)

	return strings.TrimSpace(result)
}

// escapeHTML escapes the characters that are significant in Telegram HTML.
func escapeHTML(s string) string {
	return html.EscapeString(s)
}
