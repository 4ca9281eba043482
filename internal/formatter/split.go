package formatter

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// splitSeparators are tried in priority order when looking for a cut point.
var splitSeparators = []string{"</pre>", "\n\n", "\n", " "}

// Split breaks text into chunks of at most limit characters, preferring
// to cut after a preformatted block, then at a paragraph, line or word
// boundary. A cut point in the first quarter of the window is ignored so
// no chunk ends up nearly empty. Without a usable boundary the text is
// cut hard at limit.
func Split(text string, limit int) ([]string, error) {
	if limit < MinMessageLength {
		return nil, fmt.Errorf("split (limit %d, min %d): %w", limit, MinMessageLength, ErrInvalidLimit)
	}

	var chunks []string
	remaining := text
	for utf8.RuneCountInString(remaining) > limit {
		window := remaining[:runeOffset(remaining, limit)]
		cut := splitPosition(window, limit)

		if chunk := strings.TrimRightFunc(remaining[:cut], unicode.IsSpace); chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimLeftFunc(remaining[cut:], unicode.IsSpace)
	}

	if strings.TrimSpace(remaining) != "" {
		chunks = append(chunks, remaining)
	}
	if len(chunks) == 0 {
		return []string{EmptyPlaceholder}, nil
	}
	return chunks, nil
}

// splitPosition returns the byte offset in window at which to cut.
func splitPosition(window string, limit int) int {
	for _, sep := range splitSeparators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		if utf8.RuneCountInString(window[:idx]) > limit/4 {
			return idx + len(sep)
		}
	}
	return len(window)
}

// runeOffset returns the byte offset of the n-th rune in s, or len(s).
func runeOffset(s string, n int) int {
	offset := 0
	for i := 0; i < n && offset < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[offset:])
		offset += size
	}
	return offset
}
