package formatter

import (
	"fmt"
	"regexp"
	"strings"
)

type placeholderKind string

const (
	kindCodeBlock  placeholderKind = "CB"
	kindInlineCode placeholderKind = "IC"
)

var (
	// codeBlockRe matches a fenced block with an optional language tag.
	// An unterminated fence does not match and is left to later rules.
	codeBlockRe = regexp.MustCompile("(?s)```([\\w+#.-]*)[ \\t]*\\n(.*?)```")

	inlineCodeRe = regexp.MustCompile("`([^`\\n]+)`")
)

// placeholders records the finalized markup of every protected span,
// indexed per kind in discovery order.
type placeholders struct {
	blocks  map[int]string
	inlines map[int]string
}

func newPlaceholders() *placeholders {
	return &placeholders{
		blocks:  make(map[int]string),
		inlines: make(map[int]string),
	}
}

// token returns the opaque marker substituted for a protected span.
func token(kind placeholderKind, idx int) string {
	return fmt.Sprintf("\x00%s%d\x00", kind, idx)
}

// protect replaces fenced code blocks, then inline code spans, with tokens.
// Blocks go first so backticks inside a fence are never read as inline code.
func (p *placeholders) protect(text string) string {
	text = codeBlockRe.ReplaceAllStringFunc(text, func(match string) string {
		m := codeBlockRe.FindStringSubmatch(match)
		lang, code := m[1], escapeHTML(strings.TrimSpace(m[2]))

		var block string
		if lang != "" {
			block = fmt.Sprintf(`<pre><code class="language-%s">%s</code></pre>`, escapeHTML(lang), code)
		} else {
			block = "<pre>" + code + "</pre>"
		}

		idx := len(p.blocks)
		p.blocks[idx] = block
		return token(kindCodeBlock, idx)
	})

	return inlineCodeRe.ReplaceAllStringFunc(text, func(match string) string {
		m := inlineCodeRe.FindStringSubmatch(match)
		idx := len(p.inlines)
		p.inlines[idx] = "<code>" + escapeHTML(m[1]) + "</code>"
		return token(kindInlineCode, idx)
	})
}

// restore swaps every token back for its markup. Tokens are looked up in
// their escaped form because escaping runs after protection.
func (p *placeholders) restore(text string) string {
	if len(p.blocks) == 0 && len(p.inlines) == 0 {
		return text
	}

	pairs := make([]string, 0, 2*(len(p.blocks)+len(p.inlines)))
	for idx, markup := range p.blocks {
		pairs = append(pairs, escapeHTML(token(kindCodeBlock, idx)), markup)
	}
	for idx, markup := range p.inlines {
		pairs = append(pairs, escapeHTML(token(kindInlineCode, idx)), markup)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
