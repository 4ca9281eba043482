package formatter

import (
	"log/slog"

	"github.com/dlclark/regexp2"
)

const divider = "———————————"

// rule is a single pattern -> replacement pass over the escaped text.
type rule struct {
	name string
	re   *regexp2.Regexp
	repl string
}

func newRule(name, pattern string, opts regexp2.RegexOptions, repl string) rule {
	return rule{name: name, re: regexp2.MustCompile(pattern, opts), repl: repl}
}

// styleRules run in order. Bold precedes italic since both use '*', and
// both precede bullet replacement which rewrites leading markers.
// Line-anchored rules stop before an optional '\r' so CRLF input keeps
// its line endings.
var styleRules = []rule{
	newRule("divider", `^[-*_]{3,}[ \t]*(?=\r?$)`, regexp2.Multiline, divider),
	newRule("bold", `\*\*(.+?)\*\*`, regexp2.Singleline, "<b>$1</b>"),
	newRule("bold-underscore", `__(.+?)__`, regexp2.Singleline, "<b>$1</b>"),
	newRule("italic", `\*(.+?)\*`, regexp2.Singleline, "<i>$1</i>"),
	// The lookarounds keep snake_case_names intact.
	newRule("italic-underscore", `(?<!\w)_([^_]+?)_(?!\w)`, regexp2.None, "<i>$1</i>"),
	newRule("strike", `~~(.+?)~~`, regexp2.Singleline, "<s>$1</s>"),
	newRule("heading", `^#{1,6}[ \t]+(.+?)(?=\r?$)`, regexp2.Multiline, "<b>$1</b>"),
	newRule("link", `\[([^\]]+)\]\(([^)]+)\)`, regexp2.None, `<a href="$2">$1</a>`),
	newRule("bullet", `^[-*][ \t]+`, regexp2.Multiline, "• "),
}

// applyRules runs every style rule over already escaped text.
func applyRules(text string) string {
	for _, r := range styleRules {
		out, err := r.re.Replace(text, r.repl, -1, -1)
		if err != nil {
			slog.Warn("Style rule failed, skipping", "rule", r.name, "error", err)
			continue
		}
		text = out
	}
	return text
}
