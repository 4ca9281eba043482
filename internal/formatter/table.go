package formatter

import (
	"regexp"
	"strings"
)

const cellSeparator = " │ "

var (
	// tableStartRe matches the separator row that follows a table header.
	tableStartRe = regexp.MustCompile(`^\|?[\s\-:|]+\|`)

	// separatorRowRe matches a full separator row such as |---|:--:|.
	separatorRowRe = regexp.MustCompile(`^\|?[\s\-:|]+\|?$`)
)

// convertTables replaces every Markdown table in text with flat lines,
// since Telegram has no table markup.
func convertTables(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); {
		if !isTableStart(lines, i) {
			out = append(out, lines[i])
			i++
			continue
		}

		start := i
		for i < len(lines) && strings.Contains(lines[i], "|") {
			i++
		}
		out = append(out, renderTable(lines[start:i])...)
	}

	return strings.Join(out, "\n")
}

func isTableStart(lines []string, i int) bool {
	if i+1 >= len(lines) {
		return false
	}
	return strings.Contains(lines[i], "|") && tableStartRe.MatchString(strings.TrimSpace(lines[i+1]))
}

// parseTable splits table lines into trimmed cells, dropping separator rows.
func parseTable(lines []string) [][]string {
	var rows [][]string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if separatorRowRe.MatchString(line) {
			continue
		}

		cells := strings.Split(strings.Trim(line, "|"), "|")
		for j := range cells {
			cells[j] = strings.TrimSpace(cells[j])
		}
		rows = append(rows, cells)
	}
	return rows
}

// renderTable flattens a table. The first row becomes a bold header and
// every following row is rendered as "**header**: value" pairs.
func renderTable(lines []string) []string {
	rows := parseTable(lines)
	if len(rows) == 0 {
		return lines
	}
	if len(rows) == 1 {
		return []string{strings.Join(rows[0], cellSeparator)}
	}

	header := rows[0]
	out := make([]string, 0, len(rows))

	bold := make([]string, len(header))
	for j, cell := range header {
		bold[j] = "**" + cell + "**"
	}
	out = append(out, strings.Join(bold, "  "))

	for _, row := range rows[1:] {
		if len(row) != len(header) {
			out = append(out, strings.Join(row, cellSeparator))
			continue
		}

		pairs := make([]string, len(row))
		for j, value := range row {
			pairs[j] = "**" + header[j] + "**: " + value
		}
		out = append(out, strings.Join(pairs, cellSeparator))
	}

	return out
}
