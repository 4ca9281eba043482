package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats tracks lightweight bot operational metrics.
type Stats struct {
	startTime      time.Time
	questionsAsked atomic.Int64
	failures       atomic.Int64
	chunksSent     atomic.Int64
	fallbacks      atomic.Int64
	claudeTime     atomic.Int64
}

// New creates a new Stats tracker pinned to the current time.
func New() *Stats {
	return &Stats{startTime: time.Now()}
}

// RecordQuestion increments the questions counter.
func (s *Stats) RecordQuestion() {
	s.questionsAsked.Add(1)
}

// RecordFailure counts a question that produced no answer.
func (s *Stats) RecordFailure() {
	s.failures.Add(1)
}

// RecordDelivery adds the chunks sent for one answer and how many fell back to plain text.
func (s *Stats) RecordDelivery(chunks, fallbacks int) {
	if chunks > 0 {
		s.chunksSent.Add(int64(chunks))
	}
	if fallbacks > 0 {
		s.fallbacks.Add(int64(fallbacks))
	}
}

// RecordClaudeTime adds to the cumulative time spent waiting on the CLI.
func (s *Stats) RecordClaudeTime(d time.Duration) {
	if d > 0 {
		s.claudeTime.Add(int64(d))
	}
}

// Uptime returns the duration since the bot started.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

func (s *Stats) QuestionsAsked() int64 {
	return s.questionsAsked.Load()
}

func (s *Stats) Failures() int64 {
	return s.failures.Load()
}

func (s *Stats) ChunksSent() int64 {
	return s.chunksSent.Load()
}

func (s *Stats) Fallbacks() int64 {
	return s.fallbacks.Load()
}

// AverageClaudeTime returns the mean CLI latency per answered question.
func (s *Stats) AverageClaudeTime() time.Duration {
	answered := s.questionsAsked.Load() - s.failures.Load()
	if answered <= 0 {
		return 0
	}
	return time.Duration(s.claudeTime.Load() / answered)
}

// formatDuration formats a duration as a human-friendly string like "2d 5h 13m".
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// formatNumber adds comma separators to large numbers (e.g. 1234567 → "1,234,567").
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}

// Summary returns a Markdown summary of bot stats, rendered by the formatter.
func (s *Stats) Summary() string {
	return fmt.Sprintf(
		"## Claudegram Stats\n\n"+
			"- **Uptime**: %s\n"+
			"- **Questions**: %s (%s failed)\n"+
			"- **Messages Sent**: %s\n"+
			"- **Plain-text Fallbacks**: %s\n"+
			"- **Avg Claude Time**: %s",
		formatDuration(s.Uptime()),
		formatNumber(s.questionsAsked.Load()),
		formatNumber(s.failures.Load()),
		formatNumber(s.chunksSent.Load()),
		formatNumber(s.fallbacks.Load()),
		s.AverageClaudeTime().Round(time.Millisecond),
	)
}
