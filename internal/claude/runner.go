// Package claude runs the Claude Code CLI and keeps one shared conversation
// going across questions by resuming the last session.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	DefaultBinary  = "claude"
	DefaultTimeout = 300 * time.Second
)

// ErrTimeout is returned when the CLI does not answer within the timeout.
var ErrTimeout = errors.New("claude did not answer in time")

// ExitError reports a non-zero exit of the CLI.
type ExitError struct {
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("claude exited with code %d: %s", e.Code, e.Output)
}

// SessionStore persists the session id between restarts.
type SessionStore interface {
	LoadSession(ctx context.Context) (string, error)
	SaveSession(ctx context.Context, sessionID string) error
	ClearSession(ctx context.Context) error
}

// Runner invokes the CLI one question at a time.
type Runner struct {
	binary  string
	args    []string
	timeout time.Duration
	store   SessionStore

	mu        sync.Mutex
	sessionID string
}

// Option configures a Runner.
type Option func(*Runner)

// WithBinary sets the path of the CLI executable.
func WithBinary(path string) Option {
	return func(r *Runner) {
		if path != "" {
			r.binary = path
		}
	}
}

// WithArgs appends extra CLI arguments to every invocation.
func WithArgs(args ...string) Option {
	return func(r *Runner) {
		r.args = append(r.args, args...)
	}
}

// WithTimeout bounds a single invocation.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithSessionStore persists the session id across restarts.
func WithSessionStore(store SessionStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		binary:  DefaultBinary,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore loads the persisted session id, if any.
func (r *Runner) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	id, err := r.store.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore claude session: %w", err)
	}

	r.mu.Lock()
	r.sessionID = id
	r.mu.Unlock()

	if id != "" {
		slog.Info("Restored Claude session", "sessionID", id)
	}
	return nil
}

// SessionID returns the session that the next question will resume.
func (r *Runner) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Reset drops the current session so the next question starts a new conversation.
func (r *Runner) Reset(ctx context.Context) {
	r.mu.Lock()
	r.sessionID = ""
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.ClearSession(ctx); err != nil {
			slog.Error("Failed to clear stored session", "error", err)
		}
	}
	slog.Info("Claude session reset")
}

// Ask sends a question to the CLI and returns the text of its answer.
func (r *Runner) Ask(ctx context.Context, question string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	args := r.buildArgs(question)
	slog.Info("Running Claude CLI", "binary", r.binary, "resume", r.sessionID != "", "questionLength", len(question))

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, r.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			slog.Error("Claude CLI timed out", "timeout", r.timeout)
			return "", ErrTimeout
		}
		return "", fmt.Errorf("claude run canceled: %w", ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			output := strings.TrimSpace(stderr.String())
			if output == "" {
				output = strings.TrimSpace(stdout.String())
			}
			slog.Error("Claude CLI failed", "code", exitErr.ExitCode(), "stderr", stderr.String(), "stdout", stdout.String())
			return "", &ExitError{Code: exitErr.ExitCode(), Output: output}
		}
		return "", fmt.Errorf("failed to run claude: %w", err)
	}

	slog.Info("Claude CLI finished", "duration", time.Since(start).Round(time.Millisecond), "outputLength", stdout.Len())
	return r.parseResponse(ctx, stdout.String()), nil
}

func (r *Runner) buildArgs(question string) []string {
	args := []string{"-p", question, "--output-format", "json", "--dangerously-skip-permissions"}
	if r.sessionID != "" {
		args = append(args, "--resume", r.sessionID)
	}
	return append(args, r.args...)
}

type cliResponse struct {
	SessionID string          `json:"session_id"`
	Result    json.RawMessage `json:"result"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// parseResponse extracts the answer text and remembers the session id.
// Output that is not JSON is returned as is.
func (r *Runner) parseResponse(ctx context.Context, raw string) string {
	var resp cliResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		slog.Warn("Claude CLI returned non-JSON output")
		return strings.TrimSpace(raw)
	}

	if resp.SessionID != "" && resp.SessionID != r.sessionID {
		r.sessionID = resp.SessionID
		slog.Info("Claude session updated", "sessionID", resp.SessionID)
		if r.store != nil {
			if err := r.store.SaveSession(ctx, resp.SessionID); err != nil {
				slog.Error("Failed to persist session", "error", err)
			}
		}
	}

	return extractResult(resp.Result)
}

func extractResult(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var texts []string
		for _, b := range blocks {
			if b.Type == "text" {
				texts = append(texts, b.Text)
			}
		}
		return strings.TrimSpace(strings.Join(texts, "\n"))
	}

	return strings.TrimSpace(string(raw))
}
