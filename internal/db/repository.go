package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LoadSession returns the stored Claude session id, or "" when none is set.
func (db *DB) LoadSession(ctx context.Context) (string, error) {
	var sessionID string
	query := `SELECT session_id FROM claude_session WHERE id = 1`
	err := db.QueryRowContext(ctx, query).Scan(&sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	return sessionID, nil
}

// SaveSession persists the Claude session id used for conversation continuation.
func (db *DB) SaveSession(ctx context.Context, sessionID string) error {
	query := `
		INSERT INTO claude_session (id, session_id, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// ClearSession forgets the stored session so the next question starts fresh.
func (db *DB) ClearSession(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM claude_session`); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Exchange is one answered question.
type Exchange struct {
	ID        int64
	RequestID string
	ChatID    int64
	Question  string
	AnswerLen int
	Chunks    int
	Fallbacks int
	CreatedAt time.Time
}

// RecordExchange stores an answered question and how it was delivered.
func (db *DB) RecordExchange(ctx context.Context, e Exchange) error {
	query := `INSERT INTO exchanges (request_id, chat_id, question, answer_len, chunks, fallbacks, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := db.ExecContext(ctx, query, e.RequestID, e.ChatID, e.Question, e.AnswerLen, e.Chunks, e.Fallbacks, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

// RecentExchanges returns the latest exchanges, newest first.
func (db *DB) RecentExchanges(ctx context.Context, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 5
	}
	query := `SELECT id, request_id, chat_id, question, answer_len, chunks, fallbacks, created_at FROM exchanges ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent exchanges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var exchanges []Exchange
	for rows.Next() {
		var e Exchange
		if err := rows.Scan(&e.ID, &e.RequestID, &e.ChatID, &e.Question, &e.AnswerLen, &e.Chunks, &e.Fallbacks, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		exchanges = append(exchanges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return exchanges, nil
}

// CountExchanges returns the number of stored exchanges.
func (db *DB) CountExchanges(ctx context.Context) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exchanges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count exchanges: %w", err)
	}
	return n, nil
}

// PruneExchanges deletes exchanges created before the cutoff and returns how many were removed.
func (db *DB) PruneExchanges(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM exchanges WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune exchanges: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read pruned count: %w", err)
	}
	return n, nil
}
