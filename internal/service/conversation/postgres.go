package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chiehyu-lin/line-ai-relay/internal/model/conversation"
)

// PostgresStore persists transcripts in PostgreSQL so history survives
// restarts and multiple replicas can share it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_turns_user_created
			ON conversation_turns (user_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, userID, role, text string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_turns (id, user_id, role, text, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), userID, role, text, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	// Keep only the newest MaxTranscriptTurns rows per user.
	_, err = s.pool.Exec(ctx,
		`DELETE FROM conversation_turns
		 WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM conversation_turns
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		 )`,
		userID, MaxTranscriptTurns,
	)
	if err != nil {
		return fmt.Errorf("trim transcript: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, userID string, limit int) ([]conversation.Turn, error) {
	if limit <= 0 {
		limit = MaxTranscriptTurns
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, role, text, created_at
		 FROM conversation_turns
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	turns := make([]conversation.Turn, 0, limit)
	for rows.Next() {
		var t conversation.Turn
		if err := rows.Scan(&t.ID, &t.UserID, &t.Role, &t.Text, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	return turns, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
