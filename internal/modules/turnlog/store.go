// Package turnlog persists per-turn analytics: what the user asked, how
// it was classified, and how long the answer took.
package turnlog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"mapchat/internal/modules/conversation"
)

// Store handles chat_turns persistence.
type Store struct {
	db *pgxpool.Pool
}

// NewStore returns a Store backed by the given connection pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Insert writes one turn row. created_at defaults to now() in the schema.
func (s *Store) Insert(ctx context.Context, rec conversation.TurnRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO chat_turns (user_message, assistant_message, intent, confidence, requires_ui_update, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.UserMessage, rec.AssistantMessage, rec.Intent, rec.Confidence, rec.RequiresUIUpdate, rec.Latency.Milliseconds())
	return err
}
