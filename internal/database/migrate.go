package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Only messages are owned here; users and orders are written by other
// services and are created here only so a fresh database is usable.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		avatar_url TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_deactivated BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		client_id UUID NOT NULL REFERENCES users(id),
		freelancer_id UUID REFERENCES users(id),
		status TEXT NOT NULL,
		last_activity_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender_id UUID NOT NULL,
		recipient_id UUID NOT NULL,
		content TEXT NOT NULL,
		message_type TEXT NOT NULL,
		attachments JSONB NOT NULL DEFAULT '[]',
		order_id UUID,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		read_at TIMESTAMPTZ,
		is_filtered BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		CHECK (sender_id <> recipient_id),
		CHECK (char_length(content) <= 2000)
	)`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_created_idx ON messages (conversation_id, created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS messages_recipient_unread_idx ON messages (recipient_id) WHERE NOT is_read`,
	`CREATE INDEX IF NOT EXISTS messages_sender_idx ON messages (sender_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS messages_one_system_idx ON messages (conversation_id) WHERE message_type = 'system'`,
}

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}
