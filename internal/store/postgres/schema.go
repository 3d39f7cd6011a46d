// Package postgres is the server-backed store.Store. All operations share one
// [pgxpool.Pool].
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer s.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlUsers = `
CREATE TABLE IF NOT EXISTS users (
    user_id       TEXT         PRIMARY KEY,
    username      TEXT         NOT NULL DEFAULT '',
    first_name    TEXT         NOT NULL DEFAULT '',
    last_name     TEXT         NOT NULL DEFAULT '',
    is_blocked    BOOLEAN      NOT NULL DEFAULT false,
    user_level    INTEGER      NOT NULL DEFAULT 0,
    message_count INTEGER      NOT NULL DEFAULT 0,
    first_seen    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    last_seen     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_users_last_seen
    ON users (last_seen);

CREATE INDEX IF NOT EXISTS idx_users_message_count
    ON users (message_count DESC);
`

const ddlChatHistory = `
CREATE TABLE IF NOT EXISTS chat_history (
    seq        BIGSERIAL    PRIMARY KEY,
    id         UUID         NOT NULL UNIQUE,
    user_id    TEXT         NOT NULL REFERENCES users (user_id) ON DELETE CASCADE,
    message    TEXT         NOT NULL,
    response   TEXT         NOT NULL,
    timestamp  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_history_user_time
    ON chat_history (user_id, timestamp DESC, seq DESC);
`

const ddlSettings = `
CREATE TABLE IF NOT EXISTS settings (
    key    TEXT  PRIMARY KEY,
    value  TEXT  NOT NULL
);
`

// Migrate creates all tables and indexes. It is idempotent and runs on every
// start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlUsers, ddlChatHistory, ddlSettings} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
