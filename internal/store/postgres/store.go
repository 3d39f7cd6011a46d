package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/mikubot/internal/store"
)

// Store is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// NewStore connects to the database at dsn, verifies the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// ── Users ──

func (s *Store) GetUser(ctx context.Context, id string) (store.User, error) {
	const q = `
		SELECT user_id, username, first_name, last_name, is_blocked, user_level,
		       message_count, first_seen, last_seen
		FROM   users
		WHERE  user_id = $1`
	var u store.User
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Blocked, &u.Level,
		&u.MessageCount, &u.FirstSeen, &u.LastSeen,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.User{}, fmt.Errorf("postgres store: get user %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return store.User{}, fmt.Errorf("postgres store: get user %s: %w", id, err)
	}
	u.FirstSeen, u.LastSeen = u.FirstSeen.UTC(), u.LastSeen.UTC()
	return u, nil
}

func (s *Store) UpsertUser(ctx context.Context, p store.Profile, now time.Time) error {
	const q = `
		INSERT INTO users (user_id, username, first_name, last_name, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id) DO UPDATE SET
		    username   = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name  = EXCLUDED.last_name,
		    last_seen  = EXCLUDED.last_seen`
	if _, err := s.pool.Exec(ctx, q, p.ID, p.Username, p.FirstName, p.LastName, now); err != nil {
		return fmt.Errorf("postgres store: upsert user %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) IncrementMessageCount(ctx context.Context, id string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`UPDATE users SET message_count = message_count + 1 WHERE user_id = $1 RETURNING message_count`, id,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("postgres store: increment %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("postgres store: increment %s: %w", id, err)
	}
	return n, nil
}

func (s *Store) IsBlocked(ctx context.Context, id string) (bool, error) {
	var blocked bool
	err := s.pool.QueryRow(ctx, `SELECT is_blocked FROM users WHERE user_id = $1`, id).Scan(&blocked)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres store: is blocked %s: %w", id, err)
	}
	return blocked, nil
}

func (s *Store) SetBlocked(ctx context.Context, id string, blocked bool, now time.Time) error {
	const q = `
		INSERT INTO users (user_id, is_blocked, first_seen, last_seen)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET is_blocked = EXCLUDED.is_blocked`
	if _, err := s.pool.Exec(ctx, q, id, blocked, now); err != nil {
		return fmt.Errorf("postgres store: set blocked %s: %w", id, err)
	}
	return nil
}

func (s *Store) SetLevel(ctx context.Context, id string, level int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET user_level = $2 WHERE user_id = $1`, id, level)
	if err != nil {
		return fmt.Errorf("postgres store: set level %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres store: set level %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) UnblockedUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM users WHERE NOT is_blocked ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: unblocked users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres store: unblocked users: %w", err)
	}
	return ids, nil
}

// ── History ──

func (s *Store) SaveExchange(ctx context.Context, e store.Exchange) error {
	const q = `
		INSERT INTO chat_history (id, user_id, message, response, timestamp)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, q, e.ID, e.UserID, e.Message, e.Response, e.Timestamp); err != nil {
		return fmt.Errorf("postgres store: save exchange: %w", err)
	}
	return nil
}

func (s *Store) RecentExchanges(ctx context.Context, userID string, limit int) ([]store.Exchange, error) {
	const q = `
		SELECT id::text, user_id, message, response, timestamp
		FROM   chat_history
		WHERE  user_id = $1
		ORDER  BY timestamp DESC, seq DESC
		LIMIT  $2`
	rows, err := s.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: recent exchanges: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Exchange, error) {
		var e store.Exchange
		err := row.Scan(&e.ID, &e.UserID, &e.Message, &e.Response, &e.Timestamp)
		e.Timestamp = e.Timestamp.UTC()
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan exchanges: %w", err)
	}
	if out == nil {
		out = []store.Exchange{}
	}
	return out, nil
}

// ── Stats ──

func (s *Store) Stats(ctx context.Context, now time.Time) (store.Stats, error) {
	const q = `
		SELECT COUNT(*),
		       COALESCE(SUM(message_count), 0),
		       COUNT(*) FILTER (WHERE last_seen > $1),
		       COUNT(*) FILTER (WHERE last_seen > $2),
		       COUNT(*) FILTER (WHERE is_blocked)
		FROM users`
	var st store.Stats
	if err := s.pool.QueryRow(ctx, q, now.Add(-24*time.Hour), now.Add(-7*24*time.Hour)).Scan(
		&st.TotalUsers, &st.TotalMessages, &st.Active24h, &st.Active7d, &st.Blocked,
	); err != nil {
		return store.Stats{}, fmt.Errorf("postgres store: stats: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT user_id, first_name, username, message_count
		FROM   users
		ORDER  BY message_count DESC, user_id
		LIMIT  $1`, store.TopUsersLimit)
	if err != nil {
		return store.Stats{}, fmt.Errorf("postgres store: top users: %w", err)
	}
	st.Top, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.TopUser, error) {
		var u store.TopUser
		err := row.Scan(&u.ID, &u.FirstName, &u.Username, &u.MessageCount)
		return u, err
	})
	if err != nil {
		return store.Stats{}, fmt.Errorf("postgres store: top users: %w", err)
	}
	return st, nil
}

// ── Settings ──

func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("postgres store: setting %q: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("postgres store: setting %q: %w", key, err)
	}
	return v, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	var err error
	if value == "" {
		_, err = s.pool.Exec(ctx, `DELETE FROM settings WHERE key = $1`, key)
	} else {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO settings (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	}
	if err != nil {
		return fmt.Errorf("postgres store: set setting %q: %w", key, err)
	}
	return nil
}
