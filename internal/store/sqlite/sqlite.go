// Package sqlite is the embedded store.Store backed by modernc.org/sqlite.
//
// The schema is applied from versioned files in migrations/ on open.
// Timestamps are stored as Unix milliseconds.
package sqlite

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/mikubot/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is safe for concurrent use.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at dbPath, creating parent directories
// as needed, and applies pending migrations.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// One connection: sqlite has a single writer and :memory: databases are
	// per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return s, nil
}

type migration struct {
	version     int
	description string
	file        string
}

func pendingMigrations(current int) ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	seen := make(map[int]string, len(entries))
	var out []migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		num, desc, ok := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
		if !ok {
			continue
		}
		v, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		if prev, dup := seen[v]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %q and %q", v, prev, name)
		}
		seen[v] = name
		if v > current {
			out = append(out, migration{version: v, description: desc, file: name})
		}
	}
	slices.SortFunc(out, func(a, b migration) int { return cmp.Compare(a.version, b.version) })
	return out, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT    NOT NULL
		)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	pending, err := pendingMigrations(current)
	if err != nil {
		return err
	}
	for _, m := range pending {
		content, err := migrationsFS.ReadFile(path.Join("migrations", m.file))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", m.file, err)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.version, time.Now().UnixMilli(), m.description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
		slog.Info("applied migration", "version", fmt.Sprintf("%04d", m.version), "description", m.description)
	}
	return nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// ── Users ──

const userColumns = `user_id, username, first_name, last_name, is_blocked, user_level, message_count, first_seen, last_seen`

func scanUser(row interface{ Scan(...any) error }) (store.User, error) {
	var (
		u           store.User
		first, last int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Blocked, &u.Level, &u.MessageCount, &first, &last)
	u.FirstSeen, u.LastSeen = fromMillis(first), fromMillis(last)
	return u, err
}

func (s *Store) GetUser(ctx context.Context, id string) (store.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE user_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, fmt.Errorf("sqlite: get user %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return store.User{}, fmt.Errorf("sqlite: get user %s: %w", id, err)
	}
	return u, nil
}

func (s *Store) UpsertUser(ctx context.Context, p store.Profile, now time.Time) error {
	const q = `
		INSERT INTO users (user_id, username, first_name, last_name, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			username   = excluded.username,
			first_name = excluded.first_name,
			last_name  = excluded.last_name,
			last_seen  = excluded.last_seen`
	if _, err := s.db.ExecContext(ctx, q, p.ID, p.Username, p.FirstName, p.LastName, millis(now), millis(now)); err != nil {
		return fmt.Errorf("sqlite: upsert user %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) IncrementMessageCount(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"UPDATE users SET message_count = message_count + 1 WHERE user_id = ? RETURNING message_count", id,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sqlite: increment %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: increment %s: %w", id, err)
	}
	return n, nil
}

func (s *Store) IsBlocked(ctx context.Context, id string) (bool, error) {
	var blocked bool
	err := s.db.QueryRowContext(ctx, "SELECT is_blocked FROM users WHERE user_id = ?", id).Scan(&blocked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: is blocked %s: %w", id, err)
	}
	return blocked, nil
}

func (s *Store) SetBlocked(ctx context.Context, id string, blocked bool, now time.Time) error {
	const q = `
		INSERT INTO users (user_id, is_blocked, first_seen, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET is_blocked = excluded.is_blocked`
	if _, err := s.db.ExecContext(ctx, q, id, blocked, millis(now), millis(now)); err != nil {
		return fmt.Errorf("sqlite: set blocked %s: %w", id, err)
	}
	return nil
}

func (s *Store) SetLevel(ctx context.Context, id string, level int) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET user_level = ? WHERE user_id = ?", level, id)
	if err != nil {
		return fmt.Errorf("sqlite: set level %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sqlite: set level %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) UnblockedUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id FROM users WHERE is_blocked = 0 ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("sqlite: unblocked users: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: unblocked users: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ── History ──

func (s *Store) SaveExchange(ctx context.Context, e store.Exchange) error {
	const q = `INSERT INTO chat_history (id, user_id, message, response, timestamp) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, e.ID, e.UserID, e.Message, e.Response, millis(e.Timestamp)); err != nil {
		return fmt.Errorf("sqlite: save exchange: %w", err)
	}
	return nil
}

func (s *Store) RecentExchanges(ctx context.Context, userID string, limit int) ([]store.Exchange, error) {
	const q = `
		SELECT id, user_id, message, response, timestamp
		FROM   chat_history
		WHERE  user_id = ?
		ORDER  BY timestamp DESC, seq DESC
		LIMIT  ?`
	rows, err := s.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent exchanges: %w", err)
	}
	defer rows.Close()

	out := []store.Exchange{}
	for rows.Next() {
		var (
			e  store.Exchange
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Message, &e.Response, &ts); err != nil {
			return nil, fmt.Errorf("sqlite: recent exchanges: %w", err)
		}
		e.Timestamp = fromMillis(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ── Stats ──

func (s *Store) Stats(ctx context.Context, now time.Time) (store.Stats, error) {
	const q = `
		SELECT COUNT(*),
		       COALESCE(SUM(message_count), 0),
		       COALESCE(SUM(last_seen > ?), 0),
		       COALESCE(SUM(last_seen > ?), 0),
		       COALESCE(SUM(is_blocked), 0)
		FROM users`
	var st store.Stats
	err := s.db.QueryRowContext(ctx, q,
		millis(now.Add(-24*time.Hour)), millis(now.Add(-7*24*time.Hour)),
	).Scan(&st.TotalUsers, &st.TotalMessages, &st.Active24h, &st.Active7d, &st.Blocked)
	if err != nil {
		return store.Stats{}, fmt.Errorf("sqlite: stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, first_name, username, message_count
		FROM   users
		ORDER  BY message_count DESC, user_id
		LIMIT  ?`, store.TopUsersLimit)
	if err != nil {
		return store.Stats{}, fmt.Errorf("sqlite: top users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u store.TopUser
		if err := rows.Scan(&u.ID, &u.FirstName, &u.Username, &u.MessageCount); err != nil {
			return store.Stats{}, fmt.Errorf("sqlite: top users: %w", err)
		}
		st.Top = append(st.Top, u)
	}
	return st, rows.Err()
}

// ── Settings ──

func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sqlite: setting %q: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: setting %q: %w", key, err)
	}
	return v, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	var err error
	if value == "" {
		_, err = s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key)
	} else {
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
			key, value)
	}
	if err != nil {
		return fmt.Errorf("sqlite: set setting %q: %w", key, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }
