// Package store defines the persistence collaborator of the chat service:
// user records with their durable message counters and block flags, the
// exchange history fed to the delegate backend, and the aggregates behind the
// admin statistics.
//
// Implementations live in sub-packages: [memstore] keeps everything in
// memory, [sqlite] and [postgres] persist to a database.
//
// [memstore]: github.com/MrWong99/mikubot/internal/store/memstore
// [sqlite]: github.com/MrWong99/mikubot/internal/store/sqlite
// [postgres]: github.com/MrWong99/mikubot/internal/store/postgres
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("store: not found")

// User levels.
const (
	LevelNormal    = 0
	LevelTrusted   = 1
	LevelModerator = 2
	LevelAdmin     = 3
)

// Profile is the identifying information refreshed on every message.
type Profile struct {
	ID        string
	Username  string
	FirstName string
	LastName  string
}

// User is a persisted user record.
type User struct {
	Profile
	Blocked      bool
	Level        int
	MessageCount int
	FirstSeen    time.Time
	LastSeen     time.Time
}

// DisplayName returns the name used to address the user.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return u.ID
	}
}

// Exchange is one stored message/reply pair.
type Exchange struct {
	ID        string
	UserID    string
	Message   string
	Response  string
	Timestamp time.Time
}

// TopUser is one row of the most active users ranking.
type TopUser struct {
	ID           string
	FirstName    string
	Username     string
	MessageCount int
}

// Stats aggregates the admin statistics.
type Stats struct {
	TotalUsers    int
	TotalMessages int
	Active24h     int
	Active7d      int
	Blocked       int
	Top           []TopUser
}

// AveragePerUser returns TotalMessages / TotalUsers, or 0 without users.
func (s Stats) AveragePerUser() int {
	if s.TotalUsers == 0 {
		return 0
	}
	return s.TotalMessages / s.TotalUsers
}

// TopUsersLimit is the length of [Stats.Top].
const TopUsersLimit = 5

// Store persists users and their chat history. Implementations must be safe
// for concurrent use.
type Store interface {
	// GetUser returns the user with id or [ErrNotFound].
	GetUser(ctx context.Context, id string) (User, error)

	// UpsertUser creates the user or refreshes its profile, and sets
	// LastSeen to now. FirstSeen is set only on creation.
	UpsertUser(ctx context.Context, p Profile, now time.Time) error

	// IncrementMessageCount adds one to the user's durable counter and
	// returns the new value. Missing users yield [ErrNotFound].
	IncrementMessageCount(ctx context.Context, id string) (int, error)

	// SaveExchange appends an exchange to the user's history.
	SaveExchange(ctx context.Context, e Exchange) error

	// RecentExchanges returns up to limit exchanges of the user, newest
	// first.
	RecentExchanges(ctx context.Context, userID string, limit int) ([]Exchange, error)

	// IsBlocked reports whether the user is blocked. Unknown users are not.
	IsBlocked(ctx context.Context, id string) (bool, error)

	// SetBlocked sets the block flag, creating a bare user record when the
	// user has never written.
	SetBlocked(ctx context.Context, id string, blocked bool, now time.Time) error

	// SetLevel sets the user's permission level. Missing users yield
	// [ErrNotFound].
	SetLevel(ctx context.Context, id string, level int) error

	// Stats computes the admin statistics relative to now.
	Stats(ctx context.Context, now time.Time) (Stats, error)

	// UnblockedUserIDs lists every user that is not blocked, ordered by id.
	UnblockedUserIDs(ctx context.Context) ([]string, error)

	// Setting returns the value stored under key or [ErrNotFound].
	Setting(ctx context.Context, key string) (string, error)

	// SetSetting stores value under key. An empty value deletes the key.
	SetSetting(ctx context.Context, key, value string) error

	// Ping checks that the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
