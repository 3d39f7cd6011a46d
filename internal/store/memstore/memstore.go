// Package memstore is an in-memory store.Store. Nothing survives a restart;
// it serves tests and deployments that opt out of persistence.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/mikubot/internal/store"
)

// Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	users     map[string]*store.User
	exchanges map[string][]store.Exchange
	settings  map[string]string
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:     make(map[string]*store.User),
		exchanges: make(map[string][]store.Exchange),
		settings:  make(map[string]string),
	}
}

func (s *Store) GetUser(_ context.Context, id string) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, fmt.Errorf("memstore: get user %s: %w", id, store.ErrNotFound)
	}
	return *u, nil
}

func (s *Store) UpsertUser(_ context.Context, p store.Profile, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[p.ID]; ok {
		u.Profile = p
		u.LastSeen = now
		return nil
	}
	s.users[p.ID] = &store.User{Profile: p, FirstSeen: now, LastSeen: now}
	return nil
}

func (s *Store) IncrementMessageCount(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return 0, fmt.Errorf("memstore: increment %s: %w", id, store.ErrNotFound)
	}
	u.MessageCount++
	return u.MessageCount, nil
}

func (s *Store) SaveExchange(_ context.Context, e store.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges[e.UserID] = append(s.exchanges[e.UserID], e)
	return nil
}

func (s *Store) RecentExchanges(_ context.Context, userID string, limit int) ([]store.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := slices.Clone(s.exchanges[userID])
	// Stable sort keeps insertion order for equal timestamps.
	slices.SortStableFunc(all, func(a, b store.Exchange) int { return a.Timestamp.Compare(b.Timestamp) })
	slices.Reverse(all)
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) IsBlocked(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return ok && u.Blocked, nil
}

func (s *Store) SetBlocked(_ context.Context, id string, blocked bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		u = &store.User{Profile: store.Profile{ID: id}, FirstSeen: now, LastSeen: now}
		s.users[id] = u
	}
	u.Blocked = blocked
	return nil
}

func (s *Store) SetLevel(_ context.Context, id string, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("memstore: set level %s: %w", id, store.ErrNotFound)
	}
	u.Level = level
	return nil
}

func (s *Store) Stats(_ context.Context, now time.Time) (store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st store.Stats
	top := make([]store.TopUser, 0, len(s.users))
	for _, u := range s.users {
		st.TotalUsers++
		st.TotalMessages += u.MessageCount
		if u.LastSeen.After(now.Add(-24 * time.Hour)) {
			st.Active24h++
		}
		if u.LastSeen.After(now.Add(-7 * 24 * time.Hour)) {
			st.Active7d++
		}
		if u.Blocked {
			st.Blocked++
		}
		top = append(top, store.TopUser{ID: u.ID, FirstName: u.FirstName, Username: u.Username, MessageCount: u.MessageCount})
	}
	slices.SortFunc(top, func(a, b store.TopUser) int {
		if c := cmp.Compare(b.MessageCount, a.MessageCount); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	st.Top = top[:min(len(top), store.TopUsersLimit)]
	return st, nil
}

func (s *Store) UnblockedUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, u := range s.users {
		if !u.Blocked {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) Setting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	if !ok {
		return "", fmt.Errorf("memstore: setting %q: %w", key, store.ErrNotFound)
	}
	return v, nil
}

func (s *Store) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.settings, key)
		return nil
	}
	s.settings[key] = value
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
