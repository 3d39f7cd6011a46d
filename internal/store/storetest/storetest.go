// Package storetest holds the behaviour suite every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/mikubot/internal/store"
)

// Factory returns a fresh, empty store. It should register cleanup with t.
type Factory func(t *testing.T) store.Store

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes the suite against stores created by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"UpsertAndGet", testUpsertAndGet},
		{"GetMissing", testGetMissing},
		{"IncrementMessageCount", testIncrement},
		{"IncrementConcurrent", testIncrementConcurrent},
		{"RecentExchanges", testRecentExchanges},
		{"Blocking", testBlocking},
		{"SetLevel", testSetLevel},
		{"Stats", testStats},
		{"Settings", testSettings},
		{"Ping", testPing},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func mustUpsert(t *testing.T, s store.Store, p store.Profile, now time.Time) {
	t.Helper()
	if err := s.UpsertUser(context.Background(), p, now); err != nil {
		t.Fatalf("UpsertUser(%s): %v", p.ID, err)
	}
}

func testUpsertAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustUpsert(t, s, store.Profile{ID: "100", Username: "futaro", FirstName: "Futaro"}, epoch)
	mustUpsert(t, s, store.Profile{ID: "100", Username: "uesugi", FirstName: "Futaro", LastName: "Uesugi"}, epoch.Add(time.Hour))

	u, err := s.GetUser(ctx, "100")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Username != "uesugi" || u.LastName != "Uesugi" {
		t.Errorf("profile not refreshed: %+v", u.Profile)
	}
	if !u.FirstSeen.Equal(epoch) {
		t.Errorf("FirstSeen = %v, want %v", u.FirstSeen, epoch)
	}
	if !u.LastSeen.Equal(epoch.Add(time.Hour)) {
		t.Errorf("LastSeen = %v, want %v", u.LastSeen, epoch.Add(time.Hour))
	}
	if u.Blocked || u.Level != store.LevelNormal || u.MessageCount != 0 {
		t.Errorf("unexpected defaults: %+v", u)
	}
	if u.DisplayName() != "Futaro" {
		t.Errorf("DisplayName = %q", u.DisplayName())
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.GetUser(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetUser err = %v, want ErrNotFound", err)
	}
	if _, err := s.IncrementMessageCount(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("IncrementMessageCount err = %v, want ErrNotFound", err)
	}
	if err := s.SetLevel(ctx, "nobody", store.LevelAdmin); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetLevel err = %v, want ErrNotFound", err)
	}
	blocked, err := s.IsBlocked(ctx, "nobody")
	if err != nil || blocked {
		t.Errorf("IsBlocked = %v, %v", blocked, err)
	}
	ex, err := s.RecentExchanges(ctx, "nobody", 5)
	if err != nil || len(ex) != 0 {
		t.Errorf("RecentExchanges = %v, %v", ex, err)
	}
}

func testIncrement(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustUpsert(t, s, store.Profile{ID: "7"}, epoch)
	for want := 1; want <= 3; want++ {
		got, err := s.IncrementMessageCount(ctx, "7")
		if err != nil {
			t.Fatalf("IncrementMessageCount: %v", err)
		}
		if got != want {
			t.Errorf("count = %d, want %d", got, want)
		}
	}
	u, _ := s.GetUser(ctx, "7")
	if u.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3", u.MessageCount)
	}
}

func testIncrementConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustUpsert(t, s, store.Profile{ID: "busy"}, epoch)

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			for range 10 {
				if _, err := s.IncrementMessageCount(ctx, "busy"); err != nil {
					t.Errorf("IncrementMessageCount: %v", err)
					return
				}
			}
		})
	}
	wg.Wait()

	u, _ := s.GetUser(ctx, "busy")
	if u.MessageCount != 40 {
		t.Errorf("MessageCount = %d, want 40", u.MessageCount)
	}
}

func testRecentExchanges(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustUpsert(t, s, store.Profile{ID: "a"}, epoch)
	mustUpsert(t, s, store.Profile{ID: "b"}, epoch)

	for i := range 8 {
		e := store.Exchange{
			ID:        uuid.NewString(),
			UserID:    "a",
			Message:   fmt.Sprintf("m%d", i),
			Response:  fmt.Sprintf("r%d", i),
			Timestamp: epoch.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveExchange(ctx, e); err != nil {
			t.Fatalf("SaveExchange: %v", err)
		}
	}
	if err := s.SaveExchange(ctx, store.Exchange{ID: uuid.NewString(), UserID: "b", Message: "other", Response: "x", Timestamp: epoch}); err != nil {
		t.Fatalf("SaveExchange: %v", err)
	}

	got, err := s.RecentExchanges(ctx, "a", 3)
	if err != nil {
		t.Fatalf("RecentExchanges: %v", err)
	}
	var msgs []string
	for _, e := range got {
		msgs = append(msgs, e.Message)
		if e.UserID != "a" {
			t.Errorf("exchange of user %q leaked", e.UserID)
		}
	}
	if !slices.Equal(msgs, []string{"m7", "m6", "m5"}) {
		t.Errorf("messages = %v, want newest first", msgs)
	}
	if !got[0].Timestamp.Equal(epoch.Add(7 * time.Minute)) {
		t.Errorf("Timestamp = %v", got[0].Timestamp)
	}
	if got[0].Response != "r7" {
		t.Errorf("Response = %q", got[0].Response)
	}

	all, _ := s.RecentExchanges(ctx, "a", 100)
	if len(all) != 8 {
		t.Errorf("len = %d, want 8", len(all))
	}
}

func testBlocking(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustUpsert(t, s, store.Profile{ID: "1"}, epoch)
	mustUpsert(t, s, store.Profile{ID: "2"}, epoch)

	if err := s.SetBlocked(ctx, "2", true, epoch); err != nil {
		t.Fatalf("SetBlocked: %v", err)
	}
	// Blocking someone who never wrote creates a record.
	if err := s.SetBlocked(ctx, "3", true, epoch); err != nil {
		t.Fatalf("SetBlocked(new): %v", err)
	}
	for id, want := range map[string]bool{"1": false, "2": true, "3": true} {
		got, err := s.IsBlocked(ctx, id)
		if err != nil || got != want {
			t.Errorf("IsBlocked(%s) = %v, %v; want %v", id, got, err, want)
		}
	}

	ids, err := s.UnblockedUserIDs(ctx)
	if err != nil {
		t.Fatalf("UnblockedUserIDs: %v", err)
	}
	if !slices.Equal(ids, []string{"1"}) {
		t.Errorf("UnblockedUserIDs = %v", ids)
	}

	if err := s.SetBlocked(ctx, "2", false, epoch); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	ids, _ = s.UnblockedUserIDs(ctx)
	if !slices.Equal(ids, []string{"1", "2"}) {
		t.Errorf("UnblockedUserIDs after unblock = %v", ids)
	}

	// Upserting a blocked user keeps the flag.
	mustUpsert(t, s, store.Profile{ID: "3", FirstName: "Nino"}, epoch.Add(time.Minute))
	if blocked, _ := s.IsBlocked(ctx, "3"); !blocked {
		t.Error("upsert cleared the block flag")
	}
}

func testSetLevel(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustUpsert(t, s, store.Profile{ID: "mod"}, epoch)
	if err := s.SetLevel(ctx, "mod", store.LevelModerator); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	u, _ := s.GetUser(ctx, "mod")
	if u.Level != store.LevelModerator {
		t.Errorf("Level = %d", u.Level)
	}
}

func testStats(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := epoch.Add(30 * 24 * time.Hour)

	seen := map[string]time.Duration{
		"u1": time.Hour,
		"u2": 2 * 24 * time.Hour,
		"u3": 10 * 24 * time.Hour,
		"u4": 5 * time.Minute,
		"u5": 20 * 24 * time.Hour,
		"u6": 3 * time.Hour,
	}
	counts := map[string]int{"u1": 5, "u2": 9, "u3": 1, "u4": 9, "u5": 0, "u6": 2}
	for id, ago := range seen {
		mustUpsert(t, s, store.Profile{ID: id, FirstName: "N" + id, Username: "user" + id}, now.Add(-ago))
		for range counts[id] {
			if _, err := s.IncrementMessageCount(ctx, id); err != nil {
				t.Fatalf("IncrementMessageCount: %v", err)
			}
		}
	}
	if err := s.SetBlocked(ctx, "u3", true, now); err != nil {
		t.Fatalf("SetBlocked: %v", err)
	}

	st, err := s.Stats(ctx, now)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalUsers != 6 || st.TotalMessages != 26 {
		t.Errorf("totals = %d users, %d messages", st.TotalUsers, st.TotalMessages)
	}
	if st.Active24h != 3 || st.Active7d != 4 {
		t.Errorf("active = %d (24h), %d (7d); want 3, 4", st.Active24h, st.Active7d)
	}
	if st.Blocked != 1 {
		t.Errorf("Blocked = %d", st.Blocked)
	}
	if st.AveragePerUser() != 4 {
		t.Errorf("AveragePerUser = %d", st.AveragePerUser())
	}

	var top []string
	for _, u := range st.Top {
		top = append(top, u.ID)
	}
	if !slices.Equal(top, []string{"u2", "u4", "u1", "u6", "u3"}) {
		t.Errorf("Top = %v", top)
	}
	if st.Top[0].FirstName != "Nu2" || st.Top[0].Username != "useru2" || st.Top[0].MessageCount != 9 {
		t.Errorf("Top[0] = %+v", st.Top[0])
	}
}

func testSettings(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.Setting(ctx, "k"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Setting(missing) err = %v", err)
	}
	if err := s.SetSetting(ctx, "k", "v1"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(ctx, "k", "v2"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if v, err := s.Setting(ctx, "k"); err != nil || v != "v2" {
		t.Errorf("Setting = %q, %v", v, err)
	}
	if err := s.SetSetting(ctx, "k", ""); err != nil {
		t.Fatalf("SetSetting(delete): %v", err)
	}
	if _, err := s.Setting(ctx, "k"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Setting after delete err = %v", err)
	}
}

func testPing(t *testing.T, s store.Store) {
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
