package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/MrWong99/mikubot/internal/observe"
	"github.com/MrWong99/mikubot/internal/persona"
	"github.com/MrWong99/mikubot/internal/store"
)

const broadcastUsage = "**Broadcast Usage:**\n" +
	"`/broadcast <message>`\n\n" +
	"Example:\n" +
	"`/broadcast Hello everyone! Bot update coming soon.`"

const noPendingBroadcast = "No pending broadcast found. Use `/broadcast` first."

// progressEvery is how many recipients pass between progress reports.
const progressEvery = 10

// pendingBroadcast is stored per admin in the settings table until confirmed.
type pendingBroadcast struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func pendingKey(adminID string) string { return "broadcast.pending." + adminID }

// BroadcastReport summarises one broadcast run.
type BroadcastReport struct {
	Total   int
	Success int
	Failed  int
}

func (r BroadcastReport) String() string {
	return fmt.Sprintf("✅ **Broadcast Complete!**\n\n📊 Total: %d\n✅ Success: %d\n❌ Failed: %d", r.Total, r.Success, r.Failed)
}

func (s *Service) prepareBroadcast(ctx context.Context, adminID, message string) (Outgoing, error) {
	if message == "" {
		return Outgoing{Text: broadcastUsage, Ephemeral: true}, nil
	}
	ids, err := s.store.UnblockedUserIDs(ctx)
	if err != nil {
		return Outgoing{Text: "❌ Could not load recipients.", Ephemeral: true}, fmt.Errorf("chat: broadcast: %w", err)
	}
	p := pendingBroadcast{ID: uuid.NewString(), Message: message, CreatedAt: s.now()}
	data, err := json.Marshal(p)
	if err != nil {
		return Outgoing{}, fmt.Errorf("chat: broadcast: encode: %w", err)
	}
	if err := s.store.SetSetting(ctx, pendingKey(adminID), string(data)); err != nil {
		return Outgoing{Text: "❌ Could not store the broadcast.", Ephemeral: true}, fmt.Errorf("chat: broadcast: %w", err)
	}
	observe.Logger(ctx).Info("broadcast prepared", "admin", adminID, "broadcast", p.ID, "recipients", len(ids))
	return Outgoing{Text: fmt.Sprintf("📢 **Broadcast Confirmation**\n\n"+
		"Message: %s\n\n"+
		"Will be sent to: %d users\n\n"+
		"Reply with `/confirm_broadcast` to proceed.", message, len(ids)), Ephemeral: true}, nil
}

func (s *Service) confirmBroadcast(ctx context.Context, adminID string, progress func(string)) (Outgoing, error) {
	raw, err := s.store.Setting(ctx, pendingKey(adminID))
	if errors.Is(err, store.ErrNotFound) {
		return Outgoing{Text: noPendingBroadcast, Ephemeral: true}, nil
	}
	if err != nil {
		return Outgoing{Text: noPendingBroadcast, Ephemeral: true}, fmt.Errorf("chat: confirm broadcast: %w", err)
	}
	var p pendingBroadcast
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		_ = s.store.SetSetting(ctx, pendingKey(adminID), "")
		return Outgoing{Text: noPendingBroadcast, Ephemeral: true}, fmt.Errorf("chat: confirm broadcast: decode: %w", err)
	}
	if s.directSender() == nil {
		return Outgoing{Text: "❌ Broadcasting is not available on this transport.", Ephemeral: true}, errors.New("chat: confirm broadcast: no sender")
	}
	// Cleared up front so a second confirm cannot send twice.
	if err := s.store.SetSetting(ctx, pendingKey(adminID), ""); err != nil {
		return Outgoing{Text: persona.Fallback, Ephemeral: true}, fmt.Errorf("chat: confirm broadcast: %w", err)
	}

	ids, err := s.store.UnblockedUserIDs(ctx)
	if err != nil {
		return Outgoing{Text: "❌ Could not load recipients.", Ephemeral: true}, fmt.Errorf("chat: confirm broadcast: %w", err)
	}
	report, err := s.Broadcast(ctx, p.Message, ids, progress)
	observe.Logger(ctx).Info("broadcast completed",
		"admin", adminID, "broadcast", p.ID,
		"success", report.Success, "total", report.Total)
	return Outgoing{Text: report.String(), Ephemeral: true}, err
}

// Broadcast sends text to every id, pacing the sends. It stops early only
// when ctx is done; individual send failures are counted.
func (s *Service) Broadcast(ctx context.Context, text string, ids []string, progress func(string)) (BroadcastReport, error) {
	report := BroadcastReport{Total: len(ids)}
	sender := s.directSender()
	if sender == nil {
		return report, errors.New("chat: broadcast: no sender")
	}
	limit := rate.Inf
	if s.pace > 0 {
		limit = rate.Every(s.pace)
	}
	pacer := rate.NewLimiter(limit, 1)

	if progress != nil {
		progress(fmt.Sprintf("📤 Broadcasting to %d users...\nProgress: 0/%d", report.Total, report.Total))
	}
	for i, id := range ids {
		if err := pacer.Wait(ctx); err != nil {
			return report, fmt.Errorf("chat: broadcast: %w", err)
		}
		if err := sender.SendDirect(ctx, id, text); err != nil {
			report.Failed++
			observe.Logger(ctx).Error("failed to send broadcast", "user", id, "err", err)
		} else {
			report.Success++
		}
		if progress != nil && ((i+1)%progressEvery == 0 || i+1 == report.Total) {
			progress(fmt.Sprintf("📤 Broadcasting...\nProgress: %d/%d\n✅ Success: %d\n❌ Failed: %d",
				i+1, report.Total, report.Success, report.Failed))
		}
	}
	return report, nil
}
