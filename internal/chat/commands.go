package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/mikubot/internal/observe"
	"github.com/MrWong99/mikubot/internal/persona"
	"github.com/MrWong99/mikubot/internal/store"
)

// Command names.
const (
	CmdStart            = "start"
	CmdHelp             = "help"
	CmdStats            = "stats"
	CmdAdminStats       = "astats"
	CmdBroadcast        = "broadcast"
	CmdConfirmBroadcast = "confirm_broadcast"
	CmdBlock            = "block"
	CmdUnblock          = "unblock"
	CmdReloadStickers   = "reload_stickers"
	CmdStickerGuide     = "sticker_guide"
	CmdUploadStickers   = "upload_stickers"
)

// MaxStickerFile bounds an uploaded sticker table.
const MaxStickerFile = 1 << 20

// Command is a slash command invocation.
type Command struct {
	Name string

	// Args holds the whitespace separated arguments.
	Args []string

	From store.Profile

	// File is the uploaded document of commands that take one.
	File io.Reader

	// Progress, if set, receives intermediate status lines of long running
	// commands. Transports typically edit a status message with it.
	Progress func(text string)
}

// CommandSpec describes a command for transport registration.
type CommandSpec struct {
	Name        string
	Description string

	// Arg names the single free-text argument, or "" when there is none.
	Arg            string
	ArgDescription string
	ArgRequired    bool

	// File names the required file upload, or "" when there is none.
	File            string
	FileDescription string

	Admin bool
}

// Commands lists every command the service handles.
func Commands() []CommandSpec {
	return []CommandSpec{
		{Name: CmdStart, Description: "Start talking to Miku"},
		{Name: CmdHelp, Description: "Show the help message"},
		{Name: CmdStats, Description: "Your statistics and the global totals", Admin: true},
		{Name: CmdAdminStats, Description: "Detailed bot statistics", Admin: true},
		{Name: CmdBroadcast, Description: "Prepare a message to every user", Admin: true,
			Arg: "message", ArgDescription: "Text to broadcast", ArgRequired: true},
		{Name: CmdConfirmBroadcast, Description: "Send the pending broadcast", Admin: true},
		{Name: CmdBlock, Description: "Block a user", Admin: true,
			Arg: "user_id", ArgDescription: "Numeric user id", ArgRequired: true},
		{Name: CmdUnblock, Description: "Unblock a user", Admin: true,
			Arg: "user_id", ArgDescription: "Numeric user id", ArgRequired: true},
		{Name: CmdReloadStickers, Description: "Reload the sticker table", Admin: true},
		{Name: CmdStickerGuide, Description: "How to set up stickers", Admin: true},
		{Name: CmdUploadStickers, Description: "Replace the sticker table with an uploaded file", Admin: true,
			File: "file", FileDescription: "stickers.json or stickers.yaml"},
	}
}

func isAdminCommand(name string) bool {
	for _, c := range Commands() {
		if c.Name == name {
			return c.Admin
		}
	}
	return false
}

// HandleCommand runs cmd and returns the reply. Unknown commands yield an
// empty Outgoing.
func (s *Service) HandleCommand(ctx context.Context, cmd Command) Outgoing {
	ctx, span := observe.StartMessageSpan(ctx, cmd.From.ID, cmd.Name)
	defer span.End()

	if isAdminCommand(cmd.Name) && !s.IsAdmin(cmd.From.ID) {
		s.metrics.RecordCommand(ctx, cmd.Name, "denied")
		observe.Logger(ctx).Warn("non-admin attempted admin command", "user", cmd.From.ID, "command", cmd.Name)
		return Outgoing{Text: persona.AdminReject, Ephemeral: true}
	}

	out, err := s.runCommand(ctx, cmd)
	status := "ok"
	if err != nil {
		status = "error"
		observe.Logger(ctx).Error("command failed", "command", cmd.Name, "user", cmd.From.ID, "err", err)
	}
	s.metrics.RecordCommand(ctx, cmd.Name, status)
	return out
}

func (s *Service) runCommand(ctx context.Context, cmd Command) (Outgoing, error) {
	switch cmd.Name {
	case CmdStart:
		return s.start(ctx, cmd.From)
	case CmdHelp:
		return Outgoing{Text: persona.Help(s.IsAdmin(cmd.From.ID))}, nil
	case CmdStats:
		return s.userStats(ctx, cmd.From.ID)
	case CmdAdminStats:
		return s.adminStats(ctx)
	case CmdBroadcast:
		return s.prepareBroadcast(ctx, cmd.From.ID, strings.Join(cmd.Args, " "))
	case CmdConfirmBroadcast:
		return s.confirmBroadcast(ctx, cmd.From.ID, cmd.Progress)
	case CmdBlock:
		return s.setBlocked(ctx, cmd, true)
	case CmdUnblock:
		return s.setBlocked(ctx, cmd, false)
	case CmdReloadStickers:
		n, err := s.orch.ReloadMedia()
		if err != nil {
			return Outgoing{Text: fmt.Sprintf("❌ Failed to reload stickers: %v", err), Ephemeral: true}, err
		}
		observe.Logger(ctx).Info("stickers reloaded", "user", cmd.From.ID, "categories", n)
		return Outgoing{Text: fmt.Sprintf("✅ Stickers reloaded successfully!\nLoaded %d categories from %s", n, s.orch.MediaPath()), Ephemeral: true}, nil
	case CmdStickerGuide:
		return Outgoing{Text: s.orch.MediaGuide(), Ephemeral: true}, nil
	case CmdUploadStickers:
		return s.uploadStickers(ctx, cmd)
	default:
		return Outgoing{}, nil
	}
}

func (s *Service) start(ctx context.Context, p store.Profile) (Outgoing, error) {
	blocked, err := s.store.IsBlocked(ctx, p.ID)
	if err != nil {
		return Outgoing{Text: persona.Fallback}, fmt.Errorf("chat: start: %w", err)
	}
	if blocked {
		s.metrics.BlockedMessages.Add(ctx, 1)
		return Outgoing{Text: persona.Blocked}, nil
	}
	if err := s.store.UpsertUser(ctx, p, s.now()); err != nil {
		return Outgoing{Text: persona.Fallback}, fmt.Errorf("chat: start: %w", err)
	}
	name := store.User{Profile: p}.DisplayName()
	return Outgoing{Text: persona.Welcome(name)}, nil
}

func (s *Service) userStats(ctx context.Context, id string) (Outgoing, error) {
	user, err := s.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Outgoing{Text: "...I don't have any data on you yet."}, nil
	}
	if err != nil {
		return Outgoing{Text: persona.Fallback}, fmt.Errorf("chat: stats: %w", err)
	}
	st, err := s.store.Stats(ctx, s.now())
	if err != nil {
		return Outgoing{Text: persona.Fallback}, fmt.Errorf("chat: stats: %w", err)
	}
	return Outgoing{Text: fmt.Sprintf("📊 **Bot Statistics**\n\n"+
		"**Your Stats:**\n"+
		"Messages sent: %d\n"+
		"Member since: %s\n\n"+
		"**Global Stats:**\n"+
		"Total users: %d\n"+
		"Total messages: %d\n\n"+
		"...I guess you talk to me quite a bit yaar.\n\n"+
		"💡 *Tip: Use /astats for detailed admin statistics*",
		user.MessageCount, user.FirstSeen.UTC().Format("2006-01-02"), st.TotalUsers, st.TotalMessages)}, nil
}

func (s *Service) adminStats(ctx context.Context) (Outgoing, error) {
	st, err := s.store.Stats(ctx, s.now())
	if err != nil {
		return Outgoing{Text: persona.Fallback}, fmt.Errorf("chat: astats: %w", err)
	}
	var b strings.Builder
	b.WriteString("📊 **Bot Statistics (Admin Panel)**\n\n")
	b.WriteString("**User Statistics:**\n")
	fmt.Fprintf(&b, "👥 Total Users: %d\n", st.TotalUsers)
	fmt.Fprintf(&b, "📈 Active (24h): %d\n", st.Active24h)
	fmt.Fprintf(&b, "📊 Active (7d): %d\n", st.Active7d)
	fmt.Fprintf(&b, "🚫 Blocked: %d\n\n", st.Blocked)
	b.WriteString("**Message Statistics:**\n")
	fmt.Fprintf(&b, "💬 Total Messages: %d\n", st.TotalMessages)
	fmt.Fprintf(&b, "📨 Avg per User: %d\n\n", st.AveragePerUser())
	b.WriteString("**Top 5 Active Users:**\n")
	for i, u := range st.Top {
		handle := "No username"
		if u.Username != "" {
			handle = "@" + u.Username
		}
		fmt.Fprintf(&b, "%d. %s (%s): %d msgs\n", i+1, u.FirstName, handle, u.MessageCount)
	}
	rs := s.orch.Stats()
	b.WriteString("\n**Replies (since start):**\n")
	fmt.Fprintf(&b, "🤖 Backend: %s\n", s.orch.Backend())
	fmt.Fprintf(&b, "💬 Replies: %d (fallback: %d)\n", rs.Replies, rs.Failed)
	fmt.Fprintf(&b, "⏱️ Latency p50/p95: %s / %s\n", rs.Latency.P50.Round(time.Millisecond), rs.Latency.P95.Round(time.Millisecond))
	return Outgoing{Text: b.String(), Ephemeral: true}, nil
}

func (s *Service) uploadStickers(ctx context.Context, cmd Command) (Outgoing, error) {
	if cmd.File == nil {
		return Outgoing{Text: "Usage: `/upload_stickers <file>` with a .json or .yaml sticker table.", Ephemeral: true}, nil
	}
	data, err := io.ReadAll(io.LimitReader(cmd.File, MaxStickerFile+1))
	if err != nil {
		return Outgoing{Text: "❌ Could not read the uploaded file.", Ephemeral: true}, fmt.Errorf("chat: upload stickers: %w", err)
	}
	if len(data) > MaxStickerFile {
		return Outgoing{Text: fmt.Sprintf("❌ File too large. The limit is %d KiB.", MaxStickerFile>>10), Ephemeral: true}, nil
	}
	n, err := s.orch.ReplaceMedia(data)
	if err != nil {
		return Outgoing{Text: fmt.Sprintf("❌ Invalid sticker file: %v", err), Ephemeral: true}, nil
	}
	observe.Logger(ctx).Info("sticker table uploaded", "user", cmd.From.ID, "categories", n)
	where := s.orch.MediaPath()
	if where == "" {
		where = "memory"
	}
	return Outgoing{Text: fmt.Sprintf("✅ Stickers updated!\nLoaded %d categories into %s", n, where), Ephemeral: true}, nil
}

func (s *Service) setBlocked(ctx context.Context, cmd Command, blocked bool) (Outgoing, error) {
	if len(cmd.Args) == 0 {
		return Outgoing{Text: fmt.Sprintf("Usage: `/%s <user_id>`", cmd.Name), Ephemeral: true}, nil
	}
	id := cmd.Args[0]
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return Outgoing{Text: "❌ Invalid user ID. Must be a number.", Ephemeral: true}, nil
	}
	if err := s.store.SetBlocked(ctx, id, blocked, s.now()); err != nil {
		return Outgoing{Text: persona.Fallback, Ephemeral: true}, fmt.Errorf("chat: %s %s: %w", cmd.Name, id, err)
	}
	verb := "blocked"
	if !blocked {
		verb = "unblocked"
	}
	observe.Logger(ctx).Info("admin changed block flag", "admin", cmd.From.ID, "user", id, "blocked", blocked)
	return Outgoing{Text: fmt.Sprintf("✅ User `%s` has been %s.", id, verb), Ephemeral: true}, nil
}
