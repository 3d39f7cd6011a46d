package chat_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/mikubot/internal/chat"
	chatmock "github.com/MrWong99/mikubot/internal/chat/mock"
	enginemock "github.com/MrWong99/mikubot/internal/engine/mock"
	"github.com/MrWong99/mikubot/internal/orchestrator"
	"github.com/MrWong99/mikubot/internal/persona"
	"github.com/MrWong99/mikubot/internal/sticker"
	"github.com/MrWong99/mikubot/internal/store"
	"github.com/MrWong99/mikubot/internal/store/memstore"
)

func admin() store.Profile { return store.Profile{ID: "admin", FirstName: "Ichika"} }

func TestHandleCommand_AdminOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	user := store.Profile{ID: "1"}
	for _, c := range chat.Commands() {
		out := f.svc.HandleCommand(context.Background(), chat.Command{Name: c.Name, From: user})
		if c.Admin {
			if out.Text != persona.AdminReject || !out.Ephemeral {
				t.Errorf("%s: non-admin got %q", c.Name, out.Text)
			}
		} else if out.Text == persona.AdminReject {
			t.Errorf("%s: rejected for non-admin", c.Name)
		}
	}
}

func TestHandleCommand_StartAndHelp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	out := f.svc.HandleCommand(ctx, chat.Command{Name: chat.CmdStart, From: store.Profile{ID: "1", FirstName: "Futaro"}})
	if out.Text != persona.Welcome("Futaro") {
		t.Errorf("start = %q", out.Text)
	}
	if _, err := f.store.GetUser(ctx, "1"); err != nil {
		t.Errorf("start did not register the user: %v", err)
	}

	if out := f.svc.HandleCommand(ctx, chat.Command{Name: chat.CmdHelp, From: store.Profile{ID: "1"}}); out.Text != persona.Help(false) {
		t.Error("user help mismatch")
	}
	if out := f.svc.HandleCommand(ctx, chat.Command{Name: chat.CmdHelp, From: store.Profile{ID: "owner"}}); out.Text != persona.Help(true) {
		t.Error("owner help mismatch")
	}

	if err := f.store.SetBlocked(ctx, "2", true, epoch); err != nil {
		t.Fatal(err)
	}
	if out := f.svc.HandleCommand(ctx, chat.Command{Name: chat.CmdStart, From: store.Profile{ID: "2"}}); out.Text != persona.Blocked {
		t.Errorf("blocked start = %q", out.Text)
	}
}

func TestHandleCommand_Stats(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	out := f.svc.HandleCommand(ctx, chat.Command{Name: chat.CmdStats, From: admin()})
	if out.Text != "...I don't have any data on you yet." {
		t.Errorf("stats without record = %q", out.Text)
	}

	for _, in := range []chat.Incoming{
		{Profile: store.Profile{ID: "10", FirstName: "Futaro", Username: "futaro"}, Text: "a"},
		{Profile: store.Profile{ID: "10", FirstName: "Futaro", Username: "futaro"}, Text: "b"},
		{Profile: store.Profile{ID: "11", FirstName: "Yotsuba"}, Text: "c"},
		{Profile: admin(), Text: "d"},
	} {
		if _, err := f.svc.HandleMessage(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	out = f.svc.HandleCommand(ctx, chat.Command{Name: chat.CmdStats, From: admin()})
	for _, want := range []string{"Messages sent: 1", "Member since: 2026-03-01", "Total users: 3", "Total messages: 4"} {
		if !strings.Contains(out.Text, want) {
			t.Errorf("stats missing %q in %q", want, out.Text)
		}
	}

	out = f.svc.HandleCommand(ctx, chat.Command{Name: chat.CmdAdminStats, From: admin()})
	for _, want := range []string{
		"👥 Total Users: 3",
		"📈 Active (24h): 3",
		"💬 Total Messages: 4",
		"📨 Avg per User: 1",
		"1. Futaro (@futaro): 2 msgs",
		"(No username): 1 msgs",
		"**Replies (since start):**",
	} {
		if !strings.Contains(out.Text, want) {
			t.Errorf("astats missing %q in %q", want, out.Text)
		}
	}
}

func TestHandleCommand_BlockUnblock(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  string
		args []string
		want string
	}{
		{"usage", chat.CmdBlock, nil, "Usage: `/block <user_id>`"},
		{"invalid", chat.CmdBlock, []string{"abc"}, "❌ Invalid user ID. Must be a number."},
		{"block", chat.CmdBlock, []string{"42"}, "✅ User `42` has been blocked."},
		{"unblock usage", chat.CmdUnblock, nil, "Usage: `/unblock <user_id>`"},
	}
	for _, tc := range tests {
		out := f.svc.HandleCommand(ctx, chat.Command{Name: tc.cmd, Args: tc.args, From: admin()})
		if out.Text != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, out.Text, tc.want)
		}
	}
	if blocked, _ := f.store.IsBlocked(ctx, "42"); !blocked {
		t.Fatal("user 42 not blocked")
	}

	out := f.svc.HandleCommand(ctx, chat.Command{Name: chat.CmdUnblock, Args: []string{"42"}, From: admin()})
	if out.Text != "✅ User `42` has been unblocked." {
		t.Errorf("unblock = %q", out.Text)
	}
	if blocked, _ := f.store.IsBlocked(ctx, "42"); blocked {
		t.Error("user 42 still blocked")
	}
}

func TestHandleCommand_Broadcast(t *testing.T) {
	t.Parallel()

	sender := &chatmock.Sender{Fail: map[string]error{"3": errors.New("dm closed")}}
	f := newFixture(t, chat.WithSender(sender))
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3", "4"} {
		if err := f.store.UpsertUser(ctx, store.Profile{ID: id}, epoch); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.store.SetBlocked(ctx, "4", true, epoch); err != nil {
		t.Fatal(err)
	}

	out := f.svc.HandleCommand(ctx, chat.Command{Name: chat.CmdConfirmBroadcast, From: admin()})
	if out.Text != "No pending broadcast found. Use `/broadcast` first." {
		t.Errorf("confirm without pending = %q", out.Text)
	}
	out = f.svc.HandleCommand(ctx, chat.Command{Name: chat.CmdBroadcast, From: admin()})
	if !strings.HasPrefix(out.Text, "**Broadcast Usage:**") {
		t.Errorf("usage = %q", out.Text)
	}

	out = f.svc.HandleCommand(ctx, chat.Command{Name: chat.CmdBroadcast, Args: []string{"Update", "soon"}, From: admin()})
	want := "📢 **Broadcast Confirmation**\n\nMessage: Update soon\n\nWill be sent to: 3 users\n\nReply with `/confirm_broadcast` to proceed."
	if out.Text != want {
		t.Errorf("confirmation = %q", out.Text)
	}
	if len(sender.Calls()) != 0 {
		t.Fatal("broadcast sent before confirmation")
	}

	var progress []string
	out = f.svc.HandleCommand(ctx, chat.Command{
		Name:     chat.CmdConfirmBroadcast,
		From:     admin(),
		Progress: func(s string) { progress = append(progress, s) },
	})
	if want := "✅ **Broadcast Complete!**\n\n📊 Total: 3\n✅ Success: 2\n❌ Failed: 1"; out.Text != want {
		t.Errorf("report = %q", out.Text)
	}
	calls := sender.Calls()
	if len(calls) != 3 || calls[0].Text != "Update soon" {
		t.Errorf("sends = %+v", calls)
	}
	if len(progress) != 2 {
		t.Errorf("progress = %q", progress)
	}

	out = f.svc.HandleCommand(ctx, chat.Command{Name: chat.CmdConfirmBroadcast, From: admin()})
	if !strings.HasPrefix(out.Text, "No pending broadcast") {
		t.Errorf("second confirm = %q", out.Text)
	}
}

func TestBroadcast_PacedAndCancellable(t *testing.T) {
	t.Parallel()

	sender := &chatmock.Sender{}
	f := newFixture(t, chat.WithSender(sender), chat.WithBroadcastPace(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	report, err := f.svc.Broadcast(ctx, "hi", []string{"1", "2", "3"}, nil)
	if err == nil {
		t.Fatal("expected the pacer to give up before the deadline")
	}
	if report.Success != 1 || len(sender.Calls()) != 1 {
		t.Errorf("report = %+v, sends = %d", report, len(sender.Calls()))
	}
}

func TestHandleCommand_Stickers(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stickers.json")
	if err := os.WriteFile(path, []byte(`{"cool": "c1"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	sel, err := sticker.NewSelector(path)
	if err != nil {
		t.Fatal(err)
	}
	svc := chat.New(memstore.New(), orchestrator.New(&enginemock.Backend{}, sel), chat.WithAdmins("owner"))
	ctx := context.Background()

	if err := os.WriteFile(path, []byte(`{"cool": "c1", "happy": ["h1", "h2"]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	out := svc.HandleCommand(ctx, chat.Command{Name: chat.CmdReloadStickers, From: store.Profile{ID: "owner"}})
	if want := "✅ Stickers reloaded successfully!\nLoaded 2 categories from " + path; out.Text != want {
		t.Errorf("reload = %q", out.Text)
	}

	if err := os.WriteFile(path, []byte(`{"cool": [`), 0o644); err != nil {
		t.Fatal(err)
	}
	out = svc.HandleCommand(ctx, chat.Command{Name: chat.CmdReloadStickers, From: store.Profile{ID: "owner"}})
	if !strings.HasPrefix(out.Text, "❌ Failed to reload stickers: ") {
		t.Errorf("failed reload = %q", out.Text)
	}

	out = svc.HandleCommand(ctx, chat.Command{Name: chat.CmdStickerGuide, From: store.Profile{ID: "owner"}})
	if !strings.Contains(out.Text, "Currently loaded: 2 categories") {
		t.Errorf("guide = %q", out.Text)
	}
}

func TestHandleCommand_UploadStickers(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stickers.json")
	sel, err := sticker.NewSelector(path)
	if err != nil {
		t.Fatal(err)
	}
	svc := chat.New(memstore.New(), orchestrator.New(&enginemock.Backend{}, sel), chat.WithAdmins("owner"))
	ctx := context.Background()
	owner := store.Profile{ID: "owner"}

	tests := []struct {
		name string
		file io.Reader
		want string
	}{
		{name: "no file", want: "Usage: `/upload_stickers <file>`"},
		{name: "too large", file: strings.NewReader(strings.Repeat("x", chat.MaxStickerFile+1)), want: "❌ File too large."},
		{name: "invalid", file: strings.NewReader(`{"cool": [`), want: "❌ Invalid sticker file: "},
		{name: "valid", file: strings.NewReader(`{"cool": "c1", "sad": ["s1"]}`), want: "✅ Stickers updated!\nLoaded 2 categories into " + path},
	}
	for _, tt := range tests {
		out := svc.HandleCommand(ctx, chat.Command{Name: chat.CmdUploadStickers, From: owner, File: tt.file})
		if !strings.HasPrefix(out.Text, tt.want) {
			t.Errorf("%s: got %q, want prefix %q", tt.name, out.Text, tt.want)
		}
	}

	if got := sel.Pick("sad"); got != "s1" {
		t.Errorf("Pick(sad) = %q after upload", got)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("uploaded table not written: %v", err)
	}
	if !strings.Contains(string(data), `"sad"`) {
		t.Errorf("file = %s", data)
	}
}
