package commands_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/mikubot/internal/chat"
	chatmock "github.com/MrWong99/mikubot/internal/chat/mock"
	"github.com/MrWong99/mikubot/internal/discord"
	"github.com/MrWong99/mikubot/internal/discord/commands"
	"github.com/MrWong99/mikubot/internal/discord/mock"
	enginemock "github.com/MrWong99/mikubot/internal/engine/mock"
	"github.com/MrWong99/mikubot/internal/orchestrator"
	"github.com/MrWong99/mikubot/internal/persona"
	"github.com/MrWong99/mikubot/internal/sticker"
	"github.com/MrWong99/mikubot/internal/store"
	"github.com/MrWong99/mikubot/internal/store/memstore"
)

func setup(t *testing.T, opts ...chat.Option) (*discord.CommandRouter, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	base := []chat.Option{chat.WithAdmins("owner"), chat.WithBroadcastPace(0)}
	svc := chat.New(st, orchestrator.New(&enginemock.Backend{}, nil), append(base, opts...)...)
	r := discord.NewCommandRouter()
	commands.NewChatCommands(svc).Register(r)
	return r, st
}

func slash(userID, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:   discordgo.InteractionApplicationCommand,
		Member: &discordgo.Member{User: &discordgo.User{ID: userID, Username: "u" + userID}},
		Data:   discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}}
}

func stringOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func TestDefinitions(t *testing.T) {
	t.Parallel()

	r, _ := setup(t)
	cmds := r.ApplicationCommands()
	if len(cmds) != len(chat.Commands()) {
		t.Fatalf("registered %d commands, want %d", len(cmds), len(chat.Commands()))
	}
	for _, c := range cmds {
		if c.Name == chat.CmdBlock {
			if len(c.Options) != 1 || c.Options[0].Name != "user_id" || !c.Options[0].Required {
				t.Errorf("block options = %+v", c.Options)
			}
		}
		if c.Name == chat.CmdUploadStickers {
			if len(c.Options) != 1 || c.Options[0].Type != discordgo.ApplicationCommandOptionAttachment || !c.Options[0].Required {
				t.Errorf("upload options = %+v", c.Options)
			}
		}
		if c.Name == chat.CmdHelp && len(c.Options) != 0 {
			t.Errorf("help options = %+v", c.Options)
		}
	}
}

func TestHelpIsPublic(t *testing.T) {
	t.Parallel()

	r, _ := setup(t)
	api := &mock.Session{}
	r.Handle(context.Background(), api, slash("1", chat.CmdHelp))

	resp := api.LastResponse()
	if resp == nil || resp.Data.Content != persona.Help(false) {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral != 0 {
		t.Error("help should be visible")
	}
}

func TestAdminCommandRejected(t *testing.T) {
	t.Parallel()

	r, _ := setup(t)
	api := &mock.Session{}
	r.Handle(context.Background(), api, slash("1", chat.CmdAdminStats))

	resp := api.LastResponse()
	if resp == nil || resp.Data.Content != persona.AdminReject || resp.Data.Flags != discordgo.MessageFlagsEphemeral {
		t.Fatalf("response = %+v", resp)
	}
}

func TestBlockWithOption(t *testing.T) {
	t.Parallel()

	r, st := setup(t)
	api := &mock.Session{}
	r.Handle(context.Background(), api, slash("owner", chat.CmdBlock, stringOpt("user_id", "123")))

	if resp := api.LastResponse(); resp == nil || resp.Data.Content != "✅ User `123` has been blocked." {
		t.Fatalf("response = %+v", resp)
	}
	if blocked, _ := st.IsBlocked(context.Background(), "123"); !blocked {
		t.Error("user not blocked")
	}
}

func TestConfirmBroadcastEditsDeferredReply(t *testing.T) {
	t.Parallel()

	sender := &chatmock.Sender{}
	r, st := setup(t, chat.WithSender(sender))
	ctx := context.Background()
	for _, id := range []string{"1", "2"} {
		if err := st.UpsertUser(ctx, store.Profile{ID: id}, time0()); err != nil {
			t.Fatal(err)
		}
	}

	api := &mock.Session{}
	r.Handle(ctx, api, slash("owner", chat.CmdBroadcast, stringOpt("message", "big news")))
	if resp := api.LastResponse(); resp == nil || !strings.Contains(resp.Data.Content, "Will be sent to: 2 users") {
		t.Fatalf("broadcast response = %+v", resp)
	}

	r.Handle(ctx, api, slash("owner", chat.CmdConfirmBroadcast))
	if resp := api.LastResponse(); resp.Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Errorf("confirm response type = %v, want deferred", resp.Type)
	}
	edits := api.Edits()
	if len(edits) == 0 {
		t.Fatal("no edits")
	}
	if got := *edits[len(edits)-1].Content; !strings.HasPrefix(got, "✅ **Broadcast Complete!**") {
		t.Errorf("final edit = %q", got)
	}
	if len(sender.Calls()) != 2 {
		t.Errorf("sends = %d, want 2", len(sender.Calls()))
	}
}

func TestUploadStickers(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "cool: c1\nhappy: [h1, h2]\n")
	}))
	t.Cleanup(srv.Close)

	sel, err := sticker.NewSelector("")
	if err != nil {
		t.Fatal(err)
	}
	svc := chat.New(memstore.New(), orchestrator.New(&enginemock.Backend{}, sel), chat.WithAdmins("owner"))
	r := discord.NewCommandRouter()
	commands.NewChatCommands(svc).Register(r)
	ctx := context.Background()

	upload := func(userID, filename string) *discordgo.InteractionCreate {
		i := slash(userID, chat.CmdUploadStickers)
		data := i.Data.(discordgo.ApplicationCommandInteractionData)
		data.Resolved = &discordgo.ApplicationCommandInteractionDataResolved{
			Attachments: map[string]*discordgo.MessageAttachment{
				"a1": {ID: "a1", Filename: filename, URL: srv.URL + "/" + filename, Size: 32},
			},
		}
		i.Data = data
		return i
	}

	api := &mock.Session{}
	r.Handle(ctx, api, upload("1", "stickers.yaml"))
	if resp := api.LastResponse(); resp == nil || resp.Data.Content != persona.AdminReject {
		t.Fatalf("non-admin response = %+v", resp)
	}

	api = &mock.Session{}
	r.Handle(ctx, api, upload("owner", "stickers.txt"))
	if resp := api.LastResponse(); resp == nil || !strings.HasPrefix(resp.Data.Content, "❌ Unsupported file type") {
		t.Fatalf("txt response = %+v", resp)
	}

	api = &mock.Session{}
	r.Handle(ctx, api, upload("owner", "stickers.yaml"))
	if resp := api.LastResponse(); resp.Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Errorf("upload response type = %v, want deferred", resp.Type)
	}
	edits := api.Edits()
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	if got := *edits[0].Content; got != "✅ Stickers updated!\nLoaded 2 categories into memory" {
		t.Errorf("edit = %q", got)
	}
	if sel.Len() != 2 {
		t.Errorf("selector holds %d categories, want 2", sel.Len())
	}
}

func time0() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
