package discord

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/mikubot/internal/chat"
	"github.com/MrWong99/mikubot/internal/store"
)

// MessageHandler answers direct messages and guild messages that mention
// the bot.
type MessageHandler struct {
	svc *chat.Service
}

// NewMessageHandler returns a MessageHandler backed by svc.
func NewMessageHandler(svc *chat.Service) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// Handle processes one gateway message and sends the reply. botID is the
// bot's own user id.
func (h *MessageHandler) Handle(ctx context.Context, api API, botID string, m *discordgo.MessageCreate) {
	if run := h.Dispatch(api, botID, m); run != nil {
		run(ctx)
	}
}

// Dispatch filters m and, for messages the bot answers, reserves the
// author's place in the chat service's per-user queue. It returns nil for
// ignored messages. Dispatch must be called in gateway order; the returned
// function answers the message and may run on its own goroutine.
func (h *MessageHandler) Dispatch(api API, botID string, m *discordgo.MessageCreate) func(context.Context) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == botID {
		return nil
	}
	direct := m.GuildID == ""
	if !direct && !mentions(m.Mentions, botID) {
		return nil
	}

	in := chat.Incoming{
		Profile: ProfileOf(m.Author),
		Text:    StripMention(m.Content, botID),
	}

	if in.Text == "" && len(m.StickerItems) > 0 {
		in.StickerID = m.StickerItems[0].ID
		in.StickerName = m.StickerItems[0].Name
		return func(ctx context.Context) {
			if out := h.svc.HandleSticker(ctx, in); out.Text != "" {
				h.send(api, m, out)
			}
		}
	}
	if in.Text == "" {
		return nil
	}

	in.Typing = func() {
		if err := api.ChannelTyping(m.ChannelID); err != nil {
			slog.Debug("discord: typing indicator failed", "channel", m.ChannelID, "err", err)
		}
	}
	answer := h.svc.Enqueue(in)
	return func(ctx context.Context) {
		out, err := answer(ctx)
		if err != nil {
			slog.Warn("discord: message handled with error", "user", in.ID, "err", err)
		}
		h.send(api, m, out)
	}
}

func (h *MessageHandler) send(api API, m *discordgo.MessageCreate, out chat.Outgoing) {
	if out.StickerID != "" {
		_, err := api.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
			StickerIDs: []string{out.StickerID},
		})
		if err != nil {
			slog.Warn("discord: failed to send sticker", "channel", m.ChannelID, "sticker", out.StickerID, "err", err)
		}
	}
	for n, part := range SplitMessage(out.Text) {
		msg := &discordgo.MessageSend{Content: part}
		if n == 0 && m.GuildID != "" {
			msg.Reference = m.Reference()
		}
		if _, err := api.ChannelMessageSendComplex(m.ChannelID, msg); err != nil {
			slog.Warn("discord: failed to send reply", "channel", m.ChannelID, "err", err)
			return
		}
	}
}

// ProfileOf maps a Discord user to the stored profile. The global display
// name serves as the first name.
func ProfileOf(u *discordgo.User) store.Profile {
	if u == nil {
		return store.Profile{}
	}
	first := u.GlobalName
	if first == "" {
		first = u.Username
	}
	return store.Profile{ID: u.ID, Username: u.Username, FirstName: first}
}

// InteractionUser returns the invoking user of an interaction. Guild
// interactions carry it on Member, DM interactions on User.
func InteractionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// StripMention removes mentions of botID and surrounding whitespace.
func StripMention(content, botID string) string {
	if botID != "" {
		content = strings.ReplaceAll(content, "<@"+botID+">", "")
		content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	}
	return strings.TrimSpace(content)
}

func mentions(users []*discordgo.User, id string) bool {
	return slices.ContainsFunc(users, func(u *discordgo.User) bool { return u != nil && u.ID == id })
}
