// Package discord is the Discord transport of the chat bot. It owns the
// discordgo.Session lifecycle, feeds direct messages and mentions to the
// chat service, and routes slash command interactions to registered
// handlers.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/mikubot/internal/chat"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token without the "Bot " prefix.
	Token string `yaml:"token"`

	// GuildID limits slash command registration to one guild. Empty
	// registers the commands globally.
	GuildID string `yaml:"guild_id"`
}

// API is the subset of *discordgo.Session the transport calls. Tests
// substitute [mock.Session].
//
// [mock.Session]: github.com/MrWong99/mikubot/internal/discord/mock
type API interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ API = (*discordgo.Session)(nil)

// Bot owns the Discord gateway connection.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	messages  *MessageHandler
	guildID   string
	commands  []*discordgo.ApplicationCommand
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

var _ chat.Sender = (*Bot)(nil)

// New creates a Bot, connects to Discord, and registers the message and
// interaction handlers. Handlers run under a context derived from ctx that
// is cancelled by Close.
func New(ctx context.Context, cfg Config, svc *chat.Service) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	// Handlers run in gateway order so messages enter the per-user queue in
	// the order they arrived; the slow work is moved to goroutines below.
	session.SyncEvents = true
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	ctx, cancel := context.WithCancel(ctx)
	b := &Bot{
		session: session,
		router:  NewCommandRouter(),
		guildID: cfg.GuildID,
		ctx:     ctx,
		cancel:  cancel,
	}
	b.messages = NewMessageHandler(svc)

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		go b.router.Handle(b.ctx, s, i)
	})
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if run := b.messages.Dispatch(s, s.State.User.ID, m); run != nil {
			go run(b.ctx)
		}
	})

	if err := session.Open(); err != nil {
		cancel()
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return b, nil
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// SendDirect opens a DM channel with userID and sends text.
func (b *Bot) SendDirect(_ context.Context, userID, text string) error {
	b.mu.RLock()
	s := b.session
	b.mu.RUnlock()
	return SendDirect(s, userID, text)
}

// SendDirect sends text to userID over api.
func SendDirect(api API, userID, text string) error {
	ch, err := api.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("discord: open dm with %s: %w", userID, err)
	}
	for _, part := range SplitMessage(text) {
		if _, err := api.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{Content: part}); err != nil {
			return fmt.Errorf("discord: send dm to %s: %w", userID, err)
		}
	}
	return nil
}

// Ping reports whether the gateway connection is up.
func (b *Bot) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil || !b.session.DataReady {
		return errors.New("discord: gateway not ready")
	}
	return nil
}

// Run registers slash commands with the Discord API and blocks until
// ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered), "guild", b.guildID)
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord. Guild scoped commands are unregistered;
// global ones are left in place because they take long to propagate.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.cancel()
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil && b.guildID != "" && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}
