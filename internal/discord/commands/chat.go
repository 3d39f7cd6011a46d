// Package commands binds the chat service's commands to Discord slash
// commands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/mikubot/internal/chat"
	"github.com/MrWong99/mikubot/internal/discord"
)

// ChatCommands holds the dependencies for the chat slash commands.
type ChatCommands struct {
	svc    *chat.Service
	client *http.Client
}

// NewChatCommands creates a ChatCommands handler. Uploaded files are fetched
// with http.DefaultClient.
func NewChatCommands(svc *chat.Service) *ChatCommands {
	return &ChatCommands{svc: svc, client: http.DefaultClient}
}

// Register registers every chat command with the router.
func (cc *ChatCommands) Register(router *discord.CommandRouter) {
	for _, spec := range chat.Commands() {
		router.RegisterCommand(Definition(spec), cc.handle)
	}
}

// Definition converts a command spec into a Discord application command.
func Definition(spec chat.CommandSpec) *discordgo.ApplicationCommand {
	cmd := &discordgo.ApplicationCommand{
		Name:        spec.Name,
		Description: spec.Description,
	}
	if spec.Arg != "" {
		cmd.Options = append(cmd.Options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        spec.Arg,
			Description: spec.ArgDescription,
			Required:    spec.ArgRequired,
		})
	}
	if spec.File != "" {
		cmd.Options = append(cmd.Options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionAttachment,
			Name:        spec.File,
			Description: spec.FileDescription,
			Required:    true,
		})
	}
	return cmd
}

func (cc *ChatCommands) handle(ctx context.Context, api discord.API, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	cmd := chat.Command{
		Name: data.Name,
		From: discord.ProfileOf(discord.InteractionUser(i)),
	}
	for _, opt := range data.Options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			cmd.Args = append(cmd.Args, strings.Fields(opt.StringValue())...)
		}
	}

	if cmd.Name == chat.CmdUploadStickers && cc.svc.IsAdmin(cmd.From.ID) {
		cc.upload(ctx, api, i, cmd)
		return
	}

	if cmd.Name == chat.CmdConfirmBroadcast && cc.svc.IsAdmin(cmd.From.ID) {
		discord.DeferReply(api, i)
		cmd.Progress = func(text string) { discord.EditReply(api, i, text) }
		out := cc.svc.HandleCommand(ctx, cmd)
		discord.EditReply(api, i, out.Text)
		return
	}

	out := cc.svc.HandleCommand(ctx, cmd)
	if out.Text == "" {
		discord.RespondEphemeral(api, i, "Unknown command.")
		return
	}
	discord.Respond(api, i, out.Text, out.Ephemeral)
}

func (cc *ChatCommands) upload(ctx context.Context, api discord.API, i *discordgo.InteractionCreate, cmd chat.Command) {
	att := FirstAttachment(i)
	if att == nil {
		out := cc.svc.HandleCommand(ctx, cmd)
		discord.RespondEphemeral(api, i, out.Text)
		return
	}
	if DetectFormat(att.Filename) == FormatUnknown {
		discord.RespondEphemeral(api, i, "❌ Unsupported file type. Upload a .json, .yaml or .yml file.")
		return
	}
	if att.Size > chat.MaxStickerFile {
		discord.RespondEphemeral(api, i, fmt.Sprintf("❌ File too large. The limit is %d KiB.", chat.MaxStickerFile>>10))
		return
	}

	discord.DeferReply(api, i)
	body, err := DownloadAttachment(ctx, cc.client, att)
	if err != nil {
		slog.Warn("commands: sticker upload failed", "err", err, "file", att.Filename)
		discord.EditReply(api, i, "❌ Could not download the file.")
		return
	}
	defer body.Close()

	cmd.File = body
	out := cc.svc.HandleCommand(ctx, cmd)
	discord.EditReply(api, i, out.Text)
}
