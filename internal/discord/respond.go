package discord

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

// MaxMessageLength is Discord's content limit in characters.
const MaxMessageLength = 2000

// Respond sends a text response to an interaction.
func Respond(api API, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: truncate(content)}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		slog.Warn("discord: failed to send response", "err", err)
	}
}

// RespondEphemeral sends an ephemeral text response to an interaction.
func RespondEphemeral(api API, i *discordgo.InteractionCreate, content string) {
	Respond(api, i, content, true)
}

// DeferReply sends a deferred ephemeral response (for long-running commands).
func DeferReply(api API, i *discordgo.InteractionCreate) {
	err := api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("discord: failed to defer reply", "err", err)
	}
}

// EditReply replaces the content of a deferred or earlier response.
func EditReply(api API, i *discordgo.InteractionCreate, content string) {
	content = truncate(content)
	if _, err := api.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		slog.Warn("discord: failed to edit response", "err", err)
	}
}

// SplitMessage cuts text into chunks that fit [MaxMessageLength], preferring
// line breaks. Empty text yields no chunks.
func SplitMessage(text string) []string {
	var parts []string
	for text != "" {
		if utf8.RuneCountInString(text) <= MaxMessageLength {
			parts = append(parts, text)
			break
		}
		cut := byteOffset(text, MaxMessageLength)
		if nl := strings.LastIndexByte(text[:cut], '\n'); nl > 0 {
			cut = nl + 1
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	return parts
}

func truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxMessageLength {
		return text
	}
	return text[:byteOffset(text, MaxMessageLength-1)] + "…"
}

// byteOffset returns the byte index of the n-th rune of s.
func byteOffset(s string, n int) int {
	i := 0
	for off := range s {
		if i == n {
			return off
		}
		i++
	}
	return len(s)
}
