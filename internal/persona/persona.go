// Package persona holds Miku's character definition: the system prompt used
// by the language-model backend and the fixed in-character lines the bot
// sends outside normal conversation.
package persona

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed system_prompt.md
var systemPrompt string

// SystemPrompt returns the character system prompt.
func SystemPrompt() string { return systemPrompt }

// WarmthNote returns the suffix appended to the system prompt telling the
// model how many messages the user has sent so far.
func WarmthNote(count int) string {
	return fmt.Sprintf("\n\n[Internal Note: User has sent %d messages. Adjust warmth accordingly based on the Progressive Warmth System.]", count)
}

// Fixed replies.
const (
	Fallback    = "...Sorry, I'm having trouble thinking right now. Try again later."
	Blocked     = "...I'm not talking to you right now."
	AdminReject = "...You don't have permission to use this command."
)

// RateLimited tells the user how many whole seconds to wait.
func RateLimited(waitSeconds int) string {
	return fmt.Sprintf("...Thoda slow down karo yaar. Too many messages.\nWait for %d seconds.", waitSeconds)
}

// Welcome greets a user who starts a conversation.
func Welcome(name string) string {
	return fmt.Sprintf("...Hello, %s.\n\n"+
		"I'm Miku Nakano. What do you want?\n\n"+
		"You can talk to me normally, and I'll respond. "+
		"If you need help, use /help.", name)
}

// Help returns the help text. Admin commands are listed only when admin is
// true.
func Help(admin bool) string {
	var b strings.Builder
	b.WriteString("🎧 **Miku Nakano Bot - Help**\n\n")
	b.WriteString("Just talk to me normally and I'll respond in Hinglish. I remember our recent conversations.\n\n")
	b.WriteString("**Commands:**\n")
	b.WriteString("/start - Start the bot\n")
	b.WriteString("/help - Show this help message\n")
	if admin {
		b.WriteString("/stats - View bot statistics\n\n")
		b.WriteString("**Admin Commands:**\n")
		b.WriteString("/astats - Detailed bot statistics\n")
		b.WriteString("/broadcast <message> - Broadcast to all users\n")
		b.WriteString("/confirm_broadcast - Confirm pending broadcast\n")
		b.WriteString("/block <user_id> - Block a user\n")
		b.WriteString("/unblock <user_id> - Unblock a user\n")
		b.WriteString("/sticker_guide - Guide to setup stickers\n")
		b.WriteString("/reload_stickers - Reload the sticker table\n")
		b.WriteString("/upload_stickers <file> - Replace the sticker table\n\n")
		b.WriteString("**Sticker Setup:**\n")
		b.WriteString("Just send any sticker to get its id!\n")
	}
	b.WriteString("\n**About Me:**\n")
	b.WriteString("I'm Miku Nakano from The Quintessential Quintuplets. I love history, especially the Sengoku period, and I'm always listening to music through my headphones.\n\n")
	b.WriteString("...That's all you need to know yaar.")
	return b.String()
}
