package sticker

import (
	"fmt"
	"strings"
)

// Guide returns the admin help text explaining the table file format,
// including how many categories are currently loaded.
func (s *Selector) Guide() string {
	var b strings.Builder
	b.WriteString("🎨 **How to Setup Miku Stickers:**\n\n")
	fmt.Fprintf(&b, "Your bot uses `%s` for stickers.\n\n", s.path)
	b.WriteString("**JSON Format:**\n```json\n")
	b.WriteString(`{
  "greeting": ["749043879713767464", "749043879713767465"],
  "happy": ["749043879713767466"],
  "thinking": "749043879713767467",
  "annoyed": ["749043879713767468"],
  "shy": ["749043879713767469"],
  "cool": ["749043879713767470"],
  "studying": ["749043879713767471"],
  "music": ["749043879713767472"]
}`)
	b.WriteString("\n```\n\n**How to add stickers:**\n")
	b.WriteString("1. Send any sticker to the bot\n")
	b.WriteString("2. Copy the sticker id from the response\n")
	fmt.Fprintf(&b, "3. Add it to your `%s` file\n", s.path)
	b.WriteString("4. Use `/reload_stickers` to reload without restart\n\n")
	b.WriteString("**Notes:**\n")
	b.WriteString("- You can use arrays for multiple stickers per emotion (bot picks randomly)\n")
	b.WriteString("- Or use a single string for one sticker per emotion\n")
	fmt.Fprintf(&b, "- Currently loaded: %d categories\n\n", s.Len())
	b.WriteString("**Available emotions:**\n")
	b.WriteString("- greeting (for hi/hello)\n")
	b.WriteString("- thinking (for questions)\n")
	b.WriteString("- happy (positive messages)\n")
	b.WriteString("- annoyed (negative/irritating)\n")
	b.WriteString("- shy (compliments/love)\n")
	b.WriteString("- cool (default/neutral)\n")
	b.WriteString("- studying (study/exam topics)\n")
	b.WriteString("- music (music related)\n")
	return b.String()
}
