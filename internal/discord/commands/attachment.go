package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/mikubot/internal/chat"
)

// AttachmentFormat identifies the file format of an uploaded sticker table.
type AttachmentFormat int

const (
	// FormatUnknown means the file extension was not recognised.
	FormatUnknown AttachmentFormat = iota

	// FormatYAML indicates a .yaml or .yml file.
	FormatYAML

	// FormatJSON indicates a .json file.
	FormatJSON
)

// String returns a human-readable label for the format.
func (f AttachmentFormat) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// DetectFormat returns the AttachmentFormat based on a filename's extension.
func DetectFormat(filename string) AttachmentFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatUnknown
	}
}

// FirstAttachment returns the first attachment resolved for an application
// command, or nil when there is none.
func FirstAttachment(i *discordgo.InteractionCreate) *discordgo.MessageAttachment {
	if i.Type != discordgo.InteractionApplicationCommand {
		return nil
	}
	data := i.ApplicationCommandData()
	if data.Resolved == nil || len(data.Resolved.Attachments) == 0 {
		return nil
	}
	for _, a := range data.Resolved.Attachments {
		return a
	}
	return nil
}

// DownloadAttachment fetches an attachment. The returned body yields at most
// chat.MaxStickerFile+1 bytes so callers can detect oversized files. The
// caller must close it.
func DownloadAttachment(ctx context.Context, client *http.Client, att *discordgo.MessageAttachment) (io.ReadCloser, error) {
	if att == nil {
		return nil, fmt.Errorf("commands: attachment is nil")
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("commands: create download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("commands: download %s: %w", att.Filename, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("commands: download %s: status %s", att.Filename, resp.Status)
	}

	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, chat.MaxStickerFile+1), resp.Body}, nil
}
