package commands

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/mikubot/internal/chat"
)

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename string
		want     AttachmentFormat
	}{
		{"stickers.yaml", FormatYAML},
		{"stickers.yml", FormatYAML},
		{"STICKERS.YAML", FormatYAML},
		{"stickers.json", FormatJSON},
		{"export.JSON", FormatJSON},
		{"readme.txt", FormatUnknown},
		{"image.png", FormatUnknown},
		{"noext", FormatUnknown},
		{"", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			t.Parallel()
			if got := DetectFormat(tt.filename); got != tt.want {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestAttachmentFormatString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format AttachmentFormat
		want   string
	}{
		{FormatYAML, "yaml"},
		{FormatJSON, "json"},
		{FormatUnknown, "unknown"},
	}

	for _, tt := range tests {
		if got := tt.format.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func commandWith(att *discordgo.MessageAttachment) *discordgo.InteractionCreate {
	data := discordgo.ApplicationCommandInteractionData{Name: chat.CmdUploadStickers}
	if att != nil {
		data.Resolved = &discordgo.ApplicationCommandInteractionDataResolved{
			Attachments: map[string]*discordgo.MessageAttachment{att.ID: att},
		}
	}
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		Data: data,
	}}
}

func TestFirstAttachment(t *testing.T) {
	t.Parallel()

	if att := FirstAttachment(commandWith(nil)); att != nil {
		t.Errorf("expected nil, got %v", att)
	}

	want := &discordgo.MessageAttachment{ID: "a1", Filename: "stickers.json"}
	if got := FirstAttachment(commandWith(want)); got != want {
		t.Errorf("FirstAttachment = %v, want %v", got, want)
	}

	ping := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Type: discordgo.InteractionPing}}
	if att := FirstAttachment(ping); att != nil {
		t.Errorf("ping interaction returned %v", att)
	}
}

func TestDownloadAttachment(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.json":
			io.WriteString(w, `{"happy": "h1"}`)
		case "/big.json":
			io.WriteString(w, strings.Repeat("x", chat.MaxStickerFile+100))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	ctx := context.Background()

	body, err := DownloadAttachment(ctx, srv.Client(), &discordgo.MessageAttachment{URL: srv.URL + "/ok.json", Filename: "ok.json"})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if string(data) != `{"happy": "h1"}` {
		t.Errorf("body = %q", data)
	}

	body, err = DownloadAttachment(ctx, srv.Client(), &discordgo.MessageAttachment{URL: srv.URL + "/big.json", Filename: "big.json"})
	if err != nil {
		t.Fatalf("download big: %v", err)
	}
	data, _ = io.ReadAll(body)
	body.Close()
	if len(data) != chat.MaxStickerFile+1 {
		t.Errorf("read %d bytes, want limit %d", len(data), chat.MaxStickerFile+1)
	}

	if _, err := DownloadAttachment(ctx, srv.Client(), &discordgo.MessageAttachment{URL: srv.URL + "/missing.json", Filename: "missing.json"}); err == nil {
		t.Error("expected an error for a 404")
	}
	if _, err := DownloadAttachment(ctx, nil, nil); err == nil {
		t.Error("expected an error for a nil attachment")
	}
}
