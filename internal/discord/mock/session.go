// Package mock provides test doubles for the Discord transport.
package mock

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Sent records one ChannelMessageSendComplex call.
type Sent struct {
	ChannelID string
	Message   *discordgo.MessageSend
}

// Session records every call made through discord.API. It is safe for
// concurrent use.
type Session struct {
	mu sync.Mutex

	sent      []Sent
	typing    []string
	dms       []string
	responses []*discordgo.InteractionResponse
	edits     []*discordgo.WebhookEdit

	// Err is returned by every method when non-nil.
	Err error

	// FailChannels maps channel ids to errors returned when sending there.
	FailChannels map[string]error
}

// ChannelMessageSendComplex records the message.
func (m *Session) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if err := m.FailChannels[channelID]; err != nil {
		return nil, err
	}
	m.sent = append(m.sent, Sent{ChannelID: channelID, Message: data})
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", len(m.sent)), ChannelID: channelID, Content: data.Content}, nil
}

// ChannelTyping records the channel.
func (m *Session) ChannelTyping(channelID string, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing = append(m.typing, channelID)
	return m.Err
}

// UserChannelCreate returns the channel "dm-<recipientID>".
func (m *Session) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.dms = append(m.dms, recipientID)
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}

// InteractionRespond records the response.
func (m *Session) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return m.Err
}

// InteractionResponseEdit records the edit.
func (m *Session) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, edit)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-edit"}, nil
}

// Sent returns a snapshot of the sent messages.
func (m *Session) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// Typing returns the channels a typing indicator was sent to.
func (m *Session) Typing() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.typing...)
}

// Responses returns a snapshot of the interaction responses.
func (m *Session) Responses() []*discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*discordgo.InteractionResponse(nil), m.responses...)
}

// Edits returns a snapshot of the response edits.
func (m *Session) Edits() []*discordgo.WebhookEdit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*discordgo.WebhookEdit(nil), m.edits...)
}

// LastResponse returns the most recently recorded response, or nil.
func (m *Session) LastResponse() *discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return nil
	}
	return m.responses[len(m.responses)-1]
}
