// ABOUTME: Inbound and outbound message values handed to handlers and waiters
// ABOUTME: Messages reference resolved directory objects, never raw wire data

package contact

import (
	"context"
	"time"
)

// PrivateMessage is a one-to-one message received from a friend or stranger.
type PrivateMessage struct {
	Time    time.Time
	ID      string
	Content Content
	Reply   *Reply

	// Channel is the conversation, a *Friend or *Stranger.
	Channel MessageSink
	// Sender is usually Channel itself. It differs when the bot's own
	// account sent the message from another client.
	Sender Identity
}

// Revoke withdraws this message.
func (m *PrivateMessage) Revoke(ctx context.Context) error {
	return m.Channel.Revoke(ctx, m.ID)
}

// Respond sends content to the same conversation, quoting this message.
func (m *PrivateMessage) Respond(ctx context.Context, content Content) (*SentMessage, error) {
	return m.Channel.Send(ctx, content, m.asReply())
}

func (m *PrivateMessage) asReply() *Reply {
	return &Reply{To: m.Sender.ID(), Time: m.Time, Summary: m.Content.PlainText(), MessageID: m.ID}
}

// GroupMessage is a message posted in a group.
type GroupMessage struct {
	Time    time.Time
	ID      string
	Content Content
	Reply   *Reply

	Group *Group
	// Sender is a *GroupMember or a *GroupAnonymousMember.
	Sender Identity
}

// Revoke withdraws this message. The bot must be allowed to do so in the group.
func (m *GroupMessage) Revoke(ctx context.Context) error {
	return m.Group.Revoke(ctx, m.ID)
}

// Respond posts content to the same group, quoting this message.
func (m *GroupMessage) Respond(ctx context.Context, content Content) (*SentMessage, error) {
	reply := &Reply{To: m.Sender.ID(), Time: m.Time, Summary: m.Content.PlainText(), MessageID: m.ID}
	return m.Group.Send(ctx, content, reply)
}

// SentMessage is the gateway's receipt for an outbound message.
type SentMessage struct {
	Channel MessageSink
	ID      string
	Content Content
}

// Revoke withdraws the sent message.
func (m *SentMessage) Revoke(ctx context.Context) error {
	return m.Channel.Revoke(ctx, m.ID)
}
