// ABOUTME: Contract between the bot runtime and pluggable gateway protocol adapters
// ABOUTME: Inbound traffic crosses it as plain-field contexts and events only

// Package protocol defines how gateway protocol adapters plug into the runtime.
package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/coven-bot/internal/contact"
	"github.com/2389/coven-bot/internal/supervisor"
	"github.com/2389/coven-bot/internal/transport"
)

// Protocol is implemented by every gateway adapter.
type Protocol interface {
	contact.Service

	// Name identifies the adapter in configuration.
	Name() string
	// RequiredBackends lists the backends to provision before Setup.
	RequiredBackends() []transport.Kind
	// Setup wires the adapter to the provisioned backends. Called once.
	Setup(ctx context.Context, ware *transport.Ware) error
	// Probe checks that the gateway is alive and speaks this protocol.
	Probe(ctx context.Context) error
	// Cleanup releases adapter state before the backends are torn down.
	Cleanup(ctx context.Context) error

	DealFriendRequest(ctx context.Context, userID int64, eventID string, accept bool) error
	DealGroupInvitation(ctx context.Context, inviterID int64, eventID string, accept bool) error
	DealGroupJoinRequest(ctx context.Context, groupID int64, eventID string, accept bool) error
}

// Runtime is what adapters call back into for every pushed frame.
type Runtime interface {
	// Spawn starts a silent unit. Frame handlers use it to move parsing and
	// delivery off the push channel's reader.
	Spawn(name string, work supervisor.Work) error

	DeliverPrivateMessage(ctx context.Context, msg PrivateMessageContext)
	DeliverGroupMessage(ctx context.Context, msg GroupMessageContext)
	DeliverPrivateRevoke(ctx context.Context, rv PrivateRevokeContext)
	DeliverGroupRevoke(ctx context.Context, rv GroupRevokeContext)
	DeliverEvent(ctx context.Context, ev Event)
}

// Factory builds an adapter bound to a runtime.
type Factory func(rt Runtime, logger *slog.Logger) Protocol

// Registry maps configured protocol names to factories.
type Registry map[string]Factory

// Lookup returns the factory for name.
func (r Registry) Lookup(name string) (Factory, bool) {
	f, ok := r[name]
	return f, ok
}

// PrivateMessageContext describes an inbound one-to-one message.
type PrivateMessageContext struct {
	Time       time.Time
	SenderID   int64
	SenderNick string
	MessageID  string
	Content    contact.Content
	Reply      *contact.Reply

	// Known is set when the conversation partner is a friend. Channel is
	// then the friend; otherwise Channel is the group the temporary session
	// goes through.
	Known       bool
	ChannelID   int64
	ChannelName string
}

// GroupMessageContext describes an inbound group message.
type GroupMessageContext struct {
	Time       time.Time
	SenderID   int64
	SenderNick string
	GroupID    int64
	GroupName  string
	MessageID  string
	Content    contact.Content
	Reply      *contact.Reply
	Anonymous  bool
}

// PrivateRevokeContext describes a withdrawn one-to-one message.
type PrivateRevokeContext struct {
	Time      time.Time
	RevokerID int64
	ChannelID int64
	MessageID string
	Known     bool
}

// GroupRevokeContext describes a withdrawn group message.
type GroupRevokeContext struct {
	Time      time.Time
	RevokerID int64
	GroupID   int64
	MessageID string
	Anonymous bool
}
