// ABOUTME: Runtime side of protocol.Runtime: resolves inbound contexts into contacts
// ABOUTME: Feeds the wait registries and starts user handlers as external units

package bot

import (
	"context"
	"errors"
	"time"

	"github.com/2389/coven-bot/internal/contact"
	"github.com/2389/coven-bot/internal/protocol"
	"github.com/2389/coven-bot/internal/supervisor"
)

// errUnresolved marks an inbound item whose identities the directory rejected.
var errUnresolved = errors.New("identity not in directory")

// PrivateRevoke reports a withdrawn one-to-one message.
type PrivateRevoke struct {
	Time      time.Time
	MessageID string
	Channel   contact.MessageSink // *contact.Friend or *contact.Stranger
	Revoker   contact.Identity
}

// GroupRevoke reports a withdrawn group message.
type GroupRevoke struct {
	Time      time.Time
	MessageID string
	Group     *contact.Group
	Revoker   contact.Identity // *contact.GroupMember or *contact.GroupAnonymousMember
}

// resolvePrivate returns the conversation and the sender of a private message.
// Friends come from the friend table; everyone else is reached through the
// group the session was opened from.
func (b *Bot) resolvePrivate(ctx context.Context, known bool, channelID int64, channelName string, senderID int64, senderNick string) (contact.MessageSink, contact.Identity, error) {
	if known {
		ch, err := b.dir.ObserveFriend(ctx, channelID, channelName)
		if err != nil {
			return nil, nil, err
		}
		if ch == nil {
			return nil, nil, errUnresolved
		}
		if senderID == channelID {
			return ch, ch, nil
		}
		sender, err := b.dir.ObserveFriend(ctx, senderID, senderNick)
		if err != nil {
			return nil, nil, err
		}
		if sender == nil {
			return nil, nil, errUnresolved
		}
		return ch, sender, nil
	}

	g, err := b.dir.ObserveGroup(ctx, channelID, channelName)
	if err != nil {
		return nil, nil, err
	}
	if g == nil {
		return nil, nil, errUnresolved
	}
	m, err := g.ObserveMember(ctx, senderID, senderNick)
	if err != nil {
		return nil, nil, err
	}
	if m == nil {
		return nil, nil, errUnresolved
	}
	s := m.Stranger()
	return s, s, nil
}

// resolveGroupSender returns the group and the sender of a group message.
func (b *Bot) resolveGroupSender(ctx context.Context, groupID int64, groupName string, senderID int64, senderNick string, anonymous bool) (*contact.Group, contact.Identity, error) {
	g, err := b.dir.ObserveGroup(ctx, groupID, groupName)
	if err != nil {
		return nil, nil, err
	}
	if g == nil {
		return nil, nil, errUnresolved
	}
	if anonymous {
		return g, g.Anonymous(senderID, senderNick), nil
	}
	m, err := g.ObserveMember(ctx, senderID, senderNick)
	if err != nil {
		return nil, nil, err
	}
	if m == nil {
		return nil, nil, errUnresolved
	}
	return g, m, nil
}

func (b *Bot) dispatch(name string, work supervisor.Work) {
	if err := b.Go(name, work); err != nil {
		b.logger.Debug("handler not started", "handler", name, "error", err)
	}
}

func (b *Bot) DeliverPrivateMessage(ctx context.Context, in protocol.PrivateMessageContext) {
	ch, sender, err := b.resolvePrivate(ctx, in.Known, in.ChannelID, in.ChannelName, in.SenderID, in.SenderNick)
	if err != nil {
		b.logger.Warn("dropping private message", "msg_id", in.MessageID, "channel_id", in.ChannelID, "sender_id", in.SenderID, "error", err)
		return
	}
	msg := &contact.PrivateMessage{
		Time:    in.Time,
		ID:      in.MessageID,
		Content: in.Content,
		Reply:   in.Reply,
		Channel: ch,
		Sender:  sender,
	}
	b.dir.DeliverPrivate(msg)

	if h := b.handlers.OnPrivateMessage; h != nil {
		b.dispatch("on_private_message", func(ctx context.Context, _ supervisor.Spawner) error {
			return h(ctx, b, msg)
		})
	}
}

func (b *Bot) DeliverGroupMessage(ctx context.Context, in protocol.GroupMessageContext) {
	g, sender, err := b.resolveGroupSender(ctx, in.GroupID, in.GroupName, in.SenderID, in.SenderNick, in.Anonymous)
	if err != nil {
		b.logger.Warn("dropping group message", "msg_id", in.MessageID, "group_id", in.GroupID, "sender_id", in.SenderID, "error", err)
		return
	}
	msg := &contact.GroupMessage{
		Time:    in.Time,
		ID:      in.MessageID,
		Content: in.Content,
		Reply:   in.Reply,
		Group:   g,
		Sender:  sender,
	}
	b.dir.DeliverGroup(msg)

	if h := b.handlers.OnGroupMessage; h != nil {
		b.dispatch("on_group_message", func(ctx context.Context, _ supervisor.Spawner) error {
			return h(ctx, b, msg)
		})
	}
}

func (b *Bot) DeliverPrivateRevoke(ctx context.Context, in protocol.PrivateRevokeContext) {
	ch, revoker, err := b.resolvePrivate(ctx, in.Known, in.ChannelID, "", in.RevokerID, "")
	if err != nil {
		b.logger.Warn("dropping private revoke", "msg_id", in.MessageID, "channel_id", in.ChannelID, "error", err)
		return
	}
	h := b.handlers.OnPrivateRevoke
	if h == nil {
		return
	}
	rv := &PrivateRevoke{Time: in.Time, MessageID: in.MessageID, Channel: ch, Revoker: revoker}
	b.dispatch("on_private_revoke", func(ctx context.Context, _ supervisor.Spawner) error {
		return h(ctx, b, rv)
	})
}

func (b *Bot) DeliverGroupRevoke(ctx context.Context, in protocol.GroupRevokeContext) {
	g, revoker, err := b.resolveGroupSender(ctx, in.GroupID, "", in.RevokerID, "", in.Anonymous)
	if err != nil {
		b.logger.Warn("dropping group revoke", "msg_id", in.MessageID, "group_id", in.GroupID, "error", err)
		return
	}
	h := b.handlers.OnGroupRevoke
	if h == nil {
		return
	}
	rv := &GroupRevoke{Time: in.Time, MessageID: in.MessageID, Group: g, Revoker: revoker}
	b.dispatch("on_group_revoke", func(ctx context.Context, _ supervisor.Spawner) error {
		return h(ctx, b, rv)
	})
}

func (b *Bot) DeliverEvent(ctx context.Context, ev protocol.Event) {
	n, err := b.applyEvent(ctx, ev)
	if err != nil {
		b.logger.Warn("dropping event", "event", ev.Kind, "group_id", ev.GroupID, "user_id", ev.UserID, "error", err)
		return
	}
	if h := b.handlers.OnNotice; h != nil {
		b.dispatch("on_notice", func(ctx context.Context, _ supervisor.Spawner) error {
			return h(ctx, b, n)
		})
	}
}
