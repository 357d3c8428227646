// ABOUTME: Built-in echo behaviour for coven-bot run
// ABOUTME: Repeats private messages, answers /echo and /wait in groups, handles requests

package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/coven-bot/internal/bot"
	"github.com/2389/coven-bot/internal/contact"
)

const waitTimeout = time.Minute

func echoHandlers(logger *slog.Logger, acceptRequests bool) bot.Handlers {
	logger = logger.With("component", "echo")

	return bot.Handlers{
		OnReady: func(ctx context.Context, b *bot.Bot) error {
			self, err := b.Directory().Self(ctx)
			if err != nil {
				return err
			}
			friends, err := b.Directory().Friends(ctx)
			if err != nil {
				return err
			}
			groups, err := b.Directory().Groups(ctx)
			if err != nil {
				return err
			}
			logger.Info("online", "self", self.Name(), "self_id", self.ID(), "friends", len(friends), "groups", len(groups))
			return nil
		},

		OnPrivateMessage: func(ctx context.Context, _ *bot.Bot, msg *contact.PrivateMessage) error {
			text := strings.TrimSpace(msg.Content.PlainText())
			if text == "/wait" {
				return waitPrivate(ctx, msg)
			}
			if text == "" {
				return nil
			}
			_, err := msg.Respond(ctx, msg.Content)
			return err
		},

		OnGroupMessage: func(ctx context.Context, _ *bot.Bot, msg *contact.GroupMessage) error {
			text := strings.TrimSpace(msg.Content.PlainText())
			switch {
			case strings.HasPrefix(text, "/echo "):
				_, err := msg.Respond(ctx, contact.Text(strings.TrimPrefix(text, "/echo ")))
				return err
			case text == "/wait":
				return waitGroup(ctx, msg)
			}
			return nil
		},

		OnPrivateRevoke: func(_ context.Context, _ *bot.Bot, rv *bot.PrivateRevoke) error {
			logger.Info("private message revoked", "msg_id", rv.MessageID, "channel", rv.Channel.ID(), "by", rv.Revoker.ID())
			return nil
		},

		OnGroupRevoke: func(_ context.Context, _ *bot.Bot, rv *bot.GroupRevoke) error {
			logger.Info("group message revoked", "msg_id", rv.MessageID, "group", rv.Group.ID(), "by", rv.Revoker.ID())
			return nil
		},

		OnNotice: func(ctx context.Context, _ *bot.Bot, n *bot.Notice) error {
			logger.Info("notice", "kind", n.Kind, "user_id", n.UserID, "group_id", n.GroupID)
			if !n.IsRequest() || !acceptRequests {
				return nil
			}
			return n.Respond(ctx, true)
		},
	}
}

// waitPrivate asks for one more message in the same conversation and echoes it.
func waitPrivate(ctx context.Context, msg *contact.PrivateMessage) error {
	if _, err := msg.Respond(ctx, contact.Text("waiting for your next message")); err != nil {
		return err
	}

	var next *contact.PrivateMessage
	var err error
	switch ch := msg.Channel.(type) {
	case *contact.Friend:
		next, err = ch.WaitMessage(ctx, waitTimeout)
	case *contact.Stranger:
		next, err = ch.WaitMessage(ctx, waitTimeout)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if next == nil {
		_, err = msg.Channel.Send(ctx, contact.Text("timed out"), nil)
		return err
	}
	_, err = next.Respond(ctx, contact.Text("after /wait you said: "+next.Content.PlainText()))
	return err
}

// waitGroup waits for the same member's next message in the group.
func waitGroup(ctx context.Context, msg *contact.GroupMessage) error {
	if msg.Sender.Kind() == contact.KindGroupAnonymous {
		return nil
	}
	if _, err := msg.Respond(ctx, contact.Text("waiting for your next message")); err != nil {
		return err
	}
	next, err := msg.Group.WaitMemberMessage(ctx, msg.Sender.ID(), waitTimeout)
	if err != nil {
		return err
	}
	if next == nil {
		_, err = msg.Group.Send(ctx, contact.Text("timed out"), nil)
		return err
	}
	_, err = next.Respond(ctx, contact.Text("after /wait you said: "+next.Content.PlainText()))
	return err
}
