// ABOUTME: Roster and lifecycle notices handed to the OnNotice handler
// ABOUTME: Applies directory mutations first and answers friend and group requests

package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/coven-bot/internal/contact"
	"github.com/2389/coven-bot/internal/protocol"
)

// ErrNotARequest is returned by Respond on notices that cannot be answered.
var ErrNotARequest = errors.New("notice is not a request")

// Notice is a gateway event with its contacts resolved. Which of Friend,
// Group and Member are set depends on Kind.
type Notice struct {
	protocol.Event

	Friend *contact.Friend      // FriendAdded
	Group  *contact.Group       // group events other than GroupRemoved and NewGroupInvitation
	Member *contact.GroupMember // GroupMemberAdded, GroupMute, GroupAdminChange

	responder protocol.Protocol
}

// IsRequest reports whether the notice expects an answer through Respond.
func (n *Notice) IsRequest() bool {
	switch n.Kind {
	case protocol.EventNewFriendRequest, protocol.EventNewGroupInvitation, protocol.EventGroupMemberJoinRequest:
		return true
	default:
		return false
	}
}

// Respond accepts or rejects a friend request, group invitation or join request.
func (n *Notice) Respond(ctx context.Context, accept bool) error {
	var err error
	switch n.Kind {
	case protocol.EventNewFriendRequest:
		err = n.responder.DealFriendRequest(ctx, n.UserID, n.EventID, accept)
	case protocol.EventNewGroupInvitation:
		err = n.responder.DealGroupInvitation(ctx, n.OperatorID, n.EventID, accept)
	case protocol.EventGroupMemberJoinRequest:
		err = n.responder.DealGroupJoinRequest(ctx, n.GroupID, n.EventID, accept)
	default:
		return fmt.Errorf("%w: %s", ErrNotARequest, n.Kind)
	}
	if err != nil {
		return fmt.Errorf("answering %s %s: %w", n.Kind, n.EventID, err)
	}
	return nil
}

// applyEvent mutates the directory for roster events and resolves the
// contacts the notice refers to.
func (b *Bot) applyEvent(ctx context.Context, ev protocol.Event) (*Notice, error) {
	n := &Notice{Event: ev, responder: b.adapter}
	dir := b.dir

	switch ev.Kind {
	case protocol.EventFriendAdded:
		if _, err := dir.AddFriend(ctx, ev.UserID, ev.UserName); err != nil {
			return nil, err
		}
		f, err := dir.ObserveFriend(ctx, ev.UserID, ev.UserName)
		if err != nil {
			return nil, err
		}
		n.Friend = f

	case protocol.EventFriendRemoved:
		if _, err := dir.RemoveFriend(ctx, ev.UserID); err != nil {
			return nil, err
		}

	case protocol.EventGroupAdded:
		if _, err := dir.AddGroup(ctx, ev.GroupID, ev.GroupName); err != nil {
			return nil, err
		}
		if err := b.resolveGroup(ctx, n); err != nil {
			return nil, err
		}

	case protocol.EventGroupRemoved:
		if _, err := dir.RemoveGroup(ctx, ev.GroupID); err != nil {
			return nil, err
		}

	case protocol.EventGroupMemberAdded:
		if _, err := dir.AddGroupMember(ctx, ev.GroupID, ev.UserID, ev.UserName); err != nil {
			return nil, err
		}
		if err := b.resolveMember(ctx, n); err != nil {
			return nil, err
		}

	case protocol.EventGroupMemberRemoved:
		if _, err := dir.RemoveGroupMember(ctx, ev.GroupID, ev.UserID); err != nil {
			return nil, err
		}
		if err := b.resolveGroup(ctx, n); err != nil {
			return nil, err
		}

	case protocol.EventGroupMute, protocol.EventGroupAdminChange:
		if err := b.resolveMember(ctx, n); err != nil {
			return nil, err
		}

	case protocol.EventGroupMemberJoinRequest:
		if err := b.resolveGroup(ctx, n); err != nil {
			return nil, err
		}

	case protocol.EventOnline, protocol.EventOffline,
		protocol.EventNewFriendRequest, protocol.EventNewGroupInvitation:

	default:
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return n, nil
}

func (b *Bot) resolveGroup(ctx context.Context, n *Notice) error {
	g, err := b.dir.ObserveGroup(ctx, n.GroupID, n.GroupName)
	if err != nil {
		return err
	}
	if g == nil {
		return errUnresolved
	}
	n.Group = g
	return nil
}

func (b *Bot) resolveMember(ctx context.Context, n *Notice) error {
	if err := b.resolveGroup(ctx, n); err != nil {
		return err
	}
	m, err := n.Group.ObserveMember(ctx, n.UserID, n.UserName)
	if err != nil {
		return err
	}
	if m == nil {
		return errUnresolved
	}
	n.Member = m
	return nil
}
