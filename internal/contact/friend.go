// ABOUTME: Private conversation sinks: friends and strangers reached through a group
// ABOUTME: Both send, revoke and wait on the directory's private wait registry

package contact

import (
	"context"
	"fmt"
	"time"
)

// Friend is a contact on the bot's friend list.
type Friend struct {
	identity
	dir *Directory
}

func (f *Friend) Kind() Kind { return KindFriend }

// Send delivers content to the friend.
func (f *Friend) Send(ctx context.Context, content Content, reply *Reply) (*SentMessage, error) {
	return sendPrivate(ctx, f.dir, f, PrivateTarget{UserID: f.ID()}, content, reply)
}

// Revoke withdraws a message in this conversation.
func (f *Friend) Revoke(ctx context.Context, messageID string) error {
	if err := f.dir.svc.RevokePrivate(ctx, f.ID(), messageID); err != nil {
		return fmt.Errorf("revoking %s in friend %d: %w", messageID, f.ID(), err)
	}
	return nil
}

// WaitMessage blocks until the friend's next message, the timeout or ctx.
// It returns nil without error on timeout.
func (f *Friend) WaitMessage(ctx context.Context, timeout time.Duration) (*PrivateMessage, error) {
	return f.dir.waitPrivate(ctx, f.ID(), timeout)
}

// Stranger is a non-friend reached through a temporary session opened from
// a group both accounts belong to.
type Stranger struct {
	identity
	groupID int64
	dir     *Directory
}

func (s *Stranger) Kind() Kind { return KindStranger }

// GroupID is the group the session goes through.
func (s *Stranger) GroupID() int64 { return s.groupID }

// Send delivers content through the temporary session.
func (s *Stranger) Send(ctx context.Context, content Content, reply *Reply) (*SentMessage, error) {
	return sendPrivate(ctx, s.dir, s, PrivateTarget{UserID: s.ID(), ViaGroup: s.groupID}, content, reply)
}

// Revoke withdraws a message in this session.
func (s *Stranger) Revoke(ctx context.Context, messageID string) error {
	if err := s.dir.svc.RevokePrivate(ctx, s.ID(), messageID); err != nil {
		return fmt.Errorf("revoking %s in session with %d: %w", messageID, s.ID(), err)
	}
	return nil
}

// WaitMessage blocks until the stranger's next message, the timeout or ctx.
func (s *Stranger) WaitMessage(ctx context.Context, timeout time.Duration) (*PrivateMessage, error) {
	return s.dir.waitPrivate(ctx, s.ID(), timeout)
}

func sendPrivate(ctx context.Context, dir *Directory, sink MessageSink, to PrivateTarget, content Content, reply *Reply) (*SentMessage, error) {
	id, err := dir.svc.SendPrivate(ctx, to, content, reply)
	if err != nil {
		return nil, fmt.Errorf("sending to %s %d: %w", sink.Kind(), sink.ID(), err)
	}
	return &SentMessage{Channel: sink, ID: id, Content: content}, nil
}
