// ABOUTME: Identity and MessageSink capabilities shared by every contact variant
// ABOUTME: Variants are a closed set distinguished by Kind

package contact

import (
	"context"
	"sync/atomic"
)

// Kind tags a contact variant.
type Kind int

const (
	KindSelf Kind = iota + 1
	KindFriend
	KindStranger
	KindGroup
	KindGroupMember
	KindGroupAnonymous
)

func (k Kind) String() string {
	switch k {
	case KindSelf:
		return "self"
	case KindFriend:
		return "friend"
	case KindStranger:
		return "stranger"
	case KindGroup:
		return "group"
	case KindGroupMember:
		return "group_member"
	case KindGroupAnonymous:
		return "group_anonymous"
	default:
		return "unknown"
	}
}

// Identity is anything with an id and a display name.
type Identity interface {
	ID() int64
	Name() string
	Kind() Kind
}

// MessageSink is an identity that messages can be sent to and revoked from.
type MessageSink interface {
	Identity
	Send(ctx context.Context, content Content, reply *Reply) (*SentMessage, error)
	Revoke(ctx context.Context, messageID string) error
}

// IsPrivate reports whether a sink is a one-to-one conversation.
func IsPrivate(s MessageSink) bool {
	switch s.Kind() {
	case KindFriend, KindStranger:
		return true
	default:
		return false
	}
}

// identity is embedded by every variant. The name is read by handlers while
// the directory refreshes it, so it is stored atomically.
type identity struct {
	id   int64
	name atomic.Pointer[string]
}

func (i *identity) init(id int64, name string) {
	i.id = id
	i.name.Store(&name)
}

func (i *identity) ID() int64 { return i.id }

func (i *identity) Name() string {
	if p := i.name.Load(); p != nil {
		return *p
	}
	return ""
}

func (i *identity) setName(name string) {
	i.name.Store(&name)
}

// Self is the bot's own account.
type Self struct {
	identity
}

func (s *Self) Kind() Kind { return KindSelf }
