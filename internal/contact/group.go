// ABOUTME: Group channel owning its lazily populated member table
// ABOUTME: Members can open a private channel, falling back to a stranger session

package contact

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/coven-bot/internal/cache"
)

// Group is a group chat the bot belongs to.
type Group struct {
	identity
	dir     *Directory
	members *cache.Table[*GroupMember]
}

func newGroup(dir *Directory, id int64, name string) *Group {
	g := &Group{dir: dir}
	g.init(id, name)
	g.members = cache.New(cache.Options[*GroupMember]{
		Label: "members",
		Fetch: func(ctx context.Context) (map[int64]string, error) {
			return dir.svc.GroupMembers(ctx, id)
		},
		Make: func(uid int64, nick string) *GroupMember {
			m := &GroupMember{group: g}
			m.init(uid, nick)
			return m
		},
		Rename: func(m *GroupMember, nick string) { m.setName(nick) },
		Logger: dir.root.With(slog.Int64("group_id", id)),
	})
	return g
}

func (g *Group) Kind() Kind { return KindGroup }

// Member looks up a member by id, fetching the member list if needed.
// It returns nil when the member does not exist.
func (g *Group) Member(ctx context.Context, id int64) (*GroupMember, error) {
	m, ok, err := g.members.Get(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	return m, nil
}

// ObserveMember looks up a member whose nickname was seen in an event,
// without forcing the member list to be fetched. Without a nickname it is
// Member.
func (g *Group) ObserveMember(ctx context.Context, id int64, nick string) (*GroupMember, error) {
	m, ok, err := g.members.Observe(ctx, id, nick)
	if err != nil || !ok {
		return nil, err
	}
	return m, nil
}

// Members returns every member of the group.
func (g *Group) Members(ctx context.Context) (map[int64]*GroupMember, error) {
	return g.members.All(ctx)
}

// Send posts content to the group.
func (g *Group) Send(ctx context.Context, content Content, reply *Reply) (*SentMessage, error) {
	id, err := g.dir.svc.SendGroup(ctx, g.ID(), content, reply)
	if err != nil {
		return nil, fmt.Errorf("sending to group %d: %w", g.ID(), err)
	}
	return &SentMessage{Channel: g, ID: id, Content: content}, nil
}

// Revoke withdraws a message posted in the group.
func (g *Group) Revoke(ctx context.Context, messageID string) error {
	if err := g.dir.svc.RevokeGroup(ctx, g.ID(), messageID); err != nil {
		return fmt.Errorf("revoking %s in group %d: %w", messageID, g.ID(), err)
	}
	return nil
}

// WaitMessage blocks until the next message in the group, the timeout or ctx.
// It returns nil without error on timeout.
func (g *Group) WaitMessage(ctx context.Context, timeout time.Duration) (*GroupMessage, error) {
	return g.dir.waitGroup(ctx, g.ID(), timeout)
}

// WaitMemberMessage waits for the next message in the group sent by
// memberID, skipping other members' messages within the same timeout.
func (g *Group) WaitMemberMessage(ctx context.Context, memberID int64, timeout time.Duration) (*GroupMessage, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		remaining := time.Duration(0)
		if !deadline.IsZero() {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return nil, nil
			}
		}
		msg, err := g.WaitMessage(ctx, remaining)
		if err != nil || msg == nil {
			return nil, err
		}
		if msg.Sender.ID() == memberID {
			return msg, nil
		}
	}
}

// GroupMember is a known member of one group.
type GroupMember struct {
	identity
	group *Group
}

func (m *GroupMember) Kind() Kind { return KindGroupMember }

// Group returns the group the member belongs to.
func (m *GroupMember) Group() *Group { return m.group }

// Stranger returns a temporary session with the member through its group.
func (m *GroupMember) Stranger() *Stranger {
	s := &Stranger{groupID: m.group.ID(), dir: m.group.dir}
	s.init(m.ID(), m.Name())
	return s
}

// OpenPrivateChannel returns the member's *Friend if the bot has one,
// otherwise a *Stranger session through the group.
func (m *GroupMember) OpenPrivateChannel(ctx context.Context) (MessageSink, error) {
	f, err := m.group.dir.Friend(ctx, m.ID())
	if err != nil {
		return nil, err
	}
	if f != nil {
		return f, nil
	}
	return m.Stranger(), nil
}

// GroupAnonymousMember is a member posting anonymously. Its id is only
// meaningful within the group and the message that carried it.
type GroupAnonymousMember struct {
	identity
	group *Group
}

func (a *GroupAnonymousMember) Kind() Kind { return KindGroupAnonymous }

// Group returns the group the anonymous member posted in.
func (a *GroupAnonymousMember) Group() *Group { return a.group }

// Anonymous returns an anonymous member identity scoped to the group.
func (g *Group) Anonymous(id int64, nick string) *GroupAnonymousMember {
	a := &GroupAnonymousMember{group: g}
	a.init(id, nick)
	return a
}
