// ABOUTME: Directory of friends, groups and group members backed by two-phase tables
// ABOUTME: Applies roster mutations and routes inbound messages to waiters

package contact

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-bot/internal/cache"
	"github.com/2389/coven-bot/internal/waitreg"
)

// Directory resolves ids to contact objects. Lookups that carry a name seen
// in an inbound event never force a full enumeration; lookups without one
// fetch the whole list the first time.
type Directory struct {
	svc    Service
	root   *slog.Logger
	logger *slog.Logger

	friends *cache.Table[*Friend]
	groups  *cache.Table[*Group]

	privateWaits *waitreg.Registry[*PrivateMessage]
	groupWaits   *waitreg.Registry[*GroupMessage]

	selfMu sync.Mutex
	self   *Self
}

// NewDirectory creates an empty directory over svc. Pass nil logger for default.
func NewDirectory(svc Service, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Directory{
		svc:          svc,
		root:         logger,
		logger:       logger.With("component", "directory"),
		privateWaits: waitreg.New[*PrivateMessage]("private", logger),
		groupWaits:   waitreg.New[*GroupMessage]("group", logger),
	}
	d.friends = cache.New(cache.Options[*Friend]{
		Label: "friends",
		Fetch: svc.Friends,
		Make: func(id int64, name string) *Friend {
			f := &Friend{dir: d}
			f.init(id, name)
			return f
		},
		Rename: func(f *Friend, name string) { f.setName(name) },
		Logger: d.root,
	})
	d.groups = cache.New(cache.Options[*Group]{
		Label:  "groups",
		Fetch:  svc.Groups,
		Make:   func(id int64, name string) *Group { return newGroup(d, id, name) },
		Rename: func(g *Group, name string) { g.setName(name) },
		Logger: d.root,
	})
	return d
}

// Self returns the bot's own account, fetched once.
func (d *Directory) Self(ctx context.Context) (*Self, error) {
	d.selfMu.Lock()
	defer d.selfMu.Unlock()

	if d.self != nil {
		return d.self, nil
	}
	id, name, err := d.svc.Self(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching own account: %w", err)
	}
	s := &Self{}
	s.init(id, name)
	d.self = s
	return s, nil
}

// Friend returns the friend with id, or nil if there is none.
func (d *Directory) Friend(ctx context.Context, id int64) (*Friend, error) {
	f, ok, err := d.friends.Get(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	return f, nil
}

// ObserveFriend resolves a friend whose nickname arrived with an event.
// Without a nickname it is Friend.
func (d *Directory) ObserveFriend(ctx context.Context, id int64, name string) (*Friend, error) {
	f, ok, err := d.friends.Observe(ctx, id, name)
	if err != nil || !ok {
		return nil, err
	}
	return f, nil
}

// Friends returns the full friend list.
func (d *Directory) Friends(ctx context.Context) (map[int64]*Friend, error) {
	return d.friends.All(ctx)
}

// Group returns the group with id, or nil if the bot is not in it.
func (d *Directory) Group(ctx context.Context, id int64) (*Group, error) {
	g, ok, err := d.groups.Get(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	return g, nil
}

// ObserveGroup resolves a group whose name arrived with an event.
// Without a name it is Group.
func (d *Directory) ObserveGroup(ctx context.Context, id int64, name string) (*Group, error) {
	g, ok, err := d.groups.Observe(ctx, id, name)
	if err != nil || !ok {
		return nil, err
	}
	return g, nil
}

// Groups returns every group the bot belongs to.
func (d *Directory) Groups(ctx context.Context) (map[int64]*Group, error) {
	return d.groups.All(ctx)
}

// AddFriend records a new friend. It does nothing until the friend list has
// been fetched once.
func (d *Directory) AddFriend(ctx context.Context, id int64, name string) (bool, error) {
	applied, err := d.friends.Put(ctx, id, name)
	if applied {
		d.logger.Debug("friend added", "user_id", id)
	}
	return applied, err
}

// RemoveFriend forgets a friend.
func (d *Directory) RemoveFriend(ctx context.Context, id int64) (bool, error) {
	removed, err := d.friends.Remove(ctx, id)
	if err == nil && !removed {
		d.logger.Debug("removed friend was not cached", "user_id", id)
	}
	return removed, err
}

// AddGroup records a group the bot joined.
func (d *Directory) AddGroup(ctx context.Context, id int64, name string) (bool, error) {
	return d.groups.Put(ctx, id, name)
}

// RemoveGroup forgets a group the bot left or was removed from.
func (d *Directory) RemoveGroup(ctx context.Context, id int64) (bool, error) {
	return d.groups.Remove(ctx, id)
}

// AddGroupMember records a new member. Both the group list and that group's
// member list must have been fetched already.
func (d *Directory) AddGroupMember(ctx context.Context, groupID, userID int64, nick string) (bool, error) {
	g, err := d.populatedGroup(ctx, groupID)
	if err != nil || g == nil {
		return false, err
	}
	return g.members.Put(ctx, userID, nick)
}

// RemoveGroupMember forgets a member who left or was removed.
func (d *Directory) RemoveGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	g, err := d.populatedGroup(ctx, groupID)
	if err != nil || g == nil {
		return false, err
	}
	return g.members.Remove(ctx, userID)
}

func (d *Directory) populatedGroup(ctx context.Context, groupID int64) (*Group, error) {
	phase, err := d.groups.Phase(ctx)
	if err != nil || phase != cache.Authoritative {
		return nil, err
	}
	g, ok, err := d.groups.Peek(ctx, groupID)
	if err != nil || !ok {
		return nil, err
	}
	return g, nil
}

// DeliverPrivate hands msg to everyone waiting on its conversation.
func (d *Directory) DeliverPrivate(msg *PrivateMessage) int {
	return d.privateWaits.Deliver(msg.Channel.ID(), msg)
}

// DeliverGroup hands msg to everyone waiting on its group.
func (d *Directory) DeliverGroup(msg *GroupMessage) int {
	return d.groupWaits.Deliver(msg.Group.ID(), msg)
}

func (d *Directory) waitPrivate(ctx context.Context, id int64, timeout time.Duration) (*PrivateMessage, error) {
	msg, ok := d.privateWaits.Wait(ctx, id, timeout)
	if ok {
		return msg, nil
	}
	return nil, ctx.Err()
}

func (d *Directory) waitGroup(ctx context.Context, id int64, timeout time.Duration) (*GroupMessage, error) {
	msg, ok := d.groupWaits.Wait(ctx, id, timeout)
	if ok {
		return msg, nil
	}
	return nil, ctx.Err()
}
