// ABOUTME: Lifecycle and roster events pushed by the gateway
// ABOUTME: One flat struct tagged by EventKind; unused fields stay zero

package protocol

import "time"

// EventKind names a gateway event.
type EventKind string

// Event kinds. The string values double as the wire names used by adapters.
const (
	EventOnline                 EventKind = "online"
	EventOffline                EventKind = "offline"
	EventFriendAdded            EventKind = "friend_added"
	EventFriendRemoved          EventKind = "friend_removed"
	EventNewFriendRequest       EventKind = "friend_request"
	EventGroupAdded             EventKind = "group_added"
	EventGroupRemoved           EventKind = "group_removed"
	EventNewGroupInvitation     EventKind = "group_invitation"
	EventGroupMemberAdded       EventKind = "group_member_added"
	EventGroupMemberRemoved     EventKind = "group_member_removed"
	EventGroupMemberJoinRequest EventKind = "group_join_request"
	EventGroupMute              EventKind = "group_mute"
	EventGroupAdminChange       EventKind = "group_admin_change"
)

// Known reports whether k is one of the defined kinds.
func (k EventKind) Known() bool {
	switch k {
	case EventOnline, EventOffline,
		EventFriendAdded, EventFriendRemoved, EventNewFriendRequest,
		EventGroupAdded, EventGroupRemoved, EventNewGroupInvitation,
		EventGroupMemberAdded, EventGroupMemberRemoved, EventGroupMemberJoinRequest,
		EventGroupMute, EventGroupAdminChange:
		return true
	default:
		return false
	}
}

// Event is a gateway notification resolved into plain fields.
type Event struct {
	Kind EventKind
	Time time.Time

	UserID     int64  // subject user: new friend, member, requester, muted member
	UserName   string //
	GroupID    int64  // subject group
	GroupName  string //
	OperatorID int64  // who acted: inviter, kicker, admin

	EventID  string        // request id to answer with a Deal* call
	Comment  string        // request message
	Duration time.Duration // mute length; zero lifts the mute
	Admin    bool          // admin granted (true) or revoked
}
