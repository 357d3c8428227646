// ABOUTME: Outbound contract the directory and contact objects call through
// ABOUTME: Implemented by protocol adapters; no caching is expected behind it

package contact

import "context"

//go:generate mockgen -source=service.go -destination=mock_service_test.go -package=contact -exclude_interfaces=Enumerator,Messenger

// PrivateTarget addresses a one-to-one message. ViaGroup is set for
// temporary sessions with a non-friend group member.
type PrivateTarget struct {
	UserID   int64
	ViaGroup int64
}

// Enumerator lists entities from the gateway as id -> display name.
type Enumerator interface {
	Friends(ctx context.Context) (map[int64]string, error)
	Groups(ctx context.Context) (map[int64]string, error)
	GroupMembers(ctx context.Context, groupID int64) (map[int64]string, error)
}

// Messenger performs outbound message calls and returns gateway message ids.
type Messenger interface {
	SendPrivate(ctx context.Context, to PrivateTarget, content Content, reply *Reply) (string, error)
	SendGroup(ctx context.Context, groupID int64, content Content, reply *Reply) (string, error)
	RevokePrivate(ctx context.Context, userID int64, messageID string) error
	RevokeGroup(ctx context.Context, groupID int64, messageID string) error
}

// Service is everything the directory needs from the gateway.
type Service interface {
	Enumerator
	Messenger
	Self(ctx context.Context) (id int64, name string, err error)
}
