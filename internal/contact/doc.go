// Package contact models the people and groups the bot talks to.
//
// # Variants
//
// Every contact is an Identity (id, display name, Kind). The closed set of
// variants is:
//
//   - Friend: a private conversation with a friend. MessageSink.
//   - Stranger: a temporary session through a shared group. MessageSink.
//   - Group: a group chat owning a member table. MessageSink.
//   - GroupMember, GroupAnonymousMember: identities scoped to one Group.
//   - Self: the bot's own account.
//
// Callers dispatch on Kind() rather than on concrete types where they can.
//
// # Directory
//
// The Directory owns the friends table, the groups table, and each group's
// member table. Each table starts provisional: ids observed in inbound
// events are added as they arrive, without enumerating the whole list. The
// first lookup without a known name, or the first full read, fetches the
// list from the gateway. Provisional entries found in the fetched list are
// kept as the same objects; those missing from it are logged and dropped.
//
//	dir := contact.NewDirectory(svc, logger)
//	f, err := dir.ObserveFriend(ctx, senderID, senderNick) // never fetches
//	all, err := dir.Friends(ctx)                           // fetches once
//
// Roster mutations (AddFriend, RemoveGroupMember, ...) only apply once the
// corresponding list has been fetched; until then the next fetch picks the
// change up from the gateway.
//
// # Waiting
//
// Friend, Stranger and Group expose WaitMessage. Every waiter on the same
// conversation receives the same next message.
package contact
