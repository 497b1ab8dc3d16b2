package model

import (
	"github.com/google/uuid"
)

// Namespaces for deterministic IDs. A record whose identity is a pair
// of users gets an ID derived from that pair, so concurrent writers
// converge on the same row instead of racing a lookup-then-insert.
var (
	requestNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("chatsync/friend-requests"))
	chatNamespace    = uuid.NewSHA1(uuid.NameSpaceURL, []byte("chatsync/private-chats"))
)

// PairKey returns the canonical order-independent key for two user ids.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// RequestID returns the deterministic id for a friend request from a to
// b. Direction matters: a→b and b→a are distinct requests.
func RequestID(fromID, toID string) string {
	return uuid.NewSHA1(requestNamespace, []byte(fromID+":"+toID)).String()
}

// PrivateChatID returns the deterministic id for the private chat
// between a and b, independent of argument order.
func PrivateChatID(a, b string) string {
	return uuid.NewSHA1(chatNamespace, []byte(PairKey(a, b))).String()
}
