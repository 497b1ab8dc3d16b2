package model

import (
	"time"
)

// FriendEdge is one side of a relationship: the row owned by OwnerID
// describing its status toward PeerID. A relationship is represented by
// the mirrored pair (owner→peer, peer→owner); the unique (owner, peer)
// index guarantees at most one row per direction.
type FriendEdge struct {
	OwnerID   string    `gorm:"type:uuid;primaryKey;uniqueIndex:uidx_owner_peer" json:"owner_id"`
	PeerID    string    `gorm:"type:uuid;primaryKey;uniqueIndex:uidx_owner_peer" json:"peer_id"`
	Status    string    `gorm:"type:varchar(20);not null" json:"status"` // incoming, outgoing, accepted, blocked
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (FriendEdge) TableName() string {
	return "friend_edges"
}

// Friend edge status constants
const (
	EdgeStatusIncoming = "incoming"
	EdgeStatusOutgoing = "outgoing"
	EdgeStatusAccepted = "accepted"
	EdgeStatusBlocked  = "blocked"
)

// MirrorOf returns the status the opposite side of an edge must carry.
func MirrorOf(status string) string {
	switch status {
	case EdgeStatusOutgoing:
		return EdgeStatusIncoming
	case EdgeStatusIncoming:
		return EdgeStatusOutgoing
	default:
		return status
	}
}

// Valid reports whether the record is well-formed enough to appear in a
// snapshot.
func (e *FriendEdge) Valid() bool {
	if e.OwnerID == "" || e.PeerID == "" {
		return false
	}
	switch e.Status {
	case EdgeStatusIncoming, EdgeStatusOutgoing, EdgeStatusAccepted, EdgeStatusBlocked:
		return true
	}
	return false
}
