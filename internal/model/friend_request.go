package model

import (
	"time"

	"gorm.io/gorm"
)

// FriendRequest is one row in the friend request ledger. The sender's
// profile fields are denormalized at send time so request lists never
// need a per-row profile lookup.
type FriendRequest struct {
	ID              string    `gorm:"type:uuid;primary_key" json:"id"`
	FromID          string    `gorm:"type:uuid;not null;index" json:"from_id"`
	ToID            string    `gorm:"type:uuid;not null;index" json:"to_id"`
	Status          string    `gorm:"type:varchar(20);default:'pending';not null" json:"status"` // pending, accepted, rejected
	FromDisplayName string    `gorm:"type:varchar(255)" json:"from_display_name"`
	FromEmail       string    `gorm:"type:varchar(255)" json:"from_email"`
	FromAvatarURL   string    `gorm:"type:text" json:"from_avatar_url,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns the deterministic ordered-pair ID when the caller
// has not set one. Keeping the ID a pure function of (from, to) is what
// makes concurrent sends collapse onto a single row.
func (f *FriendRequest) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = RequestID(f.FromID, f.ToID)
	}
	return nil
}

// TableName specifies the table name
func (FriendRequest) TableName() string {
	return "friend_requests"
}

// Friend request status constants
const (
	RequestStatusPending  = "pending"
	RequestStatusAccepted = "accepted"
	RequestStatusRejected = "rejected"
)

// Terminal reports whether the request reached a final state. A
// terminal request no longer blocks the pair; a later send reopens it
// as pending.
func (f *FriendRequest) Terminal() bool {
	return f.Status == RequestStatusAccepted || f.Status == RequestStatusRejected
}

// Valid reports whether the record is well-formed enough to appear in a
// snapshot.
func (f *FriendRequest) Valid() bool {
	if f.ID == "" || f.FromID == "" || f.ToID == "" {
		return false
	}
	switch f.Status {
	case RequestStatusPending, RequestStatusAccepted, RequestStatusRejected:
		return true
	}
	return false
}
