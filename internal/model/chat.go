package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Chat is a conversation record. Private chats carry the deterministic
// sorted-pair ID and a unique PairKey, which is what makes concurrent
// creation between the same two users converge on one row. Group chats
// get a random ID and a nil PairKey.
type Chat struct {
	ID            string     `gorm:"type:uuid;primary_key" json:"id"`
	Type          string     `gorm:"type:varchar(20);not null" json:"type"` // private, group
	Name          string     `gorm:"type:varchar(255)" json:"name,omitempty"`
	PairKey       *string    `gorm:"type:varchar(100);uniqueIndex" json:"-"`
	LastMessage   string     `gorm:"type:text" json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`

	// Relationships
	Members []ChatMember `gorm:"foreignKey:ChatID;references:ID" json:"members,omitempty"`
}

// BeforeCreate hook to generate UUID
func (c *Chat) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (Chat) TableName() string {
	return "chats"
}

// ChatMember links a user into a chat. Membership is fixed at creation.
type ChatMember struct {
	ChatID    string    `gorm:"type:uuid;primaryKey" json:"chat_id"`
	UserID    string    `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name
func (ChatMember) TableName() string {
	return "chat_members"
}

// Chat type constants
const (
	ChatTypePrivate = "private"
	ChatTypeGroup   = "group"
)

// MemberIDs returns the ids of all chat members.
func (c *Chat) MemberIDs() []string {
	ids := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// HasMember reports whether userID belongs to the chat.
func (c *Chat) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// Valid reports whether the record is well-formed enough to appear in a
// snapshot.
func (c *Chat) Valid() bool {
	if c.ID == "" {
		return false
	}
	return c.Type == ChatTypePrivate || c.Type == ChatTypeGroup
}
