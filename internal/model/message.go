package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is one append-only entry in a chat's log. CreatedAt is
// assigned by the database; Seq breaks ordering ties between messages
// written in the same instant.
type Message struct {
	ID        string    `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ChatID    string    `gorm:"type:uuid;not null;index" json:"chat_id"`
	SenderID  string    `gorm:"type:uuid;not null;index" json:"sender_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Seq       int64     `gorm:"autoIncrement" json:"seq"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relationships
	Reads []MessageRead `gorm:"foreignKey:MessageID;references:ID" json:"reads,omitempty"`
}

// BeforeCreate hook to generate UUID
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (Message) TableName() string {
	return "messages"
}

// MessageRead marks a message as read by one user.
type MessageRead struct {
	MessageID string    `gorm:"type:uuid;primaryKey" json:"message_id"`
	UserID    string    `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	ReadAt    time.Time `gorm:"autoCreateTime" json:"read_at"`
}

// TableName specifies the table name
func (MessageRead) TableName() string {
	return "message_reads"
}

// ReadBy returns the ids of users that read the message.
func (m *Message) ReadBy() []string {
	ids := make([]string, 0, len(m.Reads))
	for _, r := range m.Reads {
		ids = append(ids, r.UserID)
	}
	return ids
}

// Valid reports whether the record is well-formed enough to appear in a
// snapshot.
func (m *Message) Valid() bool {
	return m.ID != "" && m.ChatID != "" && m.SenderID != "" && m.Text != ""
}
