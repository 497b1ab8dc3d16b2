package repository

import (
	"log"

	"chatsync/internal/feed"
	"chatsync/internal/model"

	"gorm.io/gorm"
)

type MessageRepository interface {
	Create(msg *model.Message) error
	// ListByChat returns the chat's log ascending by created_at, with
	// the insertion sequence breaking ties.
	ListByChat(chatID string, limit int) ([]model.Message, error)
	// MarkRead records userID as having read every message in the chat
	// they did not send. Idempotent.
	MarkRead(chatID, userID string) error
	UnreadCount(chatID, userID string) (int64, error)
}

type messageRepository struct {
	db  *gorm.DB
	bus *feed.Bus
}

func NewMessageRepository(db *gorm.DB, bus *feed.Bus) MessageRepository {
	return &messageRepository{
		db:  db,
		bus: bus,
	}
}

func (r *messageRepository) Create(msg *model.Message) error {
	if err := r.db.Create(msg).Error; err != nil {
		return err
	}
	r.bus.Publish(feed.MessagesTopic(msg.ChatID))
	return nil
}

func (r *messageRepository) ListByChat(chatID string, limit int) ([]model.Message, error) {
	q := r.db.Preload("Reads").
		Where("chat_id = ?", chatID).
		Order("created_at ASC, seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var msgs []model.Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return filterValidMessages(msgs), nil
}

func (r *messageRepository) MarkRead(chatID, userID string) error {
	err := r.db.Exec(`
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT id, ?, NOW() FROM messages
		WHERE chat_id = ? AND sender_id <> ?
		ON CONFLICT DO NOTHING`,
		userID, chatID, userID).Error
	if err != nil {
		return err
	}
	r.bus.Publish(feed.MessagesTopic(chatID))
	return nil
}

func (r *messageRepository) UnreadCount(chatID, userID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.Message{}).
		Where("chat_id = ? AND sender_id <> ?", chatID, userID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads WHERE message_reads.message_id = messages.id AND message_reads.user_id = ?)", userID).
		Count(&count).Error
	return count, err
}

func filterValidMessages(msgs []model.Message) []model.Message {
	valid := msgs[:0]
	for i := range msgs {
		if !msgs[i].Valid() {
			log.Printf("Skipping malformed message record %q", msgs[i].ID)
			continue
		}
		valid = append(valid, msgs[i])
	}
	return valid
}
