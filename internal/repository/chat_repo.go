package repository

import (
	"log"
	"time"

	"chatsync/internal/feed"
	"chatsync/internal/model"
	"chatsync/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatRepository interface {
	// GetOrCreatePrivate returns the one private chat between a and b,
	// creating it under its deterministic sorted-pair id if absent. The
	// create is conditional on that id, so concurrent callers converge
	// on the same row.
	GetOrCreatePrivate(a, b string) (*model.Chat, bool, error)
	CreateGroup(name string, memberIDs []string) (*model.Chat, error)
	FindByID(id string) (*model.Chat, error)
	FindByMember(userID string) ([]model.Chat, error)
	IsMember(chatID, userID string) (bool, error)
	// UpdateLastMessage refreshes the denormalized preview fields.
	// Best-effort: staleness self-corrects on the next send.
	UpdateLastMessage(chatID, text string, at time.Time) error
}

type chatRepository struct {
	db    *gorm.DB
	redis *util.RedisClient
	bus   *feed.Bus
}

func NewChatRepository(db *gorm.DB, redis *util.RedisClient, bus *feed.Bus) ChatRepository {
	return &chatRepository{
		db:    db,
		redis: redis,
		bus:   bus,
	}
}

func (r *chatRepository) GetOrCreatePrivate(a, b string) (*model.Chat, bool, error) {
	pairKey := model.PairKey(a, b)
	chat := &model.Chat{
		ID:      model.PrivateChatID(a, b),
		Type:    model.ChatTypePrivate,
		PairKey: &pairKey,
	}

	created := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(chat)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0

		members := []model.ChatMember{
			{ChatID: chat.ID, UserID: a},
			{ChatID: chat.ID, UserID: b},
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error
	})
	if err != nil {
		return nil, false, err
	}

	out, err := r.FindByID(chat.ID)
	if err != nil {
		return nil, false, err
	}

	if created {
		r.bus.Publish(feed.TopicChats)
	}
	return out, created, nil
}

func (r *chatRepository) CreateGroup(name string, memberIDs []string) (*model.Chat, error) {
	chat := &model.Chat{
		Type: model.ChatTypeGroup,
		Name: name,
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(chat).Error; err != nil {
			return err
		}
		members := make([]model.ChatMember, 0, len(memberIDs))
		for _, id := range memberIDs {
			members = append(members, model.ChatMember{ChatID: chat.ID, UserID: id})
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return nil, err
	}

	r.bus.Publish(feed.TopicChats)
	return r.FindByID(chat.ID)
}

func (r *chatRepository) FindByID(id string) (*model.Chat, error) {
	var chat model.Chat
	err := r.db.Preload("Members").Where("id = ?", id).First(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// FindByMember returns the user's chats, most recently active first.
func (r *chatRepository) FindByMember(userID string) ([]model.Chat, error) {
	var chats []model.Chat
	err := r.db.Preload("Members").
		Joins("JOIN chat_members ON chat_members.chat_id = chats.id").
		Where("chat_members.user_id = ?", userID).
		Order("chats.last_message_at DESC NULLS LAST, chats.created_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, err
	}
	return filterValidChats(chats), nil
}

func (r *chatRepository) IsMember(chatID, userID string) (bool, error) {
	var count int64
	err := r.db.Model(&model.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *chatRepository) UpdateLastMessage(chatID, text string, at time.Time) error {
	err := r.db.Model(&model.Chat{}).Where("id = ?", chatID).
		Updates(map[string]interface{}{
			"last_message":    text,
			"last_message_at": at,
		}).Error
	if err != nil {
		return err
	}
	r.bus.Publish(feed.TopicChats)
	return nil
}

func filterValidChats(chats []model.Chat) []model.Chat {
	valid := chats[:0]
	for i := range chats {
		if !chats[i].Valid() {
			log.Printf("Skipping malformed chat record %q", chats[i].ID)
			continue
		}
		valid = append(valid, chats[i])
	}
	return valid
}
