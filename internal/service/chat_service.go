package service

import (
	"context"
	"log"

	"chatsync/internal/apperr"
	"chatsync/internal/feed"
	"chatsync/internal/model"
	"chatsync/internal/repository"
)

type ChatService interface {
	// GetOrCreatePrivateChat returns the deduplicated private chat for
	// the pair, creating it if needed. Concurrent callers converge on
	// the same chat id.
	GetOrCreatePrivateChat(a, b string) (*model.Chat, error)
	CreateGroupChat(creatorID, name string, memberIDs []string) (*model.Chat, error)
	GetChat(chatID, userID string) (*model.Chat, error)
	ListChats(userID string) ([]model.Chat, error)
	// AppendMessage appends to the chat's log with a server-assigned
	// timestamp and refreshes the chat's last-message preview.
	AppendMessage(chatID, senderID, text string) (*model.Message, error)
	ListMessages(chatID, userID string, limit int) ([]model.Message, error)
	// SubscribeMessages opens a live ascending-ordered view of the
	// chat's log. The subscription ends with ctx.
	SubscribeMessages(ctx context.Context, chatID, userID string) (*feed.Subscription[model.Message], error)
	MarkRead(chatID, userID string) error
	UnreadCount(chatID, userID string) (int64, error)
}

type chatService struct {
	chatRepo     repository.ChatRepository
	messageRepo  repository.MessageRepository
	userRepo     repository.UserRepository
	notifService NotificationService
	bus          *feed.Bus
}

func NewChatService(
	chatRepo repository.ChatRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	notifService NotificationService,
	bus *feed.Bus,
) ChatService {
	return &chatService{
		chatRepo:     chatRepo,
		messageRepo:  messageRepo,
		userRepo:     userRepo,
		notifService: notifService,
		bus:          bus,
	}
}

func (s *chatService) GetOrCreatePrivateChat(a, b string) (*model.Chat, error) {
	if a == b {
		return nil, apperr.InvalidArgument("cannot open a chat with yourself")
	}
	if _, err := s.userRepo.FindByID(a); err != nil {
		return nil, storeErr(err, "user not found")
	}
	if _, err := s.userRepo.FindByID(b); err != nil {
		return nil, storeErr(err, "user not found")
	}

	chat, _, err := s.chatRepo.GetOrCreatePrivate(a, b)
	if err != nil {
		return nil, apperr.Unavailable("failed to open private chat", err)
	}
	return chat, nil
}

func (s *chatService) CreateGroupChat(creatorID, name string, memberIDs []string) (*model.Chat, error) {
	if name == "" {
		return nil, apperr.InvalidArgument("group name cannot be empty")
	}

	seen := map[string]bool{creatorID: true}
	members := []string{creatorID}
	for _, id := range memberIDs {
		if seen[id] {
			continue
		}
		if _, err := s.userRepo.FindByID(id); err != nil {
			return nil, storeErr(err, "member not found")
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) < 2 {
		return nil, apperr.InvalidArgument("a group chat needs at least two members")
	}

	chat, err := s.chatRepo.CreateGroup(name, members)
	if err != nil {
		return nil, apperr.Unavailable("failed to create group chat", err)
	}
	return chat, nil
}

func (s *chatService) GetChat(chatID, userID string) (*model.Chat, error) {
	chat, err := s.chatRepo.FindByID(chatID)
	if err != nil {
		return nil, storeErr(err, "chat not found")
	}
	if !chat.HasMember(userID) {
		return nil, apperr.NotFound("chat not found")
	}
	return chat, nil
}

func (s *chatService) ListChats(userID string) ([]model.Chat, error) {
	chats, err := s.chatRepo.FindByMember(userID)
	if err != nil {
		return nil, apperr.Unavailable("failed to load chats", err)
	}
	return chats, nil
}

func (s *chatService) AppendMessage(chatID, senderID, text string) (*model.Message, error) {
	if text == "" {
		return nil, apperr.InvalidArgument("message text cannot be empty")
	}

	chat, err := s.chatRepo.FindByID(chatID)
	if err != nil {
		return nil, storeErr(err, "chat not found")
	}
	if !chat.HasMember(senderID) {
		return nil, apperr.InvalidArgument("sender is not a member of this chat")
	}

	msg := &model.Message{
		ChatID:   chatID,
		SenderID: senderID,
		Text:     text,
	}
	if err := s.messageRepo.Create(msg); err != nil {
		return nil, apperr.Unavailable("failed to append message", err)
	}

	// Denormalized preview; a failure here self-corrects on next send.
	if err := s.chatRepo.UpdateLastMessage(chatID, msg.Text, msg.CreatedAt); err != nil {
		log.Printf("Failed to update last message for chat %s: %v", chatID, err)
	}

	go func() {
		sender, err := s.userRepo.FindByID(senderID)
		if err != nil {
			return
		}
		for _, memberID := range chat.MemberIDs() {
			if memberID == senderID {
				continue
			}
			s.notifService.SendNewMessageNotification(memberID, senderID, sender.DisplayName, chatID)
		}
	}()

	return msg, nil
}

func (s *chatService) ListMessages(chatID, userID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	if err := s.requireMember(chatID, userID); err != nil {
		return nil, err
	}

	msgs, err := s.messageRepo.ListByChat(chatID, limit)
	if err != nil {
		return nil, apperr.Unavailable("failed to load messages", err)
	}
	return msgs, nil
}

func (s *chatService) SubscribeMessages(ctx context.Context, chatID, userID string) (*feed.Subscription[model.Message], error) {
	if err := s.requireMember(chatID, userID); err != nil {
		return nil, err
	}

	sub := feed.Subscribe(ctx, s.bus, func(context.Context) ([]model.Message, error) {
		return s.messageRepo.ListByChat(chatID, 0)
	}, feed.MessagesTopic(chatID))
	return sub, nil
}

func (s *chatService) MarkRead(chatID, userID string) error {
	if err := s.requireMember(chatID, userID); err != nil {
		return err
	}
	if err := s.messageRepo.MarkRead(chatID, userID); err != nil {
		return apperr.Unavailable("failed to mark messages read", err)
	}
	return nil
}

func (s *chatService) UnreadCount(chatID, userID string) (int64, error) {
	if err := s.requireMember(chatID, userID); err != nil {
		return 0, err
	}
	count, err := s.messageRepo.UnreadCount(chatID, userID)
	if err != nil {
		return 0, apperr.Unavailable("failed to count unread messages", err)
	}
	return count, nil
}

func (s *chatService) requireMember(chatID, userID string) error {
	ok, err := s.chatRepo.IsMember(chatID, userID)
	if err != nil {
		return apperr.Unavailable("failed to check chat membership", err)
	}
	if !ok {
		return apperr.NotFound("chat not found")
	}
	return nil
}
