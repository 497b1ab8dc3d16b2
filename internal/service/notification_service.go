package service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chatsync/internal/model"
	"chatsync/internal/repository"
	"chatsync/internal/util"
)

type NotificationService interface {
	SendFriendRequestNotification(receiverID, senderID, senderName, requestID string) error
	SendFriendAcceptedNotification(receiverID, senderID, senderName, requestID string) error
	SendFriendRejectedNotification(receiverID, senderID, senderName, requestID string) error
	SendFriendRemovedNotification(receiverID, senderID, senderName string) error
	SendNewMessageNotification(receiverID, senderID, senderName, chatID string) error
	GetNotificationsByUserID(userID string, limit, offset int) ([]*model.Notification, error)
	GetUnreadNotifications(userID string) ([]*model.Notification, error)
	GetUnreadCount(userID string) (int64, error)
	MarkAsRead(notificationID, userID string) error
	MarkAllAsRead(userID string) error
	SetWSHub(hub interface {
		BroadcastToUser(string, map[string]interface{})
	})
}

type notificationService struct {
	notifRepo repository.NotificationRepository
	rabbitMQ  *util.RabbitMQClient
	wsHub     interface {
		BroadcastToUser(string, map[string]interface{})
	}
}

// NotificationMessage is the wire structure published to RabbitMQ; the
// worker consumes it and pushes to connected clients.
type NotificationMessage struct {
	UserID    string                 `json:"user_id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

const (
	NotificationQueueName  = "notification_queue"
	NotificationExchange   = "notification_exchange"
	NotificationRoutingKey = "notification"
)

func NewNotificationService(notifRepo repository.NotificationRepository, rabbitMQ *util.RabbitMQClient) NotificationService {
	return &notificationService{
		notifRepo: notifRepo,
		rabbitMQ:  rabbitMQ,
	}
}

// SetWSHub sets the WebSocket hub used as a fallback when RabbitMQ is
// unavailable.
func (s *notificationService) SetWSHub(hub interface {
	BroadcastToUser(string, map[string]interface{})
}) {
	s.wsHub = hub
}

// sendNotification persists the notification, then hands delivery to
// RabbitMQ; if publishing fails the row is already durable and the
// client catches up on its next fetch.
func (s *notificationService) sendNotification(
	userID, notifType, title, message string,
	data map[string]interface{},
) error {
	notification := &model.Notification{
		UserID:  userID,
		Type:    notifType,
		Title:   title,
		Message: message,
	}

	if data != nil {
		if senderID, ok := data["sender_id"].(string); ok {
			notification.SenderID = &senderID
		}
		if targetID, ok := data["target_id"].(string); ok {
			notification.TargetID = &targetID
		}
		if dataJSON, err := json.Marshal(data); err == nil {
			notification.Data = string(dataJSON)
		}
	}

	if err := s.notifRepo.Create(notification); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	if s.rabbitMQ != nil {
		msg := NotificationMessage{
			UserID:    userID,
			Type:      notifType,
			Title:     title,
			Message:   message,
			Data:      data,
			Timestamp: time.Now(),
		}
		msgJSON, err := json.Marshal(msg)
		if err != nil {
			log.Printf("Failed to marshal notification message: %v", err)
			return err
		}
		if err := s.rabbitMQ.Publish(NotificationExchange, NotificationRoutingKey, msgJSON); err != nil {
			log.Printf("Failed to publish notification to RabbitMQ: %v", err)
			// Fall through to direct push below.
		} else {
			return nil
		}
	}

	// No broker available, push straight to the hub.
	if s.wsHub != nil {
		s.wsHub.BroadcastToUser(userID, map[string]interface{}{
			"id":         notification.ID,
			"user_id":    notification.UserID,
			"type":       notification.Type,
			"title":      notification.Title,
			"message":    notification.Message,
			"data":       data,
			"is_read":    notification.IsRead,
			"created_at": notification.CreatedAt.Format(time.RFC3339),
		})
	}

	return nil
}

func (s *notificationService) SendFriendRequestNotification(receiverID, senderID, senderName, requestID string) error {
	return s.sendNotification(
		receiverID,
		model.NotificationTypeFriendRequest,
		"New Friend Request",
		fmt.Sprintf("%s sent you a friend request", senderName),
		map[string]interface{}{"sender_id": senderID, "target_id": requestID},
	)
}

func (s *notificationService) SendFriendAcceptedNotification(receiverID, senderID, senderName, requestID string) error {
	return s.sendNotification(
		receiverID,
		model.NotificationTypeFriendAccepted,
		"Friend Request Accepted",
		fmt.Sprintf("%s accepted your friend request", senderName),
		map[string]interface{}{"sender_id": senderID, "target_id": requestID},
	)
}

func (s *notificationService) SendFriendRejectedNotification(receiverID, senderID, senderName, requestID string) error {
	return s.sendNotification(
		receiverID,
		model.NotificationTypeFriendRejected,
		"Friend Request Declined",
		fmt.Sprintf("%s declined your friend request", senderName),
		map[string]interface{}{"sender_id": senderID, "target_id": requestID},
	)
}

func (s *notificationService) SendFriendRemovedNotification(receiverID, senderID, senderName string) error {
	return s.sendNotification(
		receiverID,
		model.NotificationTypeFriendRemoved,
		"Friend Removed",
		fmt.Sprintf("%s removed you as a friend", senderName),
		map[string]interface{}{"sender_id": senderID},
	)
}

func (s *notificationService) SendNewMessageNotification(receiverID, senderID, senderName, chatID string) error {
	return s.sendNotification(
		receiverID,
		model.NotificationTypeNewMessage,
		"New Message",
		fmt.Sprintf("%s sent you a message", senderName),
		map[string]interface{}{"sender_id": senderID, "target_id": chatID},
	)
}

func (s *notificationService) GetNotificationsByUserID(userID string, limit, offset int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.notifRepo.FindByUserID(userID, limit, offset)
}

func (s *notificationService) GetUnreadNotifications(userID string) ([]*model.Notification, error) {
	return s.notifRepo.FindUnreadByUserID(userID)
}

func (s *notificationService) GetUnreadCount(userID string) (int64, error) {
	return s.notifRepo.CountUnreadByUserID(userID)
}

func (s *notificationService) MarkAsRead(notificationID, userID string) error {
	return s.notifRepo.MarkAsRead(notificationID, userID)
}

func (s *notificationService) MarkAllAsRead(userID string) error {
	return s.notifRepo.MarkAllAsRead(userID)
}
