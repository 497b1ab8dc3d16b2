package app

import (
	"context"
	"log"
	"sync"

	"chatsync/internal/feed"
	"chatsync/internal/model"
	"chatsync/internal/repository"
	"chatsync/internal/service"
	"chatsync/internal/websocket"
)

// SyncSessionManager attaches live state to every websocket connection:
// a contacts projection that re-emits whenever users, requests, or
// friend edges change,
// plus per-chat message streams the client opts into. Everything a
// session starts is scoped to the connection's context; when the socket
// closes, every subscription it opened is cancelled with it.
type SyncSessionManager struct {
	userRepo    repository.UserRepository
	requestRepo repository.FriendRequestRepository
	edgeRepo    repository.FriendEdgeRepository
	chatService service.ChatService
	bus         *feed.Bus
}

func NewSyncSessionManager(
	userRepo repository.UserRepository,
	requestRepo repository.FriendRequestRepository,
	edgeRepo repository.FriendEdgeRepository,
	chatService service.ChatService,
	bus *feed.Bus,
) *SyncSessionManager {
	return &SyncSessionManager{
		userRepo:    userRepo,
		requestRepo: requestRepo,
		edgeRepo:    edgeRepo,
		chatService: chatService,
		bus:         bus,
	}
}

type syncSession struct {
	manager *SyncSessionManager
	client  *websocket.Client
	ctx     context.Context

	mu       sync.Mutex
	chatSubs map[string]context.CancelFunc
}

// StartSession opens the connection's contacts projection and returns
// the handler for its control messages.
func (m *SyncSessionManager) StartSession(ctx context.Context, client *websocket.Client) func(*websocket.Message) {
	s := &syncSession{
		manager:  m,
		client:   client,
		ctx:      ctx,
		chatSubs: make(map[string]context.CancelFunc),
	}

	viewerID := client.UserID

	users := feed.Subscribe(ctx, m.bus, func(context.Context) ([]model.User, error) {
		return m.userRepo.FindAllExcept(viewerID)
	}, feed.TopicUsers)
	outgoing := feed.Subscribe(ctx, m.bus, func(context.Context) ([]model.FriendRequest, error) {
		return m.requestRepo.FindByFromID(viewerID)
	}, feed.TopicRequests)
	incoming := feed.Subscribe(ctx, m.bus, func(context.Context) ([]model.FriendRequest, error) {
		return m.requestRepo.FindByToID(viewerID)
	}, feed.TopicRequests)
	edges := feed.Subscribe(ctx, m.bus, func(context.Context) ([]model.FriendEdge, error) {
		return m.edgeRepo.FindAcceptedByOwner(viewerID)
	}, feed.TopicEdges)

	projector := feed.NewProjector(viewerID, users, outgoing, incoming, edges)
	go projector.Run(ctx)
	go s.forwardContacts(projector)

	return s.handle
}

func (s *syncSession) forwardContacts(projector *feed.Projector) {
	for view := range projector.Snapshots() {
		s.client.Send(&websocket.Message{
			Type: "contacts",
			Payload: map[string]interface{}{
				"contacts": view,
			},
		})
	}
}

// handle dispatches one control message from the client.
func (s *syncSession) handle(msg *websocket.Message) {
	switch msg.Type {
	case "subscribe_messages":
		chatID, _ := msg.Payload["chat_id"].(string)
		if chatID == "" {
			return
		}
		s.subscribeMessages(chatID)
	case "unsubscribe_messages":
		chatID, _ := msg.Payload["chat_id"].(string)
		if chatID == "" {
			return
		}
		s.unsubscribeMessages(chatID)
	default:
		log.Printf("Unknown session message type %q from user %s", msg.Type, s.client.UserID)
	}
}

func (s *syncSession) subscribeMessages(chatID string) {
	s.mu.Lock()
	if _, ok := s.chatSubs[chatID]; ok {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.chatSubs[chatID] = cancel
	s.mu.Unlock()

	sub, err := s.manager.chatService.SubscribeMessages(ctx, chatID, s.client.UserID)
	if err != nil {
		cancel()
		s.mu.Lock()
		delete(s.chatSubs, chatID)
		s.mu.Unlock()
		s.client.Send(&websocket.Message{
			Type: "error",
			Payload: map[string]interface{}{
				"chat_id": chatID,
				"message": "cannot subscribe to this chat",
			},
		})
		return
	}

	go func() {
		for msgs := range sub.C {
			s.client.Send(&websocket.Message{
				Type: "messages",
				Payload: map[string]interface{}{
					"chat_id":  chatID,
					"messages": msgs,
				},
			})
		}
	}()
}

func (s *syncSession) unsubscribeMessages(chatID string) {
	s.mu.Lock()
	cancel, ok := s.chatSubs[chatID]
	if ok {
		delete(s.chatSubs, chatID)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}
