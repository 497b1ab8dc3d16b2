package service

import (
	"sync"
	"time"

	"chatsync/internal/feed"
	"chatsync/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// In-memory repository fakes. Each mirrors its real counterpart's
// contract: missing rows surface as gorm.ErrRecordNotFound and every
// mutation is atomic under the fake's lock.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*model.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) FindByID(id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) FindByEmail(email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) FindAllExcept(selfID string) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		if u.ID != selfID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) Search(query, selfID string, limit int) ([]model.User, error) {
	return r.FindAllExcept(selfID)
}

func (r *fakeUserRepo) UpdateAvatar(userID, avatarURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.AvatarURL = avatarURL
	return nil
}

type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*model.FriendRequest
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[string]*model.FriendRequest)}
}

func (r *fakeRequestRepo) CreatePendingIfAbsent(req *model.FriendRequest) (*model.FriendRequest, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := model.RequestID(req.FromID, req.ToID)
	if existing, ok := r.requests[id]; ok {
		cp := *existing
		return &cp, false, nil
	}
	req.ID = id
	req.Status = model.RequestStatusPending
	req.CreatedAt = time.Now()
	r.requests[id] = req
	cp := *req
	return &cp, true, nil
}

func (r *fakeRequestRepo) ReopenAsPending(req *model.FriendRequest, fromStatus string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := model.RequestID(req.FromID, req.ToID)
	existing, ok := r.requests[id]
	if !ok || existing.Status != fromStatus {
		return false, nil
	}
	existing.Status = model.RequestStatusPending
	existing.FromDisplayName = req.FromDisplayName
	existing.FromEmail = req.FromEmail
	existing.FromAvatarURL = req.FromAvatarURL
	existing.CreatedAt = time.Now()
	return true, nil
}

func (r *fakeRequestRepo) FindByID(id string) (*model.FriendRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *fakeRequestRepo) transition(id, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != model.RequestStatusPending {
		return false, nil
	}
	req.Status = to
	return true, nil
}

func (r *fakeRequestRepo) MarkAccepted(id string) (bool, error) {
	return r.transition(id, model.RequestStatusAccepted)
}

func (r *fakeRequestRepo) MarkRejected(id string) (bool, error) {
	return r.transition(id, model.RequestStatusRejected)
}

func (r *fakeRequestRepo) FindByFromID(fromID string) ([]model.FriendRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.FriendRequest
	for _, req := range r.requests {
		if req.FromID == fromID {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (r *fakeRequestRepo) FindByToID(toID string) ([]model.FriendRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.FriendRequest
	for _, req := range r.requests {
		if req.ToID == toID {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (r *fakeRequestRepo) FindPendingByToID(toID string) ([]model.FriendRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.FriendRequest
	for _, req := range r.requests {
		if req.ToID == toID && req.Status == model.RequestStatusPending {
			out = append(out, *req)
		}
	}
	return out, nil
}

type fakeEdgeRepo struct {
	mu    sync.Mutex
	edges map[string]*model.FriendEdge // keyed owner:peer
}

func newFakeEdgeRepo() *fakeEdgeRepo {
	return &fakeEdgeRepo{edges: make(map[string]*model.FriendEdge)}
}

func edgeKey(ownerID, peerID string) string {
	return ownerID + ":" + peerID
}

func (r *fakeEdgeRepo) UpsertPair(a, b *model.FriendEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ca, cb := *a, *b
	r.edges[edgeKey(a.OwnerID, a.PeerID)] = &ca
	r.edges[edgeKey(b.OwnerID, b.PeerID)] = &cb
	return nil
}

// put writes one side only, simulating a crashed half-finished batch.
func (r *fakeEdgeRepo) put(e *model.FriendEdge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.edges[edgeKey(e.OwnerID, e.PeerID)] = &cp
}

func (r *fakeEdgeRepo) DeletePair(ownerID, peerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.edges, edgeKey(ownerID, peerID))
	delete(r.edges, edgeKey(peerID, ownerID))
	return nil
}

func (r *fakeEdgeRepo) FindPair(ownerID, peerID string) (*model.FriendEdge, *model.FriendEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ab, ba *model.FriendEdge
	if e, ok := r.edges[edgeKey(ownerID, peerID)]; ok {
		cp := *e
		ab = &cp
	}
	if e, ok := r.edges[edgeKey(peerID, ownerID)]; ok {
		cp := *e
		ba = &cp
	}
	return ab, ba, nil
}

func (r *fakeEdgeRepo) FindByOwner(ownerID string) ([]model.FriendEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.FriendEdge
	for _, e := range r.edges {
		if e.OwnerID == ownerID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeEdgeRepo) FindAcceptedByOwner(ownerID string) ([]model.FriendEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.FriendEdge
	for _, e := range r.edges {
		if e.OwnerID == ownerID && e.Status == model.EdgeStatusAccepted {
			out = append(out, *e)
		}
	}
	return out, nil
}

type fakeChatRepo struct {
	mu    sync.Mutex
	chats map[string]*model.Chat
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{chats: make(map[string]*model.Chat)}
}

func (r *fakeChatRepo) GetOrCreatePrivate(a, b string) (*model.Chat, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := model.PrivateChatID(a, b)
	if chat, ok := r.chats[id]; ok {
		cp := *chat
		return &cp, false, nil
	}
	key := model.PairKey(a, b)
	chat := &model.Chat{
		ID:        id,
		Type:      model.ChatTypePrivate,
		PairKey:   &key,
		CreatedAt: time.Now(),
		Members: []model.ChatMember{
			{ChatID: id, UserID: a},
			{ChatID: id, UserID: b},
		},
	}
	r.chats[id] = chat
	cp := *chat
	return &cp, true, nil
}

func (r *fakeChatRepo) CreateGroup(name string, memberIDs []string) (*model.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat := &model.Chat{
		ID:        uuid.New().String(),
		Type:      model.ChatTypeGroup,
		Name:      name,
		CreatedAt: time.Now(),
	}
	for _, id := range memberIDs {
		chat.Members = append(chat.Members, model.ChatMember{ChatID: chat.ID, UserID: id})
	}
	r.chats[chat.ID] = chat
	cp := *chat
	return &cp, nil
}

func (r *fakeChatRepo) FindByID(id string) (*model.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *chat
	return &cp, nil
}

func (r *fakeChatRepo) FindByMember(userID string) ([]model.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Chat
	for _, chat := range r.chats {
		if chat.HasMember(userID) {
			out = append(out, *chat)
		}
	}
	return out, nil
}

func (r *fakeChatRepo) IsMember(chatID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok {
		return false, nil
	}
	return chat.HasMember(userID), nil
}

func (r *fakeChatRepo) UpdateLastMessage(chatID, text string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	chat.LastMessage = text
	chat.LastMessageAt = &at
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []model.Message
	reads    map[string]map[string]bool // messageID → userID
	nextSeq  int64
	bus      *feed.Bus
}

func newFakeMessageRepo(bus *feed.Bus) *fakeMessageRepo {
	return &fakeMessageRepo{reads: make(map[string]map[string]bool), bus: bus}
}

func (r *fakeMessageRepo) Create(msg *model.Message) error {
	r.mu.Lock()
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	r.nextSeq++
	msg.Seq = r.nextSeq
	msg.CreatedAt = time.Now()
	r.messages = append(r.messages, *msg)
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Publish(feed.MessagesTopic(msg.ChatID))
	}
	return nil
}

func (r *fakeMessageRepo) ListByChat(chatID string, limit int) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Message
	for _, m := range r.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *fakeMessageRepo) MarkRead(chatID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ChatID != chatID || m.SenderID == userID {
			continue
		}
		if r.reads[m.ID] == nil {
			r.reads[m.ID] = make(map[string]bool)
		}
		r.reads[m.ID][userID] = true
	}
	return nil
}

func (r *fakeMessageRepo) UnreadCount(chatID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.messages {
		if m.ChatID == chatID && m.SenderID != userID && !r.reads[m.ID][userID] {
			n++
		}
	}
	return n, nil
}

// noopNotifier satisfies NotificationService without side effects.
type noopNotifier struct{}

func (noopNotifier) SendFriendRequestNotification(receiverID, senderID, senderName, requestID string) error {
	return nil
}

func (noopNotifier) SendFriendAcceptedNotification(receiverID, senderID, senderName, requestID string) error {
	return nil
}

func (noopNotifier) SendFriendRejectedNotification(receiverID, senderID, senderName, requestID string) error {
	return nil
}

func (noopNotifier) SendFriendRemovedNotification(receiverID, senderID, senderName string) error {
	return nil
}

func (noopNotifier) SendNewMessageNotification(receiverID, senderID, senderName, chatID string) error {
	return nil
}

func (noopNotifier) GetNotificationsByUserID(userID string, limit, offset int) ([]*model.Notification, error) {
	return nil, nil
}

func (noopNotifier) GetUnreadNotifications(userID string) ([]*model.Notification, error) {
	return nil, nil
}

func (noopNotifier) GetUnreadCount(userID string) (int64, error) { return 0, nil }

func (noopNotifier) MarkAsRead(notificationID, userID string) error { return nil }

func (noopNotifier) MarkAllAsRead(userID string) error { return nil }

func (noopNotifier) SetWSHub(hub interface {
	BroadcastToUser(string, map[string]interface{})
}) {
}
