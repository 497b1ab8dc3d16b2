package service

import (
	"errors"

	"chatsync/internal/apperr"
	"chatsync/internal/model"
	"chatsync/internal/repository"

	"gorm.io/gorm"
)

// AcceptResult carries the effects of accepting a request: the updated
// ledger row and the (possibly pre-existing) private chat.
type AcceptResult struct {
	Request *model.FriendRequest `json:"request"`
	Chat    *model.Chat          `json:"chat"`
}

type FriendshipService interface {
	SendFriendRequest(fromID, toID string) (*model.FriendRequest, error)
	AcceptFriendRequest(requestID, userID string) (*AcceptResult, error)
	RejectFriendRequest(requestID, userID string) error
	RemoveFriend(userID, peerID string) error
	GetPendingRequests(userID string) ([]model.FriendRequest, error)
	GetFriends(userID string) ([]model.FriendEdge, error)
	// GetFriendshipStatus derives the viewer's status toward peer and
	// repairs a half-written edge pair when it encounters one.
	GetFriendshipStatus(userID, peerID string) (string, error)
	RepairEdges(a, b string) error
	// ReconcileUser sweeps every edge the user owns and repairs
	// asymmetric pairs. Run when a session starts.
	ReconcileUser(userID string) error
}

type friendshipService struct {
	requestRepo  repository.FriendRequestRepository
	edgeRepo     repository.FriendEdgeRepository
	chatRepo     repository.ChatRepository
	userRepo     repository.UserRepository
	notifService NotificationService
}

func NewFriendshipService(
	requestRepo repository.FriendRequestRepository,
	edgeRepo repository.FriendEdgeRepository,
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	notifService NotificationService,
) FriendshipService {
	return &friendshipService{
		requestRepo:  requestRepo,
		edgeRepo:     edgeRepo,
		chatRepo:     chatRepo,
		userRepo:     userRepo,
		notifService: notifService,
	}
}

// SendFriendRequest opens a pending request from fromID to toID. Safe
// to call repeatedly: while a pending request exists for the pair the
// existing row is returned, nothing new is written. Only a pending row
// blocks the pair; a terminal row from an earlier round (rejected, or
// accepted with the friendship since removed) reopens as a fresh
// request.
func (s *friendshipService) SendFriendRequest(fromID, toID string) (*model.FriendRequest, error) {
	if fromID == toID {
		return nil, apperr.InvalidArgument("cannot send a friend request to yourself")
	}

	sender, err := s.userRepo.FindByID(fromID)
	if err != nil {
		return nil, storeErr(err, "sender not found")
	}
	if _, err := s.userRepo.FindByID(toID); err != nil {
		return nil, storeErr(err, "receiver not found")
	}

	fresh := &model.FriendRequest{
		FromID:          fromID,
		ToID:            toID,
		FromDisplayName: sender.DisplayName,
		FromEmail:       sender.Email,
		FromAvatarURL:   sender.AvatarURL,
	}

	req, created, err := s.requestRepo.CreatePendingIfAbsent(fresh)
	if err != nil {
		return nil, apperr.Unavailable("failed to create friend request", err)
	}

	if !created {
		switch req.Status {
		case model.RequestStatusPending:
			// Idempotent resend, return the open request as-is.
			return req, nil
		case model.RequestStatusAccepted:
			ab, ba, ferr := s.edgeRepo.FindPair(fromID, toID)
			if ferr != nil {
				return nil, apperr.Unavailable("failed to load friend edges", ferr)
			}
			if (ab != nil && ab.Status == model.EdgeStatusAccepted) ||
				(ba != nil && ba.Status == model.EdgeStatusAccepted) {
				return nil, apperr.Conflict("already friends")
			}
			// Accepted row but no accepted edge: the friendship was
			// removed, so the pair is open again.
			req, err = s.reopenRequest(fresh, model.RequestStatusAccepted)
		default:
			req, err = s.reopenRequest(fresh, model.RequestStatusRejected)
		}
		if err != nil {
			return nil, err
		}
	}

	// Notify the receiver (async, non-blocking)
	go func() {
		s.notifService.SendFriendRequestNotification(toID, fromID, sender.DisplayName, req.ID)
	}()

	return req, nil
}

// reopenRequest flips a terminal ledger row back to pending with a
// refreshed sender snapshot. On a lost race the row is re-read: another
// sender reopening concurrently is fine, anything else conflicts.
func (s *friendshipService) reopenRequest(fresh *model.FriendRequest, fromStatus string) (*model.FriendRequest, error) {
	reopened, err := s.requestRepo.ReopenAsPending(fresh, fromStatus)
	if err != nil {
		return nil, apperr.Unavailable("failed to reopen friend request", err)
	}
	if !reopened {
		cur, err := s.requestRepo.FindByID(model.RequestID(fresh.FromID, fresh.ToID))
		if err != nil {
			return nil, storeErr(err, "friend request not found")
		}
		if cur.Status == model.RequestStatusPending {
			return cur, nil
		}
		return nil, apperr.Conflict("already friends")
	}

	cur, err := s.requestRepo.FindByID(model.RequestID(fresh.FromID, fresh.ToID))
	if err != nil {
		return nil, storeErr(err, "friend request not found")
	}
	return cur, nil
}

// AcceptFriendRequest flips the request to accepted, writes the
// mirrored accepted edges, and opens (or finds) the private chat. The
// three steps are individually idempotent, so re-running a partially
// failed accept converges on the same end state.
func (s *friendshipService) AcceptFriendRequest(requestID, userID string) (*AcceptResult, error) {
	req, err := s.requestRepo.FindByID(requestID)
	if err != nil {
		return nil, storeErr(err, "friend request not found")
	}
	if req.ToID != userID {
		return nil, apperr.InvalidArgument("only the recipient can accept a friend request")
	}
	if req.Status == model.RequestStatusRejected {
		return nil, apperr.NotFound("friend request is no longer pending")
	}

	flipped, err := s.requestRepo.MarkAccepted(requestID)
	if err != nil {
		return nil, apperr.Unavailable("failed to accept friend request", err)
	}
	if !flipped && req.Status == model.RequestStatusPending {
		// Lost a race with another transition; re-read to find out which.
		req, err = s.requestRepo.FindByID(requestID)
		if err != nil {
			return nil, storeErr(err, "friend request not found")
		}
		if req.Status != model.RequestStatusAccepted {
			return nil, apperr.NotFound("friend request is no longer pending")
		}
	}
	req.Status = model.RequestStatusAccepted

	if err := s.setMirroredStatus(req.FromID, req.ToID, model.EdgeStatusAccepted); err != nil {
		return nil, err
	}

	chat, _, err := s.chatRepo.GetOrCreatePrivate(req.FromID, req.ToID)
	if err != nil {
		return nil, apperr.Unavailable("failed to open private chat", err)
	}

	if flipped {
		go func() {
			receiver, err := s.userRepo.FindByID(req.ToID)
			if err != nil {
				return
			}
			s.notifService.SendFriendAcceptedNotification(req.FromID, req.ToID, receiver.DisplayName, req.ID)
		}()
	}

	return &AcceptResult{Request: req, Chat: chat}, nil
}

// RejectFriendRequest flips the request to rejected. No edges or chats
// are touched.
func (s *friendshipService) RejectFriendRequest(requestID, userID string) error {
	req, err := s.requestRepo.FindByID(requestID)
	if err != nil {
		return storeErr(err, "friend request not found")
	}
	if req.ToID != userID {
		return apperr.InvalidArgument("only the recipient can reject a friend request")
	}

	flipped, err := s.requestRepo.MarkRejected(requestID)
	if err != nil {
		return apperr.Unavailable("failed to reject friend request", err)
	}
	if !flipped {
		return apperr.NotFound("friend request is no longer pending")
	}

	go func() {
		receiver, err := s.userRepo.FindByID(req.ToID)
		if err != nil {
			return
		}
		s.notifService.SendFriendRejectedNotification(req.FromID, req.ToID, receiver.DisplayName, req.ID)
	}()

	return nil
}

// RemoveFriend deletes both sides of the relationship. A missing side
// means "not friends" and is not an error.
func (s *friendshipService) RemoveFriend(userID, peerID string) error {
	if userID == peerID {
		return apperr.InvalidArgument("cannot unfriend yourself")
	}

	if err := s.edgeRepo.DeletePair(userID, peerID); err != nil {
		return apperr.Unavailable("failed to remove friend", err)
	}

	go func() {
		remover, err := s.userRepo.FindByID(userID)
		if err != nil {
			return
		}
		s.notifService.SendFriendRemovedNotification(peerID, userID, remover.DisplayName)
	}()

	return nil
}

func (s *friendshipService) GetPendingRequests(userID string) ([]model.FriendRequest, error) {
	reqs, err := s.requestRepo.FindPendingByToID(userID)
	if err != nil {
		return nil, apperr.Unavailable("failed to load pending requests", err)
	}
	return reqs, nil
}

func (s *friendshipService) GetFriends(userID string) ([]model.FriendEdge, error) {
	edges, err := s.edgeRepo.FindAcceptedByOwner(userID)
	if err != nil {
		return nil, apperr.Unavailable("failed to load friends", err)
	}
	return edges, nil
}

func (s *friendshipService) GetFriendshipStatus(userID, peerID string) (string, error) {
	ab, ba, err := s.edgeRepo.FindPair(userID, peerID)
	if err != nil {
		return "", apperr.Unavailable("failed to load friend edges", err)
	}

	if ab != nil && ab.Status == model.EdgeStatusAccepted {
		if ba == nil || ba.Status != model.EdgeStatusAccepted {
			// Half-written pair, heal it before answering.
			if err := s.RepairEdges(userID, peerID); err != nil {
				return "", err
			}
		}
		return model.EdgeStatusAccepted, nil
	}
	if ba != nil && ba.Status == model.EdgeStatusAccepted {
		if err := s.RepairEdges(userID, peerID); err != nil {
			return "", err
		}
		return model.EdgeStatusAccepted, nil
	}

	// No accepted edge; the ledger decides between open directions.
	if req, err := s.requestRepo.FindByID(model.RequestID(userID, peerID)); err == nil &&
		req.Status == model.RequestStatusPending {
		return "outgoing", nil
	}
	if req, err := s.requestRepo.FindByID(model.RequestID(peerID, userID)); err == nil &&
		req.Status == model.RequestStatusPending {
		return "incoming", nil
	}
	return "none", nil
}

// RepairEdges re-reads both sides of a pair and rewrites the mirror
// when it finds asymmetry. Accepting either side as truth, accepted
// wins over any other state.
func (s *friendshipService) RepairEdges(a, b string) error {
	ab, ba, err := s.edgeRepo.FindPair(a, b)
	if err != nil {
		return apperr.Unavailable("failed to load friend edges", err)
	}
	if ab == nil && ba == nil {
		return nil
	}

	status := ""
	switch {
	case ab != nil && ab.Status == model.EdgeStatusAccepted:
		status = model.EdgeStatusAccepted
	case ba != nil && ba.Status == model.EdgeStatusAccepted:
		status = model.EdgeStatusAccepted
	case ab != nil:
		status = ab.Status
	default:
		status = model.MirrorOf(ba.Status)
	}

	if ab != nil && ba != nil && ab.Status == status && ba.Status == model.MirrorOf(status) {
		return nil
	}
	return s.setMirroredStatus(a, b, status)
}

func (s *friendshipService) ReconcileUser(userID string) error {
	edges, err := s.edgeRepo.FindByOwner(userID)
	if err != nil {
		return apperr.Unavailable("failed to load friend edges", err)
	}
	for _, e := range edges {
		if err := s.RepairEdges(e.OwnerID, e.PeerID); err != nil {
			return err
		}
	}
	return nil
}

// setMirroredStatus writes owner→peer with status and peer→owner with
// its mirror, submitted together as one batch.
func (s *friendshipService) setMirroredStatus(a, b, status string) error {
	err := s.edgeRepo.UpsertPair(
		&model.FriendEdge{OwnerID: a, PeerID: b, Status: status},
		&model.FriendEdge{OwnerID: b, PeerID: a, Status: model.MirrorOf(status)},
	)
	if err != nil {
		return apperr.Unavailable("failed to write friend edges", err)
	}
	return nil
}

// storeErr maps a backing store read failure to the service's error
// vocabulary: missing rows are NotFound, everything else is a
// retryable Unavailable.
func storeErr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s", msg)
	}
	return apperr.Unavailable(msg, err)
}
