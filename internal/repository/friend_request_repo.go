package repository

import (
	"encoding/json"
	"log"
	"time"

	"chatsync/internal/feed"
	"chatsync/internal/model"
	"chatsync/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FriendRequestRepository interface {
	// CreatePendingIfAbsent inserts the request under its deterministic
	// ordered-pair id. The insert is a single conditional write: if a
	// row for the pair already exists (pending or terminal), nothing is
	// written and the existing row is returned with created=false.
	CreatePendingIfAbsent(req *model.FriendRequest) (*model.FriendRequest, bool, error)
	FindByID(id string) (*model.FriendRequest, error)
	// MarkAccepted flips pending→accepted. Returns false without error
	// when the row was not pending (already flipped, or terminal).
	MarkAccepted(id string) (bool, error)
	// MarkRejected flips pending→rejected under the same contract.
	MarkRejected(id string) (bool, error)
	// ReopenAsPending flips a terminal row back to pending and refreshes
	// the denormalized sender snapshot, conditional on the row still
	// holding fromStatus. Only a pending row blocks the pair; terminal
	// rows reopen as a fresh request. Returns false without error when
	// the row moved on under a concurrent caller.
	ReopenAsPending(req *model.FriendRequest, fromStatus string) (bool, error)
	FindByFromID(fromID string) ([]model.FriendRequest, error)
	FindByToID(toID string) ([]model.FriendRequest, error)
	FindPendingByToID(toID string) ([]model.FriendRequest, error)
}

type friendRequestRepository struct {
	db    *gorm.DB
	redis *util.RedisClient
	bus   *feed.Bus
}

const (
	requestPendingCachePrefix = "request:pending:"
	requestCacheExpiration    = 15 * time.Minute
)

func NewFriendRequestRepository(db *gorm.DB, redis *util.RedisClient, bus *feed.Bus) FriendRequestRepository {
	return &friendRequestRepository{
		db:    db,
		redis: redis,
		bus:   bus,
	}
}

func (r *friendRequestRepository) CreatePendingIfAbsent(req *model.FriendRequest) (*model.FriendRequest, bool, error) {
	req.ID = model.RequestID(req.FromID, req.ToID)
	req.Status = model.RequestStatusPending

	res := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(req)
	if res.Error != nil {
		return nil, false, res.Error
	}

	if res.RowsAffected == 0 {
		existing, err := r.FindByID(req.ID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	r.invalidatePendingCache(req.ToID)
	r.bus.Publish(feed.TopicRequests)
	return req, true, nil
}

func (r *friendRequestRepository) FindByID(id string) (*model.FriendRequest, error) {
	var req model.FriendRequest
	if err := r.db.Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *friendRequestRepository) ReopenAsPending(req *model.FriendRequest, fromStatus string) (bool, error) {
	req.ID = model.RequestID(req.FromID, req.ToID)

	res := r.db.Model(&model.FriendRequest{}).
		Where("id = ? AND status = ?", req.ID, fromStatus).
		Updates(map[string]interface{}{
			"status":            model.RequestStatusPending,
			"from_display_name": req.FromDisplayName,
			"from_email":        req.FromEmail,
			"from_avatar_url":   req.FromAvatarURL,
			"created_at":        time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	r.invalidatePendingCache(req.ToID)
	r.bus.Publish(feed.TopicRequests)
	return true, nil
}

func (r *friendRequestRepository) MarkAccepted(id string) (bool, error) {
	return r.transition(id, model.RequestStatusAccepted)
}

func (r *friendRequestRepository) MarkRejected(id string) (bool, error) {
	return r.transition(id, model.RequestStatusRejected)
}

// transition performs the conditional status flip. The WHERE clause on
// the current status is what makes the flip atomic under concurrent
// callers and keeps the two terminal states from overwriting each
// other.
func (r *friendRequestRepository) transition(id, to string) (bool, error) {
	res := r.db.Model(&model.FriendRequest{}).
		Where("id = ? AND status = ?", id, model.RequestStatusPending).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	if req, err := r.FindByID(id); err == nil {
		r.invalidatePendingCache(req.ToID)
	}
	r.bus.Publish(feed.TopicRequests)
	return true, nil
}

// FindByFromID returns every request the user sent, any status.
func (r *friendRequestRepository) FindByFromID(fromID string) ([]model.FriendRequest, error) {
	var reqs []model.FriendRequest
	err := r.db.Where("from_id = ?", fromID).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return filterValidRequests(reqs), nil
}

// FindByToID returns every request the user received, any status.
func (r *friendRequestRepository) FindByToID(toID string) ([]model.FriendRequest, error) {
	var reqs []model.FriendRequest
	err := r.db.Where("to_id = ?", toID).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return filterValidRequests(reqs), nil
}

// FindPendingByToID returns the user's open incoming requests.
func (r *friendRequestRepository) FindPendingByToID(toID string) ([]model.FriendRequest, error) {
	// Try cache first
	if r.redis != nil {
		if cached, err := r.redis.Get(requestPendingCachePrefix + toID); err == nil {
			var reqs []model.FriendRequest
			if err := json.Unmarshal([]byte(cached), &reqs); err == nil {
				return reqs, nil
			}
		}
	}

	var reqs []model.FriendRequest
	err := r.db.Where("to_id = ? AND status = ?", toID, model.RequestStatusPending).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	reqs = filterValidRequests(reqs)

	// Cache the result
	if r.redis != nil {
		if err := r.redis.Set(requestPendingCachePrefix+toID, reqs, requestCacheExpiration); err != nil {
			log.Printf("Failed to cache pending requests for %s: %v", toID, err)
		}
	}

	return reqs, nil
}

func (r *friendRequestRepository) invalidatePendingCache(toID string) {
	if r.redis == nil {
		return
	}
	if err := r.redis.Delete(requestPendingCachePrefix + toID); err != nil {
		log.Printf("Failed to invalidate pending request cache for %s: %v", toID, err)
	}
}

func filterValidRequests(reqs []model.FriendRequest) []model.FriendRequest {
	valid := reqs[:0]
	for i := range reqs {
		if !reqs[i].Valid() {
			log.Printf("Skipping malformed friend request record %q", reqs[i].ID)
			continue
		}
		valid = append(valid, reqs[i])
	}
	return valid
}
