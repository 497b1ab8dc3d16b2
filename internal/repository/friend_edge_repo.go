package repository

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"chatsync/internal/feed"
	"chatsync/internal/model"
	"chatsync/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FriendEdgeRepository interface {
	// UpsertPair writes both sides of a relationship in one batch so a
	// reader never observes only half of it.
	UpsertPair(a, b *model.FriendEdge) error
	// DeletePair removes both sides. A missing side is not an error.
	DeletePair(ownerID, peerID string) error
	FindPair(ownerID, peerID string) (*model.FriendEdge, *model.FriendEdge, error)
	FindByOwner(ownerID string) ([]model.FriendEdge, error)
	FindAcceptedByOwner(ownerID string) ([]model.FriendEdge, error)
}

type friendEdgeRepository struct {
	db    *gorm.DB
	redis *util.RedisClient
	bus   *feed.Bus
}

const (
	edgeAcceptedCachePrefix = "edges:accepted:"
	edgeCacheExpiration     = 15 * time.Minute
)

func NewFriendEdgeRepository(db *gorm.DB, redis *util.RedisClient, bus *feed.Bus) FriendEdgeRepository {
	return &friendEdgeRepository{
		db:    db,
		redis: redis,
		bus:   bus,
	}
}

func (r *friendEdgeRepository) UpsertPair(a, b *model.FriendEdge) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		upsert := clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "peer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
		}
		if err := tx.Clauses(upsert).Create(a).Error; err != nil {
			return err
		}
		return tx.Clauses(upsert).Create(b).Error
	})
	if err != nil {
		return err
	}

	r.invalidateCache(a.OwnerID)
	r.invalidateCache(b.OwnerID)
	r.bus.Publish(feed.TopicEdges)
	return nil
}

func (r *friendEdgeRepository) DeletePair(ownerID, peerID string) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ? AND peer_id = ?", ownerID, peerID).
			Delete(&model.FriendEdge{}).Error; err != nil {
			return err
		}
		return tx.Where("owner_id = ? AND peer_id = ?", peerID, ownerID).
			Delete(&model.FriendEdge{}).Error
	})
	if err != nil {
		return err
	}

	r.invalidateCache(ownerID)
	r.invalidateCache(peerID)
	r.bus.Publish(feed.TopicEdges)
	return nil
}

// FindPair reads both sides of a relationship. A missing side comes
// back nil, which is how callers detect asymmetry to repair.
func (r *friendEdgeRepository) FindPair(ownerID, peerID string) (*model.FriendEdge, *model.FriendEdge, error) {
	var ab, ba *model.FriendEdge

	var edge model.FriendEdge
	err := r.db.Where("owner_id = ? AND peer_id = ?", ownerID, peerID).First(&edge).Error
	switch {
	case err == nil:
		e := edge
		ab = &e
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil, err
	}

	var reverse model.FriendEdge
	err = r.db.Where("owner_id = ? AND peer_id = ?", peerID, ownerID).First(&reverse).Error
	switch {
	case err == nil:
		e := reverse
		ba = &e
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil, err
	}

	return ab, ba, nil
}

func (r *friendEdgeRepository) FindByOwner(ownerID string) ([]model.FriendEdge, error) {
	var edges []model.FriendEdge
	err := r.db.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&edges).Error
	if err != nil {
		return nil, err
	}
	return filterValidEdges(edges), nil
}

func (r *friendEdgeRepository) FindAcceptedByOwner(ownerID string) ([]model.FriendEdge, error) {
	// Try cache first
	if r.redis != nil {
		if cached, err := r.redis.Get(edgeAcceptedCachePrefix + ownerID); err == nil {
			var edges []model.FriendEdge
			if err := json.Unmarshal([]byte(cached), &edges); err == nil {
				return edges, nil
			}
		}
	}

	var edges []model.FriendEdge
	err := r.db.Where("owner_id = ? AND status = ?", ownerID, model.EdgeStatusAccepted).
		Order("created_at DESC").
		Find(&edges).Error
	if err != nil {
		return nil, err
	}
	edges = filterValidEdges(edges)

	// Cache the result
	if r.redis != nil {
		if err := r.redis.Set(edgeAcceptedCachePrefix+ownerID, edges, edgeCacheExpiration); err != nil {
			log.Printf("Failed to cache accepted edges for %s: %v", ownerID, err)
		}
	}

	return edges, nil
}

func (r *friendEdgeRepository) invalidateCache(ownerID string) {
	if r.redis == nil {
		return
	}
	if err := r.redis.Delete(edgeAcceptedCachePrefix + ownerID); err != nil {
		log.Printf("Failed to invalidate edge cache for %s: %v", ownerID, err)
	}
}

func filterValidEdges(edges []model.FriendEdge) []model.FriendEdge {
	valid := edges[:0]
	for i := range edges {
		if !edges[i].Valid() {
			log.Printf("Skipping malformed friend edge record %s->%s", edges[i].OwnerID, edges[i].PeerID)
			continue
		}
		valid = append(valid, edges[i])
	}
	return valid
}
