package repository

import (
	"encoding/json"
	"log"
	"time"

	"chatsync/internal/feed"
	"chatsync/internal/model"
	"chatsync/internal/util"

	"gorm.io/gorm"
)

type UserRepository interface {
	Create(user *model.User) error
	FindByID(id string) (*model.User, error)
	FindByEmail(email string) (*model.User, error)
	FindAllExcept(selfID string) ([]model.User, error)
	Search(query, selfID string, limit int) ([]model.User, error)
	UpdateAvatar(userID, avatarURL string) error
}

type userRepository struct {
	db    *gorm.DB
	redis *util.RedisClient
	bus   *feed.Bus
}

const (
	userCachePrefix     = "user:"
	userCacheExpiration = 15 * time.Minute
)

func NewUserRepository(db *gorm.DB, redis *util.RedisClient, bus *feed.Bus) UserRepository {
	return &userRepository{
		db:    db,
		redis: redis,
		bus:   bus,
	}
}

// Create creates a new user
func (r *userRepository) Create(user *model.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return err
	}
	r.bus.Publish(feed.TopicUsers)
	return nil
}

// FindByID finds a user by ID
func (r *userRepository) FindByID(id string) (*model.User, error) {
	// Try cache first
	if r.redis != nil {
		if cached, err := r.redis.Get(userCachePrefix + id); err == nil {
			var user model.User
			if err := json.Unmarshal([]byte(cached), &user); err == nil {
				return &user, nil
			}
		}
	}

	var user model.User
	if err := r.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}

	// Cache the result
	if r.redis != nil {
		if err := r.redis.Set(userCachePrefix+id, &user, userCacheExpiration); err != nil {
			log.Printf("Failed to cache user %s: %v", id, err)
		}
	}

	return &user, nil
}

// FindByEmail finds a user by email
func (r *userRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindAllExcept returns every user except selfID. Rows that fail
// validation are skipped so one bad record cannot poison a snapshot.
func (r *userRepository) FindAllExcept(selfID string) ([]model.User, error) {
	var users []model.User
	err := r.db.Where("id <> ?", selfID).
		Order("display_name ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return filterValidUsers(users), nil
}

// Search finds users by display name or email
func (r *userRepository) Search(query, selfID string, limit int) ([]model.User, error) {
	var users []model.User
	pattern := "%" + query + "%"
	err := r.db.Where("id <> ? AND (display_name ILIKE ? OR email ILIKE ?)", selfID, pattern, pattern).
		Order("display_name ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return filterValidUsers(users), nil
}

// UpdateAvatar updates a user's avatar reference
func (r *userRepository) UpdateAvatar(userID, avatarURL string) error {
	err := r.db.Model(&model.User{}).Where("id = ?", userID).
		Update("avatar_url", avatarURL).Error
	if err != nil {
		return err
	}

	// Invalidate cache
	if r.redis != nil {
		if err := r.redis.Delete(userCachePrefix + userID); err != nil {
			log.Printf("Failed to invalidate user cache %s: %v", userID, err)
		}
	}

	r.bus.Publish(feed.TopicUsers)
	return nil
}

func filterValidUsers(users []model.User) []model.User {
	valid := users[:0]
	for i := range users {
		if !users[i].Valid() {
			log.Printf("Skipping malformed user record %q", users[i].ID)
			continue
		}
		valid = append(valid, users[i])
	}
	return valid
}
