package ads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classifieds-marketplace/internal/models"

	"gorm.io/gorm"
)

// OwnerSummary is the public view of an ad owner
type OwnerSummary struct {
	ID        string           `json:"id"`
	Type      models.OwnerType `json:"type"`
	Name      string           `json:"name"`
	Phone     string           `json:"phone,omitempty"`
	AvatarURL string           `json:"avatarUrl,omitempty"`
	City      string           `json:"city,omitempty"`
}

// ChatRoomSummary is one conversation about an ad
type ChatRoomSummary struct {
	ID            string     `json:"id"`
	BuyerID       string     `json:"buyerId"`
	LastMessage   string     `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
}

// OwnerDirectory resolves owner summaries
type OwnerDirectory interface {
	Summary(ctx context.Context, ownerID string, ownerType models.OwnerType) (*OwnerSummary, error)
}

// Favorites answers favorite counts and per-viewer flags
type Favorites interface {
	Count(ctx context.Context, adID string) (int64, error)
	FavoritedSet(ctx context.Context, viewerID string, adIDs []string) (map[string]bool, error)
}

// ChatRooms lists conversations visible to the viewer
type ChatRooms interface {
	SummariesForAd(ctx context.Context, adID, ownerID, viewerID string) ([]ChatRoomSummary, error)
}

// GormOwnerDirectory reads users and showrooms
type GormOwnerDirectory struct {
	db *gorm.DB
}

func NewGormOwnerDirectory(db *gorm.DB) *GormOwnerDirectory {
	return &GormOwnerDirectory{db: db}
}

func (d *GormOwnerDirectory) Summary(ctx context.Context, ownerID string, ownerType models.OwnerType) (*OwnerSummary, error) {
	db := d.db.WithContext(ctx)
	summary := &OwnerSummary{ID: ownerID, Type: ownerType}

	var err error
	if ownerType == models.OwnerTypeShowroom {
		var s models.Showroom
		if err = db.Where("id = ?", ownerID).Take(&s).Error; err == nil {
			summary.Name, summary.Phone, summary.AvatarURL, summary.City = s.Name, s.Phone, s.LogoURL, s.City
		}
	} else {
		var u models.User
		if err = db.Where("id = ?", ownerID).Take(&u).Error; err == nil {
			summary.Name, summary.Phone, summary.AvatarURL = u.Name, u.Phone, u.AvatarURL
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return summary, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load owner %s: %w", ownerID, err)
	}
	return summary, nil
}

// GormFavorites reads the favorites table
type GormFavorites struct {
	db *gorm.DB
}

func NewGormFavorites(db *gorm.DB) *GormFavorites {
	return &GormFavorites{db: db}
}

func (f *GormFavorites) Count(ctx context.Context, adID string) (int64, error) {
	var n int64
	if err := f.db.WithContext(ctx).Model(&models.Favorite{}).Where("ad_id = ?", adID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count favorites: %w", err)
	}
	return n, nil
}

func (f *GormFavorites) FavoritedSet(ctx context.Context, viewerID string, adIDs []string) (map[string]bool, error) {
	set := make(map[string]bool, len(adIDs))
	if viewerID == "" || len(adIDs) == 0 {
		return set, nil
	}

	var ids []string
	err := f.db.WithContext(ctx).Model(&models.Favorite{}).
		Where("user_id = ? AND ad_id IN ?", viewerID, adIDs).
		Pluck("ad_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// GormChatRooms reads chat_rooms. Owners see every room of their ad, buyers
// see their own, anonymous viewers see none.
type GormChatRooms struct {
	db    *gorm.DB
	limit int
}

func NewGormChatRooms(db *gorm.DB) *GormChatRooms {
	return &GormChatRooms{db: db, limit: 20}
}

func (c *GormChatRooms) SummariesForAd(ctx context.Context, adID, ownerID, viewerID string) ([]ChatRoomSummary, error) {
	summaries := []ChatRoomSummary{}
	if viewerID == "" {
		return summaries, nil
	}

	tx := c.db.WithContext(ctx).Where("ad_id = ?", adID)
	if viewerID != ownerID {
		tx = tx.Where("buyer_id = ?", viewerID)
	}

	var rooms []models.ChatRoom
	if err := tx.Order("last_message_at DESC").Order("created_at DESC").Limit(c.limit).Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to load chat rooms: %w", err)
	}
	for _, r := range rooms {
		summaries = append(summaries, ChatRoomSummary{
			ID:            r.ID,
			BuyerID:       r.BuyerID,
			LastMessage:   r.LastMessage,
			LastMessageAt: r.LastMessageAt,
		})
	}
	return summaries, nil
}
