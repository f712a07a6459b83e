package models

import "time"

// The records below are owned by other parts of the marketplace (accounts,
// showrooms, favorites, chat, inventory). This service only reads them.

// User is a private seller or buyer account
type User struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(120)" json:"name"`
	Phone     string    `gorm:"type:varchar(30)" json:"phone,omitempty"`
	AvatarURL string    `gorm:"type:text" json:"avatarUrl,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

// TableName specifies the table name
func (User) TableName() string { return "users" }

// Showroom is a dealer account that can own ads
type Showroom struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(160)" json:"name"`
	Phone     string    `gorm:"type:varchar(30)" json:"phone,omitempty"`
	LogoURL   string    `gorm:"type:text" json:"logoUrl,omitempty"`
	City      string    `gorm:"type:varchar(120)" json:"city,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

// TableName specifies the table name
func (Showroom) TableName() string { return "showrooms" }

// Favorite marks an ad as saved by a user
type Favorite struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_favorite_user_ad" json:"userId"`
	AdID      string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_favorite_user_ad,priority:2;index" json:"adId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName specifies the table name
func (Favorite) TableName() string { return "favorites" }

// ChatRoom is a buyer/seller conversation about an ad
type ChatRoom struct {
	ID            string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	AdID          string     `gorm:"type:varchar(36);not null;index" json:"adId"`
	BuyerID       string     `gorm:"type:varchar(64);not null;index" json:"buyerId"`
	SellerID      string     `gorm:"type:varchar(64);not null;index" json:"sellerId"`
	LastMessage   string     `gorm:"type:text" json:"lastMessage,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName specifies the table name
func (ChatRoom) TableName() string { return "chat_rooms" }

// Inventory reference data

type Manufacturer struct {
	ID   string `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name string `gorm:"type:varchar(120);not null" json:"name"`
}

func (Manufacturer) TableName() string { return "manufacturers" }

type VehicleModel struct {
	ID             string `gorm:"type:varchar(64);primaryKey" json:"id"`
	ManufacturerID string `gorm:"type:varchar(64);not null;index" json:"manufacturerId"`
	Name           string `gorm:"type:varchar(120);not null" json:"name"`
}

func (VehicleModel) TableName() string { return "vehicle_models" }

type Variant struct {
	ID      string `gorm:"type:varchar(64);primaryKey" json:"id"`
	ModelID string `gorm:"type:varchar(64);not null;index" json:"modelId"`
	Name    string `gorm:"type:varchar(120);not null" json:"name"`
}

func (Variant) TableName() string { return "variants" }

type Transmission struct {
	ID   string `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name string `gorm:"type:varchar(60);not null" json:"name"`
}

func (Transmission) TableName() string { return "transmissions" }

type FuelType struct {
	ID   string `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name string `gorm:"type:varchar(60);not null" json:"name"`
}

func (FuelType) TableName() string { return "fuel_types" }
