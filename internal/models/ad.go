package models

import "time"

// Category is the marketplace section an ad is listed under
type Category string

const (
	CategoryProperty          Category = "property"
	CategoryPrivateVehicle    Category = "private_vehicle"
	CategoryCommercialVehicle Category = "commercial_vehicle"
	CategoryTwoWheeler        Category = "two_wheeler"
)

// SubtypeKind identifies which subtype table holds the category attributes
type SubtypeKind string

const (
	SubtypeProperty          SubtypeKind = "property"
	SubtypeVehicle           SubtypeKind = "vehicle"
	SubtypeCommercialVehicle SubtypeKind = "commercial_vehicle"
)

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	switch c {
	case CategoryProperty, CategoryPrivateVehicle, CategoryCommercialVehicle, CategoryTwoWheeler:
		return true
	}
	return false
}

// SubtypeKind maps a category to its subtype table. Two-wheelers share the vehicle table.
func (c Category) SubtypeKind() SubtypeKind {
	switch c {
	case CategoryProperty:
		return SubtypeProperty
	case CategoryCommercialVehicle:
		return SubtypeCommercialVehicle
	default:
		return SubtypeVehicle
	}
}

// IsVehicle reports whether the category goes through inventory validation
func (c Category) IsVehicle() bool {
	return c == CategoryPrivateVehicle || c == CategoryTwoWheeler || c == CategoryCommercialVehicle
}

// OwnerType distinguishes private sellers from showrooms
type OwnerType string

const (
	OwnerTypeUser     OwnerType = "user"
	OwnerTypeShowroom OwnerType = "showroom"
)

// Ad is the base advertisement record shared by every category
type Ad struct {
	ID          string   `gorm:"type:varchar(36);primaryKey" json:"id"`
	Category    Category `gorm:"type:varchar(32);not null;index" json:"category"`
	Title       string   `gorm:"type:varchar(255);not null" json:"title"`
	Description string   `gorm:"type:text;not null" json:"description"`
	Price       float64  `gorm:"not null;index" json:"price"`
	Images      []string `gorm:"type:text;serializer:json" json:"images"`
	Link        string   `gorm:"type:varchar(500)" json:"link,omitempty"`

	// 位置情報
	Location  string   `gorm:"type:varchar(255);not null;index" json:"location"`
	Latitude  *float64 `gorm:"index:idx_ads_geo" json:"latitude,omitempty"`
	Longitude *float64 `gorm:"index:idx_ads_geo,priority:2" json:"longitude,omitempty"`
	District  string   `gorm:"type:varchar(120);index" json:"district,omitempty"`
	State     string   `gorm:"type:varchar(120);index" json:"state,omitempty"`
	Country   string   `gorm:"type:varchar(120);index" json:"country,omitempty"`

	OwnerID   string    `gorm:"type:varchar(64);not null;index" json:"ownerId"`
	OwnerType OwnerType `gorm:"type:varchar(16);not null" json:"ownerType"`

	// ライフサイクル（論理削除のみ）
	IsActive   bool  `gorm:"not null;index:idx_ads_visible" json:"isActive"`
	IsApproved bool  `gorm:"not null;index:idx_ads_visible,priority:2" json:"isApproved"`
	SoldOut    bool  `gorm:"not null" json:"soldOut"`
	IsDeleted  bool  `gorm:"not null;index:idx_ads_visible,priority:3" json:"isDeleted"`
	ViewCount  int64 `gorm:"not null" json:"viewCount"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index:idx_ads_created_at,sort:desc" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updatedAt"`

	Property          *PropertyDetails          `gorm:"foreignKey:AdID;references:ID" json:"property,omitempty"`
	Vehicle           *VehicleDetails           `gorm:"foreignKey:AdID;references:ID" json:"vehicle,omitempty"`
	CommercialVehicle *CommercialVehicleDetails `gorm:"foreignKey:AdID;references:ID" json:"commercialVehicle,omitempty"`
}

// TableName はテーブル名を明示的に指定
func (Ad) TableName() string {
	return "ads"
}

// IsVisible reports whether the ad can be served to readers
func (a *Ad) IsVisible() bool {
	return a.IsActive && a.IsApproved && !a.IsDeleted
}

// HasGeo reports whether the ad carries a coordinate pair
func (a *Ad) HasGeo() bool {
	return a.Latitude != nil && a.Longitude != nil
}

// SubtypeCount returns how many subtype records are attached after a preload
func (a *Ad) SubtypeCount() int {
	n := 0
	if a.Property != nil {
		n++
	}
	if a.Vehicle != nil {
		n++
	}
	if a.CommercialVehicle != nil {
		n++
	}
	return n
}
