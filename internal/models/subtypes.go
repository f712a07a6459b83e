package models

import "time"

// PropertyDetails holds the property-specific attributes of an ad
type PropertyDetails struct {
	ID           uint     `gorm:"primaryKey;autoIncrement" json:"-"`
	AdID         string   `gorm:"type:varchar(36);not null;uniqueIndex" json:"adId"`
	PropertyType string   `gorm:"type:varchar(50);not null;index" json:"propertyType"`
	ListingType  string   `gorm:"type:varchar(20)" json:"listingType,omitempty"` // sale, rent
	Bedrooms     int      `gorm:"index" json:"bedrooms"`
	Bathrooms    int      `json:"bathrooms"`
	AreaSqft     float64  `gorm:"index" json:"areaSqft"`
	Furnishing   string   `gorm:"type:varchar(30)" json:"furnishing,omitempty"`
	Floor        *int     `json:"floor,omitempty"`
	TotalFloors  *int     `json:"totalFloors,omitempty"`
	Amenities    []string `gorm:"type:text;serializer:json" json:"amenities,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

// TableName specifies the table name
func (PropertyDetails) TableName() string {
	return "property_details"
}

// VehicleSpec is the inventory-backed part shared by private and commercial vehicles
type VehicleSpec struct {
	ManufacturerID    string `gorm:"type:varchar(64);not null;index" json:"manufacturerId"`
	ModelID           string `gorm:"type:varchar(64);not null;index" json:"modelId"`
	VariantID         string `gorm:"type:varchar(64)" json:"variantId,omitempty"`
	TransmissionID    string `gorm:"type:varchar(64);index" json:"transmissionId,omitempty"`
	FuelTypeID        string `gorm:"type:varchar(64);index" json:"fuelTypeId,omitempty"`
	Year              int    `gorm:"index" json:"year,omitempty"`
	KmDriven          int    `json:"kmDriven,omitempty"`
	Color             string `gorm:"type:varchar(40)" json:"color,omitempty"`
	OwnersCount       int    `json:"ownersCount,omitempty"`
	RegistrationState string `gorm:"type:varchar(60)" json:"registrationState,omitempty"`
}

// VehicleDetails holds private vehicle and two-wheeler attributes
type VehicleDetails struct {
	ID          uint        `gorm:"primaryKey;autoIncrement" json:"-"`
	AdID        string      `gorm:"type:varchar(36);not null;uniqueIndex" json:"adId"`
	VehicleSpec `gorm:"embedded"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

// TableName specifies the table name
func (VehicleDetails) TableName() string {
	return "vehicle_details"
}

// CommercialVehicleDetails adds payload, body and permit data to the vehicle spec
type CommercialVehicleDetails struct {
	ID          uint        `gorm:"primaryKey;autoIncrement" json:"-"`
	AdID        string      `gorm:"type:varchar(36);not null;uniqueIndex" json:"adId"`
	VehicleSpec `gorm:"embedded"`

	CommercialVehicleType string     `gorm:"type:varchar(50)" json:"commercialVehicleType,omitempty"`
	BodyType              string     `gorm:"type:varchar(50)" json:"bodyType,omitempty"`
	PayloadCapacity       *float64   `json:"payloadCapacity,omitempty"` // kg
	AxleCount             *int       `json:"axleCount,omitempty"`
	SeatingCapacity       *int       `json:"seatingCapacity,omitempty"`
	PermitType            string     `gorm:"type:varchar(50)" json:"permitType,omitempty"`
	FitnessValidUntil     *time.Time `json:"fitnessValidUntil,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

// TableName specifies the table name
func (CommercialVehicleDetails) TableName() string {
	return "commercial_vehicle_details"
}

// Subtype is one of the three per-category detail records
type Subtype interface {
	Kind() SubtypeKind
	AttachTo(adID string)
}

func (d *PropertyDetails) Kind() SubtypeKind          { return SubtypeProperty }
func (d *VehicleDetails) Kind() SubtypeKind           { return SubtypeVehicle }
func (d *CommercialVehicleDetails) Kind() SubtypeKind { return SubtypeCommercialVehicle }

func (d *PropertyDetails) AttachTo(adID string)          { d.AdID = adID }
func (d *VehicleDetails) AttachTo(adID string)           { d.AdID = adID }
func (d *CommercialVehicleDetails) AttachTo(adID string) { d.AdID = adID }

// Subtype returns the preloaded detail record, or nil when none is attached
func (a *Ad) Subtype() Subtype {
	switch {
	case a.Property != nil:
		return a.Property
	case a.Vehicle != nil:
		return a.Vehicle
	case a.CommercialVehicle != nil:
		return a.CommercialVehicle
	}
	return nil
}
