package ads

import (
	"time"

	"classifieds-marketplace/internal/models"
)

// Owner is the authenticated account creating an ad
type Owner struct {
	ID   string
	Type models.OwnerType
}

// CreateInput is the create request body. Exactly one of Property, Vehicle or
// CommercialVehicle must be set and it must match Category.
type CreateInput struct {
	Category    models.Category `json:"category" validate:"required"`
	Description string          `json:"description" validate:"required,max=5000"`
	Price       *float64        `json:"price" validate:"required,gte=0"`
	Location    string          `json:"location" validate:"max=255"`
	Latitude    *float64        `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64        `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Images      []string        `json:"images" validate:"max=20,dive,required,max=1000"`
	Link        string          `json:"link" validate:"omitempty,url,max=500"`

	Property          *PropertyInput          `json:"property"`
	Vehicle           *VehicleInput           `json:"vehicle"`
	CommercialVehicle *CommercialVehicleInput `json:"commercialVehicle"`
}

// PropertyInput is the property payload
type PropertyInput struct {
	PropertyType string   `json:"propertyType" validate:"required,max=50"`
	ListingType  string   `json:"listingType" validate:"omitempty,oneof=sale rent"`
	Bedrooms     int      `json:"bedrooms" validate:"gte=0,lte=50"`
	Bathrooms    int      `json:"bathrooms" validate:"gte=0,lte=50"`
	AreaSqft     float64  `json:"areaSqft" validate:"gte=0"`
	Furnishing   string   `json:"furnishing" validate:"omitempty,oneof=furnished semi_furnished unfurnished"`
	Floor        *int     `json:"floor" validate:"omitempty,gte=-5"`
	TotalFloors  *int     `json:"totalFloors" validate:"omitempty,gte=0"`
	Amenities    []string `json:"amenities" validate:"max=50,dive,required,max=60"`
}

// VehicleInput is the private vehicle and two-wheeler payload
type VehicleInput struct {
	ManufacturerID    string `json:"manufacturerId" validate:"required,max=64"`
	ModelID           string `json:"modelId" validate:"required,max=64"`
	VariantID         string `json:"variantId" validate:"max=64"`
	TransmissionID    string `json:"transmissionId" validate:"max=64"`
	FuelTypeID        string `json:"fuelTypeId" validate:"max=64"`
	Year              int    `json:"year" validate:"required,gte=1900,lte=2100"`
	KmDriven          int    `json:"kmDriven" validate:"gte=0"`
	Color             string `json:"color" validate:"max=40"`
	OwnersCount       int    `json:"ownersCount" validate:"gte=0,lte=20"`
	RegistrationState string `json:"registrationState" validate:"max=60"`
}

// CommercialVehicleInput is the commercial vehicle payload. At least one
// commercial attribute must be supplied.
type CommercialVehicleInput struct {
	ManufacturerID    string `json:"manufacturerId" validate:"required,max=64"`
	ModelID           string `json:"modelId" validate:"required,max=64"`
	VariantID         string `json:"variantId" validate:"max=64"`
	TransmissionID    string `json:"transmissionId" validate:"max=64"`
	FuelTypeID        string `json:"fuelTypeId" validate:"max=64"`
	Year              int    `json:"year" validate:"omitempty,gte=1900,lte=2100"`
	KmDriven          int    `json:"kmDriven" validate:"gte=0"`
	Color             string `json:"color" validate:"max=40"`
	OwnersCount       int    `json:"ownersCount" validate:"gte=0,lte=20"`
	RegistrationState string `json:"registrationState" validate:"max=60"`

	CommercialVehicleType string     `json:"commercialVehicleType" validate:"max=50"`
	BodyType              string     `json:"bodyType" validate:"max=50"`
	PayloadCapacity       *float64   `json:"payloadCapacity" validate:"omitempty,gte=0"`
	AxleCount             *int       `json:"axleCount" validate:"omitempty,gte=1,lte=20"`
	SeatingCapacity       *int       `json:"seatingCapacity" validate:"omitempty,gte=0,lte=200"`
	PermitType            string     `json:"permitType" validate:"max=50"`
	FitnessValidUntil     *time.Time `json:"fitnessValidUntil"`
}

func (c *CommercialVehicleInput) hasCommercialAttribute() bool {
	return c.CommercialVehicleType != "" || c.BodyType != "" ||
		c.PayloadCapacity != nil || c.AxleCount != nil || c.SeatingCapacity != nil
}

// payload is the tagged union resolved from a CreateInput
type payload struct {
	kind       models.SubtypeKind
	property   *PropertyInput
	vehicle    *VehicleInput
	commercial *CommercialVehicleInput
}

func (p payload) subtype() models.Subtype {
	switch p.kind {
	case models.SubtypeProperty:
		in := p.property
		return &models.PropertyDetails{
			PropertyType: in.PropertyType,
			ListingType:  in.ListingType,
			Bedrooms:     in.Bedrooms,
			Bathrooms:    in.Bathrooms,
			AreaSqft:     in.AreaSqft,
			Furnishing:   in.Furnishing,
			Floor:        in.Floor,
			TotalFloors:  in.TotalFloors,
			Amenities:    in.Amenities,
		}
	case models.SubtypeVehicle:
		in := p.vehicle
		return &models.VehicleDetails{VehicleSpec: models.VehicleSpec{
			ManufacturerID:    in.ManufacturerID,
			ModelID:           in.ModelID,
			VariantID:         in.VariantID,
			TransmissionID:    in.TransmissionID,
			FuelTypeID:        in.FuelTypeID,
			Year:              in.Year,
			KmDriven:          in.KmDriven,
			Color:             in.Color,
			OwnersCount:       in.OwnersCount,
			RegistrationState: in.RegistrationState,
		}}
	default:
		in := p.commercial
		return &models.CommercialVehicleDetails{
			VehicleSpec: models.VehicleSpec{
				ManufacturerID:    in.ManufacturerID,
				ModelID:           in.ModelID,
				VariantID:         in.VariantID,
				TransmissionID:    in.TransmissionID,
				FuelTypeID:        in.FuelTypeID,
				Year:              in.Year,
				KmDriven:          in.KmDriven,
				Color:             in.Color,
				OwnersCount:       in.OwnersCount,
				RegistrationState: in.RegistrationState,
			},
			CommercialVehicleType: in.CommercialVehicleType,
			BodyType:              in.BodyType,
			PayloadCapacity:       in.PayloadCapacity,
			AxleCount:             in.AxleCount,
			SeatingCapacity:       in.SeatingCapacity,
			PermitType:            in.PermitType,
			FitnessValidUntil:     in.FitnessValidUntil,
		}
	}
}

// vehicleSpec returns the inventory-backed part for vehicle payloads
func (p payload) vehicleSpec() *models.VehicleSpec {
	switch st := p.subtype().(type) {
	case *models.VehicleDetails:
		return &st.VehicleSpec
	case *models.CommercialVehicleDetails:
		return &st.VehicleSpec
	}
	return nil
}
