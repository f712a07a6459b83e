package ads

import (
	"fmt"
	"strings"

	"classifieds-marketplace/internal/cache"
	"classifieds-marketplace/internal/models"
)

// ListFilter is the list query. Zero values mean "not filtered".
type ListFilter struct {
	Category models.Category
	Search   string
	Location string
	MinPrice *float64
	MaxPrice *float64
	Lat      *float64
	Lon      *float64

	Property PropertyFilter
	Vehicle  VehicleFilter

	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// PropertyFilter narrows on property_details; any set field implies category=property
type PropertyFilter struct {
	PropertyType string
	MinBedrooms  *int
	MaxBedrooms  *int
	Bathrooms    *int
	MinArea      *float64
	MaxArea      *float64
	Furnishing   string
	ListingType  string
}

func (f PropertyFilter) active() bool {
	return f.PropertyType != "" || f.MinBedrooms != nil || f.MaxBedrooms != nil || f.Bathrooms != nil ||
		f.MinArea != nil || f.MaxArea != nil || f.Furnishing != "" || f.ListingType != ""
}

// VehicleFilter narrows on the vehicle subtype tables; any set field implies a vehicle category
type VehicleFilter struct {
	ManufacturerID string
	ModelID        string
	FuelTypeID     string
	TransmissionID string
	MinYear        *int
	MaxYear        *int
	MaxKmDriven    *int
}

func (f VehicleFilter) active() bool {
	return f.ManufacturerID != "" || f.ModelID != "" || f.FuelTypeID != "" || f.TransmissionID != "" ||
		f.MinYear != nil || f.MaxYear != nil || f.MaxKmDriven != nil
}

// sort columns accepted by sortBy
var sortColumns = map[string]string{
	"createdAt": "ads.created_at",
	"price":     "ads.price",
	"viewCount": "ads.view_count",
}

// HasGeo reports whether the query carries a viewer position
func (f *ListFilter) HasGeo() bool {
	return f.Lat != nil && f.Lon != nil
}

// normalize applies defaults, implicit categories and range checks
func (f *ListFilter) normalize(defaultLimit, maxLimit int) error {
	verr := NewValidationError()

	f.Search = strings.TrimSpace(f.Search)
	f.Location = strings.TrimSpace(f.Location)

	if f.Page == 0 {
		f.Page = 1
	}
	if f.Page < 1 {
		verr.Add("page", "must be at least 1")
	}
	if f.Limit == 0 {
		f.Limit = defaultLimit
	}
	if f.Limit < 1 {
		verr.Add("limit", "must be at least 1")
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}

	if f.SortBy == "" {
		f.SortBy = "createdAt"
	}
	if _, ok := sortColumns[f.SortBy]; !ok {
		verr.Add("sortBy", "must be one of: createdAt, price, viewCount")
	}
	f.SortOrder = strings.ToLower(f.SortOrder)
	if f.SortOrder == "" {
		f.SortOrder = "desc"
	}
	if f.SortOrder != "asc" && f.SortOrder != "desc" {
		verr.Add("sortOrder", "must be asc or desc")
	}

	if f.Category != "" && !f.Category.Valid() {
		verr.Add("category", "must be one of: property, private_vehicle, commercial_vehicle, two_wheeler")
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		verr.Add("minPrice", "must not exceed maxPrice")
	}
	if (f.Lat == nil) != (f.Lon == nil) {
		verr.Add("lat", "lat and lon must be supplied together")
	}
	if f.HasGeo() && (*f.Lat < -90 || *f.Lat > 90 || *f.Lon < -180 || *f.Lon > 180) {
		verr.Add("lat", "coordinates out of range")
	}

	propertyActive, vehicleActive := f.Property.active(), f.Vehicle.active()
	switch {
	case propertyActive && vehicleActive:
		verr.Add("category", "property and vehicle filters cannot be combined")
	case propertyActive:
		if f.Category != "" && f.Category != models.CategoryProperty {
			verr.Add("category", fmt.Sprintf("property filters require category property, got %s", f.Category))
		}
		f.Category = models.CategoryProperty
	case vehicleActive:
		if f.Category != "" && !f.Category.IsVehicle() {
			verr.Add("category", fmt.Sprintf("vehicle filters require a vehicle category, got %s", f.Category))
		}
	}

	return verr.OrNil()
}

// cacheKey returns the list cache key for the two cacheable shapes:
// no filters at all, or category plus location only. Any other shape is not cached.
func (f *ListFilter) cacheKey() (string, bool) {
	page := []string{
		fmt.Sprintf("page=%d", f.Page),
		fmt.Sprintf("limit=%d", f.Limit),
		"sort=" + f.SortBy + "." + f.SortOrder,
	}

	others := f.Search != "" || f.MinPrice != nil || f.MaxPrice != nil || f.HasGeo() ||
		f.Property.active() || f.Vehicle.active()
	if others {
		return "", false
	}

	switch {
	case f.Category == "" && f.Location == "":
		return cache.ListKey("all", page...), true
	case f.Category != "" && f.Location != "":
		parts := append([]string{string(f.Category), "loc=" + strings.ToLower(f.Location)}, page...)
		return cache.ListKey("category_location", parts...), true
	}
	return "", false
}
