package ads

import (
	"context"
	"fmt"
	"strings"

	"classifieds-marketplace/internal/geo"
	"classifieds-marketplace/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// DefaultRadiiKm is the radius ladder tried before geo filtering is dropped
var DefaultRadiiKm = []float64{50, 100, 200, 500, 1000}

// Locality scores
const (
	scoreDistrict = 3
	scoreState    = 2
	scoreCountry  = 1
)

// ListItem is one ad in a list response
type ListItem struct {
	models.Ad
	LocationScore int      `json:"locationScore"`
	DistanceKm    *float64 `json:"distanceKm,omitempty"`
	IsFavorited   bool     `json:"isFavorited"`
}

// ListResult is a page of ads
type ListResult struct {
	Data       []ListItem `json:"data"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"totalPages"`
	HasNext    bool       `json:"hasNext"`
	HasPrev    bool       `json:"hasPrev"`
	// RadiusKm is the radius that produced the page; absent when geo filtering was not applied
	RadiusKm *float64 `json:"radiusKm,omitempty"`
}

// QueryEngine builds filtered, scored and paginated ad lists
type QueryEngine struct {
	db    *gorm.DB
	radii []float64
}

func NewQueryEngine(db *gorm.DB, radiiKm []float64) *QueryEngine {
	if len(radiiKm) == 0 {
		radiiKm = DefaultRadiiKm
	}
	return &QueryEngine{db: db, radii: radiiKm}
}

// List runs the query. With a viewer position it walks the radius ladder and
// stops at the first radius with a match; when every radius is empty it runs
// the query again without geo filtering. viewer may be nil.
func (q *QueryEngine) List(ctx context.Context, f ListFilter, viewer *geo.Locality) (*ListResult, error) {
	if !f.HasGeo() {
		return q.page(ctx, f, nil, nil)
	}

	for _, radius := range q.radii {
		box := geo.NewBoundingBox(*f.Lat, *f.Lon, radius)
		total, err := q.count(ctx, f, &box)
		if err != nil {
			return nil, err
		}
		if total == 0 {
			log.Debug().Str("component", "query").Float64("radius_km", radius).Msg("no matches, widening")
			continue
		}

		res, err := q.load(ctx, f, &box, viewer, total)
		if err != nil {
			return nil, err
		}
		r := radius
		res.RadiusKm = &r
		return res, nil
	}

	log.Debug().Str("component", "query").Msg("radius ladder exhausted, dropping geo filter")
	return q.page(ctx, f, nil, nil)
}

// filtered returns the ads query with every non-geo predicate applied
func (q *QueryEngine) filtered(ctx context.Context, f ListFilter, box *geo.BoundingBox) *gorm.DB {
	tx := q.db.WithContext(ctx).Model(&models.Ad{}).
		Where("ads.is_active = ? AND ads.is_approved = ? AND ads.is_deleted = ?", true, true, false)

	if f.Category != "" {
		tx = tx.Where("ads.category = ?", f.Category)
	}
	if f.Search != "" {
		like := containsPattern(f.Search)
		tx = tx.Where("(LOWER(ads.title) LIKE ? ESCAPE '!' OR LOWER(ads.description) LIKE ? ESCAPE '!')", like, like)
	}
	if f.Location != "" {
		tx = tx.Where("LOWER(ads.location) LIKE ? ESCAPE '!'", containsPattern(f.Location))
	}
	if f.MinPrice != nil {
		tx = tx.Where("ads.price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		tx = tx.Where("ads.price <= ?", *f.MaxPrice)
	}

	if f.Property.active() {
		tx = applyPropertyFilter(tx, f.Property)
	}
	if f.Vehicle.active() {
		tx = applyVehicleFilter(tx, f.Category, f.Vehicle)
	}

	if box != nil {
		tx = tx.Where("ads.latitude BETWEEN ? AND ?", box.MinLat, box.MaxLat)
		if box.CrossesAntimeridian() {
			tx = tx.Where("(ads.longitude >= ? OR ads.longitude <= ?)", box.MinLon, box.MaxLon)
		} else {
			tx = tx.Where("ads.longitude BETWEEN ? AND ?", box.MinLon, box.MaxLon)
		}
	}
	return tx
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// containsPattern is a lower-cased LIKE pattern matching s literally anywhere
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

func applyPropertyFilter(tx *gorm.DB, p PropertyFilter) *gorm.DB {
	tx = tx.Joins("JOIN property_details pd ON pd.ad_id = ads.id")
	if p.PropertyType != "" {
		tx = tx.Where("pd.property_type = ?", p.PropertyType)
	}
	if p.MinBedrooms != nil {
		tx = tx.Where("pd.bedrooms >= ?", *p.MinBedrooms)
	}
	if p.MaxBedrooms != nil {
		tx = tx.Where("pd.bedrooms <= ?", *p.MaxBedrooms)
	}
	if p.Bathrooms != nil {
		tx = tx.Where("pd.bathrooms >= ?", *p.Bathrooms)
	}
	if p.MinArea != nil {
		tx = tx.Where("pd.area_sqft >= ?", *p.MinArea)
	}
	if p.MaxArea != nil {
		tx = tx.Where("pd.area_sqft <= ?", *p.MaxArea)
	}
	if p.Furnishing != "" {
		tx = tx.Where("pd.furnishing = ?", p.Furnishing)
	}
	if p.ListingType != "" {
		tx = tx.Where("pd.listing_type = ?", p.ListingType)
	}
	return tx
}

// applyVehicleFilter narrows to vehicle ads whose details match. Without a
// category every vehicle kind is searched.
func applyVehicleFilter(tx *gorm.DB, category models.Category, v VehicleFilter) *gorm.DB {
	vehicles := (models.VehicleDetails{}).TableName()
	commercial := (models.CommercialVehicleDetails{}).TableName()

	if category != "" {
		table := vehicles
		if category.SubtypeKind() == models.SubtypeCommercialVehicle {
			table = commercial
		}
		tx = tx.Joins(fmt.Sprintf("JOIN %s vd ON vd.ad_id = ads.id", table))
		return vehiclePredicates(tx, v)
	}

	matching := func(table string) *gorm.DB {
		sub := tx.Session(&gorm.Session{NewDB: true}).Table(table + " vd").Select("vd.ad_id")
		return vehiclePredicates(sub, v)
	}
	return tx.Where("(ads.id IN (?) OR ads.id IN (?))", matching(vehicles), matching(commercial))
}

func vehiclePredicates(tx *gorm.DB, v VehicleFilter) *gorm.DB {
	if v.ManufacturerID != "" {
		tx = tx.Where("vd.manufacturer_id = ?", v.ManufacturerID)
	}
	if v.ModelID != "" {
		tx = tx.Where("vd.model_id = ?", v.ModelID)
	}
	if v.FuelTypeID != "" {
		tx = tx.Where("vd.fuel_type_id = ?", v.FuelTypeID)
	}
	if v.TransmissionID != "" {
		tx = tx.Where("vd.transmission_id = ?", v.TransmissionID)
	}
	if v.MinYear != nil {
		tx = tx.Where("vd.year >= ?", *v.MinYear)
	}
	if v.MaxYear != nil {
		tx = tx.Where("vd.year <= ?", *v.MaxYear)
	}
	if v.MaxKmDriven != nil {
		tx = tx.Where("vd.km_driven <= ?", *v.MaxKmDriven)
	}
	return tx
}

func (q *QueryEngine) count(ctx context.Context, f ListFilter, box *geo.BoundingBox) (int64, error) {
	var total int64
	if err := q.filtered(ctx, f, box).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count ads: %w", err)
	}
	return total, nil
}

// scoreExpr builds the locality CASE expression. Empty locality levels never match.
func scoreExpr(viewer *geo.Locality) (string, []interface{}) {
	if viewer == nil || viewer.IsZero() {
		return "0", nil
	}

	var b strings.Builder
	var args []interface{}
	b.WriteString("CASE")
	levels := []struct {
		column string
		value  string
		score  int
	}{
		{"ads.district", viewer.District, scoreDistrict},
		{"ads.state", viewer.State, scoreState},
		{"ads.country", viewer.Country, scoreCountry},
	}
	for _, l := range levels {
		if l.value == "" {
			continue
		}
		fmt.Fprintf(&b, " WHEN LOWER(%s) = ? THEN %d", l.column, l.score)
		args = append(args, strings.ToLower(l.value))
	}
	b.WriteString(" ELSE 0 END")
	return b.String(), args
}

type scoredID struct {
	ID            string
	LocationScore int
}

// page counts and loads one page. Scoring applies only when box is set.
func (q *QueryEngine) page(ctx context.Context, f ListFilter, box *geo.BoundingBox, viewer *geo.Locality) (*ListResult, error) {
	total, err := q.count(ctx, f, box)
	if err != nil {
		return nil, err
	}
	return q.load(ctx, f, box, viewer, total)
}

// load fetches one page given the total already counted with the same predicates
func (q *QueryEngine) load(ctx context.Context, f ListFilter, box *geo.BoundingBox, viewer *geo.Locality, total int64) (*ListResult, error) {
	res := &ListResult{
		Data:  []ListItem{},
		Total: total,
		Page:  f.Page,
		Limit: f.Limit,
	}
	res.TotalPages = int((total + int64(f.Limit) - 1) / int64(f.Limit))
	res.HasNext = f.Page < res.TotalPages
	res.HasPrev = f.Page > 1

	offset := (f.Page - 1) * f.Limit
	if total == 0 || int64(offset) >= total {
		return res, nil
	}

	if box == nil {
		viewer = nil
	}
	expr, args := scoreExpr(viewer)

	tx := q.filtered(ctx, f, box).
		Select("ads.id AS id, "+expr+" AS location_score", args...)
	if expr != "0" {
		tx = tx.Order("location_score DESC")
	}
	tx = tx.Order(sortColumns[f.SortBy] + " " + strings.ToUpper(f.SortOrder)).
		Order("ads.id ASC").
		Offset(offset).
		Limit(f.Limit)

	var ids []scoredID
	if err := tx.Scan(&ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list ads: %w", err)
	}

	adsByID, err := q.loadAds(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, sid := range ids {
		ad, ok := adsByID[sid.ID]
		if !ok {
			continue
		}
		item := ListItem{Ad: *ad, LocationScore: sid.LocationScore}
		if f.HasGeo() && ad.HasGeo() {
			d := geo.CalculateDistance(*f.Lat, *f.Lon, *ad.Latitude, *ad.Longitude)
			item.DistanceKm = &d
		}
		res.Data = append(res.Data, item)
	}
	return res, nil
}

func (q *QueryEngine) loadAds(ctx context.Context, ids []scoredID) (map[string]*models.Ad, error) {
	keys := make([]string, len(ids))
	for i, sid := range ids {
		keys[i] = sid.ID
	}

	var rows []models.Ad
	err := q.db.WithContext(ctx).
		Preload("Property").
		Preload("Vehicle").
		Preload("CommercialVehicle").
		Where("id IN ?", keys).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load ads: %w", err)
	}

	byID := make(map[string]*models.Ad, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}
	return byID, nil
}
