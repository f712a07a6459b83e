package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"classifieds-marketplace/internal/ads"
	"classifieds-marketplace/internal/idempotency"
	"classifieds-marketplace/internal/inventory"
	"classifieds-marketplace/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	HeaderUserID         = "X-User-ID"
	HeaderOwnerType      = "X-Owner-Type"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 255
)

// AdsHandler serves the public ad endpoints
type AdsHandler struct {
	svc *ads.Service
}

func NewAdsHandler(svc *ads.Service) *AdsHandler {
	return &AdsHandler{svc: svc}
}

// Create handles POST /api/ads
func (h *AdsHandler) Create(c *gin.Context) {
	owner := ads.Owner{
		ID:   c.GetHeader(HeaderUserID),
		Type: models.OwnerType(c.GetHeader(HeaderOwnerType)),
	}
	if owner.ID == "" {
		writeError(c, ads.ErrUnauthenticated)
		return
	}

	key := c.GetHeader(HeaderIdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		verr := ads.NewValidationError()
		verr.Add(HeaderIdempotencyKey, "must be at most 255 characters")
		writeError(c, verr)
		return
	}

	var in ads.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body", "message": err.Error()})
		return
	}

	res, err := h.svc.Create(c.Request.Context(), owner, in, key)
	if err != nil {
		writeError(c, err)
		return
	}

	if res.Replayed {
		c.Header(HeaderReplayed, "true")
	}
	c.Data(http.StatusCreated, "application/json; charset=utf-8", res.Body)
}

// List handles GET /api/ads
func (h *AdsHandler) List(c *gin.Context) {
	f, err := parseListFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.svc.List(c.Request.Context(), c.GetHeader(HeaderUserID), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Get handles GET /api/ads/:id
func (h *AdsHandler) Get(c *gin.Context) {
	detail, err := h.svc.Get(c.Request.Context(), c.GetHeader(HeaderUserID), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// queryParser collects numeric parse failures as field errors
type queryParser struct {
	c    *gin.Context
	verr *ads.ValidationError
}

func (p *queryParser) number(name string) *float64 {
	raw := p.c.Query(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.verr.Add(name, "must be a number")
		return nil
	}
	return &v
}

func (p *queryParser) integer(name string) *int {
	raw := p.c.Query(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.verr.Add(name, "must be an integer")
		return nil
	}
	return &v
}

func (p *queryParser) intOr(name string, fallback int) int {
	if v := p.integer(name); v != nil {
		return *v
	}
	return fallback
}

func parseListFilter(c *gin.Context) (ads.ListFilter, error) {
	p := &queryParser{c: c, verr: ads.NewValidationError()}

	f := ads.ListFilter{
		Category: models.Category(c.Query("category")),
		Search:   c.Query("search"),
		Location: c.Query("location"),
		MinPrice: p.number("minPrice"),
		MaxPrice: p.number("maxPrice"),
		Lat:      p.number("lat"),
		Lon:      p.number("lon"),
		Property: ads.PropertyFilter{
			PropertyType: c.Query("propertyType"),
			MinBedrooms:  p.integer("minBedrooms"),
			MaxBedrooms:  p.integer("maxBedrooms"),
			Bathrooms:    p.integer("bathrooms"),
			MinArea:      p.number("minArea"),
			MaxArea:      p.number("maxArea"),
			Furnishing:   c.Query("furnishing"),
			ListingType:  c.Query("listingType"),
		},
		Vehicle: ads.VehicleFilter{
			ManufacturerID: c.Query("manufacturerId"),
			ModelID:        c.Query("modelId"),
			FuelTypeID:     c.Query("fuelTypeId"),
			TransmissionID: c.Query("transmissionId"),
			MinYear:        p.integer("minYear"),
			MaxYear:        p.integer("maxYear"),
			MaxKmDriven:    p.integer("maxKmDriven"),
		},
		Page:      p.intOr("page", 0),
		Limit:     p.intOr("limit", 0),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}
	return f, p.verr.OrNil()
}

// writeError maps service errors to HTTP responses
func writeError(c *gin.Context, err error) {
	if verr, ok := ads.AsValidationError(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "fields": verr.Fields})
		return
	}

	var txErr *ads.TransactionError
	switch {
	case errors.Is(err, ads.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
	case errors.Is(err, ads.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	case errors.Is(err, ads.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, idempotency.ErrRequestInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "request_in_progress"})
	case errors.Is(err, inventory.ErrUnavailable):
		log.Warn().Err(err).Str("component", "http").Str("path", c.FullPath()).Msg("inventory unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "inventory_unavailable", "retryable": true})
	case errors.As(err, &txErr):
		log.Error().Err(err).Str("component", "http").Str("path", c.FullPath()).Msg("transaction failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction_failed", "retryable": true})
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn().Err(err).Str("component", "http").Str("path", c.FullPath()).Msg("request timed out")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "timeout", "retryable": true})
	default:
		log.Error().Err(err).Str("component", "http").Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
