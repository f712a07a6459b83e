package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"classifieds-marketplace/internal/models"

	"github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog/log"
)

// AdIndex mirrors committed ads into a Meilisearch index
type AdIndex struct {
	client *meilisearch.Client
	index  string
}

func NewAdIndex(host, apiKey, index string) *AdIndex {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	if index == "" {
		index = "ads"
	}

	return &AdIndex{
		client: client,
		index:  index,
	}
}

// InitIndex creates the index and configures its attributes
func (s *AdIndex) InitIndex() error {
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	// creation is an async task; an existing index only fails the task
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", s.index, err)
	}

	idx := s.client.Index(s.index)
	if _, err := idx.UpdateSearchableAttributes(&[]string{
		"title",
		"description",
		"location",
		"district",
		"state",
	}); err != nil {
		return fmt.Errorf("failed to set searchable attributes: %w", err)
	}

	if _, err := idx.UpdateFilterableAttributes(&[]string{
		"category",
		"price",
		"district",
		"state",
		"country",
		"ownerId",
		"propertyType",
		"bedrooms",
		"manufacturerId",
		"modelId",
		"year",
		"_geo",
	}); err != nil {
		return fmt.Errorf("failed to set filterable attributes: %w", err)
	}

	if _, err := idx.UpdateSortableAttributes(&[]string{
		"price",
		"createdAt",
		"_geo",
	}); err != nil {
		return fmt.Errorf("failed to set sortable attributes: %w", err)
	}

	return nil
}

// GeoPoint is Meilisearch's reserved _geo field
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AdDocument is the flattened search document for one ad
type AdDocument struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Location    string    `json:"location"`
	District    string    `json:"district,omitempty"`
	State       string    `json:"state,omitempty"`
	Country     string    `json:"country,omitempty"`
	Geo         *GeoPoint `json:"_geo,omitempty"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   int64     `json:"createdAt"`
	Image       string    `json:"image,omitempty"`

	PropertyType   string `json:"propertyType,omitempty"`
	Bedrooms       int    `json:"bedrooms,omitempty"`
	ManufacturerID string `json:"manufacturerId,omitempty"`
	ModelID        string `json:"modelId,omitempty"`
	Year           int    `json:"year,omitempty"`
}

// NewAdDocument flattens an ad and its subtype
func NewAdDocument(ad *models.Ad) AdDocument {
	doc := AdDocument{
		ID:          ad.ID,
		Category:    string(ad.Category),
		Title:       ad.Title,
		Description: ad.Description,
		Price:       ad.Price,
		Location:    ad.Location,
		District:    ad.District,
		State:       ad.State,
		Country:     ad.Country,
		OwnerID:     ad.OwnerID,
		CreatedAt:   ad.CreatedAt.Unix(),
	}
	if ad.HasGeo() {
		doc.Geo = &GeoPoint{Lat: *ad.Latitude, Lng: *ad.Longitude}
	}
	if len(ad.Images) > 0 {
		doc.Image = ad.Images[0]
	}

	var spec *models.VehicleSpec
	switch {
	case ad.Property != nil:
		doc.PropertyType = ad.Property.PropertyType
		doc.Bedrooms = ad.Property.Bedrooms
	case ad.Vehicle != nil:
		spec = &ad.Vehicle.VehicleSpec
	case ad.CommercialVehicle != nil:
		spec = &ad.CommercialVehicle.VehicleSpec
	}
	if spec != nil {
		doc.ManufacturerID = spec.ManufacturerID
		doc.ModelID = spec.ModelID
		doc.Year = spec.Year
	}
	return doc
}

// IndexAd adds or replaces a single ad document
func (s *AdIndex) IndexAd(ad *models.Ad) error {
	if _, err := s.client.Index(s.index).AddDocuments([]AdDocument{NewAdDocument(ad)}); err != nil {
		return fmt.Errorf("failed to index ad %s: %w", ad.ID, err)
	}
	return nil
}

// RemoveAd deletes an ad document
func (s *AdIndex) RemoveAd(id string) error {
	if _, err := s.client.Index(s.index).DeleteDocument(id); err != nil {
		return fmt.Errorf("failed to remove ad %s from index: %w", id, err)
	}
	return nil
}

// AdLoader reads a visible ad with its subtype
type AdLoader interface {
	FindByID(ctx context.Context, id, viewerID string) (*models.Ad, error)
}

// Indexer is the part of AdIndex the relay handler needs
type Indexer interface {
	IndexAd(ad *models.Ad) error
	RemoveAd(id string) error
}

// AdCreatedHandler returns an outbox handler that indexes the ad named in an
// ad.created event. Ads that are no longer visible are removed from the index.
func AdCreatedHandler(loader AdLoader, index Indexer, notFound error) func(ctx context.Context, ev *models.OutboxEvent) error {
	return func(ctx context.Context, ev *models.OutboxEvent) error {
		var payload models.AdCreatedPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", ev.EventName, err)
		}
		if payload.AdID == "" {
			payload.AdID = ev.AggregateID
		}

		ad, err := loader.FindByID(ctx, payload.AdID, "")
		if errors.Is(err, notFound) {
			log.Info().Str("component", "search").Str("ad_id", payload.AdID).Msg("ad not visible, removing from index")
			return index.RemoveAd(payload.AdID)
		}
		if err != nil {
			return err
		}
		return index.IndexAd(ad)
	}
}
