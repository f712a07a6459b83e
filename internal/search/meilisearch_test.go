package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"classifieds-marketplace/internal/models"
)

var errGone = errors.New("gone")

type stubLoader map[string]*models.Ad

func (l stubLoader) FindByID(ctx context.Context, id, viewerID string) (*models.Ad, error) {
	if ad, ok := l[id]; ok {
		return ad, nil
	}
	return nil, errGone
}

type recordingIndex struct {
	indexed []string
	removed []string
}

func (r *recordingIndex) IndexAd(ad *models.Ad) error {
	r.indexed = append(r.indexed, ad.ID)
	return nil
}

func (r *recordingIndex) RemoveAd(id string) error {
	r.removed = append(r.removed, id)
	return nil
}

func sampleAd() *models.Ad {
	lat, lon := 18.52, 73.85
	return &models.Ad{
		ID:        "0b7c5f0e-3a53-4a4e-9d7b-1d2a4c9f1e11",
		Category:  models.CategoryPrivateVehicle,
		Title:     "Swift 2019 (Red)",
		Price:     550000,
		Location:  "Pune",
		Latitude:  &lat,
		Longitude: &lon,
		Images:    []string{"https://img.example/1.jpg", "https://img.example/2.jpg"},
		OwnerID:   "user-1",
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Vehicle: &models.VehicleDetails{VehicleSpec: models.VehicleSpec{
			ManufacturerID: "maruti",
			ModelID:        "swift",
			Year:           2019,
		}},
	}
}

func TestNewAdDocument(t *testing.T) {
	doc := NewAdDocument(sampleAd())

	if doc.Geo == nil || doc.Geo.Lat != 18.52 || doc.Geo.Lng != 73.85 {
		t.Fatalf("expected _geo point, got %+v", doc.Geo)
	}
	if doc.ManufacturerID != "maruti" || doc.Year != 2019 || doc.PropertyType != "" {
		t.Fatalf("unexpected subtype fields %+v", doc)
	}
	if doc.Image != "https://img.example/1.jpg" || doc.CreatedAt != 1714557600 {
		t.Fatalf("unexpected document %+v", doc)
	}

	raw, _ := json.Marshal(doc)
	var m map[string]interface{}
	json.Unmarshal(raw, &m)
	if _, ok := m["_geo"]; !ok {
		t.Fatalf("expected _geo key in %s", raw)
	}
}

func TestAdCreatedHandler(t *testing.T) {
	ad := sampleAd()
	idx := &recordingIndex{}
	handle := AdCreatedHandler(stubLoader{ad.ID: ad}, idx, errGone)

	payload, _ := json.Marshal(models.AdCreatedPayload{AdID: ad.ID})
	if err := handle(context.Background(), &models.OutboxEvent{EventName: models.EventAdCreated, Payload: payload}); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if len(idx.indexed) != 1 || idx.indexed[0] != ad.ID {
		t.Fatalf("expected ad to be indexed, got %v", idx.indexed)
	}

	// payload without id falls back to the aggregate id
	err := handle(context.Background(), &models.OutboxEvent{AggregateID: "hidden", Payload: []byte(`{}`)})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if len(idx.removed) != 1 || idx.removed[0] != "hidden" {
		t.Fatalf("expected invisible ad to be removed, got %v", idx.removed)
	}

	if err := handle(context.Background(), &models.OutboxEvent{Payload: []byte(`not json`)}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestIndexAdPostsDocument(t *testing.T) {
	var gotPath string
	var docs []AdDocument
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &docs)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"taskUid":1,"indexUid":"ads","status":"enqueued","type":"documentAdditionOrUpdate","enqueuedAt":"2024-05-01T10:00:00Z"}`))
	}))
	defer srv.Close()

	idx := NewAdIndex(srv.URL, "", "")
	if err := idx.IndexAd(sampleAd()); err != nil {
		t.Fatalf("index failed: %v", err)
	}
	if gotPath != "/indexes/ads/documents" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if len(docs) != 1 || docs[0].ID != sampleAd().ID {
		t.Fatalf("unexpected documents %+v", docs)
	}
}
