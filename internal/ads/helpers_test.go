package ads

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"classifieds-marketplace/internal/cache"
	"classifieds-marketplace/internal/database"
	"classifieds-marketplace/internal/geo"
	"classifieds-marketplace/internal/idempotency"
	"classifieds-marketplace/internal/inventory"
	"classifieds-marketplace/internal/models"
	"classifieds-marketplace/internal/outbox"

	"github.com/alicebob/miniredis/v2"
	"gorm.io/gorm"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// stubGeocoder answers from a fixed table of points; anything else fails
type stubGeocoder struct {
	places map[[2]float64]*geo.Place
}

func (g *stubGeocoder) Reverse(ctx context.Context, lat, lon float64) (*geo.Place, error) {
	key := [2]float64{math.Round(lat*100) / 100, math.Round(lon*100) / 100}
	if p, ok := g.places[key]; ok {
		return p, nil
	}
	return nil, errors.New("no place")
}

type testEnv struct {
	db       *gorm.DB
	svc      *Service
	mr       *miniredis.Miniredis
	clock    *fakeClock
	geocoder *stubGeocoder
	queries  atomic.Int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { gdb.Close() })
	db := gdb.DB()
	seedInventory(t, db)

	mr := miniredis.RunT(t)
	client := cache.NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { client.Close() })

	env := &testEnv{
		db:       db,
		mr:       mr,
		clock:    &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		geocoder: &stubGeocoder{places: map[[2]float64]*geo.Place{}},
	}

	countQuery := func(*gorm.DB) { env.queries.Add(1) }
	db.Callback().Query().After("gorm:query").Register("test:count_query", countQuery)
	db.Callback().Row().After("gorm:row").Register("test:count_row", countQuery)

	env.svc = NewService(Deps{
		DB:          db,
		Idempotency: idempotency.NewGormStore(db).WithClock(env.clock.Now),
		Outbox:      outbox.NewGormStore(db),
		Cache:       cache.NewTagCache(client, time.Second),
		Inventory:   inventory.NewGormGateway(db, time.Second),
		Geo:         geo.NewResolver(env.geocoder, time.Second),
	}, DefaultOptions())
	t.Cleanup(env.svc.Wait)

	return env
}

func seedInventory(t *testing.T, db *gorm.DB) {
	t.Helper()
	rows := []interface{}{
		&models.Manufacturer{ID: "maruti", Name: "Maruti Suzuki"},
		&models.Manufacturer{ID: "tata", Name: "Tata"},
		&models.VehicleModel{ID: "swift", ManufacturerID: "maruti", Name: "Swift"},
		&models.VehicleModel{ID: "ace", ManufacturerID: "tata", Name: "Ace"},
		&models.Transmission{ID: "manual", Name: "Manual"},
		&models.FuelType{ID: "petrol", Name: "Petrol"},
		&models.FuelType{ID: "diesel", Name: "Diesel"},
	}
	for _, r := range rows {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("failed to seed %T: %v", r, err)
		}
	}
}

func (e *testEnv) addPlace(lat, lon float64, name string, loc geo.Locality) {
	key := [2]float64{math.Round(lat*100) / 100, math.Round(lon*100) / 100}
	e.geocoder.places[key] = &geo.Place{Name: name, Locality: loc}
}

func fp(v float64) *float64 {
	return &v
}

func ip(v int) *int {
	return &v
}

func propertyInput(location string, price float64, bedrooms int) CreateInput {
	return CreateInput{
		Category:    models.CategoryProperty,
		Description: "Well lit flat close to the station",
		Price:       fp(price),
		Location:    location,
		Property: &PropertyInput{
			PropertyType: "apartment",
			Bedrooms:     bedrooms,
			Bathrooms:    2,
			AreaSqft:     1200,
		},
	}
}

func vehicleInput(manufacturerID, modelID string) CreateInput {
	return CreateInput{
		Category:    models.CategoryPrivateVehicle,
		Description: "Single owner, serviced regularly",
		Price:       fp(550000),
		Location:    "Bengaluru, Karnataka",
		Vehicle: &VehicleInput{
			ManufacturerID: manufacturerID,
			ModelID:        modelID,
			FuelTypeID:     "petrol",
			TransmissionID: "manual",
			Year:           2019,
			Color:          "Red",
			KmDriven:       42000,
		},
	}
}

var seller = Owner{ID: "user-1", Type: models.OwnerTypeUser}

func (e *testEnv) mustCreate(t *testing.T, in CreateInput) *AdDetail {
	t.Helper()
	res, err := e.svc.Create(context.Background(), seller, in, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return res.Detail
}

func (e *testEnv) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count %T failed: %v", model, err)
	}
	return n
}
