package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"classifieds-marketplace/internal/ads"
	"classifieds-marketplace/internal/cache"
	"classifieds-marketplace/internal/cleanup"
	"classifieds-marketplace/internal/config"
	"classifieds-marketplace/internal/database"
	"classifieds-marketplace/internal/idempotency"
	"classifieds-marketplace/internal/outbox"
	"classifieds-marketplace/internal/ratelimit"
	"classifieds-marketplace/internal/scheduler"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T, perMinute int) *gin.Engine {
	t.Helper()
	gdb, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { gdb.Close() })
	db := gdb.DB()

	mr := miniredis.RunT(t)
	client := cache.NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { client.Close() })

	events := outbox.NewGormStore(db)
	idem := idempotency.NewGormStore(db)
	svc := ads.NewService(ads.Deps{
		DB:          db,
		Idempotency: idem,
		Outbox:      events,
		Cache:       cache.NewTagCache(client, time.Second),
	}, ads.DefaultOptions())
	t.Cleanup(svc.Wait)

	limiter := ratelimit.NewKeyedLimiter(perMinute, 0, true)
	relay := scheduler.NewOutboxRelay(events, config.DefaultConfig().Outbox)

	return NewRouter(RouterConfig{
		Ads:            NewAdsHandler(svc),
		Admin:          NewAdminHandler(relay, cleanup.NewService(events, idem), svc, limiter, 7),
		CreateLimiter:  RateLimitByOwner(limiter),
		AllowOrigins:   []string{"http://localhost:5176"},
		RequestTimeout: 5 * time.Second,
		Ping:           gdb.Ping,
	})
}

func do(r *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func propertyBody() map[string]interface{} {
	return map[string]interface{}{
		"category":    "property",
		"description": "2BHK Flat",
		"price":       8500000,
		"location":    "Pune",
		"property": map[string]interface{}{
			"propertyType": "apartment",
			"bedrooms":     2,
			"bathrooms":    2,
			"areaSqft":     1200,
		},
	}
}

var asSeller = map[string]string{HeaderUserID: "user-1"}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("response is not json: %v (%s)", err, w.Body.String())
	}
	return m
}

func TestCreateAd(t *testing.T) {
	r := setupRouter(t, 100)

	w := do(r, http.MethodPost, "/api/ads", propertyBody(), asSeller)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["title"] != "2BHK apartment in Pune" || body["id"] == "" {
		t.Fatalf("unexpected body %v", body)
	}

	w = do(r, http.MethodGet, "/api/ads/"+body["id"].(string), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCreateAdIdempotent(t *testing.T) {
	r := setupRouter(t, 100)
	headers := map[string]string{HeaderUserID: "user-1", HeaderIdempotencyKey: "abc"}

	first := do(r, http.MethodPost, "/api/ads", propertyBody(), headers)
	second := do(r, http.MethodPost, "/api/ads", propertyBody(), headers)

	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice, got %d and %d", first.Code, second.Code)
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Fatalf("replayed body differs")
	}
	if second.Header().Get(HeaderReplayed) != "true" {
		t.Fatalf("expected replay header")
	}

	list := decode(t, do(r, http.MethodGet, "/api/ads", nil, nil))
	if list["total"] != float64(1) {
		t.Fatalf("expected a single ad, got %v", list["total"])
	}
}

func TestCreateAdErrors(t *testing.T) {
	r := setupRouter(t, 100)

	if w := do(r, http.MethodPost, "/api/ads", propertyBody(), nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without owner, got %d", w.Code)
	}

	if w := do(r, http.MethodPost, "/api/ads", "{not json", asSeller); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}

	invalid := propertyBody()
	delete(invalid, "price")
	w := do(r, http.MethodPost, "/api/ads", invalid, asSeller)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := decode(t, w)
	fields, _ := body["fields"].(map[string]interface{})
	if body["error"] != "validation_failed" || fields["price"] == nil {
		t.Fatalf("unexpected error body %v", body)
	}

	vehicle := map[string]interface{}{
		"category":    "private_vehicle",
		"description": "Hatchback",
		"price":       400000,
		"location":    "Pune",
		"vehicle":     map[string]interface{}{"manufacturerId": "nope", "modelId": "nope", "year": 2018},
	}
	w = do(r, http.MethodPost, "/api/ads", vehicle, asSeller)
	fields, _ = decode(t, w)["fields"].(map[string]interface{})
	if w.Code != http.StatusBadRequest || fields["manufacturerId"] == nil {
		t.Fatalf("expected manufacturerId error, got %d %s", w.Code, w.Body.String())
	}
}

func TestCreateAdRateLimited(t *testing.T) {
	r := setupRouter(t, 1)

	if w := do(r, http.MethodPost, "/api/ads", propertyBody(), asSeller); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/ads", propertyBody(), asSeller); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	other := map[string]string{HeaderUserID: "user-2"}
	if w := do(r, http.MethodPost, "/api/ads", propertyBody(), other); w.Code != http.StatusCreated {
		t.Fatalf("other owners must not be limited, got %d", w.Code)
	}
}

func TestListAndGetErrors(t *testing.T) {
	r := setupRouter(t, 100)

	w := do(r, http.MethodGet, "/api/ads?minPrice=cheap&page=x", nil, nil)
	fields, _ := decode(t, w)["fields"].(map[string]interface{})
	if w.Code != http.StatusBadRequest || fields["minPrice"] == nil || fields["page"] == nil {
		t.Fatalf("expected field errors, got %d %s", w.Code, w.Body.String())
	}

	if w := do(r, http.MethodGet, "/api/ads?sortBy=title", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown sort, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/ads/not-a-uuid", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid id, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/ads/"+uuid.NewString(), nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w = do(r, http.MethodGet, "/api/ads?category=property&location=Pune", nil, nil)
	body := decode(t, w)
	if w.Code != http.StatusOK || body["total"] != float64(0) || body["hasNext"] != false {
		t.Fatalf("unexpected empty list %d %v", w.Code, body)
	}
}

func TestAdminEndpoints(t *testing.T) {
	r := setupRouter(t, 100)
	created := decode(t, do(r, http.MethodPost, "/api/ads", propertyBody(), asSeller))

	w := do(r, http.MethodGet, "/api/admin/outbox/stats", nil, nil)
	if w.Code != http.StatusOK || decode(t, w)["pending"] != float64(1) {
		t.Fatalf("expected one pending event, got %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPost, "/api/admin/cleanup/run", map[string]interface{}{"dry_run": true}, nil)
	if w.Code != http.StatusOK || decode(t, w)["dry_run"] != true {
		t.Fatalf("unexpected cleanup response %d %s", w.Code, w.Body.String())
	}

	if w := do(r, http.MethodPost, "/api/admin/ads/bad/invalidate-cache", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	path := "/api/admin/ads/" + created["id"].(string) + "/invalidate-cache"
	if w := do(r, http.MethodPost, path, nil, nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if w := do(r, http.MethodGet, "/health", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", w.Code)
	}
}
