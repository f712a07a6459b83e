package ads

import (
	"strings"
	"testing"

	"classifieds-marketplace/internal/models"
)

func TestNormalizeDefaults(t *testing.T) {
	f := ListFilter{Limit: 500, SortOrder: "ASC"}
	if err := f.normalize(20, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Page != 1 || f.Limit != 100 || f.SortBy != "createdAt" || f.SortOrder != "asc" {
		t.Fatalf("unexpected normalized filter %+v", f)
	}

	f = ListFilter{}
	f.normalize(20, 100)
	if f.Limit != 20 || f.SortOrder != "desc" {
		t.Fatalf("expected default limit and order, got %+v", f)
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := []struct {
		name   string
		filter ListFilter
		field  string
	}{
		{"negative page", ListFilter{Page: -1}, "page"},
		{"negative limit", ListFilter{Limit: -5}, "limit"},
		{"unknown sort", ListFilter{SortBy: "title"}, "sortBy"},
		{"bad order", ListFilter{SortOrder: "up"}, "sortOrder"},
		{"unknown category", ListFilter{Category: "boats"}, "category"},
		{"inverted price", ListFilter{MinPrice: fp(10), MaxPrice: fp(5)}, "minPrice"},
		{"lat only", ListFilter{Lat: fp(10)}, "lat"},
		{"out of range", ListFilter{Lat: fp(91), Lon: fp(0)}, "lat"},
		{"mixed subtype filters", ListFilter{Property: PropertyFilter{PropertyType: "villa"}, Vehicle: VehicleFilter{ModelID: "swift"}}, "category"},
		{"property filter on vehicles", ListFilter{Category: models.CategoryTwoWheeler, Property: PropertyFilter{MinBedrooms: ip(1)}}, "category"},
		{"vehicle filter on property", ListFilter{Category: models.CategoryProperty, Vehicle: VehicleFilter{MinYear: ip(2015)}}, "category"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.filter.normalize(20, 100)
			verr, ok := AsValidationError(err)
			if !ok {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := verr.Fields[tc.field]; !ok {
				t.Fatalf("expected %s to be reported, got %v", tc.field, verr.Fields)
			}
		})
	}
}

func TestNormalizeImplicitCategory(t *testing.T) {
	f := ListFilter{Property: PropertyFilter{Furnishing: "furnished"}}
	f.normalize(20, 100)
	if f.Category != models.CategoryProperty {
		t.Fatalf("expected property, got %q", f.Category)
	}

	// vehicle filters span every vehicle kind unless a category is given
	f = ListFilter{Vehicle: VehicleFilter{ManufacturerID: "maruti"}}
	if err := f.normalize(20, 100); err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if f.Category != "" {
		t.Fatalf("expected no implied category, got %q", f.Category)
	}

	f = ListFilter{Category: models.CategoryProperty, Vehicle: VehicleFilter{ManufacturerID: "maruti"}}
	if err := f.normalize(20, 100); err == nil {
		t.Fatalf("expected vehicle filters on property to be rejected")
	}

	f = ListFilter{Category: models.CategoryTwoWheeler, Vehicle: VehicleFilter{ManufacturerID: "hero"}}
	f.normalize(20, 100)
	if f.Category != models.CategoryTwoWheeler {
		t.Fatalf("explicit vehicle category must be kept, got %q", f.Category)
	}
}

func TestCacheKeyShapes(t *testing.T) {
	norm := func(f ListFilter) ListFilter {
		if err := f.normalize(20, 100); err != nil {
			t.Fatalf("normalize failed: %v", err)
		}
		return f
	}

	all := norm(ListFilter{})
	key, ok := all.cacheKey()
	if !ok || !strings.Contains(key, ":all:") {
		t.Fatalf("expected all-ads shape to be cached, got %q %v", key, ok)
	}

	byLoc := norm(ListFilter{Category: models.CategoryProperty, Location: "Mumbai"})
	locKey, ok := byLoc.cacheKey()
	if !ok || !strings.Contains(locKey, "loc=mumbai") {
		t.Fatalf("expected category+location shape to be cached, got %q %v", locKey, ok)
	}

	page2 := norm(ListFilter{Category: models.CategoryProperty, Location: "mumbai", Page: 2})
	if k, _ := page2.cacheKey(); k == locKey {
		t.Fatalf("pages must not share a key")
	}

	uncached := []ListFilter{
		{Category: models.CategoryProperty},
		{Location: "Mumbai"},
		{Search: "flat"},
		{Category: models.CategoryProperty, Location: "Mumbai", MinPrice: fp(1)},
		{Lat: fp(1), Lon: fp(1)},
		{Property: PropertyFilter{PropertyType: "villa"}},
	}
	for _, f := range uncached {
		f = norm(f)
		if k, ok := f.cacheKey(); ok {
			t.Fatalf("filter %+v must not be cached, got key %q", f, k)
		}
	}
}
