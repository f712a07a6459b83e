package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Locality is the administrative hierarchy a point belongs to
type Locality struct {
	District string `json:"district,omitempty"`
	State    string `json:"state,omitempty"`
	Country  string `json:"country,omitempty"`
}

// IsZero reports whether no level of the hierarchy is known
func (l Locality) IsZero() bool {
	return l.District == "" && l.State == "" && l.Country == ""
}

// Place is the result of a reverse geocoding lookup
type Place struct {
	Name     string
	Locality Locality
}

// Geocoder resolves coordinates to a place
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (*Place, error)
}

var ErrNoResult = errors.New("geocoder returned no result")

// StatusError is a non-200 answer from the geocoder
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geocode request failed: status %d", e.StatusCode)
}

// NominatimClient reverse geocodes against an OpenStreetMap Nominatim server
type NominatimClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewNominatimClient creates a client. The timeout bounds every request.
func NewNominatimClient(baseURL, userAgent string, timeout time.Duration) *NominatimClient {
	return &NominatimClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
	Address     struct {
		City          string `json:"city"`
		Town          string `json:"town"`
		Village       string `json:"village"`
		Suburb        string `json:"suburb"`
		CityDistrict  string `json:"city_district"`
		County        string `json:"county"`
		StateDistrict string `json:"state_district"`
		State         string `json:"state"`
		Country       string `json:"country"`
	} `json:"address"`
}

// Reverse looks up the place containing (lat, lon)
func (c *NominatimClient) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("addressdetails", "1")
	q.Set("zoom", "14")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode geocode response: %w", err)
	}
	if body.Error != "" || body.DisplayName == "" {
		return nil, ErrNoResult
	}

	a := body.Address
	district := firstNonEmpty(a.StateDistrict, a.County, a.CityDistrict, a.City, a.Town)
	place := &Place{
		Locality: Locality{
			District: district,
			State:    a.State,
			Country:  a.Country,
		},
	}

	settlement := firstNonEmpty(a.City, a.Town, a.Village, a.Suburb, district)
	switch {
	case settlement != "" && a.State != "" && settlement != a.State:
		place.Name = settlement + ", " + a.State
	case settlement != "":
		place.Name = settlement
	default:
		place.Name = body.DisplayName
	}
	return place, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
