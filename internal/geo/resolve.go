package geo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// FormatCoordinates renders the fallback location string for a point
func FormatCoordinates(lat, lon float64) string {
	return fmt.Sprintf("%.4f, %.4f", lat, lon)
}

// Resolver wraps a Geocoder with a call timeout and never fails
type Resolver struct {
	geocoder Geocoder
	timeout  time.Duration
}

func NewResolver(g Geocoder, timeout time.Duration) *Resolver {
	return &Resolver{geocoder: g, timeout: timeout}
}

// LocationName returns a human readable name and locality for the point.
// On any geocoder failure the coordinate string is returned with an empty locality.
func (r *Resolver) LocationName(ctx context.Context, lat, lon float64) (string, Locality) {
	place, err := r.lookup(ctx, lat, lon)
	if err != nil {
		log.Warn().Err(err).Str("component", "geo").
			Float64("lat", lat).Float64("lon", lon).
			Msg("reverse geocode failed, using coordinates")
		return FormatCoordinates(lat, lon), Locality{}
	}
	return place.Name, place.Locality
}

// Locality returns the locality for the point; ok is false when it cannot be resolved
func (r *Resolver) Locality(ctx context.Context, lat, lon float64) (Locality, bool) {
	place, err := r.lookup(ctx, lat, lon)
	if err != nil {
		log.Debug().Err(err).Str("component", "geo").Msg("viewer locality unavailable")
		return Locality{}, false
	}
	return place.Locality, !place.Locality.IsZero()
}

func (r *Resolver) lookup(ctx context.Context, lat, lon float64) (*Place, error) {
	if r == nil || r.geocoder == nil {
		return nil, ErrNoResult
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	type result struct {
		place *Place
		err   error
	}
	done := make(chan result, 1)
	go func() {
		p, err := r.geocoder.Reverse(ctx, lat, lon)
		done <- result{p, err}
	}()

	select {
	case res := <-done:
		if res.err == nil && res.place == nil {
			return nil, ErrNoResult
		}
		return res.place, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
