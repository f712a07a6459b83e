package geo

import "math"

// EarthRadiusKm is the mean earth radius used for all distance math
const EarthRadiusKm = 6371.0

// CalculateDistance returns the great-circle distance in km (haversine formula)
func CalculateDistance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// BoundingBox is the lat/lon rectangle that contains every point within a radius.
// When the box crosses the antimeridian MinLon > MaxLon.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// NewBoundingBox returns the box of radiusKm around (lat, lon). A box that
// reaches a pole spans every longitude. Boxes for growing radii are nested.
func NewBoundingBox(lat, lon, radiusKm float64) BoundingBox {
	dLat := radiusKm / EarthRadiusKm * 180 / math.Pi

	box := BoundingBox{
		MinLat: math.Max(lat-dLat, -90),
		MaxLat: math.Min(lat+dLat, 90),
		MinLon: -180,
		MaxLon: 180,
	}
	if box.MinLat == -90 || box.MaxLat == 90 {
		return box
	}

	// longitude half-width at the circle's tangent points, which sit poleward of lat
	angular := radiusKm / EarthRadiusKm
	ratio := math.Sin(angular) / math.Cos(lat*math.Pi/180)
	if ratio >= 1 {
		return box
	}
	dLon := math.Asin(ratio) * 180 / math.Pi

	box.MinLon = normalizeLon(lon - dLon)
	box.MaxLon = normalizeLon(lon + dLon)
	return box
}

// CrossesAntimeridian reports whether the longitude range wraps around +/-180
func (b BoundingBox) CrossesAntimeridian() bool {
	return b.MinLon > b.MaxLon
}

// Contains reports whether the point falls inside the box
func (b BoundingBox) Contains(lat, lon float64) bool {
	if lat < b.MinLat || lat > b.MaxLat {
		return false
	}
	if b.CrossesAntimeridian() {
		return lon >= b.MinLon || lon <= b.MaxLon
	}
	return lon >= b.MinLon && lon <= b.MaxLon
}

func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

// ValidCoordinates reports whether lat/lon are inside their legal ranges
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
