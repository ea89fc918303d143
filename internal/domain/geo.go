package domain

import (
	"fmt"
	"math"
)

// earthRadiusMeters is the mean Earth radius used for great-circle distances.
const earthRadiusMeters = 6371000.0

// GeoPoint is a WGS-84 position in canonical [lon, lat] order with an
// optional free-text address.
type GeoPoint struct {
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
	Address string  `json:"address,omitempty"`
}

// NewGeoPoint validates the coordinate pair and returns the point.
func NewGeoPoint(lon, lat float64, address string) (GeoPoint, error) {
	p := GeoPoint{Lon: lon, Lat: lat, Address: address}
	if err := p.Validate(); err != nil {
		return GeoPoint{}, err
	}
	return p, nil
}

// Validate checks that longitude and latitude are finite and in range.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180,180]", p.Lon)
	}
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90,90]", p.Lat)
	}
	return nil
}

// Coordinates returns the point as a [lon, lat] pair.
func (p GeoPoint) Coordinates() [2]float64 {
	return [2]float64{p.Lon, p.Lat}
}

// DistanceMeters returns the haversine great-circle distance between two points.
func DistanceMeters(a, b GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// BoundingBox is an axis-aligned lon/lat rectangle. Boxes crossing the
// antimeridian are not supported.
type BoundingBox struct {
	MinLon float64 `json:"minLon" yaml:"min_lon"`
	MinLat float64 `json:"minLat" yaml:"min_lat"`
	MaxLon float64 `json:"maxLon" yaml:"max_lon"`
	MaxLat float64 `json:"maxLat" yaml:"max_lat"`
}

// Contains reports whether p lies inside the box, edges included.
func (b BoundingBox) Contains(p GeoPoint) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// Validate checks corner ordering and ranges.
func (b BoundingBox) Validate() error {
	if err := (GeoPoint{Lon: b.MinLon, Lat: b.MinLat}).Validate(); err != nil {
		return fmt.Errorf("bounding box min corner: %w", err)
	}
	if err := (GeoPoint{Lon: b.MaxLon, Lat: b.MaxLat}).Validate(); err != nil {
		return fmt.Errorf("bounding box max corner: %w", err)
	}
	if b.MinLon > b.MaxLon || b.MinLat > b.MaxLat {
		return fmt.Errorf("bounding box min corner exceeds max corner")
	}
	return nil
}

// BoxAround returns a box that contains every point within radius meters of
// center. It over-approximates near the poles and is meant as a prefilter
// before an exact DistanceMeters check.
func BoxAround(center GeoPoint, radiusMeters float64) BoundingBox {
	dLat := radiusMeters / earthRadiusMeters * 180 / math.Pi
	box := BoundingBox{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
		MinLon: -180,
		MaxLon: 180,
	}
	cosLat := math.Cos(math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat)) * math.Pi / 180)
	if cosLat > 1e-6 {
		dLon := dLat / cosLat
		// Circles wrapping the antimeridian keep the full longitude range.
		if center.Lon-dLon >= -180 && center.Lon+dLon <= 180 {
			box.MinLon = center.Lon - dLon
			box.MaxLon = center.Lon + dLon
		}
	}
	return box
}
