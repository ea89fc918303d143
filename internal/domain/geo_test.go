package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeoPoint(t *testing.T) {
	p, err := NewGeoPoint(77.1, 28.6, "New Delhi")
	require.NoError(t, err)
	assert.Equal(t, [2]float64{77.1, 28.6}, p.Coordinates())

	_, err = NewGeoPoint(28.6, 91, "")
	assert.Error(t, err)
	_, err = NewGeoPoint(-181, 0, "")
	assert.Error(t, err)
}

func TestDistanceMeters(t *testing.T) {
	delhi := GeoPoint{Lon: 77.1, Lat: 28.6}
	assert.InDelta(t, 0, DistanceMeters(delhi, delhi), 1e-6)

	// Delhi to Mumbai is roughly 1150 km.
	mumbai := GeoPoint{Lon: 72.88, Lat: 19.08}
	assert.InDelta(t, 1150000, DistanceMeters(delhi, mumbai), 25000)

	// One degree of latitude is about 111.2 km.
	north := GeoPoint{Lon: 77.1, Lat: 29.6}
	assert.InDelta(t, 111195, DistanceMeters(delhi, north), 50)
}

func TestBoxAround_ContainsRadius(t *testing.T) {
	center := GeoPoint{Lon: 77.1, Lat: 28.6}
	box := BoxAround(center, 50000)

	assert.True(t, box.Contains(center))
	assert.True(t, box.Contains(GeoPoint{Lon: 77.1, Lat: 29.04}))
	assert.True(t, box.Contains(GeoPoint{Lon: 77.6, Lat: 28.6}))
	assert.False(t, box.Contains(GeoPoint{Lon: 78.1, Lat: 28.6}))
}

func TestBoxAround_Antimeridian(t *testing.T) {
	box := BoxAround(GeoPoint{Lon: 179.9, Lat: -17}, 100000)
	assert.True(t, box.Contains(GeoPoint{Lon: -179.9, Lat: -17}))
}

func TestBoundingBox_Validate(t *testing.T) {
	assert.NoError(t, IndiaBounds.Validate())
	assert.Error(t, BoundingBox{MinLon: 10, MaxLon: 0, MinLat: 0, MaxLat: 1}.Validate())
	assert.Error(t, BoundingBox{MinLon: 0, MaxLon: 10, MinLat: -95, MaxLat: 1}.Validate())
}
