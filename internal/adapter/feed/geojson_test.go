package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeGeometry(t *testing.T, raw string) *Geometry {
	t.Helper()
	var g *Geometry
	require.NoError(t, json.Unmarshal([]byte(raw), &g))
	return g
}

func TestPosition_Point(t *testing.T) {
	g := decodeGeometry(t, `{"type":"Point","coordinates":[77.1,28.6,10.5]}`)
	p, err := g.Position()
	require.NoError(t, err)
	assert.Equal(t, []float64{77.1, 28.6, 10.5}, p)
}

func TestPosition_PolygonCentroid(t *testing.T) {
	g := decodeGeometry(t, `{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,2],[0,2],[0,0]]]}`)
	p, err := g.Position()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 1}, p, 1e-12)
}

func TestPosition_MultiPolygonCentroid(t *testing.T) {
	g := decodeGeometry(t, `{"type":"MultiPolygon","coordinates":[[[[0,0],[2,0],[1,2],[0,0]]],[[[4,0],[6,0],[5,2],[4,0]]]]}`)
	p, err := g.Position()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{3, 2.0 / 3}, p, 1e-12)
}

func TestPosition_Missing(t *testing.T) {
	_, err := decodeGeometry(t, `null`).Position()
	assert.ErrorIs(t, err, ErrNoGeometry)

	_, err = decodeGeometry(t, `{"type":"Point","coordinates":[77.1]}`).Position()
	assert.Error(t, err)

	_, err = decodeGeometry(t, `{"type":"LineString","coordinates":[[0,0],[1,1]]}`).Position()
	assert.Error(t, err)
}
