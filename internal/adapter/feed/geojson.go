package feed

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Geometry is a GeoJSON geometry whose coordinates are decoded on demand.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// ErrNoGeometry is returned for a null or empty geometry.
var ErrNoGeometry = errors.New("missing geometry")

// Position returns a representative [lon, lat] for the geometry: the point
// itself, or the vertex centroid of a polygon's outer ring. Any third
// element (depth, altitude) of a point is preserved.
func (g *Geometry) Position() ([]float64, error) {
	if g == nil || len(g.Coordinates) == 0 || string(g.Coordinates) == "null" {
		return nil, ErrNoGeometry
	}
	switch g.Type {
	case "Point":
		var p []float64
		if err := json.Unmarshal(g.Coordinates, &p); err != nil {
			return nil, fmt.Errorf("decode point: %w", err)
		}
		if len(p) < 2 {
			return nil, fmt.Errorf("point has %d coordinates", len(p))
		}
		return p, nil
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("decode polygon: %w", err)
		}
		if len(rings) == 0 {
			return nil, errors.New("polygon has no rings")
		}
		return centroid(openRing(rings[0]))
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return nil, fmt.Errorf("decode multipolygon: %w", err)
		}
		var ring [][]float64
		for _, p := range polys {
			if len(p) > 0 {
				ring = append(ring, openRing(p[0])...)
			}
		}
		return centroid(ring)
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
	}
}

// openRing drops the closing vertex, which repeats the first.
func openRing(ring [][]float64) [][]float64 {
	if n := len(ring); n > 1 && equalPos(ring[0], ring[n-1]) {
		return ring[:n-1]
	}
	return ring
}

func centroid(ring [][]float64) ([]float64, error) {
	var lon, lat float64
	var n int
	for _, v := range ring {
		if len(v) < 2 {
			continue
		}
		lon += v[0]
		lat += v[1]
		n++
	}
	if n == 0 {
		return nil, errors.New("ring has no vertices")
	}
	return []float64{lon / float64(n), lat / float64(n)}, nil
}

func equalPos(a, b []float64) bool {
	return len(a) >= 2 && len(b) >= 2 && a[0] == b[0] && a[1] == b[1]
}
