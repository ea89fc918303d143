// Package grid enumerates a latitude/longitude lattice and samples a point
// feed once per cell.
package grid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
)

// indexEpsilon absorbs float error when counting steps, so a span of exactly
// n steps yields n+1 points.
const indexEpsilon = 1e-9

// Lattice is an inclusive rectangular grid in degrees.
type Lattice struct {
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLon float64 `yaml:"max_lon"`
	Step   float64 `yaml:"step"`
}

// DefaultLattice covers inhabited latitudes at 20° spacing: 7 rows by 19
// columns.
func DefaultLattice() Lattice {
	return Lattice{MinLat: -60, MaxLat: 75, MinLon: -180, MaxLon: 180, Step: 20}
}

// Validate checks bounds and step.
func (l Lattice) Validate() error {
	switch {
	case !(l.Step > 0) || math.IsInf(l.Step, 0):
		return fmt.Errorf("grid step must be positive, got %v", l.Step)
	case l.MinLat > l.MaxLat:
		return fmt.Errorf("grid min lat %v exceeds max lat %v", l.MinLat, l.MaxLat)
	case l.MinLon > l.MaxLon:
		return fmt.Errorf("grid min lon %v exceeds max lon %v", l.MinLon, l.MaxLon)
	case l.MinLat < -90 || l.MaxLat > 90:
		return fmt.Errorf("grid latitude range [%v, %v] outside [-90, 90]", l.MinLat, l.MaxLat)
	case l.MinLon < -180 || l.MaxLon > 180:
		return fmt.Errorf("grid longitude range [%v, %v] outside [-180, 180]", l.MinLon, l.MaxLon)
	}
	return nil
}

func steps(lo, hi, step float64) int {
	return int(math.Floor((hi-lo)/step+indexEpsilon)) + 1
}

// Rows is the number of latitude lines.
func (l Lattice) Rows() int { return steps(l.MinLat, l.MaxLat, l.Step) }

// Cols is the number of longitude lines.
func (l Lattice) Cols() int { return steps(l.MinLon, l.MaxLon, l.Step) }

// Size is the number of cells.
func (l Lattice) Size() int { return l.Rows() * l.Cols() }

// Cell is one sampling point of a lattice.
type Cell struct {
	Row, Col int
	Lat, Lon float64
}

// Point returns the cell as a GeoPoint.
func (c Cell) Point() domain.GeoPoint {
	return domain.GeoPoint{Lon: c.Lon, Lat: c.Lat}
}

// Cells enumerates the lattice row by row. Coordinates are computed from the
// integer index, never by accumulating Step.
func (l Lattice) Cells() []Cell {
	rows, cols := l.Rows(), l.Cols()
	cells := make([]Cell, 0, rows*cols)
	for r := range rows {
		lat := l.MinLat + float64(r)*l.Step
		for c := range cols {
			cells = append(cells, Cell{Row: r, Col: c, Lat: lat, Lon: l.MinLon + float64(c)*l.Step})
		}
	}
	return cells
}

// Result summarizes one sampling pass.
type Result struct {
	Cells  int
	Failed int
}

// ErrAllCellsFailed is returned by Sample when no cell succeeded.
var ErrAllCellsFailed = errors.New("every grid cell failed")

// Sampler visits lattice cells with bounded concurrency.
type Sampler struct {
	concurrency int
	logger      *slog.Logger
}

// NewSampler creates a Sampler running at most concurrency cells at once.
func NewSampler(concurrency int, logger *slog.Logger) *Sampler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sampler{concurrency: concurrency, logger: logger}
}

// Sample calls fn once per cell. A failing cell is logged and skipped, never
// retried in the same pass. The last cell error is returned wrapped in
// ErrAllCellsFailed only when every cell failed, so a dead feed surfaces as
// an adapter failure rather than an empty batch.
func (s *Sampler) Sample(ctx context.Context, l Lattice, fn func(context.Context, Cell) error) (Result, error) {
	if err := l.Validate(); err != nil {
		return Result{}, err
	}
	cells := l.Cells()

	var (
		mu      sync.Mutex
		failed  int
		lastErr error
	)
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, cell := range cells {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := fn(ctx, cell); err != nil {
				mu.Lock()
				failed++
				lastErr = err
				mu.Unlock()
				s.logger.Warn("grid cell failed",
					"lat", cell.Lat,
					"lon", cell.Lon,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait() // cell errors are counted, never propagated

	res := Result{Cells: len(cells), Failed: failed}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if res.Cells > 0 && res.Failed == res.Cells {
		return res, fmt.Errorf("%w: %w", ErrAllCellsFailed, lastErr)
	}
	return res, nil
}
