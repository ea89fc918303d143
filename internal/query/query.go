// Package query is the read-only view over stored events.
package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
)

const (
	DefaultRadiusMeters = 10_000
	DefaultNearLimit    = 50
	DefaultRecentLimit  = 10
)

// ErrInvalidArgument marks a request the service rejects before reading.
var ErrInvalidArgument = errors.New("invalid argument")

// Service answers event queries.
type Service struct {
	reader store.Reader
	scope  domain.Scope
}

// New creates a Service. A nil scope admits everything.
func New(reader store.Reader, scope domain.Scope) *Service {
	if scope == nil {
		scope = domain.Everywhere
	}
	return &Service{reader: reader, scope: scope}
}

// TypeStats aggregates the events of one type around a point.
type TypeStats struct {
	Type              domain.Type `json:"type"`
	Count             int         `json:"count"`
	AvgDistanceMeters float64     `json:"avgDistanceMeters"`
	MostRecent        time.Time   `json:"mostRecent"`
}

// NearResult is the answer to a radius query.
type NearResult struct {
	Center       domain.GeoPoint `json:"center"`
	RadiusMeters float64         `json:"radiusMeters"`
	Hits         []store.Hit     `json:"hits"`
	Stats        []TypeStats     `json:"stats"` // over every match, not just Hits
}

// Near returns events within radiusMeters of center, nearest first, plus
// per-type statistics over the whole radius. A zero radius or limit takes
// the default.
func (s *Service) Near(ctx context.Context, center domain.GeoPoint, radiusMeters float64, f store.Filter, limit int) (NearResult, error) {
	if err := center.Validate(); err != nil {
		return NearResult{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if radiusMeters < 0 {
		return NearResult{}, fmt.Errorf("%w: negative radius %v", ErrInvalidArgument, radiusMeters)
	}
	if radiusMeters == 0 {
		radiusMeters = DefaultRadiusMeters
	}
	if limit <= 0 {
		limit = DefaultNearLimit
	}

	f.Limit = 0
	hits, err := s.reader.Near(ctx, center, radiusMeters, f)
	if err != nil {
		return NearResult{}, err
	}
	if hits == nil {
		hits = []store.Hit{}
	}
	return NearResult{
		Center:       center,
		RadiusMeters: radiusMeters,
		Hits:         store.Limit(hits, limit),
		Stats:        typeStats(hits),
	}, nil
}

func typeStats(hits []store.Hit) []TypeStats {
	index := make(map[domain.Type]int)
	out := []TypeStats{}
	sums := make(map[domain.Type]float64)
	for _, h := range hits {
		t := h.Event.Type
		i, ok := index[t]
		if !ok {
			i = len(out)
			index[t] = i
			out = append(out, TypeStats{Type: t})
		}
		out[i].Count++
		sums[t] += h.DistanceMeters
		if h.Event.Timestamp.After(out[i].MostRecent) {
			out[i].MostRecent = h.Event.Timestamp
		}
	}
	for i := range out {
		out[i].AvgDistanceMeters = sums[out[i].Type] / float64(out[i].Count)
	}
	slices.SortFunc(out, func(a, b TypeStats) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return cmp.Compare(string(a.Type), string(b.Type))
	})
	return out
}

// Range returns events with start <= Timestamp <= end, newest first.
func (s *Service) Range(ctx context.Context, start, end time.Time) ([]domain.Event, error) {
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("%w: range needs both start and end", ErrInvalidArgument)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidArgument, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return s.reader.Query(ctx, store.Filter{Since: start, Until: end})
}

// ByType returns events of type t, newest first.
func (s *Service) ByType(ctx context.Context, t domain.Type) ([]domain.Event, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidArgument, t)
	}
	return s.reader.Query(ctx, store.Filter{Types: []domain.Type{t}})
}

// BySeverity returns events of exactly level, newest first.
func (s *Service) BySeverity(ctx context.Context, level domain.Severity) ([]domain.Event, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %d", ErrInvalidArgument, level)
	}
	return s.reader.Query(ctx, store.Filter{Severities: []domain.Severity{level}})
}

// Recent returns the newest limit events; zero means DefaultRecentLimit.
func (s *Service) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return s.reader.Query(ctx, store.Filter{Limit: limit})
}

// ScopedResult partitions every stored event by the configured scope.
type ScopedResult struct {
	All     []domain.Event `json:"all"`
	InScope []domain.Event `json:"inScope"`
}

// Scoped returns every event together with the subset inside the scope.
func (s *Service) Scoped(ctx context.Context) (ScopedResult, error) {
	all, err := s.reader.Query(ctx, store.Filter{})
	if err != nil {
		return ScopedResult{}, err
	}
	res := ScopedResult{All: all, InScope: []domain.Event{}}
	for _, e := range all {
		if s.scope.Contains(e) {
			res.InScope = append(res.InScope, e)
		}
	}
	return res, nil
}

// DayCount is one entry of the daily timeline.
type DayCount struct {
	Day   string `json:"day"` // YYYY-MM-DD, UTC
	Count int    `json:"count"`
}

// FloodStats averages flood payloads.
type FloodStats struct {
	Count         int     `json:"count"`
	AvgWaterLevel float64 `json:"avgWaterLevel"`
	AvgRainfall   float64 `json:"avgRainfall"`
}

// CycloneStats averages cyclone payloads.
type CycloneStats struct {
	Count        int     `json:"count"`
	AvgWindSpeed float64 `json:"avgWindSpeed"`
	AvgPressure  float64 `json:"avgPressure"`
}

// Overview is the statistics summary over every stored event.
type Overview struct {
	Total        int                   `json:"total"`
	ByType       map[domain.Type]int   `json:"byType"`
	BySeverity   map[string]int        `json:"bySeverity"`
	BySource     map[domain.Source]int `json:"bySource"`
	Timeline     []DayCount            `json:"timeline"` // newest day first
	FloodStats   FloodStats            `json:"floodStats"`
	CycloneStats CycloneStats          `json:"cycloneStats"`
}

// Stats summarizes every stored event.
func (s *Service) Stats(ctx context.Context) (Overview, error) {
	all, err := s.reader.Query(ctx, store.Filter{})
	if err != nil {
		return Overview{}, err
	}

	o := Overview{
		Total:      len(all),
		ByType:     make(map[domain.Type]int),
		BySeverity: make(map[string]int),
		BySource:   make(map[domain.Source]int),
		Timeline:   []DayCount{},
	}
	days := make(map[string]int)
	var flood, cyclone struct{ a, b float64 }
	for _, e := range all {
		o.ByType[e.Type]++
		o.BySeverity[e.Severity.String()]++
		o.BySource[e.Source]++
		days[e.Timestamp.UTC().Format(time.DateOnly)]++

		switch p := e.Payload.(type) {
		case domain.FloodPayload:
			o.FloodStats.Count++
			flood.a += p.WaterLevel
			flood.b += p.Rainfall
		case domain.CyclonePayload:
			o.CycloneStats.Count++
			cyclone.a += p.WindSpeed
			cyclone.b += p.Pressure
		}
	}
	if n := o.FloodStats.Count; n > 0 {
		o.FloodStats.AvgWaterLevel = flood.a / float64(n)
		o.FloodStats.AvgRainfall = flood.b / float64(n)
	}
	if n := o.CycloneStats.Count; n > 0 {
		o.CycloneStats.AvgWindSpeed = cyclone.a / float64(n)
		o.CycloneStats.AvgPressure = cyclone.b / float64(n)
	}

	for day, n := range days {
		o.Timeline = append(o.Timeline, DayCount{Day: day, Count: n})
	}
	slices.SortFunc(o.Timeline, func(a, b DayCount) int { return cmp.Compare(b.Day, a.Day) })
	return o, nil
}
