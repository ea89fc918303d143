// Package memory is an in-process event store. It keeps a unique index on
// the dedup key, a 1° spatial cell index, a newest-first timeline and a
// (type, severity) index.
package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
)

type cell struct {
	lon, lat int
}

func cellOf(p domain.GeoPoint) cell {
	return cell{lon: int(math.Floor(p.Lon)), lat: int(math.Floor(p.Lat))}
}

type typeSeverity struct {
	typ      domain.Type
	severity domain.Severity
}

// Store implements store.Store in memory. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	byKey    map[string]domain.Event
	cells    map[cell][]string
	bySev    map[typeSeverity][]string
	timeline []string // dedup keys, newest Timestamp first
	activity store.Activity
}

var _ store.Store = (*Store)(nil)

// New creates an empty store that derives IsActive with activity.
func New(activity store.Activity) *Store {
	return &Store{
		byKey:    make(map[string]domain.Event),
		cells:    make(map[cell][]string),
		bySev:    make(map[typeSeverity][]string),
		activity: activity,
	}
}

func (s *Store) FindByDedupKey(_ context.Context, key string) (domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byKey[key]
	if !ok {
		return domain.Event{}, store.ErrNotFound
	}
	return s.activity.Mark(e), nil
}

func (s *Store) InsertIfAbsent(_ context.Context, e domain.Event) (bool, domain.Event, error) {
	if e.DedupKey == "" {
		return false, domain.Event{}, fmt.Errorf("insert %s event: empty dedup key", e.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byKey[e.DedupKey]; ok {
		return false, s.activity.Mark(existing), nil
	}

	s.byKey[e.DedupKey] = e
	c := cellOf(e.Location)
	s.cells[c] = append(s.cells[c], e.DedupKey)
	ts := typeSeverity{typ: e.Type, severity: e.Severity}
	s.bySev[ts] = append(s.bySev[ts], e.DedupKey)

	i, _ := slices.BinarySearchFunc(s.timeline, e.Timestamp, func(key string, t time.Time) int {
		return t.Compare(s.byKey[key].Timestamp)
	})
	s.timeline = slices.Insert(s.timeline, i, e.DedupKey)

	return true, s.activity.Mark(e), nil
}

func (s *Store) Touch(_ context.Context, key string, at time.Time) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byKey[key]
	if !ok {
		return domain.Event{}, store.ErrNotFound
	}
	if at.After(e.LastUpdated) {
		e.LastUpdated = at
		s.byKey[key] = e
	}
	return s.activity.Mark(e), nil
}

func (s *Store) Query(_ context.Context, f store.Filter) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(f.Types) == 0 {
		var out []domain.Event
		for _, key := range s.timeline {
			e := s.byKey[key]
			if !f.Match(e) {
				continue
			}
			out = append(out, s.activity.Mark(e))
			if f.Limit > 0 && len(out) == f.Limit {
				break
			}
		}
		return out, nil
	}

	var out []domain.Event
	for ts, keys := range s.bySev {
		if !slices.Contains(f.Types, ts.typ) {
			continue
		}
		if f.MinSeverity != 0 && ts.severity < f.MinSeverity {
			continue
		}
		for _, key := range keys {
			if e := s.byKey[key]; f.Match(e) {
				out = append(out, s.activity.Mark(e))
			}
		}
	}
	store.SortNewestFirst(out)
	return store.Limit(out, f.Limit), nil
}

func (s *Store) Near(_ context.Context, center domain.GeoPoint, radiusMeters float64, f store.Filter) ([]store.Hit, error) {
	if err := center.Validate(); err != nil {
		return nil, fmt.Errorf("near: %w", err)
	}
	if radiusMeters < 0 {
		return nil, fmt.Errorf("near: negative radius %v", radiusMeters)
	}

	box := domain.BoxAround(center, radiusMeters)
	lo := cellOf(domain.GeoPoint{Lon: box.MinLon, Lat: box.MinLat})
	hi := cellOf(domain.GeoPoint{Lon: box.MaxLon, Lat: box.MaxLat})

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []store.Hit
	for lon := lo.lon; lon <= hi.lon; lon++ {
		for lat := lo.lat; lat <= hi.lat; lat++ {
			for _, key := range s.cells[cell{lon: lon, lat: lat}] {
				e := s.byKey[key]
				if !f.Match(e) {
					continue
				}
				d := domain.DistanceMeters(center, e.Location)
				if d > radiusMeters {
					continue
				}
				hits = append(hits, store.Hit{Event: s.activity.Mark(e), DistanceMeters: d})
			}
		}
	}
	store.SortNearestFirst(hits)
	return store.Limit(hits, f.Limit), nil
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
