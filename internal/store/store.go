// Package store defines the event persistence contract shared by the
// in-memory and ClickHouse backends.
package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// ErrNotFound is returned when no event has the requested dedup key.
var ErrNotFound = errors.New("event not found")

// Writer is the mutation side used by the dedup gate.
type Writer interface {
	// FindByDedupKey returns the stored event for key or ErrNotFound.
	FindByDedupKey(ctx context.Context, key string) (domain.Event, error)

	// InsertIfAbsent stores e unless an event with the same DedupKey exists,
	// in which case it returns false and the existing event. Backends must
	// make this atomic per key.
	InsertIfAbsent(ctx context.Context, e domain.Event) (bool, domain.Event, error)

	// Touch advances LastUpdated of the event with key to at (never backwards)
	// and returns the updated event.
	Touch(ctx context.Context, key string, at time.Time) (domain.Event, error)
}

// Reader is the read-only side used by the query service and alert matcher.
type Reader interface {
	// Query returns events matching f, newest Timestamp first.
	Query(ctx context.Context, f Filter) ([]domain.Event, error)

	// Near returns events matching f within radiusMeters of center,
	// nearest first.
	Near(ctx context.Context, center domain.GeoPoint, radiusMeters float64, f Filter) ([]Hit, error)
}

// Store is a complete event store backend.
type Store interface {
	Reader
	Writer
	Ping(ctx context.Context) error
	Close() error
}

// Filter narrows a read. Zero-valued fields do not constrain.
type Filter struct {
	Types        []domain.Type
	Severities   []domain.Severity
	MinSeverity  domain.Severity
	Since        time.Time // Timestamp >= Since
	Until        time.Time // Timestamp <= Until
	UpdatedSince time.Time // LastUpdated >= UpdatedSince
	Limit        int
}

// Match reports whether e satisfies every set field of f.
func (f Filter) Match(e domain.Event) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.Type) {
		return false
	}
	if len(f.Severities) > 0 && !slices.Contains(f.Severities, e.Severity) {
		return false
	}
	if f.MinSeverity != 0 && e.Severity < f.MinSeverity {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	if !f.UpdatedSince.IsZero() && e.LastUpdated.Before(f.UpdatedSince) {
		return false
	}
	return true
}

// Hit is an event matched by a radius query with its distance from the center.
type Hit struct {
	Event          domain.Event `json:"event"`
	DistanceMeters float64      `json:"distanceMeters"`
}

// SortNewestFirst orders events by Timestamp descending, then ID for stability.
func SortNewestFirst(events []domain.Event) {
	slices.SortStableFunc(events, func(a, b domain.Event) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// SortNearestFirst orders hits by distance ascending, newest first on ties.
func SortNearestFirst(hits []Hit) {
	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.DistanceMeters < b.DistanceMeters:
			return -1
		case a.DistanceMeters > b.DistanceMeters:
			return 1
		}
		return b.Event.Timestamp.Compare(a.Event.Timestamp)
	})
}

// Limit truncates s to n elements when n is positive.
func Limit[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

// Activity derives Event.IsActive on read: an event is active while its
// LastUpdated lies within Window of the clock's now. A zero Window leaves
// IsActive as stored.
type Activity struct {
	Window time.Duration
	Clock  clockwork.Clock
}

// Mark returns e with IsActive derived.
func (a Activity) Mark(e domain.Event) domain.Event {
	if a.Window <= 0 {
		return e
	}
	c := a.Clock
	if c == nil {
		c = clockwork.NewRealClock()
	}
	e.IsActive = e.ActiveAt(c.Now(), a.Window)
	return e
}
