//go:build integration

package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcclickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"github.com/couchcryptid/disaster-alert-service/internal/dedup"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
	chstore "github.com/couchcryptid/disaster-alert-service/internal/store/clickhouse"
)

const (
	clickhouseImage    = "clickhouse/clickhouse-server:24.8-alpine"
	clickhouseDatabase = "disasters"
	clickhouseUser     = "alerts"
	clickhousePassword = "alerts"
)

var storeNow = time.Date(2025, 8, 14, 6, 3, 0, 0, time.UTC)

func startClickHouse(ctx context.Context, t *testing.T) *chstore.Store {
	t.Helper()
	container, err := tcclickhouse.Run(ctx, clickhouseImage,
		tcclickhouse.WithDatabase(clickhouseDatabase),
		tcclickhouse.WithUsername(clickhouseUser),
		tcclickhouse.WithPassword(clickhousePassword),
	)
	require.NoError(t, err, "start clickhouse container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.ConnectionHost(ctx)
	require.NoError(t, err)

	conn, err := chstore.Connect(ctx, chstore.Config{
		Addr:     []string{host},
		Database: clickhouseDatabase,
		Username: clickhouseUser,
		Password: clickhousePassword,
	}, discardLogger())
	require.NoError(t, err)

	activity := store.Activity{Window: 24 * time.Hour, Clock: clockwork.NewFakeClockAt(storeNow.Add(10 * time.Minute))}
	s := chstore.New(conn, activity, discardLogger())
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.InitSchema(ctx))
	return s
}

func observed(typ domain.Type, lon, lat float64, at time.Time) domain.Event {
	return domain.Event{
		Type:        typ,
		Source:      domain.SourceSeismic,
		Severity:    domain.SeverityHigh,
		Location:    domain.GeoPoint{Lon: lon, Lat: lat, Address: "New Delhi, India"},
		Title:       string(typ),
		Timestamp:   at,
		LastUpdated: at,
	}
}

func TestClickHouseStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
	defer cancel()

	s := startClickHouse(ctx, t)
	gate := dedup.NewGate(s, dedup.DefaultConfig())

	t.Run("idempotent insert", func(t *testing.T) {
		quake := observed(domain.TypeEarthquake, 77.1, 28.6, storeNow)
		quake.Payload = domain.EarthquakePayload{Magnitude: 7.2, Depth: 10}

		outcome, first, err := gate.Admit(ctx, quake)
		require.NoError(t, err)
		require.Equal(t, dedup.Inserted, outcome)

		outcome, again, err := gate.Admit(ctx, quake)
		require.NoError(t, err)
		assert.Equal(t, dedup.Merged, outcome)
		assert.Equal(t, first.ID, again.ID)

		inserted, existing, err := s.InsertIfAbsent(ctx, first)
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.Equal(t, first.ID, existing.ID)

		events, err := s.Query(ctx, store.Filter{Types: []domain.Type{domain.TypeEarthquake}})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, domain.EarthquakePayload{Magnitude: 7.2, Depth: 10}, events[0].Payload)
		assert.True(t, events[0].IsActive)
	})

	t.Run("merge moves last updated forward", func(t *testing.T) {
		_, first, err := gate.Admit(ctx, observed(domain.TypeFlood, 88.36, 22.57, storeNow))
		require.NoError(t, err)

		later := observed(domain.TypeFlood, 88.36, 22.57, storeNow.Add(5*time.Minute))
		outcome, merged, err := gate.Admit(ctx, later)
		require.NoError(t, err)
		assert.Equal(t, dedup.Merged, outcome)
		assert.Equal(t, first.ID, merged.ID)

		stored, err := s.FindByDedupKey(ctx, first.DedupKey)
		require.NoError(t, err)
		assert.Equal(t, storeNow, stored.Timestamp, "timestamp is immutable")
		assert.Equal(t, later.LastUpdated, stored.LastUpdated)

		unchanged, err := s.Touch(ctx, first.DedupKey, storeNow)
		require.NoError(t, err)
		assert.Equal(t, later.LastUpdated, unchanged.LastUpdated, "never moves backwards")

		events, err := s.Query(ctx, store.Filter{Types: []domain.Type{domain.TypeFlood}})
		require.NoError(t, err)
		assert.Len(t, events, 1, "FINAL collapses the touched row")
	})

	t.Run("geo round trip", func(t *testing.T) {
		_, _, err := gate.Admit(ctx, observed(domain.TypeLandslide, 77.1, 28.6, storeNow))
		require.NoError(t, err)
		_, _, err = gate.Admit(ctx, observed(domain.TypeLandslide, 72.88, 19.08, storeNow))
		require.NoError(t, err)

		filter := store.Filter{Types: []domain.Type{domain.TypeLandslide}}
		center := domain.GeoPoint{Lon: 77.1, Lat: 28.6}

		hits, err := s.Near(ctx, center, 1000, filter)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, [2]float64{77.1, 28.6}, hits[0].Event.Location.Coordinates())
		assert.InDelta(t, 0, hits[0].DistanceMeters, 1)

		hits, err = s.Near(ctx, center, 1_500_000, filter)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, [2]float64{72.88, 19.08}, hits[1].Event.Location.Coordinates(), "nearest first")
		assert.InDelta(t, 1_150_000, hits[1].DistanceMeters, 50_000)
	})

	t.Run("query newest first", func(t *testing.T) {
		for i, lon := range []float64{70, 71, 72} {
			at := storeNow.Add(time.Duration(i-2) * time.Hour)
			_, _, err := gate.Admit(ctx, observed(domain.TypeWildfire, lon, 20, at))
			require.NoError(t, err)
		}

		events, err := s.Query(ctx, store.Filter{Types: []domain.Type{domain.TypeWildfire}})
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, storeNow, events[0].Timestamp)
		assert.Equal(t, storeNow.Add(-time.Hour), events[1].Timestamp)
		assert.Equal(t, storeNow.Add(-2*time.Hour), events[2].Timestamp)

		limited, err := s.Query(ctx, store.Filter{Types: []domain.Type{domain.TypeWildfire}, Limit: 2})
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, events[:2], limited)
	})

	t.Run("adjacent lattice cells fold", func(t *testing.T) {
		_, first, err := gate.AdmitWithin(ctx, observed(domain.TypeCyclone, 20, 0, storeNow), 20)
		require.NoError(t, err)
		outcome, got, err := gate.AdmitWithin(ctx, observed(domain.TypeCyclone, 40, 0, storeNow), 20)
		require.NoError(t, err)
		assert.Equal(t, dedup.Merged, outcome)
		assert.Equal(t, first.ID, got.ID)
	})
}
