package collector_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/adapter/feed"
	"github.com/couchcryptid/disaster-alert-service/internal/adapter/openweather"
	"github.com/couchcryptid/disaster-alert-service/internal/adapter/usgs"
	"github.com/couchcryptid/disaster-alert-service/internal/collector"
	"github.com/couchcryptid/disaster-alert-service/internal/dedup"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/grid"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/couchcryptid/disaster-alert-service/internal/periodic"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
	"github.com/couchcryptid/disaster-alert-service/internal/store/memory"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 8, 14, 6, 3, 0, 0, time.UTC)

// --- fakes ---

type stubAdapter struct {
	name  string
	batch collector.Batch
	err   error
}

func (s stubAdapter) Name() string { return s.name }

func (s stubAdapter) Fetch(context.Context) (collector.Batch, error) { return s.batch, s.err }

type failingGate struct{}

func (failingGate) AdmitWithin(_ context.Context, e domain.Event, _ float64) (dedup.Outcome, domain.Event, error) {
	return dedup.Skipped, domain.Event{}, &domain.PersistenceError{Op: "insert", Key: e.DedupKey, Err: errors.New("disk full")}
}

type fakeGeocoder struct{}

func (fakeGeocoder) ReverseGeocode(context.Context, float64, float64) (domain.GeocodingResult, error) {
	return domain.GeocodingResult{FormattedAddress: "Kochi, Kerala, India"}, nil
}

// --- helpers ---

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type harness struct {
	store   *memory.Store
	metrics *observability.Metrics
	clock   *clockwork.FakeClock
}

func newHarness() harness {
	return harness{
		store:   memory.New(store.Activity{}),
		metrics: observability.NewMetricsForTesting(),
		clock:   clockwork.NewFakeClockAt(t0),
	}
}

func (h harness) scheduler(cfg dedup.Config, geocoder domain.Geocoder, adapters ...collector.Adapter) *collector.Scheduler {
	return collector.New(adapters, dedup.NewGate(h.store, cfg),
		collector.Options{Clock: h.clock, Geocoder: geocoder}, h.metrics, discard())
}

func draft(ref string, lon, lat float64) domain.Draft {
	return domain.Draft{
		Source:      domain.SourceSeismic,
		Ref:         ref,
		Category:    "earthquake",
		Coordinates: []float64{lon, lat},
		Title:       ref,
		Reading:     domain.Reading{Metrics: map[string]float64{domain.MetricMagnitude: 5.5}},
	}
}

func byName(r collector.Report, name string) collector.AdapterReport {
	for _, a := range r.Adapters {
		if a.Adapter == name {
			return a
		}
	}
	return collector.AdapterReport{}
}

// --- tests ---

func TestRunOnce_SeismicFeedToNearQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"features":[{"id":"us1","properties":{"mag":7.2,"place":"Delhi, India","time":1755151200000},
			"geometry":{"type":"Point","coordinates":[77.1,28.6,10]}}]}`))
	}))
	defer srv.Close()

	h := newHarness()
	client := feed.NewClient(feed.DefaultConfig(), h.metrics, discard())
	s := h.scheduler(dedup.DefaultConfig(), nil, usgs.NewEarthquakes(client, srv.URL))

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted())

	center := domain.GeoPoint{Lon: 77.1, Lat: 28.6}
	hits, err := h.store.Near(context.Background(), center, 1000, store.Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	e := hits[0].Event
	assert.Equal(t, domain.TypeEarthquake, e.Type)
	assert.Equal(t, domain.SeverityHigh, e.Severity)
	assert.Equal(t, [2]float64{77.1, 28.6}, e.Location.Coordinates())
	assert.Equal(t, time.UnixMilli(1755151200000).UTC(), e.Timestamp)
	assert.InDelta(t, 0, hits[0].DistanceMeters, 1e-6)
}

func TestRunOnce_AdjacentGridCellsCollapse(t *testing.T) {
	// Two neighbouring cells of the default 20° lattice see cyclonic wind.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		wind := 2
		if q.Get("lat") == "0" && (q.Get("lon") == "20" || q.Get("lon") == "40") {
			wind = 35
		}
		_, _ = fmt.Fprintf(w, `{"name":"","main":{"temp":27,"humidity":80,"pressure":985},"wind":{"speed":%d}}`, wind)
	}))
	defer srv.Close()

	h := newHarness()
	client := feed.NewClient(feed.Config{Timeout: 5 * time.Second, Concurrency: 8}, h.metrics, discard())
	lattice := grid.DefaultLattice()
	a, err := openweather.New(client, openweather.Config{URL: srv.URL, APIKey: "k"}, openweather.Cyclones(),
		lattice, grid.NewSampler(8, discard()), h.metrics)
	require.NoError(t, err)
	assert.Equal(t, lattice.Step, a.Spread())

	for _, precision := range []int{0, 2} {
		t.Run(fmt.Sprintf("precision %d", precision), func(t *testing.T) {
			h := newHarness()
			cfg := dedup.Config{Precision: precision, Bucket: 15 * time.Minute, Policy: dedup.PolicyMerge}
			report, err := h.scheduler(cfg, nil, a).RunOnce(context.Background())
			require.NoError(t, err)

			r := byName(report, "openweather-cyclones")
			assert.Equal(t, 2, r.Fetched)
			assert.Equal(t, 1, r.Inserted)
			assert.Equal(t, 1, r.Merged)

			events, err := h.store.Query(context.Background(), store.Filter{Types: []domain.Type{domain.TypeCyclone}})
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, 0.0, events[0].Location.Lat)
			assert.Contains(t, []float64{20, 40}, events[0].Location.Lon)
		})
	}
}

func TestRunOnce_PartialFailureIsolation(t *testing.T) {
	h := newHarness()

	missing := draft("no-coords", 0, 0)
	missing.Coordinates = nil
	mixed := stubAdapter{name: "mixed", batch: collector.Batch{
		Drafts:  []domain.Draft{draft("a", 10, 10), missing, draft("b", 11, 11)},
		Dropped: []error{domain.Malformed("mixed", "bad-row", errors.New("no latitude"))},
	}}
	down := stubAdapter{name: "down", err: domain.Transient("down", errors.New("connection refused"))}
	healthy := stubAdapter{name: "healthy", batch: collector.Batch{Drafts: []domain.Draft{draft("c", 12, 12)}}}

	report, err := h.scheduler(dedup.DefaultConfig(), nil, mixed, down, healthy).RunOnce(context.Background())
	require.NoError(t, err)

	m := byName(report, "mixed")
	assert.Equal(t, 4, m.Fetched)
	assert.Equal(t, 2, m.Dropped)
	assert.Equal(t, 2, m.Inserted)
	assert.NoError(t, m.Err)

	d := byName(report, "down")
	var transient *domain.TransientSourceError
	assert.ErrorAs(t, d.Err, &transient)
	assert.Len(t, report.Failed(), 1)

	assert.Equal(t, 1, byName(report, "healthy").Inserted)
	assert.Equal(t, 3, h.store.Len())

	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.AdapterFailures.WithLabelValues("down", "transient")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(h.metrics.AdapterRecords.WithLabelValues("mixed", "dropped")), 0)
}

func TestRunOnce_SecondCycleMerges(t *testing.T) {
	h := newHarness()
	a := stubAdapter{name: "quakes", batch: collector.Batch{Drafts: []domain.Draft{draft("q", 77.1, 28.6)}}}
	s := h.scheduler(dedup.DefaultConfig(), nil, a)

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	h.clock.Advance(5 * time.Minute)
	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, byName(report, "quakes").Merged)
	assert.Equal(t, 1, h.store.Len())
}

func TestRunOnce_StoreFailureCounted(t *testing.T) {
	h := newHarness()
	a := stubAdapter{name: "quakes", batch: collector.Batch{Drafts: []domain.Draft{draft("q", 77.1, 28.6)}}}
	s := collector.New([]collector.Adapter{a}, failingGate{}, collector.Options{Clock: h.clock}, h.metrics, discard())

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, byName(report, "quakes").Failed)
	require.NoError(t, s.CheckReadiness(context.Background()), "store failures do not block readiness")
}

func TestRunOnce_EnrichesMissingAddress(t *testing.T) {
	h := newHarness()
	a := stubAdapter{name: "fires", batch: collector.Batch{Drafts: []domain.Draft{draft("f", 76.3, 9.9)}}}

	_, err := h.scheduler(dedup.DefaultConfig(), fakeGeocoder{}, a).RunOnce(context.Background())
	require.NoError(t, err)

	events, err := h.store.Query(context.Background(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Kochi, Kerala, India", events[0].Location.Address)
}

func TestCheckReadiness(t *testing.T) {
	h := newHarness()
	s := h.scheduler(dedup.DefaultConfig(), nil)
	require.Error(t, s.CheckReadiness(context.Background()))

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.CheckReadiness(context.Background()))
}

func TestRun_ImmediateCycleAndShutdown(t *testing.T) {
	h := newHarness()
	a := stubAdapter{name: "quakes", batch: collector.Batch{Drafts: []domain.Draft{draft("q", 77.1, 28.6)}}}
	s := h.scheduler(dedup.DefaultConfig(), nil, a)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.CheckReadiness(ctx) == nil }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.store.Len())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRunOnce_BusyWhileRunning(t *testing.T) {
	h := newHarness()
	release := make(chan struct{})
	blocking := blockingAdapter{release: release, started: make(chan struct{})}
	s := h.scheduler(dedup.DefaultConfig(), nil, blocking)

	go func() { _, _ = s.RunOnce(context.Background()) }()
	<-blocking.started

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, periodic.ErrBusy)
	close(release)
}

type blockingAdapter struct {
	started chan struct{}
	release chan struct{}
}

func (blockingAdapter) Name() string { return "blocking" }

func (b blockingAdapter) Fetch(context.Context) (collector.Batch, error) {
	close(b.started)
	<-b.release
	return collector.Batch{}, nil
}
