package usgs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/adapter/feed"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const earthquakeFeed = `{
  "type": "FeatureCollection",
  "features": [
    {
      "id": "us7000abcd",
      "properties": {"mag": 7.2, "place": "12 km N of Delhi, India", "time": 1755154800000, "tsunami": 0, "title": "M 7.2 - 12 km N of Delhi, India"},
      "geometry": {"type": "Point", "coordinates": [77.1, 28.6, 10.0]}
    },
    {
      "id": "us7000nogeo",
      "properties": {"mag": 4.1, "place": "somewhere", "time": 1755154800000},
      "geometry": null
    },
    {
      "id": "ak0001",
      "properties": {"mag": null, "place": "Alaska", "time": 1755154800000},
      "geometry": {"type": "Point", "coordinates": [-150.1, 61.2, 30.0]}
    }
  ]
}`

func newServer(t *testing.T, body string, check func(*http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient() *feed.Client {
	return feed.NewClient(feed.DefaultConfig(), observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEarthquakes_Fetch(t *testing.T) {
	srv := newServer(t, earthquakeFeed, nil)

	batch, err := NewEarthquakes(newClient(), srv.URL).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Drafts, 2)
	require.Len(t, batch.Dropped, 1)

	var malformed *domain.MalformedPayloadError
	require.True(t, errors.As(batch.Dropped[0], &malformed))
	assert.Equal(t, "us7000nogeo", malformed.Record)

	d := batch.Drafts[0]
	assert.Equal(t, "earthquake", d.Category)
	assert.Equal(t, domain.SourceSeismic, d.Source)
	assert.Equal(t, []float64{77.1, 28.6}, d.Coordinates)
	assert.Equal(t, "12 km N of Delhi, India", d.Address)
	assert.Equal(t, time.Date(2025, 8, 14, 7, 0, 0, 0, time.UTC), d.ReportedAt)
	assert.Equal(t, 7.2, d.Reading.Metrics[domain.MetricMagnitude])
	assert.Equal(t, domain.EarthquakePayload{Magnitude: 7.2, Depth: 10}, d.Payload)

	n, err := domain.NewNormalizer(nil).Normalize(d)
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityHigh, n.Severity)

	unknown := batch.Drafts[1]
	assert.Empty(t, unknown.Reading.Metrics)
	assert.Equal(t, domain.SeverityLow, domain.Classify(domain.TypeEarthquake, unknown.Reading))
}

func TestEarthquakes_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewEarthquakes(newClient(), srv.URL).Fetch(context.Background())
	var transient *domain.TransientSourceError
	require.True(t, errors.As(err, &transient))
	assert.Equal(t, EarthquakesName, transient.Source)
}

func TestTsunamis_Fetch(t *testing.T) {
	body := `{"features":[{"id":"t1","properties":{"place":"off the coast of Sumatra","time":1755154800000,"tsunami":2},
		"geometry":{"type":"Point","coordinates":[95.0,3.3,25.0]}}]}`
	srv := newServer(t, body, func(r *http.Request) {
		assert.Equal(t, "tsunami", r.URL.Query().Get("eventtype"))
		assert.Equal(t, "geojson", r.URL.Query().Get("format"))
	})

	batch, err := NewTsunamis(newClient(), srv.URL).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Drafts, 1)

	d := batch.Drafts[0]
	assert.Equal(t, "tsunami", d.Category)
	assert.Equal(t, "Tsunami Alert", d.Title)
	assert.Nil(t, d.Payload)
	assert.Equal(t, domain.SeverityHigh, domain.Classify(domain.TypeTsunami, d.Reading))
}
