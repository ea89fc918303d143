package nws

import (
	"context"
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

const stormAlerts = `{
  "features": [
    {
      "id": "urn:oid:1",
      "geometry": {"type": "Polygon", "coordinates": [[[-97,35],[-96,35],[-96,36],[-97,36],[-97,35]]]},
      "properties": {"event": "Tornado Warning", "headline": "Tornado Warning issued", "description": "Take shelter",
        "areaDesc": "Oklahoma, OK", "severity": "Extreme", "sent": "2025-08-14T06:00:00-05:00"}
    },
    {
      "id": "urn:oid:2",
      "geometry": null,
      "properties": {"event": "Severe Thunderstorm Warning", "areaDesc": "Zone 12", "severity": "Severe"}
    },
    {
      "id": "urn:oid:3",
      "geometry": {"type": "Point", "coordinates": [-90.1, 29.9]},
      "properties": {"event": "Severe Thunderstorm Warning", "headline": "Storm", "areaDesc": "Orleans, LA",
        "severity": "Moderate", "sent": "2025-08-14T06:00:00Z"}
    }
  ]
}`

func newClient() *feed.Client {
	return feed.NewClient(feed.DefaultConfig(), observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStorms_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Severe Thunderstorm Warning,Hurricane Warning,Tornado Warning", r.URL.Query().Get("event"))
		_, _ = w.Write([]byte(stormAlerts))
	}))
	defer srv.Close()

	a := New(newClient(), srv.URL, Storms(), nil)
	assert.Equal(t, "nws-storms", a.Name())

	batch, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Drafts, 2)
	require.Len(t, batch.Dropped, 1, "zone alert without geometry")

	tornado := batch.Drafts[0]
	assert.Equal(t, "tornado", tornado.Category)
	assert.InDeltaSlice(t, []float64{-96.5, 35.5}, tornado.Coordinates, 1e-12)
	assert.Equal(t, domain.SeverityCritical, tornado.Severity)
	assert.Equal(t, time.Date(2025, 8, 14, 11, 0, 0, 0, time.UTC), tornado.ReportedAt.UTC())
	assert.Equal(t, domain.SourceStormAdvisory, tornado.Source)

	storm := batch.Drafts[1]
	assert.Equal(t, "severe_storm", storm.Category)
	assert.Equal(t, domain.SeverityMedium, storm.Severity)
}

func TestFloods_TypesAndSeverity(t *testing.T) {
	k := Floods()
	assert.Equal(t, domain.TypeFlashFlood, k.Type("Flash Flood Warning"))
	assert.Equal(t, domain.TypeCoastalFlood, k.Type("Coastal Flood Warning"))
	assert.Equal(t, domain.TypeFlood, k.Type("Flood Watch"))
	assert.Equal(t, domain.SeverityHigh, k.Severity("Extreme"))
	assert.Equal(t, domain.SeverityLow, k.Severity("Minor"))
	assert.Equal(t, domain.SeverityMedium, k.Severity("Unknown"))
}

func TestNew_EventOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Drought", r.URL.Query().Get("event"))
		_, _ = w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	batch, err := New(newClient(), srv.URL, Droughts(), []string{"Drought"}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch.Drafts)
}
