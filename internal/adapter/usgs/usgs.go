// Package usgs adapts the USGS earthquake GeoJSON feeds.
package usgs

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/adapter/feed"
	"github.com/couchcryptid/disaster-alert-service/internal/collector"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
)

const (
	// EarthquakesName is the registry name of the earthquake adapter.
	EarthquakesName = "usgs-earthquakes"
	// TsunamisName is the registry name of the tsunami adapter.
	TsunamisName = "usgs-tsunamis"

	DefaultEarthquakesURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_day.geojson"
	DefaultTsunamisURL    = "https://earthquake.usgs.gov/fdsnws/event/1/query"
)

// Getter is the subset of feed.Client the adapters use.
type Getter interface {
	GetJSON(ctx context.Context, source, rawURL string, query url.Values, dest any) error
}

var _ Getter = (*feed.Client)(nil)

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string         `json:"id"`
	Properties properties     `json:"properties"`
	Geometry   *feed.Geometry `json:"geometry"`
}

type properties struct {
	Mag     *float64 `json:"mag"`
	Place   string   `json:"place"`
	Time    int64    `json:"time"` // ms since epoch
	Tsunami int      `json:"tsunami"`
	Title   string   `json:"title"`
}

// Earthquakes reads the USGS summary feed.
type Earthquakes struct {
	client Getter
	url    string
}

// NewEarthquakes creates the earthquake adapter. An empty feedURL uses the
// past-day summary feed.
func NewEarthquakes(client Getter, feedURL string) *Earthquakes {
	if feedURL == "" {
		feedURL = DefaultEarthquakesURL
	}
	return &Earthquakes{client: client, url: feedURL}
}

func (a *Earthquakes) Name() string { return EarthquakesName }

func (a *Earthquakes) Fetch(ctx context.Context) (collector.Batch, error) {
	var fc featureCollection
	if err := a.client.GetJSON(ctx, EarthquakesName, a.url, nil, &fc); err != nil {
		return collector.Batch{}, err
	}

	var batch collector.Batch
	for _, f := range fc.Features {
		coords, err := f.Geometry.Position()
		if err != nil {
			batch.Drop(EarthquakesName, f.ID, err)
			continue
		}

		reading := domain.Reading{}
		payload := domain.EarthquakePayload{TsunamiPotential: f.Properties.Tsunami == 1}
		title := f.Properties.Title
		if m := f.Properties.Mag; m != nil {
			reading.Metrics = map[string]float64{domain.MetricMagnitude: *m}
			payload.Magnitude = *m
			if title == "" {
				title = fmt.Sprintf("Magnitude %g Earthquake", *m)
			}
		}
		if len(coords) > 2 {
			payload.Depth = coords[2]
		}

		batch.Drafts = append(batch.Drafts, domain.Draft{
			Source:      domain.SourceSeismic,
			Ref:         f.ID,
			Category:    string(domain.TypeEarthquake),
			Coordinates: coords[:2],
			Address:     f.Properties.Place,
			Title:       title,
			Description: f.Properties.Place,
			ReportedAt:  millis(f.Properties.Time),
			Reading:     reading,
			Payload:     payload,
		})
	}
	return batch, nil
}

// Tsunamis queries the FDSN event service for tsunami-flagged events.
type Tsunamis struct {
	client Getter
	url    string
}

// NewTsunamis creates the tsunami adapter. An empty feedURL uses the FDSN
// query endpoint.
func NewTsunamis(client Getter, feedURL string) *Tsunamis {
	if feedURL == "" {
		feedURL = DefaultTsunamisURL
	}
	return &Tsunamis{client: client, url: feedURL}
}

func (a *Tsunamis) Name() string { return TsunamisName }

func (a *Tsunamis) Fetch(ctx context.Context) (collector.Batch, error) {
	query := url.Values{
		"format":    {"geojson"},
		"eventtype": {"tsunami"},
		"orderby":   {"time"},
	}
	var fc featureCollection
	if err := a.client.GetJSON(ctx, TsunamisName, a.url, query, &fc); err != nil {
		return collector.Batch{}, err
	}

	var batch collector.Batch
	for _, f := range fc.Features {
		coords, err := f.Geometry.Position()
		if err != nil {
			batch.Drop(TsunamisName, f.ID, err)
			continue
		}
		batch.Drafts = append(batch.Drafts, domain.Draft{
			Source:      domain.SourceSeismic,
			Ref:         f.ID,
			Category:    string(domain.TypeTsunami),
			Coordinates: coords[:2],
			Address:     f.Properties.Place,
			Title:       "Tsunami Alert",
			Description: f.Properties.Place,
			ReportedAt:  millis(f.Properties.Time),
			Reading: domain.Reading{Metrics: map[string]float64{
				domain.MetricTsunami: float64(f.Properties.Tsunami),
			}},
		})
	}
	return batch, nil
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
