// Package volcano adapts a volcanic activity JSON feed.
package volcano

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/couchcryptid/disaster-alert-service/internal/collector"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
)

const (
	Name       = "volcano-activity"
	DefaultURL = "https://volcano.si.edu/api/volcano_data_v1"

	// reportThreshold is the activity level above which a volcano is reported.
	reportThreshold = 1
)

// Getter is the subset of feed.Client the adapter uses.
type Getter interface {
	GetJSON(ctx context.Context, source, rawURL string, query url.Values, dest any) error
}

type response struct {
	Volcanoes []volcano `json:"volcanoes"`
}

type volcano struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Location      string   `json:"location"`
	ActivityLevel float64  `json:"activity_level"`
}

// Adapter reports volcanoes with elevated activity.
type Adapter struct {
	client Getter
	url    string
}

// New creates the volcano adapter. An empty feedURL uses the default feed.
func New(client Getter, feedURL string) *Adapter {
	if feedURL == "" {
		feedURL = DefaultURL
	}
	return &Adapter{client: client, url: feedURL}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Fetch(ctx context.Context) (collector.Batch, error) {
	var resp response
	if err := a.client.GetJSON(ctx, Name, a.url, nil, &resp); err != nil {
		return collector.Batch{}, err
	}

	var batch collector.Batch
	for _, v := range resp.Volcanoes {
		if v.ActivityLevel <= reportThreshold {
			continue
		}
		ref := v.ID
		if ref == "" {
			ref = v.Name
		}
		if v.Latitude == nil || v.Longitude == nil {
			batch.Drop(Name, ref, errors.New("missing coordinates"))
			continue
		}
		level := strconv.FormatFloat(v.ActivityLevel, 'f', -1, 64)
		batch.Drafts = append(batch.Drafts, domain.Draft{
			Source:      domain.SourceVolcanic,
			Ref:         ref,
			Category:    string(domain.TypeVolcano),
			Coordinates: []float64{*v.Longitude, *v.Latitude},
			Address:     v.Location,
			Title:       fmt.Sprintf("Volcanic Activity: %s", v.Name),
			Description: "Activity level: " + level,
			Reading:     domain.Reading{Metrics: map[string]float64{domain.MetricAlertLevel: v.ActivityLevel}},
			Payload:     domain.VolcanoPayload{AlertLevel: level},
		})
	}
	return batch, nil
}
