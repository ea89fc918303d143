// Package eonet adapts NASA's Earth Observatory Natural Event Tracker.
package eonet

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/adapter/feed"
	"github.com/couchcryptid/disaster-alert-service/internal/collector"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
)

const (
	Name       = "eonet-events"
	DefaultURL = "https://eonet.gsfc.nasa.gov/api/v3/events"
)

// Getter is the subset of feed.Client the adapter uses.
type Getter interface {
	GetJSON(ctx context.Context, source, rawURL string, query url.Values, dest any) error
}

var errNoCategory = errors.New("event has no category")

type response struct {
	Events []event `json:"events"`
}

type event struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Categories  []category `json:"categories"`
	Geometry    []geometry `json:"geometry"`
}

type category struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type geometry struct {
	Date time.Time `json:"date"`
	feed.Geometry
}

// Adapter reads open EONET events. Categories without a canonical type
// (sea ice, dust, manmade) are ignored.
type Adapter struct {
	client Getter
	url    string
	logger *slog.Logger
}

// New creates the EONET adapter. An empty feedURL uses the public v3 API.
func New(client Getter, feedURL string, logger *slog.Logger) *Adapter {
	if feedURL == "" {
		feedURL = DefaultURL
	}
	return &Adapter{client: client, url: feedURL, logger: logger}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Fetch(ctx context.Context) (collector.Batch, error) {
	var resp response
	if err := a.client.GetJSON(ctx, Name, a.url, url.Values{"status": {"open"}}, &resp); err != nil {
		return collector.Batch{}, err
	}

	var batch collector.Batch
	ignored := 0
	for _, ev := range resp.Events {
		if len(ev.Categories) == 0 {
			batch.Drop(Name, ev.ID, errNoCategory)
			continue
		}
		cat := ev.Categories[0].Title
		if _, ok := domain.ResolveType(cat); !ok {
			ignored++
			continue
		}
		if len(ev.Geometry) == 0 {
			batch.Drop(Name, ev.ID, feed.ErrNoGeometry)
			continue
		}
		// Geometry is ordered oldest first; the latest fix is the current position.
		g := ev.Geometry[len(ev.Geometry)-1]
		coords, err := g.Position()
		if err != nil {
			batch.Drop(Name, ev.ID, err)
			continue
		}

		description := ev.Description
		if description == "" {
			description = cat + " event detected"
		}
		batch.Drafts = append(batch.Drafts, domain.Draft{
			Source:      domain.SourceSpaceAgency,
			Ref:         ev.ID,
			Category:    cat,
			Coordinates: coords[:2],
			Address:     ev.Title,
			Title:       ev.Title,
			Description: description,
			ReportedAt:  g.Date,
			Severity:    domain.CategorySeverity(cat),
		})
	}
	if ignored > 0 {
		a.logger.Debug("eonet events without canonical type ignored", "count", ignored)
	}
	return batch, nil
}
