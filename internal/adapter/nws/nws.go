// Package nws adapts active alerts from the US National Weather Service API.
package nws

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/adapter/feed"
	"github.com/couchcryptid/disaster-alert-service/internal/collector"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
)

const DefaultURL = "https://api.weather.gov/alerts/active"

// Getter is the subset of feed.Client the adapter uses.
type Getter interface {
	GetJSON(ctx context.Context, source, rawURL string, query url.Values, dest any) error
}

// Kind describes one alert family: which NWS event names to request, how to
// type each alert and how to read its severity word.
type Kind struct {
	Name     string
	Events   []string
	Type     func(event string) domain.Type
	Severity func(word string) domain.Severity
}

// Floods covers river and flash flood products.
func Floods() Kind {
	return Kind{
		Name:   "nws-floods",
		Events: []string{"Flood Warning", "Flood Watch", "Flood Advisory", "Flash Flood Warning", "Coastal Flood Warning"},
		Type: func(event string) domain.Type {
			switch {
			case strings.HasPrefix(event, "Flash Flood"):
				return domain.TypeFlashFlood
			case strings.HasPrefix(event, "Coastal Flood"):
				return domain.TypeCoastalFlood
			}
			return domain.TypeFlood
		},
		Severity: domain.AdvisorySeverity,
	}
}

// Storms covers convective and tropical storm products.
func Storms() Kind {
	return Kind{
		Name:   "nws-storms",
		Events: []string{"Severe Thunderstorm Warning", "Hurricane Warning", "Tornado Warning"},
		Type: func(event string) domain.Type {
			switch {
			case strings.HasPrefix(event, "Tornado"):
				return domain.TypeTornado
			case strings.HasPrefix(event, "Hurricane"):
				return domain.TypeHurricane
			}
			return domain.TypeSevereStorm
		},
		Severity: domain.StormAdvisorySeverity,
	}
}

// Droughts covers drought statements.
func Droughts() Kind {
	return Kind{
		Name:     "nws-droughts",
		Events:   []string{"Drought"},
		Type:     func(string) domain.Type { return domain.TypeDrought },
		Severity: domain.AdvisorySeverity,
	}
}

type response struct {
	Features []alert `json:"features"`
}

type alert struct {
	ID         string         `json:"id"`
	Geometry   *feed.Geometry `json:"geometry"`
	Properties struct {
		Event       string    `json:"event"`
		Headline    string    `json:"headline"`
		Description string    `json:"description"`
		AreaDesc    string    `json:"areaDesc"`
		Severity    string    `json:"severity"`
		Sent        time.Time `json:"sent"`
	} `json:"properties"`
}

// Adapter reads one alert family.
type Adapter struct {
	client Getter
	url    string
	kind   Kind
}

// New creates an NWS adapter for kind. An empty feedURL uses the public API.
// A non-empty events list replaces the kind's default event names.
func New(client Getter, feedURL string, kind Kind, events []string) *Adapter {
	if feedURL == "" {
		feedURL = DefaultURL
	}
	if len(events) > 0 {
		kind.Events = events
	}
	return &Adapter{client: client, url: feedURL, kind: kind}
}

func (a *Adapter) Name() string { return a.kind.Name }

func (a *Adapter) Fetch(ctx context.Context) (collector.Batch, error) {
	query := url.Values{"event": {strings.Join(a.kind.Events, ",")}}
	var resp response
	if err := a.client.GetJSON(ctx, a.kind.Name, a.url, query, &resp); err != nil {
		return collector.Batch{}, err
	}

	var batch collector.Batch
	for _, al := range resp.Features {
		// Zone-based alerts carry no geometry and cannot be placed.
		coords, err := al.Geometry.Position()
		if err != nil {
			batch.Drop(a.kind.Name, al.ID, err)
			continue
		}
		p := al.Properties
		typ := a.kind.Type(p.Event)
		batch.Drafts = append(batch.Drafts, domain.Draft{
			Source:      domain.SourceStormAdvisory,
			Ref:         al.ID,
			Category:    string(typ),
			Coordinates: coords[:2],
			Address:     p.AreaDesc,
			Title:       p.Headline,
			Description: p.Description,
			ReportedAt:  p.Sent,
			Reading:     domain.Reading{Advisory: p.Severity},
			Severity:    a.kind.Severity(p.Severity),
		})
	}
	return batch, nil
}
