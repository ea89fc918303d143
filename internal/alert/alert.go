// Package alert matches active high-severity events to subscribers by region
// and publishes region-keyed summaries.
package alert

import (
	"context"
	"strings"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
)

// Subscriber is a read-only snapshot of a user who wants regional alerts.
type Subscriber struct {
	ID            string `yaml:"id"`
	Region        string `yaml:"region"`
	City          string `yaml:"city"`
	AlertsEnabled bool   `yaml:"alerts_enabled"`
}

// SubscriberSource lists subscribers. Each call returns a fresh snapshot.
type SubscriberSource interface {
	Subscribers(ctx context.Context) ([]Subscriber, error)
}

// RegionMatcher decides whether an event concerns a subscriber's region.
type RegionMatcher interface {
	Match(e domain.Event, s Subscriber) bool
}

// RegionMatcherFunc adapts a plain function to RegionMatcher.
type RegionMatcherFunc func(domain.Event, Subscriber) bool

func (f RegionMatcherFunc) Match(e domain.Event, s Subscriber) bool { return f(e, s) }

// AddressContainsRegion matches when the event address contains the
// subscriber's region under Unicode case folding. It is approximate: a region
// that is a substring of an unrelated place name also matches.
var AddressContainsRegion RegionMatcher = RegionMatcherFunc(func(e domain.Event, s Subscriber) bool {
	return domain.ContainsFold(e.Location.Address, s.Region)
})

// Location places a summary for the subscriber it was sent to.
type Location struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
	Area    string `json:"area"` // event address
}

// Summary is one event in a published alert message.
type Summary struct {
	ID          string          `json:"id"`
	Type        domain.Type     `json:"type"`
	Location    Location        `json:"location"`
	Severity    domain.Severity `json:"severity"`
	Description string          `json:"description"`
	Source      domain.Source   `json:"source"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Summarize builds the summary of e for subscriber s in country.
func Summarize(e domain.Event, s Subscriber, country string) Summary {
	description := e.Description
	if description == "" {
		description = e.Title
	}
	return Summary{
		ID:   e.ID,
		Type: e.Type,
		Location: Location{
			Country: country,
			Region:  s.Region,
			City:    s.City,
			Area:    e.Location.Address,
		},
		Severity:    e.Severity,
		Description: description,
		Source:      e.Source,
		CreatedAt:   e.Timestamp,
	}
}

// RegionKey is the channel name for a region: "alerts:<country>:<region>",
// lower-cased.
func RegionKey(country, region string) string {
	return strings.ToLower("alerts:" + strings.TrimSpace(country) + ":" + strings.TrimSpace(region))
}

// Publisher delivers region alert messages.
type Publisher interface {
	Publish(ctx context.Context, regionKey string, summaries []Summary) error
}
