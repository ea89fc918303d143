package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Draft is an adapter's raw, source-shaped observation awaiting normalization.
// Adapters must hand coordinates over in canonical [lon, lat] order.
type Draft struct {
	Source      Source
	Ref         string // source record identifier, used in error reports
	Category    string // source category name, resolved through the alias table
	Coordinates []float64
	Address     string
	Title       string
	Description string
	ReportedAt  time.Time // zero when the feed does not report an occurrence time
	Reading     Reading
	Severity    Severity // set when the adapter classified already; zero defers to Classify
	Payload     Payload
}

// aliases maps folded source category names to canonical types. Every
// canonical name is also accepted for itself.
var aliases = map[string]Type{
	"severe storms":        TypeSevereStorm,
	"severe storm":         TypeSevereStorm,
	"storms":               TypeSevereStorm,
	"storm":                TypeSevereStorm,
	"wildfires":            TypeWildfire,
	"volcanoes":            TypeVolcano,
	"volcanic eruptions":   TypeVolcanicEruption,
	"floods":               TypeFlood,
	"flash floods":         TypeFlashFlood,
	"coastal floods":       TypeCoastalFlood,
	"earthquakes":          TypeEarthquake,
	"hurricanes":           TypeHurricane,
	"typhoons":             TypeTyphoon,
	"cyclones":             TypeCyclone,
	"tropical cyclone":     TypeCyclone,
	"tornadoes":            TypeTornado,
	"thunderstorms":        TypeThunderstorm,
	"snow":                 TypeWinterStorm,
	"temperature extremes": TypeExtremeWeather,
	"heat wave":            TypeExtremeHeat,
	"landslides":           TypeLandslide,
	"avalanches":           TypeAvalanche,
	"tsunamis":             TypeTsunami,
	"droughts":             TypeDrought,
}

func init() {
	for _, t := range AllTypes {
		aliases[foldAlias(string(t))] = t
	}
}

func foldAlias(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

// ResolveType maps a source category name to its canonical type,
// ignoring case, surrounding space and '_'/'-' separators.
func ResolveType(name string) (Type, bool) {
	t, ok := aliases[foldAlias(name)]
	return t, ok
}

// Normalizer turns adapter drafts into validated canonical events.
type Normalizer struct {
	clock clockwork.Clock
}

// NewNormalizer creates a Normalizer. A nil clock uses the package clock.
func NewNormalizer(c clockwork.Clock) *Normalizer {
	return &Normalizer{clock: c}
}

func (n *Normalizer) now() time.Time {
	if n.clock != nil {
		return n.clock.Now()
	}
	return clock.Now()
}

// Normalize resolves the type alias, builds the GeoPoint, stamps Timestamp and
// LastUpdated, classifies severity when the draft has none, and validates the
// result. Any failure is a MalformedPayloadError for the draft's record.
func (n *Normalizer) Normalize(d Draft) (Event, error) {
	fail := func(err error) (Event, error) {
		return Event{}, Malformed(string(d.Source), d.Ref, err)
	}

	typ, ok := ResolveType(d.Category)
	if !ok {
		return fail(fmt.Errorf("unknown category %q", d.Category))
	}
	if len(d.Coordinates) < 2 {
		return fail(errors.New("missing coordinates"))
	}
	loc, err := NewGeoPoint(d.Coordinates[0], d.Coordinates[1], strings.TrimSpace(d.Address))
	if err != nil {
		return fail(err)
	}

	now := n.now().UTC()
	ts := d.ReportedAt.UTC()
	if d.ReportedAt.IsZero() {
		ts = now
	}
	lastUpdated := now
	if ts.After(now) {
		lastUpdated = ts
	}

	severity := d.Severity
	if !severity.Valid() {
		severity = Classify(typ, d.Reading)
	}

	title := strings.TrimSpace(d.Title)
	if title == "" {
		title = defaultTitle(typ, loc)
	}

	e := Event{
		Type:        typ,
		Source:      d.Source,
		Severity:    severity,
		Location:    loc,
		Title:       title,
		Description: strings.TrimSpace(d.Description),
		Timestamp:   ts,
		LastUpdated: lastUpdated,
		Payload:     d.Payload,
		IsActive:    true,
	}
	if err := e.Validate(); err != nil {
		return fail(err)
	}
	return e, nil
}

func defaultTitle(t Type, p GeoPoint) string {
	name := strings.ReplaceAll(string(t), "_", " ")
	if p.Address != "" {
		return fmt.Sprintf("%s near %s", name, p.Address)
	}
	return fmt.Sprintf("%s at %.2f,%.2f", name, p.Lat, p.Lon)
}
